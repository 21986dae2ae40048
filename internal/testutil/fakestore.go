// Package testutil provides testing utilities.
package testutil

import (
	"context"
	"errors"
	"sync"
	"time"

	"tasktree/internal/service"
)

// FirstRemoteID is the ID FakeStore assigns to the first created task.
const FirstRemoteID int64 = 100

// ErrUnavailable is a convenient transport failure for error injection.
var ErrUnavailable = &service.TransportError{Op: "list", Err: errors.New("connection refused")}

// Call records one request made to FakeStore.
type Call struct {
	Op    string // list, create, update, delete
	ID    int64  // zero for list and create
	Title string // create and update only
}

// FakeStore is an in-memory implementation of service.RemoteTaskStore.
// Deletes cascade to descendants like the real backends.
type FakeStore struct {
	mu     sync.Mutex
	tasks  map[int64]service.Task
	order  []int64
	nextID int64
	calls  []Call

	// Error injection for testing
	ListErr   error
	CreateErr error
	UpdateErr error
	DeleteErr error
	// FailOn, when set, is consulted before every call; a non-nil result
	// fails that call.
	FailOn func(Call) error
}

// NewFakeStore creates an empty FakeStore.
func NewFakeStore() *FakeStore {
	return &FakeStore{
		tasks:  make(map[int64]service.Task),
		nextID: FirstRemoteID,
	}
}

// Seed adds tasks as if they had been created remotely.
func (f *FakeStore) Seed(tasks ...service.Task) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range tasks {
		if _, ok := f.tasks[t.ID]; !ok {
			f.order = append(f.order, t.ID)
		}
		f.tasks[t.ID] = t
		if t.ID >= f.nextID {
			f.nextID = t.ID + 1
		}
	}
}

// Tasks returns the stored tasks in creation order.
func (f *FakeStore) Tasks() []service.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshot()
}

// Get returns a stored task.
func (f *FakeStore) Get(id int64) (service.Task, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	return t, ok
}

// Calls returns the requests made so far.
func (f *FakeStore) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

func (f *FakeStore) snapshot() []service.Task {
	out := make([]service.Task, 0, len(f.order))
	for _, id := range f.order {
		if t, ok := f.tasks[id]; ok {
			out = append(out, t)
		}
	}
	return out
}

func (f *FakeStore) record(c Call, staticErr error) error {
	f.calls = append(f.calls, c)
	if staticErr != nil {
		return staticErr
	}
	if f.FailOn != nil {
		return f.FailOn(c)
	}
	return nil
}

// List implements service.RemoteTaskStore.
func (f *FakeStore) List(ctx context.Context) ([]service.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(Call{Op: "list"}, f.ListErr); err != nil {
		return nil, err
	}
	return f.snapshot(), nil
}

// Create implements service.RemoteTaskStore.
func (f *FakeStore) Create(ctx context.Context, payload service.NewTask) (service.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(Call{Op: "create", Title: payload.Title}, f.CreateErr); err != nil {
		return service.Task{}, err
	}

	now := time.Now().UTC()
	t := service.Task{
		ID:          f.nextID,
		Title:       payload.Title,
		Description: payload.Description,
		IsCompleted: payload.IsCompleted,
		ParentID:    payload.ParentID,
		Priority:    payload.Priority,
		Status:      payload.Status,
		Position:    payload.Position,
		Deadline:    payload.Deadline,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	f.nextID++
	f.tasks[t.ID] = t
	f.order = append(f.order, t.ID)
	return t, nil
}

// Update implements service.RemoteTaskStore.
func (f *FakeStore) Update(ctx context.Context, id int64, patch service.TaskPatch) (service.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := Call{Op: "update", ID: id}
	if patch.Title != nil {
		c.Title = *patch.Title
	}
	if err := f.record(c, f.UpdateErr); err != nil {
		return service.Task{}, err
	}

	t, ok := f.tasks[id]
	if !ok {
		return service.Task{}, &service.TransportError{Op: "update", StatusCode: 404, Err: service.ErrNotFound}
	}
	t = patch.Apply(t)
	t.UpdatedAt = time.Now().UTC()
	f.tasks[id] = t
	return t, nil
}

// Delete implements service.RemoteTaskStore.
func (f *FakeStore) Delete(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(Call{Op: "delete", ID: id}, f.DeleteErr); err != nil {
		return err
	}

	if _, ok := f.tasks[id]; !ok {
		return &service.TransportError{Op: "delete", StatusCode: 404, Err: service.ErrNotFound}
	}
	doomed := map[int64]bool{id: true}
	for changed := true; changed; {
		changed = false
		for tid, t := range f.tasks {
			if !doomed[tid] && t.ParentID != nil && doomed[*t.ParentID] {
				doomed[tid] = true
				changed = true
			}
		}
	}
	for tid := range doomed {
		delete(f.tasks, tid)
	}
	return nil
}
