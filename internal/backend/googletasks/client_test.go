package googletasks

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	tasks "google.golang.org/api/tasks/v1"

	"tasktree/internal/cache"
	"tasktree/internal/hierarchy"
	"tasktree/internal/logging"
	"tasktree/internal/service"
	"tasktree/internal/syncer"
)

const testList = "work"

// fakeTasksAPI serves the subset of the Tasks API the client uses.
type fakeTasksAPI struct {
	mu     sync.Mutex
	items  []*tasks.Task
	nextID int
	calls  []string
	status int // when non-zero every request fails with it
}

func (f *fakeTasksAPI) find(id string) (int, *tasks.Task) {
	for i, t := range f.items {
		if t.Id == id {
			return i, t
		}
	}
	return -1, nil
}

func (f *fakeTasksAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, r.Method+" "+r.URL.Path)

	if f.status != 0 {
		writeJSON(w, f.status, map[string]any{"error": map[string]any{"code": f.status, "message": http.StatusText(f.status)}})
		return
	}

	rest, ok := strings.CutPrefix(r.URL.Path, "/tasks/v1/lists/"+testList+"/tasks")
	if !ok {
		http.NotFound(w, r)
		return
	}
	rest = strings.TrimPrefix(rest, "/")
	id, action, _ := strings.Cut(rest, "/")

	switch {
	case id == "" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, &tasks.Tasks{Items: f.items})

	case id == "" && r.Method == http.MethodPost:
		var body tasks.Task
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.nextID++
		body.Id = fmt.Sprintf("g%d", f.nextID)
		body.Parent = r.URL.Query().Get("parent")
		body.Position = fmt.Sprintf("%020d", f.nextID)
		body.Updated = "2026-03-01T09:00:00.000Z"
		if body.Status == "" {
			body.Status = statusNeedsAction
		}
		f.items = append(f.items, &body)
		writeJSON(w, http.StatusOK, &body)

	default:
		i, task := f.find(id)
		if task == nil {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": map[string]any{"code": 404, "message": "Task not found"}})
			return
		}
		switch {
		case action == "move" && r.Method == http.MethodPost:
			task.Parent = r.URL.Query().Get("parent")
			writeJSON(w, http.StatusOK, task)
		case r.Method == http.MethodPatch:
			var raw map[string]any
			_ = json.NewDecoder(r.Body).Decode(&raw)
			if v, ok := raw["title"].(string); ok {
				task.Title = v
			}
			if v, ok := raw["notes"].(string); ok {
				task.Notes = v
			}
			if v, ok := raw["status"].(string); ok {
				task.Status = v
			}
			writeJSON(w, http.StatusOK, task)
		case r.Method == http.MethodDelete:
			f.items = append(f.items[:i], f.items[i+1:]...)
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, api *fakeTasksAPI) (*Client, *cache.Cache) {
	t.Helper()
	ctx := context.Background()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	refs, err := cache.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { refs.Close() })

	c, err := NewWithHTTPClient(ctx, srv.Client(), testList, refs, option.WithEndpoint(srv.URL+"/"))
	require.NoError(t, err)
	return c, refs
}

func TestCreateAndList(t *testing.T) {
	ctx := context.Background()
	api := &fakeTasksAPI{}
	c, _ := newTestClient(t, api)

	deadline := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	root, err := c.Create(ctx, service.NewTask{Title: "Plan trip", Description: "summer", Priority: 4, Deadline: &deadline})
	require.NoError(t, err)
	assert.Positive(t, root.ID)
	assert.Equal(t, 4, root.Priority, "priority is echoed back locally")

	parentID := root.ID
	child, err := c.Create(ctx, service.NewTask{Title: "Book flights", ParentID: &parentID, IsCompleted: true})
	require.NoError(t, err)
	assert.NotEqual(t, root.ID, child.ID)

	list, err := c.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)

	assert.Equal(t, root.ID, list[0].ID, "IDs are stable across calls")
	assert.Equal(t, "summer", list[0].Description)
	assert.False(t, list[0].IsCompleted)
	require.NotNil(t, list[0].Deadline)
	assert.True(t, list[0].Deadline.Equal(deadline))
	assert.Equal(t, int64(1), list[0].Position)

	require.NotNil(t, list[1].ParentID)
	assert.Equal(t, root.ID, *list[1].ParentID)
	assert.True(t, list[1].IsCompleted)
	assert.Equal(t, service.StatusDone, list[1].Status)

	assert.Equal(t, "g1", api.items[1].Parent, "parent is sent as the Google ID")
}

func TestUpdate_PatchesAndMoves(t *testing.T) {
	ctx := context.Background()
	api := &fakeTasksAPI{}
	c, _ := newTestClient(t, api)

	a, err := c.Create(ctx, service.NewTask{Title: "a"})
	require.NoError(t, err)
	b, err := c.Create(ctx, service.NewTask{Title: "b"})
	require.NoError(t, err)

	title, done := "a, done", true
	parentID := b.ID
	updated, err := c.Update(ctx, a.ID, service.TaskPatch{Title: &title, IsCompleted: &done, ParentID: &parentID})
	require.NoError(t, err)
	assert.Equal(t, "a, done", updated.Title)
	assert.True(t, updated.IsCompleted)
	require.NotNil(t, updated.ParentID)
	assert.Equal(t, b.ID, *updated.ParentID)

	assert.Contains(t, api.calls, "POST /tasks/v1/lists/work/tasks/g1/move")

	// Same parent again: no move.
	api.calls = nil
	_, err = c.Update(ctx, a.ID, service.TaskPatch{ParentID: &parentID})
	require.NoError(t, err)
	assert.Equal(t, []string{"PATCH /tasks/v1/lists/work/tasks/g1"}, api.calls)

	moved, err := c.Update(ctx, a.ID, service.TaskPatch{ClearParent: true})
	require.NoError(t, err)
	assert.Nil(t, moved.ParentID)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	api := &fakeTasksAPI{}
	c, _ := newTestClient(t, api)

	created, err := c.Create(ctx, service.NewTask{Title: "gone soon"})
	require.NoError(t, err)
	require.NoError(t, c.Delete(ctx, created.ID))
	assert.Empty(t, api.items)

	err = c.Delete(ctx, created.ID)
	var te *service.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusNotFound, te.StatusCode)
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestUnknownLocalID(t *testing.T) {
	c, _ := newTestClient(t, &fakeTasksAPI{})

	err := c.Delete(context.Background(), 12345)
	assert.True(t, service.IsTransport(err))
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestErrors_Auth(t *testing.T) {
	api := &fakeTasksAPI{status: http.StatusUnauthorized}
	c, _ := newTestClient(t, api)

	_, err := c.List(context.Background())
	var te *service.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusUnauthorized, te.StatusCode)
	assert.Contains(t, err.Error(), "tasktree login")
}

func TestWrapError(t *testing.T) {
	assert.NoError(t, wrapError("list", nil))

	err := wrapError("list", fmt.Errorf("get: %w", context.DeadlineExceeded))
	var te *service.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "remote list: request timed out", err.Error())
}

func TestMergeLocal(t *testing.T) {
	c, _ := newTestClient(t, &fakeTasksAPI{})

	tests := []struct {
		name      string
		completed bool
		cached    service.Status
		want      service.Status
	}{
		{"keeps cached status", false, service.StatusBacklog, service.StatusBacklog},
		{"completed remotely", true, service.StatusInProgress, service.StatusDone},
		{"reopened remotely", false, service.StatusDone, service.StatusNotStarted},
		{"no cached status", false, "", service.StatusNotStarted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			remote := service.Task{ID: 5, Title: "remote title", IsCompleted: tt.completed}
			cached := service.Task{ID: 5, Title: "old title", Priority: 3, Status: tt.cached}

			got := c.MergeLocal(remote, cached)
			assert.Equal(t, "remote title", got.Title)
			assert.Equal(t, 3, got.Priority)
			assert.Equal(t, tt.want, got.Status)
		})
	}
}

func TestFetchAfterSync_KeepsLocalFields(t *testing.T) {
	ctx := context.Background()
	api := &fakeTasksAPI{}
	c, store := newTestClient(t, api)

	engine := syncer.New(store, c, syncer.WithLogger(logging.Discard()))
	svc := hierarchy.New(store, c, engine, hierarchy.WithLogger(logging.Discard()))

	added, err := svc.AddTask(ctx, service.NewTask{Title: "Write report", Priority: 7, Status: service.StatusInProgress})
	require.NoError(t, err)
	report, err := svc.Sync(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Applied)
	id := report.Remapped[added.ID]
	require.Positive(t, id)

	fetched, err := svc.FetchTasks(ctx)
	require.NoError(t, err)
	require.Len(t, fetched, 1)
	assert.Equal(t, id, fetched[0].ID)
	assert.Equal(t, 7, fetched[0].Priority)
	assert.Equal(t, service.StatusInProgress, fetched[0].Status)

	priority, status := 9, service.StatusCasual
	_, err = svc.UpdateTask(ctx, id, service.TaskPatch{Priority: &priority, Status: &status})
	require.NoError(t, err)
	_, err = svc.Sync(ctx)
	require.NoError(t, err)

	fetched, err = svc.FetchTasks(ctx)
	require.NoError(t, err)
	require.Len(t, fetched, 1)
	assert.Equal(t, 9, fetched[0].Priority)
	assert.Equal(t, service.StatusCasual, fetched[0].Status)

	cached, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 9, cached.Priority, "merged copy is written back")
	assert.Equal(t, service.StatusCasual, cached.Status)
}
