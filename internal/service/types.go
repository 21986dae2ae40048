// Package service defines the backend-agnostic types and interfaces for task operations.
package service

import "time"

// Status is the workflow state of a task. Only root ordering depends on it.
type Status string

const (
	StatusInProgress Status = "in-progress"
	StatusNotStarted Status = "not-started"
	StatusCasual     Status = "casual"
	StatusBacklog    Status = "backlog"
	StatusDone       Status = "done"
)

// Task is a single node of the task forest.
// Negative IDs are temporary client-side IDs not yet confirmed by the remote store.
type Task struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	IsCompleted bool       `json:"is_completed"`
	ParentID    *int64     `json:"parent_id,omitempty"`
	Level       int        `json:"level"` // recomputed by tree.Organize, never trusted
	Priority    int        `json:"priority"`
	Status      Status     `json:"status,omitempty"`
	Position    int64      `json:"position,omitempty"`
	Deadline    *time.Time `json:"deadline,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// IsLocal reports whether the task only exists on this client so far.
func (t Task) IsLocal() bool {
	return t.ID < 0
}

// HasParent reports whether the task declares a parent.
func (t Task) HasParent() bool {
	return t.ParentID != nil
}

// NewTask is the payload for creating a task.
type NewTask struct {
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	IsCompleted bool       `json:"is_completed"`
	ParentID    *int64     `json:"parent_id,omitempty"`
	Level       int        `json:"level"`
	Priority    int        `json:"priority"`
	Status      Status     `json:"status,omitempty"`
	Position    int64      `json:"position,omitempty"`
	Deadline    *time.Time `json:"deadline,omitempty"`
}

// NewTaskFrom builds a creation payload from an existing task.
func NewTaskFrom(t Task) NewTask {
	return NewTask{
		Title:       t.Title,
		Description: t.Description,
		IsCompleted: t.IsCompleted,
		ParentID:    t.ParentID,
		Level:       t.Level,
		Priority:    t.Priority,
		Status:      t.Status,
		Position:    t.Position,
		Deadline:    t.Deadline,
	}
}

// TaskPatch is a partial update. Nil fields are left untouched.
// ClearParent moves the task to the root level and wins over ParentID.
type TaskPatch struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	IsCompleted *bool      `json:"is_completed,omitempty"`
	ParentID    *int64     `json:"parent_id,omitempty"`
	ClearParent bool       `json:"-"`
	Priority    *int       `json:"priority,omitempty"`
	Status      *Status    `json:"status,omitempty"`
	Position    *int64     `json:"position,omitempty"`
	Deadline    *time.Time `json:"deadline,omitempty"`
}

// Apply returns a copy of t with the patch merged in.
func (p TaskPatch) Apply(t Task) Task {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.IsCompleted != nil {
		t.IsCompleted = *p.IsCompleted
	}
	if p.ClearParent {
		t.ParentID = nil
	} else if p.ParentID != nil {
		parentID := *p.ParentID
		t.ParentID = &parentID
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Position != nil {
		t.Position = *p.Position
	}
	if p.Deadline != nil {
		deadline := *p.Deadline
		t.Deadline = &deadline
	}
	return t
}

// FullPatch returns a patch that sets every mutable field of t.
// Used when replaying an update whose payload is the whole merged task.
func FullPatch(t Task) TaskPatch {
	p := TaskPatch{
		Title:       &t.Title,
		Description: &t.Description,
		IsCompleted: &t.IsCompleted,
		Priority:    &t.Priority,
		Status:      &t.Status,
		Position:    &t.Position,
		Deadline:    t.Deadline,
	}
	if t.ParentID == nil {
		p.ClearParent = true
	} else {
		p.ParentID = t.ParentID
	}
	return p
}

// Operation is the kind of a queued mutation.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Valid reports whether op is one of the known operations.
func (op Operation) Valid() bool {
	switch op {
	case OpCreate, OpUpdate, OpDelete:
		return true
	}
	return false
}

// QueuedOp is one entry of the durable mutation log.
type QueuedOp struct {
	Seq        int64
	Operation  Operation
	Data       Task
	EnqueuedAt time.Time
	Attempts   int
}

// OpFailure records a queued op whose remote call failed during a drain pass.
type OpFailure struct {
	Op  QueuedOp
	Err error
}

// SyncReport summarizes one drain pass.
type SyncReport struct {
	Attempted int
	Applied   int
	Failures  []OpFailure
	Requeued  int
	Remapped  map[int64]int64 // temporary ID -> canonical ID
	Duration  time.Duration
}

// Failed returns the number of ops whose remote call failed.
func (r SyncReport) Failed() int {
	return len(r.Failures)
}
