// Package service defines the backend-agnostic types and interfaces for task operations.
package service

import "context"

// RemoteTaskStore is the narrow contract of the canonical task store.
// Commands never talk to it directly; only the sync engine and the
// hierarchy service do.
type RemoteTaskStore interface {
	// List returns every task known to the remote store.
	List(ctx context.Context) ([]Task, error)

	// Create stores a new task. The returned task carries the canonical ID.
	Create(ctx context.Context, payload NewTask) (Task, error)

	// Update applies a partial update and returns the stored task.
	Update(ctx context.Context, id int64, patch TaskPatch) (Task, error)

	// Delete removes a task. The remote store cascades to descendants.
	Delete(ctx context.Context, id int64) error
}

// Service is the façade the CLI talks to.
// Mutations are applied optimistically to the local cache and queued for sync.
type Service interface {
	// FetchTasks merges the remote list with locally known tasks and
	// returns the ordered tree (pre-order, Level set).
	FetchTasks(ctx context.Context) ([]Task, error)

	// Tree returns the current materialized tree without contacting the remote.
	Tree(ctx context.Context) ([]Task, error)

	// AddTask creates a task under input.ParentID (nil for a root).
	AddTask(ctx context.Context, input NewTask) (Task, error)

	// UpdateTask merges patch into the task with the given ID.
	UpdateTask(ctx context.Context, id int64, patch TaskPatch) (Task, error)

	// DeleteTask removes the task and all its descendants.
	// Deleting an unknown ID is a no-op.
	DeleteTask(ctx context.Context, id int64) error

	// Pending returns the queued mutations in replay order.
	Pending(ctx context.Context) ([]QueuedOp, error)

	// Sync runs one drain pass of the mutation queue.
	Sync(ctx context.Context) (SyncReport, error)

	// Resume is called when the client regains the foreground.
	Resume(ctx context.Context)

	// RunSync runs the periodic sync loop until ctx is cancelled.
	RunSync(ctx context.Context) error

	// Close releases the local cache.
	Close() error
}

// LocalFieldKeeper is implemented by remote stores that cannot hold every
// task field. MergeLocal returns remote with those fields taken from cached.
type LocalFieldKeeper interface {
	MergeLocal(remote, cached Task) Task
}
