// Package hierarchy implements service.Service on top of the local cache,
// the tree builder and the sync engine.
//
// Mutations are optimistic: they land in the cache and the in-memory tree
// immediately and are queued for the remote store. Nothing here waits for
// a drain pass.
package hierarchy

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"tasktree/internal/service"
	"tasktree/internal/tree"
)

// PositionStep is the gap left between sibling positions on create.
const PositionStep = 1000

// ResumeCooldown is the minimum time between two Resume refreshes.
const ResumeCooldown = 2 * time.Second

// Cache is the slice of the local cache the service needs.
type Cache interface {
	ListAll(ctx context.Context) ([]service.Task, error)
	Get(ctx context.Context, id int64) (service.Task, error)
	Put(ctx context.Context, task service.Task) error
	PutMany(ctx context.Context, tasks []service.Task) error
	RemoveMany(ctx context.Context, ids []int64) error
	Enqueue(ctx context.Context, op service.QueuedOp) (int64, error)
	DrainAll(ctx context.Context) ([]service.QueuedOp, error)
	PendingIDs(ctx context.Context) (mutated, deleted map[int64]bool, err error)
	NextLocalID(ctx context.Context) (int64, error)
	ResolveID(ctx context.Context, id int64) (int64, error)
	Close() error
}

// Syncer runs drain passes over the mutation queue.
type Syncer interface {
	Drain(ctx context.Context) (service.SyncReport, error)
	Trigger()
	Run(ctx context.Context) error
}

// Service is the hierarchy façade. Safe for concurrent use.
type Service struct {
	cache  Cache
	remote service.RemoteTaskStore
	engine Syncer
	logger *slog.Logger
	now    func() time.Time

	mu         sync.Mutex
	nodes      []service.Task // Organize output
	loaded     bool
	lastResume time.Time
}

var _ service.Service = (*Service)(nil)

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger for offline warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New returns a Service. The service owns cache and closes it in Close.
func New(cache Cache, remote service.RemoteTaskStore, engine Syncer, opts ...Option) *Service {
	s := &Service{
		cache:  cache,
		remote: remote,
		engine: engine,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// load materializes the tree from the cache once, then brings temporary
// IDs up to date with any remap a drain pass recorded since. Callers hold s.mu.
func (s *Service) load(ctx context.Context) error {
	if !s.loaded {
		cached, err := s.cache.ListAll(ctx)
		if err != nil {
			return err
		}
		s.nodes = tree.Organize(cached)
		s.loaded = true
		return nil
	}
	return s.resolveNodes(ctx)
}

// resolveNodes rewrites temporary IDs and parent IDs in s.nodes to the
// canonical IDs they were confirmed as.
func (s *Service) resolveNodes(ctx context.Context) error {
	changed := false
	nodes := slices.Clone(s.nodes)
	for i, t := range nodes {
		if t.IsLocal() {
			id, err := s.cache.ResolveID(ctx, t.ID)
			if err != nil {
				return err
			}
			if id != t.ID {
				nodes[i].ID = id
				changed = true
			}
		}
		if t.ParentID != nil && *t.ParentID < 0 {
			parentID, err := s.cache.ResolveID(ctx, *t.ParentID)
			if err != nil {
				return err
			}
			if parentID != *t.ParentID {
				nodes[i].ParentID = &parentID
				changed = true
			}
		}
	}
	if changed {
		s.nodes = tree.Organize(nodes)
	}
	return nil
}

func (s *Service) snapshot() []service.Task {
	return slices.Clone(s.nodes)
}

// FetchTasks implements service.Service.
//
// Remote tasks win, except for tasks with a queued op (the cached copy
// wins) and tasks queued for deletion (dropped with their remote
// descendants). Fields a remote cannot store are carried over from the cache
// when it implements service.LocalFieldKeeper. Cached tasks the remote does not know are kept while they
// are local-only or have a queued op, and evicted otherwise. When the remote
// is unreachable the cache alone is used.
func (s *Service) FetchTasks(ctx context.Context) ([]service.Task, error) {
	remoteTasks, remoteErr := s.remote.List(ctx)
	if remoteErr != nil && !service.IsTransport(remoteErr) {
		return nil, remoteErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cached, err := s.cache.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	if remoteErr != nil {
		s.logger.Warn("remote unreachable, showing cached tasks", "err", remoteErr)
		s.nodes = tree.Organize(cached)
		s.loaded = true
		return s.snapshot(), nil
	}

	mutated, deleted, err := s.cache.PendingIDs(ctx)
	if err != nil {
		return nil, err
	}

	// Deleting a task removes its remote subtree too.
	dropped := make(map[int64]bool, len(deleted))
	remoteTree := tree.Organize(remoteTasks)
	for id := range deleted {
		for _, d := range tree.Subtree(remoteTree, id) {
			dropped[d] = true
		}
	}

	cachedByID := make(map[int64]service.Task, len(cached))
	for _, t := range cached {
		cachedByID[t.ID] = t
	}

	keeper, _ := s.remote.(service.LocalFieldKeeper)

	var (
		merged    []service.Task
		writeBack []service.Task
		evict     []int64
		seen      = make(map[int64]bool, len(remoteTasks))
	)
	for _, r := range remoteTasks {
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		if dropped[r.ID] || deleted[r.ID] {
			if _, ok := cachedByID[r.ID]; ok {
				evict = append(evict, r.ID)
			}
			continue
		}
		local, ok := cachedByID[r.ID]
		if ok && mutated[r.ID] {
			merged = append(merged, local)
			continue
		}
		if ok && keeper != nil {
			r = keeper.MergeLocal(r, local)
		}
		merged = append(merged, r)
		writeBack = append(writeBack, r)
	}
	for _, c := range cached {
		if seen[c.ID] {
			continue
		}
		if c.IsLocal() || mutated[c.ID] {
			merged = append(merged, c)
			continue
		}
		evict = append(evict, c.ID)
	}

	if err := s.cache.PutMany(ctx, writeBack); err != nil {
		return nil, err
	}
	if err := s.cache.RemoveMany(ctx, evict); err != nil {
		return nil, err
	}

	s.nodes = tree.Organize(merged)
	s.loaded = true
	return s.snapshot(), nil
}

// Tree implements service.Service.
func (s *Service) Tree(ctx context.Context) ([]service.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(ctx); err != nil {
		return nil, err
	}
	return s.snapshot(), nil
}

// AddTask implements service.Service.
// A parent that does not exist is kept as given; the task shows as a root.
func (s *Service) AddTask(ctx context.Context, input service.NewTask) (service.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(ctx); err != nil {
		return service.Task{}, err
	}

	if input.ParentID != nil {
		parentID, err := s.cache.ResolveID(ctx, *input.ParentID)
		if err != nil {
			return service.Task{}, err
		}
		input.ParentID = &parentID
	}

	id, err := s.cache.NextLocalID(ctx)
	if err != nil {
		return service.Task{}, err
	}

	now := s.now().UTC()
	task := service.Task{
		ID:          id,
		Title:       input.Title,
		Description: input.Description,
		IsCompleted: input.IsCompleted,
		ParentID:    input.ParentID,
		Priority:    input.Priority,
		Status:      input.Status,
		Position:    input.Position,
		Deadline:    input.Deadline,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if task.Status == "" {
		task.Status = service.StatusNotStarted
	}
	if task.Position == 0 {
		task.Position = s.nextPosition(task.ParentID)
	}

	nodes := tree.Organize(append(slices.Clone(s.nodes), task))
	task = findNode(nodes, task.ID, task)

	if err := s.cache.Put(ctx, task); err != nil {
		return service.Task{}, err
	}
	if _, err := s.cache.Enqueue(ctx, service.QueuedOp{Operation: service.OpCreate, Data: task, EnqueuedAt: now}); err != nil {
		return service.Task{}, err
	}

	s.nodes = nodes
	return task, nil
}

// nextPosition returns one step past the largest sibling position.
func (s *Service) nextPosition(parentID *int64) int64 {
	var maxPos int64
	for _, t := range s.nodes {
		if sameParent(t.ParentID, parentID) {
			maxPos = max(maxPos, t.Position)
		}
	}
	return maxPos + PositionStep
}

func sameParent(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// findNode returns the materialized copy of id (Level set), or fallback.
func findNode(nodes []service.Task, id int64, fallback service.Task) service.Task {
	if i := slices.IndexFunc(nodes, func(t service.Task) bool { return t.ID == id }); i >= 0 {
		return nodes[i]
	}
	return fallback
}

// UpdateTask implements service.Service.
func (s *Service) UpdateTask(ctx context.Context, id int64, patch service.TaskPatch) (service.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(ctx); err != nil {
		return service.Task{}, err
	}

	id, err := s.cache.ResolveID(ctx, id)
	if err != nil {
		return service.Task{}, err
	}
	current, err := s.cache.Get(ctx, id)
	if err != nil {
		return service.Task{}, err
	}

	if !patch.ClearParent && patch.ParentID != nil {
		parentID, err := s.cache.ResolveID(ctx, *patch.ParentID)
		if err != nil {
			return service.Task{}, err
		}
		if parentID == id || tree.IsDescendant(s.nodes, id, parentID) {
			return service.Task{}, fmt.Errorf("move task %d under %d: %w", id, parentID, service.ErrCycle)
		}
		patch.ParentID = &parentID
	}

	updated := patch.Apply(current)
	updated.UpdatedAt = s.now().UTC()

	nodes := slices.Clone(s.nodes)
	if i := slices.IndexFunc(nodes, func(t service.Task) bool { return t.ID == id }); i >= 0 {
		nodes[i] = updated
	} else {
		nodes = append(nodes, updated)
	}
	nodes = tree.Organize(nodes)
	updated = findNode(nodes, id, updated)

	if err := s.cache.Put(ctx, updated); err != nil {
		return service.Task{}, err
	}
	if _, err := s.cache.Enqueue(ctx, service.QueuedOp{Operation: service.OpUpdate, Data: updated, EnqueuedAt: updated.UpdatedAt}); err != nil {
		return service.Task{}, err
	}

	s.nodes = nodes
	return updated, nil
}

// DeleteTask implements service.Service.
// The task and all its descendants leave the cache at once; a single delete
// op is queued for the task itself since the remote store cascades.
func (s *Service) DeleteTask(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(ctx); err != nil {
		return err
	}

	id, err := s.cache.ResolveID(ctx, id)
	if err != nil {
		return err
	}
	closure := tree.Subtree(s.nodes, id)
	if len(closure) == 0 {
		return nil
	}

	if err := s.cache.RemoveMany(ctx, closure); err != nil {
		return err
	}
	op := service.QueuedOp{Operation: service.OpDelete, Data: service.Task{ID: id}, EnqueuedAt: s.now().UTC()}
	if _, err := s.cache.Enqueue(ctx, op); err != nil {
		return err
	}

	gone := make(map[int64]bool, len(closure))
	for _, d := range closure {
		gone[d] = true
	}
	s.nodes = slices.DeleteFunc(slices.Clone(s.nodes), func(t service.Task) bool { return gone[t.ID] })
	return nil
}

// Pending implements service.Service.
func (s *Service) Pending(ctx context.Context) ([]service.QueuedOp, error) {
	return s.cache.DrainAll(ctx)
}

// Sync implements service.Service. After the pass the tree is refreshed
// from the remote; a failed refresh is only logged.
func (s *Service) Sync(ctx context.Context) (service.SyncReport, error) {
	report, err := s.engine.Drain(ctx)
	if err != nil {
		return report, err
	}
	if _, err := s.FetchTasks(ctx); err != nil {
		s.logger.Debug("refresh after sync failed", "err", err)
	}
	return report, nil
}

// Resume implements service.Service. It requests a sync pass and refreshes
// the tree, at most once per ResumeCooldown.
func (s *Service) Resume(ctx context.Context) {
	s.mu.Lock()
	now := s.now()
	if !s.lastResume.IsZero() && now.Sub(s.lastResume) < ResumeCooldown {
		s.mu.Unlock()
		return
	}
	s.lastResume = now
	s.mu.Unlock()

	s.engine.Trigger()
	if _, err := s.FetchTasks(ctx); err != nil {
		s.logger.Debug("refresh on resume failed", "err", err)
	}
}

// RunSync implements service.Service.
func (s *Service) RunSync(ctx context.Context) error {
	return s.engine.Run(ctx)
}

// Close implements service.Service.
func (s *Service) Close() error {
	return s.cache.Close()
}
