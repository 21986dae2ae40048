// Package syncer replays the local mutation log against the remote task store.
//
// A pass reads every queued op, sorts it by enqueue time and sends it to the
// remote store one at a time. Failed ops are logged and skipped; by default
// they are gone after the pass, see Policy.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"tasktree/internal/service"
	"tasktree/internal/telemetry"
)

// DefaultInterval is the period of the background sync loop.
const DefaultInterval = 5 * time.Second

// DefaultMaxAttempts bounds how often a failing op is replayed under PolicyRequeue.
const DefaultMaxAttempts = 5

// Policy decides what happens to an op whose remote call failed.
type Policy string

const (
	// PolicyDrop discards the op after one failed attempt.
	PolicyDrop Policy = "drop"
	// PolicyRequeue puts the op back in its original place until it has
	// failed MaxAttempts times.
	PolicyRequeue Policy = "requeue"
)

// ParsePolicy parses a failed_ops setting. Empty means PolicyDrop.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyDrop:
		return PolicyDrop, nil
	case PolicyRequeue:
		return PolicyRequeue, nil
	}
	return "", fmt.Errorf("unknown failed-op policy %q (want drop or requeue)", s)
}

// Queue is the slice of the local cache the engine needs.
type Queue interface {
	DrainAll(ctx context.Context) ([]service.QueuedOp, error)
	ClearThrough(ctx context.Context, seq int64) error
	Acknowledge(ctx context.Context, seqs []int64) error
	Requeue(ctx context.Context, op service.QueuedOp) (int64, error)
	ResolveID(ctx context.Context, id int64) (int64, error)
	Remap(ctx context.Context, localID, remoteID int64) error
}

// Engine drains the mutation queue on a timer and on demand.
// Passes never overlap.
type Engine struct {
	remote service.RemoteTaskStore
	q      Queue
	logger *slog.Logger

	interval    time.Duration
	policy      Policy
	maxAttempts int

	trigger chan struct{}
	mu      sync.Mutex

	ops metric.Int64Counter
	dur metric.Float64Histogram
}

// Option configures an Engine.
type Option func(*Engine)

// WithInterval sets the period of the background loop.
func WithInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.interval = d
		}
	}
}

// WithLogger sets the logger used to report failed ops.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithPolicy sets the failed-op policy. maxAttempts <= 0 keeps the default.
func WithPolicy(p Policy, maxAttempts int) Option {
	return func(e *Engine) {
		e.policy = p
		if maxAttempts > 0 {
			e.maxAttempts = maxAttempts
		}
	}
}

// WithMeter records sync metrics on m instead of the global meter.
func WithMeter(m metric.Meter) Option {
	return func(e *Engine) { e.initMetrics(m) }
}

// New returns an engine replaying q against remote.
func New(q Queue, remote service.RemoteTaskStore, opts ...Option) *Engine {
	e := &Engine{
		remote:      remote,
		q:           q,
		logger:      slog.Default(),
		interval:    DefaultInterval,
		policy:      PolicyDrop,
		maxAttempts: DefaultMaxAttempts,
		trigger:     make(chan struct{}, 1),
	}
	e.initMetrics(telemetry.Meter("tasktree/syncer"))
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) initMetrics(m metric.Meter) {
	e.ops, _ = m.Int64Counter("tasktree.sync.ops",
		metric.WithDescription("Queued ops replayed against the remote store, by outcome"),
	)
	e.dur, _ = m.Float64Histogram("tasktree.sync.drain.duration",
		metric.WithDescription("Duration of a drain pass"),
		metric.WithUnit("s"),
	)
}

// Trigger requests a pass as soon as possible. Calls made while a request
// is already waiting coalesce into it.
func (e *Engine) Trigger() {
	select {
	case e.trigger <- struct{}{}:
	default:
	}
}

// Run drains the queue every interval and on Trigger until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-e.trigger:
		}
		if _, err := e.Drain(ctx); err != nil && ctx.Err() == nil {
			e.logger.Warn("sync pass failed", "err", err)
		}
	}
}

// Drain runs one pass over the queue. The returned error covers reading and
// clearing the queue; per-op remote failures are reported in SyncReport.
func (e *Engine) Drain(ctx context.Context) (service.SyncReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	report := service.SyncReport{Remapped: make(map[int64]int64)}
	defer func() {
		report.Duration = time.Since(start)
		e.dur.Record(ctx, report.Duration.Seconds())
	}()

	ops, err := e.q.DrainAll(ctx)
	if err != nil {
		return report, err
	}
	if len(ops) == 0 {
		return report, nil
	}
	e.logger.Debug("sync pass", "ops", len(ops))

	var (
		maxSeq int64
		done   []int64
		retry  []service.QueuedOp
	)
	for _, op := range ops {
		if ctx.Err() != nil {
			break
		}
		report.Attempted++
		done = append(done, op.Seq)
		maxSeq = max(maxSeq, op.Seq)

		err := e.apply(ctx, op, &report)
		if err != nil && ctx.Err() != nil {
			// interrupted, not failed: leave it for the next pass
			report.Attempted--
			done = done[:len(done)-1]
			break
		}
		if err == nil {
			report.Applied++
			e.count(ctx, "applied")
			continue
		}

		e.logger.Warn("queued op failed",
			"op", op.Operation, "task", op.Data.ID, "seq", op.Seq, "attempt", op.Attempts+1, "err", err)
		report.Failures = append(report.Failures, service.OpFailure{Op: op, Err: err})
		e.count(ctx, "failed")
		if e.policy == PolicyRequeue && op.Attempts+1 < e.maxAttempts {
			retry = append(retry, op)
		}
	}

	// Bookkeeping must land even when ctx was cancelled mid-pass.
	bg := context.WithoutCancel(ctx)
	if len(done) == len(ops) {
		err = e.q.ClearThrough(bg, maxSeq)
	} else {
		err = e.q.Acknowledge(bg, done)
	}
	if err != nil {
		return report, err
	}

	for _, op := range retry {
		op.Attempts++
		if _, err := e.q.Requeue(bg, op); err != nil {
			return report, err
		}
		report.Requeued++
		e.count(ctx, "requeued")
	}

	return report, ctx.Err()
}

func (e *Engine) count(ctx context.Context, outcome string) {
	e.ops.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// errUnconfirmed is returned for ops on a temporary ID whose create never
// reached the remote store.
var errUnconfirmed = errors.New("task was never created remotely")

func (e *Engine) apply(ctx context.Context, op service.QueuedOp, report *service.SyncReport) error {
	task := op.Data
	id, err := e.q.ResolveID(ctx, task.ID)
	if err != nil {
		return err
	}
	if task.ParentID != nil {
		parentID, err := e.q.ResolveID(ctx, *task.ParentID)
		if err != nil {
			return err
		}
		task.ParentID = &parentID
	}

	switch op.Operation {
	case service.OpCreate:
		if id != task.ID {
			// already confirmed by an earlier pass
			return nil
		}
		created, err := e.remote.Create(ctx, service.NewTaskFrom(task))
		if err != nil {
			return err
		}
		if task.IsLocal() {
			if err := e.q.Remap(ctx, task.ID, created.ID); err != nil {
				return err
			}
			report.Remapped[task.ID] = created.ID
		}
		return nil

	case service.OpUpdate:
		if id < 0 {
			return errUnconfirmed
		}
		_, err := e.remote.Update(ctx, id, service.FullPatch(task))
		return err

	case service.OpDelete:
		if id < 0 {
			// nothing to delete remotely
			return nil
		}
		return e.remote.Delete(ctx, id)
	}
	return fmt.Errorf("unknown operation %q", op.Operation)
}
