package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"tasktree/internal/service"
)

// Enqueue appends a mutation to the ops log and returns its sequence ID.
// A zero EnqueuedAt is stamped with the current time.
func (c *Cache) Enqueue(ctx context.Context, op service.QueuedOp) (int64, error) {
	if !op.Operation.Valid() {
		return 0, storageErr("enqueue", fmt.Errorf("invalid operation %q", op.Operation))
	}
	if op.EnqueuedAt.IsZero() {
		op.EnqueuedAt = c.now()
	}

	data, err := json.Marshal(op.Data)
	if err != nil {
		return 0, storageErr("enqueue", err)
	}

	res, err := c.db.ExecContext(ctx,
		"INSERT INTO ops_log (operation, data, enqueued_at, attempts) VALUES (?, ?, ?, ?)",
		string(op.Operation), string(data), op.EnqueuedAt.UnixNano(), op.Attempts)
	if err != nil {
		return 0, storageErr("enqueue", err)
	}
	seq, err := res.LastInsertId()
	return seq, storageErr("enqueue", err)
}

// Requeue appends op again with its original timestamp so it keeps its
// place in replay order.
func (c *Cache) Requeue(ctx context.Context, op service.QueuedOp) (int64, error) {
	op.Seq = 0
	return c.Enqueue(ctx, op)
}

// DrainAll returns every queued op ordered by enqueue time, then sequence.
// The log is left untouched; see ClearQueue and ClearThrough.
func (c *Cache) DrainAll(ctx context.Context) ([]service.QueuedOp, error) {
	rows, err := c.db.QueryContext(ctx,
		"SELECT seq, operation, data, enqueued_at, attempts FROM ops_log ORDER BY enqueued_at, seq")
	if err != nil {
		return nil, storageErr("drain", err)
	}
	defer rows.Close()

	var ops []service.QueuedOp
	for rows.Next() {
		var (
			op         service.QueuedOp
			operation  string
			data       string
			enqueuedAt int64
		)
		if err := rows.Scan(&op.Seq, &operation, &data, &enqueuedAt, &op.Attempts); err != nil {
			return nil, storageErr("drain", err)
		}
		if err := json.Unmarshal([]byte(data), &op.Data); err != nil {
			return nil, storageErr("drain", fmt.Errorf("op %d: %w", op.Seq, err))
		}
		op.Operation = service.Operation(operation)
		op.EnqueuedAt = time.Unix(0, enqueuedAt)
		ops = append(ops, op)
	}
	return ops, storageErr("drain", rows.Err())
}

// ClearQueue removes every queued op.
func (c *Cache) ClearQueue(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, "DELETE FROM ops_log")
	return storageErr("clear queue", err)
}

// ClearThrough removes queued ops with a sequence ID up to and including
// seq. Ops appended after a drain started survive for the next pass.
func (c *Cache) ClearThrough(ctx context.Context, seq int64) error {
	_, err := c.db.ExecContext(ctx, "DELETE FROM ops_log WHERE seq <= ?", seq)
	return storageErr("clear queue", err)
}

// PendingIDs returns the task IDs touched by queued ops, split into
// deletions and other mutations.
func (c *Cache) PendingIDs(ctx context.Context) (mutated, deleted map[int64]bool, err error) {
	ops, err := c.DrainAll(ctx)
	if err != nil {
		return nil, nil, err
	}
	mutated = make(map[int64]bool)
	deleted = make(map[int64]bool)
	for _, op := range ops {
		id := op.Data.ID
		if resolved, err := c.ResolveID(ctx, id); err == nil {
			id = resolved
		}
		if op.Operation == service.OpDelete {
			deleted[id] = true
			delete(mutated, id)
			continue
		}
		if !deleted[id] {
			mutated[id] = true
		}
	}
	return mutated, deleted, nil
}

// Acknowledge removes the queued ops with the given sequence IDs.
func (c *Cache) Acknowledge(ctx context.Context, seqs []int64) error {
	if len(seqs) == 0 {
		return nil
	}
	return c.withTx(ctx, "clear queue", func(tx *sql.Tx) error {
		for _, seq := range seqs {
			if _, err := tx.ExecContext(ctx, "DELETE FROM ops_log WHERE seq = ?", seq); err != nil {
				return err
			}
		}
		return nil
	})
}
