package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"tasktree/internal/service"
)

const localIDKey = "next_local_id"

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func putTask(ctx context.Context, db execer, task service.Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}

	var parentID sql.NullInt64
	if task.ParentID != nil {
		parentID = sql.NullInt64{Int64: *task.ParentID, Valid: true}
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO tasks (id, parent_id, created_at, data) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET parent_id = excluded.parent_id, data = excluded.data
	`, task.ID, parentID, unixNano(task.CreatedAt), string(data))
	return err
}

// unixNano maps the zero time to 0 so undated tasks sort first.
func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

// Put upserts a task.
func (c *Cache) Put(ctx context.Context, task service.Task) error {
	return storageErr("put", putTask(ctx, c.db, task))
}

// PutMany upserts tasks in one transaction.
func (c *Cache) PutMany(ctx context.Context, tasks []service.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	return c.withTx(ctx, "put", func(tx *sql.Tx) error {
		for _, task := range tasks {
			if err := putTask(ctx, tx, task); err != nil {
				return err
			}
		}
		return nil
	})
}

// Get returns the cached task with the given ID or service.ErrNotFound.
func (c *Cache) Get(ctx context.Context, id int64) (service.Task, error) {
	var data string
	err := c.db.QueryRowContext(ctx, "SELECT data FROM tasks WHERE id = ?", id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return service.Task{}, service.ErrNotFound
	}
	if err != nil {
		return service.Task{}, storageErr("get", err)
	}

	var task service.Task
	if err := json.Unmarshal([]byte(data), &task); err != nil {
		return service.Task{}, storageErr("get", err)
	}
	return task, nil
}

// Remove deletes a task. Removing an unknown ID is not an error.
func (c *Cache) Remove(ctx context.Context, id int64) error {
	_, err := c.db.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id)
	return storageErr("remove", err)
}

// RemoveMany deletes several tasks in one transaction.
func (c *Cache) RemoveMany(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	return c.withTx(ctx, "remove", func(tx *sql.Tx) error {
		for _, id := range ids {
			if _, err := tx.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListAll returns every cached task in creation order.
func (c *Cache) ListAll(ctx context.Context) ([]service.Task, error) {
	return c.queryTasks(ctx, "list", "SELECT data FROM tasks ORDER BY created_at, id")
}

// Children returns the cached tasks whose parent is parentID.
func (c *Cache) Children(ctx context.Context, parentID int64) ([]service.Task, error) {
	return c.queryTasks(ctx, "children",
		"SELECT data FROM tasks WHERE parent_id = ? ORDER BY created_at, id", parentID)
}

func (c *Cache) queryTasks(ctx context.Context, op, query string, args ...any) ([]service.Task, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr(op, err)
	}
	defer rows.Close()

	var tasks []service.Task
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, storageErr(op, err)
		}
		var task service.Task
		if err := json.Unmarshal([]byte(data), &task); err != nil {
			return nil, storageErr(op, err)
		}
		tasks = append(tasks, task)
	}
	return tasks, storageErr(op, rows.Err())
}

// NextLocalID allocates a temporary task ID. Temporary IDs are negative
// and never reused, even after the task is deleted or remapped.
func (c *Cache) NextLocalID(ctx context.Context) (int64, error) {
	var id int64
	err := c.withTx(ctx, "allocate id", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO meta (key, value) VALUES (?, -1) ON CONFLICT(key) DO UPDATE SET value = value - 1",
			localIDKey); err != nil {
			return err
		}
		return tx.QueryRowContext(ctx, "SELECT value FROM meta WHERE key = ?", localIDKey).Scan(&id)
	})
	return id, err
}

// Remap records that the temporary localID is now remoteID on the remote
// store, and rewrites the cached task and its children to the new ID.
func (c *Cache) Remap(ctx context.Context, localID, remoteID int64) error {
	return c.withTx(ctx, "remap", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO id_remap (local_id, remote_id) VALUES (?, ?) ON CONFLICT(local_id) DO UPDATE SET remote_id = excluded.remote_id",
			localID, remoteID); err != nil {
			return err
		}

		var data string
		err := tx.QueryRowContext(ctx, "SELECT data FROM tasks WHERE id = ?", localID).Scan(&data)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			// deleted locally before the create was confirmed
		case err != nil:
			return err
		default:
			var task service.Task
			if err := json.Unmarshal([]byte(data), &task); err != nil {
				return err
			}
			task.ID = remoteID
			if _, err := tx.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", localID); err != nil {
				return err
			}
			if err := putTask(ctx, tx, task); err != nil {
				return err
			}
		}

		rows, err := tx.QueryContext(ctx, "SELECT data FROM tasks WHERE parent_id = ?", localID)
		if err != nil {
			return err
		}
		var children []service.Task
		for rows.Next() {
			var data string
			if err := rows.Scan(&data); err != nil {
				rows.Close()
				return err
			}
			var child service.Task
			if err := json.Unmarshal([]byte(data), &child); err != nil {
				rows.Close()
				return err
			}
			children = append(children, child)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, child := range children {
			parentID := remoteID
			child.ParentID = &parentID
			if err := putTask(ctx, tx, child); err != nil {
				return err
			}
		}
		return nil
	})
}

// ResolveID returns the canonical ID for id if it was a remapped temporary
// ID, or id unchanged.
func (c *Cache) ResolveID(ctx context.Context, id int64) (int64, error) {
	if id >= 0 {
		return id, nil
	}
	var remoteID int64
	err := c.db.QueryRowContext(ctx, "SELECT remote_id FROM id_remap WHERE local_id = ?", id).Scan(&remoteID)
	if errors.Is(err, sql.ErrNoRows) {
		return id, nil
	}
	if err != nil {
		return id, storageErr("resolve id", err)
	}
	return remoteID, nil
}
