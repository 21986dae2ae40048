package cache

import (
	"context"
	"database/sql"
	"errors"

	"tasktree/internal/service"
)

// LocalID returns the integer handle for a backend's opaque task ID,
// allocating one on first sight.
func (c *Cache) LocalID(ctx context.Context, remoteRef string) (int64, error) {
	var id int64
	err := c.withTx(ctx, "ref", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO remote_refs (remote_id) VALUES (?) ON CONFLICT(remote_id) DO NOTHING", remoteRef); err != nil {
			return err
		}
		return tx.QueryRowContext(ctx, "SELECT id FROM remote_refs WHERE remote_id = ?", remoteRef).Scan(&id)
	})
	return id, err
}

// RemoteRef returns the backend's opaque ID for an integer handle, or
// service.ErrNotFound if the handle was never allocated.
func (c *Cache) RemoteRef(ctx context.Context, id int64) (string, error) {
	var ref string
	err := c.db.QueryRowContext(ctx, "SELECT remote_id FROM remote_refs WHERE id = ?", id).Scan(&ref)
	if errors.Is(err, sql.ErrNoRows) {
		return "", service.ErrNotFound
	}
	return ref, storageErr("ref", err)
}
