// Package cache implements the local durable task cache and mutation log
// on SQLite.
//
// Writes to the tasks table and the matching ops_log append are separate
// statements. A crash between the two keeps the optimistic task state and
// loses the sync intent; callers accept this gap.
package cache

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "modernc.org/sqlite"

	"tasktree/internal/service"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - tasks, ops_log, id_remap, remote_refs, meta
const currentSchemaVersion = 1

// memoryPath opens a throwaway in-memory cache.
const memoryPath = ":memory:"

// openMaxElapsed bounds how long Open keeps retrying a locked database.
const openMaxElapsed = 10 * time.Second

// Cache is the local durable store of task nodes plus the pending
// operations log. Safe for concurrent use; statements serialize on a
// single connection.
type Cache struct {
	db  *sql.DB
	now func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the clock used for default timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// Open creates or opens the cache database at path.
// Use ":memory:" for a throwaway cache.
//
// Opening retries with exponential backoff while the file is locked by
// another process.
func Open(ctx context.Context, path string, opts ...Option) (*Cache, error) {
	if path == "" {
		return nil, &service.StorageError{Op: "open", Err: errors.New("cache path is required")}
	}

	var db *sql.DB
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = openMaxElapsed
	err := backoff.Retry(func() error {
		var err error
		db, err = openDB(ctx, path)
		if err != nil && isBusy(err) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		return nil, &service.StorageError{Op: "open", Err: err}
	}

	c := &Cache{db: db, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func openDB(ctx context.Context, path string) (*sql.DB, error) {
	if path != memoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// One connection: keeps ":memory:" databases alive and avoids
	// SQLITE_BUSY between our own statements.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := applyPragmas(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := applySchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version < currentSchemaVersion {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}
	return nil
}

func isBusy(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "sqlite_busy")
}

// Close closes the database.
func (c *Cache) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &service.StorageError{Op: op, Err: err}
}

func (c *Cache) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr(op, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return storageErr(op, err)
	}
	return storageErr(op, tx.Commit())
}
