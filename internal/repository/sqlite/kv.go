package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sakif/brewfolio/internal/apperror"
	"github.com/sakif/brewfolio/internal/repository"
)

// Compile-time check: if DB ever stops satisfying the interface the build
// breaks here rather than in server wiring.
var _ repository.KVStore = (*DB)(nil)

// Get returns the entry stored under key.
//
// sql.ErrNoRows just means "no matching row"; it is translated to the app's
// NotFound error so callers can treat it as a cache miss.
func (db *DB) Get(ctx context.Context, key string) (*repository.Entry, error) {
	e := repository.Entry{Key: key}
	err := db.conn.QueryRowContext(ctx,
		`SELECT value, updated_at FROM kv_entries WHERE key = ?`,
		key,
	).Scan(&e.Value, &e.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("cache entry", key)
		}
		return nil, fmt.Errorf("sqlite: getting %s: %w", key, err)
	}
	return &e, nil
}

// Set inserts or replaces the value under key in a single statement.
func (db *DB) Set(ctx context.Context, key string, value []byte) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO kv_entries (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key succeeds.
func (db *DB) Delete(ctx context.Context, key string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM kv_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("sqlite: deleting %s: %w", key, err)
	}
	return nil
}
