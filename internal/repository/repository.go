// Package repository defines the storage contract used by the snapshot cache.
//
// The portfolio only ever persists one thing: a serialized snapshot under a
// well-known key. The contract is therefore a plain key-value store, with two
// implementations in sub-packages: sqlite (default, single file on disk) and
// redis (shared between several server instances).
package repository

import (
	"context"
	"time"
)

// Entry is a stored value together with the time it was last written.
type Entry struct {
	Key       string
	Value     []byte
	UpdatedAt time.Time
}

// KVStore is implemented by every storage backend.
//
// Get returns apperror.ErrNotFound when the key has never been written or
// has been deleted. Set overwrites any existing value. Delete of a missing
// key is not an error.
type KVStore interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}
