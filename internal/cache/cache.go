// Package cache is the Snapshot Cache: one storage key holding the last
// complete portfolio snapshot, with a fixed freshness window measured from the
// snapshot's capture timestamp.
//
// The cache is an optimisation. Storage and decode failures are logged and
// reported as a miss, never returned to the caller.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/sakif/brewfolio/internal/apperror"
	"github.com/sakif/brewfolio/internal/model"
	"github.com/sakif/brewfolio/internal/repository"
)

// SnapshotCache reads and writes the single snapshot slot in a KVStore.
type SnapshotCache struct {
	store  repository.KVStore
	key    string
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

func New(store repository.KVStore, key string, ttl time.Duration, logger *slog.Logger) *SnapshotCache {
	return &SnapshotCache{
		store:  store,
		key:    key,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// Read returns the stored snapshot only while now - Timestamp < TTL.
func (c *SnapshotCache) Read(ctx context.Context) (*model.Snapshot, bool) {
	snap, ok := c.load(ctx)
	if !ok {
		return nil, false
	}
	if c.now().Sub(snap.Timestamp) >= c.ttl {
		return nil, false
	}
	return snap, true
}

// ReadStale returns the stored snapshot regardless of its age.
func (c *SnapshotCache) ReadStale(ctx context.Context) (*model.Snapshot, bool) {
	return c.load(ctx)
}

// Write replaces the stored snapshot. Failures are logged and swallowed.
func (c *SnapshotCache) Write(ctx context.Context, snap *model.Snapshot) {
	b, err := json.Marshal(snap)
	if err != nil {
		c.logger.Error("encoding snapshot", slog.String("error", err.Error()))
		return
	}
	if err := c.store.Set(ctx, c.key, b); err != nil {
		c.logger.Warn("writing snapshot cache",
			slog.String("key", c.key),
			slog.String("error", err.Error()),
		)
	}
}

// Clear deletes the stored snapshot.
func (c *SnapshotCache) Clear(ctx context.Context) {
	if err := c.store.Delete(ctx, c.key); err != nil {
		c.logger.Warn("clearing snapshot cache",
			slog.String("key", c.key),
			slog.String("error", err.Error()),
		)
	}
}

func (c *SnapshotCache) load(ctx context.Context) (*model.Snapshot, bool) {
	entry, err := c.store.Get(ctx, c.key)
	if err != nil {
		if !errors.Is(err, apperror.ErrNotFound) {
			c.logger.Warn("reading snapshot cache",
				slog.String("key", c.key),
				slog.String("error", err.Error()),
			)
		}
		return nil, false
	}

	snap, err := decode(c.key, entry.Value)
	if err != nil {
		// Drop it so the next pass starts clean.
		c.logger.Warn("discarding unreadable snapshot", slog.String("error", err.Error()))
		c.Clear(ctx)
		return nil, false
	}
	return snap, true
}

// decode rejects anything that does not look like a snapshot written by Write.
// A value that parses as JSON but has no capture time or user is also a miss.
func decode(key string, b []byte) (*model.Snapshot, error) {
	var snap model.Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return nil, apperror.CacheDecode(key, err)
	}
	if snap.Timestamp.IsZero() || snap.User.Login == "" {
		return nil, apperror.CacheDecode(key, errors.New("incomplete snapshot"))
	}
	return &snap, nil
}
