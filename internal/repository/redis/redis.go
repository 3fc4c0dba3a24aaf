// Package redis implements repository.KVStore on a Redis server, for
// deployments where several instances share one snapshot.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/sakif/brewfolio/internal/apperror"
	"github.com/sakif/brewfolio/internal/repository"
)

var _ repository.KVStore = (*Store)(nil)

type Options struct {
	Addr     string
	Password string
	DB       int
}

// Store keeps each entry as a JSON record so the write time travels with the
// value. Keys never expire on the Redis side; freshness is decided by the cache
// layer, which also needs to read stale entries.
type Store struct {
	client *goredis.Client
}

type record struct {
	Value     []byte    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New connects and pings the server.
func New(ctx context.Context, opts Options) (*Store, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis: connecting to %s: %w", opts.Addr, err)
	}
	return &Store{client: rdb}, nil
}

func (s *Store) Get(ctx context.Context, key string) (*repository.Entry, error) {
	raw, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, apperror.NotFound("cache entry", key)
		}
		return nil, fmt.Errorf("redis: getting %s: %w", key, err)
	}

	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, apperror.CacheDecode(key, err)
	}
	return &repository.Entry{Key: key, Value: rec.Value, UpdatedAt: rec.UpdatedAt}, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	raw, err := json.Marshal(record{Value: value, UpdatedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("redis: encoding %s: %w", key, err)
	}
	if err := s.client.Set(ctx, key, raw, 0).Err(); err != nil {
		return fmt.Errorf("redis: setting %s: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis: deleting %s: %w", key, err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.client.Close()
}
