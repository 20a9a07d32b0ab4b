// Package redis implements cache.Store on Redis. Read-once retrieval uses
// GETDEL, so concurrent pollers of one key never both receive the value.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/hupe1980/brokermesh/cache"
)

// Options configures a Store.
type Options struct {
	// TTL expires entries that are never collected. Zero keeps them forever.
	TTL time.Duration
}

// Store is a cache.Store backed by a Redis client.
type Store struct {
	client goredis.UniversalClient
	ttl    time.Duration
	owned  bool
}

// New wraps an existing client. Close does not close it.
func New(client goredis.UniversalClient, optFns ...func(o *Options)) *Store {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Store{client: client, ttl: opts.TTL}
}

// Open connects to the Redis server at url (redis://host:port/db) and
// verifies the connection with PING.
func Open(ctx context.Context, url string, optFns ...func(o *Options)) (*Store, error) {
	ro, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	client := goredis.NewClient(ro)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	s := New(client, optFns...)
	s.owned = true
	return s, nil
}

// Set implements cache.Store.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, key, value, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set %s: %w", key, err)
	}
	return nil
}

// Take implements cache.Store.
func (s *Store) Take(ctx context.Context, key string) ([]byte, error) {
	v, err := s.client.GetDel(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, cache.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis: getdel %s: %w", key, err)
	}
	return v, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the client if the store opened it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}
