// Package cache provides the key/value store behind the async result path.
//
// Entries have read-once semantics: Take returns a value and deletes it in
// one atomic step, so each key can be collected by at most one reader.
// Implementations:
//   - InMemoryStore: volatile, process local
//   - redis.Store: Redis via SET and GETDEL
package cache

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned by Take when no entry exists for the key.
var ErrNotFound = errors.New("cache: entry not found")

// Store is a shared key/value space with atomic read-once retrieval.
type Store interface {
	// Set writes value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error
	// Take returns the value under key and deletes it atomically. It fails
	// with ErrNotFound when the key is absent.
	Take(ctx context.Context, key string) ([]byte, error)
}

// Key builds the namespaced key "<purpose>:<identity>". Colons inside
// purpose are kept, so "recommendation:v2" namespaces further.
func Key(purpose, identity string) string {
	return strings.TrimSuffix(purpose, ":") + ":" + identity
}
