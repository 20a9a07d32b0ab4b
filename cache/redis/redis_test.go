package redis

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/brokermesh/cache"
)

var _ cache.Store = (*Store)(nil)

func newStore(t *testing.T, optFns ...func(o *Options)) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s, err := Open(context.Background(), "redis://"+mr.Addr()+"/0", optFns...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestStore_ReadOnce(t *testing.T) {
	ctx := context.Background()
	s, mr := newStore(t)

	key := cache.Key("recommendation", "u-1")
	_, err := s.Take(ctx, key)
	assert.ErrorIs(t, err, cache.ErrNotFound)

	require.NoError(t, s.Set(ctx, key, []byte(`{"status":"ready"}`)))
	got, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, `{"status":"ready"}`, got)

	v, err := s.Take(ctx, key)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ready"}`, string(v))
	assert.False(t, mr.Exists(key))

	_, err = s.Take(ctx, key)
	assert.ErrorIs(t, err, cache.ErrNotFound)
}

func TestStore_TTL(t *testing.T) {
	ctx := context.Background()
	s, mr := newStore(t, func(o *Options) { o.TTL = time.Minute })

	require.NoError(t, s.Set(ctx, "recommendation:u-2", []byte("x")))
	assert.Equal(t, time.Minute, mr.TTL("recommendation:u-2"))

	mr.FastForward(2 * time.Minute)
	_, err := s.Take(ctx, "recommendation:u-2")
	assert.ErrorIs(t, err, cache.ErrNotFound)
}

func TestStore_SingleWinner(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	require.NoError(t, s.Set(ctx, "k", []byte("v")))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Take(ctx, "k"); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestStore_BorrowedClientNotClosed(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()

	s := New(client)
	require.NoError(t, s.Close())
	assert.NoError(t, client.Ping(context.Background()).Err())
}

func TestOpen_Errors(t *testing.T) {
	_, err := Open(context.Background(), "not a url")
	assert.Error(t, err)

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = Open(ctx, "redis://"+addr)
	assert.Error(t, err)
}
