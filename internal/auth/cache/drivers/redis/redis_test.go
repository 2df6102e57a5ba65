package redis_test

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aussiebroadwan/shopauth/internal/auth/cache"
	"github.com/aussiebroadwan/shopauth/internal/auth/cache/drivers/redis"
	"github.com/stretchr/testify/require"
)

func newCache(t *testing.T) (*redis.Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := redis.New(redis.Options{Addrs: []string{mr.Addr()}, Prefix: "shopauth:"})
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestRedisCache(t *testing.T) {
	ctx := context.Background()
	c, mr := newCache(t)

	require.NoError(t, c.Ping(ctx))

	_, err := c.Get(ctx, "k")
	require.ErrorIs(t, err, cache.ErrMiss)

	require.NoError(t, c.Set(ctx, "k", []byte(`{"count":1}`), time.Minute))
	require.True(t, mr.Exists("shopauth:k"), "keys are prefixed")
	require.Equal(t, time.Minute, mr.TTL("shopauth:k"))

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.JSONEq(t, `{"count":1}`, string(got))

	mr.FastForward(2 * time.Minute)
	_, err = c.Get(ctx, "k")
	require.ErrorIs(t, err, cache.ErrMiss)
}

func TestRedisCacheDelete(t *testing.T) {
	ctx := context.Background()
	c, mr := newCache(t)

	require.NoError(t, c.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), 0))
	require.NoError(t, c.Delete(ctx, "a", "b", "missing"))
	require.False(t, mr.Exists("shopauth:a"))
	require.False(t, mr.Exists("shopauth:b"))
	require.NoError(t, c.Delete(ctx))
}

func TestRedisCacheUnavailable(t *testing.T) {
	ctx := context.Background()
	c, mr := newCache(t)
	mr.Close()

	_, err := c.Get(ctx, "k")
	require.Error(t, err)
	require.NotErrorIs(t, err, cache.ErrMiss)
	require.Error(t, c.Ping(ctx))
}

func TestRedisCacheUpdateIsAtomic(t *testing.T) {
	ctx := context.Background()
	c, mr := newCache(t)

	const workers = 20
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- c.Update(ctx, "n", time.Minute, incr)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := mr.Get("shopauth:n")
	require.NoError(t, err)
	require.Equal(t, strconv.Itoa(workers), got)
	require.Equal(t, time.Minute, mr.TTL("shopauth:n"))
}

func TestRedisCacheUpdateSkipsWrite(t *testing.T) {
	ctx := context.Background()
	c, mr := newCache(t)

	require.NoError(t, c.Update(ctx, "k", time.Minute, func([]byte, bool) ([]byte, bool, error) {
		return []byte("x"), false, nil
	}))
	require.False(t, mr.Exists("shopauth:k"))
}

func incr(current []byte, found bool) ([]byte, bool, error) {
	n := 0
	if found {
		n, _ = strconv.Atoi(string(current))
	}
	return []byte(strconv.Itoa(n + 1)), true, nil
}
