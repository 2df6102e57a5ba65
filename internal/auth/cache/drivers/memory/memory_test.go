package memory_test

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/shopauth/internal/auth/cache"
	"github.com/aussiebroadwan/shopauth/internal/auth/cache/drivers/memory"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	c := memory.New(time.Minute)
	t.Cleanup(func() { _ = c.Close() })

	_, err := c.Get(ctx, "k")
	require.ErrorIs(t, err, cache.ErrMiss)

	val := []byte("v1")
	require.NoError(t, c.Set(ctx, "k", val, 0))
	val[0] = 'x'

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "v1", string(got), "stored value is a copy")

	require.NoError(t, c.Delete(ctx, "k", "never-set"))
	_, err = c.Get(ctx, "k")
	require.ErrorIs(t, err, cache.ErrMiss)
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c := memory.New(time.Minute)

	require.NoError(t, c.Set(ctx, "short", []byte("1"), 20*time.Millisecond))
	require.Eventually(t, func() bool {
		_, err := c.Get(ctx, "short")
		return err == cache.ErrMiss
	}, time.Second, 10*time.Millisecond)
}

func TestMemoryCacheUpdateIsAtomic(t *testing.T) {
	ctx := context.Background()
	c := memory.New(time.Minute)
	t.Cleanup(func() { _ = c.Close() })

	const workers = 50
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

	got, err := c.Get(ctx, "n")
	require.NoError(t, err)
	require.Equal(t, strconv.Itoa(workers), string(got))

	require.NoError(t, c.Update(ctx, "n", time.Minute, func(cur []byte, found bool) ([]byte, bool, error) {
		require.True(t, found)
		return nil, false, nil
	}))
	got, err = c.Get(ctx, "n")
	require.NoError(t, err)
	require.Equal(t, strconv.Itoa(workers), string(got), "write=false keeps the value")
}

func incr(current []byte, found bool) ([]byte, bool, error) {
	n := 0
	if found {
		n, _ = strconv.Atoi(string(current))
	}
	return []byte(strconv.Itoa(n + 1)), true, nil
}
