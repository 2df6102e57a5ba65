package jwtx_test

import (
	"crypto/rsa"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/shopauth/pkg/cryptox"
	"github.com/aussiebroadwan/shopauth/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

// RSA generation dominates test time, so a small pool is generated once
// and handed out round-robin.
var (
	poolOnce sync.Once
	pool     []*rsa.PrivateKey
)

func testKeys(t *testing.T) []*rsa.PrivateKey {
	t.Helper()
	poolOnce.Do(func() {
		for range 6 {
			k, err := cryptox.GenerateRSA(2048)
			if err != nil {
				panic(err)
			}
			pool = append(pool, k)
		}
	})
	return pool
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// newManager returns an initialized KeyManager that draws keys from the pool.
func newManager(t *testing.T, clock *fakeClock, minRetention time.Duration) *jwtx.KeyManager {
	t.Helper()
	keys := testKeys(t)

	var (
		mu   sync.Mutex
		next int
	)
	km := jwtx.NewKeyManager(jwtx.KeyManagerOptions{
		MinRetention: minRetention,
		Clock:        clock.Now,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		Generate: func() (*rsa.PrivateKey, error) {
			mu.Lock()
			defer mu.Unlock()
			k := keys[next%len(keys)]
			next++
			return k, nil
		},
	})
	require.NoError(t, km.Initialize(jwtx.KeySource{AllowGenerate: true}))
	return km
}
