// Package memory is an in-process cache backed by go-cache. State is local
// to the process, so it only suits single-instance deployments and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/aussiebroadwan/shopauth/internal/auth/cache"
	gocache "github.com/patrickmn/go-cache"
)

// Cache serializes writes with mu so Update is atomic against Set and
// Delete. Reads go straight to go-cache.
type Cache struct {
	mu sync.Mutex
	c  *gocache.Cache
}

var _ cache.Cache = (*Cache)(nil)

// New returns an empty cache that sweeps expired entries every cleanup.
func New(cleanup time.Duration) *Cache {
	if cleanup <= 0 {
		cleanup = time.Minute
	}
	return &Cache{c: gocache.New(gocache.NoExpiration, cleanup)}
}

func (m *Cache) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := m.c.Get(key)
	if !ok {
		return nil, cache.ErrMiss
	}
	b, _ := v.([]byte)
	return append([]byte(nil), b...), nil
}

func (m *Cache) set(key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	m.c.Set(key, append([]byte(nil), value...), ttl)
}

func (m *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.set(key, value, ttl)
	return nil
}

func (m *Cache) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		m.c.Delete(k)
	}
	return nil
}

func (m *Cache) Update(_ context.Context, key string, ttl time.Duration, fn cache.UpdateFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var current []byte
	v, found := m.c.Get(key)
	if found {
		b, _ := v.([]byte)
		current = append([]byte(nil), b...)
	}
	next, write, err := fn(current, found)
	if err != nil || !write {
		return err
	}
	m.set(key, next, ttl)
	return nil
}

func (m *Cache) Ping(context.Context) error { return nil }

func (m *Cache) Close() error {
	m.c.Flush()
	return nil
}

// Len reports the number of live entries.
func (m *Cache) Len() int { return m.c.ItemCount() }
