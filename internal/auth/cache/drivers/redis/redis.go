// Package redis is the shared cache driver. Counters and blocks stored here
// are visible to every instance of the service.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/shopauth/internal/auth/cache"
	goredis "github.com/redis/go-redis/v9"
)

// Options configures the client. Addrs with more than one entry selects a
// cluster client; MasterName selects a sentinel failover client.
type Options struct {
	Addrs      []string
	MasterName string
	Password   string
	DB         int
	Prefix     string
}

type Cache struct {
	rdb    goredis.UniversalClient
	prefix string
}

var _ cache.Cache = (*Cache)(nil)

func New(opts Options) *Cache {
	return NewFromClient(goredis.NewUniversalClient(&goredis.UniversalOptions{
		Addrs:      opts.Addrs,
		MasterName: opts.MasterName,
		Password:   opts.Password,
		DB:         opts.DB,
	}), opts.Prefix)
}

// NewFromClient wraps an existing client. Close closes the client.
func NewFromClient(rdb goredis.UniversalClient, prefix string) *Cache {
	return &Cache{rdb: rdb, prefix: prefix}
}

func (r *Cache) key(k string) string { return r.prefix + k }

func (r *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.rdb.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, cache.ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get %s: %w", key, err)
	}
	return b, nil
}

func (r *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := r.rdb.Set(ctx, r.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set %s: %w", key, err)
	}
	return nil
}

func (r *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	// one DEL per key so cluster mode never sees a cross-slot command
	pipe := r.rdb.Pipeline()
	for _, k := range keys {
		pipe.Del(ctx, r.key(k))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: del: %w", err)
	}
	return nil
}

// maxUpdateAttempts bounds the WATCH retries of one Update. Each failed
// round means some other writer committed, so it only runs out under
// sustained contention on a single key.
const maxUpdateAttempts = 64

// Update is an optimistic WATCH/MULTI/EXEC transaction on key, retried
// while another client modifies the key in between.
func (r *Cache) Update(ctx context.Context, key string, ttl time.Duration, fn cache.UpdateFunc) error {
	if ttl < 0 {
		ttl = 0
	}
	k := r.key(key)
	txf := func(tx *goredis.Tx) error {
		current, err := tx.Get(ctx, k).Bytes()
		found := true
		if errors.Is(err, goredis.Nil) {
			current, found = nil, false
		} else if err != nil {
			return err
		}

		next, write, err := fn(current, found)
		if err != nil || !write {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, k, next, ttl)
			return nil
		})
		return err
	}

	for range maxUpdateAttempts {
		err := r.rdb.Watch(ctx, txf, k)
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("redis: update %s: %w", key, err)
		}
		return nil
	}
	return fmt.Errorf("redis: update %s: %w", key, cache.ErrConflict)
}

func (r *Cache) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

func (r *Cache) Close() error { return r.rdb.Close() }
