package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/aussiebroadwan/shopauth/internal/auth/cache"
	"github.com/aussiebroadwan/shopauth/internal/auth/domain"
	"github.com/aussiebroadwan/shopauth/internal/auth/metrics"
	"github.com/aussiebroadwan/shopauth/pkg/slogx"
)

const (
	DefaultMaxFailedAttempts = 5
	DefaultBlockTime         = 300 * time.Second
	DefaultAttemptWindow     = 300 * time.Second

	bruteforceComponent = "bruteforce"
	ipAttemptsPrefix    = "bruteforce:attempts:ip:"
	idAttemptsPrefix    = "bruteforce:attempts:id:"
	blockPrefix         = "bruteforce:block:"
)

// GuardOptions configures a BruteforceGuard. Zero values take the defaults.
type GuardOptions struct {
	Enabled           bool
	MaxFailedAttempts int
	BlockTime         time.Duration
	AttemptWindow     time.Duration
	Policy            FailurePolicy
}

// DefaultGuardOptions is an enabled, fail-open guard with the stock limits.
func DefaultGuardOptions() GuardOptions {
	return GuardOptions{
		Enabled:           true,
		MaxFailedAttempts: DefaultMaxFailedAttempts,
		BlockTime:         DefaultBlockTime,
		AttemptWindow:     DefaultAttemptWindow,
		Policy:            FailOpen,
	}
}

// BruteforceGuard counts failed logins per ip and per ip+identifier in the
// cache and blocks an ip once either count reaches MaxFailedAttempts.
//
// Each increment is a single cache.Update, so concurrent failures are
// counted exactly on both drivers.
type BruteforceGuard struct {
	Cache   cache.Cache
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Clock   func() time.Time

	opts GuardOptions
}

func NewBruteforceGuard(c cache.Cache, opts GuardOptions, logger *slog.Logger, m *metrics.Metrics) *BruteforceGuard {
	if opts.MaxFailedAttempts <= 0 {
		opts.MaxFailedAttempts = DefaultMaxFailedAttempts
	}
	if opts.BlockTime <= 0 {
		opts.BlockTime = DefaultBlockTime
	}
	if opts.AttemptWindow <= 0 {
		opts.AttemptWindow = DefaultAttemptWindow
	}
	return &BruteforceGuard{Cache: c, Logger: logger, Metrics: m, Clock: time.Now, opts: opts}
}

func (g *BruteforceGuard) Options() GuardOptions { return g.opts }

func (g *BruteforceGuard) now() time.Time {
	if g.Clock == nil {
		return time.Now().UTC()
	}
	return g.Clock().UTC()
}

func ipKey(ip string) string { return ipAttemptsPrefix + ip }

// combinedKey lives in its own namespace and hashes the identifier, so no
// ip (IPv6 included) can collide with an ip+identifier pair.
func combinedKey(ip, identifier string) string {
	sum := sha256.Sum256([]byte(identifier))
	return idAttemptsPrefix + ip + "|" + hex.EncodeToString(sum[:])
}

func blockKey(ip string) string { return blockPrefix + ip }

func normalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

// disabled is the result reported when the guard is off, or when the cache
// fails under FailOpen.
func (g *BruteforceGuard) disabled() domain.AttemptResult {
	return domain.AttemptResult{RemainingAttempts: g.opts.MaxFailedAttempts}
}

func (g *BruteforceGuard) blockedResult(until time.Time, now time.Time) domain.AttemptResult {
	u := until
	return domain.AttemptResult{
		Attempts:          g.opts.MaxFailedAttempts,
		RemainingAttempts: 0,
		Blocked:           true,
		BlockedFor:        until.Sub(now),
		BlockedUntil:      &u,
	}
}

// degraded applies the policy to a cache failure.
func (g *BruteforceGuard) degraded(ctx context.Context, op string, err error) domain.AttemptResult {
	storeFailure(ctx, g.Logger, g.Metrics, bruteforceComponent, g.opts.Policy, op, err)
	if g.opts.Policy == FailOpen {
		return g.disabled()
	}
	now := g.now()
	return g.blockedResult(now.Add(g.opts.BlockTime), now)
}

// activeBlock returns the block expiry for ip, if one is in force. Expired
// or unreadable block records are deleted.
func (g *BruteforceGuard) activeBlock(ctx context.Context, ip string, now time.Time) (time.Time, bool, error) {
	raw, err := g.Cache.Get(ctx, blockKey(ip))
	if errors.Is(err, cache.ErrMiss) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}

	var block domain.IPBlock
	if jerr := json.Unmarshal(raw, &block); jerr != nil || !now.Before(block.BlockedUntil) {
		if derr := g.Cache.Delete(ctx, blockKey(ip)); derr != nil {
			return time.Time{}, false, derr
		}
		return time.Time{}, false, nil
	}
	return block.BlockedUntil, true, nil
}

// CheckIPBlocked reports whether ip is currently blocked. Under FailOpen a
// cache error reads as not blocked.
func (g *BruteforceGuard) CheckIPBlocked(ctx context.Context, ip string) bool {
	return g.BlockStatus(ctx, ip).Blocked
}

// BlockStatus is CheckIPBlocked plus the time left on the block and its
// expiry, both measured on the guard's clock.
func (g *BruteforceGuard) BlockStatus(ctx context.Context, ip string) domain.AttemptResult {
	if !g.opts.Enabled {
		return g.disabled()
	}
	now := g.now()
	until, blocked, err := g.activeBlock(ctx, ip, now)
	if err != nil {
		return g.degraded(ctx, "check_ip_blocked", err)
	}
	if !blocked {
		return g.disabled()
	}
	return g.blockedResult(until, now)
}

// increment bumps the counter at key by one and returns the new count.
// Missing and malformed payloads both count as zero.
func (g *BruteforceGuard) increment(ctx context.Context, key string, now time.Time) (int, error) {
	var count int
	err := g.Cache.Update(ctx, key, g.opts.AttemptWindow, func(current []byte, found bool) ([]byte, bool, error) {
		count = 0
		if found {
			var c domain.AttemptCounter
			if jerr := json.Unmarshal(current, &c); jerr != nil || c.Count < 0 {
				slogx.FromContextOr(ctx, g.Logger).Warn("resetting malformed attempt counter", "key", key)
			} else {
				count = c.Count
			}
		}
		count++
		raw, err := json.Marshal(domain.AttemptCounter{Count: count, LastAttemptAt: now})
		return raw, true, err
	})
	return count, err
}

// RecordFailedAttempt counts a failed login from ip for identifier (which
// may be empty). Reaching MaxFailedAttempts on either counter blocks the ip
// for BlockTime and clears the counters.
func (g *BruteforceGuard) RecordFailedAttempt(ctx context.Context, ip, identifier string) domain.AttemptResult {
	if !g.opts.Enabled {
		return g.disabled()
	}
	now := g.now()
	identifier = normalizeIdentifier(identifier)

	until, blocked, err := g.activeBlock(ctx, ip, now)
	if err != nil {
		return g.degraded(ctx, "record_failed_attempt", err)
	}
	if blocked {
		return g.blockedResult(until, now)
	}

	keys := []string{ipKey(ip)}
	if identifier != "" {
		keys = append(keys, combinedKey(ip, identifier))
	}

	attempts := 0
	for _, key := range keys {
		n, err := g.increment(ctx, key, now)
		if err != nil {
			return g.degraded(ctx, "record_failed_attempt", err)
		}
		attempts = max(attempts, n)
	}

	if attempts < g.opts.MaxFailedAttempts {
		return domain.AttemptResult{
			Attempts:          attempts,
			RemainingAttempts: g.opts.MaxFailedAttempts - attempts,
		}
	}

	until = now.Add(g.opts.BlockTime)
	raw, err := json.Marshal(domain.IPBlock{BlockedUntil: until})
	if err != nil {
		return g.degraded(ctx, "record_failed_attempt", err)
	}
	if err := g.Cache.Set(ctx, blockKey(ip), raw, g.opts.BlockTime); err != nil {
		return g.degraded(ctx, "record_failed_attempt", err)
	}
	if err := g.Cache.Delete(ctx, keys...); err != nil {
		// the block is already authoritative; stale counters just expire
		slogx.FromContextOr(ctx, g.Logger).Warn("failed to clear attempt counters", "ip", ip, "error", err)
	}

	g.Metrics.BruteforceBlock()
	slogx.FromContextOr(ctx, g.Logger).Warn("ip blocked after failed logins",
		"ip", ip, "attempts", attempts, "blocked_until", until)

	res := g.blockedResult(until, now)
	res.Attempts = attempts
	return res
}

// ResetAttempts clears the ip and ip+identifier counters after a
// successful login. It does not lift an active block.
func (g *BruteforceGuard) ResetAttempts(ctx context.Context, ip, identifier string) bool {
	if !g.opts.Enabled {
		return false
	}
	keys := []string{ipKey(ip)}
	if id := normalizeIdentifier(identifier); id != "" {
		keys = append(keys, combinedKey(ip, id))
	}
	if err := g.Cache.Delete(ctx, keys...); err != nil {
		storeFailure(ctx, g.Logger, g.Metrics, bruteforceComponent, g.opts.Policy, "reset_attempts", err)
		return false
	}
	return true
}

// Unblock removes an ip block and its counters. Operators use it through
// the CLI.
func (g *BruteforceGuard) Unblock(ctx context.Context, ip string) error {
	return g.Cache.Delete(ctx, blockKey(ip), ipKey(ip))
}
