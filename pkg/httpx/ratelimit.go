package httpx

import (
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/shopauth/pkg/slogx"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// RateLimitConfig defines the rate limiting parameters.
type RateLimitConfig struct {
	// RequestsPerWindow is the number of requests allowed in the time window
	RequestsPerWindow int
	// Window is the time window for rate limiting
	Window time.Duration
	// Burst allows for temporary bursts above the rate limit
	Burst int
}

// Default profiles. Override per deployment with ParseRateLimitFromEnv.
var (
	// StrictLimit guards credential endpoints.
	StrictLimit = RateLimitConfig{RequestsPerWindow: 5, Window: time.Minute, Burst: 5}

	// ModerateLimit for authenticated operations.
	ModerateLimit = RateLimitConfig{RequestsPerWindow: 20, Window: time.Minute, Burst: 20}

	// LenientLimit for health and other cheap endpoints.
	LenientLimit = RateLimitConfig{RequestsPerWindow: 100, Window: time.Minute, Burst: 100}

	// PublicLimit for public read-only endpoints such as the JWKS.
	PublicLimit = RateLimitConfig{RequestsPerWindow: 1000, Window: time.Minute, Burst: 1000}
)

// RateLimitProfiles groups the four profiles used by the router.
type RateLimitProfiles struct {
	Strict   RateLimitConfig
	Moderate RateLimitConfig
	Lenient  RateLimitConfig
	Public   RateLimitConfig
}

// ProfilesFromEnv returns the default profiles with RATELIMIT_* overrides applied.
func ProfilesFromEnv() RateLimitProfiles {
	return RateLimitProfiles{
		Strict:   ParseRateLimitFromEnv("STRICT", StrictLimit),
		Moderate: ParseRateLimitFromEnv("MODERATE", ModerateLimit),
		Lenient:  ParseRateLimitFromEnv("LENIENT", LenientLimit),
		Public:   ParseRateLimitFromEnv("PUBLIC", PublicLimit),
	}
}

// ParseRateLimitFromEnv reads rate limit configuration from environment variables.
// Environment variables follow the pattern: RATELIMIT_{prefix}_{field}
// For example: RATELIMIT_STRICT_REQUESTS, RATELIMIT_STRICT_WINDOW_SEC, RATELIMIT_STRICT_BURST
func ParseRateLimitFromEnv(prefix string, defaultConfig RateLimitConfig) RateLimitConfig {
	config := defaultConfig

	if n, ok := positiveEnv("RATELIMIT_" + prefix + "_REQUESTS"); ok {
		config.RequestsPerWindow = n
	}
	if n, ok := positiveEnv("RATELIMIT_" + prefix + "_WINDOW_SEC"); ok {
		config.Window = time.Duration(n) * time.Second
	}
	if n, ok := positiveEnv("RATELIMIT_" + prefix + "_BURST"); ok {
		config.Burst = n
	}
	return config
}

func positiveEnv(key string) (int, bool) {
	n, err := strconv.Atoi(os.Getenv(key))
	return n, err == nil && n > 0
}

// KeyExtractor is a function that extracts a unique key from the request
// for rate limiting purposes (e.g., IP address, user ID, client ID, etc.)
type KeyExtractor func(*http.Request) string

// ClientIP returns the caller's address. Proxy headers are only honoured
// when trustProxy is set; otherwise anyone could pick their own key.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			return xri
		}
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// IPKeyExtractor keys requests by client IP.
func IPKeyExtractor(trustProxy bool) KeyExtractor {
	return func(r *http.Request) string { return ClientIP(r, trustProxy) }
}

// UserIDKeyExtractor extracts the user ID from the request context.
// Returns empty string if no user ID is found.
func UserIDKeyExtractor(r *http.Request) string {
	return UserIDFromContext(r.Context())
}

// CompositeKeyExtractor combines multiple key extractors with a separator.
func CompositeKeyExtractor(sep string, extractors ...KeyExtractor) KeyExtractor {
	return func(r *http.Request) string {
		var parts []string
		for _, extractor := range extractors {
			if key := extractor(r); key != "" {
				parts = append(parts, key)
			}
		}
		return strings.Join(parts, sep)
	}
}

// RateLimiter holds one token bucket per key. Buckets live in a go-cache
// and are evicted once they would have refilled completely, so an evicted
// bucket and a fresh one are indistinguishable.
type RateLimiter struct {
	config  RateLimitConfig
	key     KeyExtractor
	limit   rate.Limit
	ttl     time.Duration
	buckets *gocache.Cache
}

func NewRateLimiter(config RateLimitConfig, key KeyExtractor) *RateLimiter {
	if config.Window <= 0 {
		config.Window = time.Minute
	}
	if config.RequestsPerWindow <= 0 {
		config.RequestsPerWindow = 1
	}
	if config.Burst <= 0 {
		config.Burst = config.RequestsPerWindow
	}

	perSecond := float64(config.RequestsPerWindow) / config.Window.Seconds()
	refill := time.Duration(float64(config.Burst) / perSecond * float64(time.Second))
	ttl := max(refill, config.Window) + time.Minute

	return &RateLimiter{
		config:  config,
		key:     key,
		limit:   rate.Limit(perSecond),
		ttl:     ttl,
		buckets: gocache.New(ttl, ttl),
	}
}

func (rl *RateLimiter) bucket(key string) *rate.Limiter {
	if v, ok := rl.buckets.Get(key); ok {
		return v.(*rate.Limiter)
	}
	lim := rate.NewLimiter(rl.limit, rl.config.Burst)
	if err := rl.buckets.Add(key, lim, rl.ttl); err != nil {
		// lost a race with another request for the same key
		if v, ok := rl.buckets.Get(key); ok {
			return v.(*rate.Limiter)
		}
	}
	return lim
}

// Allow reports whether a request for key may proceed and, if not, how
// long the caller should wait.
func (rl *RateLimiter) Allow(key string) (bool, time.Duration) {
	lim := rl.bucket(key)
	if lim.Allow() {
		return true, 0
	}
	res := lim.Reserve()
	delay := res.Delay()
	res.Cancel()
	return false, delay
}

// Middleware returns the HTTP middleware for this limiter.
func (rl *RateLimiter) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := slogx.FromContext(r.Context())

			key := rl.key(r)
			if key == "" {
				log.Warn("rate limit: unable to extract key, allowing request")
				next.ServeHTTP(w, r)
				return
			}

			ok, delay := rl.Allow(key)
			if !ok {
				retryAfter := max(int(delay.Seconds()+0.5), 1)

				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.config.RequestsPerWindow))
				w.Header().Set("X-RateLimit-Window", rl.config.Window.String())

				log.Warn("rate limit exceeded", "key", key, "endpoint", r.URL.Path, "retry_after", retryAfter)

				WriteError(w, http.StatusTooManyRequests, "rate_limit_exceeded", "Too many requests. Please try again later.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitMiddleware creates a rate limiting middleware with the given configuration.
func RateLimitMiddleware(config RateLimitConfig, keyExtractor KeyExtractor) Middleware {
	return NewRateLimiter(config, keyExtractor).Middleware()
}

// RateLimitByIP limits by client IP.
func RateLimitByIP(config RateLimitConfig, trustProxy bool) Middleware {
	return RateLimitMiddleware(config, IPKeyExtractor(trustProxy))
}

// RateLimitByUser limits by authenticated user, falling back to IP.
func RateLimitByUser(config RateLimitConfig, trustProxy bool) Middleware {
	return RateLimitMiddleware(config, CompositeKeyExtractor(":",
		UserIDKeyExtractor,
		IPKeyExtractor(trustProxy),
	))
}
