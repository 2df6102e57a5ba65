package httpx_test

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/aussiebroadwan/shopauth/pkg/httpx"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func requestFrom(addr string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = addr
	return req
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		trust   bool
		want    string
	}{
		{name: "remote addr", want: "192.168.1.1"},
		{name: "ignores XFF when untrusted", headers: map[string]string{"X-Forwarded-For": "203.0.113.1"}, want: "192.168.1.1"},
		{name: "XFF first hop", headers: map[string]string{"X-Forwarded-For": "203.0.113.1, 10.0.0.1"}, trust: true, want: "203.0.113.1"},
		{name: "X-Real-IP", headers: map[string]string{"X-Real-IP": "203.0.113.2"}, trust: true, want: "203.0.113.2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := requestFrom("192.168.1.1:12345")
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			require.Equal(t, tt.want, httpx.ClientIP(req, tt.trust))
		})
	}
}

func TestCompositeKeyExtractor(t *testing.T) {
	req := requestFrom("192.168.1.1:12345")
	key := httpx.CompositeKeyExtractor(":", httpx.UserIDKeyExtractor, httpx.IPKeyExtractor(false))(req)
	require.Equal(t, "192.168.1.1", key, "empty parts are skipped")
}

func TestRateLimitMiddleware(t *testing.T) {
	t.Run("blocks requests over limit", func(t *testing.T) {
		h := httpx.RateLimitByIP(httpx.RateLimitConfig{RequestsPerWindow: 3, Window: time.Minute, Burst: 3}, false)(okHandler())

		for i := range 3 {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, requestFrom("192.168.1.1:1"))
			require.Equal(t, http.StatusOK, rec.Code, "request %d", i+1)
		}

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, requestFrom("192.168.1.1:1"))
		require.Equal(t, http.StatusTooManyRequests, rec.Code)
		require.Equal(t, "3", rec.Header().Get("X-RateLimit-Limit"))

		retry, err := strconv.Atoi(rec.Header().Get("Retry-After"))
		require.NoError(t, err)
		require.GreaterOrEqual(t, retry, 1)
		require.JSONEq(t, `{"error":"rate_limit_exceeded","error_description":"Too many requests. Please try again later."}`, rec.Body.String())
	})

	t.Run("keys are tracked separately", func(t *testing.T) {
		h := httpx.RateLimitByIP(httpx.RateLimitConfig{RequestsPerWindow: 1, Window: time.Minute, Burst: 1}, false)(okHandler())

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, requestFrom("10.0.0.1:1"))
		require.Equal(t, http.StatusOK, rec.Code)

		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, requestFrom("10.0.0.1:1"))
		require.Equal(t, http.StatusTooManyRequests, rec.Code)

		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, requestFrom("10.0.0.2:1"))
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("empty key passes through", func(t *testing.T) {
		h := httpx.RateLimitMiddleware(httpx.RateLimitConfig{RequestsPerWindow: 1, Window: time.Minute, Burst: 1},
			func(*http.Request) string { return "" })(okHandler())
		for range 3 {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, requestFrom("10.0.0.1:1"))
			require.Equal(t, http.StatusOK, rec.Code)
		}
	})
}

func TestRateLimiterAllow(t *testing.T) {
	rl := httpx.NewRateLimiter(httpx.RateLimitConfig{RequestsPerWindow: 60, Window: time.Minute, Burst: 1}, nil)

	ok, _ := rl.Allow("k")
	require.True(t, ok)

	ok, delay := rl.Allow("k")
	require.False(t, ok)
	require.Greater(t, delay, time.Duration(0))
	require.LessOrEqual(t, delay, time.Second)
}

func TestParseRateLimitFromEnv(t *testing.T) {
	def := httpx.RateLimitConfig{RequestsPerWindow: 10, Window: time.Minute, Burst: 10}

	tests := []struct {
		name string
		env  map[string]string
		want httpx.RateLimitConfig
	}{
		{name: "defaults", want: def},
		{
			name: "all overrides",
			env:  map[string]string{"RATELIMIT_TEST_REQUESTS": "200", "RATELIMIT_TEST_WINDOW_SEC": "30", "RATELIMIT_TEST_BURST": "250"},
			want: httpx.RateLimitConfig{RequestsPerWindow: 200, Window: 30 * time.Second, Burst: 250},
		},
		{
			name: "invalid values ignored",
			env:  map[string]string{"RATELIMIT_TEST_REQUESTS": "invalid", "RATELIMIT_TEST_WINDOW_SEC": "-10", "RATELIMIT_TEST_BURST": "0"},
			want: def,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			require.Equal(t, tt.want, httpx.ParseRateLimitFromEnv("TEST", def))
		})
	}
}
