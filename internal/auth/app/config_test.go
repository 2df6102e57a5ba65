package app

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/shopauth/internal/auth/service"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, "shopauth", cfg.Issuer)
	require.Equal(t, 15*time.Minute, cfg.AccessTokenTTL)
	require.Equal(t, 7*24*time.Hour, cfg.RefreshTokenTTL)
	require.Equal(t, "sqlite", cfg.StoreDriver)
	require.Equal(t, "memory", cfg.CacheDriver)
	require.True(t, cfg.AllowEphemeralKeys)
	require.True(t, cfg.BruteforceEnabled)
	require.Equal(t, 5, cfg.MaxFailedAttempts)
	require.Equal(t, 300*time.Second, cfg.BlockTime)
	require.Equal(t, service.FailOpen, cfg.BruteforcePolicy)
	require.Zero(t, cfg.KeyRotationInterval)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("AUTH_ISSUER", "shop-test")
	t.Setenv("AUTH_BLOCK_TIME", "120")
	t.Setenv("AUTH_ATTEMPT_WINDOW", "10m")
	t.Setenv("AUTH_CACHE_DRIVER", "redis")
	t.Setenv("AUTH_REDIS_ADDR", "redis-a:6379, redis-b:6379")
	t.Setenv("AUTH_SINGLE_SESSION", "true")
	t.Setenv("AUTH_BRUTEFORCE_FAILURE_POLICY", "closed")
	t.Setenv("TRUSTED_PROXY_HEADERS", "1")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, "shop-test", cfg.Issuer)
	require.Equal(t, 2*time.Minute, cfg.BlockTime)
	require.Equal(t, 10*time.Minute, cfg.AttemptWindow)
	require.Equal(t, []string{"redis-a:6379", "redis-b:6379"}, cfg.RedisAddrs)
	require.True(t, cfg.SingleSession)
	require.True(t, cfg.TrustProxy)
	require.Equal(t, service.FailClosed, cfg.BruteforcePolicy)
}

func TestLoadConfigFileFillsUnsetKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
AUTH_ISSUER: from-file
AUTH_AUDIENCE: shop-api
AUTH_MAX_FAILED_ATTEMPTS: 3
AUTH_SINGLE_SESSION: true
AUTH_REDIS_ADDR:
  - one:6379
  - two:6379
`), 0o600))

	t.Setenv("AUTH_CONFIG_FILE", path)
	t.Setenv("AUTH_ISSUER", "from-env")
	// Unset keys must not leak the file's values into later tests.
	for _, key := range []string{"AUTH_AUDIENCE", "AUTH_MAX_FAILED_ATTEMPTS", "AUTH_SINGLE_SESSION", "AUTH_REDIS_ADDR"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, "from-env", cfg.Issuer)
	require.Equal(t, "shop-api", cfg.Audience)
	require.Equal(t, 3, cfg.MaxFailedAttempts)
	require.True(t, cfg.SingleSession)
	require.Equal(t, []string{"one:6379", "two:6379"}, cfg.RedisAddrs)
}

func TestLoadConfigRejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		key  string
	}{
		{
			name: "unknown store driver",
			env:  map[string]string{"AUTH_STORE_DRIVER": "mysql"},
			key:  "AUTH_STORE_DRIVER",
		},
		{
			name: "postgres without url",
			env:  map[string]string{"AUTH_STORE_DRIVER": "postgres"},
			key:  "AUTH_DATABASE_URL",
		},
		{
			name: "redis without address",
			env:  map[string]string{"AUTH_CACHE_DRIVER": "redis"},
			key:  "AUTH_REDIS_ADDR",
		},
		{
			name: "bad failure policy",
			env:  map[string]string{"AUTH_SESSION_FAILURE_POLICY": "sometimes"},
			key:  "AUTH_SESSION_FAILURE_POLICY",
		},
		{
			name: "session fail open",
			env:  map[string]string{"AUTH_SESSION_FAILURE_POLICY": "fail-open"},
			key:  "AUTH_SESSION_FAILURE_POLICY",
		},
		{
			name: "bootstrap email without password",
			env:  map[string]string{"AUTH_BOOTSTRAP_EMAIL": "admin@shop.test"},
			key:  "AUTH_BOOTSTRAP_EMAIL",
		},
		{
			name: "missing config file",
			env:  map[string]string{"AUTH_CONFIG_FILE": "/does/not/exist.yaml"},
			key:  "AUTH_CONFIG_FILE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := LoadConfig()
			var cfgErr *ConfigurationError
			require.True(t, errors.As(err, &cfgErr), "got %v", err)
			require.Equal(t, tt.key, cfgErr.Key)
		})
	}
}
