package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/aussiebroadwan/shopauth/internal/auth/service"
	"github.com/aussiebroadwan/shopauth/pkg/jwtx"
)

// ConfigurationError reports a setting the service cannot start with.
type ConfigurationError struct {
	Key string
	Err error
}

func (e *ConfigurationError) Error() string {
	if e.Key == "" {
		return "configuration: " + e.Err.Error()
	}
	return fmt.Sprintf("configuration: %s: %v", e.Key, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

type Config struct {
	Issuer          string        // Optional: iss claim (default: shopauth)
	Audience        string        // Optional: aud claim, empty disables the check
	AccessTokenTTL  time.Duration // Optional: access token lifetime (default: 15m)
	RefreshTokenTTL time.Duration // Optional: floor for retired key retention (default: 7d)
	ServiceTokenTTL time.Duration // Optional: service token lifetime (default: 5m)
	TokenLeeway     time.Duration // Optional: clock skew allowance (default: 30s)

	PrivateKeyPEM       string // Optional: inline private key, wins over the file
	PublicKeyPEM        string // Optional: inline public key, checked against the private key
	PrivateKeyFile      string // Optional: path to the private key PEM
	PublicKeyFile       string // Optional: path to the public key PEM
	PrivateKeyEncrypted bool   // Optional: private key file is sealed with the master key
	MasterKeyPath       string // Optional: master key file, AUTH_MASTER_KEY otherwise
	AllowEphemeralKeys  bool   // Optional: generate a key when none is configured (default: true)

	KeyRetention        time.Duration // Optional: how long a rotated-out key stays published (default: 7d)
	KeyRotationInterval time.Duration // Optional: scheduled rotation, 0 disables (default: 0)

	StoreDriver  string // Optional: sqlite or postgres (default: sqlite)
	DatabaseFile string // Optional: sqlite database path (default: auth.db)
	DatabaseURL  string // Required for postgres

	CacheDriver     string   // Optional: memory or redis (default: memory)
	RedisAddrs      []string // Required for redis, comma separated
	RedisMasterName string   // Optional: sentinel master name
	RedisPassword   string
	RedisDB         int
	CachePrefix     string // Optional: key prefix (default: shopauth:)

	BruteforceEnabled bool          // Optional (default: true)
	MaxFailedAttempts int           // Optional (default: 5)
	BlockTime         time.Duration // Optional (default: 300s)
	AttemptWindow     time.Duration // Optional (default: 300s)
	BruteforcePolicy  service.FailurePolicy

	SingleSession  bool          // Optional: one session per user (default: false)
	SessionListTTL time.Duration // Optional: cached session list lifetime (default: 60s)

	PepperFile string // Optional: path to file containing pepper for password hashing (default: ./pepper)

	BootstrapEmail    string // Optional: seeds an admin into an empty user table
	BootstrapPassword string

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)
	TrustProxy           bool          // Read client ips from proxy headers (default: false)
}

// LoadConfig reads the configuration from the environment. A .env file in
// the working directory and the YAML file named by AUTH_CONFIG_FILE fill in
// keys the environment leaves unset.
func LoadConfig() (Config, error) {
	_ = godotenv.Load()

	if path := os.Getenv("AUTH_CONFIG_FILE"); path != "" {
		if err := applyConfigFile(path); err != nil {
			return Config{}, &ConfigurationError{Key: "AUTH_CONFIG_FILE", Err: err}
		}
	}

	cfg := Config{
		Issuer:          getEnvOrDefault("AUTH_ISSUER", "shopauth"),
		Audience:        os.Getenv("AUTH_AUDIENCE"),
		AccessTokenTTL:  getEnvDurationOrDefault("AUTH_ACCESS_TOKEN_TTL", jwtx.DefaultAccessTokenTTL),
		RefreshTokenTTL: getEnvDurationOrDefault("AUTH_REFRESH_TOKEN_TTL", jwtx.DefaultRefreshTokenTTL),
		ServiceTokenTTL: getEnvDurationOrDefault("AUTH_SERVICE_TOKEN_TTL", jwtx.DefaultServiceTokenTTL),
		TokenLeeway:     getEnvDurationOrDefault("AUTH_TOKEN_LEEWAY", 30*time.Second),

		PrivateKeyPEM:       os.Getenv("AUTH_PRIVATE_KEY_PEM"),
		PublicKeyPEM:        os.Getenv("AUTH_PUBLIC_KEY_PEM"),
		PrivateKeyFile:      os.Getenv("AUTH_PRIVATE_KEY_FILE"),
		PublicKeyFile:       os.Getenv("AUTH_PUBLIC_KEY_FILE"),
		PrivateKeyEncrypted: getEnvBoolOrDefault("AUTH_PRIVATE_KEY_ENCRYPTED", false),
		MasterKeyPath:       os.Getenv("AUTH_MASTER_KEY_PATH"),
		AllowEphemeralKeys:  getEnvBoolOrDefault("AUTH_ALLOW_EPHEMERAL_KEYS", true),

		KeyRetention:        getEnvDurationOrDefault("AUTH_KEY_RETENTION", jwtx.DefaultRefreshTokenTTL),
		KeyRotationInterval: getEnvDurationOrDefault("AUTH_KEY_ROTATION_INTERVAL", 0),

		StoreDriver:  strings.ToLower(getEnvOrDefault("AUTH_STORE_DRIVER", "sqlite")),
		DatabaseFile: getEnvOrDefault("AUTH_DATABASE_FILE", "auth.db"),
		DatabaseURL:  os.Getenv("AUTH_DATABASE_URL"),

		CacheDriver:     strings.ToLower(getEnvOrDefault("AUTH_CACHE_DRIVER", "memory")),
		RedisAddrs:      splitList(os.Getenv("AUTH_REDIS_ADDR")),
		RedisMasterName: os.Getenv("AUTH_REDIS_MASTER_NAME"),
		RedisPassword:   os.Getenv("AUTH_REDIS_PASSWORD"),
		RedisDB:         getEnvIntOrDefault("AUTH_REDIS_DB", 0),
		CachePrefix:     getEnvOrDefault("AUTH_CACHE_PREFIX", "shopauth:"),

		BruteforceEnabled: getEnvBoolOrDefault("AUTH_BRUTEFORCE_ENABLED", true),
		MaxFailedAttempts: getEnvIntOrDefault("AUTH_MAX_FAILED_ATTEMPTS", service.DefaultMaxFailedAttempts),
		BlockTime:         getEnvDurationOrDefault("AUTH_BLOCK_TIME", service.DefaultBlockTime),
		AttemptWindow:     getEnvDurationOrDefault("AUTH_ATTEMPT_WINDOW", service.DefaultAttemptWindow),

		SingleSession:  getEnvBoolOrDefault("AUTH_SINGLE_SESSION", false),
		SessionListTTL: getEnvDurationOrDefault("AUTH_SESSION_LIST_TTL", service.DefaultSessionListTTL),

		PepperFile: getEnvOrDefault("AUTH_PEPPER_FILE", "pepper"),

		BootstrapEmail:    os.Getenv("AUTH_BOOTSTRAP_EMAIL"),
		BootstrapPassword: os.Getenv("AUTH_BOOTSTRAP_PASSWORD"),

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
		TrustProxy:           getEnvBoolOrDefault("TRUSTED_PROXY_HEADERS", false),
	}

	// Session checks always fail closed. The key only accepts that value.
	sessionPolicy, err := parsePolicy("AUTH_SESSION_FAILURE_POLICY", service.FailClosed)
	if err != nil {
		return Config{}, err
	}
	if sessionPolicy != service.FailClosed {
		return Config{}, &ConfigurationError{
			Key: "AUTH_SESSION_FAILURE_POLICY",
			Err: errors.New("session checks cannot fail open"),
		}
	}
	if cfg.BruteforcePolicy, err = parsePolicy("AUTH_BRUTEFORCE_FAILURE_POLICY", service.FailOpen); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects combinations the service cannot run with.
func (c Config) Validate() error {
	switch c.StoreDriver {
	case "sqlite":
	case "postgres":
		if c.DatabaseURL == "" {
			return &ConfigurationError{Key: "AUTH_DATABASE_URL", Err: errors.New("required for the postgres driver")}
		}
	default:
		return &ConfigurationError{Key: "AUTH_STORE_DRIVER", Err: fmt.Errorf("unknown driver %q", c.StoreDriver)}
	}

	switch c.CacheDriver {
	case "memory":
	case "redis":
		if len(c.RedisAddrs) == 0 {
			return &ConfigurationError{Key: "AUTH_REDIS_ADDR", Err: errors.New("required for the redis driver")}
		}
	default:
		return &ConfigurationError{Key: "AUTH_CACHE_DRIVER", Err: fmt.Errorf("unknown driver %q", c.CacheDriver)}
	}

	if c.AccessTokenTTL <= 0 {
		return &ConfigurationError{Key: "AUTH_ACCESS_TOKEN_TTL", Err: errors.New("must be positive")}
	}
	if (c.BootstrapEmail == "") != (c.BootstrapPassword == "") {
		return &ConfigurationError{Key: "AUTH_BOOTSTRAP_EMAIL", Err: errors.New("email and password must be set together")}
	}
	return nil
}

// applyConfigFile reads a flat YAML mapping of configuration keys and sets
// every key the environment does not already define.
func applyConfigFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var values map[string]any
	if err := yaml.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	for key, v := range values {
		if _, set := os.LookupEnv(key); set || v == nil {
			continue
		}
		var s string
		switch t := v.(type) {
		case []any:
			parts := make([]string, len(t))
			for i, p := range t {
				parts[i] = fmt.Sprint(p)
			}
			s = strings.Join(parts, ",")
		default:
			s = fmt.Sprint(t)
		}
		if err := os.Setenv(key, s); err != nil {
			return err
		}
	}
	return nil
}

func parsePolicy(key string, defaultValue service.FailurePolicy) (service.FailurePolicy, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	p, err := service.ParseFailurePolicy(value)
	if err != nil {
		return defaultValue, &ConfigurationError{Key: key, Err: err}
	}
	return p, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are seconds
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}
