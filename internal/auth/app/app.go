package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aussiebroadwan/shopauth/internal/auth/cache"
	"github.com/aussiebroadwan/shopauth/internal/auth/cache/drivers/memory"
	"github.com/aussiebroadwan/shopauth/internal/auth/cache/drivers/redis"
	httpapi "github.com/aussiebroadwan/shopauth/internal/auth/http"
	"github.com/aussiebroadwan/shopauth/internal/auth/metrics"
	"github.com/aussiebroadwan/shopauth/internal/auth/service"
	"github.com/aussiebroadwan/shopauth/internal/auth/store"
	"github.com/aussiebroadwan/shopauth/internal/auth/store/drivers/postgres"
	"github.com/aussiebroadwan/shopauth/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/shopauth/pkg/cryptox"
	"github.com/aussiebroadwan/shopauth/pkg/jwtx"
	"github.com/aussiebroadwan/shopauth/pkg/slogx"
)

// BuildVersion is reported by /livez and in logs. Release builds stamp it:
//
//	go build -ldflags "-X github.com/aussiebroadwan/shopauth/internal/auth/app.BuildVersion=v1.2.3"
var BuildVersion = "v0.1.0-dev"

// Application encapsulates the auth service application with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db         store.Store
	cache      cache.Cache
	keyManager *jwtx.KeyManager
	issuer     *jwtx.Issuer
	metrics    *metrics.Metrics

	// Services
	sessions            *service.SessionRegistry
	guard               *service.BruteforceGuard
	users               *service.UserDirectory
	authService         *service.AuthService
	keyRotationService  *service.KeyRotationService
	housekeepingService *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "shopauth",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
		metrics: metrics.New(),
	}

	ctx := context.Background()

	keyManager, err := InitKeyManager(cfg, app.logger)
	if err != nil {
		return nil, err
	}
	app.keyManager = keyManager
	app.issuer = jwtx.NewIssuer(keyManager, jwtx.IssuerOptions{
		Issuer:     cfg.Issuer,
		Audience:   cfg.Audience,
		Leeway:     cfg.TokenLeeway,
		ServiceTTL: cfg.ServiceTokenTTL,
	})

	if app.db, err = OpenStore(ctx, cfg, app.logger); err != nil {
		return nil, err
	}
	if app.cache, err = OpenCache(ctx, cfg, app.logger); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	if err := app.initServices(ctx); err != nil {
		app.Close()
		return nil, err
	}
	app.initHTTP()

	return app, nil
}

// OpenStore opens the configured store driver and applies its migrations.
func OpenStore(ctx context.Context, cfg Config, logger *slog.Logger) (store.Store, error) {
	var (
		db  store.Store
		err error
	)
	switch cfg.StoreDriver {
	case "postgres":
		db, err = postgres.NewStore(ctx, cfg.DatabaseURL)
	default:
		db, err = sqlite.NewStore(fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", cfg.DatabaseFile))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}

	logger.Info("database ready", "driver", cfg.StoreDriver)
	return db, nil
}

// OpenCache connects the configured cache driver. A redis that cannot be
// reached at startup is logged, not fatal: the guard and session lists
// degrade according to their failure policies.
func OpenCache(ctx context.Context, cfg Config, logger *slog.Logger) (cache.Cache, error) {
	switch cfg.CacheDriver {
	case "redis":
		c := redis.New(redis.Options{
			Addrs:      cfg.RedisAddrs,
			MasterName: cfg.RedisMasterName,
			Password:   cfg.RedisPassword,
			DB:         cfg.RedisDB,
			Prefix:     cfg.CachePrefix,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := c.Ping(pingCtx); err != nil {
			logger.Warn("redis unreachable at startup", "addrs", cfg.RedisAddrs, "error", err)
		}
		logger.Info("cache ready", "driver", "redis", "addrs", cfg.RedisAddrs)
		return c, nil
	case "memory", "":
		logger.Info("cache ready", "driver", "memory")
		return memory.New(time.Minute), nil
	}
	return nil, &ConfigurationError{Key: "AUTH_CACHE_DRIVER", Err: fmt.Errorf("unknown driver %q", cfg.CacheDriver)}
}

// NewUserDirectory builds the user directory with the pepper from cfg.
func NewUserDirectory(cfg Config, db store.Store, sessions *service.SessionRegistry, logger *slog.Logger) (*service.UserDirectory, error) {
	pepper, err := cryptox.LoadOrCreatePepper(cfg.PepperFile)
	if err != nil {
		return nil, &ConfigurationError{Key: "AUTH_PEPPER_FILE", Err: err}
	}
	return &service.UserDirectory{
		Store:    db,
		Hasher:   cryptox.NewPasswordHasher(pepper),
		Logger:   logger,
		Sessions: sessions,
	}, nil
}

// initServices initializes all business logic services
func (app *Application) initServices(ctx context.Context) error {
	app.sessions = service.NewSessionRegistry(app.db, app.cache, app.logger, app.metrics)
	app.sessions.ListTTL = app.cfg.SessionListTTL

	app.guard = service.NewBruteforceGuard(app.cache, service.GuardOptions{
		Enabled:           app.cfg.BruteforceEnabled,
		MaxFailedAttempts: app.cfg.MaxFailedAttempts,
		BlockTime:         app.cfg.BlockTime,
		AttemptWindow:     app.cfg.AttemptWindow,
		Policy:            app.cfg.BruteforcePolicy,
	}, app.logger, app.metrics)

	users, err := NewUserDirectory(app.cfg, app.db, app.sessions, app.logger)
	if err != nil {
		return err
	}
	app.users = users

	if app.cfg.BootstrapEmail != "" {
		seeded, err := app.users.SeedAdmin(ctx, app.cfg.BootstrapEmail, app.cfg.BootstrapPassword)
		if err != nil {
			return fmt.Errorf("failed to seed admin user: %w", err)
		}
		if !seeded {
			app.logger.Debug("users exist, bootstrap admin skipped")
		}
	}

	app.authService = &service.AuthService{
		Users:         app.users,
		Sessions:      app.sessions,
		Guard:         app.guard,
		Issuer:        app.issuer,
		Metrics:       app.metrics,
		Logger:        app.logger,
		AccessTTL:     app.cfg.AccessTokenTTL,
		SingleSession: app.cfg.SingleSession,
	}

	app.keyRotationService = &service.KeyRotationService{
		KeyManager: app.keyManager,
		Logger:     app.logger,
		Metrics:    app.metrics,
		Retention:  app.cfg.KeyRetention,
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.sessions,
		app.keyRotationService,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
	app.housekeepingService.RotationInterval = app.cfg.KeyRotationInterval

	return nil
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.keyManager,
		app.issuer,
		app.db,
		app.cache,
		app.metrics,
		app.logger,
		httpapi.RouterOptions{
			BuildVersion: BuildVersion,
			TrustProxy:   app.cfg.TrustProxy,
		},
	)

	router.AuthService = app.authService
	router.KeyRotationService = app.keyRotationService
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}

// Handler exposes the routed HTTP handler.
func (app *Application) Handler() http.Handler { return app.router }

// Run serves HTTP and runs housekeeping until ctx is cancelled, SIGINT or
// SIGTERM arrives, or the listener fails. It then shuts down gracefully.
func (app *Application) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	app.housekeepingService.Start()
	app.logger.Info("auth service starting", "port", app.cfg.Port, "version", BuildVersion)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		app.logger.Info("shutting down auth service...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
		defer cancel()
		if err := app.server.Shutdown(shutdownCtx); err != nil {
			app.logger.Error("graceful server shutdown failed", "error", err)
			_ = app.server.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})

	err := g.Wait()

	app.housekeepingService.Stop()
	app.Close()
	app.logger.Info("auth service stopped")
	return err
}

// Close releases the store and cache. Run calls it on the way out.
func (app *Application) Close() {
	if app.cache != nil {
		if err := app.cache.Close(); err != nil {
			app.logger.Error("error closing cache", "error", err)
		}
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
	}
}
