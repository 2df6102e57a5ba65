package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/shopauth/internal/auth/cache"
	"github.com/aussiebroadwan/shopauth/internal/auth/metrics"
	"github.com/aussiebroadwan/shopauth/internal/auth/service"
	"github.com/aussiebroadwan/shopauth/internal/auth/store"
	"github.com/aussiebroadwan/shopauth/pkg/httpx"
	"github.com/aussiebroadwan/shopauth/pkg/jwtx"
	"github.com/aussiebroadwan/shopauth/pkg/slogx"

	_ "github.com/aussiebroadwan/shopauth/api/auth" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// RouterOptions are the HTTP-only settings of the router.
type RouterOptions struct {
	BuildVersion string

	// TrustProxy makes client ips come from X-Forwarded-For / X-Real-IP.
	// Only enable it behind a proxy that overwrites those headers.
	TrustProxy bool

	Limits httpx.RateLimitProfiles
}

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	keys      *jwtx.KeyManager
	issuer    *jwtx.Issuer
	store     store.Store
	cache     cache.Cache
	metrics   *metrics.Metrics
	logger    *slog.Logger
	opts      RouterOptions
	startTime time.Time

	AuthService        *service.AuthService
	KeyRotationService *service.KeyRotationService
}

func NewRouter(
	keys *jwtx.KeyManager,
	issuer *jwtx.Issuer,
	st store.Store,
	c cache.Cache,
	m *metrics.Metrics,
	logger *slog.Logger,
	opts RouterOptions,
) *Router {
	if opts.Limits == (httpx.RateLimitProfiles{}) {
		opts.Limits = httpx.ProfilesFromEnv()
	}

	r := &Router{
		Mux:       http.NewServeMux(),
		keys:      keys,
		issuer:    issuer,
		store:     st,
		cache:     c,
		metrics:   m,
		logger:    logger,
		opts:      opts,
		startTime: time.Now(),
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		r.metrics.Middleware,
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerSessions()
	r.registerTokens()
	r.registerKeyRotation()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			shopauth API
//	@version		0.1.0
//	@description	Authentication and session security for the shop platform.
//	@description
//	@description				Access tokens are short-lived RS256 JWTs backed by a server-side session; verify them with the JWKS endpoint
//	@description				and use /v1/introspect when revocation matters.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/shopauth
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT access token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

// authn is the session-aware bearer check shared by user routes.
func (r *Router) authn() httpx.Middleware {
	return httpx.AuthnMiddleware(r.AuthService)
}

func (r *Router) byUser(cfg httpx.RateLimitConfig) httpx.Middleware {
	return httpx.RateLimitByUser(cfg, r.opts.TrustProxy)
}

func (r *Router) byIP(cfg httpx.RateLimitConfig) httpx.Middleware {
	return httpx.RateLimitByIP(cfg, r.opts.TrustProxy)
}

func (r *Router) registerAuth() {
	h := &LoginHandler{AuthService: r.AuthService, TrustProxy: r.opts.TrustProxy}

	// The brute-force guard does the real work; the limiter only sheds floods.
	r.Mux.Handle("POST /v1/auth/login",
		httpx.Chain(http.HandlerFunc(h.HandleLogin),
			r.byIP(r.opts.Limits.Strict),
		),
	)

	r.Mux.Handle("POST /v1/auth/logout",
		httpx.Chain(http.HandlerFunc(h.HandleLogout),
			r.authn(),
			r.byUser(r.opts.Limits.Moderate),
		),
	)
	r.Mux.Handle("POST /v1/auth/logout-all",
		httpx.Chain(http.HandlerFunc(h.HandleLogoutAll),
			r.authn(),
			r.byUser(r.opts.Limits.Moderate),
		),
	)
	r.Mux.Handle("POST /v1/auth/password",
		httpx.Chain(http.HandlerFunc(h.HandleChangePassword),
			r.authn(),
			r.byUser(r.opts.Limits.Strict),
		),
	)
}

func (r *Router) registerSessions() {
	h := &SessionsHandler{Sessions: r.AuthService.Sessions}

	r.Mux.Handle("GET /v1/sessions",
		httpx.Chain(http.HandlerFunc(h.HandleList),
			r.authn(),
			r.byUser(r.opts.Limits.Lenient),
		),
	)
	r.Mux.Handle("DELETE /v1/sessions/{id}",
		httpx.Chain(http.HandlerFunc(h.HandleRevoke),
			r.authn(),
			r.byUser(r.opts.Limits.Moderate),
		),
	)
}

func (r *Router) registerTokens() {
	r.Mux.Handle("GET /.well-known/jwks.json",
		httpx.Chain(JWKSHandler(r.keys, r.metrics),
			r.byIP(r.opts.Limits.Public),
		),
	)

	// Services poll this on every request they care about.
	r.Mux.Handle("POST /v1/introspect",
		httpx.Chain(&IntrospectHandler{AuthService: r.AuthService},
			httpx.ServiceAuthMiddleware(r.AuthService),
			r.byUser(r.opts.Limits.Public),
		),
	)

	r.Mux.Handle("POST /v1/service-tokens",
		httpx.Chain(&ServiceTokenHandler{AuthService: r.AuthService, Issuer: r.issuer},
			r.authn(),
			httpx.RequireAnyScope(service.ScopeAdmin),
			r.byUser(r.opts.Limits.Moderate),
		),
	)
}

func (r *Router) registerKeyRotation() {
	h := &KeyRotationHandler{KeyRotationService: r.KeyRotationService}

	r.Mux.Handle("POST /v1/keys/rotate",
		httpx.Chain(http.HandlerFunc(h.HandleRotate),
			r.authn(),
			httpx.RequireAnyScope(service.ScopeAdmin),
			r.byUser(r.opts.Limits.Moderate),
		),
	)
	r.Mux.Handle("GET /v1/keys",
		httpx.Chain(http.HandlerFunc(h.HandleListKeys),
			r.authn(),
			httpx.RequireAnyScope(service.ScopeAdmin),
			r.byUser(r.opts.Limits.Moderate),
		),
	)
}

func (r *Router) registerSystem() {
	health := &Health{
		Started: r.startTime,
		Version: r.opts.BuildVersion,
		Store:   r.store,
		Keys:    r.keys,
	}
	if r.cache != nil {
		health.Cache = r.cache
	}

	// Probes poll often, so they get the lenient profile.
	r.Mux.Handle("GET /livez", httpx.Chain(http.HandlerFunc(health.Livez), r.byIP(r.opts.Limits.Lenient)))
	r.Mux.Handle("GET /readyz", httpx.Chain(http.HandlerFunc(health.Readyz), r.byIP(r.opts.Limits.Lenient)))

	r.Mux.Handle("GET /metrics", r.metrics.Handler())
}
