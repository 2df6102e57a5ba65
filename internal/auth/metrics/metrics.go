// Package metrics holds the Prometheus collectors for the auth service.
// Everything registers on a dedicated registry so tests can build as many
// instances as they like. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "shopauth"

type Metrics struct {
	registry *prometheus.Registry

	tokensIssued       *prometheus.CounterVec
	tokenVerifications *prometheus.CounterVec
	logins             *prometheus.CounterVec
	bruteforceBlocks   prometheus.Counter
	sessionsRevoked    *prometheus.CounterVec
	storeFailures      *prometheus.CounterVec
	keyRotations       prometheus.Counter
	jwksKeys           prometheus.Gauge
	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
}

// New builds the collectors and registers them, plus the Go runtime and
// process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		tokensIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_issued_total",
			Help:      "Tokens signed, by kind (access, service).",
		}, []string{"kind"}),
		tokenVerifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_verifications_total",
			Help:      "Token verifications, by result.",
		}, []string{"result"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Login attempts, by result.",
		}, []string{"result"}),
		bruteforceBlocks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bruteforce_blocks_total",
			Help:      "IP blocks written by the brute-force guard.",
		}),
		sessionsRevoked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_revoked_total",
			Help:      "Sessions deactivated, by operation.",
		}, []string{"operation"}),
		storeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_failures_total",
			Help:      "Backing store errors absorbed by a failure policy.",
		}, []string{"component", "policy"}),
		keyRotations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "key_rotations_total",
			Help:      "Completed signing key rotations.",
		}),
		jwksKeys: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jwks_keys",
			Help:      "Keys in the most recently served JWKS.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests, by method, route pattern and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.tokensIssued,
		m.tokenVerifications,
		m.logins,
		m.bruteforceBlocks,
		m.sessionsRevoked,
		m.storeFailures,
		m.keyRotations,
		m.jwksKeys,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

// Registry exposes the registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) TokenIssued(kind string) {
	if m == nil {
		return
	}
	m.tokensIssued.WithLabelValues(kind).Inc()
}

func (m *Metrics) TokenVerified(result string) {
	if m == nil {
		return
	}
	m.tokenVerifications.WithLabelValues(result).Inc()
}

func (m *Metrics) Login(result string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(result).Inc()
}

func (m *Metrics) BruteforceBlock() {
	if m == nil {
		return
	}
	m.bruteforceBlocks.Inc()
}

// SessionsRevoked adds n to the revocation counter for operation.
func (m *Metrics) SessionsRevoked(operation string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sessionsRevoked.WithLabelValues(operation).Add(float64(n))
}

func (m *Metrics) StoreFailure(component, policy string) {
	if m == nil {
		return
	}
	m.storeFailures.WithLabelValues(component, policy).Inc()
}

func (m *Metrics) KeyRotated() {
	if m == nil {
		return
	}
	m.keyRotations.Inc()
}

func (m *Metrics) JWKSKeys(n int) {
	if m == nil {
		return
	}
	m.jwksKeys.Set(float64(n))
}

// Middleware records request counts and latency. The route label is the
// ServeMux pattern, so path parameters never explode cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		m.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }
