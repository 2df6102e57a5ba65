package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aussiebroadwan/shopauth/internal/auth/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *metrics.Metrics
	m.TokenIssued("access")
	m.Login("success")
	m.StoreFailure("sessions", "fail_closed")
	m.SessionsRevoked("logout", 1)
	m.JWKSKeys(2)

	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}

func TestCounters(t *testing.T) {
	m := metrics.New()
	m.TokenIssued("access")
	m.TokenIssued("access")
	m.StoreFailure("bruteforce", "fail_open")
	m.SessionsRevoked("logout_all", 3)
	m.SessionsRevoked("logout_all", 0)

	expected := `
# HELP shopauth_tokens_issued_total Tokens signed, by kind (access, service).
# TYPE shopauth_tokens_issued_total counter
shopauth_tokens_issued_total{kind="access"} 2
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "shopauth_tokens_issued_total"))

	count, err := testutil.GatherAndCount(m.Registry(), "shopauth_store_failures_total")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	m := metrics.New()
	mux := http.NewServeMux()
	mux.HandleFunc("DELETE /v1/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	h := m.Middleware(mux)

	for _, id := range []string{"a", "b"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodDelete, "/v1/sessions/"+id, nil))
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Contains(t, rec.Body.String(),
		`shopauth_http_requests_total{method="DELETE",route="DELETE /v1/sessions/{id}",status="204"} 2`)
}
