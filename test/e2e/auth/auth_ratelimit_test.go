package auth_test

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/shopauth/pkg/authsdk"
)

// TestRateLimitLoginEndpoint verifies that the login endpoint sheds floods
// independently of the brute-force guard. Malformed requests never reach
// the guard, so the sixth one is refused by the strict limiter (5 req/min).
func TestRateLimitLoginEndpoint(t *testing.T) {
	inst := setupAuthInstanceWithDefaultRateLimits(t)

	post := func() *http.Response {
		resp, err := http.Post(inst.URL+"/v1/auth/login", "application/json", strings.NewReader(`{"email":""}`))
		require.NoError(t, err)
		_ = resp.Body.Close()
		return resp
	}

	for i := range 5 {
		resp := post()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode, "request %d should not be rate limited", i+1)
	}

	resp := post()
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get("Retry-After"))
}

// TestRateLimitDoesNotBlockOtherEndpoints verifies that exhausting the
// login limit leaves public endpoints usable.
func TestRateLimitDoesNotBlockOtherEndpoints(t *testing.T) {
	inst := setupAuthInstanceWithDefaultRateLimits(t)
	ctx := t.Context()

	var lastErr error
	for range 6 {
		_, lastErr = inst.Client.Login(ctx, "nobody@shop.test", "")
	}
	apiErr := requireAPIError(t, lastErr, http.StatusTooManyRequests)
	require.Equal(t, authsdk.ErrorCodeRateLimited, apiErr.Code)

	jwks, err := inst.Client.GetJWKS(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, jwks.Keys)

	health, err := inst.Client.GetLiveness(ctx)
	assertHealthy(t, health, err)
}
