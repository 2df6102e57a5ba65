package httpx_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aussiebroadwan/shopauth/pkg/httpx"
	"github.com/aussiebroadwan/shopauth/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

type fakeAuth map[string]jwtx.Claims

func (f fakeAuth) Authenticate(_ context.Context, token string) (jwtx.Claims, error) {
	switch token {
	case "expired":
		return jwtx.Claims{}, fmt.Errorf("%w: exp", jwtx.ErrExpiredSignature)
	case "revoked":
		return jwtx.Claims{}, httpx.ErrSessionInactive
	}
	if c, ok := f[token]; ok {
		return c, nil
	}
	return jwtx.Claims{}, jwtx.ErrInvalidToken
}

func (f fakeAuth) VerifyServiceToken(token string) (jwtx.Claims, error) {
	c, err := f.Authenticate(context.Background(), token)
	if err != nil {
		return c, err
	}
	if !c.IsService() {
		return jwtx.Claims{}, fmt.Errorf("%w: %w", jwtx.ErrInvalidToken, jwtx.ErrNotServiceToken)
	}
	return c, nil
}

var auth = fakeAuth{
	"user":  {RegisteredClaims: jwt.RegisteredClaims{Subject: "u1"}},
	"admin": {RegisteredClaims: jwt.RegisteredClaims{Subject: "u2"}, Scope: "admin sessions:read"},
	"svc":   {RegisteredClaims: jwt.RegisteredClaims{Subject: "service:orders"}, Scope: jwtx.ServiceScope, Service: "orders"},
}

func whoami() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, ok := httpx.ClaimsFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(c.Subject + "|" + httpx.TokenFromContext(r.Context())))
	})
}

func TestAuthnMiddleware(t *testing.T) {
	h := httpx.AuthnMiddleware(auth)(whoami())

	tests := []struct {
		name     string
		header   string
		wantCode int
		wantDesc string
		wantBody string
	}{
		{name: "no header", wantCode: http.StatusUnauthorized, wantDesc: "missing bearer token"},
		{name: "basic auth", header: "Basic abc", wantCode: http.StatusUnauthorized, wantDesc: "missing bearer token"},
		{name: "expired", header: "Bearer expired", wantCode: http.StatusUnauthorized, wantDesc: "token expired"},
		{name: "revoked", header: "Bearer revoked", wantCode: http.StatusUnauthorized, wantDesc: "session revoked"},
		{name: "garbage", header: "Bearer nope", wantCode: http.StatusUnauthorized, wantDesc: "token verification failed"},
		{name: "ok", header: "Bearer user", wantCode: http.StatusOK, wantBody: "u1|user"},
		{name: "lowercase scheme", header: "bearer user", wantCode: http.StatusOK, wantBody: "u1|user"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			require.Equal(t, tt.wantCode, rec.Code)
			if tt.wantDesc != "" {
				require.Contains(t, rec.Header().Get("WWW-Authenticate"), `error="invalid_token"`)
				require.Contains(t, rec.Header().Get("WWW-Authenticate"), tt.wantDesc)
			}
			if tt.wantBody != "" {
				require.Equal(t, tt.wantBody, rec.Body.String())
			}
		})
	}
}

func TestServiceAuthMiddleware(t *testing.T) {
	h := httpx.ServiceAuthMiddleware(auth)(whoami())

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer svc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req.Header.Set("Authorization", "Bearer user")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Header().Get("WWW-Authenticate"), "service token required")
}

func TestRequireScopes(t *testing.T) {
	tests := []struct {
		name  string
		token string
		mw    httpx.Middleware
		want  int
	}{
		{"any: has one", "admin", httpx.RequireAnyScope("admin", "root"), http.StatusOK},
		{"any: has none", "user", httpx.RequireAnyScope("admin"), http.StatusForbidden},
		{"all: has all", "admin", httpx.RequireAllScopes("admin", "sessions:read"), http.StatusOK},
		{"all: missing one", "admin", httpx.RequireAllScopes("admin", "keys:write"), http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := httpx.Chain(whoami(), httpx.AuthnMiddleware(auth), tt.mw)
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", "Bearer "+tt.token)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			require.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusForbidden {
				require.Contains(t, rec.Header().Get("WWW-Authenticate"), "insufficient_scope")
			}
		})
	}
}

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) httpx.Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := httpx.Chain(okHandler(), mark("a"), nil, mark("b"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, []string{"a", "b"}, order)
}

func TestDecodeJSON(t *testing.T) {
	var body struct {
		Email string `json:"email"`
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"a@example.com"}`))
	require.NoError(t, httpx.DecodeJSON(req, &body))
	require.Equal(t, "a@example.com", body.Email)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"a","extra":1}`))
	require.Error(t, httpx.DecodeJSON(req, &body))

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(``))
	err := httpx.DecodeJSON(req, &body)
	require.ErrorContains(t, err, "empty")
}
