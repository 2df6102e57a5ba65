package httpx

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/shopauth/pkg/jwtx"
	"github.com/aussiebroadwan/shopauth/pkg/slogx"
)

// Authenticator turns a bearer token into claims. Implementations may
// consult more than the signature, e.g. session revocation state.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (jwtx.Claims, error)
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(ctx context.Context, token string) (jwtx.Claims, error)

func (f AuthenticatorFunc) Authenticate(ctx context.Context, token string) (jwtx.Claims, error) {
	return f(ctx, token)
}

// StatelessAuthenticator authenticates with signature checks only.
func StatelessAuthenticator(v jwtx.Verifier) Authenticator {
	return AuthenticatorFunc(func(_ context.Context, token string) (jwtx.Claims, error) {
		return v.Verify(token)
	})
}

// ServiceVerifier validates service-to-service tokens.
type ServiceVerifier interface {
	VerifyServiceToken(token string) (jwtx.Claims, error)
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	authz := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(authz, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func AuthnMiddleware(a Authenticator) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			raw, ok := BearerToken(r)
			if !ok {
				writeBearerError(w, "missing bearer token")
				return
			}

			claims, err := a.Authenticate(ctx, raw)
			if err != nil {
				slogx.FromContext(ctx).Info("bearer authentication failed", "error", err)
				writeBearerError(w, describe(err))
				return
			}

			ctx = slogx.With(contextWithAuth(ctx, claims, raw), "user_id", claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ServiceAuthMiddleware only admits tokens minted for services.
func ServiceAuthMiddleware(v ServiceVerifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			raw, ok := BearerToken(r)
			if !ok {
				writeBearerError(w, "missing bearer token")
				return
			}

			claims, err := v.VerifyServiceToken(raw)
			if err != nil {
				slogx.FromContext(ctx).Info("service authentication failed", "error", err)
				writeBearerError(w, describe(err))
				return
			}

			ctx = slogx.With(contextWithAuth(ctx, claims, raw), "service", claims.Service)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func describe(err error) string {
	switch {
	case errors.Is(err, jwtx.ErrExpiredSignature):
		return "token expired"
	case errors.Is(err, jwtx.ErrNotServiceToken):
		return "service token required"
	case errors.Is(err, ErrSessionInactive):
		return "session revoked"
	default:
		return "token verification failed"
	}
}

// ErrSessionInactive may be wrapped by an Authenticator to signal a
// validly signed token whose session is no longer active.
var ErrSessionInactive = errors.New("httpx: session inactive")

// RFC 6750-compliant error response for bearer auth.
func writeBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	WriteError(w, http.StatusUnauthorized, "invalid_token", desc)
}
