package httpx

import (
	"context"

	"github.com/aussiebroadwan/shopauth/pkg/jwtx"
)

type ctxKey string

const (
	CtxKeyUserID ctxKey = "user_id"
	CtxKeyClaims ctxKey = "claims"
	CtxKeyToken  ctxKey = "token"
)

func contextWithAuth(ctx context.Context, c jwtx.Claims, raw string) context.Context {
	ctx = context.WithValue(ctx, CtxKeyUserID, c.Subject)
	ctx = context.WithValue(ctx, CtxKeyClaims, c)
	ctx = context.WithValue(ctx, CtxKeyToken, raw)
	return ctx
}

// ClaimsFromContext returns the claims stored by AuthnMiddleware.
func ClaimsFromContext(ctx context.Context) (jwtx.Claims, bool) {
	c, ok := ctx.Value(CtxKeyClaims).(jwtx.Claims)
	return c, ok
}

// UserIDFromContext returns the authenticated subject, or "".
func UserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(CtxKeyUserID).(string)
	return id
}

// TokenFromContext returns the raw bearer token that authenticated the request.
func TokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(CtxKeyToken).(string)
	return t
}

func scopesFromCtx(ctx context.Context) []string {
	if c, ok := ClaimsFromContext(ctx); ok {
		return c.Scopes()
	}
	return nil
}
