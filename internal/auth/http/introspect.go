package http

import (
	"net/http"

	"github.com/aussiebroadwan/shopauth/internal/auth/service"
	"github.com/aussiebroadwan/shopauth/pkg/authsdk"
	"github.com/aussiebroadwan/shopauth/pkg/httpx"
)

// IntrospectHandler serves POST /v1/introspect for other services. Unlike
// local JWKS verification it also reports revoked sessions as inactive.
type IntrospectHandler struct {
	AuthService *service.AuthService
}

// ServeHTTP godoc
//
//	@Summary		Token introspection
//	@Description	Reports whether a token is valid and its session is still active (RFC 7662 shape).
//	@Description	Inactive tokens only carry "active": false; the reason is never revealed.
//	@Tags			Tokens
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			body	body		authsdk.IntrospectRequest		true	"Token to introspect"
//	@Success		200		{object}	authsdk.IntrospectionResponse	"Token introspection result"
//	@Failure		400		{object}	authsdk.ErrorResponse
//	@Failure		401		{object}	authsdk.ErrorResponse	"Missing or non-service bearer token"
//	@Router			/v1/introspect [post]
func (h *IntrospectHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req authsdk.IntrospectRequest
	if err := httpx.DecodeJSON(r, &req); err != nil || req.Token == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	in := h.AuthService.Introspect(r.Context(), req.Token)
	if !in.Active {
		httpx.WriteJSON(w, http.StatusOK, authsdk.IntrospectionResponse{Active: false})
		return
	}

	c := in.Claims
	resp := authsdk.IntrospectionResponse{
		Active:  true,
		Sub:     c.Subject,
		Scope:   c.Scope,
		Service: c.Service,
		Email:   c.StringClaim("email"),
		JTI:     c.ID,
	}
	if c.IssuedAt != nil {
		resp.Iat = c.IssuedAt.Unix()
	}
	if c.ExpiresAt != nil {
		resp.Exp = c.ExpiresAt.Unix()
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}
