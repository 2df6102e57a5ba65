package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/shopauth/internal/auth/service"
	"github.com/aussiebroadwan/shopauth/pkg/authsdk"
	"github.com/aussiebroadwan/shopauth/pkg/httpx"
	"github.com/aussiebroadwan/shopauth/pkg/jwtx"
	"github.com/aussiebroadwan/shopauth/pkg/slogx"
)

// LoginHandler serves the session endpoints under /v1/auth.
type LoginHandler struct {
	AuthService *service.AuthService
	TrustProxy  bool
}

// HandleLogin handles POST /v1/auth/login
//
//	@Summary		Log in
//	@Description	Exchanges an email and password for a short-lived, session-backed access token.
//	@Description	Repeated failures from one ip block it for a while; the response says how many attempts are left.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		authsdk.LoginRequest	true	"Credentials"
//	@Success		200		{object}	authsdk.LoginResponse
//	@Failure		400		{object}	authsdk.ErrorResponse	"Malformed request"
//	@Failure		401		{object}	authsdk.ErrorResponse	"Invalid credentials, with remaining_attempts"
//	@Failure		403		{object}	authsdk.ErrorResponse	"Account disabled"
//	@Failure		429		{object}	authsdk.ErrorResponse	"Ip blocked, with blocked_for"
//	@Header			429		{integer}	Retry-After				"Seconds until the block lifts"
//	@Router			/v1/auth/login [post]
func (h *LoginHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req authsdk.LoginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil || req.Email == "" || req.Password == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	res, err := h.AuthService.Login(r.Context(), service.LoginRequest{
		Email:     req.Email,
		Password:  req.Password,
		IP:        httpx.ClientIP(r, h.TrustProxy),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		writeLoginError(w, r, err)
		return
	}

	scope := service.ScopeUser
	if res.User.IsStaff {
		scope += " " + service.ScopeAdmin
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.LoginResponse{
		AccessToken: res.AccessToken,
		TokenType:   res.TokenType,
		ExpiresIn:   res.ExpiresIn,
		ExpiresAt:   res.ExpiresAt,
		SessionID:   res.SessionID,
		Scope:       scope,
		UserID:      res.User.ID,
	})
}

func writeLoginError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		blocked *service.BlockedError
		creds   *service.CredentialsError
	)
	switch {
	case errors.As(err, &blocked):
		authsdk.TooManyAttempts(blocked.BlockedFor).WriteError(w)
	case errors.As(err, &creds):
		authsdk.InvalidCredentials(creds.RemainingAttempts).WriteError(w)
	case errors.Is(err, service.ErrUserInactive):
		authsdk.ErrUserInactive.WriteError(w)
	default:
		slogx.FromContext(r.Context()).Error("login failed", "error", err)
		authsdk.ErrServerError.WriteError(w)
	}
}

// HandleLogout handles POST /v1/auth/logout
//
//	@Summary		Log out
//	@Description	Revokes the session behind the bearer token.
//	@Tags			Auth
//	@Success		204	"Session revoked"
//	@Failure		401	{object}	authsdk.ErrorResponse
//	@Security		BearerAuth
//	@Router			/v1/auth/logout [post]
func (h *LoginHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	claims, _ := httpx.ClaimsFromContext(r.Context())
	if !h.AuthService.Logout(r.Context(), claims.ID) {
		slogx.FromContext(r.Context()).Warn("logout did not revoke a session", "jti", claims.ID)
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleLogoutAll handles POST /v1/auth/logout-all
//
//	@Summary		Log out everywhere else
//	@Description	Revokes every session of the caller except the current one.
//	@Tags			Auth
//	@Produce		json
//	@Success		200	{object}	authsdk.RevokedResponse
//	@Failure		401	{object}	authsdk.ErrorResponse
//	@Security		BearerAuth
//	@Router			/v1/auth/logout-all [post]
func (h *LoginHandler) HandleLogoutAll(w http.ResponseWriter, r *http.Request) {
	claims, _ := httpx.ClaimsFromContext(r.Context())
	n := h.AuthService.LogoutAll(r.Context(), claims.Subject, claims.ID)
	httpx.WriteJSON(w, http.StatusOK, authsdk.RevokedResponse{Revoked: n})
}

// HandleChangePassword handles POST /v1/auth/password
//
//	@Summary		Change password
//	@Description	Replaces the caller's password and revokes their other sessions.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		authsdk.ChangePasswordRequest	true	"Current and new password"
//	@Success		200		{object}	authsdk.RevokedResponse
//	@Failure		400		{object}	authsdk.ErrorResponse	"New password too weak"
//	@Failure		401		{object}	authsdk.ErrorResponse	"Current password wrong"
//	@Security		BearerAuth
//	@Router			/v1/auth/password [post]
func (h *LoginHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	claims, _ := httpx.ClaimsFromContext(r.Context())
	if claims.IsService() {
		authsdk.NewAPIError(http.StatusForbidden, authsdk.ErrorCodeInsufficientScope, "service tokens have no password").WriteError(w)
		return
	}

	var req authsdk.ChangePasswordRequest
	if err := httpx.DecodeJSON(r, &req); err != nil || req.CurrentPassword == "" || req.NewPassword == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	n, err := h.AuthService.ChangePassword(r.Context(), claims.Subject, claims.ID, req.CurrentPassword, req.NewPassword)
	switch {
	case err == nil:
		httpx.WriteJSON(w, http.StatusOK, authsdk.RevokedResponse{Revoked: n})
	case errors.Is(err, service.ErrInvalidCredentials):
		authsdk.NewAPIError(http.StatusUnauthorized, authsdk.ErrorCodeInvalidCredentials, "current password is incorrect").WriteError(w)
	case errors.Is(err, service.ErrWeakPassword):
		authsdk.NewAPIError(http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest, err.Error()).WriteError(w)
	case errors.Is(err, service.ErrUserInactive):
		authsdk.ErrUserInactive.WriteError(w)
	default:
		slogx.FromContext(r.Context()).Error("change password failed", "error", err)
		authsdk.ErrServerError.WriteError(w)
	}
}

// ServiceTokenHandler mints service-to-service tokens.
type ServiceTokenHandler struct {
	AuthService *service.AuthService
	Issuer      *jwtx.Issuer
}

// ServeHTTP godoc
//
//	@Summary		Mint a service token
//	@Description	Issues a short-lived token with scope "service" for the named service.
//	@Tags			Tokens
//	@Accept			json
//	@Produce		json
//	@Param			body	body		authsdk.ServiceTokenRequest	true	"Service name"
//	@Success		201		{object}	authsdk.ServiceTokenResponse
//	@Failure		400		{object}	authsdk.ErrorResponse
//	@Failure		401		{object}	authsdk.ErrorResponse
//	@Failure		403		{object}	authsdk.ErrorResponse	"Forbidden - requires admin scope"
//	@Security		BearerAuth
//	@Router			/v1/service-tokens [post]
func (h *ServiceTokenHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req authsdk.ServiceTokenRequest
	if err := httpx.DecodeJSON(r, &req); err != nil || req.Service == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	tok, err := h.AuthService.IssueServiceToken(req.Service)
	if err != nil {
		slogx.FromContext(r.Context()).Error("service token issue failed", "service", req.Service, "error", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	slogx.FromContext(r.Context()).Info("service token issued", "service", req.Service)
	httpx.WriteJSON(w, http.StatusCreated, authsdk.ServiceTokenResponse{
		AccessToken: tok,
		TokenType:   "Bearer",
		ExpiresIn:   int(h.Issuer.ServiceTTL().Seconds()),
	})
}
