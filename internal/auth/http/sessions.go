package http

import (
	"net/http"

	"github.com/aussiebroadwan/shopauth/internal/auth/service"
	"github.com/aussiebroadwan/shopauth/pkg/authsdk"
	"github.com/aussiebroadwan/shopauth/pkg/httpx"
	"github.com/aussiebroadwan/shopauth/pkg/slogx"
)

// SessionsHandler lets a user see and revoke their own sessions.
type SessionsHandler struct {
	Sessions *service.SessionRegistry
}

// HandleList handles GET /v1/sessions
//
//	@Summary		List sessions
//	@Description	Lists the caller's active sessions, newest first. The session of the calling token is flagged "current".
//	@Tags			Sessions
//	@Produce		json
//	@Success		200	{object}	authsdk.ListSessionsResponse
//	@Failure		401	{object}	authsdk.ErrorResponse
//	@Failure		500	{object}	authsdk.ErrorResponse
//	@Security		BearerAuth
//	@Router			/v1/sessions [get]
func (h *SessionsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	claims, _ := httpx.ClaimsFromContext(r.Context())

	sessions, err := h.Sessions.ListUserSessions(r.Context(), claims.Subject)
	if err != nil {
		slogx.FromContext(r.Context()).Error("list sessions failed", "error", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	out := authsdk.ListSessionsResponse{Sessions: make([]authsdk.SessionInfo, 0, len(sessions))}
	for _, s := range sessions {
		out.Sessions = append(out.Sessions, authsdk.SessionInfo{
			ID:        s.ID,
			UserAgent: s.UserAgent,
			IP:        s.IP,
			CreatedAt: s.CreatedAt,
			ExpiresAt: s.ExpiresAt,
			Current:   s.JTI == claims.ID,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// HandleRevoke handles DELETE /v1/sessions/{id}
//
//	@Summary		Revoke a session
//	@Description	Revokes one of the caller's sessions. Sessions of other users are reported as not found.
//	@Tags			Sessions
//	@Param			id	path	string	true	"Session id"
//	@Success		204	"Session revoked"
//	@Failure		401	{object}	authsdk.ErrorResponse
//	@Failure		404	{object}	authsdk.ErrorResponse	"No active session with that id"
//	@Security		BearerAuth
//	@Router			/v1/sessions/{id} [delete]
func (h *SessionsHandler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	claims, _ := httpx.ClaimsFromContext(r.Context())

	if !h.Sessions.RevokeSession(r.Context(), r.PathValue("id"), claims.Subject) {
		authsdk.ErrNotFound.WriteError(w)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
