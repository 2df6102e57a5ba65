package authsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// User operations available to any logged-in session.

// Logout revokes the current session. The Session is unusable afterwards.
func (s *Session) Logout(ctx context.Context) error {
	resp, err := s.doAuthRequest(ctx, http.MethodPost, "/v1/auth/logout", nil, nil)
	if err != nil {
		return err
	}
	if err := expectNoContent(resp); err != nil {
		return err
	}
	s.invalidate()
	return nil
}

// LogoutAll revokes every other session of the user and returns how many
// were revoked. The current session stays valid.
func (s *Session) LogoutAll(ctx context.Context) (int, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodPost, "/v1/auth/logout-all", nil, nil)
	if err != nil {
		return 0, err
	}

	var out RevokedResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return 0, err
	}
	return out.Revoked, nil
}

// ChangePassword replaces the user's password. Other sessions are revoked;
// the count is returned.
func (s *Session) ChangePassword(ctx context.Context, current, next string) (int, error) {
	body, err := json.Marshal(ChangePasswordRequest{CurrentPassword: current, NewPassword: next})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := s.doAuthRequest(ctx, http.MethodPost, "/v1/auth/password", bytes.NewReader(body), map[string]string{
		"Content-Type": "application/json",
	})
	if err != nil {
		return 0, err
	}

	var out RevokedResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return 0, err
	}
	return out.Revoked, nil
}

// ListSessions returns the user's active sessions, newest first.
func (s *Session) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodGet, "/v1/sessions", nil, nil)
	if err != nil {
		return nil, err
	}

	var out ListSessionsResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

// RevokeSession revokes one of the user's own sessions by id.
func (s *Session) RevokeSession(ctx context.Context, sessionID string) error {
	resp, err := s.doAuthRequest(ctx, http.MethodDelete, "/v1/sessions/"+url.PathEscape(sessionID), nil, nil)
	if err != nil {
		return err
	}
	return expectNoContent(resp)
}
