package authsdk

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// ErrSessionExpired is returned once the access token has expired. Tokens
// are not refreshed; log in again.
var ErrSessionExpired = errors.New("authsdk: access token expired")

// expiryBuffer stops a token from being sent right before it lapses.
const expiryBuffer = 5 * time.Second

// Session represents an authenticated session.
type Session struct {
	client *SDKClient

	mu          sync.RWMutex
	accessToken string
	sessionID   string
	userID      string
	expiresAt   time.Time
	scopes      map[string]bool
}

func newSession(client *SDKClient, loginResp *LoginResponse) *Session {
	expiresAt := loginResp.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = time.Now().Add(time.Duration(loginResp.ExpiresIn) * time.Second)
	}

	return &Session{
		client:      client,
		accessToken: loginResp.AccessToken,
		sessionID:   loginResp.SessionID,
		userID:      loginResp.UserID,
		expiresAt:   expiresAt,
		scopes:      parseScopes(loginResp.Scope),
	}
}

// parseScopes parses a space-delimited scope string into a map for fast lookup.
func parseScopes(scopeStr string) map[string]bool {
	parts := strings.Fields(scopeStr)
	scopes := make(map[string]bool, len(parts))
	for _, scope := range parts {
		scopes[scope] = true
	}
	return scopes
}

func (s *Session) getValidToken(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.accessToken == "" {
		return "", fmt.Errorf("authsdk: session has no access token")
	}
	if !s.expiresAt.IsZero() && !time.Now().Add(expiryBuffer).Before(s.expiresAt) {
		return "", ErrSessionExpired
	}
	return s.accessToken, nil
}

// AccessToken returns the current access token without checking expiration.
func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

// SessionID returns the server-side session id, empty for service tokens.
func (s *Session) SessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionID
}

// UserID returns the subject the session was issued to.
func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

// ExpiresAt returns when the access token lapses.
func (s *Session) ExpiresAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expiresAt
}

// Scopes returns a copy of the current granted scopes as a slice.
func (s *Session) Scopes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	scopes := make([]string, 0, len(s.scopes))
	for scope := range s.scopes {
		scopes = append(scopes, scope)
	}
	return scopes
}

// HasScope returns true if the session has the specified scope.
func (s *Session) HasScope(scope string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scopes[scope]
}

// checkScopes checks if the session has all required scopes.
func (s *Session) checkScopes(required ...string) error {
	if !s.client.CheckScopes || len(required) == 0 {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var missing []string
	for _, scope := range required {
		if !s.scopes[scope] {
			missing = append(missing, scope)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required scope(s): %s", strings.Join(missing, ", "))
	}

	return nil
}

// invalidate drops the token after the server revoked it.
func (s *Session) invalidate() {
	s.mu.Lock()
	s.accessToken = ""
	s.mu.Unlock()
}
