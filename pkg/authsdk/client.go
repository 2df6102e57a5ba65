package authsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// SDKClient is a client for the shopauth service.
// It provides access to unauthenticated operations and can create authenticated Sessions.
type SDKClient struct {
	BaseURL    string
	HTTPClient *http.Client

	// CheckScopes makes a Session refuse requests it lacks the scope for
	// before sending them. Disable it in tests that exercise server-side
	// scope checks.
	CheckScopes bool
}

// NewSDKClient creates a new auth service client with scope checking enabled.
func NewSDKClient(baseURL string) *SDKClient {
	return &SDKClient{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		CheckScopes: true,
	}
}

// Login exchanges an email and password for a session-backed access token.
// Failures come back as *APIError; check RemainingAttempts or IsBlocked.
func (c *SDKClient) Login(ctx context.Context, email, password string) (*Session, error) {
	body, err := json.Marshal(LoginRequest{Email: email, Password: password})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/auth/login", bytes.NewReader(body), map[string]string{
		"Content-Type": "application/json",
	})
	if err != nil {
		return nil, err
	}

	var loginResp LoginResponse
	if err := decodeJSON(resp, &loginResp, http.StatusOK); err != nil {
		return nil, err
	}

	return newSession(c, &loginResp), nil
}

// NewSessionFromToken wraps an existing access token, e.g. a service token.
func (c *SDKClient) NewSessionFromToken(accessToken, scope string, expiresAt time.Time) *Session {
	return &Session{
		client:      c,
		accessToken: accessToken,
		expiresAt:   expiresAt,
		scopes:      parseScopes(scope),
	}
}
