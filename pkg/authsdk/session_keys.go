package authsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Admin operations. All of them require the "admin" scope.

const scopeAdmin = "admin"

// RotateKey rotates the JWT signing key. The previous key stays in the
// JWKS for the requested retention, or the server default when zero.
func (s *Session) RotateKey(ctx context.Context, retention time.Duration) (*RotateKeyResponse, error) {
	body, err := json.Marshal(RotateKeyRequest{RetentionSeconds: int(retention / time.Second)})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := s.doAuthRequest(
		ctx,
		http.MethodPost,
		"/v1/keys/rotate",
		bytes.NewReader(body),
		map[string]string{"Content-Type": "application/json"},
		scopeAdmin,
	)
	if err != nil {
		return nil, err
	}

	var rotateResp RotateKeyResponse
	if err := decodeJSON(resp, &rotateResp, http.StatusOK); err != nil {
		return nil, err
	}

	return &rotateResp, nil
}

// ListKeys returns the active key and the retired keys still published.
func (s *Session) ListKeys(ctx context.Context) ([]SigningKeyInfo, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodGet, "/v1/keys", nil, nil, scopeAdmin)
	if err != nil {
		return nil, err
	}

	var keys []SigningKeyInfo
	if err := decodeJSON(resp, &keys, http.StatusOK); err != nil {
		return nil, err
	}

	return keys, nil
}

// IssueServiceToken mints a short-lived token for the named service.
func (s *Session) IssueServiceToken(ctx context.Context, service string) (*ServiceTokenResponse, error) {
	body, err := json.Marshal(ServiceTokenRequest{Service: service})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := s.doAuthRequest(
		ctx,
		http.MethodPost,
		"/v1/service-tokens",
		bytes.NewReader(body),
		map[string]string{"Content-Type": "application/json"},
		scopeAdmin,
	)
	if err != nil {
		return nil, err
	}

	var out ServiceTokenResponse
	if err := decodeJSON(resp, &out, http.StatusCreated); err != nil {
		return nil, err
	}
	return &out, nil
}
