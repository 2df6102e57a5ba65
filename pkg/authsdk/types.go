package authsdk

import (
	"time"

	"github.com/aussiebroadwan/shopauth/pkg/jwtx"
)

// ============================================================================
// Common Types
// ============================================================================

// ErrorResponse is the JSON error envelope returned by every endpoint.
// Login failures additionally carry the brute-force guard's view.
type ErrorResponse struct {
	Error            string `json:"error" example:"invalid_credentials"`
	ErrorDescription string `json:"error_description,omitempty" example:"invalid email or password"`

	// RemainingAttempts is set on a 401 from the login endpoint.
	RemainingAttempts *int `json:"remaining_attempts,omitempty" example:"3"`

	// BlockedFor is the number of seconds left on an ip block (429).
	BlockedFor *int `json:"blocked_for,omitempty" example:"300"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string        `json:"status"           example:"ok"`
	Uptime  string        `json:"uptime,omitempty" example:"1h2m3s"`
	Version string        `json:"version"          example:"1.0.0"`
	Checks  *HealthChecks `json:"checks,omitempty"`

	// ActiveKID is the kid signing new tokens on the answering instance.
	ActiveKID string `json:"active_kid,omitempty" example:"3f9c2a7d0b1e4c5a8d6f7e9b0a1c2d3e"`
}

// HealthChecks holds the individual dependency checks of /readyz.
type HealthChecks struct {
	Database string `json:"database" example:"ok"`
	Cache    string `json:"cache"    example:"ok"`
	Signer   string `json:"signer"   example:"ok"`
}

// JWKSResponse represents the JSON Web Key Set response.
type JWKSResponse jwtx.JWKS

// ============================================================================
// Login and Session Types
// ============================================================================

// LoginRequest is the body of POST /v1/auth/login.
type LoginRequest struct {
	Email    string `json:"email"    example:"alice@example.com"`
	Password string `json:"password" example:"correct horse battery staple"`
}

// LoginResponse is returned on a successful login.
type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type" example:"Bearer"`
	ExpiresIn   int       `json:"expires_in" example:"900"`
	ExpiresAt   time.Time `json:"expires_at"`
	SessionID   string    `json:"session_id" example:"01HZY8Q6F4W1V0J0S4E5Q8T3RM"`
	Scope       string    `json:"scope" example:"user"`
	UserID      string    `json:"user_id"`
}

// SessionInfo describes one active session of the caller.
type SessionInfo struct {
	ID        string    `json:"id"`
	UserAgent string    `json:"user_agent,omitempty"`
	IP        string    `json:"ip,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Current   bool      `json:"current"`
}

// ListSessionsResponse is returned by GET /v1/sessions.
type ListSessionsResponse struct {
	Sessions []SessionInfo `json:"sessions"`
}

// RevokedResponse reports how many sessions an operation revoked.
type RevokedResponse struct {
	Revoked int `json:"revoked" example:"2"`
}

// ChangePasswordRequest is the body of POST /v1/auth/password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// ============================================================================
// Service Token Types
// ============================================================================

// ServiceTokenRequest asks for a token on behalf of a named service.
type ServiceTokenRequest struct {
	Service string `json:"service" example:"orders"`
}

// ServiceTokenResponse carries a freshly minted service token.
type ServiceTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type" example:"Bearer"`
	ExpiresIn   int    `json:"expires_in" example:"300"`
}

// IntrospectRequest is the body of POST /v1/introspect.
type IntrospectRequest struct {
	Token string `json:"token"`
}

// IntrospectionResponse follows the RFC 7662 shape. Inactive tokens only
// carry active=false.
type IntrospectionResponse struct {
	Active  bool   `json:"active"`
	Sub     string `json:"sub,omitempty"`
	Scope   string `json:"scope,omitempty"`
	Service string `json:"svc,omitempty"`
	Email   string `json:"email,omitempty"`
	JTI     string `json:"jti,omitempty"`
	Iat     int64  `json:"iat,omitempty"`
	Exp     int64  `json:"exp,omitempty"`
}

// ============================================================================
// Key Rotation Types
// ============================================================================

// RotateKeyRequest is the body of POST /v1/keys/rotate. Zero retention uses
// the server default.
type RotateKeyRequest struct {
	RetentionSeconds int `json:"retention_seconds,omitempty" example:"604800"`
}

// SigningKeyInfo represents a JWT signing key with its metadata.
type SigningKeyInfo struct {
	Kid       string     `json:"kid"`
	Algorithm string     `json:"algorithm" example:"RS256"`
	Active    bool       `json:"active"`
	CreatedAt time.Time  `json:"created_at"`
	RetireAt  *time.Time `json:"retire_at,omitempty"`
}

// RotateKeyResponse represents the result of a key rotation operation.
type RotateKeyResponse struct {
	KID           string    `json:"kid"`
	PreviousKID   string    `json:"previous_kid"`
	RetainedUntil time.Time `json:"retained_until"`
}
