package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/shopauth/pkg/httpx"
)

var (
	ErrInvalidCredentials = errors.New("service: invalid credentials")
	ErrSessionRevoked     = fmt.Errorf("service: session revoked: %w", httpx.ErrSessionInactive)
	ErrUserInactive       = errors.New("service: user inactive")
	ErrWeakPassword       = errors.New("service: password does not meet policy")
	ErrInvalidEmail       = errors.New("service: invalid email")
)

// BlockedError is returned by Login while the caller's ip is blocked.
type BlockedError struct {
	BlockedFor   time.Duration
	BlockedUntil time.Time
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("service: too many failed attempts, blocked for %s", e.BlockedFor.Round(time.Second))
}

// CredentialsError is a failed login that did not trigger a block.
type CredentialsError struct {
	RemainingAttempts int
}

func (e *CredentialsError) Error() string {
	return fmt.Sprintf("service: invalid credentials, %d attempts remaining", e.RemainingAttempts)
}

func (e *CredentialsError) Unwrap() error { return ErrInvalidCredentials }
