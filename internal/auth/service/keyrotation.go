package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/shopauth/internal/auth/domain"
	"github.com/aussiebroadwan/shopauth/internal/auth/metrics"
	"github.com/aussiebroadwan/shopauth/pkg/jwtx"
	"github.com/aussiebroadwan/shopauth/pkg/slogx"
)

// KeyRotationService rotates the process signing key at runtime, either on
// demand or from the housekeeping schedule.
type KeyRotationService struct {
	KeyManager *jwtx.KeyManager
	Logger     *slog.Logger
	Metrics    *metrics.Metrics

	// Retention is used when RotateKey is called with zero retention.
	Retention time.Duration

	mu sync.Mutex
}

// RotateKeyResult describes a completed rotation.
type RotateKeyResult struct {
	KID           string    `json:"kid"`
	PreviousKID   string    `json:"previous_kid"`
	RetainedUntil time.Time `json:"retained_until"`
}

// RotateKey makes a freshly generated key active and keeps the previous one
// published for retention (raised to the manager's minimum). On failure the
// current key stays active.
func (s *KeyRotationService) RotateKey(ctx context.Context, retention time.Duration) (RotateKeyResult, error) {
	if s.KeyManager == nil {
		return RotateKeyResult{}, fmt.Errorf("%w: key manager is required", jwtx.ErrConfiguration)
	}
	if retention <= 0 {
		retention = s.Retention
	}

	// held across Rotate so PreviousKID is the key this call replaced
	s.mu.Lock()
	prev := s.KeyManager.ActiveKID()
	kid, until, err := s.KeyManager.Rotate(retention)
	s.mu.Unlock()

	log := slogx.FromContextOr(ctx, s.Logger)
	if err != nil {
		log.Error("key rotation failed", "active_kid", prev, "error", err)
		return RotateKeyResult{}, err
	}

	s.Metrics.KeyRotated()
	s.Metrics.JWKSKeys(len(s.KeyManager.JWKS().Keys))
	log.Info("signing key rotated", "kid", kid, "previous_kid", prev, "retained_until", until)

	return RotateKeyResult{KID: kid, PreviousKID: prev, RetainedUntil: until}, nil
}

// ListKeys returns the published keys, active first.
func (s *KeyRotationService) ListKeys() []domain.SigningKey {
	infos := s.KeyManager.Keys()
	out := make([]domain.SigningKey, 0, len(infos))
	for _, ki := range infos {
		out = append(out, domain.SigningKey{
			Kid:       ki.KID,
			Algorithm: jwtx.AlgorithmRS256,
			Active:    ki.Active,
			CreatedAt: ki.CreatedAt,
			RetireAt:  ki.RetireAt,
		})
	}
	return out
}
