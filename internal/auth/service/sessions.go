package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/shopauth/internal/auth/cache"
	"github.com/aussiebroadwan/shopauth/internal/auth/domain"
	"github.com/aussiebroadwan/shopauth/internal/auth/metrics"
	"github.com/aussiebroadwan/shopauth/internal/auth/store"
	"github.com/aussiebroadwan/shopauth/pkg/idx"
	"github.com/aussiebroadwan/shopauth/pkg/slogx"
	"golang.org/x/sync/singleflight"
)

// Revocation reasons recorded on session rows.
const (
	ReasonRevokedByUser  = "Revoked by user"
	ReasonLogout         = "User logout"
	ReasonLogoutAll      = "Logout from all devices"
	ReasonPasswordChange = "Password changed"
	ReasonNewLogin       = "New login"
	ReasonExpired        = "Token expired"
	ReasonUserDisabled   = "User disabled"
)

const sessionsComponent = "sessions"

// DefaultSessionListTTL bounds how stale a cached session list can be.
const DefaultSessionListTTL = time.Minute

// SessionRegistry tracks one row per issued access token so tokens can be
// revoked before they expire.
//
// Only CreateSession reports store errors: a token minted without a row
// could never be revoked. Every other operation logs the failure and fails
// closed. That is not configurable.
type SessionRegistry struct {
	Store   store.Store
	Cache   cache.Cache
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Clock   func() time.Time
	ListTTL time.Duration

	lists singleflight.Group
}

// NewSessionRegistry returns a fail-closed registry.
func NewSessionRegistry(st store.Store, c cache.Cache, logger *slog.Logger, m *metrics.Metrics) *SessionRegistry {
	return &SessionRegistry{
		Store:   st,
		Cache:   c,
		Logger:  logger,
		Metrics: m,
		Clock:   time.Now,
		ListTTL: DefaultSessionListTTL,
	}
}

func (r *SessionRegistry) now() time.Time {
	if r.Clock == nil {
		return time.Now().UTC()
	}
	return r.Clock().UTC()
}

func (r *SessionRegistry) fail(ctx context.Context, op string, err error) {
	storeFailure(ctx, r.Logger, r.Metrics, sessionsComponent, FailClosed, op, err)
}

// invalidate drops the cached session lists of the given users. A failure
// here only leaves a list stale until ListTTL, so it is logged and ignored.
func (r *SessionRegistry) invalidate(ctx context.Context, userIDs ...string) {
	if r.Cache == nil || len(userIDs) == 0 {
		return
	}
	keys := make([]string, 0, len(userIDs))
	seen := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		keys = append(keys, cache.UserSessionsKey(id))
	}
	if err := r.Cache.Delete(ctx, keys...); err != nil {
		slogx.FromContextOr(ctx, r.Logger).Warn("session list invalidation failed", "users", len(keys), "error", err)
	}
}

// CreateSession records a freshly issued token.
func (r *SessionRegistry) CreateSession(ctx context.Context, userID, jti, userAgent, ip string, expiresAt time.Time) (domain.Session, error) {
	now := r.now()
	s := domain.Session{
		ID:        idx.NewAt(now).String(),
		JTI:       jti,
		UserID:    userID,
		UserAgent: userAgent,
		IP:        ip,
		CreatedAt: now,
		ExpiresAt: expiresAt.UTC(),
		IsActive:  true,
	}
	if err := r.Store.Sessions().CreateSession(ctx, s); err != nil {
		return domain.Session{}, fmt.Errorf("service: create session: %w", err)
	}
	r.invalidate(ctx, userID)
	return s, nil
}

// IsSessionActive reports whether jti belongs to an active, unexpired
// session. A store error reads as inactive.
func (r *SessionRegistry) IsSessionActive(ctx context.Context, jti string) bool {
	s, err := r.Store.Sessions().GetSessionByJTI(ctx, jti)
	if errors.Is(err, store.ErrNotFound) {
		return false
	}
	if err != nil {
		r.fail(ctx, "is_session_active", err)
		return false
	}
	return s.IsUsable(r.now())
}

// RevokeSession revokes one of userID's own sessions by row id. It reports
// false when nothing changed: unknown id, someone else's session, or
// already revoked.
func (r *SessionRegistry) RevokeSession(ctx context.Context, sessionID, userID string) bool {
	ok, err := r.Store.Sessions().RevokeSession(ctx, sessionID, userID, ReasonRevokedByUser, r.now())
	if err != nil {
		r.fail(ctx, "revoke_session", err)
		return false
	}
	if !ok {
		return false
	}
	r.invalidate(ctx, userID)
	r.Metrics.SessionsRevoked("revoke_session", 1)
	return true
}

// RevokeSessionByJTI revokes the session behind a token. It reports true
// exactly once per session.
func (r *SessionRegistry) RevokeSessionByJTI(ctx context.Context, jti, reason string) bool {
	userID, ok, err := r.Store.Sessions().RevokeSessionByJTI(ctx, jti, reason, r.now())
	if err != nil {
		r.fail(ctx, "revoke_session_by_jti", err)
		return false
	}
	if !ok {
		return false
	}
	r.invalidate(ctx, userID)
	r.Metrics.SessionsRevoked("revoke_by_jti", 1)
	return true
}

// RevokeAllUserSessions revokes every active session of userID except
// excludeJTI and returns how many rows changed. It never fails; a store
// error yields 0.
func (r *SessionRegistry) RevokeAllUserSessions(ctx context.Context, userID, excludeJTI, reason string) int {
	n, err := r.Store.Sessions().RevokeAllUserSessions(ctx, userID, excludeJTI, reason, r.now())
	if err != nil {
		r.fail(ctx, "revoke_all_user_sessions", err)
		return 0
	}
	r.noteRevoked(ctx, userID, n)
	return int(n)
}

// revokeAllInTx is RevokeAllUserSessions bound to the caller's transaction.
// Unlike the registry methods it returns the store error, so the caller can
// roll back. Call noteRevoked once the transaction commits. A nil registry
// revokes nothing.
func (r *SessionRegistry) revokeAllInTx(ctx context.Context, tx store.Tx, userID, excludeJTI, reason string) (int64, error) {
	if r == nil {
		return 0, nil
	}
	n, err := tx.Sessions().RevokeAllUserSessions(ctx, userID, excludeJTI, reason, r.now())
	if err != nil {
		return 0, fmt.Errorf("service: revoke sessions: %w", err)
	}
	return n, nil
}

// noteRevoked invalidates the list and counts n committed revocations.
func (r *SessionRegistry) noteRevoked(ctx context.Context, userID string, n int64) {
	if r == nil || n == 0 {
		return
	}
	r.invalidate(ctx, userID)
	r.Metrics.SessionsRevoked("revoke_all", int(n))
}

// CleanupExpiredSessions revokes every active session past its expiry with
// reason "Token expired". Concurrent runs never revoke a row twice.
func (r *SessionRegistry) CleanupExpiredSessions(ctx context.Context) int {
	userIDs, err := r.Store.Sessions().RevokeExpiredSessions(ctx, r.now(), ReasonExpired)
	if err != nil {
		r.fail(ctx, "cleanup_expired_sessions", err)
		return 0
	}
	r.invalidate(ctx, userIDs...)
	r.Metrics.SessionsRevoked("cleanup", len(userIDs))
	return len(userIDs)
}

// ListUserSessions returns the user's active sessions, newest first, read
// through the session-list cache. Concurrent misses for one user share a
// single store query.
//
// A fill first parks a marker under the key and only replaces that same
// marker with the list. An invalidation during the store read deletes the
// marker, so a list read before a revoke is never cached.
func (r *SessionRegistry) ListUserSessions(ctx context.Context, userID string) ([]domain.Session, error) {
	key := cache.UserSessionsKey(userID)
	log := slogx.FromContextOr(ctx, r.Logger)

	if r.Cache != nil {
		raw, err := r.Cache.Get(ctx, key)
		switch {
		case err == nil && bytes.HasPrefix(raw, fillMarkerPrefix):
			// another fill is in flight
		case err == nil:
			var cached []domain.Session
			if jerr := json.Unmarshal(raw, &cached); jerr == nil {
				return r.usable(cached), nil
			}
			log.Warn("discarding malformed session list", "user_id", userID)
			r.invalidate(ctx, userID)
		case !errors.Is(err, cache.ErrMiss):
			log.Warn("session list cache read failed", "user_id", userID, "error", err)
		}
	}

	v, err, _ := r.lists.Do(userID, func() (any, error) {
		marker, claimed := r.claimFill(ctx, key)
		sessions, err := r.Store.Sessions().ListActiveUserSessions(ctx, userID, r.now())
		if err != nil {
			return nil, err
		}
		if claimed {
			r.completeFill(ctx, key, marker, sessions)
		}
		return sessions, nil
	})
	if err != nil {
		return nil, fmt.Errorf("service: list sessions: %w", err)
	}
	return v.([]domain.Session), nil
}

var fillMarkerPrefix = []byte("fill:")

// claimFill parks a fresh marker under key unless something is already
// cached there.
func (r *SessionRegistry) claimFill(ctx context.Context, key string) ([]byte, bool) {
	if r.Cache == nil {
		return nil, false
	}
	marker := append(bytes.Clone(fillMarkerPrefix), idx.New().String()...)
	claimed := false
	err := r.Cache.Update(ctx, key, r.ListTTL, func(_ []byte, found bool) ([]byte, bool, error) {
		claimed = !found
		return marker, claimed, nil
	})
	if err != nil {
		slogx.FromContextOr(ctx, r.Logger).Warn("session list cache write failed", "key", key, "error", err)
		return nil, false
	}
	return marker, claimed
}

// completeFill swaps marker for the list if the marker is still in place.
func (r *SessionRegistry) completeFill(ctx context.Context, key string, marker []byte, sessions []domain.Session) {
	raw, err := json.Marshal(sessions)
	if err != nil {
		return
	}
	err = r.Cache.Update(ctx, key, r.ListTTL, func(current []byte, found bool) ([]byte, bool, error) {
		if !found || !bytes.Equal(current, marker) {
			return nil, false, nil
		}
		return raw, true, nil
	})
	if err != nil {
		slogx.FromContextOr(ctx, r.Logger).Warn("session list cache write failed", "key", key, "error", err)
	}
}

// usable drops entries that expired while the list sat in the cache.
func (r *SessionRegistry) usable(sessions []domain.Session) []domain.Session {
	now := r.now()
	out := sessions[:0]
	for _, s := range sessions {
		if s.IsUsable(now) {
			out = append(out, s)
		}
	}
	return out
}
