package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/aussiebroadwan/shopauth/internal/auth/domain"
	"github.com/aussiebroadwan/shopauth/internal/auth/store/drivers/sqlite/gen"
)

type sessionsRepo struct {
	q *gen.Queries
}

func (r *sessionsRepo) CreateSession(ctx context.Context, s domain.Session) error {
	err := r.q.CreateSession(ctx, gen.CreateSessionParams{
		ID:        s.ID,
		Jti:       s.JTI,
		UserID:    s.UserID,
		UserAgent: s.UserAgent,
		Ip:        s.IP,
		CreatedAt: utc(s.CreatedAt),
		ExpiresAt: utc(s.ExpiresAt),
	})
	return mapConstraint(err)
}

func (r *sessionsRepo) GetSessionByJTI(ctx context.Context, jti string) (domain.Session, error) {
	row, err := r.q.GetSessionByJTI(ctx, jti)
	if err != nil {
		return domain.Session{}, mapNotFound(err)
	}
	return mapSession(row), nil
}

func (r *sessionsRepo) ListActiveUserSessions(ctx context.Context, userID string, now time.Time) ([]domain.Session, error) {
	rows, err := r.q.ListActiveUserSessions(ctx, gen.ListActiveUserSessionsParams{
		UserID:    userID,
		ExpiresAt: utc(now),
	})
	if err != nil {
		return nil, err
	}

	sessions := make([]domain.Session, len(rows))
	for i, row := range rows {
		sessions[i] = mapSession(row)
	}
	return sessions, nil
}

func (r *sessionsRepo) RevokeSession(ctx context.Context, id, userID, reason string, at time.Time) (bool, error) {
	n, err := r.q.RevokeSession(ctx, gen.RevokeSessionParams{
		RevokedAt:     nullTime(at),
		RevokedReason: nullString(reason),
		ID:            id,
		UserID:        userID,
	})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *sessionsRepo) RevokeSessionByJTI(ctx context.Context, jti, reason string, at time.Time) (string, bool, error) {
	userID, err := r.q.RevokeSessionByJTI(ctx, gen.RevokeSessionByJTIParams{
		RevokedAt:     nullTime(at),
		RevokedReason: nullString(reason),
		Jti:           jti,
	})
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return userID, true, nil
}

func (r *sessionsRepo) RevokeAllUserSessions(ctx context.Context, userID, excludeJTI, reason string, at time.Time) (int64, error) {
	return r.q.RevokeAllUserSessions(ctx, gen.RevokeAllUserSessionsParams{
		RevokedAt:     nullTime(at),
		RevokedReason: nullString(reason),
		UserID:        userID,
		Jti:           excludeJTI,
	})
}

func (r *sessionsRepo) RevokeExpiredSessions(ctx context.Context, now time.Time, reason string) ([]string, error) {
	return r.q.RevokeExpiredSessions(ctx, gen.RevokeExpiredSessionsParams{
		RevokedAt:     nullTime(now),
		RevokedReason: nullString(reason),
		ExpiresAt:     utc(now),
	})
}

func (r *sessionsRepo) DeleteRevokedSessionsBefore(ctx context.Context, t time.Time) (int64, error) {
	return r.q.DeleteRevokedSessionsBefore(ctx, nullTime(t))
}
