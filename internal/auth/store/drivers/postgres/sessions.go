package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/shopauth/internal/auth/domain"
	"github.com/jackc/pgx/v5"
)

const sessionColumns = `id, jti, user_id, user_agent, ip, created_at, expires_at, is_active, revoked_at, revoked_reason`

type sessionsRepo struct {
	db dbtx
}

func scanSession(row pgx.Row) (domain.Session, error) {
	var s domain.Session
	err := row.Scan(&s.ID, &s.JTI, &s.UserID, &s.UserAgent, &s.IP,
		&s.CreatedAt, &s.ExpiresAt, &s.IsActive, &s.RevokedAt, &s.RevokedReason)
	if err != nil {
		return domain.Session{}, err
	}
	s.CreatedAt = s.CreatedAt.UTC()
	s.ExpiresAt = s.ExpiresAt.UTC()
	if s.RevokedAt != nil {
		at := s.RevokedAt.UTC()
		s.RevokedAt = &at
	}
	return s, nil
}

func (r *sessionsRepo) CreateSession(ctx context.Context, s domain.Session) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO sessions (id, jti, user_id, user_agent, ip, created_at, expires_at, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE)`,
		s.ID, s.JTI, s.UserID, s.UserAgent, s.IP, s.CreatedAt, s.ExpiresAt)
	return mapConstraint(err)
}

func (r *sessionsRepo) GetSessionByJTI(ctx context.Context, jti string) (domain.Session, error) {
	s, err := scanSession(r.db.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE jti = $1`, jti))
	return s, mapNotFound(err)
}

func (r *sessionsRepo) ListActiveUserSessions(ctx context.Context, userID string, now time.Time) ([]domain.Session, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE user_id = $1 AND is_active AND expires_at > $2
		ORDER BY created_at DESC, id DESC`, userID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := []domain.Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func (r *sessionsRepo) RevokeSession(ctx context.Context, id, userID, reason string, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE sessions SET is_active = FALSE, revoked_at = $1, revoked_reason = $2
		WHERE id = $3 AND user_id = $4 AND is_active`, at, reason, id, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *sessionsRepo) RevokeSessionByJTI(ctx context.Context, jti, reason string, at time.Time) (string, bool, error) {
	var userID string
	err := r.db.QueryRow(ctx, `
		UPDATE sessions SET is_active = FALSE, revoked_at = $1, revoked_reason = $2
		WHERE jti = $3 AND is_active
		RETURNING user_id`, at, reason, jti).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return userID, true, nil
}

func (r *sessionsRepo) RevokeAllUserSessions(ctx context.Context, userID, excludeJTI, reason string, at time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE sessions SET is_active = FALSE, revoked_at = $1, revoked_reason = $2
		WHERE user_id = $3 AND is_active AND jti <> $4`, at, reason, userID, excludeJTI)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *sessionsRepo) RevokeExpiredSessions(ctx context.Context, now time.Time, reason string) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		UPDATE sessions SET is_active = FALSE, revoked_at = $1, revoked_reason = $2
		WHERE is_active AND expires_at <= $1
		RETURNING user_id`, now, reason)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (r *sessionsRepo) DeleteRevokedSessionsBefore(ctx context.Context, t time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE NOT is_active AND revoked_at < $1`, t)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
