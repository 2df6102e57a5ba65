package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/shopauth/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite, postgres)
// implement this. Repositories hang off the store so a Tx-scoped store hands
// out the same repos bound to the transaction.
type Store interface {
	Sessions() Sessions
	Users() Users

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction. A non-nil error from fn rolls
	// the transaction back; otherwise it is committed.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Sessions interface {
	// CreateSession inserts a new active session. A duplicate jti yields
	// ErrAlreadyExists.
	CreateSession(ctx context.Context, s domain.Session) error

	// GetSessionByJTI returns the session for a token id.
	GetSessionByJTI(ctx context.Context, jti string) (domain.Session, error)

	// ListActiveUserSessions returns active, unexpired sessions newest first.
	ListActiveUserSessions(ctx context.Context, userID string, now time.Time) ([]domain.Session, error)

	// RevokeSession deactivates one session owned by userID. It reports false
	// when no active row matched.
	RevokeSession(ctx context.Context, id, userID, reason string, at time.Time) (bool, error)

	// RevokeSessionByJTI deactivates the session for jti and returns its owner.
	// ok is false when no active row matched.
	RevokeSessionByJTI(ctx context.Context, jti, reason string, at time.Time) (userID string, ok bool, err error)

	// RevokeAllUserSessions deactivates every active session of userID except
	// excludeJTI (empty excludes nothing) and returns the rows mutated.
	RevokeAllUserSessions(ctx context.Context, userID, excludeJTI, reason string, at time.Time) (int64, error)

	// RevokeExpiredSessions deactivates active sessions with expires_at <= now
	// and returns the owner of each mutated row.
	RevokeExpiredSessions(ctx context.Context, now time.Time, reason string) ([]string, error)

	// DeleteRevokedSessionsBefore hard-deletes inactive rows revoked before t.
	// Only operators call this; the service itself never deletes sessions.
	DeleteRevokedSessionsBefore(ctx context.Context, t time.Time) (int64, error)
}

type Users interface {
	// GetUserByID returns a user by id.
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByEmail looks up a user by lowercased email.
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	// CreateUser inserts a new user (id is provided by app via ULID).
	CreateUser(ctx context.Context, u domain.User) error

	// UpdatePasswordHash sets the password_hash (argon2) and bumps updated_at.
	UpdatePasswordHash(ctx context.Context, userID string, newHash string) error

	SetUserActive(ctx context.Context, userID string, active bool) error

	// IsEmpty returns true if there are no users.
	IsEmpty(ctx context.Context) (bool, error)
}
