package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/shopauth/internal/auth/domain"
	"github.com/aussiebroadwan/shopauth/internal/auth/store"
	"github.com/aussiebroadwan/shopauth/pkg/cryptox"
	"github.com/aussiebroadwan/shopauth/pkg/idx"
	"github.com/aussiebroadwan/shopauth/pkg/slogx"
)

// MinPasswordLength is enforced on create and change.
const MinPasswordLength = 8

// UserDirectory resolves and authenticates users.
type UserDirectory struct {
	Store    store.Store
	Hasher   *cryptox.PasswordHasher
	Logger   *slog.Logger
	Sessions *SessionRegistry

	dummyOnce sync.Once
	dummyHash string
}

// GetUserByID fetches a user by id.
func (d *UserDirectory) GetUserByID(ctx context.Context, userID string) (domain.User, error) {
	return d.Store.Users().GetUserByID(ctx, userID)
}

// GetUserByEmail fetches a user by email, case-insensitively.
func (d *UserDirectory) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return d.Store.Users().GetUserByEmail(ctx, normalizeEmail(email))
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// dummy returns a hash verified against when the user does not exist, so
// unknown emails cost the same argon2 work as known ones.
func (d *UserDirectory) dummy() string {
	d.dummyOnce.Do(func() {
		h, err := d.Hasher.Hash("shopauth-dummy-password")
		if err != nil {
			return
		}
		d.dummyHash = h
	})
	return d.dummyHash
}

// VerifyCredentials checks email and password. Unknown users and wrong
// passwords both yield ErrInvalidCredentials; a correct password on a
// disabled account yields ErrUserInactive.
func (d *UserDirectory) VerifyCredentials(ctx context.Context, email, password string) (domain.User, error) {
	u, err := d.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		if h := d.dummy(); h != "" {
			_ = d.Hasher.Verify(password, h)
		}
		return domain.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("service: lookup user: %w", err)
	}

	if err := d.Hasher.Verify(password, u.PasswordHash); err != nil {
		if !errors.Is(err, cryptox.ErrPasswordMismatch) {
			slogx.FromContextOr(ctx, d.Logger).Error("stored password hash unreadable", "user_id", u.ID, "error", err)
		}
		return domain.User{}, ErrInvalidCredentials
	}
	if !u.IsActive {
		return domain.User{}, ErrUserInactive
	}

	if d.Hasher.NeedsRehash(u.PasswordHash) {
		if h, err := d.Hasher.Hash(password); err == nil {
			if err := d.Store.Users().UpdatePasswordHash(ctx, u.ID, h); err != nil {
				slogx.FromContextOr(ctx, d.Logger).Warn("password rehash failed", "user_id", u.ID, "error", err)
			} else {
				u.PasswordHash = h
			}
		}
	}
	return u, nil
}

func validateNewUser(email, password string) error {
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return ErrInvalidEmail
	}
	if len(password) < MinPasswordLength {
		return ErrWeakPassword
	}
	return nil
}

// CreateUser adds an active user. Used by the CLI and by the bootstrap
// seed.
func (d *UserDirectory) CreateUser(ctx context.Context, email, password string, staff bool) (domain.User, error) {
	email = normalizeEmail(email)
	if err := validateNewUser(email, password); err != nil {
		return domain.User{}, err
	}
	hash, err := d.Hasher.Hash(password)
	if err != nil {
		return domain.User{}, fmt.Errorf("service: hash password: %w", err)
	}

	now := time.Now().UTC()
	u := domain.User{
		ID:           idx.NewAt(now).String(),
		Email:        email,
		PasswordHash: hash,
		IsActive:     true,
		IsStaff:      staff,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := d.Store.Users().CreateUser(ctx, u); err != nil {
		return domain.User{}, fmt.Errorf("service: create user: %w", err)
	}
	return u, nil
}

// SeedAdmin creates a staff user when the directory is empty. It reports
// whether a user was created.
func (d *UserDirectory) SeedAdmin(ctx context.Context, email, password string) (bool, error) {
	empty, err := d.Store.Users().IsEmpty(ctx)
	if err != nil {
		return false, fmt.Errorf("service: check users: %w", err)
	}
	if !empty {
		return false, nil
	}
	if _, err := d.CreateUser(ctx, email, password, true); err != nil {
		return false, err
	}
	slogx.FromContextOr(ctx, d.Logger).Info("seeded staff user", "email", normalizeEmail(email))
	return true, nil
}

// ChangePassword replaces the password of userID after checking current,
// then revokes every other session of the user. currentJTI keeps the
// calling session alive. It returns the number of sessions revoked.
func (d *UserDirectory) ChangePassword(ctx context.Context, userID, currentJTI, current, next string) (int, error) {
	u, err := d.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("service: lookup user: %w", err)
	}
	if err := d.Hasher.Verify(current, u.PasswordHash); err != nil {
		return 0, ErrInvalidCredentials
	}
	if len(next) < MinPasswordLength {
		return 0, ErrWeakPassword
	}

	hash, err := d.Hasher.Hash(next)
	if err != nil {
		return 0, fmt.Errorf("service: hash password: %w", err)
	}

	// The new hash and the revocations commit together, so a failed revoke
	// leaves the old password in place.
	var revoked int64
	err = d.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().UpdatePasswordHash(ctx, u.ID, hash); err != nil {
			return fmt.Errorf("service: update password: %w", err)
		}
		revoked, err = d.Sessions.revokeAllInTx(ctx, tx, u.ID, currentJTI, ReasonPasswordChange)
		return err
	})
	if err != nil {
		return 0, err
	}
	d.Sessions.noteRevoked(ctx, u.ID, revoked)
	return int(revoked), nil
}

// SetActive enables or disables a user. Disabling also revokes every
// session of the user.
func (d *UserDirectory) SetActive(ctx context.Context, userID string, active bool) error {
	var revoked int64
	err := d.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().SetUserActive(ctx, userID, active); err != nil {
			return fmt.Errorf("service: set user active: %w", err)
		}
		if active {
			return nil
		}
		var err error
		revoked, err = d.Sessions.revokeAllInTx(ctx, tx, userID, "", ReasonUserDisabled)
		return err
	})
	if err != nil {
		return err
	}
	d.Sessions.noteRevoked(ctx, userID, revoked)
	return nil
}
