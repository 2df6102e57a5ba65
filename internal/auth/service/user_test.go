package service

import (
	"context"
	"testing"

	"github.com/aussiebroadwan/shopauth/internal/auth/store"
	"github.com/aussiebroadwan/shopauth/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func TestCreateUserValidation(t *testing.T) {
	ctx := context.Background()
	d := &UserDirectory{Store: newTestStore(t), Hasher: cheapHasher(), Logger: discard}

	tests := []struct {
		name     string
		email    string
		password string
		want     error
	}{
		{"missing at", "alice.example.com", "long enough", ErrInvalidEmail},
		{"empty local part", "@example.com", "long enough", ErrInvalidEmail},
		{"empty domain", "alice@", "long enough", ErrInvalidEmail},
		{"short password", "alice@example.com", "short", ErrWeakPassword},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.CreateUser(ctx, tt.email, tt.password, false)
			require.ErrorIs(t, err, tt.want)
		})
	}

	u, err := d.CreateUser(ctx, " Alice@Example.com ", "long enough", false)
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", u.Email)
	require.True(t, u.IsActive)

	_, err = d.CreateUser(ctx, "alice@example.com", "another one", false)
	require.ErrorIs(t, err, store.ErrAlreadyExists)
}

func TestVerifyCredentials(t *testing.T) {
	ctx := context.Background()
	d := &UserDirectory{Store: newTestStore(t), Hasher: cheapHasher(), Logger: discard}
	u, err := d.CreateUser(ctx, "alice@example.com", "correct horse", false)
	require.NoError(t, err)

	got, err := d.VerifyCredentials(ctx, "ALICE@example.com", "correct horse")
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)

	_, err = d.VerifyCredentials(ctx, "alice@example.com", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = d.VerifyCredentials(ctx, "bob@example.com", "correct horse")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = (&UserDirectory{Store: brokenStore{}, Hasher: cheapHasher(), Logger: discard}).
		VerifyCredentials(ctx, "alice@example.com", "correct horse")
	require.ErrorIs(t, err, errUnavailable)
}

func TestVerifyCredentialsRehashes(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	old := cheapHasher()
	old.Params.Iterations = 2
	u, err := (&UserDirectory{Store: st, Hasher: old, Logger: discard}).
		CreateUser(ctx, "alice@example.com", "correct horse", false)
	require.NoError(t, err)

	current := cheapHasher()
	require.True(t, current.NeedsRehash(u.PasswordHash))

	d := &UserDirectory{Store: st, Hasher: current, Logger: discard}
	_, err = d.VerifyCredentials(ctx, "alice@example.com", "correct horse")
	require.NoError(t, err)

	stored, err := st.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotEqual(t, u.PasswordHash, stored.PasswordHash)
	require.False(t, current.NeedsRehash(stored.PasswordHash))
	require.NoError(t, current.Verify("correct horse", stored.PasswordHash))
}

func TestVerifyCredentialsPepper(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	_, err := (&UserDirectory{Store: st, Hasher: cheapHasher(), Logger: discard}).
		CreateUser(ctx, "alice@example.com", "correct horse", false)
	require.NoError(t, err)

	other := cheapHasher()
	other.Pepper = []byte("rotated")
	_, err = (&UserDirectory{Store: st, Hasher: other, Logger: discard}).
		VerifyCredentials(ctx, "alice@example.com", "correct horse")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestSeedAdmin(t *testing.T) {
	ctx := context.Background()
	d := &UserDirectory{Store: newTestStore(t), Hasher: cheapHasher(), Logger: discard}

	created, err := d.SeedAdmin(ctx, "ops@example.com", "correct horse")
	require.NoError(t, err)
	require.True(t, created)

	created, err = d.SeedAdmin(ctx, "other@example.com", "correct horse")
	require.NoError(t, err)
	require.False(t, created, "seeding only happens on an empty directory")

	u, err := d.GetUserByEmail(ctx, "OPS@example.com")
	require.NoError(t, err)
	require.True(t, u.IsStaff)
	require.NoError(t, cryptox.NewPasswordHasher([]byte("test-pepper")).Verify("correct horse", u.PasswordHash))
}
