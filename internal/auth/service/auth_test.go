package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aussiebroadwan/shopauth/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func login(f *fixture, email, password string) (LoginResult, error) {
	return f.auth.Login(context.Background(), LoginRequest{
		Email:     email,
		Password:  password,
		IP:        "203.0.113.5",
		UserAgent: "test/1.0",
	})
}

func TestLoginIssuesSessionBackedToken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.createUser(t, "alice@example.com", "correct horse", false)

	res, err := login(f, "Alice@Example.com", "correct horse")
	require.NoError(t, err)
	require.Equal(t, "Bearer", res.TokenType)
	require.Equal(t, 900, res.ExpiresIn)
	require.True(t, f.clock.Now().Add(15*time.Minute).Equal(res.ExpiresAt))
	require.Equal(t, u.ID, res.User.ID)

	claims, err := f.auth.Authenticate(ctx, res.AccessToken)
	require.NoError(t, err)
	require.Equal(t, u.ID, claims.Subject)
	require.Equal(t, res.JTI, claims.ID)
	require.Equal(t, "alice@example.com", claims.StringClaim("email"))
	require.False(t, claims.BoolClaim("staff"))
	require.True(t, claims.HasScope(ScopeUser))
	require.False(t, claims.HasScope(ScopeAdmin))

	s, err := f.store.Sessions().GetSessionByJTI(ctx, res.JTI)
	require.NoError(t, err)
	require.Equal(t, res.SessionID, s.ID)
	require.Equal(t, "203.0.113.5", s.IP)
	require.True(t, res.ExpiresAt.Equal(s.ExpiresAt))
}

func TestLoginStaffGetsAdminScope(t *testing.T) {
	f := newFixture(t)
	f.createUser(t, "ops@example.com", "correct horse", true)

	res, err := login(f, "ops@example.com", "correct horse")
	require.NoError(t, err)

	claims, err := f.issuer.DecodeToken(res.AccessToken)
	require.NoError(t, err)
	require.True(t, claims.HasScope(ScopeAdmin))
	require.True(t, claims.BoolClaim("staff"))
}

func TestLoginFailuresBlockIP(t *testing.T) {
	f := newFixture(t)
	f.createUser(t, "alice@example.com", "correct horse", false)

	for want := DefaultMaxFailedAttempts - 1; want > 0; want-- {
		_, err := login(f, "alice@example.com", "wrong")
		var cerr *CredentialsError
		require.ErrorAs(t, err, &cerr)
		require.ErrorIs(t, err, ErrInvalidCredentials)
		require.Equal(t, want, cerr.RemainingAttempts)
	}

	_, err := login(f, "alice@example.com", "wrong")
	var berr *BlockedError
	require.ErrorAs(t, err, &berr)
	require.Equal(t, DefaultBlockTime, berr.BlockedFor)
	require.Equal(t, f.clock.Now().Add(DefaultBlockTime), berr.BlockedUntil)

	f.clock.Advance(time.Minute)
	_, err = login(f, "alice@example.com", "correct horse")
	require.ErrorAs(t, err, &berr, "the right password does not bypass a block")
	require.Equal(t, DefaultBlockTime-time.Minute, berr.BlockedFor)
	require.Equal(t, f.clock.Now().Add(DefaultBlockTime-time.Minute), berr.BlockedUntil)

	f.clock.Advance(DefaultBlockTime - time.Minute)
	_, err = login(f, "alice@example.com", "correct horse")
	require.NoError(t, err)
}

func TestLoginUnknownUserCountsAsFailure(t *testing.T) {
	f := newFixture(t)

	_, err := login(f, "nobody@example.com", "whatever1")
	var cerr *CredentialsError
	require.ErrorAs(t, err, &cerr)
	require.Equal(t, DefaultMaxFailedAttempts-1, cerr.RemainingAttempts)
}

func TestLoginSuccessResetsCounters(t *testing.T) {
	f := newFixture(t)
	f.createUser(t, "alice@example.com", "correct horse", false)

	for range 3 {
		_, err := login(f, "alice@example.com", "wrong")
		require.Error(t, err)
	}
	_, err := login(f, "alice@example.com", "correct horse")
	require.NoError(t, err)

	_, err = login(f, "alice@example.com", "wrong")
	var cerr *CredentialsError
	require.ErrorAs(t, err, &cerr)
	require.Equal(t, DefaultMaxFailedAttempts-1, cerr.RemainingAttempts)
}

func TestLoginInactiveUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.createUser(t, "alice@example.com", "correct horse", false)
	require.NoError(t, f.users.SetActive(ctx, u.ID, false))

	_, err := login(f, "alice@example.com", "correct horse")
	require.ErrorIs(t, err, ErrUserInactive)
}

func TestLoginStoreFailurePropagates(t *testing.T) {
	f := newFixture(t)
	f.createUser(t, "alice@example.com", "correct horse", false)
	f.sessions.Store = brokenStore{Store: f.store}

	_, err := login(f, "alice@example.com", "correct horse")
	require.ErrorIs(t, err, errUnavailable, "a token is never handed out without a session row")
}

func TestSingleSessionRevokesPrevious(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.auth.SingleSession = true
	f.createUser(t, "alice@example.com", "correct horse", false)

	first, err := login(f, "alice@example.com", "correct horse")
	require.NoError(t, err)
	second, err := login(f, "alice@example.com", "correct horse")
	require.NoError(t, err)

	_, err = f.auth.Authenticate(ctx, first.AccessToken)
	require.ErrorIs(t, err, ErrSessionRevoked)
	_, err = f.auth.Authenticate(ctx, second.AccessToken)
	require.NoError(t, err)

	s, err := f.store.Sessions().GetSessionByJTI(ctx, first.JTI)
	require.NoError(t, err)
	require.Equal(t, ReasonNewLogin, *s.RevokedReason)
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.createUser(t, "alice@example.com", "correct horse", false)

	res, err := login(f, "alice@example.com", "correct horse")
	require.NoError(t, err)

	require.True(t, f.auth.Logout(ctx, res.JTI))
	require.False(t, f.auth.Logout(ctx, res.JTI))

	_, err = f.auth.Authenticate(ctx, res.AccessToken)
	require.ErrorIs(t, err, ErrSessionRevoked)

	in := f.auth.Introspect(ctx, res.AccessToken)
	require.False(t, in.Active)
}

func TestLogoutAllKeepsCurrent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.createUser(t, "alice@example.com", "correct horse", false)

	var sessions []LoginResult
	for range 3 {
		res, err := login(f, "alice@example.com", "correct horse")
		require.NoError(t, err)
		sessions = append(sessions, res)
	}

	current := sessions[1]
	require.Equal(t, 2, f.auth.LogoutAll(ctx, u.ID, current.JTI))

	_, err := f.auth.Authenticate(ctx, current.AccessToken)
	require.NoError(t, err)
	_, err = f.auth.Authenticate(ctx, sessions[0].AccessToken)
	require.ErrorIs(t, err, ErrSessionRevoked)
}

func TestAuthenticateRejectsBadTokens(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.createUser(t, "alice@example.com", "correct horse", false)

	_, err := f.auth.Authenticate(ctx, "not-a-jwt")
	require.ErrorIs(t, err, jwtx.ErrInvalidToken)

	res, err := login(f, "alice@example.com", "correct horse")
	require.NoError(t, err)

	f.clock.Advance(16 * time.Minute)
	_, err = f.auth.Authenticate(ctx, res.AccessToken)
	require.ErrorIs(t, err, jwtx.ErrExpiredSignature)
	require.False(t, errors.Is(err, ErrSessionRevoked))
}

func TestServiceTokensSkipSessions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	tok, err := f.auth.IssueServiceToken("orders")
	require.NoError(t, err)

	c, err := f.auth.Authenticate(ctx, tok)
	require.NoError(t, err)
	require.True(t, c.IsService())
	require.Equal(t, "orders", c.Service)

	c, err = f.auth.VerifyServiceToken(tok)
	require.NoError(t, err)
	require.Equal(t, "service:orders", c.Subject)

	in := f.auth.Introspect(ctx, tok)
	require.True(t, in.Active)

	_, err = f.auth.IssueServiceToken("")
	require.Error(t, err)
}

func TestChangePasswordRevokesOtherSessions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.createUser(t, "alice@example.com", "correct horse", false)

	a, err := login(f, "alice@example.com", "correct horse")
	require.NoError(t, err)
	b, err := login(f, "alice@example.com", "correct horse")
	require.NoError(t, err)

	_, err = f.auth.ChangePassword(ctx, u.ID, b.JTI, "wrong", "battery staple")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = f.auth.ChangePassword(ctx, u.ID, b.JTI, "correct horse", "short")
	require.ErrorIs(t, err, ErrWeakPassword)

	n, err := f.auth.ChangePassword(ctx, u.ID, b.JTI, "correct horse", "battery staple")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, err = f.auth.Authenticate(ctx, a.AccessToken)
	require.ErrorIs(t, err, ErrSessionRevoked)
	_, err = f.auth.Authenticate(ctx, b.AccessToken)
	require.NoError(t, err)

	s, err := f.store.Sessions().GetSessionByJTI(ctx, a.JTI)
	require.NoError(t, err)
	require.Equal(t, "Password changed", *s.RevokedReason)

	_, err = login(f, "alice@example.com", "correct horse")
	require.Error(t, err)
	_, err = login(f, "alice@example.com", "battery staple")
	require.NoError(t, err)
}

func TestChangePasswordRollsBackWhenRevokeFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.createUser(t, "alice@example.com", "correct horse", false)

	a, err := login(f, "alice@example.com", "correct horse")
	require.NoError(t, err)

	f.users.Store = revokeFailingStore{f.store}
	_, err = f.users.ChangePassword(ctx, u.ID, "", "correct horse", "battery staple")
	require.ErrorIs(t, err, errUnavailable)
	f.users.Store = f.store

	_, err = f.auth.Authenticate(ctx, a.AccessToken)
	require.NoError(t, err, "the old session survives")
	_, err = login(f, "alice@example.com", "battery staple")
	require.Error(t, err)
	_, err = login(f, "alice@example.com", "correct horse")
	require.NoError(t, err, "the old password still works")
}

func TestDisableUserRollsBackWhenRevokeFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.createUser(t, "alice@example.com", "correct horse", false)

	a, err := login(f, "alice@example.com", "correct horse")
	require.NoError(t, err)

	f.users.Store = revokeFailingStore{f.store}
	require.ErrorIs(t, f.users.SetActive(ctx, u.ID, false), errUnavailable)
	require.NoError(t, f.users.SetActive(ctx, u.ID, true), "enabling revokes nothing")
	f.users.Store = f.store

	got, err := f.users.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.True(t, got.IsActive)
	_, err = f.auth.Authenticate(ctx, a.AccessToken)
	require.NoError(t, err)

	require.NoError(t, f.users.SetActive(ctx, u.ID, false))
	_, err = f.auth.Authenticate(ctx, a.AccessToken)
	require.ErrorIs(t, err, ErrSessionRevoked)
}
