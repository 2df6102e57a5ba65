package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/shopauth/internal/auth/domain"
	"github.com/aussiebroadwan/shopauth/internal/auth/metrics"
	"github.com/aussiebroadwan/shopauth/pkg/jwtx"
	"github.com/aussiebroadwan/shopauth/pkg/slogx"
	"github.com/golang-jwt/jwt/v5"
)

// Scopes granted to user tokens.
const (
	ScopeUser  = "user"
	ScopeAdmin = "admin"
)

// AuthService ties the guard, the user directory, the issuer and the
// session registry together into the login and logout flows.
type AuthService struct {
	Users    *UserDirectory
	Sessions *SessionRegistry
	Guard    *BruteforceGuard
	Issuer   *jwtx.Issuer
	Metrics  *metrics.Metrics
	Logger   *slog.Logger

	AccessTTL time.Duration

	// SingleSession revokes a user's other sessions on every login.
	SingleSession bool
}

type LoginRequest struct {
	Email     string
	Password  string
	IP        string
	UserAgent string
}

type LoginResult struct {
	AccessToken string
	TokenType   string
	ExpiresIn   int
	ExpiresAt   time.Time
	JTI         string
	SessionID   string
	User        domain.User
}

func (s *AuthService) log(ctx context.Context) *slog.Logger {
	return slogx.FromContextOr(ctx, s.Logger)
}

// userClaims builds the claims carried by a user access token.
func userClaims(u domain.User) jwtx.Claims {
	scope := ScopeUser
	if u.IsStaff {
		scope += " " + ScopeAdmin
	}
	return jwtx.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: u.ID},
		Scope:            scope,
		Extra: map[string]any{
			"email": u.Email,
			"staff": u.IsStaff,
		},
	}
}

func (s *AuthService) blockedError(res domain.AttemptResult) *BlockedError {
	until := s.Guard.now().Add(res.BlockedFor)
	if res.BlockedUntil != nil {
		until = *res.BlockedUntil
	}
	return &BlockedError{BlockedFor: res.BlockedFor, BlockedUntil: until}
}

// Login authenticates email and password from ip and, on success, issues
// an access token backed by a new session.
//
// A blocked ip yields *BlockedError without touching the user directory.
// Bad credentials yield *CredentialsError, or *BlockedError when this
// failure tripped the guard.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	log := s.log(ctx)

	if status := s.Guard.BlockStatus(ctx, req.IP); status.Blocked {
		s.Metrics.Login("blocked")
		log.Info("login refused for blocked ip", "ip", req.IP)
		return LoginResult{}, s.blockedError(status)
	}

	user, err := s.Users.VerifyCredentials(ctx, req.Email, req.Password)
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		res := s.Guard.RecordFailedAttempt(ctx, req.IP, req.Email)
		if res.Blocked {
			s.Metrics.Login("blocked")
			return LoginResult{}, s.blockedError(res)
		}
		s.Metrics.Login("invalid_credentials")
		log.Info("login failed", "ip", req.IP, "attempts", res.Attempts, "remaining_attempts", res.RemainingAttempts)
		return LoginResult{}, &CredentialsError{RemainingAttempts: res.RemainingAttempts}
	case errors.Is(err, ErrUserInactive):
		s.Metrics.Login("inactive")
		return LoginResult{}, err
	case err != nil:
		s.Metrics.Login("error")
		return LoginResult{}, err
	}

	s.Guard.ResetAttempts(ctx, req.IP, req.Email)

	tok, err := s.Issuer.IssueAccessToken(userClaims(user), s.AccessTTL)
	if err != nil {
		s.Metrics.Login("error")
		return LoginResult{}, fmt.Errorf("service: issue token: %w", err)
	}
	s.Metrics.TokenIssued("access")

	sess, err := s.Sessions.CreateSession(ctx, user.ID, tok.JTI, req.UserAgent, req.IP, tok.ExpiresAt)
	if err != nil {
		s.Metrics.Login("error")
		return LoginResult{}, err
	}

	if s.SingleSession {
		if n := s.Sessions.RevokeAllUserSessions(ctx, user.ID, tok.JTI, ReasonNewLogin); n > 0 {
			log.Info("revoked previous sessions on login", "user_id", user.ID, "revoked", n)
		}
	}

	s.Metrics.Login("success")
	log.Info("login succeeded", "user_id", user.ID, "session_id", sess.ID)

	return LoginResult{
		AccessToken: tok.Token,
		TokenType:   "Bearer",
		ExpiresIn:   int(tok.ExpiresAt.Sub(tok.IssuedAt).Seconds()),
		ExpiresAt:   tok.ExpiresAt,
		JTI:         tok.JTI,
		SessionID:   sess.ID,
		User:        user,
	}, nil
}

// Authenticate verifies a bearer token and, for user tokens, that its
// session is still active. Service tokens carry no session.
func (s *AuthService) Authenticate(ctx context.Context, token string) (jwtx.Claims, error) {
	c, err := s.Issuer.DecodeToken(token)
	if err != nil {
		if errors.Is(err, jwtx.ErrExpiredSignature) {
			s.Metrics.TokenVerified("expired")
		} else {
			s.Metrics.TokenVerified("invalid")
		}
		return jwtx.Claims{}, err
	}
	if c.IsService() {
		s.Metrics.TokenVerified("valid")
		return c, nil
	}
	if !s.Sessions.IsSessionActive(ctx, c.ID) {
		s.Metrics.TokenVerified("revoked")
		return jwtx.Claims{}, ErrSessionRevoked
	}
	s.Metrics.TokenVerified("valid")
	return c, nil
}

// VerifyServiceToken implements httpx.ServiceVerifier.
func (s *AuthService) VerifyServiceToken(token string) (jwtx.Claims, error) {
	return s.Issuer.VerifyServiceToken(token)
}

// Logout revokes the session behind jti. It reports false when the session
// was already revoked.
func (s *AuthService) Logout(ctx context.Context, jti string) bool {
	return s.Sessions.RevokeSessionByJTI(ctx, jti, ReasonLogout)
}

// LogoutAll revokes every session of userID except currentJTI.
func (s *AuthService) LogoutAll(ctx context.Context, userID, currentJTI string) int {
	return s.Sessions.RevokeAllUserSessions(ctx, userID, currentJTI, ReasonLogoutAll)
}

// ChangePassword updates the caller's password and revokes their other
// sessions.
func (s *AuthService) ChangePassword(ctx context.Context, userID, currentJTI, current, next string) (int, error) {
	return s.Users.ChangePassword(ctx, userID, currentJTI, current, next)
}

// IssueServiceToken mints a short-lived token for another backend service.
func (s *AuthService) IssueServiceToken(name string) (string, error) {
	tok, err := s.Issuer.CreateServiceToken(name)
	if err != nil {
		return "", err
	}
	s.Metrics.TokenIssued("service")
	return tok, nil
}

// Introspection is what a resource server learns about a token.
type Introspection struct {
	Active bool
	Claims jwtx.Claims
}

// Introspect reports whether token is currently usable. Unlike
// Authenticate it never fails: invalid tokens are simply inactive.
func (s *AuthService) Introspect(ctx context.Context, token string) Introspection {
	c, err := s.Authenticate(ctx, token)
	if err != nil {
		return Introspection{}
	}
	return Introspection{Active: true, Claims: c}
}
