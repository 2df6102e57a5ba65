package jwtx

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// IssuerOptions configures token minting and validation.
type IssuerOptions struct {
	Issuer     string
	Audience   string
	Leeway     time.Duration
	ServiceTTL time.Duration
	Clock      func() time.Time
}

// Issuer mints and validates RS256 tokens using a KeyManager.
type Issuer struct {
	keys *KeyManager
	opts IssuerOptions
	now  func() time.Time
}

func NewIssuer(keys *KeyManager, opts IssuerOptions) *Issuer {
	if opts.ServiceTTL <= 0 {
		opts.ServiceTTL = DefaultServiceTokenTTL
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	return &Issuer{keys: keys, opts: opts, now: now}
}

// ServiceTTL is the lifetime of tokens minted by CreateServiceToken.
func (i *Issuer) ServiceTTL() time.Duration { return i.opts.ServiceTTL }

// IssuedToken is a freshly signed token and the claims that matter to
// whoever records it.
type IssuedToken struct {
	Token     string
	JTI       string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// CreateAccessToken signs c with the active key and returns the token and
// its jti. See IssueAccessToken.
func (i *Issuer) CreateAccessToken(c Claims, ttl time.Duration) (string, string, error) {
	t, err := i.IssueAccessToken(c, ttl)
	if err != nil {
		return "", "", err
	}
	return t.Token, t.JTI, nil
}

// IssueAccessToken signs c with the active key. The registered time claims
// and a fresh jti are set here; iss and aud come from the issuer options.
// Every other claim on c, Extra included, is carried as given.
func (i *Issuer) IssueAccessToken(c Claims, ttl time.Duration) (IssuedToken, error) {
	if ttl <= 0 {
		ttl = DefaultAccessTokenTTL
	}
	now := i.now().UTC().Truncate(time.Second)
	exp := now.Add(ttl)
	jti := uuid.NewString()

	c.ID = jti
	c.IssuedAt = jwt.NewNumericDate(now)
	c.NotBefore = jwt.NewNumericDate(now)
	c.ExpiresAt = jwt.NewNumericDate(exp)
	if i.opts.Issuer != "" {
		c.Issuer = i.opts.Issuer
	}
	if i.opts.Audience != "" {
		c.Audience = jwt.ClaimStrings{i.opts.Audience}
	}

	token, err := i.keys.sign(c)
	if err != nil {
		return IssuedToken{}, err
	}
	return IssuedToken{Token: token, JTI: jti, IssuedAt: now, ExpiresAt: exp}, nil
}

// DecodeToken verifies a token against the active or a retained key.
// Failures wrap ErrExpiredSignature or ErrInvalidToken.
func (i *Issuer) DecodeToken(token string) (Claims, error) {
	return parseRS256(token, i.keys.PublicKey, VerifyOptions{
		Issuer:   i.opts.Issuer,
		Audience: i.opts.Audience,
		Leeway:   i.opts.Leeway,
		Clock:    i.now,
	})
}

// Verify implements Verifier.
func (i *Issuer) Verify(token string) (Claims, error) {
	return i.DecodeToken(token)
}

// CreateServiceToken mints a short-lived token with scope "service".
func (i *Issuer) CreateServiceToken(serviceName string) (string, error) {
	if serviceName == "" {
		return "", errors.New("jwtx: service name is required")
	}
	c := Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "service:" + serviceName},
		Scope:            ServiceScope,
		Service:          serviceName,
	}
	token, _, err := i.CreateAccessToken(c, i.opts.ServiceTTL)
	return token, err
}

// VerifyServiceToken decodes a token and requires scope "service".
func (i *Issuer) VerifyServiceToken(token string) (Claims, error) {
	c, err := i.DecodeToken(token)
	if err != nil {
		return Claims{}, err
	}
	if !c.IsService() {
		return Claims{}, fmt.Errorf("%w: %w", ErrInvalidToken, ErrNotServiceToken)
	}
	return c, nil
}
