package jwtx

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AlgorithmRS256 is the only signing algorithm issued and accepted.
const AlgorithmRS256 = "RS256"

// Verifier validates a JWT and gives you back the claims if it's legit.
type Verifier interface {
	Verify(token string) (Claims, error)
}

// VerifyOptions captures common expectations used by verifiers.
type VerifyOptions struct {
	// Issuer the token must have (claims.iss). Empty means "don't care".
	Issuer string

	// Audience value the token must contain (claims.aud). Empty means "don't care".
	Audience string

	// Leeway allows small clock skew when validating exp/nbf/iat.
	Leeway time.Duration

	// Clock overrides time.Now for validation.
	Clock func() time.Time
}

// Top-level kinds. Every verification failure wraps exactly one of
// ErrExpiredSignature or ErrInvalidToken; callers branch on those two.
var (
	ErrConfiguration    = errors.New("jwtx: configuration error")
	ErrExpiredSignature = errors.New("jwtx: signature has expired")
	ErrInvalidToken     = errors.New("jwtx: invalid token")
)

// Detail sentinels wrapped alongside ErrInvalidToken.
var (
	ErrMalformed       = errors.New("jwtx: malformed token")
	ErrAlgMismatch     = errors.New("jwtx: algorithm mismatch")
	ErrMissingKID      = errors.New("jwtx: missing kid")
	ErrUnknownKID      = errors.New("jwtx: unknown kid")
	ErrInvalidSig      = errors.New("jwtx: invalid signature")
	ErrInvalidClaim    = errors.New("jwtx: invalid claims")
	ErrNotServiceToken = errors.New("jwtx: not a service token")
)

// keyLookup resolves a kid to an RSA public key.
type keyLookup func(kid string) (*rsa.PublicKey, error)

// parseRS256 verifies signature and registered claims and classifies any
// failure into ErrExpiredSignature or ErrInvalidToken.
func parseRS256(tokenStr string, lookup keyLookup, opts VerifyOptions) (Claims, error) {
	parserOpts := []jwt.ParserOption{
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(opts.Leeway),
	}
	if opts.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(opts.Issuer))
	}
	if opts.Audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(opts.Audience))
	}
	if opts.Clock != nil {
		parserOpts = append(parserOpts, jwt.WithTimeFunc(opts.Clock))
	}

	var claims Claims
	token, err := jwt.NewParser(parserOpts...).ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != AlgorithmRS256 {
			return nil, fmt.Errorf("%w: %s", ErrAlgMismatch, t.Method.Alg())
		}
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, ErrMissingKID
		}
		return lookup(kid)
	})
	if err != nil {
		return Claims{}, classify(err)
	}
	if !token.Valid {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %w", ErrExpiredSignature, err)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %w: %w", ErrInvalidToken, ErrMalformed, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %w: %w", ErrInvalidToken, ErrInvalidSig, err)
	case errors.Is(err, jwt.ErrTokenInvalidClaims):
		return fmt.Errorf("%w: %w: %w", ErrInvalidToken, ErrInvalidClaim, err)
	default:
		return fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
}
