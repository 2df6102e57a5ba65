package jwtx

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

var errRetiredKey = errors.New("jwtx: retired key cannot sign")

// sign produces an RS256 JWS over claims with this key's kid in the header.
// Only the active key still holds private material.
func (k *signingKey) sign(claims Claims) (string, error) {
	if k.priv == nil {
		return "", errRetiredKey
	}
	t := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	t.Header["kid"] = k.kid
	signed, err := t.SignedString(k.priv)
	if err != nil {
		return "", fmt.Errorf("jwtx: sign: %w", err)
	}
	return signed, nil
}
