package jwtx

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
)

// JWK represents an RSA public key in JSON Web Key format (RFC 7517).
type JWK struct {
	Kty string `json:"kty"`           // key type: "RSA"
	Kid string `json:"kid"`           // key ID
	Use string `json:"use,omitempty"` // "sig"
	Alg string `json:"alg,omitempty"` // "RS256"

	N string `json:"n"` // modulus (base64url)
	E string `json:"e"` // exponent (base64url)
}

// JWKS is a JSON Web Key Set (RFC 7517).
type JWKS struct {
	Keys []JWK `json:"keys"`
}

var errInvalidJWK = errors.New("jwtx: invalid JWK")

// NewRSAJWK builds a signing JWK for an RSA public key.
func NewRSAJWK(kid string, pub *rsa.PublicKey) (JWK, error) {
	if pub == nil || pub.N == nil || pub.E <= 0 {
		return JWK{}, fmt.Errorf("%w: empty RSA public key for kid %q", errInvalidJWK, kid)
	}
	return JWK{
		Kty: "RSA",
		Kid: kid,
		Use: "sig",
		Alg: AlgorithmRS256,
		N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}, nil
}

// PublicKey decodes the JWK back into an RSA public key.
func (j JWK) PublicKey() (*rsa.PublicKey, error) {
	if j.Kty != "RSA" {
		return nil, fmt.Errorf("%w: unsupported kty %q", errInvalidJWK, j.Kty)
	}
	nb, err := base64.RawURLEncoding.DecodeString(j.N)
	if err != nil || len(nb) == 0 {
		return nil, fmt.Errorf("%w: modulus", errInvalidJWK)
	}
	eb, err := base64.RawURLEncoding.DecodeString(j.E)
	if err != nil || len(eb) == 0 || len(eb) > 4 {
		return nil, fmt.Errorf("%w: exponent", errInvalidJWK)
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nb),
		E: int(new(big.Int).SetBytes(eb).Int64()),
	}, nil
}

// PEM converts the JWK to a PKIX PEM block, handy for pasting into jwt.io.
func (j JWK) PEM() (string, error) {
	pub, err := j.PublicKey()
	if err != nil {
		return "", err
	}
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", err
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}

// Find returns the JWK with the given kid.
func (s JWKS) Find(kid string) (JWK, bool) {
	for _, k := range s.Keys {
		if k.Kid == kid {
			return k, true
		}
	}
	return JWK{}, false
}
