package jwtx

import (
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"fmt"
)

// kidBytes is how much of the SHA-256 digest ends up in the kid.
const kidBytes = 16

// DeriveKID returns the key id for an RSA public key: the first 16 bytes of
// SHA-256 over its PKIX DER encoding, hex encoded (32 chars). Hashing the DER
// rather than a PEM keeps the kid independent of line endings and headers.
func DeriveKID(pub *rsa.PublicKey) (string, error) {
	if pub == nil {
		return "", fmt.Errorf("%w: nil public key", ErrConfiguration)
	}
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("jwtx: marshal public key: %w", err)
	}
	sum := sha256.Sum256(der)
	return hex.EncodeToString(sum[:kidBytes]), nil
}
