package cryptox

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
)

// DefaultRSABits is the modulus size used for freshly generated signing keys.
const DefaultRSABits = 2048

var (
	ErrWeakKey        = errors.New("cryptox: RSA key size must be at least 2048 bits")
	ErrInvalidPEM     = errors.New("cryptox: invalid PEM block")
	ErrNotRSA         = errors.New("cryptox: key is not RSA")
	ErrUnsupportedPEM = errors.New("cryptox: unsupported PEM type")
)

// GenerateRSA generates a new RSA private key with the given modulus size.
func GenerateRSA(bits int) (*rsa.PrivateKey, error) {
	if bits < DefaultRSABits {
		return nil, ErrWeakKey
	}

	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("cryptox: failed to generate RSA key: %w", err)
	}
	return key, nil
}

// GenerateRSAKey generates a new RSA private key and returns it PEM encoded (PKCS1).
func GenerateRSAKey(bits int) ([]byte, error) {
	key, err := GenerateRSA(bits)
	if err != nil {
		return nil, err
	}
	return EncodePrivateKeyPEM(key), nil
}

// EncodePrivateKeyPEM encodes an RSA private key as a PKCS1 PEM block.
func EncodePrivateKeyPEM(key *rsa.PrivateKey) []byte {
	return pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
}

// EncodePublicKeyPEM encodes an RSA public key as a PKIX "PUBLIC KEY" block.
func EncodePublicKeyPEM(pub *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("cryptox: marshal public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// ParsePrivateKeyPEM loads an RSA private key from PEM bytes. Both PKCS1 and
// PKCS8 are accepted since operators hand us whatever openssl produced.
func ParsePrivateKeyPEM(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, ErrInvalidPEM
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("cryptox: parse PKCS1: %w", err)
		}
		return key, nil

	case "PRIVATE KEY":
		parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("cryptox: parse PKCS8: %w", err)
		}
		key, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, ErrNotRSA
		}
		return key, nil

	default:
		return nil, fmt.Errorf("%w %q", ErrUnsupportedPEM, block.Type)
	}
}

// ParsePublicKeyPEM loads an RSA public key from a PKIX or PKCS1 PEM block.
func ParsePublicKeyPEM(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, ErrInvalidPEM
	}

	switch block.Type {
	case "PUBLIC KEY":
		parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("cryptox: parse PKIX: %w", err)
		}
		pub, ok := parsed.(*rsa.PublicKey)
		if !ok {
			return nil, ErrNotRSA
		}
		return pub, nil

	case "RSA PUBLIC KEY":
		pub, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("cryptox: parse PKCS1 public key: %w", err)
		}
		return pub, nil

	default:
		return nil, fmt.Errorf("%w %q", ErrUnsupportedPEM, block.Type)
	}
}
