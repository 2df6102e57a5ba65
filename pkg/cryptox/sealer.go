package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// MasterKeyEnv is consulted when no master key file is configured.
const MasterKeyEnv = "AUTH_MASTER_KEY"

var (
	ErrNoMasterKey        = errors.New("cryptox: no master key configured")
	ErrCiphertextTooShort = errors.New("cryptox: ciphertext too short")
)

// Sealer encrypts small secrets (private key PEMs) with AES-256-GCM.
// Sealed output is [nonce][ciphertext][tag].
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer derives a 32-byte key from arbitrary key material with SHA-256.
func NewSealer(material []byte) (*Sealer, error) {
	if len(material) == 0 {
		return nil, ErrNoMasterKey
	}
	key := sha256.Sum256(material)

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("cryptox: create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cryptox: create GCM: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// LoadMasterKey returns master key material from path, or from the
// AUTH_MASTER_KEY environment variable when path is empty.
func LoadMasterKey(path string) ([]byte, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("cryptox: read master key: %w", err)
		}
		return []byte(strings.TrimSpace(string(data))), nil
	}
	if v := os.Getenv(MasterKeyEnv); v != "" {
		return []byte(v), nil
	}
	return nil, ErrNoMasterKey
}

func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("cryptox: generate nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	n := s.aead.NonceSize()
	if len(sealed) < n+s.aead.Overhead() {
		return nil, ErrCiphertextTooShort
	}
	plaintext, err := s.aead.Open(nil, sealed[:n], sealed[n:], nil)
	if err != nil {
		return nil, fmt.Errorf("cryptox: decrypt: %w", err)
	}
	return plaintext, nil
}
