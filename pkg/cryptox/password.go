package cryptox

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

var (
	ErrPasswordMismatch = errors.New("cryptox: password does not match")
	ErrInvalidHash      = errors.New("cryptox: invalid argon2id hash")
)

// PasswordParams are the argon2id cost parameters.
type PasswordParams struct {
	Memory      uint32 // KiB
	Iterations  uint32
	Parallelism uint8
	SaltLength  int
	KeyLength   uint32
}

// DefaultPasswordParams follows the OWASP minimum for argon2id (19 MiB, t=2, p=1).
var DefaultPasswordParams = PasswordParams{
	Memory:      19 * 1024,
	Iterations:  2,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// PasswordHasher produces and verifies PHC encoded argon2id hashes. The pepper
// is appended to every password before hashing and is never stored in the hash.
type PasswordHasher struct {
	Params PasswordParams
	Pepper []byte
}

func NewPasswordHasher(pepper []byte) *PasswordHasher {
	return &PasswordHasher{Params: DefaultPasswordParams, Pepper: pepper}
}

func (h *PasswordHasher) peppered(password string) []byte {
	out := make([]byte, 0, len(password)+len(h.Pepper))
	out = append(out, password...)
	return append(out, h.Pepper...)
}

// Hash returns "$argon2id$v=19$m=..,t=..,p=..$salt$hash".
func (h *PasswordHasher) Hash(password string) (string, error) {
	p := h.Params
	salt := make([]byte, p.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("cryptox: generate salt: %w", err)
	}

	key := argon2.IDKey(h.peppered(password), salt, p.Iterations, p.Memory, p.Parallelism, p.KeyLength)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		p.Memory,
		p.Iterations,
		p.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

type decodedHash struct {
	params PasswordParams
	salt   []byte
	key    []byte
}

func decodeHash(encoded string) (decodedHash, error) {
	// ["", "argon2id", "v=19", "m=X,t=Y,p=Z", "salt", "hash"]
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return decodedHash{}, ErrInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return decodedHash{}, fmt.Errorf("%w: unsupported version", ErrInvalidHash)
	}

	var d decodedHash
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &d.params.Memory, &d.params.Iterations, &d.params.Parallelism); err != nil {
		return decodedHash{}, fmt.Errorf("%w: parameters: %v", ErrInvalidHash, err)
	}

	var err error
	if d.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return decodedHash{}, fmt.Errorf("%w: salt: %v", ErrInvalidHash, err)
	}
	if d.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil || len(d.key) == 0 {
		return decodedHash{}, fmt.Errorf("%w: key", ErrInvalidHash)
	}
	d.params.SaltLength = len(d.salt)
	d.params.KeyLength = uint32(len(d.key)) // #nosec G115 -- decoded from a short hash string

	return d, nil
}

// Verify compares password against an encoded hash in constant time.
func (h *PasswordHasher) Verify(password, encoded string) error {
	d, err := decodeHash(encoded)
	if err != nil {
		return err
	}

	computed := argon2.IDKey(h.peppered(password), d.salt, d.params.Iterations, d.params.Memory, d.params.Parallelism, d.params.KeyLength)
	if subtle.ConstantTimeCompare(computed, d.key) != 1 {
		return ErrPasswordMismatch
	}
	return nil
}

// NeedsRehash reports whether encoded was produced with parameters other than
// the hasher's current ones.
func (h *PasswordHasher) NeedsRehash(encoded string) bool {
	d, err := decodeHash(encoded)
	if err != nil {
		return true
	}
	p := h.Params
	return d.params.Memory != p.Memory ||
		d.params.Iterations != p.Iterations ||
		d.params.Parallelism != p.Parallelism ||
		d.params.KeyLength != p.KeyLength
}
