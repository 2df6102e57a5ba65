package jwtx

import (
	"container/heap"
	"crypto/rsa"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/shopauth/pkg/cryptox"
)

// KeyManagerOptions configures a KeyManager.
type KeyManagerOptions struct {
	// MinRetention is the floor for how long a retired key stays
	// published. It should be at least the refresh-token lifetime.
	MinRetention time.Duration

	// Clock defaults to time.Now.
	Clock func() time.Time

	// Generate produces new private keys. Defaults to RSA-2048.
	Generate func() (*rsa.PrivateKey, error)

	Logger *slog.Logger
}

// KeySource is the key material handed to Initialize.
type KeySource struct {
	PrivatePEM []byte
	PublicPEM  []byte

	// AllowGenerate permits an in-memory keypair when no PEM is configured.
	AllowGenerate bool
}

// KeyInfo is a read-only view of a signing key.
type KeyInfo struct {
	KID       string
	PublicKey *rsa.PublicKey
	CreatedAt time.Time
	RetireAt  *time.Time
	Active    bool
}

type signingKey struct {
	kid       string
	priv      *rsa.PrivateKey // nil once retired
	pub       *rsa.PublicKey
	createdAt time.Time
	retireAt  time.Time
	index     int
}

func newSigningKey(priv *rsa.PrivateKey, now time.Time) (*signingKey, error) {
	kid, err := DeriveKID(&priv.PublicKey)
	if err != nil {
		return nil, err
	}
	return &signingKey{kid: kid, priv: priv, pub: &priv.PublicKey, createdAt: now}, nil
}

func (k *signingKey) info(active bool) KeyInfo {
	ki := KeyInfo{KID: k.kid, PublicKey: k.pub, CreatedAt: k.createdAt, Active: active}
	if !active {
		t := k.retireAt
		ki.RetireAt = &t
	}
	return ki
}

// retiredHeap is a min-heap on retireAt.
type retiredHeap []*signingKey

func (h retiredHeap) Len() int           { return len(h) }
func (h retiredHeap) Less(i, j int) bool { return h[i].retireAt.Before(h[j].retireAt) }
func (h retiredHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *retiredHeap) Push(x any) {
	k := x.(*signingKey)
	k.index = len(*h)
	*h = append(*h, k)
}

func (h *retiredHeap) Pop() any {
	old := *h
	n := len(old)
	k := old[n-1]
	old[n-1] = nil
	k.index = -1
	*h = old[:n-1]
	return k
}

// KeyManager owns the RSA signing keys of this process: one active key
// used for signing, plus retired keys that are still published for
// verification until their retention runs out.
//
// Rotations are serialized. A new key is generated outside the state lock
// and swapped in atomically, so readers only ever see the old or new state.
type KeyManager struct {
	minRetention time.Duration
	now          func() time.Time
	generate     func() (*rsa.PrivateKey, error)
	logger       *slog.Logger

	rotateMu sync.Mutex

	mu      sync.RWMutex
	active  *signingKey
	retired retiredHeap
	byKID   map[string]*signingKey
}

// NewKeyManager returns an uninitialized KeyManager. Call Initialize before use.
func NewKeyManager(opts KeyManagerOptions) *KeyManager {
	m := &KeyManager{
		minRetention: opts.MinRetention,
		now:          opts.Clock,
		generate:     opts.Generate,
		logger:       opts.Logger,
		byKID:        make(map[string]*signingKey),
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.generate == nil {
		m.generate = func() (*rsa.PrivateKey, error) {
			return cryptox.GenerateRSA(cryptox.DefaultRSABits)
		}
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

// Initialize installs the first active key. Configured PEM material wins;
// otherwise a keypair is generated when the source allows it. Any failure
// wraps ErrConfiguration and should stop the process.
func (m *KeyManager) Initialize(src KeySource) error {
	var (
		priv      *rsa.PrivateKey
		generated bool
		err       error
	)

	switch {
	case len(src.PrivatePEM) > 0:
		priv, err = cryptox.ParsePrivateKeyPEM(src.PrivatePEM)
		if err != nil {
			return fmt.Errorf("%w: private key: %w", ErrConfiguration, err)
		}
		if priv.N.BitLen() < cryptox.DefaultRSABits {
			return fmt.Errorf("%w: %w", ErrConfiguration, cryptox.ErrWeakKey)
		}
		if len(src.PublicPEM) > 0 {
			pub, err := cryptox.ParsePublicKeyPEM(src.PublicPEM)
			if err != nil {
				return fmt.Errorf("%w: public key: %w", ErrConfiguration, err)
			}
			if !priv.PublicKey.Equal(pub) {
				return fmt.Errorf("%w: public key does not match private key", ErrConfiguration)
			}
		}

	case src.AllowGenerate:
		priv, err = m.generate()
		if err != nil {
			return fmt.Errorf("%w: generate key: %w", ErrConfiguration, err)
		}
		generated = true

	default:
		return fmt.Errorf("%w: no private key configured and key generation is disabled", ErrConfiguration)
	}

	key, err := newSigningKey(priv, m.now().UTC())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != nil {
		return fmt.Errorf("%w: key manager already initialized", ErrConfiguration)
	}
	m.active = key

	if generated {
		m.logger.Warn("generated ephemeral signing key, tokens will not survive a restart", "kid", key.kid)
	} else {
		m.logger.Info("loaded signing key", "kid", key.kid)
	}
	return nil
}

// IsReady reports whether an active key is installed.
func (m *KeyManager) IsReady() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active != nil
}

// ActiveKID returns the kid of the current signing key, or "" before Initialize.
func (m *KeyManager) ActiveKID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.active == nil {
		return ""
	}
	return m.active.kid
}

func (m *KeyManager) ActivePublicKey() (string, *rsa.PublicKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.active == nil {
		return "", nil, fmt.Errorf("%w: key manager not initialized", ErrConfiguration)
	}
	return m.active.kid, m.active.pub, nil
}

// PublicKey resolves a kid against the active key, then the retired keys
// that are still within retention.
func (m *KeyManager) PublicKey(kid string) (*rsa.PublicKey, error) {
	now := m.now()

	m.mu.RLock()
	var (
		pub     *rsa.PublicKey
		expired bool
	)
	if m.active != nil && m.active.kid == kid {
		pub = m.active.pub
	} else if k, ok := m.byKID[kid]; ok {
		if now.Before(k.retireAt) {
			pub = k.pub
		} else {
			expired = true
		}
	}
	m.mu.RUnlock()

	if expired {
		m.mu.Lock()
		m.purgeLocked(now)
		m.mu.Unlock()
	}
	if pub == nil {
		return nil, fmt.Errorf("%w %q", ErrUnknownKID, kid)
	}
	return pub, nil
}

// purgeLocked drops retired keys whose retention has passed. Callers hold mu.
func (m *KeyManager) purgeLocked(now time.Time) {
	for m.retired.Len() > 0 && !now.Before(m.retired[0].retireAt) {
		k := heap.Pop(&m.retired).(*signingKey)
		delete(m.byKID, k.kid)
		m.logger.Info("purged retired signing key", "kid", k.kid, "retired_at", k.retireAt)
	}
}

// snapshot returns the active key followed by retired keys that are still valid.
func (m *KeyManager) snapshot(now time.Time) []KeyInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.purgeLocked(now)

	out := make([]KeyInfo, 0, 1+m.retired.Len())
	if m.active != nil {
		out = append(out, m.active.info(true))
	}
	for _, k := range m.retired {
		out = append(out, k.info(false))
	}
	return out
}

// Keys lists the active and still-published retired keys.
func (m *KeyManager) Keys() []KeyInfo {
	return m.snapshot(m.now())
}

// JWKS purges expired retired keys and returns the published key set.
// A key that cannot be encoded is logged and left out.
func (m *KeyManager) JWKS() JWKS {
	keys := m.snapshot(m.now())

	out := JWKS{Keys: make([]JWK, 0, len(keys))}
	for _, k := range keys {
		jwk, err := NewRSAJWK(k.KID, k.PublicKey)
		if err != nil {
			m.logger.Error("failed to encode signing key", "kid", k.KID, "error", err)
			continue
		}
		out.Keys = append(out.Keys, jwk)
	}
	return out
}

// Rotate generates a new active key and retires the current one. The old
// key stays published for max(retention, MinRetention). If generation
// fails the current state is left untouched.
func (m *KeyManager) Rotate(retention time.Duration) (string, time.Time, error) {
	m.rotateMu.Lock()
	defer m.rotateMu.Unlock()

	if !m.IsReady() {
		return "", time.Time{}, fmt.Errorf("%w: key manager not initialized", ErrConfiguration)
	}

	priv, err := m.generate()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("jwtx: rotate: generate key: %w", err)
	}
	now := m.now().UTC()
	next, err := newSigningKey(priv, now)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("jwtx: rotate: %w", err)
	}

	retireAt := now.Add(max(retention, m.minRetention))

	m.mu.Lock()
	prev := m.active
	if prev.kid == next.kid {
		m.mu.Unlock()
		return "", time.Time{}, errors.New("jwtx: rotate: generated key collides with the active key")
	}
	if stale, ok := m.byKID[next.kid]; ok {
		heap.Remove(&m.retired, stale.index)
		delete(m.byKID, stale.kid)
	}
	old := &signingKey{kid: prev.kid, pub: prev.pub, createdAt: prev.createdAt, retireAt: retireAt}
	heap.Push(&m.retired, old)
	m.byKID[old.kid] = old
	m.active = next
	m.purgeLocked(now)
	m.mu.Unlock()

	m.logger.Info("rotated signing key", "kid", next.kid, "previous_kid", prev.kid, "retained_until", retireAt)
	return next.kid, retireAt, nil
}

// ExportPrivatePEM returns the active private key as PKCS1 PEM.
func (m *KeyManager) ExportPrivatePEM() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.active == nil {
		return nil, fmt.Errorf("%w: key manager not initialized", ErrConfiguration)
	}
	return cryptox.EncodePrivateKeyPEM(m.active.priv), nil
}

// sign signs claims with the active key and stamps its kid in the header.
func (m *KeyManager) sign(claims Claims) (string, error) {
	m.mu.RLock()
	active := m.active
	m.mu.RUnlock()
	if active == nil {
		return "", fmt.Errorf("%w: key manager not initialized", ErrConfiguration)
	}

	return active.sign(claims)
}
