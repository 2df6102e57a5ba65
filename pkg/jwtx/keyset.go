package jwtx

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

var ErrNoKey = errors.New("jwtx: key not found")

// KeySet holds public verification keys in memory. Resource services fill
// it from the auth service's JWKS.
type KeySet struct {
	mu   sync.RWMutex
	jwks JWKS
	pub  map[string]*rsa.PublicKey
}

// NewKeySet returns an empty KeySet.
func NewKeySet() *KeySet {
	return &KeySet{pub: make(map[string]*rsa.PublicKey)}
}

// AddJWK adds a JWK to the KeySet and parses it into a usable key.
func (k *KeySet) AddJWK(j JWK) error {
	key, err := j.PublicKey()
	if err != nil {
		return err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.pub[j.Kid] = key
	k.jwks.Keys = append(k.jwks.Keys, j)
	return nil
}

// Get returns the public key for the given kid.
func (k *KeySet) Get(kid string) (*rsa.PublicKey, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if pk, ok := k.pub[kid]; ok {
		return pk, nil
	}
	return nil, ErrNoKey
}

// PublicJWKS returns a snapshot of the KeySet's JWKS.
func (k *KeySet) PublicJWKS() JWKS {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return JWKS{Keys: append([]JWK(nil), k.jwks.Keys...)}
}

// IsReady returns true if the KeySet has at least one key loaded.
func (k *KeySet) IsReady() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.pub) > 0
}

// ResetFromJWKS replaces all keys from a JWKS. Non-RSA entries are skipped.
func (k *KeySet) ResetFromJWKS(jwks JWKS) error {
	next := make(map[string]*rsa.PublicKey, len(jwks.Keys))
	kept := make([]JWK, 0, len(jwks.Keys))
	for _, j := range jwks.Keys {
		if j.Kty != "RSA" {
			continue
		}
		key, err := j.PublicKey()
		if err != nil {
			return fmt.Errorf("jwtx: kid %q: %w", j.Kid, err)
		}
		next[j.Kid] = key
		kept = append(kept, j)
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	k.pub = next
	k.jwks = JWKS{Keys: kept}
	return nil
}

// RemoteVerifier validates tokens against a JWKS fetched over HTTP. An
// unknown kid triggers at most one refresh per MinRefreshInterval, and
// concurrent refreshes are collapsed.
type RemoteVerifier struct {
	URL                string
	Client             *http.Client
	Options            VerifyOptions
	MinRefreshInterval time.Duration

	keys  *KeySet
	group singleflight.Group

	mu          sync.Mutex
	lastRefresh time.Time
}

func NewRemoteVerifier(jwksURL string, client *http.Client, opts VerifyOptions) *RemoteVerifier {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &RemoteVerifier{
		URL:                jwksURL,
		Client:             client,
		Options:            opts,
		MinRefreshInterval: 30 * time.Second,
		keys:               NewKeySet(),
	}
}

// KeySet exposes the cached keys.
func (v *RemoteVerifier) KeySet() *KeySet { return v.keys }

// Refresh fetches the JWKS and replaces the cached keys.
func (v *RemoteVerifier) Refresh(ctx context.Context) error {
	_, err, _ := v.group.Do("jwks", func() (any, error) {
		v.mu.Lock()
		v.lastRefresh = time.Now()
		v.mu.Unlock()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.URL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := v.Client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("jwtx: fetch jwks: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("jwtx: fetch jwks: unexpected status %d", resp.StatusCode)
		}

		var jwks JWKS
		if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
			return nil, fmt.Errorf("jwtx: decode jwks: %w", err)
		}
		return nil, v.keys.ResetFromJWKS(jwks)
	})
	return err
}

func (v *RemoteVerifier) lookup(kid string) (*rsa.PublicKey, error) {
	if pub, err := v.keys.Get(kid); err == nil {
		return pub, nil
	}

	v.mu.Lock()
	stale := time.Since(v.lastRefresh) >= v.MinRefreshInterval
	v.mu.Unlock()

	if stale {
		timeout := v.Client.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := v.Refresh(ctx); err != nil {
			return nil, fmt.Errorf("%w %q: %w", ErrUnknownKID, kid, err)
		}
		if pub, err := v.keys.Get(kid); err == nil {
			return pub, nil
		}
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownKID, kid)
}

// Verify implements Verifier.
func (v *RemoteVerifier) Verify(token string) (Claims, error) {
	return parseRS256(token, v.lookup, v.Options)
}
