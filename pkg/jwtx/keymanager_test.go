package jwtx_test

import (
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/shopauth/pkg/cryptox"
	"github.com/aussiebroadwan/shopauth/pkg/jwtx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveKID(t *testing.T) {
	key := testKeys(t)[0]

	kid, err := jwtx.DeriveKID(&key.PublicKey)
	require.NoError(t, err)
	require.Len(t, kid, 32)

	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	sum := sha256.Sum256(der)
	require.Equal(t, hex.EncodeToString(sum[:16]), kid)

	again, err := jwtx.DeriveKID(&key.PublicKey)
	require.NoError(t, err)
	require.Equal(t, kid, again)

	other, err := jwtx.DeriveKID(&testKeys(t)[1].PublicKey)
	require.NoError(t, err)
	require.NotEqual(t, kid, other)
}

func TestInitialize(t *testing.T) {
	key := testKeys(t)[0]
	privPEM := cryptox.EncodePrivateKeyPEM(key)
	pubPEM, err := cryptox.EncodePublicKeyPEM(&key.PublicKey)
	require.NoError(t, err)
	otherPub, err := cryptox.EncodePublicKeyPEM(&testKeys(t)[1].PublicKey)
	require.NoError(t, err)

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name    string
		src     jwtx.KeySource
		gen     func() (*rsa.PrivateKey, error)
		wantErr bool
	}{
		{name: "private only", src: jwtx.KeySource{PrivatePEM: privPEM}},
		{name: "private and matching public", src: jwtx.KeySource{PrivatePEM: privPEM, PublicPEM: pubPEM}},
		{name: "CRLF line endings", src: jwtx.KeySource{PrivatePEM: []byte(strings.ReplaceAll(string(privPEM), "\n", "\r\n"))}},
		{name: "mismatched public", src: jwtx.KeySource{PrivatePEM: privPEM, PublicPEM: otherPub}, wantErr: true},
		{name: "garbage private", src: jwtx.KeySource{PrivatePEM: []byte("nope")}, wantErr: true},
		{name: "nothing configured", src: jwtx.KeySource{}, wantErr: true},
		{
			name: "generation allowed",
			src:  jwtx.KeySource{AllowGenerate: true},
			gen:  func() (*rsa.PrivateKey, error) { return key, nil },
		},
		{
			name:    "generation fails",
			src:     jwtx.KeySource{AllowGenerate: true},
			gen:     func() (*rsa.PrivateKey, error) { return nil, errors.New("entropy gone") },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			km := jwtx.NewKeyManager(jwtx.KeyManagerOptions{Logger: quiet, Generate: tt.gen})
			err := km.Initialize(tt.src)
			if tt.wantErr {
				require.ErrorIs(t, err, jwtx.ErrConfiguration)
				require.False(t, km.IsReady())
				return
			}
			require.NoError(t, err)
			require.True(t, km.IsReady())

			kid, pub, err := km.ActivePublicKey()
			require.NoError(t, err)
			want, _ := jwtx.DeriveKID(&key.PublicKey)
			require.Equal(t, want, kid, "kid must not depend on PEM formatting")
			require.True(t, key.PublicKey.Equal(pub))
		})
	}
}

func TestInitializeTwice(t *testing.T) {
	km := newManager(t, newFakeClock(), time.Hour)
	err := km.Initialize(jwtx.KeySource{AllowGenerate: true})
	require.ErrorIs(t, err, jwtx.ErrConfiguration)
}

func TestJWKSShape(t *testing.T) {
	km := newManager(t, newFakeClock(), time.Hour)

	jwks := km.JWKS()
	require.Len(t, jwks.Keys, 1)

	k := jwks.Keys[0]
	require.Equal(t, "RSA", k.Kty)
	require.Equal(t, "sig", k.Use)
	require.Equal(t, "RS256", k.Alg)
	require.Equal(t, km.ActiveKID(), k.Kid)
	require.Equal(t, "AQAB", k.E)
	require.NotContains(t, k.N, "=")
}

func TestRotateRetention(t *testing.T) {
	clock := newFakeClock()
	km := newManager(t, clock, time.Hour)
	oldKID := km.ActiveKID()

	newKID, until, err := km.Rotate(10 * time.Minute)
	require.NoError(t, err)
	require.NotEqual(t, oldKID, newKID)
	require.Equal(t, newKID, km.ActiveKID())
	require.Equal(t, clock.Now().Add(time.Hour), until, "retention is floored at MinRetention")

	kids := func() []string {
		var out []string
		for _, k := range km.JWKS().Keys {
			out = append(out, k.Kid)
		}
		return out
	}
	require.ElementsMatch(t, []string{oldKID, newKID}, kids())

	_, err = km.PublicKey(oldKID)
	require.NoError(t, err)

	clock.Advance(time.Hour)
	_, err = km.PublicKey(oldKID)
	require.ErrorIs(t, err, jwtx.ErrUnknownKID)
	require.Equal(t, []string{newKID}, kids())
}

func TestRotateLongerRetentionWins(t *testing.T) {
	clock := newFakeClock()
	km := newManager(t, clock, time.Hour)

	_, until, err := km.Rotate(48 * time.Hour)
	require.NoError(t, err)
	require.Equal(t, clock.Now().Add(48*time.Hour), until)
}

func TestRotateRetiredKeysExpireInOrder(t *testing.T) {
	clock := newFakeClock()
	km := newManager(t, clock, 0)
	first := km.ActiveKID()

	_, _, err := km.Rotate(3 * time.Hour)
	require.NoError(t, err)
	second := km.ActiveKID()

	_, _, err = km.Rotate(time.Hour)
	require.NoError(t, err)

	require.Len(t, km.Keys(), 3)

	clock.Advance(time.Hour)
	infos := km.Keys()
	require.Len(t, infos, 2)
	require.True(t, infos[0].Active)
	require.Equal(t, first, infos[1].KID)
	require.NotNil(t, infos[1].RetireAt)

	_, err = km.PublicKey(second)
	require.ErrorIs(t, err, jwtx.ErrUnknownKID)

	clock.Advance(2 * time.Hour)
	require.Len(t, km.Keys(), 1)
}

func TestRotateGenerationFailureKeepsState(t *testing.T) {
	key := testKeys(t)[0]
	calls := 0
	km := jwtx.NewKeyManager(jwtx.KeyManagerOptions{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Generate: func() (*rsa.PrivateKey, error) {
			calls++
			if calls > 1 {
				return nil, errors.New("boom")
			}
			return key, nil
		},
	})
	require.NoError(t, km.Initialize(jwtx.KeySource{AllowGenerate: true}))
	before := km.ActiveKID()

	_, _, err := km.Rotate(time.Hour)
	require.Error(t, err)
	require.Equal(t, before, km.ActiveKID())
	require.Len(t, km.JWKS().Keys, 1)
}

func TestRotateBeforeInitialize(t *testing.T) {
	km := jwtx.NewKeyManager(jwtx.KeyManagerOptions{})
	_, _, err := km.Rotate(time.Hour)
	require.ErrorIs(t, err, jwtx.ErrConfiguration)
}

func TestConcurrentRotateAndRead(t *testing.T) {
	km := newManager(t, newFakeClock(), time.Hour)

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _, err := km.Rotate(time.Hour)
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			for range 20 {
				assert.NotEmpty(t, km.JWKS().Keys)
			}
		}()
	}
	wg.Wait()

	active := km.ActiveKID()
	_, ok := km.JWKS().Find(active)
	require.True(t, ok)
}

func TestExportPrivatePEM(t *testing.T) {
	km := newManager(t, newFakeClock(), time.Hour)

	pemBytes, err := km.ExportPrivatePEM()
	require.NoError(t, err)

	reloaded := jwtx.NewKeyManager(jwtx.KeyManagerOptions{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	require.NoError(t, reloaded.Initialize(jwtx.KeySource{PrivatePEM: pemBytes}))
	require.Equal(t, km.ActiveKID(), reloaded.ActiveKID())
}
