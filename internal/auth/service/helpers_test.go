package service

import (
	"context"
	"crypto/rsa"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/shopauth/internal/auth/cache"
	"github.com/aussiebroadwan/shopauth/internal/auth/cache/drivers/memory"
	"github.com/aussiebroadwan/shopauth/internal/auth/domain"
	"github.com/aussiebroadwan/shopauth/internal/auth/metrics"
	"github.com/aussiebroadwan/shopauth/internal/auth/store"
	"github.com/aussiebroadwan/shopauth/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/shopauth/pkg/cryptox"
	"github.com/aussiebroadwan/shopauth/pkg/jwtx"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// cheapHasher keeps argon2 fast enough for unit tests.
func cheapHasher() *cryptox.PasswordHasher {
	return &cryptox.PasswordHasher{
		Params: cryptox.PasswordParams{Memory: 64, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32},
		Pepper: []byte("test-pepper"),
	}
}

var (
	keyPoolOnce sync.Once
	keyPool     []*rsa.PrivateKey
)

func testKeyManager(t *testing.T, clock *fakeClock) *jwtx.KeyManager {
	t.Helper()
	keyPoolOnce.Do(func() {
		for range 3 {
			k, err := cryptox.GenerateRSA(2048)
			if err != nil {
				panic(err)
			}
			keyPool = append(keyPool, k)
		}
	})

	var (
		mu   sync.Mutex
		next int
	)
	km := jwtx.NewKeyManager(jwtx.KeyManagerOptions{
		MinRetention: time.Hour,
		Clock:        clock.Now,
		Logger:       discard,
		Generate: func() (*rsa.PrivateKey, error) {
			mu.Lock()
			defer mu.Unlock()
			k := keyPool[next%len(keyPool)]
			next++
			return k, nil
		},
	})
	require.NoError(t, km.Initialize(jwtx.KeySource{AllowGenerate: true}))
	return km
}

// fixture is a fully wired AuthService over sqlite and the memory cache.
type fixture struct {
	clock    *fakeClock
	store    store.Store
	cache    *memory.Cache
	metrics  *metrics.Metrics
	keys     *jwtx.KeyManager
	issuer   *jwtx.Issuer
	sessions *SessionRegistry
	guard    *BruteforceGuard
	users    *UserDirectory
	auth     *AuthService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		clock:   newFakeClock(),
		store:   newTestStore(t),
		cache:   memory.New(time.Minute),
		metrics: metrics.New(),
	}
	t.Cleanup(func() { _ = f.cache.Close() })

	f.keys = testKeyManager(t, f.clock)
	f.issuer = jwtx.NewIssuer(f.keys, jwtx.IssuerOptions{Issuer: "shopauth", Audience: "shop", Clock: f.clock.Now})

	f.sessions = NewSessionRegistry(f.store, f.cache, discard, f.metrics)
	f.sessions.Clock = f.clock.Now

	f.guard = NewBruteforceGuard(f.cache, DefaultGuardOptions(), discard, f.metrics)
	f.guard.Clock = f.clock.Now

	f.users = &UserDirectory{Store: f.store, Hasher: cheapHasher(), Logger: discard, Sessions: f.sessions}

	f.auth = &AuthService{
		Users:     f.users,
		Sessions:  f.sessions,
		Guard:     f.guard,
		Issuer:    f.issuer,
		Metrics:   f.metrics,
		Logger:    discard,
		AccessTTL: 15 * time.Minute,
	}
	return f
}

func (f *fixture) createUser(t *testing.T, email, password string, staff bool) domain.User {
	t.Helper()
	u, err := f.users.CreateUser(context.Background(), email, password, staff)
	require.NoError(t, err)
	return u
}

// requireMetric compares one metric family against its text exposition.
func requireMetric(t *testing.T, m *metrics.Metrics, name, exposition string) {
	t.Helper()
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(exposition), name))
}

var errUnavailable = errors.New("backend unavailable")

// brokenStore fails every session and user operation.
type brokenStore struct{ store.Store }

func (brokenStore) Sessions() store.Sessions { return brokenSessions{} }
func (brokenStore) Users() store.Users       { return brokenUsers{} }

type brokenSessions struct{}

func (brokenSessions) CreateSession(context.Context, domain.Session) error { return errUnavailable }
func (brokenSessions) GetSessionByJTI(context.Context, string) (domain.Session, error) {
	return domain.Session{}, errUnavailable
}
func (brokenSessions) ListActiveUserSessions(context.Context, string, time.Time) ([]domain.Session, error) {
	return nil, errUnavailable
}
func (brokenSessions) RevokeSession(context.Context, string, string, string, time.Time) (bool, error) {
	return false, errUnavailable
}
func (brokenSessions) RevokeSessionByJTI(context.Context, string, string, time.Time) (string, bool, error) {
	return "", false, errUnavailable
}
func (brokenSessions) RevokeAllUserSessions(context.Context, string, string, string, time.Time) (int64, error) {
	return 0, errUnavailable
}
func (brokenSessions) RevokeExpiredSessions(context.Context, time.Time, string) ([]string, error) {
	return nil, errUnavailable
}
func (brokenSessions) DeleteRevokedSessionsBefore(context.Context, time.Time) (int64, error) {
	return 0, errUnavailable
}

type brokenUsers struct{}

func (brokenUsers) GetUserByID(context.Context, string) (domain.User, error) {
	return domain.User{}, errUnavailable
}
func (brokenUsers) GetUserByEmail(context.Context, string) (domain.User, error) {
	return domain.User{}, errUnavailable
}
func (brokenUsers) CreateUser(context.Context, domain.User) error            { return errUnavailable }
func (brokenUsers) UpdatePasswordHash(context.Context, string, string) error { return errUnavailable }
func (brokenUsers) SetUserActive(context.Context, string, bool) error        { return errUnavailable }
func (brokenUsers) IsEmpty(context.Context) (bool, error)                    { return false, errUnavailable }

// brokenCache fails every call.
type brokenCache struct{}

var _ cache.Cache = brokenCache{}

func (brokenCache) Get(context.Context, string) ([]byte, error) { return nil, errUnavailable }
func (brokenCache) Set(context.Context, string, []byte, time.Duration) error {
	return errUnavailable
}
func (brokenCache) Delete(context.Context, ...string) error { return errUnavailable }
func (brokenCache) Update(context.Context, string, time.Duration, cache.UpdateFunc) error {
	return errUnavailable
}
func (brokenCache) Ping(context.Context) error { return errUnavailable }
func (brokenCache) Close() error               { return nil }

// revokeFailingStore runs real transactions whose session repo always fails.
type revokeFailingStore struct{ store.Store }

func (s revokeFailingStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return s.Store.WithTx(ctx, func(tx store.Tx) error { return fn(revokeFailingTx{tx}) })
}

// innerTx names the embedded field so it does not shadow the Tx method.
type innerTx = store.Tx

type revokeFailingTx struct{ innerTx }

func (revokeFailingTx) Sessions() store.Sessions { return brokenSessions{} }
