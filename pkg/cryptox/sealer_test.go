package cryptox_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aussiebroadwan/shopauth/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func TestSealer_RoundTrip(t *testing.T) {
	s, err := cryptox.NewSealer([]byte("master"))
	require.NoError(t, err)

	keyPEM, err := cryptox.GenerateRSAKey(2048)
	require.NoError(t, err)

	sealed, err := s.Seal(keyPEM)
	require.NoError(t, err)
	require.NotContains(t, string(sealed), "PRIVATE KEY")

	opened, err := s.Open(sealed)
	require.NoError(t, err)
	require.Equal(t, keyPEM, opened)

	again, err := s.Seal(keyPEM)
	require.NoError(t, err)
	require.NotEqual(t, sealed, again, "nonce must be random")
}

func TestSealer_Errors(t *testing.T) {
	_, err := cryptox.NewSealer(nil)
	require.ErrorIs(t, err, cryptox.ErrNoMasterKey)

	s, err := cryptox.NewSealer([]byte("master"))
	require.NoError(t, err)

	_, err = s.Open([]byte("short"))
	require.ErrorIs(t, err, cryptox.ErrCiphertextTooShort)

	sealed, err := s.Seal([]byte("payload"))
	require.NoError(t, err)
	sealed[len(sealed)-1] ^= 0xff
	_, err = s.Open(sealed)
	require.Error(t, err)

	other, err := cryptox.NewSealer([]byte("different"))
	require.NoError(t, err)
	sealed, err = s.Seal([]byte("payload"))
	require.NoError(t, err)
	_, err = other.Open(sealed)
	require.Error(t, err)
}

func TestLoadMasterKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "master.key")
	require.NoError(t, os.WriteFile(path, []byte("from-file\n"), 0o600))

	key, err := cryptox.LoadMasterKey(path)
	require.NoError(t, err)
	require.Equal(t, []byte("from-file"), key)

	t.Setenv(cryptox.MasterKeyEnv, "from-env")
	key, err = cryptox.LoadMasterKey("")
	require.NoError(t, err)
	require.Equal(t, []byte("from-env"), key)

	t.Setenv(cryptox.MasterKeyEnv, "")
	_, err = cryptox.LoadMasterKey("")
	require.ErrorIs(t, err, cryptox.ErrNoMasterKey)
}

func TestLoadOrCreatePepper(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets", "pepper")

	first, err := cryptox.LoadOrCreatePepper(path)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := cryptox.LoadOrCreatePepper(path)
	require.NoError(t, err)
	require.Equal(t, first, second)

	none, err := cryptox.LoadOrCreatePepper("")
	require.NoError(t, err)
	require.Nil(t, none)
}
