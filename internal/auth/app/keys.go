package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/aussiebroadwan/shopauth/pkg/cryptox"
	"github.com/aussiebroadwan/shopauth/pkg/jwtx"
)

// LoadKeySource collects the signing key material named by cfg.
//
// Inline PEM wins over files. An encrypted private key file is opened with
// the master key from AUTH_MASTER_KEY_PATH or AUTH_MASTER_KEY.
func LoadKeySource(cfg Config) (jwtx.KeySource, error) {
	src := jwtx.KeySource{AllowGenerate: cfg.AllowEphemeralKeys}

	switch {
	case cfg.PrivateKeyPEM != "":
		src.PrivatePEM = []byte(cfg.PrivateKeyPEM)
	case cfg.PrivateKeyFile != "":
		data, err := os.ReadFile(cfg.PrivateKeyFile)
		if err != nil {
			return jwtx.KeySource{}, &ConfigurationError{Key: "AUTH_PRIVATE_KEY_FILE", Err: err}
		}
		if cfg.PrivateKeyEncrypted {
			if data, err = openSealedKey(cfg.MasterKeyPath, data); err != nil {
				return jwtx.KeySource{}, &ConfigurationError{Key: "AUTH_PRIVATE_KEY_ENCRYPTED", Err: err}
			}
		}
		src.PrivatePEM = data
	}

	switch {
	case cfg.PublicKeyPEM != "":
		src.PublicPEM = []byte(cfg.PublicKeyPEM)
	case cfg.PublicKeyFile != "":
		data, err := os.ReadFile(cfg.PublicKeyFile)
		if err != nil {
			return jwtx.KeySource{}, &ConfigurationError{Key: "AUTH_PUBLIC_KEY_FILE", Err: err}
		}
		src.PublicPEM = data
	}

	if len(src.PublicPEM) > 0 && len(src.PrivatePEM) == 0 {
		return jwtx.KeySource{}, &ConfigurationError{
			Key: "AUTH_PUBLIC_KEY_PEM",
			Err: errors.New("a public key was configured without its private key"),
		}
	}
	return src, nil
}

func openSealedKey(masterKeyPath string, sealed []byte) ([]byte, error) {
	material, err := cryptox.LoadMasterKey(masterKeyPath)
	if err != nil {
		return nil, err
	}
	sealer, err := cryptox.NewSealer(material)
	if err != nil {
		return nil, err
	}
	plain, err := sealer.Open(sealed)
	if err != nil {
		return nil, fmt.Errorf("decrypt private key: %w", err)
	}
	return plain, nil
}

// InitKeyManager loads the configured key into a new KeyManager. Retired
// keys are retained for at least the refresh token lifetime.
func InitKeyManager(cfg Config, logger *slog.Logger) (*jwtx.KeyManager, error) {
	src, err := LoadKeySource(cfg)
	if err != nil {
		return nil, err
	}

	km := jwtx.NewKeyManager(jwtx.KeyManagerOptions{
		MinRetention: cfg.RefreshTokenTTL,
		Logger:       logger,
	})
	if err := km.Initialize(src); err != nil {
		return nil, &ConfigurationError{Key: "AUTH_PRIVATE_KEY_PEM", Err: err}
	}

	logger.Info("signing key ready",
		"kid", km.ActiveKID(),
		"issuer", cfg.Issuer,
		"min_retention", cfg.RefreshTokenTTL,
	)
	return km, nil
}
