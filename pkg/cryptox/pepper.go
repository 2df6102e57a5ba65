package cryptox

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const pepperLength = 32

// LoadOrCreatePepper reads the pepper stored at path, creating the file with
// fresh random contents when it does not exist yet. An empty path yields an
// empty pepper.
func LoadOrCreatePepper(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	path = filepath.Clean(path)

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		data = bytes.TrimSpace(data)
		if len(data) == 0 {
			return nil, fmt.Errorf("cryptox: pepper file %s is empty", path)
		}
		return data, nil
	case !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("cryptox: read pepper: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("cryptox: create pepper dir: %w", err)
	}

	raw := make([]byte, pepperLength)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("cryptox: generate pepper: %w", err)
	}
	pepper := []byte(base64.RawURLEncoding.EncodeToString(raw))

	if err := os.WriteFile(path, pepper, 0o600); err != nil {
		return nil, fmt.Errorf("cryptox: write pepper: %w", err)
	}
	return pepper, nil
}
