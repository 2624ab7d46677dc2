package secrets

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"os"
)

// FileProvider reads the master key from a file. The file may hold the
// raw 32 bytes or a base64 encoding of them.
type FileProvider struct {
	path string
}

// NewFileProvider creates a provider backed by the given key file.
func NewFileProvider(path string) *FileProvider {
	return &FileProvider{path: path}
}

// MasterKey implements Provider.
func (p *FileProvider) MasterKey(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(p.path) //nolint:gosec // operator-supplied key file path
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, p.path)
		}
		return nil, fmt.Errorf("failed to read key file %s: %w", p.path, err)
	}

	data = bytes.TrimSpace(data)

	if len(data) == MasterKeySize {
		return validateKeySize(data)
	}

	key, err := base64.StdEncoding.DecodeString(string(data))
	if err != nil {
		return nil, fmt.Errorf("key file %s is neither 32 raw bytes nor valid base64: %w", p.path, err)
	}

	return validateKeySize(key)
}

// Source implements Provider.
func (p *FileProvider) Source() string {
	return "file"
}

// Close implements Provider.
func (p *FileProvider) Close() error {
	return nil
}
