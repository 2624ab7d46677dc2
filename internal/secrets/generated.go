package secrets

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"

	"github.com/gatewaylabs/unigw/internal/observability"
)

// GeneratedProvider produces a random master key once per process.
// Blobs encrypted under it cannot be decrypted after a restart, so it
// is only suitable for development and tests.
type GeneratedProvider struct {
	logger observability.Logger

	once sync.Once
	key  []byte
	err  error
}

// NewGeneratedProvider creates a development-only key provider.
func NewGeneratedProvider(logger observability.Logger) *GeneratedProvider {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &GeneratedProvider{logger: logger}
}

// MasterKey implements Provider. The same key is returned for the
// lifetime of the provider.
func (p *GeneratedProvider) MasterKey(_ context.Context) ([]byte, error) {
	p.once.Do(func() {
		key := make([]byte, MasterKeySize)
		if _, err := rand.Read(key); err != nil {
			p.err = fmt.Errorf("failed to generate master key: %w", err)
			return
		}
		p.key = key

		p.logger.Warn("using a generated master key; encrypted credentials will not survive a restart, unsafe for production")
	})

	return p.key, p.err
}

// Source implements Provider.
func (p *GeneratedProvider) Source() string {
	return "generated"
}

// Close implements Provider.
func (p *GeneratedProvider) Close() error {
	return nil
}
