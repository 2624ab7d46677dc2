package secrets

import (
	"fmt"

	"github.com/gatewaylabs/unigw/internal/config"
	"github.com/gatewaylabs/unigw/internal/observability"
)

// NewProvider creates a master-key provider from configuration.
func NewProvider(cfg config.MasterKeyConfig, logger observability.Logger) (Provider, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}

	switch cfg.Source {
	case "env":
		return NewEnvProvider(cfg.EnvVar), nil

	case "file":
		return NewFileProvider(cfg.Path), nil

	case "vault":
		return NewVaultProvider(&VaultProviderConfig{
			Address: cfg.Vault.Address,
			Token:   cfg.Vault.Token,
			Mount:   cfg.Vault.Mount,
			Path:    cfg.Vault.Path,
			Field:   cfg.Vault.Field,
			Logger:  logger,
		})

	case "generated":
		return NewGeneratedProvider(logger), nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, cfg.Source)
	}
}
