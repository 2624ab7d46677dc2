package secrets

import (
	"context"
	"encoding/base64"
	"fmt"

	vaultapi "github.com/hashicorp/vault/api"

	"github.com/gatewaylabs/unigw/internal/observability"
)

// VaultProviderConfig configures the HashiCorp Vault master-key source.
type VaultProviderConfig struct {
	// Address is the Vault server address.
	Address string

	// Token is the Vault token. When empty, the api client falls back to
	// its usual environment discovery.
	Token string

	// Mount is the KV v2 mount point. Defaults to "secret".
	Mount string

	// Path is the secret path under the mount.
	Path string

	// Field is the key inside the secret data holding the base64 master
	// key. Defaults to "master_key".
	Field string

	Logger observability.Logger
}

// VaultProvider reads the master key from a HashiCorp Vault KV v2
// secret.
type VaultProvider struct {
	client *vaultapi.Client
	mount  string
	path   string
	field  string
	logger observability.Logger
}

// NewVaultProvider creates a provider backed by HashiCorp Vault.
func NewVaultProvider(cfg *VaultProviderConfig) (*VaultProvider, error) {
	if cfg == nil || cfg.Address == "" || cfg.Path == "" {
		return nil, fmt.Errorf("%w: vault address and path are required", ErrKeyNotFound)
	}

	apiConfig := vaultapi.DefaultConfig()
	apiConfig.Address = cfg.Address

	client, err := vaultapi.NewClient(apiConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}

	mount := cfg.Mount
	if mount == "" {
		mount = "secret"
	}
	field := cfg.Field
	if field == "" {
		field = "master_key"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}

	return &VaultProvider{
		client: client,
		mount:  mount,
		path:   cfg.Path,
		field:  field,
		logger: logger,
	}, nil
}

// MasterKey implements Provider.
func (p *VaultProvider) MasterKey(ctx context.Context) ([]byte, error) {
	secret, err := p.client.KVv2(p.mount).Get(ctx, p.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read vault secret %s/%s: %w", p.mount, p.path, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("%w: vault secret %s/%s is empty", ErrKeyNotFound, p.mount, p.path)
	}

	raw, ok := secret.Data[p.field].(string)
	if !ok || raw == "" {
		return nil, fmt.Errorf("%w: field %q missing in vault secret %s/%s", ErrKeyNotFound, p.field, p.mount, p.path)
	}

	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode vault master key from base64: %w", err)
	}

	p.logger.Debug("master key loaded from vault",
		observability.String("mount", p.mount),
		observability.String("path", p.path),
	)

	return validateKeySize(key)
}

// Source implements Provider.
func (p *VaultProvider) Source() string {
	return "vault"
}

// Close implements Provider.
func (p *VaultProvider) Close() error {
	return nil
}
