package router

import "sort"

// ProviderInfo is a static catalog entry describing one provider.
type ProviderInfo struct {
	// Name is the provider key used by the registry and credential
	// store.
	Name string

	// Category is the service category the provider serves.
	Category string

	// CredentialFields names the keys expected in the credential map.
	CredentialFields []string

	// Enabled gates the provider globally; disabled providers are
	// skipped by the router and reported as disabled by health checks.
	Enabled bool
}

// Catalog is the read-only provider catalog: which providers exist per
// category and their credential schema.
type Catalog struct {
	byCategory map[string][]ProviderInfo
	byName     map[string]ProviderInfo
}

// NewCatalog builds a catalog from entries. Per-category order is
// normalized to ascending name order so iteration is deterministic.
func NewCatalog(entries []ProviderInfo) *Catalog {
	c := &Catalog{
		byCategory: make(map[string][]ProviderInfo),
		byName:     make(map[string]ProviderInfo),
	}
	for _, entry := range entries {
		c.byCategory[entry.Category] = append(c.byCategory[entry.Category], entry)
		c.byName[entry.Name] = entry
	}
	for category := range c.byCategory {
		providers := c.byCategory[category]
		sort.Slice(providers, func(i, j int) bool { return providers[i].Name < providers[j].Name })
	}
	return c
}

// Providers returns the catalog entries for a category in name order.
func (c *Catalog) Providers(category string) []ProviderInfo {
	return c.byCategory[category]
}

// Lookup returns the entry for a provider name.
func (c *Catalog) Lookup(name string) (ProviderInfo, bool) {
	info, ok := c.byName[name]
	return info, ok
}

// DefaultCatalog returns the built-in provider catalog.
func DefaultCatalog() *Catalog {
	return NewCatalog([]ProviderInfo{
		{Name: "stripe", Category: "payments", CredentialFields: []string{"secret_key"}, Enabled: true},
		{Name: "braintree", Category: "payments", CredentialFields: []string{"merchant_id", "public_key", "private_key"}, Enabled: true},
		{Name: "adyen", Category: "payments", CredentialFields: []string{"api_key", "merchant_account"}, Enabled: true},
		{Name: "twilio", Category: "communications", CredentialFields: []string{"account_sid", "auth_token"}, Enabled: true},
		{Name: "sendgrid", Category: "communications", CredentialFields: []string{"api_key"}, Enabled: true},
		{Name: "vonage", Category: "communications", CredentialFields: []string{"api_key", "api_secret"}, Enabled: true},
	})
}
