package secrets

import (
	"fmt"
	"strings"

	"github.com/hashicorp/vault/api"
)

// HashiVaultProvider reads endpoint passwords from a single vault secret, one field per key.
// Both kv v1 and kv v2 (nested "data") layouts are supported.
type HashiVaultProvider struct {
	client *api.Client
	path   string
}

// NewHashiVaultProvider makes vault provider for secret at path, i.e. "secret/data/graphly"
func NewHashiVaultProvider(addr, path, token string) (*HashiVaultProvider, error) {
	client, err := api.NewClient(&api.Config{Address: addr})
	if err != nil {
		return nil, fmt.Errorf("can't make vault client: %w", err)
	}
	client.SetToken(token)
	return &HashiVaultProvider{client: client, path: strings.Trim(path, "/")}, nil
}

// Get returns field key of the vault secret
func (p *HashiVaultProvider) Get(key string) (string, error) {
	secret, err := p.client.Logical().Read(p.path)
	if err != nil {
		return "", fmt.Errorf("can't read vault secret %s: %w", p.path, err)
	}
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("vault secret %s: %w", p.path, ErrNotFound)
	}

	data := secret.Data
	if nested, ok := secret.Data["data"].(map[string]any); ok {
		data = nested
	}
	raw, ok := data[key]
	if !ok {
		return "", fmt.Errorf("vault key %q: %w", key, ErrNotFound)
	}
	val, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("vault key %q is %T, not a string", key, raw)
	}
	return val, nil
}
