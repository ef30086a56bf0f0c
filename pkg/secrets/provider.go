// Package secrets provides endpoint passwords from different sources: memory, encrypted sql store,
// HashiCorp Vault, AWS Secrets Manager and ansible-vault files.
package secrets

import "errors"

// ErrNotFound returned by providers for unknown keys
var ErrNotFound = errors.New("secret not found")

// NoOpProvider is a provider without secrets
type NoOpProvider struct{}

// Get returns an error on every key
func (p *NoOpProvider) Get(_ string) (string, error) {
	return "", errors.New("no secrets provider configured")
}

// MemoryProvider keeps secrets in memory, made for tests and passwords passed in cli
type MemoryProvider struct {
	secrets map[string]string
}

// NewMemoryProvider makes MemoryProvider with the given secrets
func NewMemoryProvider(secrets map[string]string) *MemoryProvider {
	return &MemoryProvider{secrets: secrets}
}

// Get returns the secret for the key
func (m *MemoryProvider) Get(key string) (string, error) {
	if val, ok := m.secrets[key]; ok {
		return val, nil
	}
	return "", ErrNotFound
}
