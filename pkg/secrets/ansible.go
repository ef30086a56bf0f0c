package secrets

import (
	"fmt"
	"log"
	"os"

	vault "github.com/sosedoff/ansible-vault-go"
	"gopkg.in/yaml.v3"
)

// AnsibleVaultProvider reads endpoint passwords from ansible-vault encrypted yaml file
type AnsibleVaultProvider struct {
	data map[string]any
}

// NewAnsibleVaultProvider decrypts the vault file with the password
func NewAnsibleVaultProvider(vaultPath, password string) (*AnsibleVaultProvider, error) {
	fi, err := os.Stat(vaultPath)
	if err != nil {
		return nil, fmt.Errorf("can't stat ansible vault %s: %w", vaultPath, err)
	}
	if !fi.Mode().IsRegular() {
		return nil, fmt.Errorf("ansible vault %s is not a regular file", vaultPath)
	}

	text, err := vault.DecryptFile(vaultPath, password)
	if err != nil {
		return nil, fmt.Errorf("can't decrypt ansible vault %s: %w", vaultPath, err)
	}
	data := map[string]any{}
	if err = yaml.Unmarshal([]byte(text), &data); err != nil {
		return nil, fmt.Errorf("can't unmarshal ansible vault %s: %w", vaultPath, err)
	}
	log.Printf("[DEBUG] ansible vault %s decrypted, %d keys", vaultPath, len(data))
	return &AnsibleVaultProvider{data: data}, nil
}

// Get returns value of the key, non-string values formatted
func (p *AnsibleVaultProvider) Get(key string) (string, error) {
	v, ok := p.data[key]
	if !ok {
		return "", fmt.Errorf("ansible vault key %q: %w", key, ErrNotFound)
	}
	return fmt.Sprintf("%v", v), nil
}
