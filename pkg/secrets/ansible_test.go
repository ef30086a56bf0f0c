package secrets

import (
	"path/filepath"
	"testing"

	vault "github.com/sosedoff/ansible-vault-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnsibleVaultProvider(t *testing.T) {
	dir := t.TempDir()
	vaultFile := filepath.Join(dir, "vault.yml")
	require.NoError(t, vault.EncryptFile(vaultFile, "zazuko: pass1\nport: 8890\n", "password"))

	t.Run("get", func(t *testing.T) {
		p, err := NewAnsibleVaultProvider(vaultFile, "password")
		require.NoError(t, err)
		val, err := p.Get("zazuko")
		require.NoError(t, err)
		assert.Equal(t, "pass1", val)
		val, err = p.Get("port")
		require.NoError(t, err)
		assert.Equal(t, "8890", val)
		_, err = p.Get("wikidata")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := NewAnsibleVaultProvider(vaultFile, "password0")
		assert.ErrorContains(t, err, "can't decrypt ansible vault")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := NewAnsibleVaultProvider(filepath.Join(dir, "nope.yml"), "password")
		assert.ErrorContains(t, err, "can't stat ansible vault")
	})

	t.Run("directory", func(t *testing.T) {
		_, err := NewAnsibleVaultProvider(dir, "password")
		assert.ErrorContains(t, err, "is not a regular file")
	})

	t.Run("invalid yaml", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.yml")
		require.NoError(t, vault.EncryptFile(bad, "zazuko: [pass1\n", "password"))
		_, err := NewAnsibleVaultProvider(bad, "password")
		assert.ErrorContains(t, err, "can't unmarshal ansible vault")
	})
}
