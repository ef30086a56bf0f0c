package main

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreds(t *testing.T) {
	conn := "file:" + filepath.Join(t.TempDir(), "creds.db")
	common := []string{"--key", "secretkey", "--conn", conn}

	tests := []struct {
		name    string
		args    []string
		wantOut string
		wantErr string
	}{
		{name: "set", args: []string{"set", "zazuko", "pass1"}},
		{name: "set another", args: []string{"set", "zazuko-dev", "pass2"}},
		{name: "set without value", args: []string{"set", "wikidata"}, wantErr: `no value for key "wikidata": no tty`},
		{name: "get", args: []string{"get", "zazuko"}, wantOut: "pass1\n"},
		{name: "get missing", args: []string{"get", "wikidata"}, wantErr: `can't get secret for key "wikidata": secret not found`},
		{name: "list", args: []string{"list", "zaz"}, wantOut: "zazuko\nzazuko-dev\n"},
		{name: "del", args: []string{"del", "zazuko"}},
		{name: "del missing", args: []string{"del", "zazuko"}, wantErr: `can't delete secret for key "zazuko": secret not found`},
		{name: "list after del", args: []string{"list"}, wantOut: "zazuko-dev\n"},
	}

	readPassword = func() (string, error) { return "", errors.New("no tty") }

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out := bytes.Buffer{}
			err := runCommand(append(append([]string{}, common...), tc.args...), &out)
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.EqualError(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantOut, out.String())
		})
	}
}

func TestCreds_ReadPassword(t *testing.T) {
	conn := "file:" + filepath.Join(t.TempDir(), "creds.db")
	readPassword = func() (string, error) { return "typed", nil }

	require.NoError(t, runCommand([]string{"-k", "key", "-c", conn, "set", "zazuko"}, &bytes.Buffer{}))
	out := bytes.Buffer{}
	require.NoError(t, runCommand([]string{"-k", "key", "-c", conn, "get", "zazuko"}, &out))
	assert.Equal(t, "typed\n", out.String())
}

func TestCreds_NoKey(t *testing.T) {
	err := runCommand([]string{"list"}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key")
}
