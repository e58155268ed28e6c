package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileSynthesizesDemoDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ratmail.toml")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.CLI.Enabled)
	require.Len(t, cfg.Accounts, 2)
	assert.Equal(t, "Personal", cfg.Accounts[0].Name)

	_, statErr := os.Stat(path)
	assert.NoError(t, statErr, "Load should have written the synthesized default to disk")
}

func TestLoadMalformedTOMLDisablesCLIWithoutFailing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ratmail.toml")
	require.NoError(t, os.WriteFile(path, []byte("this is not [ valid toml"), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.CLI.Enabled)
	assert.NotEmpty(t, cfg.ParseError)
}

func TestLoadExistingConfigWithAccountsKeepsThem(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ratmail.toml")
	cfg := &Config{
		CLI: CLIConfig{Enabled: true},
		Accounts: []AccountConfig{
			{Name: "Work", DBPath: "work.db", IMAP: IMAPConfig{Host: "imap.example.com", Port: 993}},
		},
	}
	require.NoError(t, Write(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Len(t, loaded.Accounts, 1)
	assert.Equal(t, "Work", loaded.Accounts[0].Name)
	assert.Equal(t, "imap.example.com", loaded.Accounts[0].IMAP.Host)
}

func TestWriteCreatesParentDirWithRestrictivePerms(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "ratmail.toml")
	require.NoError(t, Write(path, &Config{}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestDefaultPathUsesXDGConfigHome(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdgconf")
	assert.Equal(t, "/tmp/xdgconf/ratmail/ratmail.toml", DefaultPath())
}
