package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHomeCreatesDirectory(t *testing.T) {
	dir := t.TempDir() + "/nest/.automa"
	h, err := NewHome(dir)
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())
	assert.Equal(t, dir+"/state.db", h.DatabasePath())
}

func TestIdentityFirstBootDerivesFromConfig(t *testing.T) {
	h, err := NewHome(t.TempDir())
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Name = "seedling"
	cfg.Address = "0xabc"
	cfg.CreatorAddress = "0xdef"

	id, err := h.LoadIdentity(cfg)
	require.NoError(t, err)
	assert.Equal(t, "seedling", id.Name)
	assert.Equal(t, "0xabc", id.Address)
	assert.NotEmpty(t, id.CreatedAt)

	info, err := os.Stat(h.IdentityPath())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// Second load reads the persisted copy, not the config.
	cfg.Name = "renamed"
	again, err := h.LoadIdentity(cfg)
	require.NoError(t, err)
	assert.Equal(t, "seedling", again.Name)
}

func TestWalletRoundTrip(t *testing.T) {
	h, err := NewHome(t.TempDir())
	require.NoError(t, err)

	missing, err := h.LoadWallet()
	require.NoError(t, err)
	assert.Nil(t, missing)

	w := &Wallet{PrivateKey: "0xdeadbeef", CreatedAt: "2026-01-01T00:00:00Z"}
	require.NoError(t, h.SaveWallet(w))

	info, err := os.Stat(h.WalletPath())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := h.LoadWallet()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "0xdeadbeef", loaded.PrivateKey)
}

func TestGenesisPromptDefaultAndWrite(t *testing.T) {
	h, err := NewHome(t.TempDir())
	require.NoError(t, err)

	assert.Contains(t, h.LoadGenesisPrompt(), "sovereign automaton")

	require.NoError(t, h.WriteGenesisPrompt("# Purpose\nServe the colony."))
	assert.Equal(t, "# Purpose\nServe the colony.", h.LoadGenesisPrompt())
}

func TestDefaultHomeDirHonorsEnv(t *testing.T) {
	t.Setenv("AUTOMA_HOME", "/tmp/elsewhere")
	assert.Equal(t, "/tmp/elsewhere", DefaultHomeDir())
}
