package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_MatchesSpecTables(t *testing.T) {
	cfg := Default()
	assert.ElementsMatch(t, []int{3000, 5000, 8000, 8080, 5173, 4200}, cfg.WatchedPorts)
	assert.ElementsMatch(t, []string{"mcp", "secure_mcp", "claude", "api-toolbox"}, cfg.Tokens.InfrastructureTokens)
	assert.Equal(t, "secure-dev-manager_debug.log", cfg.Log.Path)
}

func TestLoad_EmptyPathReturnsDefault(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_MissingFileReturnsDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_OverlaysOnlyNonEmptyFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	toml := `
watched_ports = [9001, 9002]
`
	require.NoError(t, os.WriteFile(path, []byte(toml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{9001, 9002}, cfg.WatchedPorts)
	assert.ElementsMatch(t, []string{"mcp", "secure_mcp", "claude", "api-toolbox"}, cfg.Tokens.InfrastructureTokens, "unset fields must retain defaults")
}
