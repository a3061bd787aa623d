package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsWithNoFile(t *testing.T) {
	cfg, err := Load("", Overrides{})
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "pretty", cfg.Logging.Format)
	require.True(t, cfg.Discovery.Enabled)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nexus.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9090\nlogging:\n  format: json\n"), 0o644))

	cfg, err := Load(path, Overrides{})
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "json", cfg.Logging.Format)
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nexus.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0o644))

	t.Setenv("NEXUS_PORT", "7070")
	cfg, err := Load(path, Overrides{})
	require.NoError(t, err)
	require.Equal(t, 7070, cfg.Server.Port)
}

func TestCLIOverrideWinsOverEnvAndFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nexus.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0o644))
	t.Setenv("NEXUS_PORT", "7070")

	port := 1234
	cfg, err := Load(path, Overrides{Port: &port})
	require.NoError(t, err)
	require.Equal(t, 1234, cfg.Server.Port)
}

func TestNoDiscoveryOverrideDisables(t *testing.T) {
	cfg, err := Load("", Overrides{NoDiscovery: true})
	require.NoError(t, err)
	require.False(t, cfg.Discovery.Enabled)
}
