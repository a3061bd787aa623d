package bootstrap

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nexusfleet/nexus/internal/config"
)

func TestNewWiresBackendsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Backends = []config.BackendSeed{
		{Name: "local1", URL: "http://localhost:11434", Type: "ollama", Priority: 1},
	}
	cfg.Discovery.Enabled = false
	cfg.HealthCheck.Enabled = false

	app, err := New(cfg)
	require.NoError(t, err)
	require.NotNil(t, app.Gateway)
	require.Nil(t, app.Discovery)
	require.Nil(t, app.Health)

	backends := app.Registry.GetAllBackends()
	require.Len(t, backends, 1)
	require.Equal(t, "local1", backends[0].ID)
}

func TestNewRejectsUnknownBackendType(t *testing.T) {
	cfg := config.Default()
	cfg.Backends = []config.BackendSeed{{Name: "bad", URL: "http://x", Type: "not-a-real-type"}}

	_, err := New(cfg)
	require.Error(t, err)
}

func TestNewEnablesHealthAndDiscoveryWhenConfigured(t *testing.T) {
	cfg := config.Default()
	app, err := New(cfg)
	require.NoError(t, err)
	require.NotNil(t, app.Health)
	require.NotNil(t, app.Discovery)
}
