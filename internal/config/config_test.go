package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "graphite.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Setenv("GRAPHITE_CONFIG", "")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	require.NoError(t, cfg.Validate())
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  brand: Test
world:
  seed: 42
  generator: flat
  view_distance: 4
  unload_grace: 5s
  autosave: 1m
storage:
  in_memory: true
logging:
  components:
    network: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "Test", cfg.Server.Brand)
	assert.EqualValues(t, 20, cfg.Server.MaxPlayers)
	assert.EqualValues(t, 42, cfg.World.Seed)
	assert.Equal(t, "flat", cfg.World.Generator)
	assert.EqualValues(t, 4, cfg.World.ViewDistance)
	assert.Equal(t, 5*time.Second, cfg.World.UnloadGrace)
	assert.Equal(t, -64, cfg.World.MinY)
	assert.True(t, cfg.Storage.InMemory)
	assert.Equal(t, ":25565", cfg.Network.Listen)
	assert.Equal(t, time.Minute, cfg.World.Autosave)
	assert.Equal(t, map[string]string{"network": "debug"}, cfg.Logging.Components)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("GRAPHITE_CONFIG", writeConfig(t, "world:\n  name: lobby\n"))
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "lobby", cfg.World.Name)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"height":    "world:\n  height: 100\n",
		"view":      "world:\n  view_distance: 64\n",
		"shape":     "world:\n  view_shape: hexagon\n",
		"generator": "world:\n  generator: void\n",
		"positions": "storage:\n  positions: mongo\n",
		"mysql dsn": "storage:\n  positions: mysql\n",
		"eventbus":  "eventbus:\n  backend: kafka\n",
		"sampling":  "telemetry:\n  sample_ratio: 2\n",
		"game mode": "network:\n  game_mode: 7\n",
		"yaml":      "world: [\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestPortFallback(t *testing.T) {
	s := ServerConfig{}
	t.Setenv("GRAPHITE_ADMIN_PORT", "")
	assert.Equal(t, 8088, s.GetAdminPort())

	t.Setenv("GRAPHITE_ADMIN_PORT", "9000")
	assert.Equal(t, 9000, s.GetAdminPort())

	s.AdminPort = 7000
	assert.Equal(t, 7000, s.GetAdminPort())

	t.Setenv("GRAPHITE_METRICS_PORT", "bogus")
	assert.Equal(t, 0, s.GetMetricsPort())
}

func TestAdminSecretFallback(t *testing.T) {
	s := ServerConfig{}
	t.Setenv("GRAPHITE_ADMIN_SECRET", "from-env")
	assert.Equal(t, "from-env", s.GetAdminSecret())

	s.AdminSecret = "from-file"
	assert.Equal(t, "from-file", s.GetAdminSecret())
}
