package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"dsumotion/pkg/config"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.Validate())
	require.Equal(t, "127.0.0.1:26760", cfg.Endpoint())
	require.Equal(t, 10, cfg.MotionHistorySize)
	require.Equal(t, 2.0, cfg.SwingThreshold)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*config.Config){
		"empty address":     func(c *config.Config) { c.ServerAddress = "  " },
		"port zero":         func(c *config.Config) { c.ServerPort = 0 },
		"port too large":    func(c *config.Config) { c.ServerPort = 70000 },
		"negative swing":    func(c *config.Config) { c.SwingThreshold = -1 },
		"zero shake":        func(c *config.Config) { c.ShakeThreshold = 0 },
		"wide angle":        func(c *config.Config) { c.BowlingMaxAngleDegrees = 120 },
		"throw force order": func(c *config.Config) { c.MaxThrowForce = c.MinThrowForce },
		"tiny history":      func(c *config.Config) { c.MotionHistorySize = 2 },
		"empty queue":       func(c *config.Config) { c.SampleQueueSize = 0 },
		"bad pad":           func(c *config.Config) { c.PadID = 4 },
		"negative timeout":  func(c *config.Config) { c.GestureTimeoutSeconds = -0.1 },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := config.Default()
			mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestValidateJoinsAllErrors(t *testing.T) {
	cfg := config.Default()
	cfg.ServerAddress = ""
	cfg.ServerPort = -1

	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "server_address")
	require.Contains(t, err.Error(), "server_port")
}

func TestHolderSwap(t *testing.T) {
	h, err := config.NewHolder(config.Default())
	require.NoError(t, err)
	first := h.Load()

	next := config.Default()
	next.SwingThreshold = 4
	require.NoError(t, h.Swap(next))
	require.Equal(t, 4.0, h.Load().SwingThreshold)
	require.Equal(t, 2.0, first.SwingThreshold)

	bad := config.Default()
	bad.ServerPort = 0
	require.Error(t, h.Swap(bad))
	require.Equal(t, 4.0, h.Load().SwingThreshold)
}

func TestLoadOrDefaultFillsDefaults(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "dsumotion.toml")
	mustWriteFile(t, cfgPath, "[dsu]\nserver_address = '10.0.0.2'\nswing_threshold = 2.5\n")

	f, exists, err := config.LoadOrDefault(cfgPath)
	require.NoError(t, err)
	require.True(t, exists)
	require.Equal(t, "10.0.0.2", f.DSU.ServerAddress)
	require.Equal(t, 2.5, f.DSU.SwingThreshold)
	require.Equal(t, 26760, f.DSU.ServerPort)
	require.Equal(t, 10, f.DSU.MotionHistorySize)
	require.NotEmpty(t, f.Foxglove.WSAddr)
	require.Equal(t, "info", f.Log.Level)
	require.Equal(t, cfgPath, f.ConfigPath())
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	f, exists, err := config.LoadOrDefault(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	require.False(t, exists)
	require.Equal(t, config.Default(), f.DSU)

	_, err = config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "dsumotion.toml")
	mustWriteFile(t, cfgPath, "[dsu]\nmin_throw_force = 3.0\nmax_throw_force = 1.0\n")

	_, _, err := config.LoadOrDefault(cfgPath)
	require.Error(t, err)
	require.Contains(t, err.Error(), "max_throw_force")
}

func TestLoadYAML(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "dsumotion.yaml")
	mustWriteFile(t, cfgPath, `
dsu:
  server_port: 26761
  gesture_timeout_seconds: 0.25
mqtt:
  enabled: true
  topic_prefix: "games/bowling/"
`)

	f, err := config.Load(cfgPath)
	require.NoError(t, err)
	require.Equal(t, 26761, f.DSU.ServerPort)
	require.Equal(t, 0.25, f.DSU.GestureTimeoutSeconds)
	require.True(t, f.MQTT.Enabled)
	require.Equal(t, "games/bowling", f.MQTT.TopicPrefix)
}

func TestSaveRoundTrip(t *testing.T) {
	for _, name := range []string{"out/dsumotion.toml", "out/dsumotion.yml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			f := config.DefaultFile()
			f.DSU.ShakeThreshold = 4.5
			f.Foxglove.Enabled = true
			require.NoError(t, f.Save(path))

			loaded, err := config.Load(path)
			require.NoError(t, err)
			require.Equal(t, 4.5, loaded.DSU.ShakeThreshold)
			require.True(t, loaded.Foxglove.Enabled)
			require.Equal(t, f.DSU, loaded.DSU)
		})
	}
}

func mustWriteFile(t *testing.T, path string, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
}
