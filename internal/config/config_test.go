package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ccw/server/internal/clips"
	"ccw/server/logging"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ccw.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 60, cfg.Simulation.TickRate)
	assert.Equal(t, 100*time.Millisecond, cfg.Simulation.MaxDelta)
	assert.Equal(t, 300*time.Millisecond, cfg.Input.BufferDuration)
	assert.Equal(t, clips.TwoHandSword, cfg.DefaultWeapon())
	assert.Equal(t, []string{"console"}, cfg.Logging.Sinks)
}

func TestLoadOverlaysFileOnDefaults(t *testing.T) {
	path := writeConfig(t, `
[server]
addr = "127.0.0.1:9000"

[simulation]
tick_rate = 30
max_delta = "50ms"

[combo]
default_weapon = "OneHandSword"

[input]
buffer_duration = "250ms"

[logging]
sinks = ["console", "zap"]
severity = "debug"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, 30, cfg.Simulation.TickRate)
	assert.Equal(t, 50*time.Millisecond, cfg.Simulation.MaxDelta)
	assert.Equal(t, 1024, cfg.Simulation.CommandCapacity, "untouched keys keep their defaults")
	assert.Equal(t, clips.OneHandSword, cfg.DefaultWeapon())
	assert.Equal(t, 250*time.Millisecond, cfg.Input.BufferDuration)

	router := cfg.RouterConfig()
	assert.Equal(t, []string{"console", "zap"}, router.EnabledSinks)
	assert.Equal(t, logging.SeverityDebug, router.MinimumSeverity)
}

func TestLoadAppliesEnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, `
[server]
addr = ":7000"
`)
	t.Setenv("CCW_ADDR", ":7100")
	t.Setenv("CCW_TICK_RATE", "120")
	t.Setenv("CCW_LOG_SINKS", "json,sqlite")
	t.Setenv("CCW_OTEL_ENABLED", "true")
	t.Setenv("CCW_OTEL_ENDPOINT", "http://collector:4318")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7100", cfg.Server.Addr)
	assert.Equal(t, 120, cfg.Simulation.TickRate)
	assert.Equal(t, []string{"json", "sqlite"}, cfg.Logging.Sinks)
	assert.True(t, cfg.Observability.Active())
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"tick rate": "[simulation]\ntick_rate = 0\n",
		"weapon":    "[combo]\ndefault_weapon = \"Trident\"\n",
		"severity":  "[logging]\nseverity = \"loud\"\n",
		"format":    "[logging]\nformat = \"xml\"\n",
		"ratio":     "[observability]\nsample_ratio = 2.0\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			require.Error(t, err)
		})
	}
}

func TestLoadReportsMissingAndMalformedFiles(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.ErrorContains(t, err, "read config")

	_, err = Load(writeConfig(t, "[server\naddr = 1"))
	require.ErrorContains(t, err, "parse config")
}

func TestLoopConfigMirrorsSimulationSection(t *testing.T) {
	cfg := Default()
	cfg.Simulation.PerActorLimit = 3

	loop := cfg.LoopConfig()
	assert.Equal(t, 60, loop.TickRate)
	assert.Equal(t, 3, loop.PerActorLimit)
	assert.Equal(t, 256, loop.WarningStep)
}
