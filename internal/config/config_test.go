package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/awaistahir/smart-tariff/internal/engine"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "Europe/London", cfg.TimeZone)
	assert.Equal(t, "smarttariff.db", filepath.Base(cfg.DBPath))
	assert.NotEmpty(t, cfg.Glow.ApplicationID)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/London", loc.String())
}

func TestLoadFileAndEnv(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("SMARTTARIFF_PORT", "9090")
	t.Setenv("SMARTTARIFF_OCTOPUS_API_KEY", "sk_env")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
db_path: /tmp/tariff.db
timezone: UTC
defaults:
  standard_rate: 24.5
  standing_charge: 53.2
  efficiency_percent: 92
  standard_rate_battery_mode: use
  rate_periods:
    - start: 23.30
      end: 5.30
      rate: 7.5
      battery_mode: charge
octopus:
  mpan: "1200000000000"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "/tmp/tariff.db", cfg.DBPath)
	assert.Equal(t, "sk_env", cfg.Octopus.APIKey)
	assert.Equal(t, "1200000000000", cfg.Octopus.MPAN)

	settings := cfg.Settings()
	assert.True(t, settings.StandardRate.Equal(decimal.RequireFromString("24.5")))
	assert.True(t, settings.EfficiencyPercent.Equal(decimal.NewFromInt(92)))
	assert.Equal(t, engine.BatteryUse, settings.StandardRateBatteryMode)
	require.Len(t, settings.RatePeriods, 1)
	assert.True(t, settings.RatePeriods[0].Start.Equal(decimal.RequireFromString("23.30")))
	assert.Equal(t, engine.BatteryCharge, settings.RatePeriods[0].BatteryMode)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLocationInvalid(t *testing.T) {
	cfg := &Config{TimeZone: "Mars/Olympus"}
	_, err := cfg.Location()
	assert.Error(t, err)
}
