package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/awaistahir/smart-tariff/internal/engine"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenarioYAML = `
scenarios:
  - name: Octopus Go
    standard_rate: 24.5
    standing_charge: 53.2
    period_start: 2024-01-01
    period_end: 2024-12-31
    standard_rate_battery_mode: use
    battery:
      capacity_kwh: 9.5
      max_charge_rate_kw: 3.6
      max_discharge_rate_kw: 3.6
      efficiency_percent: 92
    rate_periods:
      - start: 0.30
        end: 4.30
        rate: 8.5
        battery_mode: charge
  - name: Flat
    standard_rate: 27
    standing_charge: 60
    period_start: 2024-01-01
    period_end: 2024-06-30
`

func TestParseScenarios(t *testing.T) {
	scenarios, err := ParseScenarios([]byte(scenarioYAML), time.UTC)
	require.NoError(t, err)
	require.Len(t, scenarios, 2)

	g := scenarios[0]
	assert.Equal(t, "Octopus Go", g.Name)
	assert.True(t, g.StandingCharge.Equal(decimal.RequireFromString("53.2")))
	assert.Equal(t, time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), g.PeriodEnd)
	assert.True(t, g.HasBattery())
	assert.True(t, g.MaxChargeRateKW.Equal(decimal.RequireFromString("3.6")))
	require.Len(t, g.RatePeriods, 1)
	assert.True(t, g.RatePeriods[0].End.Equal(decimal.RequireFromString("4.30")))
	assert.Equal(t, engine.BatteryCharge, g.RatePeriods[0].BatteryMode)
	require.NoError(t, engine.Validate(g))

	flat := scenarios[1]
	assert.False(t, flat.HasBattery())
	assert.Empty(t, flat.RatePeriods)
	require.NoError(t, engine.Validate(flat))
}

func TestParseScenariosErrors(t *testing.T) {
	tests := map[string]string{
		"unknown key":  "scenarios:\n  - name: x\n    peak_rate: 3\n",
		"bad date":     "scenarios:\n  - name: x\n    period_start: 1/1/2024\n    period_end: 2024-01-02\n",
		"missing date": "scenarios:\n  - name: x\n    period_start: 2024-01-01\n",
		"not yaml":     "scenarios: [",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseScenarios([]byte(doc), time.UTC)
			assert.Error(t, err)
		})
	}
}

func TestLoadScenarioFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenarios.yaml")
	require.NoError(t, os.WriteFile(path, []byte(scenarioYAML), 0o644))

	scenarios, err := LoadScenarioFile(path, time.UTC)
	require.NoError(t, err)
	assert.Len(t, scenarios, 2)

	_, err = LoadScenarioFile(filepath.Join(t.TempDir(), "missing.yaml"), time.UTC)
	assert.Error(t, err)
}
