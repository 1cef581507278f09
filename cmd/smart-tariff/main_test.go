package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/awaistahir/smart-tariff/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, db string, args ...string) error {
	t.Helper()
	cmd := newRootCmd()
	cmd.SetArgs(append([]string{"--db", db}, args...))
	return cmd.Execute()
}

func TestCommands(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("SMARTTARIFF_DEFAULTS_STANDARD_RATE", "25")
	t.Setenv("SMARTTARIFF_DEFAULTS_STANDING_CHARGE", "50")
	db := filepath.Join(home, "data", "tariff.db")

	csv := filepath.Join(home, "readings.csv")
	require.NoError(t, os.WriteFile(csv, []byte("period,value\n2024-03-01 01:00,2\n2024-03-02 12:00,1\n"), 0o644))

	scenarios := filepath.Join(home, "scenarios.yaml")
	require.NoError(t, os.WriteFile(scenarios, []byte(`
scenarios:
  - name: Economy 7
    standard_rate: 30
    standing_charge: 45
    period_start: 2024-03-01
    period_end: 2024-03-31
    rate_periods:
      - start: 0.30
        end: 7.30
        rate: 9
`), 0o644))

	require.NoError(t, run(t, db, "init"))
	require.NoError(t, run(t, db, "import", csv))
	require.NoError(t, run(t, db, "scenario", "add", "Flat", "--from", "2024-03-01", "--to", "2024-03-31"))
	require.NoError(t, run(t, db, "scenario", "apply", "-f", scenarios))
	require.NoError(t, run(t, db, "scenario", "copy", "Flat"))
	require.NoError(t, run(t, db, "recalc", "--all"))
	require.NoError(t, run(t, db, "scenario", "list"))
	require.NoError(t, run(t, db, "scenario", "show", "Economy 7"))
	require.NoError(t, run(t, db, "check"))

	assert.Error(t, run(t, db, "recalc"), "needs a scenario or --all")
	assert.Error(t, run(t, db, "scenario", "show", "missing"))
	assert.Error(t, run(t, db, "fetch", "nowhere"))

	st, err := store.NewStore(db, nil)
	require.NoError(t, err)
	defer st.Close()

	list, err := st.ListScenarios(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 3)

	e7, err := st.GetScenarioByName(context.Background(), "Economy 7")
	require.NoError(t, err)
	// 2 kWh at 9p, 1 kWh at 30p, one day at 45p
	assert.Equal(t, "0.93", e7.TotalCost.String())

	flat, err := st.GetScenarioByName(context.Background(), "Flat")
	require.NoError(t, err)
	assert.Equal(t, "1.25", flat.TotalCost.String())

	require.NoError(t, run(t, db, "scenario", "delete", "Flat (copy)"))
	list, err = st.ListScenarios(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestImportSlotStart(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	db := filepath.Join(home, "data", "tariff.db")

	csv := filepath.Join(home, "readings.csv")
	require.NoError(t, os.WriteFile(csv, []byte("period,value\n2024-03-01 00:00,2\n2024-03-01 23:30,1\n"), 0o644))

	require.NoError(t, run(t, db, "init"))
	require.NoError(t, run(t, db, "import", "--slot-start", "--no-recalc", csv))

	st, err := store.NewStore(db, nil)
	require.NoError(t, err)
	defer st.Close()

	count, first, last, err := st.ReadingStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 30, 0, 0, time.UTC), first.UTC())
	assert.Equal(t, time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), last.UTC())
}
