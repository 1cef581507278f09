package ingest

import (
	"testing"
	"time"

	"github.com/awaistahir/smart-tariff/internal/engine"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoverage(t *testing.T) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	at := func(minutes int) engine.Reading {
		return engine.Reading{Period: base.Add(time.Duration(minutes) * time.Minute), Value: decimal.NewFromInt(1)}
	}

	ranges := Coverage([]engine.Reading{at(60), at(0), at(30), at(180), at(210), at(300)})
	require.Len(t, ranges, 3)
	assert.Equal(t, Range{Start: base, End: base.Add(time.Hour)}, ranges[0])
	assert.Equal(t, Range{Start: base.Add(3 * time.Hour), End: base.Add(210 * time.Minute)}, ranges[1])
	assert.Equal(t, Range{Start: base.Add(5 * time.Hour), End: base.Add(5 * time.Hour)}, ranges[2])

	gaps := Gaps(ranges)
	require.Len(t, gaps, 2)
	assert.Equal(t, Range{Start: base.Add(90 * time.Minute), End: base.Add(150 * time.Minute)}, gaps[0])
	assert.Equal(t, Range{Start: base.Add(240 * time.Minute), End: base.Add(270 * time.Minute)}, gaps[1])
}

func TestCoverageEmpty(t *testing.T) {
	assert.Empty(t, Coverage(nil))
	assert.Empty(t, Gaps(nil))
}
