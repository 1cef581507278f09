package ingest

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCSV(t *testing.T) {
	input := strings.Join([]string{
		`"Period","Value"`,
		`"2024-03-01 00:30:00","0.125"`,
		``,
		`2024-03-01T01:00:00Z,0.2`,
		`01/03/2024 01:30,1`,
		`  `,
	}, "\n")

	readings, err := ParseCSV(strings.NewReader(input), time.UTC)
	require.NoError(t, err)
	require.Len(t, readings, 3)

	assert.Equal(t, time.Date(2024, 3, 1, 0, 30, 0, 0, time.UTC), readings[0].Period)
	assert.True(t, readings[0].Value.Equal(decimal.RequireFromString("0.125")))
	assert.Equal(t, time.Date(2024, 3, 1, 1, 0, 0, 0, time.UTC), readings[1].Period)
	assert.Equal(t, time.Date(2024, 3, 1, 1, 30, 0, 0, time.UTC), readings[2].Period)
}

func TestParseCSVLocation(t *testing.T) {
	london, err := time.LoadLocation("Europe/London")
	require.NoError(t, err)

	readings, err := ParseCSV(strings.NewReader("period,value\n2024-07-01 18:00,1.5\n"), london)
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.Equal(t, 18, readings[0].Period.Hour())
	assert.Equal(t, time.Date(2024, 7, 1, 17, 0, 0, 0, time.UTC), readings[0].Period.UTC())
}

func TestParseCSVErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		line  int
	}{
		{"missing comma", "h\n2024-03-01 00:30 0.1\n", 2},
		{"extra column", "h\n2024-03-01 00:30,0.1,x\n", 2},
		{"bad timestamp", "h\n2024-03-01 00:30,0.1\nyesterday,0.2\n", 3},
		{"bad value", "h\n\n2024-03-01 00:30,lots\n", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			readings, err := ParseCSV(strings.NewReader(tt.input), time.UTC)
			require.Error(t, err)
			assert.Nil(t, readings)
			assert.True(t, errors.Is(err, ErrMalformedInput))

			var le *LineError
			require.True(t, errors.As(err, &le))
			assert.Equal(t, tt.line, le.Line)
		})
	}
}

func TestParseCSVHeaderOnly(t *testing.T) {
	readings, err := ParseCSV(strings.NewReader("period,value\n"), time.UTC)
	require.NoError(t, err)
	assert.Empty(t, readings)
}

func TestShiftToSlotEnd(t *testing.T) {
	readings, err := ParseCSV(strings.NewReader("period,value\n2024-03-01 23:00,1\n2024-03-01 23:30,2\n"), time.UTC)
	require.NoError(t, err)

	shifted := ShiftToSlotEnd(readings)
	require.Len(t, shifted, 2)
	assert.Equal(t, time.Date(2024, 3, 1, 23, 30, 0, 0, time.UTC), shifted[0].Period)
	assert.Equal(t, time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), shifted[1].Period, "the last slot of a day ends at midnight")
	assert.True(t, shifted[1].Value.Equal(decimal.NewFromInt(2)))

	assert.Empty(t, ShiftToSlotEnd(nil))
}
