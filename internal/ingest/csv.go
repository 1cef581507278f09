package ingest

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/awaistahir/smart-tariff/internal/engine"
	"github.com/shopspring/decimal"
)

var ErrMalformedInput = errors.New("malformed input")

// LineError reports the first unusable line of an import
type LineError struct {
	Line int
	Msg  string
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

func (e *LineError) Unwrap() error {
	return ErrMalformedInput
}

// Layouts without an offset are read in the caller's location
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
}

// ParseCSV reads "period,value" lines after a header line. Blank lines are skipped
// and quotes around either column are ignored. Nothing is returned unless every
// line parses.
//
// Each timestamp is stored as written and is taken to be the END of its half-hour slot,
// matching the readings fetched from Octopus and Glow. Exports stamped with the slot
// start need ShiftToSlotEnd.
func ParseCSV(r io.Reader, loc *time.Location) ([]engine.Reading, error) {
	if loc == nil {
		loc = time.Local
	}

	var readings []engine.Reading
	scanner := bufio.NewScanner(r)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := strings.TrimSpace(scanner.Text())
		if lineno == 1 || line == "" {
			continue
		}

		cols := strings.Split(line, ",")
		if len(cols) != 2 {
			return nil, &LineError{Line: lineno, Msg: fmt.Sprintf("expected 2 columns, got %d: %q", len(cols), line)}
		}

		period, err := parseTimestamp(unquote(cols[0]), loc)
		if err != nil {
			return nil, &LineError{Line: lineno, Msg: err.Error()}
		}
		value, err := decimal.NewFromString(unquote(cols[1]))
		if err != nil {
			return nil, &LineError{Line: lineno, Msg: fmt.Sprintf("invalid value %q", unquote(cols[1]))}
		}

		readings = append(readings, engine.Reading{Period: period, Value: value})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading csv: %w", err)
	}
	return readings, nil
}

// ShiftToSlotEnd moves readings stamped with the start of their slot to its end.
// readings is modified in place and returned.
func ShiftToSlotEnd(readings []engine.Reading) []engine.Reading {
	for i := range readings {
		readings[i].Period = readings[i].Period.Add(SlotLength)
	}
	return readings
}

func unquote(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, `"`, ""))
}

func parseTimestamp(s string, loc *time.Location) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.In(loc), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}
