package ingest

import (
	"sort"
	"time"

	"github.com/awaistahir/smart-tariff/internal/engine"
)

// SlotLength is the interval between consecutive meter readings
const SlotLength = 30 * time.Minute

// Range is a run of readings with no missing slots
type Range struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Coverage splits the readings into contiguous ranges. A new range starts wherever
// the next reading is more than one slot after the previous one.
func Coverage(readings []engine.Reading) []Range {
	ordered := append([]engine.Reading(nil), readings...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Period.Before(ordered[j].Period)
	})

	ranges := []Range{}
	for _, r := range ordered {
		if n := len(ranges); n > 0 && !r.Period.After(ranges[n-1].End.Add(SlotLength)) {
			ranges[n-1].End = r.Period
			continue
		}
		ranges = append(ranges, Range{Start: r.Period, End: r.Period})
	}
	return ranges
}

// Gaps returns the missing stretches between the covered ranges
func Gaps(ranges []Range) []Range {
	gaps := []Range{}
	for i := 1; i < len(ranges); i++ {
		gaps = append(gaps, Range{
			Start: ranges[i-1].End.Add(SlotLength),
			End:   ranges[i].Start.Add(-SlotLength),
		})
	}
	return gaps
}
