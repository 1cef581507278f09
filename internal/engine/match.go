package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// TimeOfDay encodes the wall-clock time of t as hour + minute/100
func TimeOfDay(t time.Time) decimal.Decimal {
	return decimal.NewFromInt(int64(t.Hour())).Add(decimal.NewFromInt(int64(t.Minute())).Div(hundred))
}

// Enabled reports whether the period is configured. A zero rate or an empty window means unused.
func (p RatePeriod) Enabled() bool {
	return !p.Start.Equal(p.End) && !p.Rate.IsZero()
}

// Contains reports whether the encoded time of day tod falls inside the window.
// The start instant belongs to the previous window and the end instant to this one.
func (p RatePeriod) Contains(tod decimal.Decimal) bool {
	switch p.Start.Cmp(p.End) {
	case -1:
		return tod.GreaterThan(p.Start) && tod.LessThanOrEqual(p.End)
	case 1:
		// Wraps past midnight
		return tod.GreaterThan(p.Start) || tod.LessThanOrEqual(p.End)
	default:
		return false
	}
}

// MatchRatePeriod returns the index of the first enabled period containing tod, or -1
func MatchRatePeriod(tod decimal.Decimal, periods []RatePeriod) int {
	for i := range periods {
		if !periods[i].Enabled() {
			continue
		}
		if periods[i].Contains(tod) {
			return i
		}
	}
	return -1
}
