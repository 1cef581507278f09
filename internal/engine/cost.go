package engine

import (
	"sort"

	"github.com/shopspring/decimal"
)

var (
	daysPerWeek   = decimal.NewFromInt(7)
	daysPerYear   = decimal.NewFromInt(365)
	monthsPerYear = decimal.NewFromInt(12)
)

// Aggregate turns the units accumulated on each bucket into costs, percentages,
// annual projections and the rate summary. s.Days must already be set.
func Aggregate(s *Scenario) {
	days := decimal.NewFromInt(int64(s.Days))

	// Move the weekly shift out of the standard rate, never below zero
	for i := range s.RatePeriods {
		p := &s.RatePeriods[i]
		if !p.Enabled() || p.WeeklyShiftUnits <= 0 {
			continue
		}
		shift := decimal.NewFromInt(int64(p.WeeklyShiftUnits)).Mul(days).Div(daysPerWeek).RoundBank(0)
		shift = decimal.Min(shift, s.Standard.Units)
		if !shift.IsPositive() {
			continue
		}
		s.Standard.Units = s.Standard.Units.Sub(shift)
		p.Units = p.Units.Add(shift)
	}

	s.Standard.Rate = s.StandardRate
	s.Standard.BatteryMode = s.StandardRateBatteryMode
	s.Standard.Cost = bucketCost(s.Standard)
	s.TotalUsage = s.Standard.Units
	usageCost := s.Standard.Cost
	for i := range s.RatePeriods {
		p := &s.RatePeriods[i]
		p.Cost = bucketCost(*p)
		s.TotalUsage = s.TotalUsage.Add(p.Units)
		usageCost = usageCost.Add(p.Cost)
	}

	s.StandingCost = days.Mul(s.StandingCharge).Div(hundred)
	s.TotalCost = s.StandingCost.Add(usageCost)

	s.Standard.Percentage = percentage(s.Standard.Units, s.TotalUsage)
	for i := range s.RatePeriods {
		s.RatePeriods[i].Percentage = percentage(s.RatePeriods[i].Units, s.TotalUsage)
	}

	s.AnnualUsage = decimal.Zero
	s.AnnualCost = decimal.Zero
	if s.Days > 0 {
		s.AnnualUsage = s.TotalUsage.Mul(daysPerYear).Div(days)
		s.AnnualCost = s.TotalCost.Mul(daysPerYear).Div(days)
	}
	s.MonthlyCost = s.AnnualCost.Div(monthsPerYear).RoundBank(2)

	s.RateSummary = summarise(*s)
}

func bucketCost(p RatePeriod) decimal.Decimal {
	return p.Units.Mul(p.Rate).Div(hundred)
}

func percentage(units, total decimal.Decimal) decimal.Decimal {
	if total.IsZero() {
		return decimal.Zero
	}
	return units.Div(total)
}

// summarise groups the standard bucket and the enabled rate periods by rate, cheapest first
func summarise(s Scenario) []RateSummary {
	buckets := make([]RatePeriod, 0, len(s.RatePeriods)+1)
	buckets = append(buckets, s.Standard)
	for _, p := range s.RatePeriods {
		if p.Enabled() {
			buckets = append(buckets, p)
		}
	}

	summary := []RateSummary{}
	for _, b := range buckets {
		idx := -1
		for i := range summary {
			if summary[i].Rate.Equal(b.Rate) {
				idx = i
				break
			}
		}
		if idx < 0 {
			summary = append(summary, RateSummary{Rate: b.Rate})
			idx = len(summary) - 1
		}
		r := &summary[idx]
		r.Units = r.Units.Add(b.Units)
		r.Cost = r.Cost.Add(b.Cost)
		r.Percentage = r.Percentage.Add(b.Percentage)
		r.BatteryChargedUnits = r.BatteryChargedUnits.Add(b.BatteryChargedUnits)
		r.BatteryUsedUnits = r.BatteryUsedUnits.Add(b.BatteryUsedUnits)
	}

	sort.SliceStable(summary, func(i, j int) bool {
		return summary[i].Rate.LessThan(summary[j].Rate)
	})
	return summary
}
