package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// Reading is the consumption recorded for one half-hour slot
type Reading struct {
	Period time.Time       `json:"period"`
	Value  decimal.Decimal `json:"value"` // kWh
}

// BatteryMode defines what the simulated battery does during a rate window
type BatteryMode string

const (
	BatteryNone   BatteryMode = "none"   // Battery idle
	BatteryCharge BatteryMode = "charge" // Charge from the grid
	BatteryUse    BatteryMode = "use"    // Discharge to cover consumption
)

// Valid reports whether m is a known mode. The empty mode is treated as none.
func (m BatteryMode) Valid() bool {
	switch m {
	case "", BatteryNone, BatteryCharge, BatteryUse:
		return true
	}
	return false
}

// RatePeriod is a recurring daily tariff window plus the totals accumulated for it.
//
// Start and End are encoded as hour + minute/100, so 23:30 is 23.30.
type RatePeriod struct {
	Start            decimal.Decimal `json:"start"`
	End              decimal.Decimal `json:"end"`
	Rate             decimal.Decimal `json:"rate"` // pence per kWh
	WeeklyShiftUnits int             `json:"weekly_shift_units"`
	BatteryMode      BatteryMode     `json:"battery_mode"`

	Units               decimal.Decimal `json:"units"`
	Cost                decimal.Decimal `json:"cost"`
	Percentage          decimal.Decimal `json:"percentage"`
	BatteryChargedUnits decimal.Decimal `json:"battery_charged_units"`
	BatteryUsedUnits    decimal.Decimal `json:"battery_used_units"`
}

// reset zeroes the accumulated outputs, keeping the configuration
func (p *RatePeriod) reset() {
	p.Units = decimal.Zero
	p.Cost = decimal.Zero
	p.Percentage = decimal.Zero
	p.BatteryChargedUnits = decimal.Zero
	p.BatteryUsedUnits = decimal.Zero
}

// RateSummary aggregates every bucket charged at the same rate
type RateSummary struct {
	Rate                decimal.Decimal `json:"rate"`
	Units               decimal.Decimal `json:"units"`
	Cost                decimal.Decimal `json:"cost"`
	Percentage          decimal.Decimal `json:"percentage"`
	BatteryChargedUnits decimal.Decimal `json:"battery_charged_units"`
	BatteryUsedUnits    decimal.Decimal `json:"battery_used_units"`
}

// Scenario is a tariff plan applied to a historical date range
type Scenario struct {
	ID                      int64           `json:"id"`
	Name                    string          `json:"name"`
	StandardRate            decimal.Decimal `json:"standard_rate"`   // pence per kWh
	StandingCharge          decimal.Decimal `json:"standing_charge"` // pence per day
	PeriodStart             time.Time       `json:"period_start"`
	PeriodEnd               time.Time       `json:"period_end"` // inclusive
	BatteryCapacityKWh      decimal.Decimal `json:"battery_capacity_kwh"`
	MaxChargeRateKW         decimal.Decimal `json:"max_charge_rate_kw"`
	MaxDischargeRateKW      decimal.Decimal `json:"max_discharge_rate_kw"`
	EfficiencyPercent       decimal.Decimal `json:"efficiency_percent"`
	StandardRateBatteryMode BatteryMode     `json:"standard_rate_battery_mode"`
	RatePeriods             []RatePeriod    `json:"rate_periods"`

	// Computed by Recalculate
	Days         int             `json:"days"`
	TotalUsage   decimal.Decimal `json:"total_usage"`
	StandingCost decimal.Decimal `json:"standing_cost"`
	TotalCost    decimal.Decimal `json:"total_cost"`
	AnnualUsage  decimal.Decimal `json:"annual_usage"`
	AnnualCost   decimal.Decimal `json:"annual_cost"`
	MonthlyCost  decimal.Decimal `json:"monthly_cost"`
	Standard     RatePeriod      `json:"standard"` // consumption not matched by any rate period
	RateSummary  []RateSummary   `json:"rate_summary"`
}

// Clone returns a deep copy of s
func (s Scenario) Clone() Scenario {
	c := s
	if s.RatePeriods != nil {
		c.RatePeriods = append([]RatePeriod(nil), s.RatePeriods...)
	}
	if s.RateSummary != nil {
		c.RateSummary = append([]RateSummary(nil), s.RateSummary...)
	}
	return c
}

// Copy returns a duplicate ready to be saved as a new scenario
func (s Scenario) Copy() Scenario {
	c := s.Clone()
	c.ID = 0
	c.Name = s.Name + " (copy)"
	return c
}

// HasBattery reports whether the battery model is active
func (s Scenario) HasBattery() bool {
	return s.BatteryCapacityKWh.IsPositive()
}

// Settings holds the defaults copied into newly created scenarios
type Settings struct {
	StandardRate            decimal.Decimal `json:"standard_rate"`
	StandingCharge          decimal.Decimal `json:"standing_charge"`
	RatePeriods             []RatePeriod    `json:"rate_periods"`
	BatteryCapacityKWh      decimal.Decimal `json:"battery_capacity_kwh"`
	MaxChargeRateKW         decimal.Decimal `json:"max_charge_rate_kw"`
	MaxDischargeRateKW      decimal.Decimal `json:"max_discharge_rate_kw"`
	EfficiencyPercent       decimal.Decimal `json:"efficiency_percent"`
	StandardRateBatteryMode BatteryMode     `json:"standard_rate_battery_mode"`
}

// NewScenario creates a scenario covering the year up to now, using the settings as defaults
func (st Settings) NewScenario(now time.Time) Scenario {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	periods := make([]RatePeriod, len(st.RatePeriods))
	for i, p := range st.RatePeriods {
		periods[i] = RatePeriod{
			Start:            p.Start,
			End:              p.End,
			Rate:             p.Rate,
			WeeklyShiftUnits: p.WeeklyShiftUnits,
			BatteryMode:      p.BatteryMode,
		}
	}
	return Scenario{
		StandardRate:            st.StandardRate,
		StandingCharge:          st.StandingCharge,
		PeriodStart:             today.AddDate(-1, 0, 0),
		PeriodEnd:               today,
		BatteryCapacityKWh:      st.BatteryCapacityKWh,
		MaxChargeRateKW:         st.MaxChargeRateKW,
		MaxDischargeRateKW:      st.MaxDischargeRateKW,
		EfficiencyPercent:       st.EfficiencyPercent,
		StandardRateBatteryMode: st.StandardRateBatteryMode,
		RatePeriods:             periods,
	}
}
