package engine

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	hoursPerDay    = decimal.NewFromInt(24)
	minutesPerHour = decimal.NewFromInt(60)
)

// Validate rejects scenarios that cannot be recalculated.
// Battery parameters are only checked when a battery is configured.
func Validate(s Scenario) error {
	fail := func(field, reason string) error {
		return &ConfigurationError{Scenario: s.Name, Field: field, Reason: reason}
	}

	if strings.TrimSpace(s.Name) == "" {
		return fail("name", "is required")
	}
	if s.StandardRate.IsNegative() {
		return fail("standard_rate", "must not be negative")
	}
	if s.StandingCharge.IsNegative() {
		return fail("standing_charge", "must not be negative")
	}
	if s.PeriodEnd.Before(s.PeriodStart) {
		return fail("period_end", "must not be before period_start")
	}
	if !s.StandardRateBatteryMode.Valid() {
		return fail("standard_rate_battery_mode", fmt.Sprintf("unknown mode %q", s.StandardRateBatteryMode))
	}
	if s.BatteryCapacityKWh.IsNegative() {
		return fail("battery_capacity_kwh", "must not be negative")
	}

	if s.HasBattery() {
		if !s.MaxChargeRateKW.IsPositive() {
			return fail("max_charge_rate_kw", "must be greater than zero when a battery is configured")
		}
		if !s.MaxDischargeRateKW.IsPositive() {
			return fail("max_discharge_rate_kw", "must be greater than zero when a battery is configured")
		}
		if !s.EfficiencyPercent.IsPositive() || s.EfficiencyPercent.GreaterThan(hundred) {
			return fail("efficiency_percent", "must be greater than 0 and at most 100 when a battery is configured")
		}
	}

	for i, p := range s.RatePeriods {
		field := fmt.Sprintf("rate_periods[%d]", i)
		if err := validTimeOfDay(p.Start); err != "" {
			return fail(field+".start", err)
		}
		if err := validTimeOfDay(p.End); err != "" {
			return fail(field+".end", err)
		}
		if p.Rate.IsNegative() {
			return fail(field+".rate", "must not be negative")
		}
		if p.WeeklyShiftUnits < 0 {
			return fail(field+".weekly_shift_units", "must not be negative")
		}
		if !p.BatteryMode.Valid() {
			return fail(field+".battery_mode", fmt.Sprintf("unknown mode %q", p.BatteryMode))
		}
	}

	return nil
}

// validTimeOfDay checks an HH.MM encoded value, returning a reason when invalid
func validTimeOfDay(v decimal.Decimal) string {
	if v.IsNegative() || v.GreaterThan(hoursPerDay) {
		return "must be between 0.00 and 24.00"
	}
	minutes := v.Sub(v.Floor()).Mul(hundred)
	if !minutes.Equal(minutes.Floor()) || minutes.GreaterThanOrEqual(minutesPerHour) {
		return "must be encoded as HH.MM with whole minutes below 60"
	}
	return ""
}
