package engine

import (
	"github.com/shopspring/decimal"
)

var two = decimal.NewFromInt(2)

// Battery carries the simulated battery state through one ordered pass.
// Each reading covers 30 minutes, so kW rates are halved to give kWh per slot.
type Battery struct {
	CapacityKWh        decimal.Decimal
	MaxChargeRateKW    decimal.Decimal
	MaxDischargeRateKW decimal.Decimal
	EfficiencyPercent  decimal.Decimal
	Charge             decimal.Decimal
}

// NewBattery returns an empty battery with the scenario's parameters
func NewBattery(s Scenario) *Battery {
	return &Battery{
		CapacityKWh:        s.BatteryCapacityKWh,
		MaxChargeRateKW:    s.MaxChargeRateKW,
		MaxDischargeRateKW: s.MaxDischargeRateKW,
		EfficiencyPercent:  s.EfficiencyPercent,
	}
}

// Apply runs the battery for one slot in the given mode and returns the adjusted consumption.
// The amounts charged or used are added to bucket's battery counters.
func (b *Battery) Apply(mode BatteryMode, value decimal.Decimal, bucket *RatePeriod) (decimal.Decimal, error) {
	if !b.CapacityKWh.IsPositive() {
		return value, nil
	}

	switch mode {
	case BatteryCharge:
		free := b.CapacityKWh.Sub(b.Charge)
		amount := decimal.Min(free, b.MaxChargeRateKW.Div(two))
		if amount.IsPositive() {
			b.Charge = b.Charge.Add(amount)
			bucket.BatteryChargedUnits = bucket.BatteryChargedUnits.Add(amount)
			// Charging losses are paid for at the meter
			value = value.Add(amount.Mul(hundred).Div(b.EfficiencyPercent))
		}
	case BatteryUse:
		available := decimal.Min(b.Charge, b.MaxDischargeRateKW.Div(two))
		amount := decimal.Min(available, value)
		if amount.IsPositive() {
			b.Charge = b.Charge.Sub(amount)
			value = value.Sub(amount)
			bucket.BatteryUsedUnits = bucket.BatteryUsedUnits.Add(amount)
		}
	default:
		return value, nil
	}

	if b.Charge.IsNegative() || b.Charge.GreaterThan(b.CapacityKWh) {
		return value, &InvariantViolation{Charge: b.Charge, Capacity: b.CapacityKWh}
	}
	return value, nil
}
