package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/awaistahir/smart-tariff/internal/engine"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const dateLayout = "2006-01-02"

// PeriodConfig is a rate period as written in YAML. Times use the HH.MM encoding, e.g. 23.30.
type PeriodConfig struct {
	Start            float64 `yaml:"start" mapstructure:"start"`
	End              float64 `yaml:"end" mapstructure:"end"`
	Rate             float64 `yaml:"rate" mapstructure:"rate"`
	WeeklyShiftUnits int     `yaml:"weekly_shift_units" mapstructure:"weekly_shift_units"`
	BatteryMode      string  `yaml:"battery_mode" mapstructure:"battery_mode"`
}

func (p PeriodConfig) ratePeriod() engine.RatePeriod {
	return engine.RatePeriod{
		Start:            decimal.NewFromFloat(p.Start),
		End:              decimal.NewFromFloat(p.End),
		Rate:             decimal.NewFromFloat(p.Rate),
		WeeklyShiftUnits: p.WeeklyShiftUnits,
		BatteryMode:      engine.BatteryMode(p.BatteryMode),
	}
}

type BatteryConfig struct {
	CapacityKWh        float64 `yaml:"capacity_kwh"`
	MaxChargeRateKW    float64 `yaml:"max_charge_rate_kw"`
	MaxDischargeRateKW float64 `yaml:"max_discharge_rate_kw"`
	EfficiencyPercent  float64 `yaml:"efficiency_percent"`
}

// ScenarioConfig is one scenario definition in a scenario file
type ScenarioConfig struct {
	Name                    string         `yaml:"name"`
	StandardRate            float64        `yaml:"standard_rate"`
	StandingCharge          float64        `yaml:"standing_charge"`
	PeriodStart             string         `yaml:"period_start"`
	PeriodEnd               string         `yaml:"period_end"`
	StandardRateBatteryMode string         `yaml:"standard_rate_battery_mode"`
	Battery                 *BatteryConfig `yaml:"battery"`
	RatePeriods             []PeriodConfig `yaml:"rate_periods"`
}

type scenarioFile struct {
	Scenarios []ScenarioConfig `yaml:"scenarios"`
}

// LoadScenarioFile reads the scenarios listed in a YAML file
func LoadScenarioFile(path string, loc *time.Location) ([]engine.Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario file: %w", err)
	}
	return ParseScenarios(data, loc)
}

// ParseScenarios decodes a scenario file. Unknown keys are rejected.
func ParseScenarios(data []byte, loc *time.Location) ([]engine.Scenario, error) {
	if loc == nil {
		loc = time.Local
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var file scenarioFile
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing scenario file: %w", err)
	}

	scenarios := make([]engine.Scenario, 0, len(file.Scenarios))
	for i, sc := range file.Scenarios {
		s, err := sc.Scenario(loc)
		if err != nil {
			return nil, fmt.Errorf("scenario %d: %w", i+1, err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// Scenario converts the definition, reading dates as midnight in loc
func (sc ScenarioConfig) Scenario(loc *time.Location) (engine.Scenario, error) {
	start, err := time.ParseInLocation(dateLayout, sc.PeriodStart, loc)
	if err != nil {
		return engine.Scenario{}, fmt.Errorf("period_start: %w", err)
	}
	end, err := time.ParseInLocation(dateLayout, sc.PeriodEnd, loc)
	if err != nil {
		return engine.Scenario{}, fmt.Errorf("period_end: %w", err)
	}

	s := engine.Scenario{
		Name:                    sc.Name,
		StandardRate:            decimal.NewFromFloat(sc.StandardRate),
		StandingCharge:          decimal.NewFromFloat(sc.StandingCharge),
		PeriodStart:             start,
		PeriodEnd:               end,
		StandardRateBatteryMode: engine.BatteryMode(sc.StandardRateBatteryMode),
		RatePeriods:             make([]engine.RatePeriod, 0, len(sc.RatePeriods)),
	}
	if b := sc.Battery; b != nil {
		s.BatteryCapacityKWh = decimal.NewFromFloat(b.CapacityKWh)
		s.MaxChargeRateKW = decimal.NewFromFloat(b.MaxChargeRateKW)
		s.MaxDischargeRateKW = decimal.NewFromFloat(b.MaxDischargeRateKW)
		s.EfficiencyPercent = decimal.NewFromFloat(b.EfficiencyPercent)
	}
	for _, p := range sc.RatePeriods {
		s.RatePeriods = append(s.RatePeriods, p.ratePeriod())
	}
	return s, nil
}
