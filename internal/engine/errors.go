package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrConfiguration      = errors.New("invalid scenario configuration")
	ErrInvariantViolation = errors.New("battery charge outside capacity")
	// ErrNotFound is returned by repositories for a missing scenario
	ErrNotFound           = errors.New("not found")
)

// ConfigurationError reports a scenario rejected before any computation
type ConfigurationError struct {
	Scenario string
	Field    string
	Reason   string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("scenario %q: %s %s", e.Scenario, e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// InvariantViolation reports a battery charge that left [0, capacity] during a pass.
// It points at a modelling bug and aborts the recompute.
type InvariantViolation struct {
	Scenario string
	Period   time.Time
	Charge   decimal.Decimal
	Capacity decimal.Decimal
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("scenario %q: battery charge %s outside [0, %s] at %s",
		e.Scenario, e.Charge, e.Capacity, e.Period.Format(time.RFC3339))
}

func (e *InvariantViolation) Unwrap() error { return ErrInvariantViolation }
