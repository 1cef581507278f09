// Package consumption downloads half-hourly meter readings from energy suppliers
package consumption

import (
	"context"
	"time"

	"github.com/awaistahir/smart-tariff/internal/engine"
)

// Source is anything that can supply meter readings for a time range
type Source interface {
	Consumption(ctx context.Context, from, to time.Time) ([]engine.Reading, error)
}

var (
	_ Source = (*OctopusClient)(nil)
	_ Source = (*GlowClient)(nil)
)
