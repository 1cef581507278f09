package storemock

import (
	"context"
	"time"

	"github.com/awaistahir/smart-tariff/internal/engine"
	"github.com/stretchr/testify/mock"
)

type MockRepository struct {
	mock.Mock
}

var _ engine.Repository = (*MockRepository)(nil)

func (m *MockRepository) GetScenario(ctx context.Context, id int64) (*engine.Scenario, error) {
	args := m.Called(ctx, id)
	s, _ := args.Get(0).(*engine.Scenario)
	return s, args.Error(1)
}

func (m *MockRepository) ListScenarios(ctx context.Context) ([]*engine.Scenario, error) {
	args := m.Called(ctx)
	list, _ := args.Get(0).([]*engine.Scenario)
	return list, args.Error(1)
}

func (m *MockRepository) SaveScenario(ctx context.Context, s *engine.Scenario) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func (m *MockRepository) Readings(ctx context.Context, from, to time.Time) ([]engine.Reading, error) {
	args := m.Called(ctx, from, to)
	readings, _ := args.Get(0).([]engine.Reading)
	return readings, args.Error(1)
}
