package engine_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/awaistahir/smart-tariff/internal/engine"
	"github.com/awaistahir/smart-tariff/internal/store/storemock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type progressRecorder struct {
	labels  []string
	current []int
	total   int
}

func (p *progressRecorder) Report(total, current int, label string) {
	p.total = total
	p.current = append(p.current, current)
	p.labels = append(p.labels, label)
}

func scenario(id int64, name string) *engine.Scenario {
	return &engine.Scenario{
		ID:             id,
		Name:           name,
		StandardRate:   decimal.NewFromInt(20),
		StandingCharge: decimal.NewFromInt(50),
		PeriodStart:    time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:      time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
		RatePeriods: []engine.RatePeriod{
			{Start: decimal.Zero, End: decimal.NewFromInt(7), Rate: decimal.NewFromInt(8)},
		},
	}
}

var testReadings = []engine.Reading{
	{Period: time.Date(2024, 3, 1, 3, 0, 0, 0, time.UTC), Value: decimal.NewFromInt(1)},
	{Period: time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC), Value: decimal.NewFromInt(2)},
}

func TestRecalculateAll(t *testing.T) {
	ctx := context.Background()
	repo := &storemock.MockRepository{}
	repo.On("ListScenarios", mock.Anything).Return([]*engine.Scenario{scenario(1, "Agile"), scenario(2, "Go")}, nil)
	repo.On("GetScenario", mock.Anything, int64(1)).Return(scenario(1, "Agile"), nil)
	repo.On("GetScenario", mock.Anything, int64(2)).Return(scenario(2, "Go"), nil)
	repo.On("Readings", mock.Anything,
		time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
	).Return(testReadings, nil)
	repo.On("SaveScenario", mock.Anything, mock.MatchedBy(func(s *engine.Scenario) bool {
		return s.TotalUsage.Equal(decimal.NewFromInt(3)) && s.Days == 1
	})).Return(nil)

	progress := &progressRecorder{}
	require.NoError(t, engine.RecalculateAll(ctx, repo, progress))

	repo.AssertNumberOfCalls(t, "SaveScenario", 2)
	assert.Equal(t, 2, progress.total)
	assert.Equal(t, []int{0, 1, 2}, progress.current)
	assert.Equal(t, []string{"Agile", "Go", ""}, progress.labels)
}

func TestRecalculateAllStopsAtFirstFailure(t *testing.T) {
	ctx := context.Background()
	bad := scenario(2, "Broken battery")
	bad.BatteryCapacityKWh = decimal.NewFromInt(5)

	repo := &storemock.MockRepository{}
	repo.On("ListScenarios", mock.Anything).Return([]*engine.Scenario{scenario(1, "Agile"), bad, scenario(3, "Tracker")}, nil)
	repo.On("GetScenario", mock.Anything, int64(1)).Return(scenario(1, "Agile"), nil)
	repo.On("GetScenario", mock.Anything, int64(2)).Return(bad, nil)
	repo.On("Readings", mock.Anything, mock.Anything, mock.Anything).Return(testReadings, nil)
	repo.On("SaveScenario", mock.Anything, mock.Anything).Return(nil)

	err := engine.RecalculateAll(ctx, repo, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, engine.ErrConfiguration))
	assert.Contains(t, err.Error(), "Broken battery")

	repo.AssertNumberOfCalls(t, "SaveScenario", 1)
}

func TestRecalculateAllUsesCurrentCopy(t *testing.T) {
	ctx := context.Background()
	listed := scenario(1, "Agile")

	// edited after the batch listed it
	current := scenario(1, "Agile")
	current.StandardRate = decimal.NewFromInt(99)

	repo := &storemock.MockRepository{}
	repo.On("ListScenarios", mock.Anything).Return([]*engine.Scenario{listed}, nil)
	repo.On("GetScenario", mock.Anything, int64(1)).Return(current, nil)
	repo.On("Readings", mock.Anything, mock.Anything, mock.Anything).Return(testReadings, nil)
	repo.On("SaveScenario", mock.Anything, mock.MatchedBy(func(s *engine.Scenario) bool {
		return s.StandardRate.Equal(decimal.NewFromInt(99))
	})).Return(nil)

	require.NoError(t, engine.RecalculateAll(ctx, repo, nil))
	repo.AssertNumberOfCalls(t, "SaveScenario", 1)
}

func TestRecalculateAllSkipsDeleted(t *testing.T) {
	ctx := context.Background()
	repo := &storemock.MockRepository{}
	repo.On("ListScenarios", mock.Anything).Return([]*engine.Scenario{scenario(1, "Agile"), scenario(2, "Go")}, nil)
	repo.On("GetScenario", mock.Anything, int64(1)).Return(nil, fmt.Errorf("scenario 1: %w", engine.ErrNotFound))
	repo.On("GetScenario", mock.Anything, int64(2)).Return(scenario(2, "Go"), nil)
	repo.On("Readings", mock.Anything, mock.Anything, mock.Anything).Return(testReadings, nil)
	repo.On("SaveScenario", mock.Anything, mock.Anything).Return(nil)

	progress := &progressRecorder{}
	require.NoError(t, engine.RecalculateAll(ctx, repo, progress))

	repo.AssertNumberOfCalls(t, "SaveScenario", 1)
	repo.AssertCalled(t, "SaveScenario", mock.Anything, mock.MatchedBy(func(s *engine.Scenario) bool {
		return s.ID == 2
	}))
	assert.Equal(t, []int{0, 1, 2}, progress.current)
}

type countingLocker struct {
	mu      sync.Mutex
	held    bool
	locks   int
	doubled bool
}

func (l *countingLocker) Lock() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		l.doubled = true
	}
	l.held = true
	l.locks++
}

func (l *countingLocker) Unlock() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held = false
}

func TestRecalculateAllLockedHoldsLockPerScenario(t *testing.T) {
	ctx := context.Background()
	lock := &countingLocker{}

	repo := &storemock.MockRepository{}
	repo.On("ListScenarios", mock.Anything).Return([]*engine.Scenario{scenario(1, "Agile"), scenario(2, "Go")}, nil)
	repo.On("GetScenario", mock.Anything, int64(1)).Return(scenario(1, "Agile"), nil)
	repo.On("GetScenario", mock.Anything, int64(2)).Return(scenario(2, "Go"), nil)
	repo.On("Readings", mock.Anything, mock.Anything, mock.Anything).Return(testReadings, nil)
	repo.On("SaveScenario", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		lock.mu.Lock()
		defer lock.mu.Unlock()
		assert.True(t, lock.held, "save outside the lock")
	}).Return(nil)

	require.NoError(t, engine.RecalculateAllLocked(ctx, repo, nil, lock))
	assert.Equal(t, 2, lock.locks)
	assert.False(t, lock.held)
	assert.False(t, lock.doubled)
}

func TestRecalculateByIDReadingsError(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("disk on fire")

	repo := &storemock.MockRepository{}
	repo.On("GetScenario", mock.Anything, int64(4)).Return(scenario(4, "Cosy"), nil)
	repo.On("Readings", mock.Anything, mock.Anything, mock.Anything).Return(nil, boom)

	_, err := engine.RecalculateByID(ctx, repo, 4)
	assert.True(t, errors.Is(err, boom))
	repo.AssertNotCalled(t, "SaveScenario", mock.Anything, mock.Anything)
}

func TestRecalculateByIDSaves(t *testing.T) {
	ctx := context.Background()
	repo := &storemock.MockRepository{}
	repo.On("GetScenario", mock.Anything, int64(1)).Return(scenario(1, "Agile"), nil)
	repo.On("Readings", mock.Anything, mock.Anything, mock.Anything).Return(testReadings, nil)
	repo.On("SaveScenario", mock.Anything, mock.Anything).Return(nil)

	s, err := engine.RecalculateByID(ctx, repo, 1)
	require.NoError(t, err)

	// 1 kWh at 8p, 2 kWh at 20p, one day of 50p standing charge
	assert.True(t, s.TotalCost.Equal(decimal.RequireFromString("0.98")), "got %s", s.TotalCost)
	assert.Equal(t, time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), s.PeriodEnd)
	repo.AssertExpectations(t)
}
