package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/awaistahir/smart-tariff/internal/log"
	"github.com/shopspring/decimal"
)

// Repository is the storage the recalculation needs: scenarios plus the readings they cover
type Repository interface {
	GetScenario(ctx context.Context, id int64) (*Scenario, error)
	ListScenarios(ctx context.Context) ([]*Scenario, error)
	SaveScenario(ctx context.Context, s *Scenario) error
	// Readings returns readings with from <= period < to, ascending by period
	Readings(ctx context.Context, from, to time.Time) ([]Reading, error)
}

// Progress receives updates while several scenarios are recalculated
type Progress interface {
	Report(total, current int, label string)
}

// Recalculate recomputes every output of s from the readings. The readings need not be
// sorted; they are processed in ascending period order because the battery state depends
// on everything before it. s is not modified. An invalid s returns a *ConfigurationError.
func Recalculate(ctx context.Context, s Scenario, readings []Reading) (Scenario, error) {
	if err := Validate(s); err != nil {
		return s, err
	}

	out := s.Clone()
	resetOutputs(&out)

	if len(readings) == 0 {
		out.Days = daysBetween(out.PeriodStart, out.PeriodEnd)
		log.Ctx(ctx).DebugContext(ctx, "no readings in scenario window",
			slog.String("scenario", out.Name),
			slog.Int("days", out.Days),
		)
		return out, nil
	}

	ordered := append([]Reading(nil), readings...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Period.Before(ordered[j].Period)
	})

	battery := NewBattery(out)
	for _, r := range ordered {
		bucket := &out.Standard
		mode := out.StandardRateBatteryMode
		if idx := MatchRatePeriod(TimeOfDay(r.Period), out.RatePeriods); idx >= 0 {
			bucket = &out.RatePeriods[idx]
			mode = bucket.BatteryMode
		}

		value, err := battery.Apply(mode, r.Value, bucket)
		if err != nil {
			var iv *InvariantViolation
			if errors.As(err, &iv) {
				iv.Scenario = out.Name
				iv.Period = r.Period
			}
			return s, err
		}
		bucket.Units = bucket.Units.Add(value)
	}

	// The covered span replaces the requested window
	first := ordered[0].Period
	last := ordered[len(ordered)-1].Period
	out.PeriodStart = time.Date(first.Year(), first.Month(), first.Day(), 0, 0, 0, 0, first.Location())
	out.PeriodEnd = time.Date(last.Year(), last.Month(), last.Day(), 0, 0, 0, 0, last.Location())
	out.Days = daysBetween(out.PeriodStart, out.PeriodEnd)

	Aggregate(&out)

	log.Ctx(ctx).DebugContext(ctx, "recalculated scenario",
		slog.String("scenario", out.Name),
		slog.Int("readings", len(ordered)),
		slog.Int("days", out.Days),
		slog.String("total_usage", out.TotalUsage.String()),
		slog.String("total_cost", out.TotalCost.String()),
	)
	return out, nil
}

// RecalculateScenario validates s, loads its readings, recalculates and saves it.
// Nothing is written when validation or the pass fails.
func RecalculateScenario(ctx context.Context, repo Repository, s *Scenario) error {
	if err := Validate(*s); err != nil {
		return err
	}

	from, to := Window(*s)
	readings, err := repo.Readings(ctx, from, to)
	if err != nil {
		return fmt.Errorf("loading readings for %q: %w", s.Name, err)
	}

	updated, err := Recalculate(ctx, *s, readings)
	if err != nil {
		return err
	}

	if err := repo.SaveScenario(ctx, &updated); err != nil {
		return fmt.Errorf("saving scenario %q: %w", s.Name, err)
	}
	*s = updated
	return nil
}

// RecalculateByID recalculates and saves the stored scenario with the given id
func RecalculateByID(ctx context.Context, repo Repository, id int64) (*Scenario, error) {
	s, err := repo.GetScenario(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading scenario %d: %w", id, err)
	}
	if err := RecalculateScenario(ctx, repo, s); err != nil {
		return nil, err
	}
	return s, nil
}

// RecalculateAll recalculates every stored scenario in turn. The first failure stops the batch;
// scenarios already saved keep their new figures.
func RecalculateAll(ctx context.Context, repo Repository, progress Progress) error {
	return RecalculateAllLocked(ctx, repo, progress, nil)
}

// RecalculateAllLocked is RecalculateAll with lock held around each scenario's
// load-recompute-save, so single-scenario recomputes sharing the lock never interleave
// with the batch. Each scenario is re-read just before it is recomputed; one deleted
// since the batch started is skipped.
func RecalculateAllLocked(ctx context.Context, repo Repository, progress Progress, lock sync.Locker) error {
	scenarios, err := repo.ListScenarios(ctx)
	if err != nil {
		return fmt.Errorf("listing scenarios: %w", err)
	}
	if lock == nil {
		lock = noLock{}
	}

	for i, listed := range scenarios {
		if err := ctx.Err(); err != nil {
			return err
		}
		if progress != nil {
			progress.Report(len(scenarios), i, listed.Name)
		}

		lock.Lock()
		s, err := repo.GetScenario(ctx, listed.ID)
		if err == nil {
			log.Ctx(ctx).InfoContext(ctx, "recalculating scenario",
				slog.String("scenario", s.Name),
				slog.Int("index", i+1),
				slog.Int("total", len(scenarios)),
			)
			err = RecalculateScenario(ctx, repo, s)
		}
		lock.Unlock()

		switch {
		case errors.Is(err, ErrNotFound):
			log.Ctx(ctx).InfoContext(ctx, "scenario deleted during batch, skipping",
				slog.String("scenario", listed.Name),
			)
		case err != nil:
			return fmt.Errorf("recalculating %q (%d of %d): %w", listed.Name, i+1, len(scenarios), err)
		}
	}

	if progress != nil {
		progress.Report(len(scenarios), len(scenarios), "")
	}
	return nil
}

type noLock struct{}

func (noLock) Lock()   {}
func (noLock) Unlock() {}

// Window returns the half-open reading range [start of PeriodStart, day after PeriodEnd)
func Window(s Scenario) (time.Time, time.Time) {
	from := time.Date(s.PeriodStart.Year(), s.PeriodStart.Month(), s.PeriodStart.Day(), 0, 0, 0, 0, s.PeriodStart.Location())
	to := time.Date(s.PeriodEnd.Year(), s.PeriodEnd.Month(), s.PeriodEnd.Day(), 0, 0, 0, 0, s.PeriodEnd.Location()).AddDate(0, 0, 1)
	return from, to
}

// daysBetween counts calendar days from a to b, ignoring clock changes
func daysBetween(a, b time.Time) int {
	da := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}

func resetOutputs(s *Scenario) {
	for i := range s.RatePeriods {
		s.RatePeriods[i].reset()
	}
	s.Standard = RatePeriod{Rate: s.StandardRate, BatteryMode: s.StandardRateBatteryMode}
	s.Days = 0
	s.TotalUsage = decimal.Zero
	s.StandingCost = decimal.Zero
	s.TotalCost = decimal.Zero
	s.AnnualUsage = decimal.Zero
	s.AnnualCost = decimal.Zero
	s.MonthlyCost = decimal.Zero
	s.RateSummary = []RateSummary{}
}
