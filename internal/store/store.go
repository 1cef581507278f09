package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/awaistahir/smart-tariff/internal/engine"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

var (
	ErrNotFound      = engine.ErrNotFound
	ErrDuplicateName = errors.New("a scenario with that name already exists")
)

const dateLayout = "2006-01-02"

// Store handles persistent storage using SQLite
type Store struct {
	db  *sql.DB
	loc *time.Location
}

var _ engine.Repository = (*Store)(nil)

// NewStore opens the database at dbPath and creates the schema.
// Reading periods and scenario dates are returned in loc (time.Local when nil).
func NewStore(dbPath string, loc *time.Location) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// A single writer keeps imports and recalculations from tripping over SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if loc == nil {
		loc = time.Local
	}
	store := &Store{db: db, loc: loc}
	if err := store.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Location returns the zone readings are reported in
func (s *Store) Location() *time.Location {
	return s.loc
}

// initialize creates the database schema
func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS scenarios (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		standard_rate TEXT NOT NULL DEFAULT '0',
		standing_charge TEXT NOT NULL DEFAULT '0',
		period_start TEXT NOT NULL,
		period_end TEXT NOT NULL,
		battery_capacity_kwh TEXT NOT NULL DEFAULT '0',
		max_charge_rate_kw TEXT NOT NULL DEFAULT '0',
		max_discharge_rate_kw TEXT NOT NULL DEFAULT '0',
		efficiency_percent TEXT NOT NULL DEFAULT '100',
		standard_rate_battery_mode TEXT NOT NULL DEFAULT 'none',
		rate_periods TEXT NOT NULL DEFAULT '[]',
		days INTEGER NOT NULL DEFAULT 0,
		total_usage TEXT NOT NULL DEFAULT '0',
		standing_cost TEXT NOT NULL DEFAULT '0',
		total_cost TEXT NOT NULL DEFAULT '0',
		annual_usage TEXT NOT NULL DEFAULT '0',
		annual_cost TEXT NOT NULL DEFAULT '0',
		monthly_cost TEXT NOT NULL DEFAULT '0',
		standard TEXT NOT NULL DEFAULT '{}',
		rate_summary TEXT NOT NULL DEFAULT '[]',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS readings (
		period INTEGER PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS settings (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		data TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// EncodeRatePeriods serializes a rate period list for the rate_periods column
func EncodeRatePeriods(periods []engine.RatePeriod) (string, error) {
	if periods == nil {
		periods = []engine.RatePeriod{}
	}
	b, err := json.Marshal(periods)
	if err != nil {
		return "", fmt.Errorf("encoding rate periods: %w", err)
	}
	return string(b), nil
}

// DecodeRatePeriods parses the rate_periods column
func DecodeRatePeriods(data string) ([]engine.RatePeriod, error) {
	periods := []engine.RatePeriod{}
	if strings.TrimSpace(data) == "" {
		return periods, nil
	}
	if err := json.Unmarshal([]byte(data), &periods); err != nil {
		return nil, fmt.Errorf("decoding rate periods: %w", err)
	}
	return periods, nil
}

const scenarioColumns = `id, name, standard_rate, standing_charge, period_start, period_end,
	battery_capacity_kwh, max_charge_rate_kw, max_discharge_rate_kw, efficiency_percent,
	standard_rate_battery_mode, rate_periods, days, total_usage, standing_cost, total_cost,
	annual_usage, annual_cost, monthly_cost, standard, rate_summary`

// SaveScenario inserts a scenario with no ID, assigning one, or updates an existing scenario
func (s *Store) SaveScenario(ctx context.Context, sc *engine.Scenario) error {
	periodsJSON, err := EncodeRatePeriods(sc.RatePeriods)
	if err != nil {
		return err
	}
	standardJSON, err := json.Marshal(sc.Standard)
	if err != nil {
		return fmt.Errorf("encoding standard bucket: %w", err)
	}
	summary := sc.RateSummary
	if summary == nil {
		summary = []engine.RateSummary{}
	}
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encoding rate summary: %w", err)
	}

	mode := string(sc.StandardRateBatteryMode)
	if mode == "" {
		mode = string(engine.BatteryNone)
	}

	args := []interface{}{
		sc.Name, sc.StandardRate, sc.StandingCharge,
		sc.PeriodStart.Format(dateLayout), sc.PeriodEnd.Format(dateLayout),
		sc.BatteryCapacityKWh, sc.MaxChargeRateKW, sc.MaxDischargeRateKW, sc.EfficiencyPercent,
		mode, periodsJSON, sc.Days, sc.TotalUsage, sc.StandingCost, sc.TotalCost,
		sc.AnnualUsage, sc.AnnualCost, sc.MonthlyCost, string(standardJSON), string(summaryJSON),
		time.Now(),
	}

	if sc.ID == 0 {
		query := `INSERT INTO scenarios
			(name, standard_rate, standing_charge, period_start, period_end,
			 battery_capacity_kwh, max_charge_rate_kw, max_discharge_rate_kw, efficiency_percent,
			 standard_rate_battery_mode, rate_periods, days, total_usage, standing_cost, total_cost,
			 annual_usage, annual_cost, monthly_cost, standard, rate_summary, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return mapConstraintError(err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("reading scenario id: %w", err)
		}
		sc.ID = id
		return nil
	}

	query := `UPDATE scenarios SET
		name = ?, standard_rate = ?, standing_charge = ?, period_start = ?, period_end = ?,
		battery_capacity_kwh = ?, max_charge_rate_kw = ?, max_discharge_rate_kw = ?, efficiency_percent = ?,
		standard_rate_battery_mode = ?, rate_periods = ?, days = ?, total_usage = ?, standing_cost = ?, total_cost = ?,
		annual_usage = ?, annual_cost = ?, monthly_cost = ?, standard = ?, rate_summary = ?, updated_at = ?
		WHERE id = ?`

	res, err := s.db.ExecContext(ctx, query, append(args, sc.ID)...)
	if err != nil {
		return mapConstraintError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("scenario %d: %w", sc.ID, ErrNotFound)
	}
	return nil
}

// GetScenario retrieves a scenario by ID
func (s *Store) GetScenario(ctx context.Context, id int64) (*engine.Scenario, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+scenarioColumns+` FROM scenarios WHERE id = ?`, id)
	sc, err := s.scanScenario(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("scenario %d: %w", id, ErrNotFound)
	}
	return sc, err
}

// GetScenarioByName retrieves a scenario by its unique name
func (s *Store) GetScenarioByName(ctx context.Context, name string) (*engine.Scenario, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+scenarioColumns+` FROM scenarios WHERE name = ?`, name)
	sc, err := s.scanScenario(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("scenario %q: %w", name, ErrNotFound)
	}
	return sc, err
}

// ListScenarios retrieves all scenarios ordered by name
func (s *Store) ListScenarios(ctx context.Context) ([]*engine.Scenario, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+scenarioColumns+` FROM scenarios ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	scenarios := []*engine.Scenario{}
	for rows.Next() {
		sc, err := s.scanScenario(rows)
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, sc)
	}
	return scenarios, rows.Err()
}

// DeleteScenario deletes a scenario by ID
func (s *Store) DeleteScenario(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM scenarios WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("scenario %d: %w", id, ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *Store) scanScenario(row rowScanner) (*engine.Scenario, error) {
	var sc engine.Scenario
	var periodStart, periodEnd, mode, periodsJSON, standardJSON, summaryJSON string

	err := row.Scan(&sc.ID, &sc.Name, &sc.StandardRate, &sc.StandingCharge, &periodStart, &periodEnd,
		&sc.BatteryCapacityKWh, &sc.MaxChargeRateKW, &sc.MaxDischargeRateKW, &sc.EfficiencyPercent,
		&mode, &periodsJSON, &sc.Days, &sc.TotalUsage, &sc.StandingCost, &sc.TotalCost,
		&sc.AnnualUsage, &sc.AnnualCost, &sc.MonthlyCost, &standardJSON, &summaryJSON)
	if err != nil {
		return nil, err
	}

	if sc.PeriodStart, err = time.ParseInLocation(dateLayout, periodStart, s.loc); err != nil {
		return nil, fmt.Errorf("scenario %d period_start: %w", sc.ID, err)
	}
	if sc.PeriodEnd, err = time.ParseInLocation(dateLayout, periodEnd, s.loc); err != nil {
		return nil, fmt.Errorf("scenario %d period_end: %w", sc.ID, err)
	}
	sc.StandardRateBatteryMode = engine.BatteryMode(mode)

	if sc.RatePeriods, err = DecodeRatePeriods(periodsJSON); err != nil {
		return nil, fmt.Errorf("scenario %d: %w", sc.ID, err)
	}
	if err := json.Unmarshal([]byte(standardJSON), &sc.Standard); err != nil {
		return nil, fmt.Errorf("scenario %d standard bucket: %w", sc.ID, err)
	}
	sc.RateSummary = []engine.RateSummary{}
	if err := json.Unmarshal([]byte(summaryJSON), &sc.RateSummary); err != nil {
		return nil, fmt.Errorf("scenario %d rate summary: %w", sc.ID, err)
	}

	return &sc, nil
}

// UpsertReadings stores readings in a single transaction, replacing any with the same period.
// Either every reading is written or none are.
func (s *Store) UpsertReadings(ctx context.Context, readings []engine.Reading) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO readings (period, value) VALUES (?, ?)
		ON CONFLICT(period) DO UPDATE SET value = excluded.value`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range readings {
		if _, err := stmt.ExecContext(ctx, r.Period.Unix(), r.Value.String()); err != nil {
			return fmt.Errorf("storing reading %s: %w", r.Period.Format(time.RFC3339), err)
		}
	}

	return tx.Commit()
}

// Readings returns readings with from <= period < to in ascending order
func (s *Store) Readings(ctx context.Context, from, to time.Time) ([]engine.Reading, error) {
	return s.queryReadings(ctx, `SELECT period, value FROM readings
		WHERE period >= ? AND period < ? ORDER BY period`, from.Unix(), to.Unix())
}

// AllReadings returns every stored reading in ascending order
func (s *Store) AllReadings(ctx context.Context) ([]engine.Reading, error) {
	return s.queryReadings(ctx, `SELECT period, value FROM readings ORDER BY period`)
}

func (s *Store) queryReadings(ctx context.Context, query string, args ...interface{}) ([]engine.Reading, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	readings := []engine.Reading{}
	for rows.Next() {
		var period int64
		var value decimal.Decimal
		if err := rows.Scan(&period, &value); err != nil {
			return nil, err
		}
		readings = append(readings, engine.Reading{
			Period: time.Unix(period, 0).In(s.loc),
			Value:  value,
		})
	}
	return readings, rows.Err()
}

// ReadingStats reports how many readings are stored and the period range they cover
func (s *Store) ReadingStats(ctx context.Context) (count int, first, last time.Time, err error) {
	var minP, maxP sql.NullInt64
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*), MIN(period), MAX(period) FROM readings`).
		Scan(&count, &minP, &maxP)
	if err != nil {
		return 0, time.Time{}, time.Time{}, err
	}
	if minP.Valid {
		first = time.Unix(minP.Int64, 0).In(s.loc)
	}
	if maxP.Valid {
		last = time.Unix(maxP.Int64, 0).In(s.loc)
	}
	return count, first, last, nil
}

// GetSettings retrieves the saved settings, or ErrNotFound if none have been saved
func (s *Store) GetSettings(ctx context.Context) (engine.Settings, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM settings WHERE id = 1`).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.Settings{}, fmt.Errorf("settings: %w", ErrNotFound)
	}
	if err != nil {
		return engine.Settings{}, err
	}

	var st engine.Settings
	if err := json.Unmarshal([]byte(data), &st); err != nil {
		return engine.Settings{}, fmt.Errorf("decoding settings: %w", err)
	}
	return st, nil
}

// SaveSettings saves or replaces the settings
func (s *Store) SaveSettings(ctx context.Context, st engine.Settings) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}

	query := `INSERT OR REPLACE INTO settings (id, data, updated_at) VALUES (1, ?, ?)`
	_, err = s.db.ExecContext(ctx, query, string(data), time.Now())
	return err
}

func mapConstraintError(err error) error {
	if strings.Contains(err.Error(), "UNIQUE constraint failed: scenarios.name") {
		return ErrDuplicateName
	}
	return err
}
