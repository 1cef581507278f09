package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/awaistahir/smart-tariff/internal/config"
	"github.com/awaistahir/smart-tariff/internal/log"
	"github.com/awaistahir/smart-tariff/internal/store"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	dbPath  string
	cfg     *config.Config
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "smart-tariff",
		Short: "SmartTariff - Compare electricity tariffs against your own meter readings",
		Long: `SmartTariff replays half-hourly meter readings against time-of-use tariff
scenarios, optionally with a home battery, and reports what each would have cost.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.smarttariff/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (default is $HOME/.smarttariff/smarttariff.db)")

	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(scenarioCmd())
	rootCmd.AddCommand(recalcCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(fetchCmd())
	rootCmd.AddCommand(checkCmd())

	return rootCmd
}

func initConfig() error {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return err
	}

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	log.SetDefaultLogLevel(level)

	if dbPath == "" {
		dbPath = cfg.DBPath
	}
	return nil
}

func openStore() (*store.Store, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}
	st, err := store.NewStore(dbPath, loc)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return st, nil
}

// commandContext is cancelled on interrupt so long imports and recalculations stop cleanly
func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func initCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the database and save default settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			if _, err := st.GetSettings(ctx); err == nil && !force {
				fmt.Println("Settings already saved; use --force to reset them from config")
				return nil
			}

			if err := st.SaveSettings(ctx, cfg.Settings()); err != nil {
				return fmt.Errorf("saving settings: %w", err)
			}

			fmt.Printf("Initialized database at %s\n", dbPath)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite saved settings")
	return cmd
}

func parseDate(s string) (time.Time, error) {
	loc, err := cfg.Location()
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.ParseInLocation("2006-01-02", s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD): %w", s, err)
	}
	return t, nil
}

// fetchRange resolves the --from and --to flags into a half-open range of whole days
func fetchRange(ctx context.Context, st *store.Store, from, to string) (time.Time, time.Time, error) {
	now := time.Now().In(st.Location())
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	start := today.AddDate(-1, 0, 0)
	if from != "" {
		t, err := parseDate(from)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		start = t
	} else {
		count, _, last, err := st.ReadingStats(ctx)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		if count > 0 {
			start = time.Date(last.Year(), last.Month(), last.Day(), 0, 0, 0, 0, last.Location())
		}
	}

	end := today
	if to != "" {
		t, err := parseDate(to)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		end = t
	}
	end = end.AddDate(0, 0, 1)

	if !start.Before(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("nothing to fetch: --from is after --to")
	}
	return start, end, nil
}
