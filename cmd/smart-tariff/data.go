package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/awaistahir/smart-tariff/internal/consumption"
	"github.com/awaistahir/smart-tariff/internal/engine"
	"github.com/awaistahir/smart-tariff/internal/ingest"
	"github.com/awaistahir/smart-tariff/internal/store"
	"github.com/spf13/cobra"
)

// progressPrinter writes bulk recalculation progress to stderr
type progressPrinter struct{}

func (progressPrinter) Report(total, current int, label string) {
	if label == "" {
		fmt.Fprintf(os.Stderr, "Recalculated %d scenarios\n", total)
		return
	}
	fmt.Fprintf(os.Stderr, "[%d/%d] %s\n", current+1, total, label)
}

func recalcCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "recalc [id|name]",
		Short: "Recalculate one scenario, or all of them with --all",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) == 1) {
				return fmt.Errorf("give either a scenario or --all")
			}

			ctx, cancel := commandContext()
			defer cancel()

			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			if all {
				return engine.RecalculateAll(ctx, st, progressPrinter{})
			}

			sc, err := lookupScenario(ctx, st, args[0])
			if err != nil {
				return err
			}
			if err := engine.RecalculateScenario(ctx, st, sc); err != nil {
				return err
			}
			return printSummary(*sc)
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "recalculate every scenario")
	return cmd
}

func importCmd() *cobra.Command {
	var skipRecalc, slotStart bool

	cmd := &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Import half-hourly readings from a CSV file",
		Long: `Import a CSV file with a header line followed by "period,value" lines.
Each period is the END of its half-hour slot, as with fetched readings:
"2024-03-01 00:30" covers 00:00 to 00:30. Use --slot-start for exports
stamped with the start of the slot instead.

Existing readings for the same period are replaced. Every scenario is
recalculated afterwards unless --no-recalc is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext()
			defer cancel()

			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			readings, err := ingest.ParseCSV(f, st.Location())
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			if slotStart {
				readings = ingest.ShiftToSlotEnd(readings)
			}
			return saveReadings(ctx, st, readings, skipRecalc)
		},
	}

	cmd.Flags().BoolVar(&skipRecalc, "no-recalc", false, "do not recalculate scenarios after importing")
	cmd.Flags().BoolVar(&slotStart, "slot-start", false, "periods in the file mark the start of each slot")
	return cmd
}

func saveReadings(ctx context.Context, st *store.Store, readings []engine.Reading, skipRecalc bool) error {
	if err := st.UpsertReadings(ctx, readings); err != nil {
		return fmt.Errorf("saving readings: %w", err)
	}
	fmt.Printf("Saved %d readings\n", len(readings))

	if skipRecalc {
		return nil
	}
	return engine.RecalculateAll(ctx, st, progressPrinter{})
}

func fetchCmd() *cobra.Command {
	var (
		from, to   string
		skipRecalc bool
	)

	cmd := &cobra.Command{
		Use:   "fetch <octopus|glow>",
		Short: "Download half-hourly readings from a supplier API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var source consumption.Source
			switch args[0] {
			case "octopus":
				source = consumption.NewOctopusClient(cfg.Octopus.APIKey, cfg.Octopus.MPAN, cfg.Octopus.Serial)
			case "glow":
				g := cfg.Glow
				source = consumption.NewGlowClient(g.ApplicationID, g.Username, g.Password, g.ResourceID)
			default:
				return fmt.Errorf("unknown source %q (use octopus or glow)", args[0])
			}

			ctx, cancel := commandContext()
			defer cancel()

			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			start, end, err := fetchRange(ctx, st, from, to)
			if err != nil {
				return err
			}

			fmt.Fprintf(os.Stderr, "Fetching %s readings from %s to %s\n", args[0],
				start.Format(time.DateOnly), end.Format(time.DateOnly))
			readings, err := source.Consumption(ctx, start, end)
			if err != nil {
				return fmt.Errorf("fetching readings: %w", err)
			}
			return saveReadings(ctx, st, readings, skipRecalc)
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "first day to fetch (default: day of the last stored reading, or a year ago)")
	cmd.Flags().StringVar(&to, "to", "", "last day to fetch (default: today)")
	cmd.Flags().BoolVar(&skipRecalc, "no-recalc", false, "do not recalculate scenarios after fetching")
	return cmd
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check the stored readings for missing data",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			readings, err := st.AllReadings(cmd.Context())
			if err != nil {
				return err
			}
			if len(readings) == 0 {
				fmt.Println("No readings. Import some with 'smart-tariff import' or 'smart-tariff fetch'.")
				return nil
			}

			ranges := ingest.Coverage(readings)
			fmt.Printf("%d readings in %d contiguous ranges\n", len(readings), len(ranges))
			for _, r := range ranges {
				fmt.Printf("  %s  to  %s\n", r.Start.Format("2006-01-02 15:04"), r.End.Format("2006-01-02 15:04"))
			}

			gaps := ingest.Gaps(ranges)
			if len(gaps) > 0 {
				fmt.Printf("%d gaps:\n", len(gaps))
				for _, g := range gaps {
					fmt.Printf("  %s  to  %s\n", g.Start.Format("2006-01-02 15:04"), g.End.Format("2006-01-02 15:04"))
				}
			}
			return nil
		},
	}
}
