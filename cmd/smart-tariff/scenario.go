package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/awaistahir/smart-tariff/internal/config"
	"github.com/awaistahir/smart-tariff/internal/engine"
	"github.com/awaistahir/smart-tariff/internal/store"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func scenarioCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scenario",
		Short: "Manage tariff scenarios",
	}

	cmd.AddCommand(scenarioAddCmd())
	cmd.AddCommand(scenarioListCmd())
	cmd.AddCommand(scenarioShowCmd())
	cmd.AddCommand(scenarioCopyCmd())
	cmd.AddCommand(scenarioDeleteCmd())
	cmd.AddCommand(scenarioApplyCmd())

	return cmd
}

// lookupScenario accepts either a numeric id or a scenario name
func lookupScenario(ctx context.Context, st *store.Store, ref string) (*engine.Scenario, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		sc, err := st.GetScenario(ctx, id)
		if err == nil || !errors.Is(err, store.ErrNotFound) {
			return sc, err
		}
	}
	sc, err := st.GetScenarioByName(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("scenario %q: %w", ref, err)
	}
	return sc, nil
}

func scenarioAddCmd() *cobra.Command {
	var (
		standardRate   string
		standingCharge string
		from, to       string
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a scenario from the saved settings and recalculate it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext()
			defer cancel()

			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			settings, err := st.GetSettings(ctx)
			if errors.Is(err, store.ErrNotFound) {
				settings = cfg.Settings()
			} else if err != nil {
				return err
			}

			sc := settings.NewScenario(time.Now().In(st.Location()))
			sc.Name = args[0]
			if standardRate != "" {
				if sc.StandardRate, err = decimal.NewFromString(standardRate); err != nil {
					return fmt.Errorf("invalid --standard-rate: %w", err)
				}
			}
			if standingCharge != "" {
				if sc.StandingCharge, err = decimal.NewFromString(standingCharge); err != nil {
					return fmt.Errorf("invalid --standing-charge: %w", err)
				}
			}
			if from != "" {
				if sc.PeriodStart, err = parseDate(from); err != nil {
					return err
				}
			}
			if to != "" {
				if sc.PeriodEnd, err = parseDate(to); err != nil {
					return err
				}
			}

			if err := engine.RecalculateScenario(ctx, st, &sc); err != nil {
				return err
			}
			fmt.Printf("Added scenario %d: %s\n", sc.ID, sc.Name)
			return printSummary(sc)
		},
	}

	cmd.Flags().StringVar(&standardRate, "standard-rate", "", "standard rate in pence per kWh")
	cmd.Flags().StringVar(&standingCharge, "standing-charge", "", "standing charge in pence per day")
	cmd.Flags().StringVar(&from, "from", "", "first day of the period (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "last day of the period (YYYY-MM-DD)")

	return cmd
}

func scenarioListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List scenarios with their costs",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			scenarios, err := st.ListScenarios(context.Background())
			if err != nil {
				return err
			}
			if len(scenarios) == 0 {
				fmt.Println("No scenarios. Add one with 'smart-tariff scenario add'.")
				return nil
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tFROM\tTO\tDAYS\tUSAGE kWh\tTOTAL £\tANNUAL £\tMONTHLY £")
			for _, sc := range scenarios {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
					sc.ID, sc.Name,
					sc.PeriodStart.Format("2006-01-02"), sc.PeriodEnd.Format("2006-01-02"),
					sc.Days,
					sc.TotalUsage.StringFixed(1),
					sc.TotalCost.StringFixed(2),
					sc.AnnualCost.StringFixed(2),
					sc.MonthlyCost.StringFixed(2),
				)
			}
			return tw.Flush()
		},
	}
}

func scenarioShowCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <id|name>",
		Short: "Show a scenario's breakdown by rate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			sc, err := lookupScenario(context.Background(), st, args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(sc)
			}
			return printSummary(*sc)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full scenario as JSON")
	return cmd
}

func printSummary(sc engine.Scenario) error {
	fmt.Printf("%s: %s to %s (%d days)\n", sc.Name,
		sc.PeriodStart.Format("2006-01-02"), sc.PeriodEnd.Format("2006-01-02"), sc.Days)

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RATE p/kWh\tUNITS kWh\tCOST £\tSHARE %\tCHARGED kWh\tDISCHARGED kWh")
	for _, r := range sc.RateSummary {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Rate.String(),
			r.Units.StringFixed(2),
			r.Cost.StringFixed(2),
			r.Percentage.Mul(decimal.NewFromInt(100)).StringFixed(1),
			r.BatteryChargedUnits.StringFixed(2),
			r.BatteryUsedUnits.StringFixed(2),
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Printf("Standing charge: £%s\n", sc.StandingCost.StringFixed(2))
	fmt.Printf("Total: £%s  Annual: £%s (%s kWh)  Monthly: £%s\n",
		sc.TotalCost.StringFixed(2), sc.AnnualCost.StringFixed(2),
		sc.AnnualUsage.StringFixed(0), sc.MonthlyCost.StringFixed(2))
	return nil
}

func scenarioCopyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "copy <id|name>",
		Short: "Duplicate a scenario",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			sc, err := lookupScenario(ctx, st, args[0])
			if err != nil {
				return err
			}
			dup := sc.Copy()
			if err := st.SaveScenario(ctx, &dup); err != nil {
				return err
			}
			fmt.Printf("Copied to scenario %d: %s\n", dup.ID, dup.Name)
			return nil
		},
	}
}

func scenarioDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id|name>",
		Short: "Delete a scenario",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			sc, err := lookupScenario(ctx, st, args[0])
			if err != nil {
				return err
			}
			if err := st.DeleteScenario(ctx, sc.ID); err != nil {
				return err
			}
			fmt.Printf("Deleted scenario %d: %s\n", sc.ID, sc.Name)
			return nil
		},
	}
}

func scenarioApplyCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Create or replace scenarios from a YAML file and recalculate them",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext()
			defer cancel()

			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			scenarios, err := config.LoadScenarioFile(file, st.Location())
			if err != nil {
				return err
			}

			for i := range scenarios {
				sc := &scenarios[i]
				existing, err := st.GetScenarioByName(ctx, sc.Name)
				switch {
				case err == nil:
					sc.ID = existing.ID
				case !errors.Is(err, store.ErrNotFound):
					return err
				}

				if err := engine.RecalculateScenario(ctx, st, sc); err != nil {
					return err
				}
				fmt.Printf("Applied %s: total £%s, monthly £%s\n",
					sc.Name, sc.TotalCost.StringFixed(2), sc.MonthlyCost.StringFixed(2))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "scenario YAML file")
	cmd.MarkFlagRequired("file")
	return cmd
}
