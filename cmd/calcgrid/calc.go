package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/quantfabric/calcgrid/internal/config"
	"github.com/quantfabric/calcgrid/internal/engine"
	"github.com/quantfabric/calcgrid/internal/money"
	"github.com/quantfabric/calcgrid/internal/result"
	"github.com/quantfabric/calcgrid/internal/snapshot"
	"github.com/quantfabric/calcgrid/internal/store"
)

func calcCmd() *cobra.Command {
	var (
		configPath    string
		snapshotPath  string
		portfolioPath string
		measures      string
		withScenarios bool
		persist       bool
	)

	cmd := &cobra.Command{
		Use:   "calc",
		Short: "Price a portfolio against a market snapshot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			snap, err := snapshot.Load(snapshotPath)
			if err != nil {
				return err
			}
			trades, err := config.LoadPortfolio(portfolioPath)
			if err != nil {
				return err
			}
			columns, err := parseColumns(measures)
			if err != nil {
				return err
			}

			p, err := buildPipeline(ctx, cfg)
			if err != nil {
				return err
			}
			defer p.Close()

			base := snap.Environment()
			var results *engine.Results
			if withScenarios {
				if len(cfg.Scenarios) == 0 {
					return fmt.Errorf("--scenarios requested but none configured")
				}
				results, err = p.runner.RunScenarios(ctx, trades, columns, base, cfg.Perturbations())
			} else {
				results, err = p.runner.Run(ctx, trades, columns, base)
			}
			if err != nil {
				return err
			}

			renderResults(cmd.OutOrStdout(), results, cfg.Scenarios)

			if persist {
				if !cfg.Store.Enabled {
					return fmt.Errorf("--persist requested but store is disabled")
				}
				db, err := store.New(cfg.Store)
				if err != nil {
					return err
				}
				defer db.Close()
				db.SetLogger(log.Logger)
				if err := db.EnsureSchema(ctx); err != nil {
					return err
				}
				if err := db.SaveRun(ctx, base.ValuationDate(), results); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "config/calcgrid.yaml", "engine configuration file")
	cmd.Flags().StringVar(&snapshotPath, "snapshot", "config/snapshot.yaml", "market data snapshot file")
	cmd.Flags().StringVar(&portfolioPath, "portfolio", "config/portfolio.yaml", "portfolio file")
	cmd.Flags().StringVar(&measures, "measures", "PresentValue,ParRate", "comma separated measures")
	cmd.Flags().BoolVar(&withScenarios, "scenarios", false, "fan out over configured scenarios")
	cmd.Flags().BoolVar(&persist, "persist", false, "write the run to the configured store")
	return cmd
}

// renderResults prints the grid as an aligned text table, one row per trade.
func renderResults(out io.Writer, results *engine.Results, scenarios []config.ScenarioConfig) {
	w := tabwriter.NewWriter(out, 2, 4, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintf(w, "trade")
	for _, col := range results.Columns() {
		fmt.Fprintf(w, "\t%s", col.Header())
	}
	fmt.Fprintln(w)

	for row := 0; row < results.RowCount(); row++ {
		fmt.Fprintf(w, "%s", results.TradeID(row))
		for col := 0; col < results.ColumnCount(); col++ {
			fmt.Fprintf(w, "\t%s", renderCell(results.MustGet(row, col), scenarios))
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "\nrun %s\n", results.RunID())
}

func renderCell(r result.Result, scenarios []config.ScenarioConfig) string {
	if r.IsFailure() {
		f := r.Failure()
		return fmt.Sprintf("!%s: %s", f.Reason, f.Message)
	}
	switch v := r.Value().(type) {
	case engine.ScenarioValues:
		parts := make([]string, len(v))
		for i, entry := range v {
			name := fmt.Sprintf("s%d", i)
			if i < len(scenarios) {
				name = scenarios[i].Name
			}
			parts[i] = fmt.Sprintf("%s=%s", name, renderCell(entry, nil))
		}
		return strings.Join(parts, " ")
	case money.CurrencyAmount:
		return v.String()
	case float64:
		return fmt.Sprintf("%.6f", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
