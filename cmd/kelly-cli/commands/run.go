package commands

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"kellyq/internal/config"
	"kellyq/internal/pipeline"
	"kellyq/internal/report"
	"kellyq/internal/source"
	"kellyq/internal/store"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Compute Kelly curves and Sharpe scores for the configured symbols",
	Long: `Loads each symbol from the configured source, estimates the rolling
Kelly fraction, and prints the Sharpe ratio of the raw returns next to the
Sharpe ratio of the Kelly-sized returns.

Example:
  kelly-cli run --source csv --csv-dir ./prices --symbols ETH,BTC --window 25`,
	RunE: runRun,
}

var (
	runSymbols []string
	runWindow  int
	runSource  string
	runCSVDir  string
	runPersist bool
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringSliceVar(&runSymbols, "symbols", nil, "symbols to process (default from config)")
	runCmd.Flags().IntVar(&runWindow, "window", 0, "rolling window length (default from config)")
	runCmd.Flags().StringVar(&runSource, "source", "", "price source: parquet, csv or alpaca")
	runCmd.Flags().StringVar(&runCSVDir, "csv-dir", "", "directory of <SYMBOL>.csv files")
	runCmd.Flags().BoolVar(&runPersist, "persist", false, "write curves to Parquet and the run to SQLite")
}

func runRun(cmd *cobra.Command, args []string) error {
	if len(runSymbols) > 0 {
		cfg.Symbols = runSymbols
	}
	if runWindow > 0 {
		cfg.Kelly.Window = runWindow
	}
	if runSource != "" {
		cfg.Source.Kind = runSource
	}
	if runCSVDir != "" {
		cfg.Source.CSVDir = runCSVDir
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	src, err := source.FromConfig(cfg)
	if err != nil {
		return err
	}
	runner := pipeline.NewRunner(src, pipeline.OptionsFromConfig(cfg), nil)
	if runPersist {
		closeStores, err := attachStores(runner, cfg)
		if err != nil {
			return err
		}
		defer closeStores()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	res, err := runner.Run(ctx, cfg.Symbols)
	if err != nil {
		return err
	}
	printResult(cmd.OutOrStdout(), res)
	return nil
}

// attachStores opens the Parquet and SQLite stores and attaches them to
// runner. The returned func closes the database.
func attachStores(runner *pipeline.Runner, cfg *config.Config) (func(), error) {
	runs, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("opening run store: %w", err)
	}
	runner.WithStores(store.NewParquetStore(cfg.Storage.DataDir), runs)
	return func() { runs.Close() }, nil
}

func printResult(out io.Writer, res *pipeline.Result) {
	fmt.Fprintf(out, "run %s  window=%d\n\n", res.ID, res.Window)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "SYMBOL\tROWS\tSHARPE\tKELLY SHARPE\tLAST FRACTION\tLAST GROWTH\tLAST CLOSE\tSKIPPED\t")
	for _, sym := range res.Symbols {
		if _, failed := res.Failed[sym]; failed {
			continue
		}
		sum := res.Summaries[sym]
		last := "-"
		if fr := res.Fractions[sym]; len(fr) > 0 {
			last = fmt.Sprintf("%.4f", fr[len(fr)-1].Fraction)
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\t%s\t%d\t\n",
			sym,
			sum.Rows,
			report.FormatScore(res.Scores[sym]),
			report.FormatScore(res.Scores[sym+pipeline.KellySuffix]),
			last,
			report.FormatPrice(sum.LastKelly),
			report.FormatPrice(sum.LastClose),
			res.Skipped[sym],
		)
	}
	w.Flush()

	if failed := res.FailedSymbols(); len(failed) > 0 {
		fmt.Fprintln(out)
		for _, sym := range failed {
			fmt.Fprintf(out, "failed %s: %v\n", sym, res.Failed[sym])
		}
	}
}
