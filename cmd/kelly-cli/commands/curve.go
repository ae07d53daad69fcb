package commands

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"kellyq/internal/report"
	"kellyq/internal/store"
)

var curveCmd = &cobra.Command{
	Use:   "curve SYMBOL",
	Short: "Print a persisted Kelly growth curve",
	Long: `Reads the curve written by "run --persist" or kelly-server from the
Parquet data directory and prints its last rows with the moving averages.

Example:
  kelly-cli curve ETH --tail 30`,
	Args: cobra.ExactArgs(1),
	RunE: runCurve,
}

var curveTail int

func init() {
	rootCmd.AddCommand(curveCmd)

	curveCmd.Flags().IntVar(&curveTail, "tail", 20, "rows to print, 0 for all")
}

func runCurve(cmd *cobra.Command, args []string) error {
	ps := store.NewParquetStore(cfg.Storage.DataDir)
	recs, err := ps.ReadCurve(context.Background(), args[0])
	if err != nil {
		return err
	}
	tbl := report.FromRecords(args[0], recs, cfg.Report.ShortMA, cfg.Report.LongMA)
	rows := tbl.Rows
	if curveTail > 0 && len(rows) > curveTail {
		rows = rows[len(rows)-curveTail:]
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s  %d rows  MA%d/MA%d\n\n", tbl.Symbol, len(tbl.Rows), tbl.ShortMA, tbl.LongMA)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "DATE\tCLOSE\tFRACTION\tGROWTH\tMA SHORT\tMA LONG\t")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%s\t%.4f\t%.4f\t%s\t%s\t\n",
			r.Date.Format("2006-01-02"),
			report.FormatPrice(r.Close),
			r.Fraction,
			r.Growth,
			report.FormatScore(r.MAShort),
			report.FormatScore(r.MALong),
		)
	}
	return w.Flush()
}
