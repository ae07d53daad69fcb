package commands

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"kellyq/internal/report"
	"kellyq/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List persisted runs and their scores",
	Args:  cobra.NoArgs,
	RunE:  runRuns,
}

var runsLimit int

func init() {
	rootCmd.AddCommand(runsCmd)

	runsCmd.Flags().IntVar(&runsLimit, "limit", 10, "runs to list, 0 for all")
}

func runRuns(cmd *cobra.Command, args []string) error {
	db, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := db.ListRuns(context.Background(), runsLimit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTARTED\tWINDOW\tSCORES\tFAILED")
	for _, r := range runs {
		var parts []string
		for _, sym := range r.Symbols {
			if v, ok := r.Scores[sym]; ok {
				parts = append(parts, fmt.Sprintf("%s=%s", sym, report.FormatScore(v)))
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			r.ID,
			r.Started.Format("2006-01-02 15:04:05"),
			r.Window,
			strings.Join(parts, " "),
			strings.Join(r.Failed, ","),
		)
	}
	return w.Flush()
}
