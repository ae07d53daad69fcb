package commands

import (
	"context"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"kellyq/internal/api"
	"kellyq/internal/report"
	"kellyq/pkg/kellyq"
)

var remoteCmd = &cobra.Command{
	Use:   "remote",
	Short: "Query a running kelly-server over HTTP",
	Long: `Talks to the kelly-server REST API.

Example:
  kelly-cli remote scores --server http://127.0.0.1:8080
  kelly-cli remote trigger`,
}

var remoteScoresCmd = &cobra.Command{
	Use:   "scores",
	Short: "Scores of the latest (or --run) run",
	Args:  cobra.NoArgs,
	RunE:  runRemoteScores,
}

var remoteSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Per-symbol curve summary of the latest run",
	Args:  cobra.NoArgs,
	RunE:  runRemoteSummary,
}

var remoteTriggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Start a recomputation and print its scores",
	Args:  cobra.NoArgs,
	RunE:  runRemoteTrigger,
}

var (
	remoteServer  string
	remoteGRPC    string
	remoteRun     string
	remoteTimeout time.Duration
)

func init() {
	rootCmd.AddCommand(remoteCmd)
	remoteCmd.AddCommand(remoteScoresCmd, remoteSummaryCmd, remoteTriggerCmd)

	remoteCmd.PersistentFlags().StringVar(&remoteServer, "server", "", "server base URL (default from config server.host/port)")
	remoteCmd.PersistentFlags().DurationVar(&remoteTimeout, "timeout", 2*time.Minute, "request timeout")
	remoteScoresCmd.Flags().StringVar(&remoteRun, "run", "", "run id (default latest)")
	remoteScoresCmd.Flags().StringVar(&remoteGRPC, "grpc", "", "query the gRPC endpoint at host:port instead of HTTP")
}

func remoteClient() *kellyq.Client {
	base := remoteServer
	if base == "" {
		base = fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port)
	}
	return kellyq.NewClient(base)
}

func runRemoteScores(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), remoteTimeout)
	defer cancel()
	if remoteGRPC != "" {
		return grpcScores(ctx, cmd.OutOrStdout())
	}
	resp, err := remoteClient().Scores(ctx, remoteRun)
	if err != nil {
		return err
	}
	printScores(cmd.OutOrStdout(), resp)
	return nil
}

func runRemoteTrigger(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), remoteTimeout)
	defer cancel()
	resp, err := remoteClient().Trigger(ctx)
	if err != nil {
		return err
	}
	printScores(cmd.OutOrStdout(), resp)
	return nil
}

func runRemoteSummary(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), remoteTimeout)
	defer cancel()
	resp, err := remoteClient().Summary(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %s\n\n", resp.RunID)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "SYMBOL\tROWS\tKELLY MEAN\tKELLY LOW\tKELLY HIGH\tLAST CLOSE\tCORR\t")
	for _, s := range resp.Summaries {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\t%s\t\n",
			s.Symbol,
			s.Rows,
			report.FormatScore(kellyq.Value(s.KellyMean)),
			report.FormatScore(kellyq.Value(s.KellyLow)),
			report.FormatScore(kellyq.Value(s.KellyHigh)),
			report.FormatPrice(kellyq.Value(s.LastClose)),
			report.FormatScore(kellyq.Value(s.Correlation)),
		)
	}
	return w.Flush()
}

func printScores(out io.Writer, resp *kellyq.ScoresResponse) {
	fmt.Fprintf(out, "run %s  window=%d  started=%s\n\n", resp.RunID, resp.Window, resp.Started.Format(time.RFC3339))
	keys := make([]string, 0, len(resp.Scores))
	for k := range resp.Scores {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, k := range keys {
		fmt.Fprintf(w, "%s\t%s\n", k, report.FormatScore(kellyq.Value(resp.Scores[k])))
	}
	w.Flush()
	for sym, msg := range resp.Failed {
		fmt.Fprintf(out, "failed %s: %s\n", sym, msg)
	}
}

func grpcScores(ctx context.Context, out io.Writer) error {
	conn, err := grpc.NewClient(remoteGRPC, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return err
	}
	defer conn.Close()

	id, scores, err := api.NewReportClient(conn).Scores(ctx, remoteRun)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "run %s\n\n", id)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, k := range api.SortedKeys(scores) {
		fmt.Fprintf(w, "%s\t%s\n", k, report.FormatScore(scores[k]))
	}
	return w.Flush()
}
