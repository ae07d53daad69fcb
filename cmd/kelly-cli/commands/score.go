package commands

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"kellyq/internal/perf"
	"kellyq/internal/report"
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Sharpe ratio of a return series read from a file",
	Long: `Reads one number per line (blank lines and lines starting with '#'
are ignored) and prints the annualized Sharpe ratio. With --prices the
numbers are treated as closes and converted to simple returns first.

Example:
  kelly-cli score --file returns.txt --risk-free 0.04
  cat closes.txt | kelly-cli score --file - --prices`,
	Args: cobra.NoArgs,
	RunE: runScore,
}

var (
	scoreFile          string
	scorePrices        bool
	scoreRiskFree      float64
	scoreAnnualization int
)

func init() {
	rootCmd.AddCommand(scoreCmd)

	scoreCmd.Flags().StringVar(&scoreFile, "file", "-", "input file, - for stdin")
	scoreCmd.Flags().BoolVar(&scorePrices, "prices", false, "input holds closes rather than returns")
	scoreCmd.Flags().Float64Var(&scoreRiskFree, "risk-free", -1, "annual risk-free rate (default from config)")
	scoreCmd.Flags().IntVar(&scoreAnnualization, "annualization", 0, "periods per year (default from config)")
}

func runScore(cmd *cobra.Command, args []string) error {
	var in io.Reader = cmd.InOrStdin()
	if scoreFile != "-" {
		f, err := os.Open(scoreFile)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	values, err := parseNumbers(in)
	if err != nil {
		return err
	}
	if scorePrices {
		values = simpleReturns(values)
	}

	annual := cfg.Scoring.AnnualRiskFree
	if scoreRiskFree >= 0 {
		annual = scoreRiskFree
	}
	periods := cfg.Scoring.Annualization
	if scoreAnnualization > 0 {
		periods = scoreAnnualization
	}

	sharpe := perf.Sharpe(values, perf.PerPeriodRate(annual, periods), periods)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "n=%d sharpe=%s total=%s\n",
		len(values), report.FormatScore(sharpe), report.FormatPercent(perf.TotalReturn(values)))
	return nil
}

// parseNumbers reads one float per line.
func parseNumbers(r io.Reader) ([]float64, error) {
	var out []float64
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, v)
	}
	return out, sc.Err()
}

func simpleReturns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		out[i-1] = closes[i]/closes[i-1] - 1
	}
	return out
}
