package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"kellyq/internal/kelly"
	"kellyq/internal/pipeline"
)

var solveCmd = &cobra.Command{
	Use:   "solve",
	Short: "Kelly fraction for a single normal return distribution",
	Long: `Maximises E[log(1 + f·S)] for S ~ Normal(mean, std) over the
configured fraction range and prints the optimal f.

Example:
  kelly-cli solve --mean 0.002 --std 0.03`,
	Args: cobra.NoArgs,
	RunE: runSolve,
}

var (
	solveMean float64
	solveStd  float64
)

func init() {
	rootCmd.AddCommand(solveCmd)

	solveCmd.Flags().Float64Var(&solveMean, "mean", 0, "mean per-period return")
	solveCmd.Flags().Float64Var(&solveStd, "std", 0, "standard deviation of the per-period return")
	_ = solveCmd.MarkFlagRequired("mean")
	_ = solveCmd.MarkFlagRequired("std")
}

func runSolve(cmd *cobra.Command, args []string) error {
	solver := kelly.NewSolver(pipeline.OptionsFromConfig(cfg).Solver)
	f, err := solver.Solve(solveMean, solveStd)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%.6f\n", f)
	return nil
}
