// Package commands implements the kelly-cli command tree.
package commands

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"kellyq/internal/config"
	"kellyq/internal/util"
)

const version = "0.3.0"

var (
	// Global flags
	configFile string
	verbose    bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "kelly-cli",
	Short: "Rolling Kelly fractions and Sharpe scores for price series",
	Long: `kelly-cli estimates rolling Kelly-optimal fractions from daily closes,
compounds them into a growth curve, and scores both the raw and the
Kelly-sized return streams with the Sharpe ratio.

Examples:
  kelly-cli run --symbols ETH,BTC
  kelly-cli solve --mean 0.01 --std 0.05
  kelly-cli score --file returns.txt
  kelly-cli remote scores --server http://127.0.0.1:8080`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		c, err := config.LoadOptional(configFile)
		if err != nil {
			return err
		}
		cfg = c

		level := cfg.Logging.Level
		if verbose {
			level = "debug"
		}
		util.SetDefault(util.NewLoggerTo(os.Stderr, level, "text"))
		slog.Debug("config loaded", "path", configFile, "source", cfg.Source.Kind)
		return nil
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	defaultConfig := "config/kelly.yaml"
	if p := os.Getenv("KELLYQ_CONFIG"); p != "" {
		defaultConfig = p
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", defaultConfig, "config file (missing file means built-in defaults)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging on stderr")
}
