package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for kellyq.
type Config struct {
	Storage  Storage        `yaml:"storage"`
	Server   Server         `yaml:"server"`
	Alpaca   Alpaca         `yaml:"alpaca"`
	Logging  Logging        `yaml:"logging"`
	Source   SourceConfig   `yaml:"source"`
	Symbols  []string       `yaml:"symbols"`
	Kelly    KellyConfig    `yaml:"kelly"`
	Scoring  ScoringConfig  `yaml:"scoring"`
	Report   ReportConfig   `yaml:"report"`
	Schedule ScheduleConfig `yaml:"schedule"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Server holds network listener configuration.
type Server struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	GRPCPort int    `yaml:"grpc_port"`
}

// Alpaca holds credentials and endpoints for the Alpaca market-data API.
type Alpaca struct {
	APIKey          string `yaml:"api_key"`
	APISecret       string `yaml:"api_secret"`
	DataURL         string `yaml:"data_url"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SourceConfig selects where price series are read from.
type SourceConfig struct {
	Kind          string `yaml:"kind"` // parquet, csv, alpaca
	Market        string `yaml:"market"`
	CSVDir        string `yaml:"csv_dir"`
	CSVDateLayout string `yaml:"csv_date_layout"`
	StartDate     string `yaml:"start_date"`
	EndDate       string `yaml:"end_date"`
	ResampleDaily bool   `yaml:"resample_daily"`
}

// KellyConfig holds the rolling estimator and optimizer parameters.
type KellyConfig struct {
	Window      int     `yaml:"window"`
	MaxFraction float64 `yaml:"max_fraction"`
	Tolerance   float64 `yaml:"tolerance"`
	MaxIter     int     `yaml:"max_iter"`
	QuadPoints  int     `yaml:"quad_points"`
	MaxWorkers  int     `yaml:"max_workers"`
}

// ScoringConfig holds Sharpe ratio parameters. AnnualRiskFree is converted
// to a per-period rate by dividing by Annualization before scoring.
type ScoringConfig struct {
	AnnualRiskFree float64 `yaml:"annual_risk_free"`
	Annualization  int     `yaml:"annualization"`
}

// ReportConfig holds the moving-average periods applied to growth curves.
type ReportConfig struct {
	ShortMA int `yaml:"short_ma"`
	LongMA  int `yaml:"long_ma"`
}

// ScheduleConfig controls periodic recomputation in kelly-server.
type ScheduleConfig struct {
	Cron    string `yaml:"cron"`
	Persist bool   `yaml:"persist"`
}

// Source kinds.
const (
	SourceParquet = "parquet"
	SourceCSV     = "csv"
	SourceAlpaca  = "alpaca"
)

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct on top of the defaults, and then applies environment
// variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// LoadOptional behaves like Load but falls back to the defaults, with
// environment overrides still applied, when no file exists at path.
func LoadOptional(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg = Default()
		applyEnvOverrides(cfg)
		return cfg, nil
	}
	return cfg, err
}

// Default returns a Config populated with the built-in defaults.
func Default() *Config {
	return &Config{
		Storage: Storage{
			DataDir:    "data",
			SQLitePath: "data/kellyq.db",
		},
		Server: Server{
			Host:     "127.0.0.1",
			Port:     8080,
			GRPCPort: 9090,
		},
		Alpaca: Alpaca{
			RateLimitPerMin: 200,
		},
		Logging: Logging{
			Level:  "info",
			Format: "json",
		},
		Source: SourceConfig{
			Kind:          SourceParquet,
			Market:        "us",
			CSVDir:        ".",
			CSVDateLayout: "02/01/2006",
			ResampleDaily: true,
		},
		Kelly: KellyConfig{
			Window:      25,
			MaxFraction: 2.0,
			Tolerance:   1e-5,
			MaxIter:     500,
			QuadPoints:  64,
			MaxWorkers:  4,
		},
		Scoring: ScoringConfig{
			Annualization: 252,
		},
		Report: ReportConfig{
			ShortMA: 10,
			LongMA:  20,
		},
		Schedule: ScheduleConfig{
			Cron: "@daily",
		},
	}
}

// Validate reports configuration values the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Kelly.Window < 2 {
		errs = append(errs, fmt.Errorf("kelly.window must be at least 2, got %d", c.Kelly.Window))
	}
	if c.Kelly.MaxFraction <= 0 {
		errs = append(errs, fmt.Errorf("kelly.max_fraction must be positive, got %v", c.Kelly.MaxFraction))
	}
	if c.Scoring.Annualization <= 0 {
		errs = append(errs, fmt.Errorf("scoring.annualization must be positive, got %d", c.Scoring.Annualization))
	}
	switch c.Source.Kind {
	case SourceParquet, SourceCSV, SourceAlpaca:
	default:
		errs = append(errs, fmt.Errorf("source.kind %q is not one of parquet, csv, alpaca", c.Source.Kind))
	}
	if len(c.Symbols) == 0 {
		errs = append(errs, errors.New("symbols must list at least one instrument"))
	}
	return errors.Join(errs...)
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}

	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}

	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}

	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("KELLYQ_SYMBOLS"); v != "" {
		var syms []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				syms = append(syms, strings.ToUpper(s))
			}
		}
		cfg.Symbols = syms
	}

	if v := os.Getenv("KELLYQ_WINDOW"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Kelly.Window = n
		}
	}

	// Standard Alpaca env vars take precedence; the SDK reads the same names.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}
