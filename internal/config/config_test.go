package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeConfig writes content to a temp YAML file and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kellyq.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

// clearEnv unsets every variable applyEnvOverrides reads.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"DATA_DIR", "SQLITE_PATH", "ALPACA_API_KEY", "ALPACA_API_SECRET",
		"ALPACA_DATA_URL", "LOG_LEVEL", "KELLYQ_SYMBOLS", "KELLYQ_WINDOW",
		"APCA_API_KEY_ID", "APCA_API_SECRET_KEY",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadFull(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
storage:
  data_dir: "/tmp/kellyq/data"
  sqlite_path: "/tmp/kellyq/kellyq.db"
server:
  host: "0.0.0.0"
  port: 8081
  grpc_port: 9091
alpaca:
  api_key: "test-key"
  api_secret: "test-secret"
  data_url: "https://data.alpaca.markets"
  rate_limit_per_min: 100
logging:
  level: "debug"
  format: "text"
source:
  kind: "csv"
  market: "crypto"
  csv_dir: "/tmp/kellyq/csv"
  csv_date_layout: "2006-01-02"
  start_date: "2021-01-01"
  resample_daily: false
symbols: [ETH, BTC, SOL, BNB]
kelly:
  window: 30
  max_fraction: 1.5
  max_workers: 8
scoring:
  annual_risk_free: 0.001
  annualization: 365
report:
  short_ma: 5
  long_ma: 15
schedule:
  cron: "0 6 * * *"
  persist: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	// -- Storage --
	if cfg.Storage.DataDir != "/tmp/kellyq/data" {
		t.Errorf("Storage.DataDir = %q, want %q", cfg.Storage.DataDir, "/tmp/kellyq/data")
	}
	if cfg.Storage.SQLitePath != "/tmp/kellyq/kellyq.db" {
		t.Errorf("Storage.SQLitePath = %q, want %q", cfg.Storage.SQLitePath, "/tmp/kellyq/kellyq.db")
	}

	// -- Server --
	if cfg.Server.Port != 8081 || cfg.Server.GRPCPort != 9091 {
		t.Errorf("Server ports = %d/%d, want 8081/9091", cfg.Server.Port, cfg.Server.GRPCPort)
	}

	// -- Alpaca --
	if cfg.Alpaca.APIKey != "test-key" {
		t.Errorf("Alpaca.APIKey = %q, want %q", cfg.Alpaca.APIKey, "test-key")
	}
	if cfg.Alpaca.RateLimitPerMin != 100 {
		t.Errorf("Alpaca.RateLimitPerMin = %d, want 100", cfg.Alpaca.RateLimitPerMin)
	}

	// -- Source --
	if cfg.Source.Kind != SourceCSV {
		t.Errorf("Source.Kind = %q, want %q", cfg.Source.Kind, SourceCSV)
	}
	if cfg.Source.ResampleDaily {
		t.Error("Source.ResampleDaily = true, want false")
	}
	if cfg.Source.CSVDateLayout != "2006-01-02" {
		t.Errorf("Source.CSVDateLayout = %q", cfg.Source.CSVDateLayout)
	}

	// -- Symbols --
	if got := strings.Join(cfg.Symbols, ","); got != "ETH,BTC,SOL,BNB" {
		t.Errorf("Symbols = %q, want ETH,BTC,SOL,BNB", got)
	}

	// -- Kelly: unset fields keep their defaults --
	if cfg.Kelly.Window != 30 {
		t.Errorf("Kelly.Window = %d, want 30", cfg.Kelly.Window)
	}
	if cfg.Kelly.MaxFraction != 1.5 {
		t.Errorf("Kelly.MaxFraction = %v, want 1.5", cfg.Kelly.MaxFraction)
	}
	if cfg.Kelly.MaxIter != 500 {
		t.Errorf("Kelly.MaxIter = %d, want default 500", cfg.Kelly.MaxIter)
	}

	// -- Scoring / report / schedule --
	if cfg.Scoring.Annualization != 365 || cfg.Scoring.AnnualRiskFree != 0.001 {
		t.Errorf("Scoring = %+v", cfg.Scoring)
	}
	if cfg.Report.ShortMA != 5 || cfg.Report.LongMA != 15 {
		t.Errorf("Report = %+v", cfg.Report)
	}
	if cfg.Schedule.Cron != "0 6 * * *" || !cfg.Schedule.Persist {
		t.Errorf("Schedule = %+v", cfg.Schedule)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(writeConfig(t, "symbols: [ETH]\n"))
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Kelly.Window != 25 {
		t.Errorf("Kelly.Window = %d, want 25", cfg.Kelly.Window)
	}
	if cfg.Kelly.MaxFraction != 2.0 {
		t.Errorf("Kelly.MaxFraction = %v, want 2.0", cfg.Kelly.MaxFraction)
	}
	if cfg.Scoring.Annualization != 252 || cfg.Scoring.AnnualRiskFree != 0 {
		t.Errorf("Scoring = %+v, want 252 / 0", cfg.Scoring)
	}
	if cfg.Source.Kind != SourceParquet || !cfg.Source.ResampleDaily {
		t.Errorf("Source = %+v", cfg.Source)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
alpaca:
  api_key: "yaml-key"
  api_secret: "yaml-secret"
storage:
  data_dir: "/original/data"
symbols: [ETH]
`)

	t.Setenv("ALPACA_API_KEY", "env-key")
	t.Setenv("DATA_DIR", "/env/data")
	t.Setenv("KELLYQ_SYMBOLS", "btc, sol ,")
	t.Setenv("KELLYQ_WINDOW", "40")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Alpaca.APIKey != "env-key" {
		t.Errorf("Alpaca.APIKey = %q, want %q (env override)", cfg.Alpaca.APIKey, "env-key")
	}
	// api_secret should remain from YAML since no env override was set.
	if cfg.Alpaca.APISecret != "yaml-secret" {
		t.Errorf("Alpaca.APISecret = %q, want %q (from YAML)", cfg.Alpaca.APISecret, "yaml-secret")
	}
	if cfg.Storage.DataDir != "/env/data" {
		t.Errorf("Storage.DataDir = %q, want %q (env override)", cfg.Storage.DataDir, "/env/data")
	}
	if got := strings.Join(cfg.Symbols, ","); got != "BTC,SOL" {
		t.Errorf("Symbols = %q, want BTC,SOL", got)
	}
	if cfg.Kelly.Window != 40 {
		t.Errorf("Kelly.Window = %d, want 40", cfg.Kelly.Window)
	}

	t.Setenv("APCA_API_KEY_ID", "sdk-key")
	cfg, err = Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Alpaca.APIKey != "sdk-key" {
		t.Errorf("Alpaca.APIKey = %q, want %q (APCA override)", cfg.Alpaca.APIKey, "sdk-key")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("Load() of a missing file should fail")
	}
}

func TestLoadOptional(t *testing.T) {
	clearEnv(t)
	t.Setenv("KELLYQ_SYMBOLS", "eth")

	cfg, err := LoadOptional(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadOptional() of a missing file returned error: %v", err)
	}
	if cfg.Kelly.Window != 25 {
		t.Errorf("Kelly.Window = %d, want default 25", cfg.Kelly.Window)
	}
	if strings.Join(cfg.Symbols, ",") != "ETH" {
		t.Errorf("Symbols = %v, want [ETH] from env", cfg.Symbols)
	}

	if _, err := LoadOptional(writeConfig(t, "kelly: [")); err == nil {
		t.Error("LoadOptional() should still fail on malformed YAML")
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Symbols = []string{"ETH"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() on defaults = %v", err)
	}

	cfg.Kelly.Window = 1
	cfg.Kelly.MaxFraction = 0
	cfg.Scoring.Annualization = 0
	cfg.Source.Kind = "ftp"
	cfg.Symbols = nil

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() should reject invalid config")
	}
	for _, want := range []string{"kelly.window", "kelly.max_fraction", "scoring.annualization", "source.kind", "symbols"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() error %q does not mention %s", err, want)
		}
	}
}
