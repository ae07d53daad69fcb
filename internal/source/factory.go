package source

import (
	"fmt"
	"time"

	"kellyq/internal/config"
	"kellyq/internal/store"
)

// FromConfig builds the Source selected by cfg.Source.Kind.
func FromConfig(cfg *config.Config) (Source, error) {
	start, end, err := dateRange(cfg.Source.StartDate, cfg.Source.EndDate)
	if err != nil {
		return nil, err
	}

	switch cfg.Source.Kind {
	case config.SourceParquet:
		return NewParquetSource(store.NewParquetStore(cfg.Storage.DataDir), cfg.Source.Market, start, end), nil
	case config.SourceCSV:
		return NewCSVSource(cfg.Source.CSVDir, cfg.Source.CSVDateLayout), nil
	case config.SourceAlpaca:
		return NewAlpacaSource(AlpacaOptions{
			APIKey:          cfg.Alpaca.APIKey,
			APISecret:       cfg.Alpaca.APISecret,
			DataURL:         cfg.Alpaca.DataURL,
			Market:          cfg.Source.Market,
			Start:           start,
			End:             end,
			RateLimitPerMin: cfg.Alpaca.RateLimitPerMin,
		}), nil
	default:
		return nil, fmt.Errorf("unknown source kind %q", cfg.Source.Kind)
	}
}

// dateRange parses optional YYYY-MM-DD bounds. An empty start means the
// beginning of 2000 and an empty end means now.
func dateRange(startStr, endStr string) (time.Time, time.Time, error) {
	start := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	var end time.Time
	if startStr != "" {
		t, err := time.Parse("2006-01-02", startStr)
		if err != nil {
			return start, end, fmt.Errorf("parsing start date %q: %w", startStr, err)
		}
		start = t
	}
	if endStr != "" {
		t, err := time.Parse("2006-01-02", endStr)
		if err != nil {
			return start, end, fmt.Errorf("parsing end date %q: %w", endStr, err)
		}
		// Inclusive of the whole end day.
		end = t.Add(24*time.Hour - time.Nanosecond)
	}
	return start, end, nil
}
