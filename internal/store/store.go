// Package store defines storage interfaces for persisting and retrieving
// bars, computed growth curves, and scoring runs.
package store

import (
	"context"
	"errors"
	"time"

	"kellyq/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// BarStore persists and retrieves OHLCV bar data.
type BarStore interface {
	// WriteBars persists a batch of bars to storage.
	WriteBars(ctx context.Context, bars []domain.Bar) error

	// ReadBars returns bars for the given symbol and market within [start, end].
	ReadBars(ctx context.Context, symbol string, market string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols available in the given market.
	ListSymbols(ctx context.Context, market string) ([]string, error)
}

// CurveStore persists the per-symbol output tables of a run.
type CurveStore interface {
	// WriteCurve replaces the stored curve for symbol.
	WriteCurve(ctx context.Context, symbol string, rows []CurveRecord) error

	// ReadCurve returns the stored curve for symbol.
	ReadCurve(ctx context.Context, symbol string) ([]CurveRecord, error)
}

// RunStore persists scoring runs.
type RunStore interface {
	// SaveRun inserts a run and its scores.
	SaveRun(ctx context.Context, run *Run) error

	// ListRuns returns the most recent runs, newest first, up to limit.
	ListRuns(ctx context.Context, limit int) ([]Run, error)

	// Scores returns the score map of a single run.
	Scores(ctx context.Context, runID string) (map[string]float64, error)
}

// Run is the persisted summary of one pipeline execution.
type Run struct {
	ID       string
	Started  time.Time
	Finished time.Time
	Window   int
	Symbols  []string
	Failed   []string
	Scores   map[string]float64 // NaN scores are stored as NULL
}
