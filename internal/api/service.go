// Package api provides the HTTP and gRPC server for kellyq, exposing the
// scores, growth curves, and run history of the Kelly pipeline.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"kellyq/internal/pipeline"
	"kellyq/internal/report"
	"kellyq/internal/store"
)

var (
	// ErrNoRun is returned before the first run has completed.
	ErrNoRun = errors.New("api: no run has completed yet")

	// ErrRunInProgress is returned when a refresh is requested while one
	// is already running.
	ErrRunInProgress = errors.New("api: run already in progress")
)

// Service holds the latest pipeline result and answers queries against it,
// falling back to the stores for data not held in memory.
type Service struct {
	runner  *pipeline.Runner
	symbols []string
	curves  store.CurveStore // optional
	runs    store.RunStore   // optional
	shortMA int
	longMA  int
	log     *slog.Logger

	running atomic.Bool
	mu      sync.RWMutex
	latest  *pipeline.Result
}

// NewService creates a Service that refreshes symbols through runner.
func NewService(runner *pipeline.Runner, symbols []string, curves store.CurveStore, runs store.RunStore, shortMA, longMA int, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		runner:  runner,
		symbols: symbols,
		curves:  curves,
		runs:    runs,
		shortMA: shortMA,
		longMA:  longMA,
		log:     log.With("component", "api"),
	}
}

// Refresh runs the pipeline and makes the result the latest one. Concurrent
// calls fail fast with ErrRunInProgress.
func (s *Service) Refresh(ctx context.Context) (*pipeline.Result, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer s.running.Store(false)

	res, err := s.runner.Run(ctx, s.symbols)
	if res != nil {
		s.mu.Lock()
		s.latest = res
		s.mu.Unlock()
	}
	return res, err
}

// Latest returns the most recent result, or ErrNoRun.
func (s *Service) Latest() (*pipeline.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return nil, ErrNoRun
	}
	return s.latest, nil
}

// Scores returns the score map of runID, or of the latest run when runID is
// empty.
func (s *Service) Scores(ctx context.Context, runID string) (string, map[string]float64, error) {
	if runID == "" {
		res, err := s.Latest()
		if err != nil {
			return "", nil, err
		}
		return res.ID, res.Scores, nil
	}
	if latest, err := s.Latest(); err == nil && latest.ID == runID {
		return latest.ID, latest.Scores, nil
	}
	if s.runs == nil {
		return "", nil, fmt.Errorf("run %s: %w", runID, store.ErrNotFound)
	}
	scores, err := s.runs.Scores(ctx, runID)
	if err != nil {
		return "", nil, err
	}
	return runID, scores, nil
}

// Curve returns the growth table of symbol from the latest run, or from the
// curve store when the symbol is not in memory.
func (s *Service) Curve(ctx context.Context, symbol string) (report.Table, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if res, err := s.Latest(); err == nil {
		if tbl, ok := res.Tables[symbol]; ok {
			return tbl, nil
		}
	}
	if s.curves == nil {
		return report.Table{}, fmt.Errorf("curve for %s: %w", symbol, store.ErrNotFound)
	}
	recs, err := s.curves.ReadCurve(ctx, symbol)
	if err != nil {
		return report.Table{}, err
	}
	return report.FromRecords(symbol, recs, s.shortMA, s.longMA), nil
}

// Runs lists persisted runs, newest first. Without a run store it returns
// only the latest in-memory run.
func (s *Service) Runs(ctx context.Context, limit int) ([]store.Run, error) {
	if s.runs != nil {
		return s.runs.ListRuns(ctx, limit)
	}
	res, err := s.Latest()
	if errors.Is(err, ErrNoRun) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []store.Run{{
		ID:       res.ID,
		Started:  res.Started,
		Finished: res.Finished,
		Window:   res.Window,
		Symbols:  res.Symbols,
		Failed:   res.FailedSymbols(),
		Scores:   res.Scores,
	}}, nil
}

// Name identifies the refresh job to the scheduler.
func (s *Service) Name() string { return "kelly-refresh" }

// Run refreshes the scores, so a Service can be scheduled like any
// gatherer.
func (s *Service) Run(ctx context.Context) error {
	res, err := s.Refresh(ctx)
	if err != nil {
		return err
	}
	if len(res.Failed) > 0 {
		s.log.Warn("refresh finished with failures", "run", res.ID, "failed", res.FailedSymbols())
	}
	return nil
}
