// Package pipeline runs the rolling Kelly estimator and the Sharpe scorer
// over a set of symbols and optionally persists the results.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"kellyq/internal/config"
	"kellyq/internal/kelly"
	"kellyq/internal/perf"
	"kellyq/internal/report"
	"kellyq/internal/source"
	"kellyq/internal/store"
	"kellyq/internal/util"
)

// KellySuffix is appended to a symbol to key the score of its leveraged
// return series.
const KellySuffix = "_kelly"

// ErrNoSymbols is returned when Run is called with an empty symbol list.
var ErrNoSymbols = errors.New("pipeline: no symbols")

// Options configures a Runner. Zero values select the package defaults.
type Options struct {
	Solver         kelly.SolverConfig
	Window         int
	MaxWorkers     int
	AnnualRiskFree float64
	Annualization  int
	ShortMA        int
	LongMA         int
	ResampleDaily  bool
}

// OptionsFromConfig maps the loaded configuration onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Solver: kelly.SolverConfig{
			MaxFraction: cfg.Kelly.MaxFraction,
			Tolerance:   cfg.Kelly.Tolerance,
			MaxIter:     cfg.Kelly.MaxIter,
			Points:      cfg.Kelly.QuadPoints,
		},
		Window:         cfg.Kelly.Window,
		MaxWorkers:     cfg.Kelly.MaxWorkers,
		AnnualRiskFree: cfg.Scoring.AnnualRiskFree,
		Annualization:  cfg.Scoring.Annualization,
		ShortMA:        cfg.Report.ShortMA,
		LongMA:         cfg.Report.LongMA,
		ResampleDaily:  cfg.Source.ResampleDaily,
	}
}

// Result is the outcome of one Run. Maps are keyed by upper-cased symbol
// except Scores, which also carries the "<SYMBOL>_kelly" entries.
type Result struct {
	ID        string
	Started   time.Time
	Finished  time.Time
	Window    int
	Symbols   []string
	Tables    map[string]report.Table
	Fractions map[string][]kelly.FractionPoint
	Scores    map[string]float64
	Summaries map[string]report.Summary
	Skipped   map[string]int
	Failed    map[string]error
}

// FailedSymbols returns the sorted symbols that failed.
func (r *Result) FailedSymbols() []string {
	out := make([]string, 0, len(r.Failed))
	for sym := range r.Failed {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// Runner wires a price source to the estimator and scorer.
type Runner struct {
	src    source.Source
	opts   Options
	engine *kelly.Engine
	curves store.CurveStore // optional
	runs   store.RunStore   // optional
	log    *slog.Logger
}

// NewRunner creates a Runner reading from src.
func NewRunner(src source.Source, opts Options, log *slog.Logger) *Runner {
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = 4
	}
	if opts.Annualization <= 0 {
		opts.Annualization = perf.TradingDaysPerYear
	}
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "pipeline")
	engine := kelly.NewEngine(kelly.NewSolver(opts.Solver), opts.Window, log)
	opts.Window = engine.Window()
	return &Runner{src: src, opts: opts, engine: engine, log: log}
}

// WithStores enables persistence of curves and runs. Either may be nil.
func (r *Runner) WithStores(curves store.CurveStore, runs store.RunStore) *Runner {
	r.curves = curves
	r.runs = runs
	return r
}

// Run processes every symbol independently. A symbol whose data cannot be
// loaded or computed is recorded in Result.Failed and does not affect the
// others. Run only returns an error for an empty symbol list, a cancelled
// context, or a persistence failure.
func (r *Runner) Run(ctx context.Context, symbols []string) (*Result, error) {
	symbols = normalizeSymbols(symbols)
	if len(symbols) == 0 {
		return nil, ErrNoSymbols
	}

	res := &Result{
		ID:        uuid.NewString(),
		Started:   time.Now().UTC(),
		Window:    r.opts.Window,
		Symbols:   symbols,
		Tables:    make(map[string]report.Table, len(symbols)),
		Fractions: make(map[string][]kelly.FractionPoint, len(symbols)),
		Scores:    make(map[string]float64, 2*len(symbols)),
		Summaries: make(map[string]report.Summary, len(symbols)),
		Skipped:   make(map[string]int),
		Failed:    make(map[string]error),
	}
	log := r.log.With("run", res.ID)
	log.Info("run started", "symbols", len(symbols), "window", r.opts.Window)

	rf := perf.PerPeriodRate(r.opts.AnnualRiskFree, r.opts.Annualization)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.MaxWorkers)
	for _, sym := range symbols {
		g.Go(func() error {
			out, err := r.runSymbol(gctx, sym, rf)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Error("symbol failed", "symbol", sym, "error", err)
				res.Failed[sym] = err
				return nil
			}
			res.Tables[sym] = out.table
			res.Fractions[sym] = out.fractions
			res.Summaries[sym] = report.Summarize(out.table)
			res.Scores[sym] = out.rawScore
			res.Scores[sym+KellySuffix] = out.kellyScore
			if out.skipped > 0 {
				res.Skipped[sym] = out.skipped
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	res.Finished = time.Now().UTC()

	if err := r.persist(ctx, res); err != nil {
		return res, err
	}

	log.Info("run finished",
		"ok", len(res.Tables),
		"failed", len(res.Failed),
		"elapsed", res.Finished.Sub(res.Started).Round(time.Millisecond),
	)
	return res, nil
}

type symbolOutput struct {
	table      report.Table
	fractions  []kelly.FractionPoint
	rawScore   float64
	kellyScore float64
	skipped    int
}

func (r *Runner) runSymbol(ctx context.Context, sym string, rf float64) (*symbolOutput, error) {
	prices, err := r.src.Prices(ctx, sym)
	if err != nil {
		return nil, err
	}
	if r.opts.ResampleDaily {
		prices = util.DailyLast(prices)
	}

	kr, err := r.engine.Run(prices)
	if err != nil {
		return nil, err
	}

	raw := make([]float64, len(kr.Returns))
	for i, rp := range kr.Returns {
		raw[i] = rp.Return
	}

	out := &symbolOutput{
		table:      report.Build(sym, kr, r.opts.ShortMA, r.opts.LongMA),
		fractions:  kr.Fractions,
		rawScore:   perf.Sharpe(raw, rf, r.opts.Annualization),
		kellyScore: perf.Sharpe(kr.Leveraged, rf, r.opts.Annualization),
		skipped:    kr.Skipped,
	}
	r.log.Debug("symbol done",
		"symbol", sym,
		"prices", len(prices),
		"rows", len(out.table.Rows),
		"skipped", kr.Skipped,
	)
	return out, nil
}

func (r *Runner) persist(ctx context.Context, res *Result) error {
	if r.curves != nil {
		for sym, tbl := range res.Tables {
			if err := r.curves.WriteCurve(ctx, sym, tbl.Records()); err != nil {
				return fmt.Errorf("persisting curve: %w", err)
			}
		}
	}
	if r.runs != nil {
		run := &store.Run{
			ID:       res.ID,
			Started:  res.Started,
			Finished: res.Finished,
			Window:   res.Window,
			Symbols:  res.Symbols,
			Failed:   res.FailedSymbols(),
			Scores:   res.Scores,
		}
		if err := r.runs.SaveRun(ctx, run); err != nil {
			return fmt.Errorf("persisting run: %w", err)
		}
	}
	return nil
}

// normalizeSymbols upper-cases, trims, and de-duplicates symbols while
// keeping their order.
func normalizeSymbols(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
