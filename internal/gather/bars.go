package gather

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"kellyq/internal/domain"
	"kellyq/internal/store"
)

var _ Gatherer = (*DailyBarGatherer)(nil)

// BarFetcher returns the daily bars of one symbol.
type BarFetcher interface {
	Bars(ctx context.Context, symbol string) ([]domain.Bar, error)
}

// ErrAllFailed is returned when no symbol could be gathered.
var ErrAllFailed = errors.New("gather: every symbol failed")

// DailyBarGatherer fetches daily bars for a fixed symbol list and writes
// them to the Parquet store. It is idempotent within a UTC day: a marker
// file records the last completed date.
type DailyBarGatherer struct {
	fetcher    BarFetcher
	store      *store.ParquetStore
	market     string
	symbols    []string
	maxWorkers int
	now        func() time.Time
	log        *slog.Logger
}

// NewDailyBarGatherer creates a DailyBarGatherer.
func NewDailyBarGatherer(f BarFetcher, s *store.ParquetStore, market string, symbols []string, maxWorkers int) *DailyBarGatherer {
	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	return &DailyBarGatherer{
		fetcher:    f,
		store:      s,
		market:     market,
		symbols:    symbols,
		maxWorkers: maxWorkers,
		now:        time.Now,
		log:        slog.Default().With("gatherer", market+"-daily"),
	}
}

// Name returns the gatherer identifier.
func (g *DailyBarGatherer) Name() string { return g.market + "-daily" }

// Run fetches every symbol and merges the bars into the store. Symbols that
// fail are logged and skipped; the day is only marked completed when all of
// them succeed.
func (g *DailyBarGatherer) Run(ctx context.Context) error {
	today := g.now().UTC().Format("2006-01-02")
	marker := g.markerPath()
	if last, err := os.ReadFile(marker); err == nil && strings.TrimSpace(string(last)) == today {
		g.log.Info("already completed", "date", today)
		return nil
	}

	var (
		hits   atomic.Int64
		failed atomic.Int64
		start  = time.Now()
	)
	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(g.maxWorkers)
	for _, sym := range g.symbols {
		eg.Go(func() error {
			bars, err := g.fetcher.Bars(ectx, sym)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				g.log.Error("fetch failed", "symbol", sym, "error", err)
				failed.Add(1)
				return nil
			}
			if len(bars) == 0 {
				g.log.Warn("no bars", "symbol", sym)
				return nil
			}
			if err := g.store.WriteBarsForMarket(bars, g.market); err != nil {
				g.log.Error("writing bars failed", "symbol", sym, "error", err)
				failed.Add(1)
				return nil
			}
			hits.Add(1)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	g.log.Info("complete",
		"hits", hits.Load(),
		"failed", failed.Load(),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	if len(g.symbols) > 0 && failed.Load() == int64(len(g.symbols)) {
		return ErrAllFailed
	}
	if failed.Load() > 0 {
		return fmt.Errorf("gather: %d of %d symbols failed", failed.Load(), len(g.symbols))
	}
	if err := os.MkdirAll(filepath.Dir(marker), 0o755); err != nil {
		return err
	}
	return os.WriteFile(marker, []byte(today+"\n"), 0o644)
}

// markerPath returns <DataDir>/<market>/daily/.last-completed.
func (g *DailyBarGatherer) markerPath() string {
	return filepath.Join(g.store.DataDir, g.market, "daily", ".last-completed")
}
