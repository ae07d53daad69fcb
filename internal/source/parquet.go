package source

import (
	"context"
	"fmt"
	"time"

	"kellyq/internal/domain"
	"kellyq/internal/store"
)

var _ Source = (*ParquetSource)(nil)

// ParquetSource reads daily bars from a store.BarStore.
type ParquetSource struct {
	store  store.BarStore
	market string
	start  time.Time
	end    time.Time
	now    func() time.Time
}

// NewParquetSource returns a source reading market bars in [start, end].
// A zero end means "up to now", resolved on every read.
func NewParquetSource(s store.BarStore, market string, start, end time.Time) *ParquetSource {
	return &ParquetSource{store: s, market: market, start: start, end: end, now: time.Now}
}

// Prices returns the closes of the stored bars for symbol.
func (p *ParquetSource) Prices(ctx context.Context, symbol string) ([]domain.PricePoint, error) {
	end := p.end
	if end.IsZero() {
		end = p.now().UTC()
	}
	bars, err := p.store.ReadBars(ctx, symbol, p.market, p.start, end)
	if err != nil {
		return nil, fmt.Errorf("reading bars for %s: %w", symbol, err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%s in %s: %w", symbol, p.market, ErrSymbolNotFound)
	}
	return normalize(symbol, domain.PricesFromBars(bars))
}
