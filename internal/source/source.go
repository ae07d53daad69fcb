// Package source loads per-symbol close-price series from the places kellyq
// can read them: the Parquet bar store, CSV exports, the Alpaca market-data
// API, or memory.
package source

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"kellyq/internal/domain"
)

var (
	// ErrSymbolNotFound is returned when a source has no data for a symbol.
	ErrSymbolNotFound = errors.New("source: symbol not found")

	// ErrInvalidPrice is returned when a series contains a close that is
	// not strictly positive and finite.
	ErrInvalidPrice = errors.New("source: invalid close price")
)

// Source returns a time-ordered close-price series for a symbol.
type Source interface {
	Prices(ctx context.Context, symbol string) ([]domain.PricePoint, error)
}

// normalize sorts points by date and rejects unusable closes.
func normalize(symbol string, points []domain.PricePoint) ([]domain.PricePoint, error) {
	for _, p := range points {
		if p.Close <= 0 || math.IsNaN(p.Close) || math.IsInf(p.Close, 0) {
			return nil, fmt.Errorf("%s at %s: %v: %w", symbol, p.Date.Format("2006-01-02"), p.Close, ErrInvalidPrice)
		}
	}
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Date.Before(points[j].Date)
	})
	return points, nil
}

// ---------------------------------------------------------------------------
// MemorySource
// ---------------------------------------------------------------------------

// MemorySource serves series held in memory. It is safe for concurrent use.
type MemorySource struct {
	mu     sync.RWMutex
	series map[string][]domain.PricePoint
}

// NewMemorySource returns an empty MemorySource.
func NewMemorySource() *MemorySource {
	return &MemorySource{series: make(map[string][]domain.PricePoint)}
}

// Set stores a copy of points under symbol, replacing any previous series.
func (m *MemorySource) Set(symbol string, points []domain.PricePoint) {
	cp := make([]domain.PricePoint, len(points))
	copy(cp, points)
	m.mu.Lock()
	m.series[strings.ToUpper(symbol)] = cp
	m.mu.Unlock()
}

// Prices returns a copy of the series stored for symbol.
func (m *MemorySource) Prices(ctx context.Context, symbol string) ([]domain.PricePoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	points, ok := m.series[strings.ToUpper(symbol)]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w", symbol, ErrSymbolNotFound)
	}
	cp := make([]domain.PricePoint, len(points))
	copy(cp, points)
	return normalize(symbol, cp)
}
