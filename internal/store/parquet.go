package store

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"kellyq/internal/domain"
)

var (
	_ BarStore   = (*ParquetStore)(nil)
	_ CurveStore = (*ParquetStore)(nil)
)

// ParquetStore keeps daily bars and computed curves as Parquet files:
//
//	<DataDir>/<market>/daily/<SYMBOL>/<YYYY>.parquet
//	<DataDir>/kelly/<SYMBOL>.parquet
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a ParquetStore rooted at dataDir.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// BarRecord is the on-disk row of a daily bar file.
type BarRecord struct {
	Symbol     string  `parquet:"symbol"`
	Timestamp  int64   `parquet:"timestamp,timestamp(millisecond)"`
	Open       float64 `parquet:"open"`
	High       float64 `parquet:"high"`
	Low        float64 `parquet:"low"`
	Close      float64 `parquet:"close"`
	Volume     int64   `parquet:"volume"`
	TradeCount int64   `parquet:"trade_count"`
	VWAP       float64 `parquet:"vwap"`
}

func barRecord(b domain.Bar) BarRecord {
	return BarRecord{
		Symbol:     strings.ToUpper(b.Symbol),
		Timestamp:  b.Timestamp.UnixMilli(),
		Open:       b.Open,
		High:       b.High,
		Low:        b.Low,
		Close:      b.Close,
		Volume:     b.Volume,
		TradeCount: b.TradeCount,
		VWAP:       b.VWAP,
	}
}

func (r BarRecord) bar() domain.Bar {
	return domain.Bar{
		Symbol:     r.Symbol,
		Timestamp:  time.UnixMilli(r.Timestamp).UTC(),
		Open:       r.Open,
		High:       r.High,
		Low:        r.Low,
		Close:      r.Close,
		Volume:     r.Volume,
		TradeCount: r.TradeCount,
		VWAP:       r.VWAP,
	}
}

// CurveRecord is the on-disk row of a symbol's Kelly table. Moving
// averages are NaN until enough growth values exist.
type CurveRecord struct {
	Symbol    string  `parquet:"symbol"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"`
	Close     float64 `parquet:"close"`
	Growth    float64 `parquet:"kelly_growth"`
	Fraction  float64 `parquet:"fraction"`
	MAShort   float64 `parquet:"ma_short"`
	MALong    float64 `parquet:"ma_long"`
}

// WriteBars merges bars into the "us" market. Use WriteBarsForMarket for
// other markets.
func (s *ParquetStore) WriteBars(_ context.Context, bars []domain.Bar) error {
	return s.WriteBarsForMarket(bars, string(domain.MarketUS))
}

// WriteBarsForMarket merges bars into the per-symbol, per-year files of
// market. A bar with the same symbol and timestamp as a stored one
// replaces it.
func (s *ParquetStore) WriteBarsForMarket(bars []domain.Bar, market string) error {
	type fileKey struct {
		symbol string
		year   int
	}
	groups := make(map[fileKey][]BarRecord)
	for _, b := range bars {
		rec := barRecord(b)
		k := fileKey{rec.Symbol, b.Timestamp.UTC().Year()}
		groups[k] = append(groups[k], rec)
	}

	for k, incoming := range groups {
		path := s.barPath(k.symbol, market, k.year)
		existing, err := readIfExists[BarRecord](path)
		if err != nil {
			return fmt.Errorf("reading bars for %s/%d: %w", k.symbol, k.year, err)
		}
		if err := writeAtomic(path, mergeBarRecords(existing, incoming)); err != nil {
			return fmt.Errorf("writing bars for %s/%d: %w", k.symbol, k.year, err)
		}
	}
	return nil
}

// ReadBars returns the bars of symbol with start <= timestamp <= end, in
// timestamp order. Only year files that exist are opened.
func (s *ParquetStore) ReadBars(ctx context.Context, symbol string, market string, start, end time.Time) ([]domain.Bar, error) {
	years, err := s.barYears(symbol, market)
	if err != nil {
		return nil, err
	}
	lo, hi := start.UnixMilli(), end.UnixMilli()

	var bars []domain.Bar
	for _, year := range years {
		if year < start.UTC().Year() || year > end.UTC().Year() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		records, err := parquet.ReadFile[BarRecord](s.barPath(symbol, market, year))
		if err != nil {
			return nil, fmt.Errorf("reading bars for %s/%d: %w", symbol, year, err)
		}
		for _, r := range records {
			if r.Timestamp >= lo && r.Timestamp <= hi {
				bars = append(bars, r.bar())
			}
		}
	}
	slices.SortStableFunc(bars, func(a, b domain.Bar) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return bars, nil
}

// ListSymbols lists the symbols with bar data in market.
func (s *ParquetStore) ListSymbols(_ context.Context, market string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.DataDir, market, "daily"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var symbols []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			symbols = append(symbols, e.Name())
		}
	}
	slices.Sort(symbols)
	return symbols, nil
}

// WriteCurve replaces the curve file for symbol. An empty curve still
// produces a file so readers can tell "computed, nothing to show" from
// "never computed".
func (s *ParquetStore) WriteCurve(_ context.Context, symbol string, rows []CurveRecord) error {
	if rows == nil {
		rows = []CurveRecord{}
	}
	if err := writeAtomic(s.curvePath(symbol), rows); err != nil {
		return fmt.Errorf("writing curve for %s: %w", symbol, err)
	}
	return nil
}

// ReadCurve reads the curve file for symbol, or returns ErrNotFound.
func (s *ParquetStore) ReadCurve(_ context.Context, symbol string) ([]CurveRecord, error) {
	path := s.curvePath(symbol)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("curve for %s: %w", symbol, ErrNotFound)
	}
	rows, err := parquet.ReadFile[CurveRecord](path)
	if err != nil {
		return nil, fmt.Errorf("reading curve for %s: %w", symbol, err)
	}
	return rows, nil
}

func (s *ParquetStore) barPath(symbol, market string, year int) string {
	return filepath.Join(s.DataDir, market, "daily", strings.ToUpper(symbol), strconv.Itoa(year)+".parquet")
}

func (s *ParquetStore) curvePath(symbol string) string {
	return filepath.Join(s.DataDir, "kelly", strings.ToUpper(symbol)+".parquet")
}

// barYears returns the sorted years that have a bar file for symbol.
func (s *ParquetStore) barYears(symbol, market string) ([]int, error) {
	dir := filepath.Dir(s.barPath(symbol, market, 0))
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var years []int
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), ".parquet")
		if !ok || e.IsDir() {
			continue
		}
		if y, err := strconv.Atoi(name); err == nil {
			years = append(years, y)
		}
	}
	slices.Sort(years)
	return years, nil
}

// writeAtomic writes records to a temporary file next to path and renames
// it into place, so concurrent readers never see a partial file.
func writeAtomic[T any](path string, records []T) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := parquet.Write(tmp, records); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func readIfExists[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return rows, err
}

// mergeBarRecords deduplicates by (symbol, timestamp) with incoming rows
// winning, and returns the result in timestamp order.
func mergeBarRecords(existing, incoming []BarRecord) []BarRecord {
	type rowKey struct {
		symbol string
		ts     int64
	}
	byKey := make(map[rowKey]BarRecord, len(existing)+len(incoming))
	for _, rows := range [][]BarRecord{existing, incoming} {
		for _, r := range rows {
			byKey[rowKey{r.Symbol, r.Timestamp}] = r
		}
	}

	merged := make([]BarRecord, 0, len(byKey))
	for _, r := range byKey {
		merged = append(merged, r)
	}
	slices.SortFunc(merged, func(a, b BarRecord) int {
		if c := cmp.Compare(a.Timestamp, b.Timestamp); c != 0 {
			return c
		}
		return strings.Compare(a.Symbol, b.Symbol)
	})
	return merged
}
