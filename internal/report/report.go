// Package report turns engine output into per-symbol tables with moving
// averages and into the summary statistics shown by the CLI and API.
package report

import (
	"math"
	"strings"
	"time"

	"kellyq/internal/kelly"
	"kellyq/internal/store"
)

// Default moving-average periods.
const (
	DefaultShortMA = 10
	DefaultLongMA  = 20
)

// Row is one line of a symbol's output table.
type Row struct {
	Date     time.Time `json:"date"`
	Close    float64   `json:"close"`
	Growth   float64   `json:"kelly_growth"`
	Fraction float64   `json:"fraction"`
	MAShort  float64   `json:"ma_short"`
	MALong   float64   `json:"ma_long"`
}

// Table is the output table of a single symbol.
type Table struct {
	Symbol  string `json:"symbol"`
	ShortMA int    `json:"short_ma"`
	LongMA  int    `json:"long_ma"`
	Rows    []Row  `json:"rows"`
}

// Build lays res out as a table and attaches trailing moving averages of the
// growth column. Non-positive periods select the defaults.
func Build(symbol string, res *kelly.Result, shortMA, longMA int) Table {
	if shortMA <= 0 {
		shortMA = DefaultShortMA
	}
	if longMA <= 0 {
		longMA = DefaultLongMA
	}
	t := Table{Symbol: strings.ToUpper(symbol), ShortMA: shortMA, LongMA: longMA}
	if res == nil || len(res.Curve) == 0 {
		return t
	}

	growth := make([]float64, len(res.Curve))
	for i, c := range res.Curve {
		growth[i] = c.Growth
	}
	short := MovingAverage(growth, shortMA)
	long := MovingAverage(growth, longMA)

	t.Rows = make([]Row, len(res.Curve))
	for i, c := range res.Curve {
		t.Rows[i] = Row{
			Date:     c.Date,
			Close:    c.Close,
			Growth:   c.Growth,
			Fraction: res.Applied[i],
			MAShort:  short[i],
			MALong:   long[i],
		}
	}
	return t
}

// Growth returns the growth column.
func (t Table) Growth() []float64 {
	out := make([]float64, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r.Growth
	}
	return out
}

// Closes returns the close column.
func (t Table) Closes() []float64 {
	out := make([]float64, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r.Close
	}
	return out
}

// Records converts the table to its on-disk form.
func (t Table) Records() []store.CurveRecord {
	out := make([]store.CurveRecord, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = store.CurveRecord{
			Symbol:    t.Symbol,
			Timestamp: r.Date.UnixMilli(),
			Close:     r.Close,
			Growth:    r.Growth,
			Fraction:  r.Fraction,
			MAShort:   r.MAShort,
			MALong:    r.MALong,
		}
	}
	return out
}

// FromRecords rebuilds a table from stored rows.
func FromRecords(symbol string, recs []store.CurveRecord, shortMA, longMA int) Table {
	t := Table{Symbol: strings.ToUpper(symbol), ShortMA: shortMA, LongMA: longMA}
	t.Rows = make([]Row, len(recs))
	for i, r := range recs {
		t.Rows[i] = Row{
			Date:     time.UnixMilli(r.Timestamp).UTC(),
			Close:    r.Close,
			Growth:   r.Growth,
			Fraction: r.Fraction,
			MAShort:  r.MAShort,
			MALong:   r.MALong,
		}
	}
	return t
}

// MovingAverage returns the trailing simple moving average of values over n
// periods. The first n-1 entries are NaN.
func MovingAverage(values []float64, n int) []float64 {
	out := make([]float64, len(values))
	if n <= 0 {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}
	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= n {
			sum -= values[i-n]
		}
		if i < n-1 {
			out[i] = math.NaN()
			continue
		}
		out[i] = sum / float64(n)
	}
	return out
}
