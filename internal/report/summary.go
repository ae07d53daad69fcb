package report

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary holds headline statistics of one symbol's table. All fields are
// NaN for an empty table.
type Summary struct {
	Symbol      string  `json:"symbol"`
	Rows        int     `json:"rows"`
	KellyMean   float64 `json:"kelly_mean"`
	CloseMean   float64 `json:"close_mean"`
	KellyLow    float64 `json:"kelly_low"`
	KellyHigh   float64 `json:"kelly_high"`
	LastKelly   float64 `json:"last_kelly"`
	LastClose   float64 `json:"last_close"`
	Correlation float64 `json:"correlation"` // Pearson, growth vs close
}

// Summarize computes the summary of t.
func Summarize(t Table) Summary {
	s := Summary{Symbol: t.Symbol, Rows: len(t.Rows)}
	if len(t.Rows) == 0 {
		nan := math.NaN()
		s.KellyMean, s.CloseMean, s.KellyLow, s.KellyHigh = nan, nan, nan, nan
		s.LastKelly, s.LastClose, s.Correlation = nan, nan, nan
		return s
	}

	growth := t.Growth()
	closes := t.Closes()
	s.KellyMean = stat.Mean(growth, nil)
	s.CloseMean = stat.Mean(closes, nil)
	s.KellyLow = floats.Min(growth)
	s.KellyHigh = floats.Max(growth)
	s.LastKelly = growth[len(growth)-1]
	s.LastClose = closes[len(closes)-1]

	s.Correlation = math.NaN()
	if len(growth) > 1 && s.KellyLow != s.KellyHigh && floats.Min(closes) != floats.Max(closes) {
		s.Correlation = stat.Correlation(growth, closes, nil)
	}
	return s
}
