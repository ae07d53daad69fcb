// Package perf scores return series with risk-adjusted performance
// statistics.
package perf

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// TradingDaysPerYear is the default annualization factor for daily equity
// returns. Crypto series trade every calendar day and use 365.
const TradingDaysPerYear = 252

// Sharpe returns the annualized Sharpe ratio of returns:
//
//	mean(r - rf) / popstd(r - rf) * sqrt(annualization)
//
// riskFree must already be expressed per period; no unit conversion
// happens here. A zero deviation (including an empty or single-element
// series) yields NaN. The input is not modified.
func Sharpe(returns []float64, riskFree float64, annualization int) float64 {
	if len(returns) == 0 {
		return math.NaN()
	}

	excess := make([]float64, len(returns))
	copy(excess, returns)
	floats.AddConst(-riskFree, excess)

	// A constant series can still leave rounding residue in the deviation.
	if floats.Max(excess) == floats.Min(excess) {
		return math.NaN()
	}
	mean, std := stat.PopMeanStdDev(excess, nil)
	if std == 0 || math.IsNaN(std) {
		return math.NaN()
	}
	return mean / std * math.Sqrt(float64(annualization))
}

// PerPeriodRate converts an annual rate to the periodicity implied by
// annualization, by simple division.
func PerPeriodRate(annual float64, annualization int) float64 {
	if annualization <= 0 {
		return annual
	}
	return annual / float64(annualization)
}

// MaxDrawdown returns the largest peak-to-trough decline of an equity
// curve expressed as cumulative growth (0 == flat), as a positive fraction.
func MaxDrawdown(growth []float64) float64 {
	peak := 1.0
	maxDD := 0.0
	for _, g := range growth {
		level := 1 + g
		if level > peak {
			peak = level
		}
		if peak > 0 {
			if dd := (peak - level) / peak; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// TotalReturn returns the compounded return of a periodic return series.
func TotalReturn(returns []float64) float64 {
	level := 1.0
	for _, r := range returns {
		level *= 1 + r
	}
	return level - 1
}
