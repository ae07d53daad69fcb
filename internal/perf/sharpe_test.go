package perf

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"
)

// alternating returns mean m and population deviation d exactly.
func alternating(m, d float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		if i%2 == 0 {
			out[i] = m + d
		} else {
			out[i] = m - d
		}
	}
	return out
}

func TestSharpeScenario(t *testing.T) {
	r := alternating(0.001, 0.01, 252)
	got := Sharpe(r, 0, TradingDaysPerYear)
	assert.InDelta(t, 0.1*math.Sqrt(252), got, 1e-9)
	assert.InDelta(t, 1.587, got, 1e-3)
}

func TestSharpeConstantIsNaN(t *testing.T) {
	for _, c := range []float64{0, 0.01, -0.003, 1.0 / 3} {
		r := make([]float64, 40)
		for i := range r {
			r[i] = c
		}
		assert.True(t, math.IsNaN(Sharpe(r, 0, 252)), "constant %v", c)
		assert.True(t, math.IsNaN(Sharpe(r, 0.0001, 252)), "constant %v with rf", c)
	}
}

func TestSharpeEmptyAndSingle(t *testing.T) {
	assert.True(t, math.IsNaN(Sharpe(nil, 0, 252)))
	assert.True(t, math.IsNaN(Sharpe([]float64{0.02}, 0, 252)))
}

func TestSharpeUnitAnnualization(t *testing.T) {
	r := []float64{0.01, -0.02, 0.015, 0.003, -0.007, 0.021}
	mean, std := stat.PopMeanStdDev(r, nil)
	assert.Equal(t, mean/std, Sharpe(r, 0, 1))
}

func TestSharpeRiskFree(t *testing.T) {
	r := alternating(0.002, 0.01, 100)
	rf := PerPeriodRate(0.0252, 252) // 0.0001 per day
	got := Sharpe(r, rf, 252)
	assert.InDelta(t, (0.002-0.0001)/0.01*math.Sqrt(252), got, 1e-9)
}

func TestSharpeDoesNotMutate(t *testing.T) {
	r := []float64{0.01, -0.02, 0.03}
	before := append([]float64(nil), r...)
	_ = Sharpe(r, 0.005, 252)
	require.Equal(t, before, r)
}

func TestPerPeriodRate(t *testing.T) {
	assert.InDelta(t, 0.001/365, PerPeriodRate(0.001, 365), 1e-18)
	assert.Equal(t, 0.05, PerPeriodRate(0.05, 0))
}

func TestMaxDrawdown(t *testing.T) {
	// 1.0 -> 1.2 -> 0.9 -> 1.1: worst decline is 1.2 -> 0.9.
	growth := []float64{0, 0.2, -0.1, 0.1}
	assert.InDelta(t, 0.25, MaxDrawdown(growth), 1e-12)
	assert.Equal(t, 0.0, MaxDrawdown(nil))
	assert.Equal(t, 0.0, MaxDrawdown([]float64{0.1, 0.2, 0.3}))
}

func TestTotalReturn(t *testing.T) {
	assert.InDelta(t, 1.1*0.9-1, TotalReturn([]float64{0.1, -0.1}), 1e-12)
	assert.Equal(t, 0.0, TotalReturn(nil))
}
