// Package kelly estimates growth-optimal leverage fractions under a Gaussian
// return model and applies them over a rolling window to build a leveraged
// growth curve.
package kelly

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/integrate/quad"
	"gonum.org/v1/gonum/stat/distuv"
)

var (
	// ErrInvalidDistribution is returned when a mean or standard deviation
	// is not a finite number, or the deviation is negative.
	ErrInvalidDistribution = errors.New("kelly: invalid distribution")

	// ErrNonconvergence is returned when the bounded search exhausts its
	// iteration budget or produces a NaN.
	ErrNonconvergence = errors.New("kelly: optimizer did not converge")
)

// SolverConfig holds the numerical parameters of a Solver.
type SolverConfig struct {
	MaxFraction float64 // upper bound of the search interval
	Tolerance   float64 // absolute tolerance on the fraction
	MaxIter     int     // objective evaluations allowed per solve
	Points      int     // Gauss-Legendre nodes for the expectation
	Sigmas      float64 // half-width of the integration interval in std units
}

// DefaultSolverConfig returns the configuration used throughout kellyq:
// fractions in [0, 2], ±3σ truncation.
func DefaultSolverConfig() SolverConfig {
	return SolverConfig{
		MaxFraction: 2.0,
		Tolerance:   1e-5,
		MaxIter:     500,
		Points:      64,
		Sigmas:      3,
	}
}

// Solver finds the fraction f in [0, MaxFraction] maximising
// E[log(1 + f·S)] for S ~ Normal(mean, std).
type Solver struct {
	cfg SolverConfig

	// integrate evaluates ∫ fn over [a, b]; swapped out in tests.
	integrate func(fn func(float64) float64, a, b float64) float64
}

// NewSolver creates a Solver. Zero fields in cfg take their defaults.
func NewSolver(cfg SolverConfig) *Solver {
	def := DefaultSolverConfig()
	if cfg.MaxFraction <= 0 {
		cfg.MaxFraction = def.MaxFraction
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = def.Tolerance
	}
	if cfg.MaxIter <= 0 {
		cfg.MaxIter = def.MaxIter
	}
	if cfg.Points <= 0 {
		cfg.Points = def.Points
	}
	if cfg.Sigmas <= 0 {
		cfg.Sigmas = def.Sigmas
	}

	s := &Solver{cfg: cfg}
	s.integrate = func(fn func(float64) float64, a, b float64) float64 {
		return quad.Fixed(fn, a, b, s.cfg.Points, nil, 0)
	}
	return s
}

// Config returns the solver's effective configuration.
func (s *Solver) Config() SolverConfig { return s.cfg }

// Solve returns the growth-optimal fraction for a Normal(mean, std) return.
//
// A zero std is degenerate: every outcome equals mean, so the fraction is
// MaxFraction when mean > 0 and 0 otherwise. A std too small to move the
// support off mean at float64 precision is treated the same way. When the
// objective has no interior maximum the better bound is returned.
func (s *Solver) Solve(mean, std float64) (float64, error) {
	if !isFinite(mean) || !isFinite(std) || std < 0 {
		return 0, fmt.Errorf("%w: mean=%v std=%v", ErrInvalidDistribution, mean, std)
	}

	k := s.cfg.Sigmas
	lo := mean - k*std
	hi := mean + k*std
	if std == 0 || lo == hi {
		if mean > 0 {
			return s.cfg.MaxFraction, nil
		}
		return 0, nil
	}

	upper := s.cfg.MaxFraction
	// 1 + f·s must stay positive across the support.
	if lo < 0 {
		if ruin := -1 / lo; ruin < upper {
			upper = ruin
		}
	}

	// Integrate in standard units so the density stays finite for any
	// representable std.
	growth := func(f float64) float64 {
		if f == 0 {
			return 0
		}
		return s.integrate(func(z float64) float64 {
			fx := f * (mean + std*z)
			if fx <= -1 {
				return math.Inf(-1)
			}
			return math.Log1p(fx) * distuv.UnitNormal.Prob(z)
		}, -k, k)
	}

	best, err := boundedMinimize(func(f float64) float64 { return -growth(f) }, 0, upper, s.cfg.Tolerance, s.cfg.MaxIter)
	if err != nil {
		return 0, err
	}

	gBest := growth(best)
	if g := growth(upper); g > gBest {
		best, gBest = upper, g
	}
	if growth(0) >= gBest {
		best = 0
	}
	return best, nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
