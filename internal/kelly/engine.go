package kelly

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"kellyq/internal/domain"
)

// DefaultWindow is the number of trailing returns per estimate.
const DefaultWindow = 25

// ErrInvalidPrices is returned when a price series has a non-positive or
// non-finite close, or timestamps that are not strictly increasing.
var ErrInvalidPrices = errors.New("kelly: invalid price series")

// FractionPoint is the fraction estimated from the window ending at Date.
// It is applied to the return realised one period later.
type FractionPoint struct {
	Date     time.Time
	Mean     float64
	Std      float64
	Fraction float64
}

// Result is the output of one Engine.Run.
type Result struct {
	// Returns holds every periodic return derived from the prices.
	Returns []domain.ReturnPoint
	// Fractions holds one entry per solved window, in time order.
	Fractions []FractionPoint
	// Curve holds one row per return that had a fraction to apply.
	Curve []domain.CurvePoint
	// Applied holds the fraction used for each Curve row.
	Applied []float64
	// Leveraged holds fraction·return for each Curve row.
	Leveraged []float64
	// Skipped counts windows dropped because the optimizer failed.
	Skipped int
}

// Engine slides a fixed window over a return series, solves a Kelly
// fraction per window, and compounds the fractions into a growth curve.
type Engine struct {
	solver *Solver
	window int
	log    *slog.Logger
}

// NewEngine creates an Engine. A window below 2 falls back to DefaultWindow
// since a sample deviation needs two observations.
func NewEngine(solver *Solver, window int, log *slog.Logger) *Engine {
	if solver == nil {
		solver = NewSolver(DefaultSolverConfig())
	}
	if window < 2 {
		window = DefaultWindow
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		solver: solver,
		window: window,
		log:    log.With("component", "kelly-engine"),
	}
}

// Window returns the engine's window length.
func (e *Engine) Window() int { return e.window }

// Run computes the rolling fractions and growth curve for prices.
//
// Returns r[k] is dated at prices[k+1]. The fraction from the window ending
// at r[i] is applied to r[i+1], so the curve starts at r[window] and holds
// len(prices)-1-window rows. Short series yield an empty curve, not an
// error.
func (e *Engine) Run(prices []domain.PricePoint) (*Result, error) {
	returns, err := Returns(prices)
	if err != nil {
		return nil, err
	}

	res := &Result{Returns: returns}
	if len(returns) < e.window {
		return res, nil
	}

	values := make([]float64, len(returns))
	for i, r := range returns {
		values[i] = r.Return
	}

	// fractionAt[i] is the fraction from the window ending at return i.
	fractionAt := make([]float64, len(returns))
	for i := range fractionAt {
		fractionAt[i] = math.NaN()
	}

	for i := e.window - 1; i < len(returns); i++ {
		mean, std := stat.MeanStdDev(values[i-e.window+1:i+1], nil)
		f, err := e.solver.Solve(mean, std)
		if err != nil {
			if errors.Is(err, ErrNonconvergence) {
				e.log.Warn("skipping window", "end", returns[i].Date, "error", err)
				res.Skipped++
				continue
			}
			return nil, fmt.Errorf("window ending %s: %w", returns[i].Date.Format("2006-01-02"), err)
		}
		fractionAt[i] = f
		res.Fractions = append(res.Fractions, FractionPoint{
			Date:     returns[i].Date,
			Mean:     mean,
			Std:      std,
			Fraction: f,
		})
	}

	growth := 1.0
	for j := e.window; j < len(returns); j++ {
		f := fractionAt[j-1]
		if math.IsNaN(f) {
			continue
		}
		lev := f * values[j]
		growth *= 1 + lev
		res.Applied = append(res.Applied, f)
		res.Leveraged = append(res.Leveraged, lev)
		res.Curve = append(res.Curve, domain.CurvePoint{
			Date:   returns[j].Date,
			Close:  prices[j+1].Close,
			Growth: growth - 1,
		})
	}

	return res, nil
}

// Returns derives percentage-change returns from prices. The first price has
// no predecessor and yields no return.
func Returns(prices []domain.PricePoint) ([]domain.ReturnPoint, error) {
	for i, p := range prices {
		if !isFinite(p.Close) || p.Close <= 0 {
			return nil, fmt.Errorf("%w: close %v at %s", ErrInvalidPrices, p.Close, p.Date.Format("2006-01-02"))
		}
		if i > 0 && !p.Date.After(prices[i-1].Date) {
			return nil, fmt.Errorf("%w: %s does not follow %s", ErrInvalidPrices,
				p.Date.Format(time.RFC3339), prices[i-1].Date.Format(time.RFC3339))
		}
	}
	if len(prices) < 2 {
		return nil, nil
	}

	out := make([]domain.ReturnPoint, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		out[i-1] = domain.ReturnPoint{
			Date:   prices[i].Date,
			Return: (prices[i].Close - prices[i-1].Close) / prices[i-1].Close,
		}
	}
	return out, nil
}

// Dense lays curve out against prices, one value per price, with NaN where
// the curve has no row.
func Dense(prices []domain.PricePoint, curve []domain.CurvePoint) []float64 {
	byDate := make(map[int64]float64, len(curve))
	for _, c := range curve {
		byDate[c.Date.UnixNano()] = c.Growth
	}
	out := make([]float64, len(prices))
	for i, p := range prices {
		if g, ok := byDate[p.Date.UnixNano()]; ok {
			out[i] = g
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}
