package kellyq

import (
	"math"
	"time"
)

// Values that are undefined (a Sharpe ratio of a flat series, a moving
// average without enough history) travel as JSON null.

// ScoresResponse is returned by GET /api/scores and POST /api/run.
type ScoresResponse struct {
	RunID   string              `json:"run_id"`
	Started time.Time           `json:"started"`
	Window  int                 `json:"window"`
	Scores  map[string]*float64 `json:"scores"`
	Skipped map[string]int      `json:"skipped,omitempty"`
	Failed  map[string]string   `json:"failed,omitempty"`
}

// CurveRow is one row of a symbol's growth table.
type CurveRow struct {
	Date     time.Time `json:"date"`
	Close    float64   `json:"close"`
	Growth   float64   `json:"kelly_growth"`
	Fraction float64   `json:"fraction"`
	MAShort  *float64  `json:"ma_short"`
	MALong   *float64  `json:"ma_long"`
}

// CurveResponse is returned by GET /api/curves/{symbol}.
type CurveResponse struct {
	Symbol  string     `json:"symbol"`
	ShortMA int        `json:"short_ma"`
	LongMA  int        `json:"long_ma"`
	Rows    []CurveRow `json:"rows"`
}

// Summary holds headline statistics of a symbol's table.
type Summary struct {
	Symbol      string   `json:"symbol"`
	Rows        int      `json:"rows"`
	KellyMean   *float64 `json:"kelly_mean"`
	CloseMean   *float64 `json:"close_mean"`
	KellyLow    *float64 `json:"kelly_low"`
	KellyHigh   *float64 `json:"kelly_high"`
	LastKelly   *float64 `json:"last_kelly"`
	LastClose   *float64 `json:"last_close"`
	Correlation *float64 `json:"correlation"`
}

// SummaryResponse is returned by GET /api/summary.
type SummaryResponse struct {
	RunID     string    `json:"run_id"`
	Summaries []Summary `json:"summaries"`
}

// Run describes one persisted run.
type Run struct {
	ID       string              `json:"id"`
	Started  time.Time           `json:"started"`
	Finished time.Time           `json:"finished"`
	Window   int                 `json:"window"`
	Symbols  []string            `json:"symbols"`
	Failed   []string            `json:"failed,omitempty"`
	Scores   map[string]*float64 `json:"scores"`
}

// RunsResponse is returned by GET /api/runs.
type RunsResponse struct {
	Runs []Run `json:"runs"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Float returns a pointer to v, or nil when v is NaN or infinite.
func Float(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// Value dereferences p, mapping nil to NaN.
func Value(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}

// Floats converts a score map to its wire form.
func Floats(m map[string]float64) map[string]*float64 {
	out := make(map[string]*float64, len(m))
	for k, v := range m {
		out[k] = Float(v)
	}
	return out
}
