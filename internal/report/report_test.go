package report

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kellyq/internal/domain"
	"kellyq/internal/kelly"
)

func TestMovingAverage(t *testing.T) {
	got := MovingAverage([]float64{1, 2, 3, 4, 5}, 3)
	require.Len(t, got, 5)
	assert.True(t, math.IsNaN(got[0]))
	assert.True(t, math.IsNaN(got[1]))
	assert.InDelta(t, 2.0, got[2], 1e-12)
	assert.InDelta(t, 3.0, got[3], 1e-12)
	assert.InDelta(t, 4.0, got[4], 1e-12)

	for _, v := range MovingAverage([]float64{1, 2}, 5) {
		assert.True(t, math.IsNaN(v))
	}
	for _, v := range MovingAverage([]float64{1, 2}, 0) {
		assert.True(t, math.IsNaN(v))
	}
	assert.Equal(t, []float64{7, 8}, MovingAverage([]float64{7, 8}, 1))
}

func sampleResult(n int) *kelly.Result {
	res := &kelly.Result{}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		res.Curve = append(res.Curve, domain.CurvePoint{
			Date:   start.AddDate(0, 0, i),
			Close:  100 + float64(i),
			Growth: 0.01 * float64(i),
		})
		res.Applied = append(res.Applied, 0.5)
	}
	return res
}

func TestBuild(t *testing.T) {
	tbl := Build("eth", sampleResult(25), 0, 0)
	assert.Equal(t, "ETH", tbl.Symbol)
	assert.Equal(t, DefaultShortMA, tbl.ShortMA)
	assert.Equal(t, DefaultLongMA, tbl.LongMA)
	require.Len(t, tbl.Rows, 25)

	assert.True(t, math.IsNaN(tbl.Rows[8].MAShort))
	// Mean of growth 0.00..0.09.
	assert.InDelta(t, 0.045, tbl.Rows[9].MAShort, 1e-12)
	assert.True(t, math.IsNaN(tbl.Rows[18].MALong))
	assert.InDelta(t, 0.095, tbl.Rows[19].MALong, 1e-12)
	assert.Equal(t, 0.5, tbl.Rows[3].Fraction)

	empty := Build("BTC", &kelly.Result{}, 5, 10)
	assert.Empty(t, empty.Rows)
	assert.Empty(t, Build("BTC", nil, 5, 10).Rows)
}

func TestRecordsRoundTrip(t *testing.T) {
	tbl := Build("SOL", sampleResult(12), 3, 6)
	recs := tbl.Records()
	require.Len(t, recs, 12)
	assert.Equal(t, "SOL", recs[0].Symbol)
	assert.Equal(t, tbl.Rows[5].Date.UnixMilli(), recs[5].Timestamp)

	back := FromRecords("sol", recs, 3, 6)
	require.Len(t, back.Rows, 12)
	assert.True(t, back.Rows[5].Date.Equal(tbl.Rows[5].Date))
	assert.Equal(t, tbl.Rows[5].Growth, back.Rows[5].Growth)
	assert.Equal(t, tbl.Rows[5].MAShort, back.Rows[5].MAShort)
	assert.True(t, math.IsNaN(back.Rows[0].MALong))
}

func TestSummarize(t *testing.T) {
	s := Summarize(Build("ETH", sampleResult(5), 2, 3))
	assert.Equal(t, 5, s.Rows)
	assert.InDelta(t, 0.02, s.KellyMean, 1e-12)
	assert.InDelta(t, 102.0, s.CloseMean, 1e-12)
	assert.Equal(t, 0.0, s.KellyLow)
	assert.InDelta(t, 0.04, s.KellyHigh, 1e-12)
	assert.InDelta(t, 0.04, s.LastKelly, 1e-12)
	assert.Equal(t, 104.0, s.LastClose)
	// Growth and close are both linear in time.
	assert.InDelta(t, 1.0, s.Correlation, 1e-9)

	empty := Summarize(Table{Symbol: "BNB"})
	assert.Equal(t, 0, empty.Rows)
	assert.True(t, math.IsNaN(empty.KellyMean))
	assert.True(t, math.IsNaN(empty.LastClose))

	single := Summarize(Build("BNB", sampleResult(1), 2, 3))
	assert.True(t, math.IsNaN(single.Correlation))
	assert.Equal(t, 100.0, single.LastClose)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "1,234,567.89", FormatPrice(1234567.891))
	assert.Equal(t, "123.00", FormatPrice(123))
	assert.Equal(t, "-4,500.50", FormatPrice(-4500.5))
	assert.Equal(t, "-", FormatPrice(math.NaN()))

	assert.Equal(t, "+12.50%", FormatPercent(0.125))
	assert.Equal(t, "-3.00%", FormatPercent(-0.03))
	assert.Equal(t, "-", FormatPercent(math.NaN()))

	assert.Equal(t, "1.5870", FormatScore(1.587))
	assert.Equal(t, "n/a", FormatScore(math.NaN()))
}
