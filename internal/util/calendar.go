package util

import (
	"sort"
	"time"

	"kellyq/internal/domain"
)

// DailyLast buckets prices by UTC calendar day and keeps the last close
// observed in each day. The result is sorted with strictly increasing
// dates, each set to midnight UTC. Days without observations are absent.
func DailyLast(prices []domain.PricePoint) []domain.PricePoint {
	if len(prices) == 0 {
		return nil
	}

	sorted := make([]domain.PricePoint, len(prices))
	copy(sorted, prices)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	out := make([]domain.PricePoint, 0, len(sorted))
	for _, p := range sorted {
		day := TruncateDay(p.Date)
		if n := len(out); n > 0 && out[n-1].Date.Equal(day) {
			out[n-1].Close = p.Close
			continue
		}
		out = append(out, domain.PricePoint{Date: day, Close: p.Close})
	}
	return out
}

// TruncateDay returns midnight UTC of t's UTC calendar day.
func TruncateDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
