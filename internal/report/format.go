package report

import (
	"fmt"
	"math"
	"strings"
)

// FormatPrice formats a price with comma separators and two decimals.
func FormatPrice(v float64) string {
	if math.IsNaN(v) {
		return "-"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	s := fmt.Sprintf("%.2f", v)
	whole, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	start := len(whole) % 3
	if start > 0 {
		b.WriteString(whole[:start])
	}
	for i := start; i < len(whole); i += 3 {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(whole[i : i+3])
	}
	b.WriteByte('.')
	b.WriteString(frac)
	return b.String()
}

// FormatPercent formats a fractional value as a signed percentage.
func FormatPercent(v float64) string {
	if math.IsNaN(v) {
		return "-"
	}
	return fmt.Sprintf("%+.2f%%", v*100)
}

// FormatScore formats a Sharpe ratio, showing NaN as "n/a".
func FormatScore(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "n/a"
	}
	return fmt.Sprintf("%.4f", v)
}
