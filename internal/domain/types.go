// Package domain holds the plain value types shared across kellyq: bars
// loaded from storage, price and return observations, and the rows of a
// leveraged growth curve.
package domain

import "time"

// Market identifies the exchange group a symbol trades on.
type Market string

const (
	MarketUS     Market = "us"
	MarketCN     Market = "cn"
	MarketCrypto Market = "crypto"
)

// Bar is a single OHLCV bar as stored on disk.
type Bar struct {
	Symbol     string
	Timestamp  time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     int64
	TradeCount int64
	VWAP       float64
}

// PricePoint is one (date, close) observation of an instrument.
type PricePoint struct {
	Date  time.Time
	Close float64
}

// ReturnPoint is the periodic return realised at Date relative to the
// previous observation.
type ReturnPoint struct {
	Date   time.Time
	Return float64
}

// CurvePoint is one row of a per-instrument output table.
type CurvePoint struct {
	Date   time.Time
	Close  float64
	Growth float64 // cumulative growth, 0 == flat
}

// PricesFromBars projects bars onto their closes, preserving order.
func PricesFromBars(bars []Bar) []PricePoint {
	out := make([]PricePoint, len(bars))
	for i, b := range bars {
		out[i] = PricePoint{Date: b.Timestamp, Close: b.Close}
	}
	return out
}
