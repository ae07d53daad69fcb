package domain

import (
	"testing"
	"time"
)

func TestTypesExist(t *testing.T) {
	bar := Bar{}
	if bar.Symbol != "" {
		t.Error("expected empty Symbol for zero-value Bar")
	}
	if !bar.Timestamp.IsZero() {
		t.Error("expected zero Timestamp for zero-value Bar")
	}
	if bar.Open != 0 || bar.High != 0 || bar.Low != 0 || bar.Close != 0 {
		t.Error("expected zero OHLC values for zero-value Bar")
	}

	pt := CurvePoint{}
	if pt.Growth != 0 || pt.Close != 0 {
		t.Error("expected zero Growth/Close for zero-value CurvePoint")
	}

	if MarketUS != "us" || MarketCN != "cn" || MarketCrypto != "crypto" {
		t.Error("Market constants have unexpected values")
	}
}

func TestPricesFromBars(t *testing.T) {
	d1 := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	d2 := d1.AddDate(0, 0, 1)
	bars := []Bar{
		{Symbol: "ETH", Timestamp: d1, Open: 1, Close: 2200.5},
		{Symbol: "ETH", Timestamp: d2, Open: 1, Close: 2250.0},
	}

	got := PricesFromBars(bars)
	if len(got) != 2 {
		t.Fatalf("PricesFromBars returned %d points, want 2", len(got))
	}
	if !got[0].Date.Equal(d1) || got[0].Close != 2200.5 {
		t.Errorf("first point = %+v, want {%v 2200.5}", got[0], d1)
	}
	if !got[1].Date.Equal(d2) || got[1].Close != 2250.0 {
		t.Errorf("second point = %+v, want {%v 2250}", got[1], d2)
	}
}
