package market

import (
	"errors"
	"testing"
)

func validSeries() []Candle {
	return []Candle{
		{OpenTime: 1000, Open: 100, High: 105, Low: 98, Close: 103, Volume: 10, CloseTime: 1999},
		{OpenTime: 2000, Open: 103, High: 107, Low: 101, Close: 106, Volume: 12, CloseTime: 2999},
		{OpenTime: 3000, Open: 106, High: 110, Low: 104, Close: 108, Volume: 9, CloseTime: 3999},
	}
}

// TestValidateAcceptsWellFormedSeries covers the happy path and the empty
// series, which means "no data" rather than an error
func TestValidateAcceptsWellFormedSeries(t *testing.T) {
	if err := Validate("BTCUSDT", validSeries()); err != nil {
		t.Errorf("valid series rejected: %v", err)
	}
	if err := Validate("BTCUSDT", nil); err != nil {
		t.Errorf("empty series rejected: %v", err)
	}
}

// TestValidateRejectsMalformedSeries checks each sanity guarantee and that
// failures surface as UpstreamDataError
func TestValidateRejectsMalformedSeries(t *testing.T) {
	cases := []struct {
		name   string
		mutate func([]Candle)
	}{
		{"non-positive close", func(c []Candle) { c[1].Close = 0 }},
		{"negative low", func(c []Candle) { c[2].Low = -1 }},
		{"high below low", func(c []Candle) { c[1].High = 90 }},
		{"duplicate open time", func(c []Candle) { c[2].OpenTime = c[1].OpenTime }},
		{"decreasing open time", func(c []Candle) { c[2].OpenTime = 500 }},
	}

	for _, tc := range cases {
		candles := validSeries()
		tc.mutate(candles)

		err := Validate("ETHUSDT", candles)
		if err == nil {
			t.Errorf("%s: expected an error", tc.name)
			continue
		}
		var upstream *UpstreamDataError
		if !errors.As(err, &upstream) {
			t.Errorf("%s: error %T is not an UpstreamDataError", tc.name, err)
			continue
		}
		if upstream.Symbol != "ETHUSDT" {
			t.Errorf("%s: error symbol = %q", tc.name, upstream.Symbol)
		}
	}
}

// TestCloses checks close-series extraction preserves order
func TestCloses(t *testing.T) {
	closes := Closes(validSeries())
	want := []float64{103, 106, 108}
	if len(closes) != len(want) {
		t.Fatalf("got %d closes, want %d", len(closes), len(want))
	}
	for i := range want {
		if closes[i] != want[i] {
			t.Errorf("closes[%d] = %v, want %v", i, closes[i], want[i])
		}
	}
	if got := Closes(nil); len(got) != 0 {
		t.Errorf("nil input produced %v", got)
	}
}
