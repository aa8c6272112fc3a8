package market

import (
	"fmt"
	"time"
)

// Candle represents a single OHLCV candlestick
type Candle struct {
	OpenTime  int64   `json:"openTime"`
	Open      float64 `json:"open,string"`
	High      float64 `json:"high,string"`
	Low       float64 `json:"low,string"`
	Close     float64 `json:"close,string"`
	Volume    float64 `json:"volume,string"`
	CloseTime int64   `json:"closeTime"`
}

// Time returns the candle open time as a time.Time
func (c Candle) Time() time.Time {
	return time.UnixMilli(c.OpenTime)
}

// Closes extracts the close series from a candle sequence
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// ErrUpstreamData indicates malformed or missing data from the market-data
// provider. The affected symbol is skipped for the cycle, never retried.
type UpstreamDataError struct {
	Symbol string
	Reason string
}

func (e *UpstreamDataError) Error() string {
	return fmt.Sprintf("upstream data error for %s: %s", e.Symbol, e.Reason)
}

// Validate checks a candle series for the ordering and sanity guarantees the
// rest of the pipeline depends on: strictly increasing open times and positive
// prices. An empty series is valid (means "no data").
func Validate(symbol string, candles []Candle) error {
	for i, c := range candles {
		if c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0 {
			return &UpstreamDataError{Symbol: symbol, Reason: fmt.Sprintf("non-positive price at index %d", i)}
		}
		if c.High < c.Low {
			return &UpstreamDataError{Symbol: symbol, Reason: fmt.Sprintf("high below low at index %d", i)}
		}
		if i > 0 && c.OpenTime <= candles[i-1].OpenTime {
			return &UpstreamDataError{Symbol: symbol, Reason: fmt.Sprintf("non-increasing open time at index %d", i)}
		}
	}
	return nil
}
