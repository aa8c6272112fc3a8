package indicators

import (
	"futures-signal-bot/internal/market"
)

// Supertrend direction values
const (
	DirectionUp   = 1
	DirectionDown = -1
)

// SupertrendResult holds Supertrend line values and direction per bar.
// Direction is +1 when price trades above the line (bullish), -1 below.
type SupertrendResult struct {
	Value     []float64
	Direction []int
}

// Supertrend calculates the Supertrend indicator from ATR-based bands.
// The direction flips when the close crosses the active band.
func Supertrend(candles []market.Candle, period int, multiplier float64) *SupertrendResult {
	n := len(candles)
	result := &SupertrendResult{
		Value:     nanSeries(n),
		Direction: make([]int, n),
	}
	if period <= 0 || n < period+1 {
		return result
	}

	atr := ATR(candles, period)

	finalUpper := nanSeries(n)
	finalLower := nanSeries(n)

	for i := period; i < n; i++ {
		mid := (candles[i].High + candles[i].Low) / 2
		basicUpper := mid + multiplier*atr[i]
		basicLower := mid - multiplier*atr[i]

		// Band ratcheting: bands only tighten until price closes through them
		if i == period || !Defined(finalUpper[i-1]) {
			finalUpper[i] = basicUpper
			finalLower[i] = basicLower
		} else {
			if basicUpper < finalUpper[i-1] || candles[i-1].Close > finalUpper[i-1] {
				finalUpper[i] = basicUpper
			} else {
				finalUpper[i] = finalUpper[i-1]
			}
			if basicLower > finalLower[i-1] || candles[i-1].Close < finalLower[i-1] {
				finalLower[i] = basicLower
			} else {
				finalLower[i] = finalLower[i-1]
			}
		}

		prevDir := DirectionDown
		if i > period {
			prevDir = result.Direction[i-1]
		}

		dir := prevDir
		if prevDir == DirectionDown && candles[i].Close > finalUpper[i] {
			dir = DirectionUp
		} else if prevDir == DirectionUp && candles[i].Close < finalLower[i] {
			dir = DirectionDown
		}

		result.Direction[i] = dir
		if dir == DirectionUp {
			result.Value[i] = finalLower[i]
		} else {
			result.Value[i] = finalUpper[i]
		}
	}
	return result
}
