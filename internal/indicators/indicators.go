package indicators

import (
	"math"

	"futures-signal-bot/internal/market"
)

// All series functions return output the same length as their input, with
// math.NaN() filling the warm-up span before enough observations exist.
// The value at index i depends only on candles at indices <= i.

// Defined reports whether an indicator value is past its warm-up span
func Defined(v float64) bool {
	return !math.IsNaN(v)
}

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// ============================================================================
// MOVING AVERAGES
// ============================================================================

// SMA calculates a Simple Moving Average series
func SMA(values []float64, period int) []float64 {
	out := nanSeries(len(values))
	if period <= 0 || len(values) < period {
		return out
	}

	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// EMA calculates an Exponential Moving Average series, seeded with the SMA
// of the first period observations
func EMA(values []float64, period int) []float64 {
	out := nanSeries(len(values))
	if period <= 0 || len(values) < period {
		return out
	}

	sum := 0.0
	for i := 0; i < period; i++ {
		sum += values[i]
	}
	ema := sum / float64(period)
	out[period-1] = ema

	multiplier := 2.0 / float64(period+1)
	for i := period; i < len(values); i++ {
		ema = (values[i] * multiplier) + (ema * (1 - multiplier))
		out[i] = ema
	}
	return out
}

// ============================================================================
// RSI (Relative Strength Index)
// ============================================================================

// RSI calculates a Wilder-smoothed Relative Strength Index series, bounded
// to [0,100]
func RSI(closes []float64, period int) []float64 {
	out := nanSeries(len(closes))
	if period <= 0 || len(closes) < period+1 {
		return out
	}

	gains := 0.0
	losses := 0.0
	for i := 1; i <= period; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gains += change
		} else {
			losses += -change
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	out[period] = rsiValue(avgGain, avgLoss)

	for i := period + 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// ============================================================================
// ATR (Average True Range)
// ============================================================================

// TrueRange calculates the true range series; index 0 is the plain high-low
// range since no previous close exists
func TrueRange(candles []market.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		if i == 0 {
			out[i] = c.High - c.Low
			continue
		}
		prevClose := candles[i-1].Close
		out[i] = math.Max(
			c.High-c.Low,
			math.Max(
				math.Abs(c.High-prevClose),
				math.Abs(c.Low-prevClose),
			),
		)
	}
	return out
}

// ATR calculates a Wilder-smoothed Average True Range series
func ATR(candles []market.Candle, period int) []float64 {
	out := nanSeries(len(candles))
	if period <= 0 || len(candles) < period+1 {
		return out
	}

	tr := TrueRange(candles)

	sum := 0.0
	for i := 1; i <= period; i++ {
		sum += tr[i]
	}
	atr := sum / float64(period)
	out[period] = atr

	for i := period + 1; i < len(candles); i++ {
		atr = (atr*float64(period-1) + tr[i]) / float64(period)
		out[i] = atr
	}
	return out
}

// ============================================================================
// BOLLINGER BANDS
// ============================================================================

// BollingerResult holds Bollinger Band series
type BollingerResult struct {
	Upper    []float64
	Middle   []float64
	Lower    []float64
	Width    []float64 // (upper-lower)/middle
	PercentB []float64 // position of close within the band
}

// Bollinger calculates Bollinger Bands over the close series
func Bollinger(closes []float64, period int, stdDevMultiplier float64) *BollingerResult {
	n := len(closes)
	result := &BollingerResult{
		Upper:    nanSeries(n),
		Middle:   SMA(closes, period),
		Lower:    nanSeries(n),
		Width:    nanSeries(n),
		PercentB: nanSeries(n),
	}
	if period <= 0 || n < period {
		return result
	}

	for i := period - 1; i < n; i++ {
		middle := result.Middle[i]
		variance := 0.0
		for j := i - period + 1; j <= i; j++ {
			diff := closes[j] - middle
			variance += diff * diff
		}
		stdDev := math.Sqrt(variance / float64(period))

		upper := middle + stdDev*stdDevMultiplier
		lower := middle - stdDev*stdDevMultiplier
		result.Upper[i] = upper
		result.Lower[i] = lower
		if middle != 0 {
			result.Width[i] = (upper - lower) / middle
		}
		if upper != lower {
			result.PercentB[i] = (closes[i] - lower) / (upper - lower)
		}
	}
	return result
}

// ============================================================================
// INSIDE BARS
// ============================================================================

// InsideBars flags bar i when its range is fully contained by bar i-1
func InsideBars(candles []market.Candle) []bool {
	out := make([]bool, len(candles))
	for i := 1; i < len(candles); i++ {
		out[i] = candles[i].High <= candles[i-1].High && candles[i].Low >= candles[i-1].Low
	}
	return out
}

// ============================================================================
// VOLATILITY PERCENTILE
// ============================================================================

// LowVolatility flags bar i when its ATR ranks at or below the given
// percentile (0-100) of ATR over the trailing lookback window
func LowVolatility(atr []float64, lookback int, percentile float64) []bool {
	out := make([]bool, len(atr))
	if lookback <= 0 {
		return out
	}

	for i := range atr {
		if !Defined(atr[i]) {
			continue
		}
		start := i - lookback + 1
		if start < 0 {
			start = 0
		}

		// Rank the current ATR within the trailing window
		total := 0
		below := 0
		for j := start; j <= i; j++ {
			if !Defined(atr[j]) {
				continue
			}
			total++
			if atr[j] < atr[i] {
				below++
			}
		}
		if total < lookback/2 {
			continue
		}
		rank := float64(below) / float64(total) * 100
		out[i] = rank <= percentile
	}
	return out
}

// ============================================================================
// VOLUME
// ============================================================================

// VolumeSMA calculates the simple moving average of volume
func VolumeSMA(candles []market.Candle, period int) []float64 {
	volumes := make([]float64, len(candles))
	for i, c := range candles {
		volumes[i] = c.Volume
	}
	return SMA(volumes, period)
}
