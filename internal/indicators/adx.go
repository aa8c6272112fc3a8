package indicators

import (
	"math"

	"futures-signal-bot/internal/market"
)

// ADXResult holds the Average Directional Index series with its directional
// components, all bounded to [0,100]
type ADXResult struct {
	ADX     []float64
	PlusDI  []float64
	MinusDI []float64
}

// ADX calculates the Average Directional Index with Wilder smoothing of the
// directional movement. ADX values become defined after 2*period bars.
func ADX(candles []market.Candle, period int) *ADXResult {
	n := len(candles)
	result := &ADXResult{
		ADX:     nanSeries(n),
		PlusDI:  nanSeries(n),
		MinusDI: nanSeries(n),
	}
	if period <= 0 || n < 2*period {
		return result
	}

	tr := TrueRange(candles)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	for i := 1; i < n; i++ {
		upMove := candles[i].High - candles[i-1].High
		downMove := candles[i-1].Low - candles[i].Low
		if upMove > downMove && upMove > 0 {
			plusDM[i] = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM[i] = downMove
		}
	}

	// Initial Wilder sums over the first period
	var smTR, smPlusDM, smMinusDM float64
	for i := 1; i <= period; i++ {
		smTR += tr[i]
		smPlusDM += plusDM[i]
		smMinusDM += minusDM[i]
	}

	dx := nanSeries(n)
	for i := period; i < n; i++ {
		if i > period {
			smTR = smTR - smTR/float64(period) + tr[i]
			smPlusDM = smPlusDM - smPlusDM/float64(period) + plusDM[i]
			smMinusDM = smMinusDM - smMinusDM/float64(period) + minusDM[i]
		}

		if smTR == 0 {
			result.PlusDI[i] = 0
			result.MinusDI[i] = 0
			dx[i] = 0
			continue
		}

		plusDI := 100 * smPlusDM / smTR
		minusDI := 100 * smMinusDM / smTR
		result.PlusDI[i] = plusDI
		result.MinusDI[i] = minusDI

		diSum := plusDI + minusDI
		if diSum == 0 {
			dx[i] = 0
		} else {
			dx[i] = 100 * math.Abs(plusDI-minusDI) / diSum
		}
	}

	// ADX is the Wilder average of DX
	sum := 0.0
	for i := period; i < 2*period; i++ {
		sum += dx[i]
	}
	adx := sum / float64(period)
	result.ADX[2*period-1] = adx

	for i := 2 * period; i < n; i++ {
		adx = (adx*float64(period-1) + dx[i]) / float64(period)
		result.ADX[i] = adx
	}
	return result
}
