package indicators

import (
	"futures-signal-bot/internal/market"
)

// Config holds the indicator parameter set used to build a Frame
type Config struct {
	SupertrendPeriod     int
	SupertrendMultiplier float64
	ADXPeriod            int
	ATRPeriod            int
	RSIPeriod            int
	EMAFastPeriod        int
	EMAMediumPeriod      int
	EMASlowPeriod        int
	BollingerPeriod      int
	BollingerStdDev      float64
	VolatilityLookback   int
	VolatilityPercentile float64
	VolumePeriod         int
}

// DefaultConfig returns the standard parameter set
func DefaultConfig() Config {
	return Config{
		SupertrendPeriod:     10,
		SupertrendMultiplier: 3.0,
		ADXPeriod:            14,
		ATRPeriod:            14,
		RSIPeriod:            14,
		EMAFastPeriod:        9,
		EMAMediumPeriod:      21,
		EMASlowPeriod:        50,
		BollingerPeriod:      20,
		BollingerStdDev:      2.0,
		VolatilityLookback:   50,
		VolatilityPercentile: 20,
		VolumePeriod:         20,
	}
}

// Frame is a candle series annotated with the full indicator column set.
// It is built once per evaluation from a candle sequence and discarded after
// signal extraction. Every column at index i depends only on candles <= i.
type Frame struct {
	Candles []market.Candle

	Supertrend *SupertrendResult
	ADX        *ADXResult
	ATRValues  []float64
	RSIValues  []float64

	EMAFast    []float64
	EMAMedium  []float64
	EMASlow    []float64
	EMAAligned []int // +1 bullish stack, -1 bearish stack, 0 mixed

	Bollinger *BollingerResult

	InsideBar []bool
	LowVol    []bool

	VolumeAvg []float64
}

// NewFrame computes the full indicator set over a candle sequence
func NewFrame(candles []market.Candle, cfg Config) *Frame {
	closes := market.Closes(candles)

	frame := &Frame{
		Candles:    candles,
		Supertrend: Supertrend(candles, cfg.SupertrendPeriod, cfg.SupertrendMultiplier),
		ADX:        ADX(candles, cfg.ADXPeriod),
		ATRValues:  ATR(candles, cfg.ATRPeriod),
		RSIValues:  RSI(closes, cfg.RSIPeriod),
		EMAFast:    EMA(closes, cfg.EMAFastPeriod),
		EMAMedium:  EMA(closes, cfg.EMAMediumPeriod),
		EMASlow:    EMA(closes, cfg.EMASlowPeriod),
		Bollinger:  Bollinger(closes, cfg.BollingerPeriod, cfg.BollingerStdDev),
		InsideBar:  InsideBars(candles),
		VolumeAvg:  VolumeSMA(candles, cfg.VolumePeriod),
	}

	frame.LowVol = LowVolatility(frame.ATRValues, cfg.VolatilityLookback, cfg.VolatilityPercentile)

	frame.EMAAligned = make([]int, len(candles))
	for i := range candles {
		fast, medium, slow := frame.EMAFast[i], frame.EMAMedium[i], frame.EMASlow[i]
		if !Defined(fast) || !Defined(medium) || !Defined(slow) {
			continue
		}
		switch {
		case fast > medium && medium > slow:
			frame.EMAAligned[i] = 1
		case fast < medium && medium < slow:
			frame.EMAAligned[i] = -1
		}
	}

	return frame
}

// Len returns the number of bars in the frame
func (f *Frame) Len() int {
	return len(f.Candles)
}
