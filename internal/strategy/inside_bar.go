package strategy

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"futures-signal-bot/internal/indicators"
	"futures-signal-bot/internal/market"
)

// InsideBarConfig configures the InsideBar+ATR strategy
type InsideBarConfig struct {
	Indicators        indicators.Config
	TakeProfitATRMult float64 // target distance from the breakout level
	StopLossATRMult   float64 // stop distance from the breakout level
}

// DefaultInsideBarConfig returns the standard parameter set
func DefaultInsideBarConfig() InsideBarConfig {
	return InsideBarConfig{
		Indicators:        indicators.DefaultConfig(),
		TakeProfitATRMult: 1.0,
		StopLossATRMult:   0.5,
	}
}

// InsideBar trades breakouts from low-volatility inside-bar consolidations.
// An inside bar during a bottom-percentile ATR squeeze arms the mother bar's
// high and low as breakout levels; the signal fires on the next bar when it
// closes through either level.
type InsideBar struct {
	config InsideBarConfig
}

// NewInsideBar creates the strategy with the given configuration
func NewInsideBar(config InsideBarConfig) *InsideBar {
	return &InsideBar{config: config}
}

func (s *InsideBar) Name() string {
	return "inside_bar_atr"
}

// GenerateSignals scans for armed inside-bar setups followed by a breakout bar
func (s *InsideBar) GenerateSignals(symbol, timeframe string, candles []market.Candle) ([]Signal, error) {
	cfg := s.config.Indicators
	if len(candles) < cfg.ATRPeriod+2 {
		return nil, nil
	}

	frame := indicators.NewFrame(candles, cfg)

	var signals []Signal
	for i := 1; i < frame.Len()-1; i++ {
		// Setup bar: inside bar during a volatility squeeze
		if !frame.InsideBar[i] || !frame.LowVol[i] {
			continue
		}

		atr := frame.ATRValues[i]
		if !indicators.Defined(atr) || atr <= 0 {
			continue
		}

		mother := candles[i-1]
		breakout := candles[i+1]

		signal := Signal{
			ID:         uuid.NewString(),
			Symbol:     symbol,
			Timeframe:  timeframe,
			StrategyID: s.Name(),
			ATR:        atr,
			Timestamp:  time.UnixMilli(breakout.CloseTime),
			EntryPrice: breakout.Close,
		}

		switch {
		case breakout.Close > mother.High:
			signal.Direction = DirectionLong
			signal.ProfitTarget = mother.High + s.config.TakeProfitATRMult*atr
			signal.StopLoss = mother.High - s.config.StopLossATRMult*atr
			signal.Reason = fmt.Sprintf("breakout above mother bar high %.4f after squeeze", mother.High)
		case breakout.Close < mother.Low:
			signal.Direction = DirectionShort
			signal.ProfitTarget = mother.Low - s.config.TakeProfitATRMult*atr
			signal.StopLoss = mother.Low + s.config.StopLossATRMult*atr
			signal.Reason = fmt.Sprintf("breakdown below mother bar low %.4f after squeeze", mother.Low)
		default:
			continue
		}

		signal.Confidence = s.confidence(frame, i, mother)

		if !signal.Valid() {
			continue
		}
		signals = append(signals, signal)
	}

	return signals, nil
}

// confidence scores a breakout. Base 88 plus hand-tuned additive tiers,
// capped at 100. The tier breakpoints are pinned by tests; do not re-derive.
func (s *InsideBar) confidence(frame *indicators.Frame, setupIdx int, mother market.Candle) float64 {
	confidence := 88.0
	breakoutIdx := setupIdx + 1

	// Volatility depth: how compressed ATR is versus its recent average (+0..+3)
	atr := frame.ATRValues[setupIdx]
	if avg := trailingAverage(frame.ATRValues, setupIdx, s.config.Indicators.VolatilityLookback); avg > 0 {
		ratio := atr / avg
		switch {
		case ratio <= 0.5:
			confidence += 3
		case ratio <= 0.65:
			confidence += 2
		case ratio <= 0.8:
			confidence += 1
		}
	}

	// Inside-bar size ratio: tighter coils break harder (+0..+3)
	motherRange := mother.High - mother.Low
	insideRange := frame.Candles[setupIdx].High - frame.Candles[setupIdx].Low
	if motherRange > 0 {
		ratio := insideRange / motherRange
		switch {
		case ratio <= 0.3:
			confidence += 3
		case ratio <= 0.5:
			confidence += 2
		case ratio <= 0.7:
			confidence += 1
		}
	}

	// Breakout strength: close distance past the level, in ATRs (+0..+4)
	if atr > 0 {
		breakoutClose := frame.Candles[breakoutIdx].Close
		var penetration float64
		if breakoutClose > mother.High {
			penetration = (breakoutClose - mother.High) / atr
		} else {
			penetration = (mother.Low - breakoutClose) / atr
		}
		switch {
		case penetration >= 1.0:
			confidence += 4
		case penetration >= 0.5:
			confidence += 3
		case penetration >= 0.25:
			confidence += 2
		case penetration > 0:
			confidence += 1
		}
	}

	// Volume confirmation on the breakout bar (+0..+2)
	avgVol := frame.VolumeAvg[breakoutIdx]
	if indicators.Defined(avgVol) && avgVol > 0 {
		ratio := frame.Candles[breakoutIdx].Volume / avgVol
		switch {
		case ratio >= 2:
			confidence += 2
		case ratio >= 1.3:
			confidence += 1
		}
	}

	return capConfidence(confidence)
}

// trailingAverage averages the defined values in (idx-lookback, idx]
func trailingAverage(values []float64, idx, lookback int) float64 {
	start := idx - lookback + 1
	if start < 0 {
		start = 0
	}
	sum, count := 0.0, 0
	for i := start; i <= idx; i++ {
		if indicators.Defined(values[i]) {
			sum += values[i]
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}
