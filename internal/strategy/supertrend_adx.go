package strategy

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"futures-signal-bot/internal/indicators"
	"futures-signal-bot/internal/market"
)

// SupertrendADXConfig configures the Supertrend+ADX strategy
type SupertrendADXConfig struct {
	Indicators        indicators.Config
	ADXThreshold      float64 // minimum ADX for a strong trend
	TakeProfitATRMult float64 // profit target distance in ATRs
}

// DefaultSupertrendADXConfig returns the standard parameter set
func DefaultSupertrendADXConfig() SupertrendADXConfig {
	return SupertrendADXConfig{
		Indicators:        indicators.DefaultConfig(),
		ADXThreshold:      25,
		TakeProfitATRMult: 1.5,
	}
}

// SupertrendADX triggers a directional signal on a Supertrend direction flip
// coincident with ADX above the strong-trend threshold. The stop-loss is the
// Supertrend line at the trigger bar, so risk tightens as the trend matures.
type SupertrendADX struct {
	config SupertrendADXConfig
}

// NewSupertrendADX creates the strategy with the given configuration
func NewSupertrendADX(config SupertrendADXConfig) *SupertrendADX {
	return &SupertrendADX{config: config}
}

func (s *SupertrendADX) Name() string {
	return "supertrend_adx"
}

// GenerateSignals scans the series for Supertrend flips backed by a strong ADX
func (s *SupertrendADX) GenerateSignals(symbol, timeframe string, candles []market.Candle) ([]Signal, error) {
	cfg := s.config.Indicators
	minBars := 2 * cfg.ADXPeriod
	if p := cfg.SupertrendPeriod + 1; p > minBars {
		minBars = p
	}
	if len(candles) < minBars+1 {
		return nil, nil
	}

	frame := indicators.NewFrame(candles, cfg)

	var signals []Signal
	for i := 1; i < frame.Len(); i++ {
		dir := frame.Supertrend.Direction[i]
		prevDir := frame.Supertrend.Direction[i-1]
		if dir == 0 || prevDir == 0 || dir == prevDir {
			continue
		}

		adx := frame.ADX.ADX[i]
		atr := frame.ATRValues[i]
		line := frame.Supertrend.Value[i]
		if !indicators.Defined(adx) || !indicators.Defined(atr) || !indicators.Defined(line) {
			continue
		}
		if adx < s.config.ADXThreshold {
			continue
		}

		entry := candles[i].Close
		signal := Signal{
			ID:         uuid.NewString(),
			Symbol:     symbol,
			Timeframe:  timeframe,
			StrategyID: s.Name(),
			ATR:        atr,
			StopLoss:   line,
			Timestamp:  time.UnixMilli(candles[i].CloseTime),
			EntryPrice: entry,
		}

		if dir == indicators.DirectionUp {
			signal.Direction = DirectionLong
			signal.ProfitTarget = entry + s.config.TakeProfitATRMult*atr
		} else {
			signal.Direction = DirectionShort
			signal.ProfitTarget = entry - s.config.TakeProfitATRMult*atr
		}

		signal.Confidence = s.confidence(frame, i)
		signal.Reason = fmt.Sprintf("supertrend flip %s with ADX %.1f", signal.Direction, adx)

		if !signal.Valid() {
			continue
		}
		signals = append(signals, signal)
	}

	return signals, nil
}

// confidence scores a trigger bar. Base 85 plus hand-tuned additive tiers,
// capped at 100. The tier breakpoints are pinned by tests; do not re-derive.
func (s *SupertrendADX) confidence(frame *indicators.Frame, i int) float64 {
	confidence := 85.0

	// ADX magnitude: stronger trends score higher (+0..+5)
	adx := frame.ADX.ADX[i]
	switch {
	case adx >= 50:
		confidence += 5
	case adx >= 40:
		confidence += 4
	case adx >= 35:
		confidence += 3
	case adx >= 30:
		confidence += 2
	case adx >= 25:
		confidence += 1
	}

	// DI spread: directional agreement (+0..+4)
	plusDI, minusDI := frame.ADX.PlusDI[i], frame.ADX.MinusDI[i]
	if indicators.Defined(plusDI) && indicators.Defined(minusDI) {
		spread := math.Abs(plusDI - minusDI)
		switch {
		case spread >= 30:
			confidence += 4
		case spread >= 20:
			confidence += 3
		case spread >= 15:
			confidence += 2
		case spread >= 10:
			confidence += 1
		}
	}

	// Distance from the Supertrend line as a percentage of price (+0..+3)
	close := frame.Candles[i].Close
	line := frame.Supertrend.Value[i]
	if close > 0 && indicators.Defined(line) {
		distancePct := math.Abs(close-line) / close * 100
		switch {
		case distancePct >= 3:
			confidence += 3
		case distancePct >= 2:
			confidence += 2
		case distancePct >= 1:
			confidence += 1
		}
	}

	// Volume surge over the trailing average (+0..+3)
	avgVol := frame.VolumeAvg[i]
	if indicators.Defined(avgVol) && avgVol > 0 {
		ratio := frame.Candles[i].Volume / avgVol
		switch {
		case ratio >= 3:
			confidence += 3
		case ratio >= 2:
			confidence += 2
		case ratio >= 1.5:
			confidence += 1
		}
	}

	return capConfidence(confidence)
}
