package strategy

import (
	"fmt"
	"time"

	"futures-signal-bot/internal/market"
)

// Direction represents the side of a signal
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// Signal represents a trading signal produced by a strategy
type Signal struct {
	ID             string    `json:"id"`
	Symbol         string    `json:"symbol"`
	Timeframe      string    `json:"timeframe"`
	StrategyID     string    `json:"strategy_id"`
	Direction      Direction `json:"direction"`
	EntryPrice     float64   `json:"entry_price"`
	ProfitTarget   float64   `json:"profit_target"`
	StopLoss       float64   `json:"stop_loss"`
	ATR            float64   `json:"atr"`
	Confidence     float64   `json:"confidence"`      // 0-100
	WinProbability float64   `json:"win_probability"` // annotated by the filter
	Reason         string    `json:"reason"`
	Timestamp      time.Time `json:"timestamp"`
}

// Valid checks the price-ordering invariant: target and stop must sit on the
// correct side of the entry for the direction, with both risk and reward
// strictly positive
func (s *Signal) Valid() bool {
	switch s.Direction {
	case DirectionLong:
		return s.StopLoss < s.EntryPrice && s.EntryPrice < s.ProfitTarget
	case DirectionShort:
		return s.ProfitTarget < s.EntryPrice && s.EntryPrice < s.StopLoss
	default:
		return false
	}
}

// Risk returns the per-unit risk (always positive for a valid signal)
func (s *Signal) Risk() float64 {
	if s.Direction == DirectionLong {
		return s.EntryPrice - s.StopLoss
	}
	return s.StopLoss - s.EntryPrice
}

// Reward returns the per-unit reward (always positive for a valid signal)
func (s *Signal) Reward() float64 {
	if s.Direction == DirectionLong {
		return s.ProfitTarget - s.EntryPrice
	}
	return s.EntryPrice - s.ProfitTarget
}

// RiskReward returns the reward-to-risk ratio, or 0 when risk is non-positive
func (s *Signal) RiskReward() float64 {
	risk := s.Risk()
	if risk <= 0 {
		return 0
	}
	return s.Reward() / risk
}

// Fingerprint identifies near-identical signals for deduplication. Entry
// price is rounded so small market drift between scans maps to the same key.
func (s *Signal) Fingerprint() string {
	return fmt.Sprintf("%s|%s|%s|%s|%.2f", s.Symbol, s.Direction, s.StrategyID, s.Timeframe, s.EntryPrice)
}

// Strategy turns a candle sequence into directional signals. Implementations
// must be deterministic given identical input: no hidden state between calls
// other than configured parameters.
type Strategy interface {
	// Name returns the strategy identifier
	Name() string

	// GenerateSignals evaluates the candle sequence and returns zero or more
	// signals. Insufficient history returns an empty slice, not an error.
	GenerateSignals(symbol, timeframe string, candles []market.Candle) ([]Signal, error)
}

func capConfidence(c float64) float64 {
	if c > 100 {
		return 100
	}
	if c < 0 {
		return 0
	}
	return c
}
