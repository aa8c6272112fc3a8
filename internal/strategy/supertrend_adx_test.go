package strategy

import (
	"math"
	"testing"

	"futures-signal-bot/internal/market"
)

// buildTrend appends n bars moving by step per bar with a fixed wick,
// continuing from the previous bar's close
func buildTrend(candles []market.Candle, n int, step, wick float64) []market.Candle {
	start := 1000.0
	base := len(candles)
	if base > 0 {
		start = candles[base-1].Close
	}
	close := start
	for i := 0; i < n; i++ {
		open := close
		close = start + step*float64(i)
		high := math.Max(open, close) + wick
		low := math.Min(open, close) - wick
		idx := int64(base + i)
		candles = append(candles, market.Candle{
			OpenTime:  idx * 60_000,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     close,
			Volume:    1000,
			CloseTime: idx*60_000 + 59_999,
		})
	}
	return candles
}

func TestSupertrendADXUptrendEmitsLong(t *testing.T) {
	candles := buildTrend(nil, 50, -5, 1)
	candles = buildTrend(candles, 30, 40, 1)

	s := NewSupertrendADX(DefaultSupertrendADXConfig())
	signals, err := s.GenerateSignals("BTCUSDT", "1h", candles)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var long *Signal
	for i := range signals {
		if signals[i].Direction == DirectionLong {
			long = &signals[i]
			break
		}
	}
	if long == nil {
		t.Fatal("reversal into a strong rally should emit at least one LONG signal")
	}

	if long.Confidence < 85 || long.Confidence > 100 {
		t.Errorf("confidence %v outside [85,100]", long.Confidence)
	}
	if !(long.StopLoss < long.EntryPrice && long.EntryPrice < long.ProfitTarget) {
		t.Errorf("LONG price ordering violated: sl=%v entry=%v tp=%v",
			long.StopLoss, long.EntryPrice, long.ProfitTarget)
	}
	wantTP := long.EntryPrice + 1.5*long.ATR
	if math.Abs(long.ProfitTarget-wantTP) > 1e-9 {
		t.Errorf("profit target %v, want entry + 1.5*ATR = %v", long.ProfitTarget, wantTP)
	}
	if long.StrategyID != "supertrend_adx" {
		t.Errorf("strategy id = %q", long.StrategyID)
	}
}

func TestSupertrendADXFlatMarketEmitsNothing(t *testing.T) {
	candles := make([]market.Candle, 0, 80)
	for i := 0; i < 80; i++ {
		candles = append(candles, market.Candle{
			OpenTime:  int64(i) * 60_000,
			Open:      100,
			High:      101,
			Low:       99,
			Close:     100,
			Volume:    1000,
			CloseTime: int64(i)*60_000 + 59_999,
		})
	}

	s := NewSupertrendADX(DefaultSupertrendADXConfig())
	signals, err := s.GenerateSignals("BTCUSDT", "1h", candles)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(signals) != 0 {
		t.Errorf("flat market produced %d signals, want 0", len(signals))
	}
}

func TestSupertrendADXInsufficientData(t *testing.T) {
	candles := buildTrend(nil, 10, 5, 1)

	s := NewSupertrendADX(DefaultSupertrendADXConfig())
	signals, err := s.GenerateSignals("BTCUSDT", "1h", candles)
	if err != nil {
		t.Fatalf("short input should not error: %v", err)
	}
	if signals != nil {
		t.Errorf("short input produced %d signals, want none", len(signals))
	}
}

func TestSignalValidity(t *testing.T) {
	valid := Signal{Direction: DirectionLong, EntryPrice: 100, ProfitTarget: 110, StopLoss: 95}
	if !valid.Valid() {
		t.Error("well-ordered LONG should be valid")
	}
	if valid.RiskReward() != 2 {
		t.Errorf("risk/reward = %v, want 2", valid.RiskReward())
	}

	invalid := Signal{Direction: DirectionLong, EntryPrice: 100, ProfitTarget: 95, StopLoss: 110}
	if invalid.Valid() {
		t.Error("inverted LONG should be invalid")
	}

	short := Signal{Direction: DirectionShort, EntryPrice: 100, ProfitTarget: 90, StopLoss: 105}
	if !short.Valid() {
		t.Error("well-ordered SHORT should be valid")
	}
}

func TestSignalFingerprintRoundsPrice(t *testing.T) {
	a := Signal{Symbol: "BTCUSDT", Direction: DirectionLong, StrategyID: "supertrend_adx", Timeframe: "1h", EntryPrice: 50000.001}
	b := Signal{Symbol: "BTCUSDT", Direction: DirectionLong, StrategyID: "supertrend_adx", Timeframe: "1h", EntryPrice: 50000.004}
	if a.Fingerprint() != b.Fingerprint() {
		t.Error("prices equal at two decimals should share a fingerprint")
	}

	c := Signal{Symbol: "BTCUSDT", Direction: DirectionShort, StrategyID: "supertrend_adx", Timeframe: "1h", EntryPrice: 50000.001}
	if a.Fingerprint() == c.Fingerprint() {
		t.Error("direction must differentiate fingerprints")
	}
}
