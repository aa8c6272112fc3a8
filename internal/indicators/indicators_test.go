package indicators

import (
	"math"
	"testing"

	"futures-signal-bot/internal/market"
)

// trendCandles builds a deterministic series whose close moves by step each
// bar, with a fixed wick on both sides
func trendCandles(n int, start, step, wick float64) []market.Candle {
	candles := make([]market.Candle, n)
	close := start
	for i := 0; i < n; i++ {
		open := close
		close = start + step*float64(i)
		high := math.Max(open, close) + wick
		low := math.Min(open, close) - wick
		candles[i] = market.Candle{
			OpenTime:  int64(i) * 60_000,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     close,
			Volume:    1000,
			CloseTime: int64(i)*60_000 + 59_999,
		}
	}
	return candles
}

// flatCandles builds candles with identical range and close
func flatCandles(n int, price, halfRange float64) []market.Candle {
	candles := make([]market.Candle, n)
	for i := 0; i < n; i++ {
		candles[i] = market.Candle{
			OpenTime:  int64(i) * 60_000,
			Open:      price,
			High:      price + halfRange,
			Low:       price - halfRange,
			Close:     price,
			Volume:    1000,
			CloseTime: int64(i)*60_000 + 59_999,
		}
	}
	return candles
}

func TestSMAKnownValues(t *testing.T) {
	out := SMA([]float64{1, 2, 3, 4, 5}, 3)

	if Defined(out[0]) || Defined(out[1]) {
		t.Error("SMA warm-up span should be NaN")
	}
	want := []float64{2, 3, 4}
	for i, w := range want {
		if out[i+2] != w {
			t.Errorf("SMA[%d] = %v, want %v", i+2, out[i+2], w)
		}
	}
}

func TestEMAKnownValues(t *testing.T) {
	out := EMA([]float64{1, 2, 3, 4, 5}, 3)

	if Defined(out[1]) {
		t.Error("EMA warm-up span should be NaN")
	}
	if out[2] != 2 {
		t.Errorf("EMA seed should equal SMA of first period: got %v, want 2", out[2])
	}
	// multiplier = 0.5 for period 3
	if out[3] != 3 || out[4] != 4 {
		t.Errorf("EMA continuation wrong: got %v, %v, want 3, 4", out[3], out[4])
	}
}

func TestRSIAllGains(t *testing.T) {
	closes := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	out := RSI(closes, 14)

	if Defined(out[13]) {
		t.Error("RSI should be undefined before period+1 observations")
	}
	if out[14] != 100 || out[15] != 100 {
		t.Errorf("RSI of monotone gains should be 100, got %v, %v", out[14], out[15])
	}
}

func TestRSIBounds(t *testing.T) {
	closes := []float64{100, 97, 103, 95, 108, 92, 110, 90, 105, 98, 102, 96, 104, 99, 101, 100, 103, 97, 106, 94}
	out := RSI(closes, 14)
	for i, v := range out {
		if !Defined(v) {
			continue
		}
		if v < 0 || v > 100 {
			t.Errorf("RSI[%d] = %v out of [0,100]", i, v)
		}
	}
}

func TestATRConstantRange(t *testing.T) {
	candles := flatCandles(30, 100, 5)
	out := ATR(candles, 14)

	if Defined(out[13]) {
		t.Error("ATR should be undefined before period+1 candles")
	}
	for i := 14; i < len(out); i++ {
		if math.Abs(out[i]-10) > 1e-9 {
			t.Errorf("ATR[%d] = %v, want 10 for constant 10-point range", i, out[i])
		}
	}
}

func TestTrueRangeGap(t *testing.T) {
	candles := []market.Candle{
		{Open: 100, High: 102, Low: 98, Close: 100},
		{Open: 110, High: 112, Low: 109, Close: 111}, // gap up
	}
	out := TrueRange(candles)
	if out[0] != 4 {
		t.Errorf("TrueRange[0] = %v, want plain high-low range 4", out[0])
	}
	// |112 - 100| dominates the 3-point bar range
	if out[1] != 12 {
		t.Errorf("TrueRange[1] = %v, want 12 from the gap", out[1])
	}
}

func TestBollingerConstantCloses(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100
	}
	result := Bollinger(closes, 20, 2.0)

	if Defined(result.Upper[18]) {
		t.Error("Bollinger should be undefined before period observations")
	}
	if result.Upper[25] != 100 || result.Lower[25] != 100 {
		t.Errorf("constant closes should collapse the bands: upper %v lower %v", result.Upper[25], result.Lower[25])
	}
	if result.Width[25] != 0 {
		t.Errorf("Width = %v, want 0", result.Width[25])
	}
	if Defined(result.PercentB[25]) {
		t.Error("PercentB should be undefined when the band has no width")
	}
}

func TestBollingerBandOrdering(t *testing.T) {
	closes := []float64{100, 101, 99, 102, 98, 103, 97, 104, 96, 105, 95, 106, 94, 107, 93, 108, 92, 109, 91, 110, 95, 100, 105}
	result := Bollinger(closes, 20, 2.0)
	for i := 19; i < len(closes); i++ {
		if !(result.Lower[i] < result.Middle[i] && result.Middle[i] < result.Upper[i]) {
			t.Errorf("band ordering violated at %d: %v %v %v", i, result.Lower[i], result.Middle[i], result.Upper[i])
		}
	}
}

func TestInsideBars(t *testing.T) {
	candles := []market.Candle{
		{High: 105, Low: 95},
		{High: 102, Low: 97}, // inside bar 0
		{High: 104, Low: 96}, // breaks above bar 1's high
		{High: 103, Low: 97}, // inside bar 2
	}
	out := InsideBars(candles)
	if out[0] {
		t.Error("first bar can never be an inside bar")
	}
	if !out[1] {
		t.Error("bar 1 should be inside bar 0")
	}
	if out[2] {
		t.Error("bar 2 exceeds bar 1's high, not inside")
	}
	if !out[3] {
		t.Error("bar 3 should be inside bar 2")
	}
}

func TestLowVolatility(t *testing.T) {
	falling := []float64{10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 9, 8, 7, 6, 5, 4, 3, 2, 1, 0.5}
	out := LowVolatility(falling, 10, 20)
	if !out[len(falling)-1] {
		t.Error("lowest ATR in its trailing window should flag low volatility")
	}

	rising := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20}
	out = LowVolatility(rising, 10, 20)
	if out[len(rising)-1] {
		t.Error("highest ATR in its trailing window should not flag low volatility")
	}
}

func TestLowVolatilitySparseWindow(t *testing.T) {
	atr := nanSeries(20)
	atr[19] = 1
	out := LowVolatility(atr, 50, 20)
	if out[19] {
		t.Error("a window with too few defined values should never flag")
	}
}

func TestADXUptrend(t *testing.T) {
	candles := trendCandles(60, 1000, 5, 1)
	result := ADX(candles, 14)

	if Defined(result.ADX[26]) {
		t.Error("ADX should be undefined before 2*period bars")
	}
	if !Defined(result.ADX[27]) {
		t.Error("ADX should be defined from bar 2*period-1")
	}
	i := 50
	if result.PlusDI[i] <= result.MinusDI[i] {
		t.Errorf("uptrend should have +DI > -DI, got %v vs %v", result.PlusDI[i], result.MinusDI[i])
	}
	if result.ADX[i] < 30 {
		t.Errorf("sustained trend should push ADX above 30 by bar 50, got %v", result.ADX[i])
	}
	for j, v := range result.ADX {
		if Defined(v) && (v < 0 || v > 100) {
			t.Errorf("ADX[%d] = %v out of [0,100]", j, v)
		}
	}
}

func TestSupertrendFlipsOnReversal(t *testing.T) {
	// 50 bars of decline, then a sharp rally
	candles := trendCandles(50, 1000, -5, 1)
	last := candles[len(candles)-1].Close
	rally := trendCandles(10, last, 40, 1)
	for i := range rally {
		rally[i].OpenTime += 50 * 60_000
		rally[i].CloseTime += 50 * 60_000
	}
	candles = append(candles, rally...)

	result := Supertrend(candles, 10, 3.0)

	if result.Direction[40] != DirectionDown {
		t.Errorf("decline should hold direction down at bar 40, got %d", result.Direction[40])
	}
	final := len(candles) - 1
	if result.Direction[final] != DirectionUp {
		t.Errorf("rally should flip direction up by the final bar, got %d", result.Direction[final])
	}
	if !Defined(result.Value[final]) {
		t.Fatal("supertrend line should be defined at the final bar")
	}
	if result.Value[final] >= candles[final].Close {
		t.Errorf("in an uptrend the line should sit below price: line %v close %v",
			result.Value[final], candles[final].Close)
	}
}

func TestNoLookahead(t *testing.T) {
	// Values over a prefix must match the same indices computed over the
	// full series; any difference means a column read future candles
	full := trendCandles(100, 1000, 3, 2)
	cut := 60
	prefix := make([]market.Candle, cut)
	copy(prefix, full[:cut])

	fullFrame := NewFrame(full, DefaultConfig())
	prefixFrame := NewFrame(prefix, DefaultConfig())

	for i := 0; i < cut; i++ {
		checks := []struct {
			name string
			a, b float64
		}{
			{"atr", fullFrame.ATRValues[i], prefixFrame.ATRValues[i]},
			{"rsi", fullFrame.RSIValues[i], prefixFrame.RSIValues[i]},
			{"ema_fast", fullFrame.EMAFast[i], prefixFrame.EMAFast[i]},
			{"adx", fullFrame.ADX.ADX[i], prefixFrame.ADX.ADX[i]},
			{"supertrend", fullFrame.Supertrend.Value[i], prefixFrame.Supertrend.Value[i]},
			{"bb_width", fullFrame.Bollinger.Width[i], prefixFrame.Bollinger.Width[i]},
		}
		for _, c := range checks {
			bothNaN := math.IsNaN(c.a) && math.IsNaN(c.b)
			if !bothNaN && c.a != c.b {
				t.Fatalf("%s at index %d depends on future candles: %v != %v", c.name, i, c.a, c.b)
			}
		}
		if fullFrame.Supertrend.Direction[i] != prefixFrame.Supertrend.Direction[i] {
			t.Fatalf("supertrend direction at index %d depends on future candles", i)
		}
	}
}
