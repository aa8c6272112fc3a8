package filter

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"futures-signal-bot/internal/regime"
	"futures-signal-bot/internal/risk"
	"futures-signal-bot/internal/strategy"
)

func newTestFilter(balance float64) *Filter {
	sizer := risk.NewManager(risk.DefaultConfig(), zerolog.Nop())
	sizer.UpdateAccountBalance(balance)
	return New(DefaultConfig(), NewMemoryDedup(), NewMemoryCounter(), sizer, zerolog.Nop())
}

func testProfile() regime.Profile {
	return regime.Profile{
		Name:                "trend_following",
		ConfidenceThreshold: 85,
		MaxSignalsPerDay:    12,
		PositionSizePercent: 25,
		StrategyWeights:     map[string]float64{"supertrend_adx": 0.6, "inside_bar_atr": 0.4},
	}
}

// longSignal builds a fresh LONG signal with risk 1 and reward rr at the
// given entry
func longSignal(id, strategyID, timeframe string, confidence, entry, rr float64) strategy.Signal {
	return strategy.Signal{
		ID:           id,
		Symbol:       "BTCUSDT",
		Timeframe:    timeframe,
		StrategyID:   strategyID,
		Direction:    strategy.DirectionLong,
		EntryPrice:   entry,
		StopLoss:     entry - 1,
		ProfitTarget: entry + rr,
		Confidence:   confidence,
		Timestamp:    time.Now(),
	}
}

// TestWinProbabilityFormula pins the score arithmetic for known inputs
func TestWinProbabilityFormula(t *testing.T) {
	f := newTestFilter(1000)

	cases := []struct {
		name string
		sig  strategy.Signal
		want float64
	}{
		{
			// base 90, weight 1.1, rr component 0.3:
			// 90 * (1 + 0.1*0.1 + 0.1*(0.3-1)) = 84.6
			name: "4h moderate risk reward",
			sig:  longSignal("a", "supertrend_adx", "4h", 90, 100, 3),
			want: 84.6,
		},
		{
			// confidence capped at 90, rr component capped at 1.1:
			// 90 * (1 + 0.01 + 0.01) = 91.8
			name: "capped confidence and risk reward",
			sig:  longSignal("b", "supertrend_adx", "4h", 97, 100, 20),
			want: 91.8,
		},
		{
			// unknown timeframe falls back to weight 1.0:
			// 90 * (1 + 0 + 0.1*(0.2-1)) = 82.8
			name: "unknown timeframe",
			sig:  longSignal("c", "supertrend_adx", "2h", 90, 100, 2),
			want: 82.8,
		},
	}

	for _, tc := range cases {
		got := f.WinProbability(&tc.sig)
		if math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("%s: win probability = %v, want %v", tc.name, got, tc.want)
		}
	}
}

// TestProcessRejectionReasons routes one signal into each pipeline stage and
// checks the recorded reason
func TestProcessRejectionReasons(t *testing.T) {
	f := newTestFilter(1000)

	lowConf := longSignal("low-conf", "supertrend_adx", "4h", 80, 100, 12)
	badPrices := longSignal("bad-prices", "supertrend_adx", "4h", 90, 100, 12)
	badPrices.ProfitTarget = 99 // target below entry on a LONG
	lowRR := longSignal("low-rr", "supertrend_adx", "4h", 90, 100, 1.2)
	lowWinProb := longSignal("low-winprob", "supertrend_adx", "1h", 90, 200, 2)
	good := longSignal("good", "supertrend_adx", "4h", 92, 300, 12)

	accepted, rejections := f.Process(context.Background(),
		[]strategy.Signal{lowConf, badPrices, lowRR, lowWinProb, good}, testProfile())

	reasons := make(map[string]string, len(rejections))
	for _, r := range rejections {
		reasons[r.Signal.ID] = r.Reason
	}
	wantReasons := map[string]string{
		"low-conf":    ReasonLowConfidence,
		"bad-prices":  ReasonInvalidPrices,
		"low-rr":      ReasonLowRiskReward,
		"low-winprob": ReasonLowWinProb,
	}
	for id, want := range wantReasons {
		if reasons[id] != want {
			t.Errorf("signal %s rejected with %q, want %q", id, reasons[id], want)
		}
	}

	if len(accepted) != 1 || accepted[0].Signal.ID != "good" {
		t.Fatalf("accepted = %+v, want only the good signal", accepted)
	}
	sizing := accepted[0].Sizing
	if sizing.PositionValue != 250 {
		t.Errorf("position value = %v, want 250 (25%% of 1000)", sizing.PositionValue)
	}
	if sizing.Notional != 5000 {
		t.Errorf("notional = %v, want 5000 at 20x", sizing.Notional)
	}
	// 250 / 300 floored to the 0.001 step
	if math.Abs(sizing.Quantity-0.833) > 1e-9 {
		t.Errorf("quantity = %v, want 0.833", sizing.Quantity)
	}
}

// TestProcessDeduplicates sends the same signal through two cycles and checks
// the second pass drops it as a duplicate
func TestProcessDeduplicates(t *testing.T) {
	f := newTestFilter(1000)
	sig := longSignal("dup", "supertrend_adx", "4h", 92, 100, 12)

	accepted, _ := f.Process(context.Background(), []strategy.Signal{sig}, testProfile())
	if len(accepted) != 1 {
		t.Fatalf("first pass accepted %d signals, want 1", len(accepted))
	}

	accepted, rejections := f.Process(context.Background(), []strategy.Signal{sig}, testProfile())
	if len(accepted) != 0 {
		t.Fatalf("second pass accepted a duplicate: %+v", accepted)
	}
	if len(rejections) != 1 || rejections[0].Reason != ReasonDuplicate {
		t.Errorf("rejections = %+v, want one %s", rejections, ReasonDuplicate)
	}
}

// TestProcessWeightedDailyCap verifies slot allocation across strategies:
// 3 remaining slots at weights 0.6/0.4 give 2 supertrend and 1 inside-bar,
// each strategy keeping its top signals by win probability
func TestProcessWeightedDailyCap(t *testing.T) {
	f := newTestFilter(10_000)
	profile := testProfile()
	profile.MaxSignalsPerDay = 3

	signals := []strategy.Signal{
		longSignal("a1", "supertrend_adx", "4h", 92, 100, 12),
		longSignal("a2", "supertrend_adx", "4h", 89.5, 110, 12),
		longSignal("a3", "supertrend_adx", "4h", 89, 120, 12),
		longSignal("b1", "inside_bar_atr", "4h", 92, 130, 12),
		longSignal("b2", "inside_bar_atr", "4h", 89, 140, 12),
	}

	accepted, rejections := f.Process(context.Background(), signals, profile)

	gotIDs := make(map[string]bool, len(accepted))
	for _, s := range accepted {
		gotIDs[s.Signal.ID] = true
	}
	for _, id := range []string{"a1", "a2", "b1"} {
		if !gotIDs[id] {
			t.Errorf("expected %s to be accepted, got %v", id, gotIDs)
		}
	}
	if len(accepted) != 3 {
		t.Errorf("accepted %d signals, want 3", len(accepted))
	}

	capped := make(map[string]bool)
	for _, r := range rejections {
		if r.Reason == ReasonDailyCap {
			capped[r.Signal.ID] = true
		}
	}
	if !capped["a3"] || !capped["b2"] || len(capped) != 2 {
		t.Errorf("capped = %v, want a3 and b2", capped)
	}

	sent, err := f.counter.SentToday(context.Background())
	if err != nil {
		t.Fatalf("counter: %v", err)
	}
	if sent != 3 {
		t.Errorf("daily counter = %d, want 3", sent)
	}
}

// TestProcessExpiredSignal checks that a signal older than the expiry window
// is dropped before any other stage sees it
func TestProcessExpiredSignal(t *testing.T) {
	f := newTestFilter(1000)

	stale := longSignal("stale", "supertrend_adx", "4h", 92, 100, 12)
	stale.Timestamp = time.Now().Add(-9 * time.Hour)
	fresh := longSignal("fresh", "supertrend_adx", "4h", 92, 100, 12)

	accepted, rejections := f.Process(context.Background(),
		[]strategy.Signal{stale, fresh}, testProfile())

	if len(accepted) != 1 || accepted[0].Signal.ID != "fresh" {
		t.Fatalf("accepted = %+v, want only the fresh signal", accepted)
	}
	if len(rejections) != 1 || rejections[0].Reason != ReasonExpired {
		t.Errorf("rejections = %+v, want one %s", rejections, ReasonExpired)
	}
}

// TestProcessDuplicateDoesNotConsumeCapSlot replays an already-sent signal
// alongside a new one when only one daily slot remains: the duplicate must be
// dropped before allocation so the new signal takes the slot
func TestProcessDuplicateDoesNotConsumeCapSlot(t *testing.T) {
	f := newTestFilter(1000)
	profile := testProfile()
	profile.MaxSignalsPerDay = 2

	// heavier timeframe weight so the duplicate would outrank b if it
	// reached allocation
	a := longSignal("a", "supertrend_adx", "1d", 95, 100, 12)
	b := longSignal("b", "supertrend_adx", "4h", 92, 110, 12)

	accepted, _ := f.Process(context.Background(), []strategy.Signal{a}, profile)
	if len(accepted) != 1 {
		t.Fatalf("first cycle accepted %d signals, want 1", len(accepted))
	}

	accepted, rejections := f.Process(context.Background(), []strategy.Signal{a, b}, profile)
	if len(accepted) != 1 || accepted[0].Signal.ID != "b" {
		t.Fatalf("accepted = %+v, want only b in the remaining slot", accepted)
	}
	reasons := make(map[string]string, len(rejections))
	for _, r := range rejections {
		reasons[r.Signal.ID] = r.Reason
	}
	if reasons["a"] != ReasonDuplicate {
		t.Errorf("a rejected with %q, want %q", reasons["a"], ReasonDuplicate)
	}
	if reasons["b"] == ReasonDailyCap {
		t.Error("b was capped even though the duplicate should not hold a slot")
	}
}

// TestProcessQuotaRedistribution gives nearly all the weight to a strategy
// with a single candidate: its unused slots must flow to the other strategy
// instead of going unfilled
func TestProcessQuotaRedistribution(t *testing.T) {
	f := newTestFilter(10_000)
	profile := testProfile()
	profile.MaxSignalsPerDay = 4
	profile.StrategyWeights = map[string]float64{"supertrend_adx": 0.9, "inside_bar_atr": 0.1}

	signals := []strategy.Signal{
		longSignal("a1", "supertrend_adx", "4h", 92, 100, 12),
		longSignal("b1", "inside_bar_atr", "4h", 92, 110, 12),
		longSignal("b2", "inside_bar_atr", "4h", 91, 120, 12),
		longSignal("b3", "inside_bar_atr", "4h", 90, 130, 12),
	}

	accepted, rejections := f.Process(context.Background(), signals, profile)
	if len(accepted) != 4 {
		t.Fatalf("accepted %d signals, want all 4", len(accepted))
	}
	for _, r := range rejections {
		if r.Reason == ReasonDailyCap {
			t.Errorf("%s capped despite free slots", r.Signal.ID)
		}
	}
}

// TestProcessCapExhausted checks that candidates are rejected outright once
// the daily counter reaches the profile cap
func TestProcessCapExhausted(t *testing.T) {
	f := newTestFilter(1000)
	profile := testProfile()
	if err := f.counter.Add(context.Background(), profile.MaxSignalsPerDay); err != nil {
		t.Fatalf("counter: %v", err)
	}

	sig := longSignal("late", "supertrend_adx", "4h", 92, 100, 12)
	accepted, rejections := f.Process(context.Background(), []strategy.Signal{sig}, profile)
	if len(accepted) != 0 {
		t.Fatalf("accepted past the daily cap: %+v", accepted)
	}
	if len(rejections) != 1 || rejections[0].Reason != ReasonDailyCap {
		t.Errorf("rejections = %+v, want one %s", rejections, ReasonDailyCap)
	}
}

// TestProcessSizingInfeasible checks that a balance below the exchange
// minimum turns into a sizing rejection, not an accepted zero-size signal
func TestProcessSizingInfeasible(t *testing.T) {
	f := newTestFilter(4) // below the $5 minimum notional

	sig := longSignal("tiny", "supertrend_adx", "4h", 92, 100, 12)
	accepted, rejections := f.Process(context.Background(), []strategy.Signal{sig}, testProfile())
	if len(accepted) != 0 {
		t.Fatalf("accepted an unsizable signal: %+v", accepted)
	}
	if len(rejections) != 1 || rejections[0].Reason != ReasonSizing {
		t.Errorf("rejections = %+v, want one %s", rejections, ReasonSizing)
	}
}

// TestMemoryDedupWindow exercises the TTL boundary with a fake clock
func TestMemoryDedupWindow(t *testing.T) {
	d := NewMemoryDedup()
	now := time.Unix(1_700_000_000, 0)
	d.now = func() time.Time { return now }

	fresh, err := d.MarkSent(context.Background(), "fp", time.Hour)
	if err != nil || !fresh {
		t.Fatalf("first mark: fresh=%v err=%v", fresh, err)
	}

	now = now.Add(30 * time.Minute)
	fresh, _ = d.MarkSent(context.Background(), "fp", time.Hour)
	if fresh {
		t.Error("fingerprint inside the window was not suppressed")
	}

	now = now.Add(31 * time.Minute)
	fresh, _ = d.MarkSent(context.Background(), "fp", time.Hour)
	if !fresh {
		t.Error("fingerprint past the window was still suppressed")
	}
}

// TestMemoryDedupSeen checks the read-only lookup against the same window
func TestMemoryDedupSeen(t *testing.T) {
	d := NewMemoryDedup()
	now := time.Unix(1_700_000_000, 0)
	d.now = func() time.Time { return now }

	if seen, _ := d.Seen(context.Background(), "fp"); seen {
		t.Fatal("unknown fingerprint reported as seen")
	}

	if _, err := d.MarkSent(context.Background(), "fp", time.Hour); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if seen, _ := d.Seen(context.Background(), "fp"); !seen {
		t.Error("marked fingerprint not reported as seen")
	}
	// Seen must not extend or refresh the window
	if seen, _ := d.Seen(context.Background(), "fp"); !seen {
		t.Error("repeated lookup changed the answer")
	}

	now = now.Add(61 * time.Minute)
	if seen, _ := d.Seen(context.Background(), "fp"); seen {
		t.Error("expired fingerprint still reported as seen")
	}
}

// TestMemoryCounterRollover checks the UTC day boundary reset
func TestMemoryCounterRollover(t *testing.T) {
	c := NewMemoryCounter()
	now := time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	if err := c.Add(context.Background(), 4); err != nil {
		t.Fatalf("add: %v", err)
	}
	sent, _ := c.SentToday(context.Background())
	if sent != 4 {
		t.Fatalf("sent = %d, want 4", sent)
	}

	now = now.Add(2 * time.Hour) // past midnight UTC
	sent, _ = c.SentToday(context.Background())
	if sent != 0 {
		t.Errorf("counter did not reset on day rollover: %d", sent)
	}
}
