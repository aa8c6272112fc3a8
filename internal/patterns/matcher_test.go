package patterns

import (
	"math"
	"reflect"
	"testing"
	"time"

	"futures-signal-bot/internal/regime"
)

// seedHistory loads a MemoryHistory with one entry per label, hourly spaced,
// all at confidence 0.8
func seedHistory(t *testing.T, labels []regime.Label) *regime.MemoryHistory {
	t.Helper()
	history := regime.NewMemoryHistory()
	base := time.Unix(1_700_000_000, 0).UTC()
	for i, label := range labels {
		entry := regime.HistoryEntry{
			Timestamp:  base.Add(time.Duration(i) * time.Hour),
			Regime:     label,
			Confidence: 0.8,
			Metrics:    regime.Metrics{Close: 100 + float64(i)},
		}
		if i > 0 {
			entry.PreviousRegime = labels[i-1]
		}
		if err := history.Append(entry); err != nil {
			t.Fatalf("seeding history: %v", err)
		}
	}
	return history
}

// alternating history: uptrend/ranging oscillation ending in a downtrend
var flipFlop = []regime.Label{
	regime.StrongUptrend,
	regime.Ranging,
	regime.StrongUptrend,
	regime.Ranging,
	regime.StrongUptrend,
	regime.StrongDowntrend,
}

// TestMatcherAnalyzeRetainsRecurringSequences checks that only sequences seen
// at least MinOccurrences times survive mining
func TestMatcherAnalyzeRetainsRecurringSequences(t *testing.T) {
	m := NewMatcher(DefaultConfig(), seedHistory(t, flipFlop))

	patterns, err := m.Analyze()
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(patterns) != 3 {
		t.Fatalf("got %d patterns, want 3: %+v", len(patterns), patterns)
	}

	byKey := make(map[string]Pattern, len(patterns))
	for _, p := range patterns {
		byKey[p.Key()] = p
	}
	for _, key := range []string{
		"STRONG_UPTREND>RANGING",
		"RANGING>STRONG_UPTREND",
		"STRONG_UPTREND>RANGING>STRONG_UPTREND",
	} {
		p, ok := byKey[key]
		if !ok {
			t.Errorf("pattern %s not retained", key)
			continue
		}
		if p.Occurrences != 2 {
			t.Errorf("%s occurrences = %d, want 2", key, p.Occurrences)
		}
		// reliability = 0.6*avg_confidence + 0.4*min(1, n/10)
		want := 0.6*0.8 + 0.4*0.2
		if math.Abs(p.Reliability-want) > 1e-9 {
			t.Errorf("%s reliability = %v, want %v", key, p.Reliability, want)
		}
	}

	// The once-seen STRONG_UPTREND>STRONG_DOWNTREND pair must be dropped
	if _, ok := byKey["STRONG_UPTREND>STRONG_DOWNTREND"]; ok {
		t.Error("single-occurrence sequence survived the occurrence filter")
	}

	if byKey["STRONG_UPTREND>RANGING"].AvgDurationSec != 3600 {
		t.Errorf("avg duration = %v, want 3600", byKey["STRONG_UPTREND>RANGING"].AvgDurationSec)
	}
}

// TestMatcherAnalyzeIdempotent verifies repeated analysis of the same history
// yields identical output
func TestMatcherAnalyzeIdempotent(t *testing.T) {
	m := NewMatcher(DefaultConfig(), seedHistory(t, flipFlop))

	first, err := m.Analyze()
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	second, err := m.Analyze()
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated analysis diverged:\n%+v\n%+v", first, second)
	}
}

// TestMatcherTransitions checks the conditional probabilities computed from
// consecutive history pairs
func TestMatcherTransitions(t *testing.T) {
	m := NewMatcher(DefaultConfig(), seedHistory(t, flipFlop))

	matrix, err := m.Transitions()
	if err != nil {
		t.Fatalf("transitions: %v", err)
	}

	fromUp := matrix[regime.StrongUptrend]
	if math.Abs(fromUp[regime.Ranging]-2.0/3) > 1e-9 {
		t.Errorf("P(RANGING|STRONG_UPTREND) = %v, want 2/3", fromUp[regime.Ranging])
	}
	if math.Abs(fromUp[regime.StrongDowntrend]-1.0/3) > 1e-9 {
		t.Errorf("P(STRONG_DOWNTREND|STRONG_UPTREND) = %v, want 1/3", fromUp[regime.StrongDowntrend])
	}
	if matrix[regime.Ranging][regime.StrongUptrend] != 1 {
		t.Errorf("P(STRONG_UPTREND|RANGING) = %v, want 1", matrix[regime.Ranging][regime.StrongUptrend])
	}
	if len(matrix[regime.StrongDowntrend]) != 0 {
		t.Errorf("terminal label has outgoing transitions: %v", matrix[regime.StrongDowntrend])
	}
}

// TestMatcherPredictCombinesSources checks that a candidate backed by both the
// transition matrix and a mined pattern gets the averaged probability
func TestMatcherPredictCombinesSources(t *testing.T) {
	m := NewMatcher(DefaultConfig(), seedHistory(t, flipFlop))

	forecasts, err := m.Predict(regime.StrongUptrend, []regime.Label{regime.Ranging})
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if len(forecasts) != 2 {
		t.Fatalf("got %d forecasts, want 2: %+v", len(forecasts), forecasts)
	}

	top := forecasts[0]
	if top.Regime != regime.Ranging {
		t.Fatalf("top forecast = %s, want RANGING", top.Regime)
	}
	if top.Source != "combined" {
		t.Errorf("top forecast source = %q, want combined", top.Source)
	}
	reliability := 0.6*0.8 + 0.4*0.2
	patternWeight := reliability * 0.2 // occurrences/10 capped at 1
	want := (2.0/3 + patternWeight) / 2
	if math.Abs(top.Probability-want) > 1e-9 {
		t.Errorf("combined probability = %v, want %v", top.Probability, want)
	}

	second := forecasts[1]
	if second.Regime != regime.StrongDowntrend || second.Source != "transition" {
		t.Errorf("second forecast = %+v, want transition to STRONG_DOWNTREND", second)
	}
	if math.Abs(second.Probability-1.0/3) > 1e-9 {
		t.Errorf("transition probability = %v, want 1/3", second.Probability)
	}
}

// TestMatcherPredictEmptyHistory verifies an empty store yields no forecasts
// and no error
func TestMatcherPredictEmptyHistory(t *testing.T) {
	m := NewMatcher(DefaultConfig(), regime.NewMemoryHistory())

	forecasts, err := m.Predict(regime.Ranging, nil)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if len(forecasts) != 0 {
		t.Errorf("empty history produced forecasts: %+v", forecasts)
	}
}
