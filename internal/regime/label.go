package regime

import "time"

// Label is a market regime category. Categories are mutually exclusive; the
// classifier commits exactly one at a time.
type Label string

const (
	StrongUptrend   Label = "STRONG_UPTREND"
	WeakUptrend     Label = "WEAK_UPTREND"
	Ranging         Label = "RANGING"
	WeakDowntrend   Label = "WEAK_DOWNTREND"
	StrongDowntrend Label = "STRONG_DOWNTREND"
	HighVolatility  Label = "HIGH_VOLATILITY"
	LowVolatility   Label = "LOW_VOLATILITY"
	ReversalLikely  Label = "REVERSAL_LIKELY"
	BreakoutForming Label = "BREAKOUT_FORMING"
	Unknown         Label = "UNKNOWN"
)

// AllLabels lists the nine scoreable regime categories (Unknown excluded)
var AllLabels = []Label{
	StrongUptrend,
	WeakUptrend,
	Ranging,
	WeakDowntrend,
	StrongDowntrend,
	HighVolatility,
	LowVolatility,
	ReversalLikely,
	BreakoutForming,
}

// VolatilityTier buckets current volatility for playbook lookup
type VolatilityTier string

const (
	VolatilityLow    VolatilityTier = "LOW"
	VolatilityNormal VolatilityTier = "NORMAL"
	VolatilityHigh   VolatilityTier = "HIGH"
)

// Class is the structured playbook key: a regime label qualified by its
// volatility tier. Used instead of string concatenation for profile lookup.
type Class struct {
	Label      Label          `json:"label"`
	Volatility VolatilityTier `json:"volatility"`
}

// Metrics is the indicator snapshot captured at evaluation time
type Metrics struct {
	Close           float64 `json:"close"`
	ADX             float64 `json:"adx"`
	PlusDI          float64 `json:"plus_di"`
	MinusDI         float64 `json:"minus_di"`
	RSI             float64 `json:"rsi"`
	EMAAligned      int     `json:"ema_aligned"`
	BollingerWidth  float64 `json:"bollinger_width"`
	PercentB        float64 `json:"percent_b"`
	VolatilityRatio float64 `json:"volatility_ratio"` // ATR / trailing ATR average
}

// Tier buckets the volatility ratio into the playbook tiers
func (m Metrics) Tier() VolatilityTier {
	switch {
	case m.VolatilityRatio >= 1.5:
		return VolatilityHigh
	case m.VolatilityRatio > 0 && m.VolatilityRatio <= 0.7:
		return VolatilityLow
	default:
		return VolatilityNormal
	}
}

// HistoryEntry is an immutable record written once per committed regime
// change. Never mutated after creation.
type HistoryEntry struct {
	Timestamp      time.Time `json:"timestamp"`
	Regime         Label     `json:"regime"`
	Confidence     float64   `json:"confidence"`
	Metrics        Metrics   `json:"metrics"`
	PreviousRegime Label     `json:"previous_regime"`
}

// HistoryStore is the append-only persistence contract for regime history.
// Implementations must return entries oldest-first from ReadRecent.
type HistoryStore interface {
	Append(entry HistoryEntry) error
	ReadRecent(n int) ([]HistoryEntry, error)
}

// MemoryHistory is an in-process HistoryStore used in dry-run mode and tests
type MemoryHistory struct {
	entries []HistoryEntry
}

// NewMemoryHistory creates an empty in-memory history store
func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{}
}

func (m *MemoryHistory) Append(entry HistoryEntry) error {
	m.entries = append(m.entries, entry)
	return nil
}

func (m *MemoryHistory) ReadRecent(n int) ([]HistoryEntry, error) {
	if n <= 0 || n >= len(m.entries) {
		out := make([]HistoryEntry, len(m.entries))
		copy(out, m.entries)
		return out, nil
	}
	out := make([]HistoryEntry, n)
	copy(out, m.entries[len(m.entries)-n:])
	return out, nil
}
