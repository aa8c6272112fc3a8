package regime

import (
	"fmt"
	"sync"
)

// Profile is a named bundle of tunables driven by the committed regime.
// Exactly one profile is active at a time; switches are atomic from the
// signal filter's perspective.
type Profile struct {
	Name                string             `json:"name"`
	ConfidenceThreshold float64            `json:"confidence_threshold"`
	MaxSignalsPerDay    int                `json:"max_signals_per_day"`
	MaxTradesPerDay     int                `json:"max_trades_per_day"`
	PositionSizePercent float64            `json:"position_size_percent"`
	StrategyWeights     map[string]float64 `json:"strategy_weights"`
}

// DefaultProfiles returns the playbook: one profile per regime class. Trend
// regimes lean on the supertrend strategy, compression regimes on the
// inside-bar breakout, defensive regimes tighten thresholds and size.
func DefaultProfiles() map[Class]Profile {
	aggressive := Profile{
		Name:                "trend_following",
		ConfidenceThreshold: 85,
		MaxSignalsPerDay:    12,
		MaxTradesPerDay:     6,
		PositionSizePercent: 25,
		StrategyWeights:     map[string]float64{"supertrend_adx": 0.7, "inside_bar_atr": 0.3},
	}
	cautious := Profile{
		Name:                "cautious_trend",
		ConfidenceThreshold: 88,
		MaxSignalsPerDay:    8,
		MaxTradesPerDay:     4,
		PositionSizePercent: 15,
		StrategyWeights:     map[string]float64{"supertrend_adx": 0.6, "inside_bar_atr": 0.4},
	}
	compression := Profile{
		Name:                "breakout_hunting",
		ConfidenceThreshold: 88,
		MaxSignalsPerDay:    8,
		MaxTradesPerDay:     4,
		PositionSizePercent: 20,
		StrategyWeights:     map[string]float64{"supertrend_adx": 0.3, "inside_bar_atr": 0.7},
	}
	defensive := Profile{
		Name:                "defensive",
		ConfidenceThreshold: 92,
		MaxSignalsPerDay:    4,
		MaxTradesPerDay:     2,
		PositionSizePercent: 10,
		StrategyWeights:     map[string]float64{"supertrend_adx": 0.5, "inside_bar_atr": 0.5},
	}

	profiles := make(map[Class]Profile)
	for _, tier := range []VolatilityTier{VolatilityLow, VolatilityNormal, VolatilityHigh} {
		profiles[Class{StrongUptrend, tier}] = aggressive
		profiles[Class{StrongDowntrend, tier}] = aggressive
		profiles[Class{WeakUptrend, tier}] = cautious
		profiles[Class{WeakDowntrend, tier}] = cautious
		profiles[Class{Ranging, tier}] = defensive
		profiles[Class{LowVolatility, tier}] = compression
		profiles[Class{BreakoutForming, tier}] = compression
		profiles[Class{HighVolatility, tier}] = defensive
		profiles[Class{ReversalLikely, tier}] = defensive
		profiles[Class{Unknown, tier}] = defensive
	}

	// High volatility always trades defensively regardless of label
	for _, label := range AllLabels {
		profiles[Class{label, VolatilityHigh}] = defensive
	}

	return profiles
}

// ProfileManager is the parameter store: it owns the playbook and the single
// active profile. Readers always see a consistent snapshot.
type ProfileManager struct {
	mu       sync.RWMutex
	playbook map[Class]Profile
	active   Profile
}

// NewProfileManager creates a manager seeded with the given playbook. The
// Unknown/normal-volatility profile starts active.
func NewProfileManager(playbook map[Class]Profile) *ProfileManager {
	pm := &ProfileManager{playbook: playbook}
	pm.active = pm.lookup(Class{Unknown, VolatilityNormal})
	return pm
}

// ActiveProfile returns the currently active profile
func (pm *ProfileManager) ActiveProfile() Profile {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.active
}

// ActivateForClass switches the active profile to the playbook entry for the
// given regime class
func (pm *ProfileManager) ActivateForClass(class Class) Profile {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.active = pm.lookup(class)
	return pm.active
}

// ActivateByName pins a named profile (manual override path). Returns an
// error when no playbook entry carries that name.
func (pm *ProfileManager) ActivateByName(name string) (Profile, error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	for _, p := range pm.playbook {
		if p.Name == name {
			pm.active = p
			return p, nil
		}
	}
	return Profile{}, fmt.Errorf("unknown profile %q", name)
}

func (pm *ProfileManager) lookup(class Class) Profile {
	if p, ok := pm.playbook[class]; ok {
		return p
	}
	if p, ok := pm.playbook[Class{class.Label, VolatilityNormal}]; ok {
		return p
	}
	return pm.playbook[Class{Unknown, VolatilityNormal}]
}
