package regime

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"futures-signal-bot/internal/indicators"
	"futures-signal-bot/internal/market"
)

// ClassifierConfig holds classifier tunables
type ClassifierConfig struct {
	Indicators            indicators.Config
	PersistenceThreshold  int     // consecutive detections before a commit
	CommitConfidence      float64 // minimum confidence for a persisted commit
	FastPathConfidence    float64 // confidence that commits immediately
	TransitionSensitivity float64 // scales confidence when candidate differs from committed
	DecayFactor           float64 // multiplicative confidence decay per tick without commit
	RSIDivergenceLookback int
}

// DefaultClassifierConfig returns the standard parameter set
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		Indicators:            indicators.DefaultConfig(),
		PersistenceThreshold:  3,
		CommitConfidence:      0.6,
		FastPathConfidence:    0.85,
		TransitionSensitivity: 0.95,
		DecayFactor:           0.95,
		RSIDivergenceLookback: 10,
	}
}

// Snapshot is the consistent view of committed regime state plus its active
// profile. Readers never observe a committed regime without the profile that
// commit activated.
type Snapshot struct {
	Regime           Label     `json:"regime"`
	Class            Class     `json:"class"`
	Confidence       float64   `json:"confidence"`
	PersistenceCount int       `json:"persistence_count"`
	LastDetected     Label     `json:"last_detected"`
	Profile          Profile   `json:"profile"`
	ManualOverride   bool      `json:"manual_override"`
	EvaluatedAt      time.Time `json:"evaluated_at"`
}

// Classifier scores market data against the regime categories and maintains
// the committed regime with hysteresis. All mutation happens inside Evaluate
// under one mutex, so readers get atomic snapshots.
type Classifier struct {
	config  ClassifierConfig
	history HistoryStore
	pm      *ProfileManager
	logger  zerolog.Logger

	mu               sync.RWMutex
	committed        Label
	committedClass   Class
	confidence       float64
	lastDetected     Label
	persistenceCount int
	manualOverride   bool
	evaluatedAt      time.Time
}

// NewClassifier creates a classifier. history may be nil when persistence is
// disabled; pm is required.
func NewClassifier(config ClassifierConfig, pm *ProfileManager, history HistoryStore, logger zerolog.Logger) *Classifier {
	return &Classifier{
		config:         config,
		history:        history,
		pm:             pm,
		logger:         logger,
		committed:      Unknown,
		committedClass: Class{Unknown, VolatilityNormal},
		lastDetected:   Unknown,
	}
}

// Snapshot returns the current committed regime with its active profile
func (c *Classifier) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

func (c *Classifier) snapshotLocked() Snapshot {
	return Snapshot{
		Regime:           c.committed,
		Class:            c.committedClass,
		Confidence:       c.confidence,
		PersistenceCount: c.persistenceCount,
		LastDetected:     c.lastDetected,
		Profile:          c.pm.ActiveProfile(),
		ManualOverride:   c.manualOverride,
		EvaluatedAt:      c.evaluatedAt,
	}
}

// SetOverride pins a named profile and suppresses automatic regime-driven
// switching until cleared
func (c *Classifier) SetOverride(profileName string) (Profile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	profile, err := c.pm.ActivateByName(profileName)
	if err != nil {
		return Profile{}, err
	}
	c.manualOverride = true
	c.logger.Info().Str("profile", profile.Name).Msg("manual profile override engaged")
	return profile, nil
}

// ClearOverride disables the manual override and reverts to the profile
// implied by the committed regime
func (c *Classifier) ClearOverride() Profile {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.manualOverride = false
	profile := c.pm.ActivateForClass(c.committedClass)
	c.logger.Info().Str("profile", profile.Name).Msg("manual profile override cleared")
	return profile
}

// Evaluate runs one classification tick over the primary symbol's candles and
// returns the resulting snapshot. Insufficient history leaves the committed
// regime untouched.
func (c *Classifier) Evaluate(candles []market.Candle) (Snapshot, error) {
	cfg := c.config.Indicators
	minBars := 2*cfg.ADXPeriod + 1
	if cfg.EMASlowPeriod+1 > minBars {
		minBars = cfg.EMASlowPeriod + 1
	}
	if len(candles) < minBars {
		return c.Snapshot(), fmt.Errorf("insufficient history: have %d candles, need %d", len(candles), minBars)
	}

	frame := indicators.NewFrame(candles, cfg)
	metrics := c.extractMetrics(frame)
	scores := c.scoreRegimes(frame, metrics)

	candidate, maxScore, margin := topScore(scores)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.evaluatedAt = time.Now()
	c.confidence *= c.config.DecayFactor

	if candidate == Unknown || maxScore <= 0 {
		c.lastDetected = Unknown
		c.persistenceCount = 0
		return c.snapshotLocked(), nil
	}

	confidence := 0.7*(maxScore/10) + 0.3*(margin/10)
	if candidate != c.committed {
		confidence *= c.config.TransitionSensitivity
	}
	if confidence > 1 {
		confidence = 1
	}

	if candidate == c.lastDetected {
		c.persistenceCount++
		// Repeated detection firms up the reading
		confidence = math.Min(1, confidence*1.05)
	} else {
		c.persistenceCount = 1
	}
	c.lastDetected = candidate

	persisted := c.persistenceCount >= c.config.PersistenceThreshold && confidence >= c.config.CommitConfidence
	fastPath := confidence > c.config.FastPathConfidence

	if candidate == c.committed {
		// Same regime: refresh confidence, nothing to commit
		c.confidence = confidence
		return c.snapshotLocked(), nil
	}

	if !persisted && !fastPath {
		return c.snapshotLocked(), nil
	}

	previous := c.committed
	c.committed = candidate
	c.committedClass = Class{Label: candidate, Volatility: metrics.Tier()}
	c.confidence = confidence

	if c.history != nil {
		entry := HistoryEntry{
			Timestamp:      c.evaluatedAt,
			Regime:         candidate,
			Confidence:     confidence,
			Metrics:        metrics,
			PreviousRegime: previous,
		}
		if err := c.history.Append(entry); err != nil {
			c.logger.Error().Err(err).Msg("failed to append regime history")
		}
	}

	if !c.manualOverride {
		profile := c.pm.ActivateForClass(c.committedClass)
		c.logger.Info().
			Str("regime", string(candidate)).
			Str("previous", string(previous)).
			Float64("confidence", confidence).
			Str("profile", profile.Name).
			Msg("regime committed")
	} else {
		c.logger.Info().
			Str("regime", string(candidate)).
			Str("previous", string(previous)).
			Msg("regime committed (profile frozen by override)")
	}

	return c.snapshotLocked(), nil
}

func (c *Classifier) extractMetrics(frame *indicators.Frame) Metrics {
	i := frame.Len() - 1

	metrics := Metrics{
		Close:      frame.Candles[i].Close,
		ADX:        frame.ADX.ADX[i],
		PlusDI:     frame.ADX.PlusDI[i],
		MinusDI:    frame.ADX.MinusDI[i],
		RSI:        frame.RSIValues[i],
		EMAAligned: frame.EMAAligned[i],
		BollingerWidth: frame.Bollinger.Width[i],
		PercentB:   frame.Bollinger.PercentB[i],
	}

	atr := frame.ATRValues[i]
	if avg := trailingATRAverage(frame.ATRValues, i, c.config.Indicators.VolatilityLookback); avg > 0 && indicators.Defined(atr) {
		metrics.VolatilityRatio = atr / avg
	}

	return metrics
}

// scoreRegimes applies the weighted rule set. Rules are additive point
// contributions and deliberately not mutually exclusive: a squeeze feeds
// BREAKOUT_FORMING and LOW_VOLATILITY at the same time.
func (c *Classifier) scoreRegimes(frame *indicators.Frame, m Metrics) map[Label]float64 {
	scores := make(map[Label]float64, len(AllLabels))

	i := frame.Len() - 1
	adxDefined := indicators.Defined(m.ADX)
	diDefined := indicators.Defined(m.PlusDI) && indicators.Defined(m.MinusDI)
	rsiDefined := indicators.Defined(m.RSI)
	bullishDI := diDefined && m.PlusDI > m.MinusDI
	bearishDI := diDefined && m.MinusDI > m.PlusDI

	squeeze := c.bollingerSqueeze(frame, i)
	divergence := c.rsiDivergence(frame, i)

	// Trend regimes
	if adxDefined && m.ADX >= 30 {
		if bullishDI {
			scores[StrongUptrend] += 3
		}
		if bearishDI {
			scores[StrongDowntrend] += 3
		}
	}
	if adxDefined && m.ADX >= 18 && m.ADX < 30 {
		if bullishDI {
			scores[WeakUptrend] += 3
		}
		if bearishDI {
			scores[WeakDowntrend] += 3
		}
	}
	switch m.EMAAligned {
	case 1:
		scores[StrongUptrend] += 3
	case -1:
		scores[StrongDowntrend] += 3
	default:
		scores[Ranging] += 2
	}

	fast, medium, slow := frame.EMAFast[i], frame.EMAMedium[i], frame.EMASlow[i]
	if indicators.Defined(fast) && indicators.Defined(medium) {
		if fast > medium {
			scores[WeakUptrend] += 2
		} else if fast < medium {
			scores[WeakDowntrend] += 2
		}
	}
	if indicators.Defined(slow) {
		if m.Close > slow {
			scores[WeakUptrend]++
		} else if m.Close < slow {
			scores[WeakDowntrend]++
		}
	}
	if indicators.Defined(fast) {
		if m.Close > fast {
			scores[StrongUptrend]++
		} else if m.Close < fast {
			scores[StrongDowntrend]++
		}
	}

	// RSI contributions
	if rsiDefined {
		switch {
		case m.RSI >= 55 && m.RSI <= 75:
			scores[StrongUptrend] += 2
		case m.RSI >= 50 && m.RSI < 65:
			scores[WeakUptrend] += 2
		}
		switch {
		case m.RSI >= 25 && m.RSI <= 45:
			scores[StrongDowntrend] += 2
		case m.RSI > 35 && m.RSI <= 50:
			scores[WeakDowntrend] += 2
		}
		if m.RSI >= 40 && m.RSI <= 60 {
			scores[Ranging] += 2
		}
		if m.RSI >= 75 || m.RSI <= 25 {
			scores[ReversalLikely] += 2
		}
	}

	// Ranging: weak directional movement
	if adxDefined && m.ADX < 18 {
		scores[Ranging] += 3
		scores[LowVolatility]++
	}

	// Bollinger position and width
	if indicators.Defined(m.PercentB) {
		if m.PercentB >= 0.8 {
			scores[StrongUptrend]++
		}
		if m.PercentB <= 0.2 {
			scores[StrongDowntrend]++
		}
		if m.PercentB > 1 || m.PercentB < 0 {
			scores[ReversalLikely] += 2
		}
	}

	// Volatility regimes
	if m.VolatilityRatio >= 1.5 {
		scores[HighVolatility] += 4
	} else if m.VolatilityRatio >= 1.25 {
		scores[HighVolatility] += 2
	}
	if m.VolatilityRatio > 0 && m.VolatilityRatio <= 0.7 {
		scores[LowVolatility] += 4
	}
	if indicators.Defined(m.BollingerWidth) && m.BollingerWidth >= 0.1 {
		scores[HighVolatility] += 3
	}

	// Compression: squeeze feeds both breakout-forming and low-volatility
	if squeeze {
		scores[BreakoutForming] += 4
		scores[LowVolatility] += 3
	}
	if frame.InsideBar[i] {
		scores[BreakoutForming] += 2
	}
	if adxDefined && m.ADX < 25 && squeeze {
		scores[BreakoutForming] += 2
	}

	// Divergence is the strongest reversal evidence
	if divergence {
		scores[ReversalLikely] += 4
	}

	return scores
}

// bollingerSqueeze reports whether current band width sits in the bottom
// quartile of the trailing window
func (c *Classifier) bollingerSqueeze(frame *indicators.Frame, i int) bool {
	width := frame.Bollinger.Width[i]
	if !indicators.Defined(width) {
		return false
	}
	lookback := c.config.Indicators.VolatilityLookback
	start := i - lookback + 1
	if start < 0 {
		start = 0
	}
	total, below := 0, 0
	for j := start; j <= i; j++ {
		w := frame.Bollinger.Width[j]
		if !indicators.Defined(w) {
			continue
		}
		total++
		if w < width {
			below++
		}
	}
	if total < lookback/2 {
		return false
	}
	return float64(below)/float64(total) <= 0.25
}

// rsiDivergence detects price/RSI disagreement over the lookback window:
// price making a new extreme while RSI fails to confirm
func (c *Classifier) rsiDivergence(frame *indicators.Frame, i int) bool {
	lookback := c.config.RSIDivergenceLookback
	j := i - lookback
	if j < 0 {
		return false
	}
	rsiNow, rsiThen := frame.RSIValues[i], frame.RSIValues[j]
	if !indicators.Defined(rsiNow) || !indicators.Defined(rsiThen) {
		return false
	}
	priceNow, priceThen := frame.Candles[i].Close, frame.Candles[j].Close

	// Bearish divergence: higher high in price, lower high in RSI
	if priceNow > priceThen && rsiNow < rsiThen-5 && rsiThen >= 65 {
		return true
	}
	// Bullish divergence: lower low in price, higher low in RSI
	if priceNow < priceThen && rsiNow > rsiThen+5 && rsiThen <= 35 {
		return true
	}
	return false
}

// topScore returns the argmax label, its score and the margin over the
// second-best score. Ties resolve by label order for determinism.
func topScore(scores map[Label]float64) (Label, float64, float64) {
	best, second := 0.0, 0.0
	winner := Unknown

	labels := make([]Label, 0, len(scores))
	for label := range scores {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(a, b int) bool { return labels[a] < labels[b] })

	for _, label := range labels {
		s := scores[label]
		if s > best {
			second = best
			best = s
			winner = label
		} else if s > second {
			second = s
		}
	}
	return winner, best, best - second
}

func trailingATRAverage(values []float64, idx, lookback int) float64 {
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
