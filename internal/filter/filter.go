// Package filter ranks, validates and sizes the raw signals produced in one
// scan cycle. Every rejection carries a reason for observability; nothing in
// the pipeline is fatal to the cycle.
package filter

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"futures-signal-bot/internal/regime"
	"futures-signal-bot/internal/risk"
	"futures-signal-bot/internal/strategy"
)

// Rejection reasons reported to the notification sink
const (
	ReasonExpired       = "signal_expired"
	ReasonLowConfidence = "below_confidence_threshold"
	ReasonInvalidPrices = "invalid_price_ordering"
	ReasonLowRiskReward = "risk_reward_below_minimum"
	ReasonLowWinProb    = "below_win_probability_threshold"
	ReasonDuplicate     = "duplicate_within_window"
	ReasonDailyCap      = "daily_signal_cap_reached"
	ReasonSizing        = "position_sizing_infeasible"
)

// Config holds filter tunables
type Config struct {
	MinRiskReward           float64
	WinProbabilityThreshold float64
	SignalExpiry            time.Duration
	DedupWindow             time.Duration
	TimeframeWeights        map[string]float64
}

// DefaultConfig returns the standard parameter set
func DefaultConfig() Config {
	return Config{
		MinRiskReward:           1.5,
		WinProbabilityThreshold: 90,
		SignalExpiry:            8 * time.Hour,
		DedupWindow:             4 * time.Hour,
		TimeframeWeights: map[string]float64{
			"15m": 0.9,
			"1h":  1.0,
			"4h":  1.1,
			"1d":  1.2,
		},
	}
}

// SizedSignal is an accepted signal with its computed position size
type SizedSignal struct {
	Signal strategy.Signal `json:"signal"`
	Sizing risk.Sizing     `json:"sizing"`
}

// Rejection records why a signal was dropped
type Rejection struct {
	Signal strategy.Signal `json:"signal"`
	Reason string          `json:"reason"`
}

// Filter applies the signal pipeline: confidence threshold, validity,
// risk/reward, win probability, dedup, daily caps, sizing
type Filter struct {
	config  Config
	dedup   DedupStore
	counter DailyCounter
	sizer   *risk.Manager
	logger  zerolog.Logger
}

// New creates a filter
func New(config Config, dedup DedupStore, counter DailyCounter, sizer *risk.Manager, logger zerolog.Logger) *Filter {
	return &Filter{
		config:  config,
		dedup:   dedup,
		counter: counter,
		sizer:   sizer,
		logger:  logger,
	}
}

// WinProbability derives the bounded win-probability score from confidence,
// timeframe weight and risk/reward. The arithmetic is hand-tuned and pinned
// by tests; do not re-derive.
func (f *Filter) WinProbability(s *strategy.Signal) float64 {
	base := math.Min(s.Confidence, 90)

	tfWeight, ok := f.config.TimeframeWeights[s.Timeframe]
	if !ok {
		tfWeight = 1.0
	}

	rrComponent := math.Min(0.1*s.RiskReward(), 1.1)
	probability := base * (1 + 0.1*(tfWeight-1) + 0.1*(rrComponent-1))

	return math.Min(99.9, math.Max(0, probability))
}

// Process runs one scan cycle's raw signals through the pipeline under the
// given profile snapshot. The profile is read once so a concurrent profile
// switch cannot produce a mixed view.
func (f *Filter) Process(ctx context.Context, signals []strategy.Signal, profile regime.Profile) ([]SizedSignal, []Rejection) {
	var rejections []Rejection
	var candidates []strategy.Signal

	for _, s := range signals {
		switch {
		case f.config.SignalExpiry > 0 && time.Since(s.Timestamp) > f.config.SignalExpiry:
			rejections = append(rejections, Rejection{s, ReasonExpired})
		case s.Confidence < profile.ConfidenceThreshold:
			rejections = append(rejections, Rejection{s, ReasonLowConfidence})
		case !s.Valid():
			rejections = append(rejections, Rejection{s, ReasonInvalidPrices})
		case s.RiskReward() < f.config.MinRiskReward:
			rejections = append(rejections, Rejection{s, ReasonLowRiskReward})
		default:
			s.WinProbability = f.WinProbability(&s)
			if s.WinProbability < f.config.WinProbabilityThreshold {
				rejections = append(rejections, Rejection{s, ReasonLowWinProb})
				continue
			}
			candidates = append(candidates, s)
		}
	}

	// Dedup before allocation so a duplicate cannot consume a cap slot
	var fresh []strategy.Signal
	for _, s := range candidates {
		seen, err := f.dedup.Seen(ctx, s.Fingerprint())
		if err != nil {
			f.logger.Warn().Err(err).Str("signal", s.ID).Msg("dedup store unavailable, allowing signal")
			seen = false
		}
		if seen {
			rejections = append(rejections, Rejection{s, ReasonDuplicate})
			continue
		}
		fresh = append(fresh, s)
	}

	// Daily cap with weighted per-strategy allocation
	selected, capped := f.allocate(ctx, fresh, profile)
	rejections = append(rejections, capped...)

	var accepted []SizedSignal
	sent := 0
	for _, s := range selected {
		// MarkSent still guards same-cycle duplicates that Seen cannot
		recorded, err := f.dedup.MarkSent(ctx, s.Fingerprint(), f.config.DedupWindow)
		if err != nil {
			f.logger.Warn().Err(err).Str("signal", s.ID).Msg("dedup store unavailable, allowing signal")
			recorded = true
		}
		if !recorded {
			rejections = append(rejections, Rejection{s, ReasonDuplicate})
			continue
		}

		sizing, err := f.sizer.Size(profile.PositionSizePercent, s.EntryPrice)
		if err != nil {
			f.logger.Info().Err(err).Str("symbol", s.Symbol).Msg("signal dropped by sizing")
			rejections = append(rejections, Rejection{s, ReasonSizing})
			continue
		}

		accepted = append(accepted, SizedSignal{Signal: s, Sizing: sizing})
		sent++
	}

	if sent > 0 {
		if err := f.counter.Add(ctx, sent); err != nil {
			f.logger.Warn().Err(err).Msg("daily counter unavailable")
		}
	}

	return accepted, rejections
}

// allocate enforces the daily signal cap, splitting the remaining slots
// across strategies proportionally to the profile's strategy weights. Each
// strategy's slots go to its top signals by win probability; leftover slots
// from rounding go to strategies in descending weight order.
func (f *Filter) allocate(ctx context.Context, candidates []strategy.Signal, profile regime.Profile) ([]strategy.Signal, []Rejection) {
	if len(candidates) == 0 {
		return nil, nil
	}

	sentToday, err := f.counter.SentToday(ctx)
	if err != nil {
		f.logger.Warn().Err(err).Msg("daily counter unavailable, assuming zero sent")
		sentToday = 0
	}

	remaining := profile.MaxSignalsPerDay - sentToday
	if remaining <= 0 {
		rejections := make([]Rejection, len(candidates))
		for i, s := range candidates {
			rejections[i] = Rejection{s, ReasonDailyCap}
		}
		return nil, rejections
	}

	byStrategy := make(map[string][]strategy.Signal)
	for _, s := range candidates {
		byStrategy[s.StrategyID] = append(byStrategy[s.StrategyID], s)
	}
	for id := range byStrategy {
		group := byStrategy[id]
		sort.Slice(group, func(a, b int) bool {
			if group[a].WinProbability != group[b].WinProbability {
				return group[a].WinProbability > group[b].WinProbability
			}
			return group[a].ID < group[b].ID
		})
	}

	quotas := strategyQuotas(profile.StrategyWeights, byStrategy, remaining)

	var selected []strategy.Signal
	var rejections []Rejection
	for id, group := range byStrategy {
		quota := quotas[id]
		for i, s := range group {
			if i < quota {
				selected = append(selected, s)
			} else {
				rejections = append(rejections, Rejection{s, ReasonDailyCap})
			}
		}
	}

	sort.Slice(selected, func(a, b int) bool {
		if selected[a].WinProbability != selected[b].WinProbability {
			return selected[a].WinProbability > selected[b].WinProbability
		}
		return selected[a].ID < selected[b].ID
	})
	return selected, rejections
}

// strategyQuotas computes floor(remaining * weight / totalWeight) per
// strategy, capped at the strategy's candidate count, then fills remaining
// slots round-robin in descending weight order among strategies that still
// have surplus candidates. Strategies missing from the weight map get weight
// zero, so with no usable weights at all the fill loop splits slots evenly.
func strategyQuotas(weights map[string]float64, byStrategy map[string][]strategy.Signal, remaining int) map[string]int {
	ids := make([]string, 0, len(byStrategy))
	for id := range byStrategy {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	totalWeight := 0.0
	for _, id := range ids {
		totalWeight += weights[id]
	}

	quotas := make(map[string]int, len(ids))
	allocated := 0
	if totalWeight > 0 {
		for _, id := range ids {
			q := int(math.Floor(float64(remaining) * weights[id] / totalWeight))
			if q > len(byStrategy[id]) {
				q = len(byStrategy[id])
			}
			quotas[id] = q
			allocated += q
		}
	}

	// Unfilled slots by descending weight, label order breaking ties
	sort.SliceStable(ids, func(a, b int) bool { return weights[ids[a]] > weights[ids[b]] })
	for allocated < remaining {
		progressed := false
		for _, id := range ids {
			if allocated >= remaining {
				break
			}
			if quotas[id] < len(byStrategy[id]) {
				quotas[id]++
				allocated++
				progressed = true
			}
		}
		if !progressed {
			break
		}
	}

	return quotas
}
