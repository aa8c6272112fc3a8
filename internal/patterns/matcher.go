// Package patterns mines the regime history log for recurring transition
// patterns and produces next-regime forecasts. Analysis is stateless: every
// call recomputes from the full (bounded) history, so identical input always
// yields identical output.
package patterns

import (
	"fmt"
	"sort"
	"strings"

	"futures-signal-bot/internal/regime"
)

// Sequence lengths considered when mining patterns
const (
	MinSequenceLength = 2
	MaxSequenceLength = 5
)

// Config holds pattern mining tunables
type Config struct {
	MaxHistory          int     // most recent entries considered
	MinOccurrences      int     // patterns seen fewer times are dropped
	TransitionThreshold float64 // minimum direct transition probability used in forecasts
}

// DefaultConfig returns the standard parameter set
func DefaultConfig() Config {
	return Config{
		MaxHistory:          200,
		MinOccurrences:      2,
		TransitionThreshold: 0.15,
	}
}

// Pattern is a recurring regime-label sequence with its aggregate statistics
type Pattern struct {
	Sequence       []regime.Label `json:"sequence"`
	Occurrences    int            `json:"occurrences"`
	Reliability    float64        `json:"reliability"`
	AvgConfidence  float64        `json:"avg_confidence"`
	AvgDurationSec float64        `json:"avg_duration_sec"`
	AvgPerformance float64        `json:"avg_performance"` // mean close change over the sequence span
}

// Key renders the sequence as a stable string for grouping and display
func (p Pattern) Key() string {
	parts := make([]string, len(p.Sequence))
	for i, label := range p.Sequence {
		parts[i] = string(label)
	}
	return strings.Join(parts, ">")
}

// Forecast is one next-regime candidate with its combined probability
type Forecast struct {
	Regime      regime.Label `json:"regime"`
	Probability float64      `json:"probability"`
	Source      string       `json:"source"` // "transition", "pattern", or "combined"
}

// Matcher mines patterns from a HistoryStore
type Matcher struct {
	config  Config
	history regime.HistoryStore
}

// NewMatcher creates a matcher over the given history store
func NewMatcher(config Config, history regime.HistoryStore) *Matcher {
	return &Matcher{config: config, history: history}
}

// Analyze recomputes the retained pattern set from the recent history
func (m *Matcher) Analyze() ([]Pattern, error) {
	entries, err := m.history.ReadRecent(m.config.MaxHistory)
	if err != nil {
		return nil, fmt.Errorf("reading regime history: %w", err)
	}
	return minePatterns(entries, m.config.MinOccurrences), nil
}

// Transitions recomputes the transition-probability matrix from consecutive
// history pairs: P(next|current) = count(current->next) / count(current->*)
func (m *Matcher) Transitions() (map[regime.Label]map[regime.Label]float64, error) {
	entries, err := m.history.ReadRecent(m.config.MaxHistory)
	if err != nil {
		return nil, fmt.Errorf("reading regime history: %w", err)
	}
	return transitionMatrix(entries), nil
}

// Predict forecasts the next regime for the given current label, optionally
// refined by the recent label sequence leading up to it. Returns at most the
// top 3 candidates ranked by probability.
func (m *Matcher) Predict(current regime.Label, recent []regime.Label) ([]Forecast, error) {
	entries, err := m.history.ReadRecent(m.config.MaxHistory)
	if err != nil {
		return nil, fmt.Errorf("reading regime history: %w", err)
	}

	matrix := transitionMatrix(entries)
	mined := minePatterns(entries, m.config.MinOccurrences)

	candidates := make(map[regime.Label]*Forecast)

	// Direct transition probabilities above the threshold
	for next, prob := range matrix[current] {
		if prob < m.config.TransitionThreshold {
			continue
		}
		candidates[next] = &Forecast{Regime: next, Probability: prob, Source: "transition"}
	}

	// Pattern-based predictions: any retained pattern whose prefix matches
	// the recent sequence plus the current label predicts its final element
	context := append(append([]regime.Label{}, recent...), current)
	for _, p := range mined {
		prefix := p.Sequence[:len(p.Sequence)-1]
		if !suffixMatches(context, prefix) {
			continue
		}
		predicted := p.Sequence[len(p.Sequence)-1]
		weight := p.Reliability * minFloat(1, float64(p.Occurrences)/10)

		if existing, ok := candidates[predicted]; ok {
			// Both methods agree: average their probabilities
			existing.Probability = (existing.Probability + weight) / 2
			existing.Source = "combined"
		} else {
			candidates[predicted] = &Forecast{Regime: predicted, Probability: weight, Source: "pattern"}
		}
	}

	forecasts := make([]Forecast, 0, len(candidates))
	for _, f := range candidates {
		forecasts = append(forecasts, *f)
	}
	sort.Slice(forecasts, func(a, b int) bool {
		if forecasts[a].Probability != forecasts[b].Probability {
			return forecasts[a].Probability > forecasts[b].Probability
		}
		return forecasts[a].Regime < forecasts[b].Regime
	})
	if len(forecasts) > 3 {
		forecasts = forecasts[:3]
	}
	return forecasts, nil
}

func minePatterns(entries []regime.HistoryEntry, minOccurrences int) []Pattern {
	type aggregate struct {
		sequence    []regime.Label
		count       int
		confidence  float64
		duration    float64
		performance float64
	}
	groups := make(map[string]*aggregate)

	for length := MinSequenceLength; length <= MaxSequenceLength; length++ {
		for start := 0; start+length <= len(entries); start++ {
			window := entries[start : start+length]

			sequence := make([]regime.Label, length)
			keyParts := make([]string, length)
			confidence := 0.0
			for i, e := range window {
				sequence[i] = e.Regime
				keyParts[i] = string(e.Regime)
				confidence += e.Confidence
			}
			key := strings.Join(keyParts, ">")

			group, ok := groups[key]
			if !ok {
				group = &aggregate{sequence: sequence}
				groups[key] = group
			}
			group.count++
			group.confidence += confidence / float64(length)
			group.duration += window[length-1].Timestamp.Sub(window[0].Timestamp).Seconds()

			if first := window[0].Metrics.Close; first > 0 {
				group.performance += (window[length-1].Metrics.Close - first) / first
			}
		}
	}

	patterns := make([]Pattern, 0, len(groups))
	for _, g := range groups {
		if g.count < minOccurrences {
			continue
		}
		n := float64(g.count)
		avgConfidence := g.confidence / n
		patterns = append(patterns, Pattern{
			Sequence:       g.sequence,
			Occurrences:    g.count,
			AvgConfidence:  avgConfidence,
			AvgDurationSec: g.duration / n,
			AvgPerformance: g.performance / n,
			Reliability:    0.6*avgConfidence + 0.4*minFloat(1, n/10),
		})
	}

	sort.Slice(patterns, func(a, b int) bool {
		if patterns[a].Reliability != patterns[b].Reliability {
			return patterns[a].Reliability > patterns[b].Reliability
		}
		return patterns[a].Key() < patterns[b].Key()
	})
	return patterns
}

func transitionMatrix(entries []regime.HistoryEntry) map[regime.Label]map[regime.Label]float64 {
	counts := make(map[regime.Label]map[regime.Label]int)
	totals := make(map[regime.Label]int)

	for i := 1; i < len(entries); i++ {
		from, to := entries[i-1].Regime, entries[i].Regime
		if counts[from] == nil {
			counts[from] = make(map[regime.Label]int)
		}
		counts[from][to]++
		totals[from]++
	}

	matrix := make(map[regime.Label]map[regime.Label]float64, len(counts))
	for from, row := range counts {
		matrix[from] = make(map[regime.Label]float64, len(row))
		for to, n := range row {
			matrix[from][to] = float64(n) / float64(totals[from])
		}
	}
	return matrix
}

// suffixMatches reports whether prefix appears as the tail of context
func suffixMatches(context, prefix []regime.Label) bool {
	if len(prefix) > len(context) {
		return false
	}
	offset := len(context) - len(prefix)
	for i, label := range prefix {
		if context[offset+i] != label {
			return false
		}
	}
	return true
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
