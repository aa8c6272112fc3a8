package scanner

import (
	"time"

	"futures-signal-bot/internal/filter"
	"futures-signal-bot/internal/strategy"
)

// Config controls scan behavior
type Config struct {
	Enabled      bool
	Symbols      []string
	Timeframes   []string
	CandleLimit  int
	ScanInterval time.Duration
	WorkerCount  int
	CacheTTL     time.Duration
	DryRun       bool
}

// DefaultConfig returns sensible scan defaults
func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		Symbols:      []string{"BTCUSDT", "ETHUSDT"},
		Timeframes:   []string{"1h", "4h"},
		CandleLimit:  200,
		ScanInterval: 4 * time.Hour,
		WorkerCount:  4,
		CacheTTL:     time.Minute,
		DryRun:       true,
	}
}

// SymbolOutcome holds what one symbol/timeframe pair produced
type SymbolOutcome struct {
	Symbol    string
	Timeframe string
	Signals   []strategy.Signal
	Err       error
}

// ScanResult summarizes a completed scan cycle
type ScanResult struct {
	ScanID         string    `json:"scan_id"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	Duration       time.Duration
	SymbolsScanned int                  `json:"symbols_scanned"`
	RawSignals     int                  `json:"raw_signals"`
	Accepted       []filter.SizedSignal `json:"accepted"`
	Rejections     []filter.Rejection   `json:"rejections"`
	Errors         []string             `json:"errors,omitempty"`
}
