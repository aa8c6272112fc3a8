package market

import (
	"context"
	"strings"
	"sync"
)

// MockProvider serves canned candle data for dry-run mode and tests
type MockProvider struct {
	mu      sync.RWMutex
	candles map[string][]Candle
	prices  map[string]float64
}

// NewMockProvider creates an empty mock provider
func NewMockProvider() *MockProvider {
	return &MockProvider{
		candles: make(map[string][]Candle),
		prices:  make(map[string]float64),
	}
}

// SetCandles registers a candle series for a symbol/timeframe
func (m *MockProvider) SetCandles(symbol, timeframe string, candles []Candle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.candles[cacheKey(symbol, timeframe)] = candles
	if len(candles) > 0 {
		m.prices[strings.ToUpper(symbol)] = candles[len(candles)-1].Close
	}
}

// GetCandles returns the registered series, truncated to limit (most recent kept)
func (m *MockProvider) GetCandles(_ context.Context, symbol, timeframe string, limit int) ([]Candle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	series, ok := m.candles[cacheKey(symbol, timeframe)]
	if !ok {
		return []Candle{}, nil
	}
	if limit > 0 && len(series) > limit {
		series = series[len(series)-limit:]
	}
	out := make([]Candle, len(series))
	copy(out, series)
	return out, nil
}

// GetPrice returns the last registered close for a symbol
func (m *MockProvider) GetPrice(_ context.Context, symbol string) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	price, ok := m.prices[strings.ToUpper(symbol)]
	if !ok {
		return 0, &UpstreamDataError{Symbol: symbol, Reason: "no price registered"}
	}
	return price, nil
}
