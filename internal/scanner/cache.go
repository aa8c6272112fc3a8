package scanner

import (
	"sync"
	"time"

	"futures-signal-bot/internal/market"
)

// candleCache holds fetched candle batches with TTL so the regime tick and
// scan cycle can share a fetch when they fire close together
type candleCache struct {
	mu    sync.RWMutex
	cache map[string]*cachedCandles // key: symbol_timeframe
	ttl   time.Duration
}

type cachedCandles struct {
	candles   []market.Candle
	expiresAt time.Time
}

func newCandleCache(ttl time.Duration) *candleCache {
	return &candleCache{
		cache: make(map[string]*cachedCandles),
		ttl:   ttl,
	}
}

func (cc *candleCache) get(key string) []market.Candle {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	cached, exists := cc.cache[key]
	if !exists {
		return nil
	}
	if time.Now().After(cached.expiresAt) {
		return nil
	}
	return cached.candles
}

func (cc *candleCache) set(key string, candles []market.Candle) {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	cc.cache[key] = &cachedCandles{
		candles:   candles,
		expiresAt: time.Now().Add(cc.ttl),
	}
}
