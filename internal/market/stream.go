package market

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// klineEvent is the payload of a Binance futures kline stream message
type klineEvent struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	Kline     struct {
		OpenTime  int64  `json:"t"`
		CloseTime int64  `json:"T"`
		Interval  string `json:"i"`
		Open      string `json:"o"`
		Close     string `json:"c"`
		High      string `json:"h"`
		Low       string `json:"l"`
		Volume    string `json:"v"`
		Closed    bool   `json:"x"`
	} `json:"k"`
}

type combinedStreamMessage struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// KlineStream maintains a websocket subscription to Binance kline streams and
// keeps a rolling window of closed candles per symbol/timeframe. The scanner
// can read from this cache instead of hitting REST on every cycle.
type KlineStream struct {
	wsURL      string
	maxCandles int
	logger     zerolog.Logger

	mu      sync.RWMutex
	subs    map[string]bool     // pairs the websocket actually covers
	candles map[string][]Candle // "symbol:timeframe" -> oldest-first window

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewKlineStream creates a stream against the given websocket base URL
// (e.g. wss://fstream.binance.com)
func NewKlineStream(wsURL string, maxCandles int, logger zerolog.Logger) *KlineStream {
	if maxCandles <= 0 {
		maxCandles = 500
	}
	return &KlineStream{
		wsURL:      wsURL,
		maxCandles: maxCandles,
		logger:     logger,
		subs:       make(map[string]bool),
		candles:    make(map[string][]Candle),
		stopChan:   make(chan struct{}),
	}
}

// Start connects and begins consuming the combined stream for the given
// symbol/timeframe pairs. Reconnects with backoff until Stop is called.
func (s *KlineStream) Start(symbols []string, timeframes []string) {
	s.subscribe(symbols, timeframes)

	streams := make([]string, 0, len(symbols)*len(timeframes))
	for _, sym := range symbols {
		for _, tf := range timeframes {
			streams = append(streams, fmt.Sprintf("%s@kline_%s", strings.ToLower(sym), tf))
		}
	}
	if len(streams) == 0 {
		return
	}

	endpoint := fmt.Sprintf("%s/stream?streams=%s", s.wsURL, strings.Join(streams, "/"))

	s.wg.Add(1)
	go s.runLoop(endpoint)
}

// Stop closes the stream and waits for the read loop to exit
func (s *KlineStream) Stop() {
	close(s.stopChan)
	s.wg.Wait()
}

func (s *KlineStream) subscribe(symbols []string, timeframes []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sym := range symbols {
		for _, tf := range timeframes {
			s.subs[cacheKey(sym, tf)] = true
		}
	}
}

// Candles returns a copy of the cached window for a symbol/timeframe,
// oldest-first. Returns nil for pairs the stream does not cover: an
// unsubscribed window would never update once seeded.
func (s *KlineStream) Candles(symbol, timeframe string) []Candle {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key := cacheKey(symbol, timeframe)
	if !s.subs[key] {
		return nil
	}
	window, ok := s.candles[key]
	if !ok {
		return nil
	}
	out := make([]Candle, len(window))
	copy(out, window)
	return out
}

// Seed pre-populates the cache from a REST fetch so the window is usable
// before the stream has accumulated enough closed candles. Pairs the stream
// does not cover are ignored.
func (s *KlineStream) Seed(symbol, timeframe string, candles []Candle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := cacheKey(symbol, timeframe)
	if !s.subs[key] {
		return
	}
	window := make([]Candle, len(candles))
	copy(window, candles)
	if len(window) > s.maxCandles {
		window = window[len(window)-s.maxCandles:]
	}
	s.candles[key] = window
}

func (s *KlineStream) runLoop(endpoint string) {
	defer s.wg.Done()

	backoff := time.Second
	for {
		select {
		case <-s.stopChan:
			return
		default:
		}

		if err := s.consume(endpoint); err != nil {
			s.logger.Warn().Err(err).Msg("kline stream disconnected, reconnecting")
		}

		select {
		case <-s.stopChan:
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (s *KlineStream) consume(endpoint string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	cancel()
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}
	defer conn.Close()

	s.logger.Info().Str("endpoint", endpoint).Msg("kline stream connected")

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-s.stopChan:
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-s.stopChan:
				return nil
			default:
				return fmt.Errorf("read failed: %w", err)
			}
		}

		var wrapper combinedStreamMessage
		if err := json.Unmarshal(msg, &wrapper); err != nil {
			continue
		}
		var event klineEvent
		if err := json.Unmarshal(wrapper.Data, &event); err != nil || event.EventType != "kline" {
			continue
		}
		if !event.Kline.Closed {
			continue
		}

		s.appendCandle(event)
	}
}

func (s *KlineStream) appendCandle(event klineEvent) {
	candle := Candle{
		OpenTime:  event.Kline.OpenTime,
		CloseTime: event.Kline.CloseTime,
	}
	candle.Open, _ = strconv.ParseFloat(event.Kline.Open, 64)
	candle.High, _ = strconv.ParseFloat(event.Kline.High, 64)
	candle.Low, _ = strconv.ParseFloat(event.Kline.Low, 64)
	candle.Close, _ = strconv.ParseFloat(event.Kline.Close, 64)
	candle.Volume, _ = strconv.ParseFloat(event.Kline.Volume, 64)

	key := cacheKey(event.Symbol, event.Kline.Interval)

	s.mu.Lock()
	defer s.mu.Unlock()

	window := s.candles[key]
	if n := len(window); n > 0 && window[n-1].OpenTime == candle.OpenTime {
		window[n-1] = candle
	} else {
		window = append(window, candle)
	}
	if len(window) > s.maxCandles {
		window = window[len(window)-s.maxCandles:]
	}
	s.candles[key] = window
}

func cacheKey(symbol, timeframe string) string {
	return strings.ToUpper(symbol) + ":" + timeframe
}
