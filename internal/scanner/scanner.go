package scanner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"futures-signal-bot/internal/execution"
	"futures-signal-bot/internal/filter"
	"futures-signal-bot/internal/market"
	"futures-signal-bot/internal/notification"
	"futures-signal-bot/internal/regime"
	"futures-signal-bot/internal/risk"
	"futures-signal-bot/internal/strategy"
)

// SignalStore persists accepted signals. Nil-safe at the call site so the
// scanner runs without a database in dry-run setups.
type SignalStore interface {
	Insert(s strategy.Signal) error
}

// Scanner orchestrates the full cycle: fetch candles, run strategies,
// filter and size the candidates, then execute, notify and persist
type Scanner struct {
	provider   market.Provider
	strategies []strategy.Strategy
	classifier *regime.Classifier
	pipeline   *filter.Filter
	executor   execution.Executor
	notifier   *notification.Manager
	riskMgr    *risk.Manager
	stream     *market.KlineStream
	store      SignalStore
	config     Config
	cache      *candleCache
	logger     zerolog.Logger

	stopChan chan struct{}
	wg       sync.WaitGroup
	mu       sync.RWMutex
	lastScan *ScanResult
}

// New creates a scanner instance
func New(
	provider market.Provider,
	strategies []strategy.Strategy,
	classifier *regime.Classifier,
	pipeline *filter.Filter,
	executor execution.Executor,
	notifier *notification.Manager,
	riskMgr *risk.Manager,
	stream *market.KlineStream,
	store SignalStore,
	config Config,
	logger zerolog.Logger,
) *Scanner {
	return &Scanner{
		provider:   provider,
		strategies: strategies,
		classifier: classifier,
		pipeline:   pipeline,
		executor:   executor,
		notifier:   notifier,
		riskMgr:    riskMgr,
		stream:     stream,
		store:      store,
		config:     config,
		cache:      newCandleCache(config.CacheTTL),
		logger:     logger,
		stopChan:   make(chan struct{}),
	}
}

// Start begins the background scan loop
func (sc *Scanner) Start() {
	if !sc.config.Enabled {
		sc.logger.Info().Msg("scanner disabled")
		return
	}

	sc.wg.Add(1)
	go sc.runScanLoop()
	sc.logger.Info().
		Dur("interval", sc.config.ScanInterval).
		Int("symbols", len(sc.config.Symbols)).
		Bool("dry_run", sc.config.DryRun).
		Msg("scanner started")
}

func (sc *Scanner) runScanLoop() {
	defer sc.wg.Done()

	ticker := time.NewTicker(sc.config.ScanInterval)
	defer ticker.Stop()

	sc.Scan()

	for {
		select {
		case <-ticker.C:
			sc.Scan()
		case <-sc.stopChan:
			sc.logger.Info().Msg("scanner stopped")
			return
		}
	}
}

// Scan executes a single scan cycle
func (sc *Scanner) Scan() *ScanResult {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	startTime := time.Now()
	result := &ScanResult{
		ScanID:    fmt.Sprintf("scan-%d", startTime.Unix()),
		StartTime: startTime,
	}

	sc.logger.Info().Str("scan_id", result.ScanID).Msg("starting scan")

	// Worker pool across symbol/timeframe pairs
	type task struct {
		symbol    string
		timeframe string
	}
	taskChan := make(chan task, len(sc.config.Symbols)*len(sc.config.Timeframes))
	outcomeChan := make(chan SymbolOutcome, cap(taskChan))

	var wg sync.WaitGroup
	for i := 0; i < sc.config.WorkerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range taskChan {
				select {
				case <-ctx.Done():
					return
				default:
				}
				outcomeChan <- sc.scanSymbol(ctx, t.symbol, t.timeframe)
			}
		}()
	}

	for _, symbol := range sc.config.Symbols {
		for _, tf := range sc.config.Timeframes {
			taskChan <- task{symbol, tf}
		}
	}
	close(taskChan)

	go func() {
		wg.Wait()
		close(outcomeChan)
	}()

	var raw []strategy.Signal
	seen := map[string]bool{}
	for outcome := range outcomeChan {
		if outcome.Err != nil {
			result.Errors = append(result.Errors,
				fmt.Sprintf("%s %s: %v", outcome.Symbol, outcome.Timeframe, outcome.Err))
			continue
		}
		if !seen[outcome.Symbol] {
			seen[outcome.Symbol] = true
			result.SymbolsScanned++
		}
		raw = append(raw, outcome.Signals...)
	}
	result.RawSignals = len(raw)

	profile := sc.classifier.Snapshot().Profile
	accepted, rejections := sc.pipeline.Process(ctx, raw, profile)
	result.Accepted = accepted
	result.Rejections = rejections

	for _, rej := range rejections {
		sc.notifier.SendSkip(rej.Signal.Symbol, rej.Signal.StrategyID, rej.Reason)
	}
	for _, sized := range accepted {
		sc.dispatch(ctx, sized, profile)
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(startTime)

	sc.mu.Lock()
	sc.lastScan = result
	sc.mu.Unlock()

	sc.logger.Info().
		Str("scan_id", result.ScanID).
		Dur("duration", result.Duration).
		Int("raw", result.RawSignals).
		Int("accepted", len(accepted)).
		Int("rejected", len(rejections)).
		Msg("scan completed")

	return result
}

// scanSymbol fetches candles for one symbol/timeframe and runs every strategy
func (sc *Scanner) scanSymbol(ctx context.Context, symbol, timeframe string) SymbolOutcome {
	outcome := SymbolOutcome{Symbol: symbol, Timeframe: timeframe}

	candles, err := sc.fetchCandles(ctx, symbol, timeframe)
	if err != nil {
		outcome.Err = err
		return outcome
	}

	for _, strat := range sc.strategies {
		signals, err := strat.GenerateSignals(symbol, timeframe, candles)
		if err != nil {
			sc.logger.Warn().Err(err).
				Str("symbol", symbol).
				Str("strategy", strat.Name()).
				Msg("strategy evaluation failed")
			continue
		}
		outcome.Signals = append(outcome.Signals, signals...)
	}
	return outcome
}

// fetchCandles returns validated candles, preferring the websocket stream's
// window when it covers the pair, then the TTL cache, then a REST fetch
func (sc *Scanner) fetchCandles(ctx context.Context, symbol, timeframe string) ([]market.Candle, error) {
	if sc.stream != nil {
		if window := sc.stream.Candles(symbol, timeframe); len(window) >= sc.config.CandleLimit {
			window = window[len(window)-sc.config.CandleLimit:]
			if err := market.Validate(symbol, window); err == nil {
				return window, nil
			}
		}
	}

	key := symbol + "_" + timeframe
	if cached := sc.cache.get(key); cached != nil {
		return cached, nil
	}

	candles, err := sc.provider.GetCandles(ctx, symbol, timeframe, sc.config.CandleLimit)
	if err != nil {
		return nil, err
	}
	if err := market.Validate(symbol, candles); err != nil {
		return nil, err
	}
	sc.cache.set(key, candles)
	if sc.stream != nil {
		sc.stream.Seed(symbol, timeframe, candles)
	}
	return candles, nil
}

// dispatch executes, notifies and persists one accepted signal, subject to
// the risk manager's position limit and the profile's daily trade cap
func (sc *Scanner) dispatch(ctx context.Context, sized filter.SizedSignal, profile regime.Profile) {
	sig := sized.Signal

	if sc.riskMgr != nil {
		if ok, reason := sc.riskMgr.CanOpenPosition(); !ok {
			sc.logger.Warn().Str("symbol", sig.Symbol).Str("reason", reason).Msg("order skipped by risk limit")
			sc.notifier.SendSkip(sig.Symbol, sig.StrategyID, reason)
			return
		}
		if profile.MaxTradesPerDay > 0 && sc.riskMgr.TradesToday() >= profile.MaxTradesPerDay {
			sc.logger.Warn().
				Str("symbol", sig.Symbol).
				Int("max_trades", profile.MaxTradesPerDay).
				Msg("daily trade cap reached, order skipped")
			sc.notifier.SendSkip(sig.Symbol, sig.StrategyID, "daily_trade_cap")
			return
		}
	}

	res, err := sc.executor.PlaceOrder(ctx, execution.OrderRequest{
		Symbol:       sig.Symbol,
		Direction:    string(sig.Direction),
		Quantity:     sized.Sizing.Quantity,
		EntryPrice:   sig.EntryPrice,
		ProfitTarget: sig.ProfitTarget,
		StopLoss:     sig.StopLoss,
	})
	if err != nil {
		sc.logger.Error().Err(err).Str("symbol", sig.Symbol).Msg("order placement failed")
		sc.notifier.SendError("Order failed", fmt.Sprintf("%s %s: %v", sig.Symbol, sig.Direction, err))
		return
	}

	if sc.riskMgr != nil {
		sc.riskMgr.RegisterPositionOpen()
	}

	sc.logger.Info().
		Str("symbol", sig.Symbol).
		Str("direction", string(sig.Direction)).
		Str("order_id", res.OrderID).
		Float64("quantity", sized.Sizing.Quantity).
		Float64("win_probability", sig.WinProbability).
		Msg("signal executed")

	sc.notifier.SendSignal(sig.Symbol, string(sig.Direction), sig.StrategyID,
		sig.EntryPrice, sig.StopLoss, sig.ProfitTarget, sized.Sizing.Quantity, sig.WinProbability)

	if sc.store != nil {
		if err := sc.store.Insert(sig); err != nil {
			sc.logger.Error().Err(err).Str("symbol", sig.Symbol).Msg("signal persistence failed")
		}
	}
}

// EvaluateRegime runs one regime classification tick on the configured
// reference symbol/timeframe and notifies on committed transitions
func (sc *Scanner) EvaluateRegime(ctx context.Context, symbol, timeframe string) (regime.Snapshot, error) {
	before := sc.classifier.Snapshot()

	candles, err := sc.fetchCandles(ctx, symbol, timeframe)
	if err != nil {
		return regime.Snapshot{}, fmt.Errorf("fetching regime candles: %w", err)
	}

	after, err := sc.classifier.Evaluate(candles)
	if err != nil {
		return regime.Snapshot{}, err
	}

	if after.Regime != before.Regime {
		sc.notifier.SendRegimeChange(string(before.Regime), string(after.Regime),
			after.Confidence, after.Profile.Name)
	}
	return after, nil
}

// LastScan returns the most recent scan result
func (sc *Scanner) LastScan() *ScanResult {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.lastScan
}

// Stop gracefully shuts down the scanner
func (sc *Scanner) Stop() {
	close(sc.stopChan)
	sc.wg.Wait()
}
