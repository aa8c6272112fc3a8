package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"futures-signal-bot/config"
	"futures-signal-bot/internal/api"
	"futures-signal-bot/internal/cache"
	"futures-signal-bot/internal/database"
	"futures-signal-bot/internal/execution"
	"futures-signal-bot/internal/filter"
	"futures-signal-bot/internal/logging"
	"futures-signal-bot/internal/market"
	"futures-signal-bot/internal/notification"
	"futures-signal-bot/internal/patterns"
	"futures-signal-bot/internal/regime"
	"futures-signal-bot/internal/risk"
	"futures-signal-bot/internal/scanner"
	"futures-signal-bot/internal/scheduler"
	"futures-signal-bot/internal/strategy"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("failed to load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger := logging.New(logging.Config{
		Level:      cfg.LoggingConfig.Level,
		Output:     cfg.LoggingConfig.Output,
		JSONFormat: cfg.LoggingConfig.JSONFormat,
	})

	logger.Info().
		Bool("dry_run", cfg.TradingConfig.DryRun).
		Bool("mock_mode", cfg.BinanceConfig.MockMode).
		Msg("starting futures signal bot")

	// Market data
	var provider market.Provider
	if cfg.BinanceConfig.MockMode {
		provider = market.NewMockProvider()
	} else {
		provider = market.NewBinanceProvider(cfg.BinanceConfig.BaseURL)
	}

	// Persistence (optional)
	var db *database.DB
	var history regime.HistoryStore
	var signalRepo *database.SignalRepository
	if cfg.DatabaseConfig.Enabled {
		db, err = database.NewDB(database.Config{URL: cfg.DatabaseConfig.URL})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()

		migrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := db.RunMigrations(migrateCtx); err != nil {
			cancel()
			logger.Fatal().Err(err).Msg("failed to run migrations")
		}
		cancel()

		history = database.NewRegimeHistoryRepository(db)
		signalRepo = database.NewSignalRepository(db)
		logger.Info().Msg("database connected")
	} else {
		history = regime.NewMemoryHistory()
	}

	// Dedup and daily counting (Redis when enabled, in-memory otherwise)
	var dedup filter.DedupStore
	var counter filter.DailyCounter
	if cfg.RedisConfig.Enabled {
		redisClient, err := cache.NewClient(cache.Config{
			Addr:     cfg.RedisConfig.Address,
			Password: cfg.RedisConfig.Password,
			DB:       cfg.RedisConfig.DB,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()

		dedup = cache.NewRedisDedup(redisClient)
		counter = cache.NewRedisCounter(redisClient)
		logger.Info().Msg("redis connected")
	} else {
		dedup = filter.NewMemoryDedup()
		counter = filter.NewMemoryCounter()
	}

	// Regime classification
	profileManager := regime.NewProfileManager(regime.DefaultProfiles())
	classifier := regime.NewClassifier(regime.DefaultClassifierConfig(), profileManager, history,
		logging.Component(logger, "regime"))
	if cfg.RegimeConfig.OverrideProfile != "" {
		if _, err := classifier.SetOverride(cfg.RegimeConfig.OverrideProfile); err != nil {
			logger.Fatal().Err(err).Msg("invalid override profile")
		}
		logger.Info().Str("profile", cfg.RegimeConfig.OverrideProfile).Msg("profile override pinned from config")
	}

	matcher := patterns.NewMatcher(patterns.DefaultConfig(), history)

	// Risk and filtering
	riskConfig := risk.DefaultConfig()
	riskConfig.Leverage = cfg.RiskConfig.Leverage
	riskConfig.MinNotional = cfg.RiskConfig.MinNotional
	riskConfig.QuantityStep = cfg.RiskConfig.QuantityStep
	riskConfig.MaxOpenPositions = cfg.RiskConfig.MaxOpenPositions
	riskConfig.MaxDailyDrawdown = cfg.RiskConfig.MaxDailyDrawdown
	riskManager := risk.NewManager(riskConfig, logging.Component(logger, "risk"))
	riskManager.UpdateAccountBalance(cfg.TradingConfig.AccountBalance)

	filterConfig := filter.DefaultConfig()
	filterConfig.MinRiskReward = cfg.FilterConfig.MinRiskReward
	filterConfig.WinProbabilityThreshold = cfg.FilterConfig.WinProbabilityThreshold
	filterConfig.DedupWindow = cfg.DedupWindow()
	pipeline := filter.New(filterConfig, dedup, counter, riskManager,
		logging.Component(logger, "filter"))

	// Notifications
	notifier := notification.NewManager(logging.Component(logger, "notify"))
	notifier.AddNotifier(notification.NewLogNotifier(logger))
	if cfg.NotificationConfig.Enabled {
		if cfg.NotificationConfig.Telegram.Enabled {
			notifier.AddNotifier(notification.NewTelegramNotifier(notification.TelegramConfig{
				BotToken: cfg.NotificationConfig.Telegram.BotToken,
				ChatID:   cfg.NotificationConfig.Telegram.ChatID,
				Enabled:  true,
			}))
		}
		if cfg.NotificationConfig.Discord.Enabled {
			notifier.AddNotifier(notification.NewDiscordNotifier(notification.DiscordConfig{
				WebhookURL: cfg.NotificationConfig.Discord.WebhookURL,
				Enabled:    true,
			}))
		}
	}

	// Execution
	var executor execution.Executor
	if cfg.TradingConfig.DryRun || cfg.BinanceConfig.MockMode {
		executor = execution.NewDryRunExecutor(logging.Component(logger, "execution"))
	} else {
		executor = execution.NewBinanceExecutor(
			cfg.BinanceConfig.APIKey,
			cfg.BinanceConfig.SecretKey,
			cfg.BinanceConfig.BaseURL,
			logging.Component(logger, "execution"),
		)
	}

	// Strategies
	strategies := []strategy.Strategy{
		strategy.NewSupertrendADX(strategy.DefaultSupertrendADXConfig()),
		strategy.NewInsideBar(strategy.DefaultInsideBarConfig()),
	}

	// Scanner
	scanConfig := scanner.DefaultConfig()
	scanConfig.Enabled = cfg.ScannerConfig.Enabled
	scanConfig.Symbols = cfg.ScannerConfig.Symbols
	scanConfig.Timeframes = cfg.ScannerConfig.Timeframes
	scanConfig.CandleLimit = cfg.ScannerConfig.CandleLimit
	scanConfig.ScanInterval = cfg.ScanInterval()
	scanConfig.WorkerCount = cfg.ScannerConfig.WorkerCount
	scanConfig.CacheTTL = cfg.CacheTTL()
	scanConfig.DryRun = cfg.TradingConfig.DryRun

	var store scanner.SignalStore
	if signalRepo != nil {
		store = signalRepo
	}

	// Live candle stream keeps the regime reference pair warm; the scanner
	// prefers its window over REST fetches
	var stream *market.KlineStream
	if !cfg.BinanceConfig.MockMode {
		stream = market.NewKlineStream(cfg.BinanceConfig.WSBaseURL, scanConfig.CandleLimit,
			logging.Component(logger, "stream"))
		stream.Start([]string{cfg.RegimeConfig.Symbol}, []string{cfg.RegimeConfig.Timeframe})
	}

	sc := scanner.New(provider, strategies, classifier, pipeline, executor, notifier,
		riskManager, stream, store, scanConfig, logging.Component(logger, "scanner"))

	// Scheduler
	sched := scheduler.New(sc, riskManager, counter, scheduler.Config{
		RegimeCron:      cfg.RegimeConfig.RegimeCron,
		DailyResetCron:  cfg.RegimeConfig.DailyResetCron,
		RegimeSymbol:    cfg.RegimeConfig.Symbol,
		RegimeTimeframe: cfg.RegimeConfig.Timeframe,
	}, logging.Component(logger, "scheduler"))
	if err := sched.Start(); err != nil {
		logger.Fatal().Err(err).Msg("failed to start scheduler")
	}

	sc.Start()

	// API server
	var server *api.Server
	if cfg.ServerConfig.Enabled {
		var reader api.SignalReader
		if signalRepo != nil {
			reader = signalRepo
		}
		server = api.NewServer(api.ServerConfig{
			Port:           cfg.ServerConfig.Port,
			Host:           cfg.ServerConfig.Host,
			ProductionMode: cfg.ServerConfig.ProductionMode,
			AllowOrigins:   cfg.ServerConfig.AllowedOrigins,
		}, sc, classifier, matcher, history, reader, riskManager,
			logging.Component(logger, "api"))
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("failed to start api server")
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("shutting down")

	sc.Stop()
	sched.Stop()
	if stream != nil {
		stream.Stop()
	}
	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("api server shutdown failed")
		}
	}

	logger.Info().Msg("shutdown complete")
}
