package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"futures-signal-bot/internal/filter"
	"futures-signal-bot/internal/risk"
	"futures-signal-bot/internal/scanner"
)

// Config holds the cron expressions for the recurring jobs
type Config struct {
	RegimeCron      string
	DailyResetCron  string
	RegimeSymbol    string
	RegimeTimeframe string
}

// DefaultConfig runs the regime check hourly and the daily reset at
// midnight UTC
func DefaultConfig() Config {
	return Config{
		RegimeCron:      "0 * * * *",
		DailyResetCron:  "0 0 * * *",
		RegimeSymbol:    "BTCUSDT",
		RegimeTimeframe: "1h",
	}
}

// Scheduler runs the recurring maintenance jobs: the hourly regime
// classification tick and the midnight-UTC daily counter reset
type Scheduler struct {
	cron    *cron.Cron
	scanner *scanner.Scanner
	riskMgr *risk.Manager
	counter filter.DailyCounter
	config  Config
	logger  zerolog.Logger
}

// New creates a scheduler; jobs run on UTC wall time
func New(sc *scanner.Scanner, riskMgr *risk.Manager, counter filter.DailyCounter, config Config, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(time.UTC)),
		scanner: sc,
		riskMgr: riskMgr,
		counter: counter,
		config:  config,
		logger:  logger,
	}
}

// Start registers and launches the cron jobs
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.config.RegimeCron, s.regimeTick); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(s.config.DailyResetCron, s.dailyReset); err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info().
		Str("regime_cron", s.config.RegimeCron).
		Str("daily_reset_cron", s.config.DailyResetCron).
		Msg("scheduler started")
	return nil
}

// Stop halts the cron runner and waits for in-flight jobs
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info().Msg("scheduler stopped")
}

func (s *Scheduler) regimeTick() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	snap, err := s.scanner.EvaluateRegime(ctx, s.config.RegimeSymbol, s.config.RegimeTimeframe)
	if err != nil {
		s.logger.Error().Err(err).Msg("regime tick failed")
		return
	}
	s.logger.Debug().
		Str("regime", string(snap.Regime)).
		Float64("confidence", snap.Confidence).
		Str("profile", snap.Profile.Name).
		Msg("regime tick")
}

func (s *Scheduler) dailyReset() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.counter.Reset(ctx); err != nil {
		s.logger.Error().Err(err).Msg("daily counter reset failed")
	}
	s.riskMgr.ResetDaily()
	s.logger.Info().Msg("daily counters reset")
}
