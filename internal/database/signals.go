package database

import (
	"context"
	"fmt"
	"time"

	"futures-signal-bot/internal/strategy"
)

// SignalRepository persists emitted signals for reporting and the status API
type SignalRepository struct {
	db      *DB
	timeout time.Duration
}

// NewSignalRepository creates a repository over an open pool
func NewSignalRepository(db *DB) *SignalRepository {
	return &SignalRepository{db: db, timeout: 5 * time.Second}
}

// Insert records one emitted signal
func (r *SignalRepository) Insert(s strategy.Signal) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO signals
			(id, symbol, timeframe, strategy, direction, entry_price, profit_target,
			 stop_loss, atr, confidence, win_probability, reason, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		s.ID, s.Symbol, s.Timeframe, s.StrategyID, string(s.Direction), s.EntryPrice,
		s.ProfitTarget, s.StopLoss, s.ATR, s.Confidence, s.WinProbability, s.Reason, s.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("inserting signal: %w", err)
	}
	return nil
}

// Recent returns the most recent n signals, newest first
func (r *SignalRepository) Recent(n int) ([]strategy.Signal, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	rows, err := r.db.Pool.Query(ctx,
		`SELECT id, symbol, timeframe, strategy, direction, entry_price, profit_target,
			stop_loss, atr, confidence, win_probability, reason, created_at
		 FROM signals ORDER BY created_at DESC LIMIT $1`,
		n,
	)
	if err != nil {
		return nil, fmt.Errorf("querying signals: %w", err)
	}
	defer rows.Close()

	var signals []strategy.Signal
	for rows.Next() {
		var s strategy.Signal
		var direction string
		if err := rows.Scan(&s.ID, &s.Symbol, &s.Timeframe, &s.StrategyID, &direction,
			&s.EntryPrice, &s.ProfitTarget, &s.StopLoss, &s.ATR, &s.Confidence,
			&s.WinProbability, &s.Reason, &s.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning signal row: %w", err)
		}
		s.Direction = strategy.Direction(direction)
		signals = append(signals, s)
	}
	return signals, rows.Err()
}
