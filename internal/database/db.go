package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// Config holds database configuration. URL takes precedence over the
// individual fields when set.
type Config struct {
	URL      string `json:"url"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// NewDB creates a new database connection pool and verifies it
func NewDB(cfg Config) (*DB, error) {
	dsn := cfg.URL
	if dsn == "" {
		dsn = fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
		)
	}

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close closes the database connection pool
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
}

// RunMigrations creates the schema if it does not exist
func (db *DB) RunMigrations(ctx context.Context) error {
	migrations := []string{
		// Regime history is append-only: rows are never updated or deleted
		`CREATE TABLE IF NOT EXISTS regime_history (
			id SERIAL PRIMARY KEY,
			recorded_at TIMESTAMPTZ NOT NULL,
			regime VARCHAR(32) NOT NULL,
			previous_regime VARCHAR(32) NOT NULL,
			confidence DECIMAL(6, 4) NOT NULL,
			metrics JSONB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_regime_history_recorded_at ON regime_history(recorded_at)`,

		`CREATE TABLE IF NOT EXISTS signals (
			id UUID PRIMARY KEY,
			symbol VARCHAR(20) NOT NULL,
			timeframe VARCHAR(8) NOT NULL,
			strategy VARCHAR(50) NOT NULL,
			direction VARCHAR(5) NOT NULL,
			entry_price DECIMAL(20, 8) NOT NULL,
			profit_target DECIMAL(20, 8) NOT NULL,
			stop_loss DECIMAL(20, 8) NOT NULL,
			atr DECIMAL(20, 8),
			confidence DECIMAL(6, 2) NOT NULL,
			win_probability DECIMAL(6, 2),
			reason TEXT,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_symbol ON signals(symbol)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_created_at ON signals(created_at)`,
	}

	for _, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
