package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"futures-signal-bot/internal/regime"
)

// RegimeHistoryRepository persists regime history entries. It satisfies
// regime.HistoryStore: append-only writes, oldest-first reads.
type RegimeHistoryRepository struct {
	db      *DB
	timeout time.Duration
}

// NewRegimeHistoryRepository creates a repository over an open pool
func NewRegimeHistoryRepository(db *DB) *RegimeHistoryRepository {
	return &RegimeHistoryRepository{db: db, timeout: 5 * time.Second}
}

// Append writes one committed regime change. Entries are never updated.
func (r *RegimeHistoryRepository) Append(entry regime.HistoryEntry) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	metrics, err := json.Marshal(entry.Metrics)
	if err != nil {
		return fmt.Errorf("marshaling metrics: %w", err)
	}

	_, err = r.db.Pool.Exec(ctx,
		`INSERT INTO regime_history (recorded_at, regime, previous_regime, confidence, metrics)
		 VALUES ($1, $2, $3, $4, $5)`,
		entry.Timestamp, string(entry.Regime), string(entry.PreviousRegime), entry.Confidence, metrics,
	)
	if err != nil {
		return fmt.Errorf("inserting regime history entry: %w", err)
	}
	return nil
}

// ReadRecent returns the most recent n entries ordered oldest-first
func (r *RegimeHistoryRepository) ReadRecent(n int) ([]regime.HistoryEntry, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	rows, err := r.db.Pool.Query(ctx,
		`SELECT recorded_at, regime, previous_regime, confidence, metrics
		 FROM (
			SELECT * FROM regime_history ORDER BY recorded_at DESC, id DESC LIMIT $1
		 ) recent
		 ORDER BY recorded_at ASC, id ASC`,
		n,
	)
	if err != nil {
		return nil, fmt.Errorf("querying regime history: %w", err)
	}
	defer rows.Close()

	var entries []regime.HistoryEntry
	for rows.Next() {
		var entry regime.HistoryEntry
		var label, previous string
		var metrics []byte
		if err := rows.Scan(&entry.Timestamp, &label, &previous, &entry.Confidence, &metrics); err != nil {
			return nil, fmt.Errorf("scanning regime history row: %w", err)
		}
		entry.Regime = regime.Label(label)
		entry.PreviousRegime = regime.Label(previous)
		if err := json.Unmarshal(metrics, &entry.Metrics); err != nil {
			return nil, fmt.Errorf("unmarshaling metrics: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
