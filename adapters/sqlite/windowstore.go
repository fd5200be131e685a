package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/akhilsayshi/databot/domain/quota"
	"github.com/akhilsayshi/databot/ports"
)

// WindowStore implements ports.WindowStore on SQLite. The single UPSERT
// statement keeps increments atomic under concurrent writers; expired rows
// are ignored on read and removed by PurgeExpired.
type WindowStore struct {
	db    *DB
	clock ports.Clock
}

// NewWindowStore creates a SQLite window store using the given clock for
// TTL expiry.
func NewWindowStore(db *DB, clk ports.Clock) *WindowStore {
	return &WindowStore{db: db, clock: clk}
}

// Get retrieves the record under key, skipping rows whose TTL has passed.
func (s *WindowStore) Get(ctx context.Context, key string) (quota.WindowState, error) {
	now := s.clock.Now().Unix()
	row := s.db.QueryRowContext(ctx, `
		SELECT total_cost, request_count, error_count, rate_limited_count, window_start
		FROM usage_windows
		WHERE key = ? AND expires_at > ?
	`, key, now)

	var state quota.WindowState
	var windowStart int64
	err := row.Scan(
		&state.TotalCost,
		&state.RequestCount,
		&state.ErrorCount,
		&state.RateLimitedCount,
		&windowStart,
	)
	if err == sql.ErrNoRows {
		return quota.WindowState{}, nil
	}
	if err != nil {
		return quota.WindowState{}, fmt.Errorf("sqlite: get %s: %w", key, err)
	}

	state.WindowStart = time.Unix(windowStart, 0).UTC()
	return state, nil
}

// Increment applies inc atomically via UPSERT and refreshes the row TTL.
// The stored window_start of an existing row is preserved.
func (s *WindowStore) Increment(ctx context.Context, key string, inc quota.Increment, windowStart time.Time, ttl time.Duration) (quota.WindowState, error) {
	now := s.clock.Now()
	expiresAt := now.Add(ttl).Unix()

	// Keys embed the window bucket, so a conflicting row is always the
	// same window: add to its counters and keep its window_start.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage_windows (key, total_cost, request_count, error_count, rate_limited_count, window_start, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			total_cost = usage_windows.total_cost + excluded.total_cost,
			request_count = usage_windows.request_count + excluded.request_count,
			error_count = usage_windows.error_count + excluded.error_count,
			rate_limited_count = usage_windows.rate_limited_count + excluded.rate_limited_count,
			expires_at = excluded.expires_at
	`, key, inc.Cost, inc.Requests, inc.Errors, inc.RateLimited, windowStart.Unix(), expiresAt)
	if err != nil {
		return quota.WindowState{}, fmt.Errorf("sqlite: increment %s: %w", key, err)
	}

	return s.Get(ctx, key)
}

// Ping reports whether the database is reachable.
func (s *WindowStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite: ping: %w", err)
	}
	return nil
}

// PurgeExpired deletes rows whose TTL has passed, returning the number
// removed. Reads already skip expired rows; this keeps the table small.
func (s *WindowStore) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM usage_windows WHERE expires_at <= ?", s.clock.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("sqlite: purge expired: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: purge expired: %w", err)
	}
	return n, nil
}

// Ensure interface compliance.
var _ ports.WindowStore = (*WindowStore)(nil)
