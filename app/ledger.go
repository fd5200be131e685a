// Package app provides application services that orchestrate domain logic.
package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/akhilsayshi/databot/domain/quota"
	"github.com/akhilsayshi/databot/ports"
)

// QuotaLedger maintains durable per-window usage counters with epoch-bucket
// rollover semantics. It is the sole writer of window records; every read
// resolves the current bucket first, so rollover happens lazily on access
// and needs no background timer.
type QuotaLedger struct {
	store  ports.WindowStore
	clock  ports.Clock
	logger zerolog.Logger
}

// NewQuotaLedger creates a ledger over the given store and clock.
func NewQuotaLedger(store ports.WindowStore, clk ports.Clock, logger zerolog.Logger) *QuotaLedger {
	return &QuotaLedger{store: store, clock: clk, logger: logger}
}

// Usage returns the usage recorded in the scope's current window. A window
// that has rolled over (or was never written) reads as a fresh zero-valued
// state whose WindowStart is the current bucket's start; nothing is
// persisted until the first Record.
func (l *QuotaLedger) Usage(ctx context.Context, scope quota.Scope) (quota.WindowState, error) {
	now := l.clock.Now()
	bucket := quota.Bucket(now, scope)

	state, err := l.store.Get(ctx, quota.Key(scope, bucket))
	if err != nil {
		return quota.WindowState{}, fmt.Errorf("ledger: read %s window: %w", scope, err)
	}

	state.Bucket = bucket
	if state.WindowStart.IsZero() {
		state.WindowStart = quota.BucketStart(bucket, scope)
	}
	return state, nil
}

// Record atomically adds one completed call of the given cost to the
// scope's current window and returns the updated state. The record's TTL
// is refreshed to the window's natural length on every write.
func (l *QuotaLedger) Record(ctx context.Context, scope quota.Scope, cost int64, success bool) (quota.WindowState, error) {
	return l.increment(ctx, scope, quota.CallIncrement(cost, success))
}

// RecordBlocked notes a call that a limit layer denied and that was never
// sent. Only the rate-limited counter moves; cost and call counts stay
// untouched.
func (l *QuotaLedger) RecordBlocked(ctx context.Context, scope quota.Scope) (quota.WindowState, error) {
	return l.increment(ctx, scope, quota.BlockedIncrement())
}

func (l *QuotaLedger) increment(ctx context.Context, scope quota.Scope, inc quota.Increment) (quota.WindowState, error) {
	now := l.clock.Now()
	bucket := quota.Bucket(now, scope)

	state, err := l.store.Increment(ctx,
		quota.Key(scope, bucket), inc,
		quota.BucketStart(bucket, scope), scope.Window(),
	)
	if err != nil {
		return quota.WindowState{}, fmt.Errorf("ledger: record %s usage: %w", scope, err)
	}

	state.Bucket = bucket
	l.logger.Debug().
		Str("scope", string(scope)).
		Int64("cost", inc.Cost).
		Int64("total_cost", state.TotalCost).
		Int64("requests", state.RequestCount).
		Msg("usage recorded")
	return state, nil
}
