package app

import (
	"sync"
	"time"

	"github.com/akhilsayshi/databot/domain/ratelimit"
)

// BurstTracker holds the process-local record of recent call timestamps
// used for per-minute and per-second limits. It is deliberately not shared
// across instances: a fleet of N processes can collectively exceed the
// burst limits by up to Nx, which is an accepted scope boundary for
// single-instance deployments.
type BurstTracker struct {
	mu           sync.Mutex
	state        ratelimit.BurstState
	lastRecorded time.Time
}

// NewBurstTracker creates an empty tracker.
func NewBurstTracker() *BurstTracker {
	return &BurstTracker{}
}

// Record appends one recorded call at now.
func (b *BurstTracker) Record(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = ratelimit.Append(b.state, now)
	b.lastRecorded = now
}

// Check prunes and evaluates the call-count limits without mutating
// anything a caller could observe later.
func (b *BurstTracker) Check(now time.Time, perMinuteLimit, perSecondLimit int) ratelimit.CheckResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = ratelimit.Prune(b.state, now, ratelimit.HorizonMinute)
	return ratelimit.Check(b.state, now, perMinuteLimit, perSecondLimit)
}

// RecommendedDelay computes the advisory pre-call sleep.
func (b *BurstTracker) RecommendedDelay(now time.Time, cfg ratelimit.DelayConfig) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = ratelimit.Prune(b.state, now, ratelimit.HorizonMinute)
	return ratelimit.RecommendedDelay(b.state, b.lastRecorded, now, cfg)
}

// Counts returns the retained call counts for the two short horizons.
func (b *BurstTracker) Counts(now time.Time) (lastMinute, lastSecond int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = ratelimit.Prune(b.state, now, ratelimit.HorizonMinute)
	return len(b.state.Times), ratelimit.CountWithin(b.state, now, ratelimit.HorizonSecond)
}
