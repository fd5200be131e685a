package ratelimit

import "time"

// Pacing delays recommended as recent-call density approaches the
// per-minute ceiling.
const (
	DelayHeavy    = time.Second
	DelayModerate = 500 * time.Millisecond

	densityHeavy    = 0.8
	densityModerate = 0.6
)

// DelayConfig holds pacing configuration (value type).
type DelayConfig struct {
	MinInterval    time.Duration // minimum spacing between recorded calls
	PerMinuteLimit int
}

// RecommendedDelay computes an advisory pre-call sleep. This is a PURE
// function; the caller performs the sleep itself, never this package.
//
// The minimum inter-call spacing is measured from lastRecorded, the
// timestamp of the most recent recorded (not merely attempted) call.
// Beyond that, density over the last minute above 80% or 60% of the
// per-minute limit yields a fixed smoothing delay.
func RecommendedDelay(state BurstState, lastRecorded, now time.Time, cfg DelayConfig) time.Duration {
	if cfg.MinInterval > 0 && !lastRecorded.IsZero() {
		if elapsed := now.Sub(lastRecorded); elapsed < cfg.MinInterval {
			return cfg.MinInterval - elapsed
		}
	}

	if cfg.PerMinuteLimit <= 0 {
		return 0
	}

	density := float64(CountWithin(state, now, HorizonMinute))
	limit := float64(cfg.PerMinuteLimit)
	switch {
	case density > limit*densityHeavy:
		return DelayHeavy
	case density > limit*densityModerate:
		return DelayModerate
	default:
		return 0
	}
}
