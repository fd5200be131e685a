// Package ratelimit provides pure short-horizon rate limiting and pacing
// algorithms. All functions are deterministic - same input always produces
// same output.
package ratelimit

import "time"

// Short-horizon windows enforced on call counts.
const (
	HorizonMinute = time.Minute
	HorizonSecond = time.Second
)

// Reasons for denial
const (
	ReasonPerMinuteExceeded = "per-minute rate limit exceeded"
	ReasonBurstExceeded     = "burst limit exceeded"
)

// BurstState holds recent call timestamps in ascending order (value type).
// It is bounded: every operation prunes entries older than the longest
// short horizon.
type BurstState struct {
	Times []time.Time
}

// Prune returns the state with all timestamps older than horizon before
// now dropped. This is a PURE function - the input state is not modified.
func Prune(state BurstState, now time.Time, horizon time.Duration) BurstState {
	cutoff := now.Add(-horizon)
	// Timestamps are appended in order, so find the first retained index.
	i := 0
	for i < len(state.Times) && !state.Times[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return state
	}
	kept := make([]time.Time, len(state.Times)-i)
	copy(kept, state.Times[i:])
	return BurstState{Times: kept}
}

// Append records one attempt at now, pruning to the longest horizon so the
// state stays bounded.
func Append(state BurstState, now time.Time) BurstState {
	pruned := Prune(state, now, HorizonMinute)
	times := make([]time.Time, len(pruned.Times), len(pruned.Times)+1)
	copy(times, pruned.Times)
	return BurstState{Times: append(times, now)}
}

// CountWithin returns the number of retained timestamps within horizon of
// now.
func CountWithin(state BurstState, now time.Time, horizon time.Duration) int {
	cutoff := now.Add(-horizon)
	n := 0
	for _, t := range state.Times {
		if t.After(cutoff) {
			n++
		}
	}
	return n
}

// CheckResult represents the outcome of a burst-limit check (value type).
type CheckResult struct {
	Allowed         bool
	CallsLastMinute int
	CallsLastSecond int
	Reason          string
}

// Check reports whether one more call fits the per-minute and per-second
// call-count limits. This is a PURE function. A limit <= 0 disables that
// layer.
func Check(state BurstState, now time.Time, perMinuteLimit, perSecondLimit int) CheckResult {
	pruned := Prune(state, now, HorizonMinute)
	result := CheckResult{
		CallsLastMinute: len(pruned.Times),
		CallsLastSecond: CountWithin(pruned, now, HorizonSecond),
	}

	if perMinuteLimit > 0 && result.CallsLastMinute >= perMinuteLimit {
		result.Reason = ReasonPerMinuteExceeded
		return result
	}
	if perSecondLimit > 0 && result.CallsLastSecond >= perSecondLimit {
		result.Reason = ReasonBurstExceeded
		return result
	}

	result.Allowed = true
	return result
}
