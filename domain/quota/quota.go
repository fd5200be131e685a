// Package quota provides pure functions for usage-window accounting and
// budget enforcement. All functions are deterministic with no side effects.
package quota

import (
	"fmt"
	"math"
	"time"
)

// Scope identifies a tracked usage window.
type Scope string

const (
	ScopeDaily  Scope = "daily"
	ScopeHourly Scope = "hourly"
)

// Scopes lists all tracked scopes in check order (longest window first).
var Scopes = []Scope{ScopeDaily, ScopeHourly}

// Window returns the natural length of the scope's window.
func (s Scope) Window() time.Duration {
	if s == ScopeDaily {
		return 24 * time.Hour
	}
	return time.Hour
}

// ExceededReason returns the denial reason for this scope's budget.
func (s Scope) ExceededReason() string {
	if s == ScopeDaily {
		return "daily quota exceeded"
	}
	return "hourly quota exceeded"
}

// Bucket returns the epoch index of the scope window containing t.
// Rollover detection is an integer comparison on this index, so it stays
// correct across arbitrarily long idle gaps (a process idle for 25 hours
// can never be fooled by a coincidentally matching hour-of-day).
func Bucket(t time.Time, s Scope) int64 {
	return t.Unix() / int64(s.Window()/time.Second)
}

// BucketStart returns the wall-clock start of the given bucket.
func BucketStart(bucket int64, s Scope) time.Time {
	return time.Unix(bucket*int64(s.Window()/time.Second), 0).UTC()
}

// Key returns the storage key for a scope's bucket. Embedding the bucket
// index in the key makes rollover implicit: a new bucket reads as a fresh
// zero-valued record, and stale buckets age out via the store's TTL.
func Key(s Scope, bucket int64) string {
	return fmt.Sprintf("quota:%s:%d", s, bucket)
}

// WindowState is the durable usage record for one (scope, bucket) pair
// (value type). TotalCost and RequestCount are monotonically non-decreasing
// within a bucket's lifetime; they reach zero again only through rollover.
type WindowState struct {
	Bucket           int64
	TotalCost        int64
	RequestCount     int64
	ErrorCount       int64
	RateLimitedCount int64
	WindowStart      time.Time
}

// Fresh returns a zero-valued state for the scope window containing now.
func Fresh(now time.Time, s Scope) WindowState {
	b := Bucket(now, s)
	return WindowState{Bucket: b, WindowStart: BucketStart(b, s)}
}

// Increment describes one atomic update to a window record (value type).
type Increment struct {
	Cost        int64
	Requests    int64
	Errors      int64
	RateLimited int64
}

// CallIncrement builds the increment for one completed call of the given
// cost. Cost and call count are tracked as distinct quantities.
func CallIncrement(cost int64, success bool) Increment {
	inc := Increment{Cost: cost, Requests: 1}
	if !success {
		inc.Errors = 1
	}
	return inc
}

// BlockedIncrement builds the increment for a call that was denied by a
// limit layer and never sent.
func BlockedIncrement() Increment {
	return Increment{RateLimited: 1}
}

// CheckResult represents the outcome of a budget check (value type).
type CheckResult struct {
	Allowed      bool
	CurrentUsage int64 // usage including the candidate cost
	Limit        int64
	Remaining    int64
	PercentUsed  float64
	Reason       string
}

// Check reports whether a call of the given cost fits within the scope's
// budget. This is a PURE function - no side effects.
// A limit <= 0 means unlimited.
func Check(s Scope, state WindowState, limit, cost int64) CheckResult {
	projected := state.TotalCost + cost

	if limit <= 0 {
		return CheckResult{
			Allowed:      true,
			CurrentUsage: projected,
			Limit:        limit,
		}
	}

	result := CheckResult{
		CurrentUsage: projected,
		Limit:        limit,
		Remaining:    limit - state.TotalCost,
		PercentUsed:  Percent(state.TotalCost, limit),
	}
	if result.Remaining < 0 {
		result.Remaining = 0
	}

	if projected > limit {
		result.Reason = s.ExceededReason()
		return result
	}

	result.Allowed = true
	return result
}

// WarningLevel indicates how close to a hard limit recorded usage is.
type WarningLevel int

const (
	WarningNone        WarningLevel = iota // below the warning threshold
	WarningApproaching                     // >= threshold, still under the limit
	WarningExceeded                        // at or over the hard limit
)

// WarnLevel classifies recorded usage against a limit and a threshold
// fraction (e.g. 0.8). WarningExceeded is reported through the deny path,
// not as a threshold warning.
func WarnLevel(used, limit int64, threshold float64) WarningLevel {
	if limit <= 0 {
		return WarningNone
	}
	switch {
	case used >= limit:
		return WarningExceeded
	case float64(used) >= float64(limit)*threshold:
		return WarningApproaching
	default:
		return WarningNone
	}
}

// String returns the string representation of a warning level.
func (w WarningLevel) String() string {
	switch w {
	case WarningNone:
		return "none"
	case WarningApproaching:
		return "approaching"
	case WarningExceeded:
		return "exceeded"
	default:
		return "unknown"
	}
}

// Percent returns used/limit as a percentage rounded to one decimal place.
func Percent(used, limit int64) float64 {
	if limit <= 0 {
		return 0
	}
	return math.Round(float64(used)/float64(limit)*1000) / 10
}
