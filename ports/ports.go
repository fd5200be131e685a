// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"time"

	"github.com/akhilsayshi/databot/domain/quota"
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// -----------------------------------------------------------------------------
// Data Store Ports
// -----------------------------------------------------------------------------

// WindowStore is the durable, TTL-bearing key/value store holding one usage
// record per tracked window bucket. It is shared across process instances,
// so Increment must be atomic: a non-atomic read-modify-write cycle would
// lose concurrent updates and break the monotonicity of the counters.
type WindowStore interface {
	// Get retrieves the usage record stored under key. A missing or expired
	// key yields a zero-valued state and no error; an unreachable store
	// yields an error.
	Get(ctx context.Context, key string) (quota.WindowState, error)

	// Increment atomically applies inc to the record under key and returns
	// the updated state. On first write it initializes the record with
	// windowStart; the record's TTL is set to ttl on every write, keeping
	// it alive at least as long as the window's natural length.
	Increment(ctx context.Context, key string, inc quota.Increment, windowStart time.Time, ttl time.Duration) (quota.WindowState, error)

	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error
}
