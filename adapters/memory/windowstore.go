// Package memory provides in-memory implementations of storage ports.
// State lives in a single process; use the redis or sqlite adapters when
// usage counters must be shared across instances or survive restarts.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/akhilsayshi/databot/domain/quota"
	"github.com/akhilsayshi/databot/ports"
)

type windowEntry struct {
	state     quota.WindowState
	expiresAt time.Time
}

// WindowStore is an in-memory implementation of ports.WindowStore.
// Expired entries are dropped lazily on access, mirroring TTL semantics of
// the durable backends.
type WindowStore struct {
	mu      sync.Mutex
	clock   ports.Clock
	entries map[string]windowEntry
}

// NewWindowStore creates an in-memory window store using the given clock
// for TTL expiry.
func NewWindowStore(clk ports.Clock) *WindowStore {
	return &WindowStore{
		clock:   clk,
		entries: make(map[string]windowEntry),
	}
}

// Get retrieves the record under key, or a zero-valued state if the key is
// absent or its TTL has passed.
func (s *WindowStore) Get(ctx context.Context, key string) (quota.WindowState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return quota.WindowState{}, nil
	}
	if !s.clock.Now().Before(e.expiresAt) {
		delete(s.entries, key)
		return quota.WindowState{}, nil
	}
	return e.state, nil
}

// Increment applies inc under the store lock and refreshes the entry TTL.
func (s *WindowStore) Increment(ctx context.Context, key string, inc quota.Increment, windowStart time.Time, ttl time.Duration) (quota.WindowState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	e, ok := s.entries[key]
	if !ok || !now.Before(e.expiresAt) {
		e = windowEntry{state: quota.WindowState{WindowStart: windowStart}}
	}

	e.state.TotalCost += inc.Cost
	e.state.RequestCount += inc.Requests
	e.state.ErrorCount += inc.Errors
	e.state.RateLimitedCount += inc.RateLimited
	e.expiresAt = now.Add(ttl)

	s.entries[key] = e
	return e.state, nil
}

// Ping always succeeds for the in-memory store.
func (s *WindowStore) Ping(ctx context.Context) error {
	return nil
}

// Clear removes all entries (for testing).
func (s *WindowStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]windowEntry)
}

// Len returns the number of live entries (for testing).
func (s *WindowStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Ensure interface compliance.
var _ ports.WindowStore = (*WindowStore)(nil)
