// Package redis provides a Redis-backed implementation of the window store.
//
// Each usage window lives in one hash keyed "quota:{scope}:{bucket}". All
// counter updates run through a Lua script so concurrent writers from any
// number of processes never lose increments, and the TTL refreshed on every
// write lets stale buckets expire on their own.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/akhilsayshi/databot/domain/quota"
	"github.com/akhilsayshi/databot/ports"
)

// luaIncrement atomically applies one usage increment.
//
// KEYS[1] = window key (e.g. "quota:daily:20694")
// ARGV[1] = cost delta
// ARGV[2] = request-count delta
// ARGV[3] = error-count delta
// ARGV[4] = rate-limited-count delta
// ARGV[5] = window start (unix seconds, set only on first write)
// ARGV[6] = ttl in seconds
//
// Returns {total_cost, request_count, error_count, rate_limited_count,
// window_start}.
const luaIncrement = `
local total = redis.call('HINCRBY', KEYS[1], 'total_cost', ARGV[1])
local requests = redis.call('HINCRBY', KEYS[1], 'request_count', ARGV[2])
local errors = redis.call('HINCRBY', KEYS[1], 'error_count', ARGV[3])
local limited = redis.call('HINCRBY', KEYS[1], 'rate_limited_count', ARGV[4])
redis.call('HSETNX', KEYS[1], 'window_start', ARGV[5])
redis.call('EXPIRE', KEYS[1], ARGV[6])
return {total, requests, errors, limited, redis.call('HGET', KEYS[1], 'window_start')}
`

// WindowStore implements ports.WindowStore on a Redis hash per window.
type WindowStore struct {
	rdb  *redis.Client
	incr *redis.Script
}

// NewWindowStore creates a WindowStore on the given client.
func NewWindowStore(rdb *redis.Client) *WindowStore {
	return &WindowStore{
		rdb:  rdb,
		incr: redis.NewScript(luaIncrement),
	}
}

// Get reads the window hash. A missing key yields a zero-valued state;
// malformed fields are treated as zero rather than failing the read, so a
// corrupted record degrades to a fresh window instead of blocking calls.
func (s *WindowStore) Get(ctx context.Context, key string) (quota.WindowState, error) {
	fields, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return quota.WindowState{}, fmt.Errorf("redis: get %s: %w", key, err)
	}
	if len(fields) == 0 {
		return quota.WindowState{}, nil
	}
	return stateFromFields(fields), nil
}

// Increment runs the Lua script and returns the updated state.
func (s *WindowStore) Increment(ctx context.Context, key string, inc quota.Increment, windowStart time.Time, ttl time.Duration) (quota.WindowState, error) {
	ttlSecs := int64(ttl / time.Second)
	if ttlSecs < 1 {
		ttlSecs = 1
	}

	vals, err := s.incr.Run(ctx, s.rdb, []string{key},
		inc.Cost, inc.Requests, inc.Errors, inc.RateLimited,
		windowStart.Unix(), ttlSecs,
	).Slice()
	if err != nil {
		return quota.WindowState{}, fmt.Errorf("redis: increment %s: %w", key, err)
	}
	if len(vals) != 5 {
		return quota.WindowState{}, fmt.Errorf("redis: increment %s: unexpected reply of %d values", key, len(vals))
	}

	state := quota.WindowState{
		TotalCost:        replyInt(vals[0]),
		RequestCount:     replyInt(vals[1]),
		ErrorCount:       replyInt(vals[2]),
		RateLimitedCount: replyInt(vals[3]),
	}
	if start := replyInt(vals[4]); start > 0 {
		state.WindowStart = time.Unix(start, 0).UTC()
	}
	return state, nil
}

// Ping reports whether Redis is reachable.
func (s *WindowStore) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

func stateFromFields(fields map[string]string) quota.WindowState {
	state := quota.WindowState{
		TotalCost:        fieldInt(fields, "total_cost"),
		RequestCount:     fieldInt(fields, "request_count"),
		ErrorCount:       fieldInt(fields, "error_count"),
		RateLimitedCount: fieldInt(fields, "rate_limited_count"),
	}
	if start := fieldInt(fields, "window_start"); start > 0 {
		state.WindowStart = time.Unix(start, 0).UTC()
	}
	return state
}

func fieldInt(fields map[string]string, name string) int64 {
	n, err := strconv.ParseInt(fields[name], 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func replyInt(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case string:
		parsed, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}

// Ensure interface compliance.
var _ ports.WindowStore = (*WindowStore)(nil)
