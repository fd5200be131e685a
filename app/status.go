package app

import (
	"context"

	"github.com/akhilsayshi/databot/domain/quota"
)

// ScopeStatus reports one window's usage against its budget.
type ScopeStatus struct {
	Used        int64   `json:"used"`
	Limit       int64   `json:"limit"`
	Remaining   int64   `json:"remaining"`
	Percentage  float64 `json:"percentage"`
	Requests    int64   `json:"requests"`
	Errors      int64   `json:"errors"`
	RateLimited int64   `json:"rate_limited"`
}

// BurstStatus reports the process-local short-horizon counters.
type BurstStatus struct {
	CallsLastMinute int `json:"calls_last_minute"`
	PerMinuteLimit  int `json:"per_minute_limit"`
	CallsLastSecond int `json:"calls_last_second"`
	PerSecondLimit  int `json:"per_second_limit"`
}

// Status is the read-only introspection snapshot for operational tooling.
type Status struct {
	InstanceID string      `json:"instance_id"`
	Daily      ScopeStatus `json:"daily"`
	Hourly     ScopeStatus `json:"hourly"`
	Burst      BurstStatus `json:"burst"`
}

// Status reads current usage for both scopes plus the local burst counters.
func (s *AdmissionService) Status(ctx context.Context) (Status, error) {
	limits := s.Limits()

	daily, err := s.scopeStatus(ctx, quota.ScopeDaily, limits)
	if err != nil {
		return Status{}, err
	}
	hourly, err := s.scopeStatus(ctx, quota.ScopeHourly, limits)
	if err != nil {
		return Status{}, err
	}

	lastMinute, lastSecond := s.burst.Counts(s.clock.Now())
	return Status{
		InstanceID: s.instanceID,
		Daily:      daily,
		Hourly:     hourly,
		Burst: BurstStatus{
			CallsLastMinute: lastMinute,
			PerMinuteLimit:  limits.PerMinuteLimit,
			CallsLastSecond: lastSecond,
			PerSecondLimit:  limits.PerSecondLimit,
		},
	}, nil
}

func (s *AdmissionService) scopeStatus(ctx context.Context, scope quota.Scope, limits quota.Limits) (ScopeStatus, error) {
	state, err := s.ledger.Usage(ctx, scope)
	if err != nil {
		return ScopeStatus{}, err
	}

	limit := limits.LimitFor(scope)
	remaining := limit - state.TotalCost
	if remaining < 0 {
		remaining = 0
	}
	return ScopeStatus{
		Used:        state.TotalCost,
		Limit:       limit,
		Remaining:   remaining,
		Percentage:  quota.Percent(state.TotalCost, limit),
		Requests:    state.RequestCount,
		Errors:      state.ErrorCount,
		RateLimited: state.RateLimitedCount,
	}, nil
}
