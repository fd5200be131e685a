package app

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/akhilsayshi/databot/domain/quota"
	"github.com/akhilsayshi/databot/domain/ratelimit"
	"github.com/akhilsayshi/databot/ports"
)

// ReasonStoreUnavailable is returned when the window store cannot be
// reached. The controller fails closed: over-calling a metered API costs
// more than temporary unavailability, so unknown usage means no calls.
// Callers should treat this as retryable with backoff, unlike a limit
// denial.
const ReasonStoreUnavailable = "quota store unavailable"

// Decision is the outcome of an admission check. Ephemeral - always
// recomputed, never persisted.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// AdmissionService is the single authoritative gate for metered API calls.
// Checks have no side effects; usage moves only through RecordOutcome and
// RecordBlocked, so speculative checks never pollute counters.
type AdmissionService struct {
	ledger     *QuotaLedger
	burst      *BurstTracker
	clock      ports.Clock
	logger     zerolog.Logger
	instanceID string

	// Hot-reloadable limits.
	limits atomic.Pointer[quota.Limits]
}

// AdmissionDeps contains dependencies for AdmissionService.
type AdmissionDeps struct {
	Store  ports.WindowStore
	Clock  ports.Clock
	Logger zerolog.Logger
}

// NewAdmissionService creates an admission service with the given limits.
func NewAdmissionService(deps AdmissionDeps, limits quota.Limits) *AdmissionService {
	s := &AdmissionService{
		ledger:     NewQuotaLedger(deps.Store, deps.Clock, deps.Logger),
		burst:      NewBurstTracker(),
		clock:      deps.Clock,
		logger:     deps.Logger,
		instanceID: uuid.NewString(),
	}
	s.limits.Store(&limits)
	return s
}

// UpdateLimits replaces the limit configuration. Thread-safe; in-flight
// checks finish against the limits they loaded.
func (s *AdmissionService) UpdateLimits(limits quota.Limits) {
	s.limits.Store(&limits)
}

// Limits returns the current limit configuration.
func (s *AdmissionService) Limits() quota.Limits {
	return *s.limits.Load()
}

// InstanceID identifies this process. Burst counters are per-instance, so
// status readers need to know whose counters they are looking at.
func (s *AdmissionService) InstanceID() string {
	return s.instanceID
}

// CheckAdmission decides whether a call of the given cost may proceed right
// now. Layers are evaluated in order - daily cost, hourly cost, per-minute
// count, per-second count - and the first failure wins. A store failure
// denies with ReasonStoreUnavailable.
func (s *AdmissionService) CheckAdmission(ctx context.Context, cost int64) Decision {
	limits := s.Limits()

	for _, scope := range quota.Scopes {
		state, err := s.ledger.Usage(ctx, scope)
		if err != nil {
			storeErrorsTotal.Inc()
			s.logger.Error().Err(err).
				Str("scope", string(scope)).
				Msg("window store unreachable, failing closed")
			return Decision{Reason: ReasonStoreUnavailable}
		}

		result := quota.Check(scope, state, limits.LimitFor(scope), cost)
		if !result.Allowed {
			admissionDeniedTotal.WithLabelValues(result.Reason).Inc()
			s.logger.Warn().
				Str("scope", string(scope)).
				Int64("cost", cost).
				Int64("used", state.TotalCost).
				Int64("limit", result.Limit).
				Msg("call blocked by quota")
			return Decision{Reason: result.Reason}
		}
	}

	burst := s.burst.Check(s.clock.Now(), limits.PerMinuteLimit, limits.PerSecondLimit)
	if !burst.Allowed {
		admissionDeniedTotal.WithLabelValues(burst.Reason).Inc()
		s.logger.Warn().
			Int("calls_last_minute", burst.CallsLastMinute).
			Int("calls_last_second", burst.CallsLastSecond).
			Msg("call blocked by rate limit")
		return Decision{Reason: burst.Reason}
	}

	admissionAllowedTotal.Inc()
	return Decision{Allowed: true}
}

// RecommendedDelay returns an advisory pre-call sleep that spreads load
// before the per-minute ceiling is hit. The caller sleeps; this method
// never blocks. Ignoring it is safe - the hard checks still apply.
func (s *AdmissionService) RecommendedDelay() time.Duration {
	limits := s.Limits()
	return s.burst.RecommendedDelay(s.clock.Now(), ratelimit.DelayConfig{
		MinInterval:    limits.MinInterval,
		PerMinuteLimit: limits.PerMinuteLimit,
	})
}

// RecordOutcome books one attempted call of the given cost into the daily
// and hourly ledgers and the local burst tracker, then emits threshold
// warnings for any scope that is at or past its warning fraction but still
// under the hard limit.
func (s *AdmissionService) RecordOutcome(ctx context.Context, cost int64, success bool) error {
	// The call happened regardless of what the durable store does, so the
	// local tracker is updated first.
	s.burst.Record(s.clock.Now())

	limits := s.Limits()
	for _, scope := range quota.Scopes {
		state, err := s.ledger.Record(ctx, scope, cost, success)
		if err != nil {
			storeErrorsTotal.Inc()
			return err
		}

		recordedCostTotal.WithLabelValues(string(scope)).Add(float64(cost))
		quotaUsed.WithLabelValues(string(scope)).Set(float64(state.TotalCost))
		s.warnIfNearLimit(scope, state, limits)
	}
	return nil
}

// RecordBlocked notes that a call was denied by a limit layer and never
// sent, so denied traffic shows up in the window records without touching
// cost or call counts.
func (s *AdmissionService) RecordBlocked(ctx context.Context) error {
	for _, scope := range quota.Scopes {
		if _, err := s.ledger.RecordBlocked(ctx, scope); err != nil {
			storeErrorsTotal.Inc()
			return err
		}
	}
	return nil
}

// warnIfNearLimit emits a warning event when recorded usage sits between
// the warning threshold and the hard limit. Warnings may repeat on
// subsequent records; exceeding the hard limit is reported through the
// deny path instead.
func (s *AdmissionService) warnIfNearLimit(scope quota.Scope, state quota.WindowState, limits quota.Limits) {
	limit := limits.LimitFor(scope)
	if quota.WarnLevel(state.TotalCost, limit, limits.ThresholdFor(scope)) != quota.WarningApproaching {
		return
	}

	thresholdWarningsTotal.WithLabelValues(string(scope)).Inc()
	s.logger.Warn().
		Str("scope", string(scope)).
		Int64("used", state.TotalCost).
		Int64("limit", limit).
		Float64("percentage", quota.Percent(state.TotalCost, limit)).
		Msg("quota warning threshold reached")
}
