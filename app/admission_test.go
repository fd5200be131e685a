package app

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/akhilsayshi/databot/adapters/clock"
	"github.com/akhilsayshi/databot/adapters/memory"
	"github.com/akhilsayshi/databot/domain/quota"
	"github.com/akhilsayshi/databot/domain/ratelimit"
	"github.com/akhilsayshi/databot/ports"
)

func newTestService(t *testing.T, limits quota.Limits) (*AdmissionService, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC))
	svc := NewAdmissionService(AdmissionDeps{
		Store:  memory.NewWindowStore(clk),
		Clock:  clk,
		Logger: zerolog.Nop(),
	}, limits)
	return svc, clk
}

func recordCalls(t *testing.T, svc *AdmissionService, n int, cost int64) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := svc.RecordOutcome(context.Background(), cost, true); err != nil {
			t.Fatalf("RecordOutcome: %v", err)
		}
	}
}

func TestCheckAdmissionAllows(t *testing.T) {
	svc, _ := newTestService(t, quota.DefaultLimits())

	d := svc.CheckAdmission(context.Background(), 100)
	if !d.Allowed {
		t.Fatalf("fresh service denied: %q", d.Reason)
	}
	if d.Reason != "" {
		t.Errorf("allowed decision carries reason %q", d.Reason)
	}
}

func TestCheckAdmissionHourlyBoundary(t *testing.T) {
	limits := quota.DefaultLimits()
	svc, clk := newTestService(t, limits)
	ctx := context.Background()

	// 950 units used this hour. Spread records across time so the burst
	// layers never interfere.
	for i := 0; i < 19; i++ {
		recordCalls(t, svc, 1, 50)
		clk.Advance(time.Minute)
	}

	// A search costing 100 would land at 1050: denied by the hourly layer.
	d := svc.CheckAdmission(ctx, 100)
	if d.Allowed {
		t.Fatal("expected hourly denial at 950/1000 with cost 100")
	}
	if d.Reason != "hourly quota exceeded" {
		t.Errorf("Reason = %q, want %q", d.Reason, "hourly quota exceeded")
	}

	// A stats call costing 1 still fits.
	d = svc.CheckAdmission(ctx, 1)
	if !d.Allowed {
		t.Errorf("cost-1 call denied: %q", d.Reason)
	}
}

func TestCheckAdmissionDailyBoundary(t *testing.T) {
	limits := quota.DefaultLimits()
	limits.DailyLimit = 100
	limits.HourlyLimit = 0 // unlimited, isolates the daily layer
	svc, clk := newTestService(t, limits)
	ctx := context.Background()

	recordCalls(t, svc, 1, 60)
	clk.Advance(time.Second)
	recordCalls(t, svc, 1, 30)
	clk.Advance(time.Second)

	// 90 of 100 used: cost 5 fits, cost 15 does not.
	if d := svc.CheckAdmission(ctx, 5); !d.Allowed {
		t.Errorf("cost-5 call denied at 90/100: %q", d.Reason)
	}
	d := svc.CheckAdmission(ctx, 15)
	if d.Allowed {
		t.Fatal("expected daily denial at 90/100 with cost 15")
	}
	if d.Reason != "daily quota exceeded" {
		t.Errorf("Reason = %q, want %q", d.Reason, "daily quota exceeded")
	}
}

func TestCheckAdmissionDailyBeforeHourly(t *testing.T) {
	// Both scopes would deny; the daily reason wins because it is checked
	// first.
	limits := quota.DefaultLimits()
	limits.DailyLimit = 100
	limits.HourlyLimit = 100
	svc, _ := newTestService(t, limits)
	ctx := context.Background()

	recordCalls(t, svc, 1, 100)

	d := svc.CheckAdmission(ctx, 1)
	if d.Allowed {
		t.Fatal("expected denial")
	}
	if d.Reason != "daily quota exceeded" {
		t.Errorf("Reason = %q, want %q", d.Reason, "daily quota exceeded")
	}
}

func TestCheckAdmissionPerSecondBurst(t *testing.T) {
	svc, clk := newTestService(t, quota.DefaultLimits())
	ctx := context.Background()

	// Five calls recorded within one second fill the per-second budget.
	for i := 0; i < 5; i++ {
		recordCalls(t, svc, 1, 1)
		clk.Advance(100 * time.Millisecond)
	}

	d := svc.CheckAdmission(ctx, 1)
	if d.Allowed {
		t.Fatal("expected per-second denial")
	}
	if d.Reason != ratelimit.ReasonBurstExceeded {
		t.Errorf("Reason = %q, want %q", d.Reason, ratelimit.ReasonBurstExceeded)
	}

	// One second later the burst window has drained.
	clk.Advance(time.Second)
	d = svc.CheckAdmission(ctx, 1)
	if !d.Allowed {
		t.Errorf("denied after burst drained: %q", d.Reason)
	}
}

func TestCheckAdmissionPerMinute(t *testing.T) {
	limits := quota.DefaultLimits()
	limits.PerMinuteLimit = 10
	limits.PerSecondLimit = 0
	svc, clk := newTestService(t, limits)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		recordCalls(t, svc, 1, 1)
		clk.Advance(2 * time.Second)
	}

	d := svc.CheckAdmission(ctx, 1)
	if d.Allowed {
		t.Fatal("expected per-minute denial")
	}
	if d.Reason != ratelimit.ReasonPerMinuteExceeded {
		t.Errorf("Reason = %q, want %q", d.Reason, ratelimit.ReasonPerMinuteExceeded)
	}
}

func TestCheckAdmissionCostBudgetsIgnoreCallCounts(t *testing.T) {
	// Many cheap calls exhaust call-count layers, not cost budgets; one
	// expensive call does the reverse.
	limits := quota.DefaultLimits()
	limits.HourlyLimit = 150
	svc, clk := newTestService(t, limits)
	ctx := context.Background()

	recordCalls(t, svc, 1, 100)
	clk.Advance(time.Minute)

	// One call recorded but 100 cost units consumed: a second search is
	// over the hourly cost budget even though call counts are tiny.
	d := svc.CheckAdmission(ctx, 100)
	if d.Allowed {
		t.Fatal("expected hourly cost denial after one heavy call")
	}
	if d.Reason != "hourly quota exceeded" {
		t.Errorf("Reason = %q, want %q", d.Reason, "hourly quota exceeded")
	}

	// A cheap call still fits the remaining 50 units.
	d = svc.CheckAdmission(ctx, 1)
	if !d.Allowed {
		t.Errorf("cheap call denied: %q", d.Reason)
	}
}

func TestCheckAdmissionHasNoSideEffects(t *testing.T) {
	svc, _ := newTestService(t, quota.DefaultLimits())
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		if d := svc.CheckAdmission(ctx, 100); !d.Allowed {
			t.Fatalf("check %d denied: %q", i, d.Reason)
		}
	}

	status, err := svc.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Daily.Used != 0 || status.Hourly.Used != 0 {
		t.Errorf("checks recorded usage: daily=%d hourly=%d", status.Daily.Used, status.Hourly.Used)
	}
	if status.Burst.CallsLastMinute != 0 {
		t.Errorf("checks recorded burst calls: %d", status.Burst.CallsLastMinute)
	}
}

// failingStore errors on every operation.
type failingStore struct{}

func (failingStore) Get(ctx context.Context, key string) (quota.WindowState, error) {
	return quota.WindowState{}, errors.New("connection refused")
}

func (failingStore) Increment(ctx context.Context, key string, inc quota.Increment, windowStart time.Time, ttl time.Duration) (quota.WindowState, error) {
	return quota.WindowState{}, errors.New("connection refused")
}

func (failingStore) Ping(ctx context.Context) error {
	return errors.New("connection refused")
}

var _ ports.WindowStore = failingStore{}

func TestCheckAdmissionFailsClosed(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC))
	svc := NewAdmissionService(AdmissionDeps{
		Store:  failingStore{},
		Clock:  clk,
		Logger: zerolog.Nop(),
	}, quota.DefaultLimits())

	d := svc.CheckAdmission(context.Background(), 1)
	if d.Allowed {
		t.Fatal("store failure must deny")
	}
	if d.Reason != ReasonStoreUnavailable {
		t.Errorf("Reason = %q, want %q (distinguishable from a limit denial)", d.Reason, ReasonStoreUnavailable)
	}
}

// flakyStore wraps a real store and fails on demand.
type flakyStore struct {
	inner ports.WindowStore
	fail  bool
}

func (f *flakyStore) Get(ctx context.Context, key string) (quota.WindowState, error) {
	if f.fail {
		return quota.WindowState{}, errors.New("connection refused")
	}
	return f.inner.Get(ctx, key)
}

func (f *flakyStore) Increment(ctx context.Context, key string, inc quota.Increment, windowStart time.Time, ttl time.Duration) (quota.WindowState, error) {
	if f.fail {
		return quota.WindowState{}, errors.New("connection refused")
	}
	return f.inner.Increment(ctx, key, inc, windowStart, ttl)
}

func (f *flakyStore) Ping(ctx context.Context) error {
	if f.fail {
		return errors.New("connection refused")
	}
	return f.inner.Ping(ctx)
}

func TestStoreRecoveryResumesFromDurableCounts(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC))
	store := &flakyStore{inner: memory.NewWindowStore(clk)}
	limits := quota.DefaultLimits()
	limits.HourlyLimit = 200
	svc := NewAdmissionService(AdmissionDeps{
		Store:  store,
		Clock:  clk,
		Logger: zerolog.Nop(),
	}, limits)
	ctx := context.Background()

	recordCalls(t, svc, 1, 150)
	clk.Advance(time.Second)

	// Outage: every check is denied as unavailable, not as a limit denial.
	store.fail = true
	d := svc.CheckAdmission(ctx, 1)
	if d.Allowed || d.Reason != ReasonStoreUnavailable {
		t.Fatalf("outage decision = %+v", d)
	}

	// Recovery: checks pick up the durable 150 units, so a 100-cost call
	// is still over the hourly budget.
	store.fail = false
	d = svc.CheckAdmission(ctx, 100)
	if d.Allowed {
		t.Fatal("expected hourly denial from recovered durable counts")
	}
	if d.Reason != "hourly quota exceeded" {
		t.Errorf("Reason = %q, want %q", d.Reason, "hourly quota exceeded")
	}
	if d = svc.CheckAdmission(ctx, 50); !d.Allowed {
		t.Errorf("cost-50 call denied after recovery: %q", d.Reason)
	}
}

func TestRecordOutcomeStoreFailure(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC))
	svc := NewAdmissionService(AdmissionDeps{
		Store:  failingStore{},
		Clock:  clk,
		Logger: zerolog.Nop(),
	}, quota.DefaultLimits())

	if err := svc.RecordOutcome(context.Background(), 1, true); err == nil {
		t.Error("RecordOutcome should surface store errors")
	}
}

func TestHourlyRollover(t *testing.T) {
	svc, clk := newTestService(t, quota.DefaultLimits())
	ctx := context.Background()
	clk.Set(time.Date(2025, 6, 15, 10, 59, 0, 0, time.UTC))

	recordCalls(t, svc, 1, 500)

	status, _ := svc.Status(ctx)
	if status.Hourly.Used != 500 {
		t.Fatalf("hourly used = %d, want 500", status.Hourly.Used)
	}

	// Crossing into the next hour resets hourly but not daily usage.
	clk.Set(time.Date(2025, 6, 15, 11, 1, 0, 0, time.UTC))
	status, err := svc.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Hourly.Used != 0 {
		t.Errorf("hourly used after rollover = %d, want 0", status.Hourly.Used)
	}
	if status.Daily.Used != 500 {
		t.Errorf("daily used after hourly rollover = %d, want 500", status.Daily.Used)
	}
}

func TestRolloverPermanent(t *testing.T) {
	// Once a rollover is observed the old window's usage never reappears,
	// no matter how many times status is read.
	svc, clk := newTestService(t, quota.DefaultLimits())
	ctx := context.Background()

	recordCalls(t, svc, 1, 700)
	clk.Advance(time.Hour)

	for i := 0; i < 3; i++ {
		status, err := svc.Status(ctx)
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if status.Hourly.Used != 0 {
			t.Fatalf("read %d: hourly used = %d, want 0", i, status.Hourly.Used)
		}
	}
}

func TestRolloverAcrossLongIdleGap(t *testing.T) {
	// Idle for 25 hours: same hour-of-day, but both windows must read
	// fresh.
	svc, clk := newTestService(t, quota.DefaultLimits())
	ctx := context.Background()

	recordCalls(t, svc, 5, 100)
	clk.Advance(25 * time.Hour)

	status, err := svc.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Daily.Used != 0 || status.Hourly.Used != 0 {
		t.Errorf("usage survived a 25h gap: daily=%d hourly=%d", status.Daily.Used, status.Hourly.Used)
	}
}

func TestRecordBlocked(t *testing.T) {
	svc, _ := newTestService(t, quota.DefaultLimits())
	ctx := context.Background()

	recordCalls(t, svc, 1, 100)
	if err := svc.RecordBlocked(ctx); err != nil {
		t.Fatalf("RecordBlocked: %v", err)
	}

	status, err := svc.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Hourly.Used != 100 {
		t.Errorf("blocked record changed cost: used = %d, want 100", status.Hourly.Used)
	}
	if status.Hourly.Requests != 1 {
		t.Errorf("blocked record changed call count: requests = %d, want 1", status.Hourly.Requests)
	}
	if status.Hourly.RateLimited != 1 {
		t.Errorf("rate_limited = %d, want 1", status.Hourly.RateLimited)
	}
}

func TestThresholdWarning(t *testing.T) {
	var buf bytes.Buffer
	clk := clock.NewFake(time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC))
	limits := quota.DefaultLimits()
	svc := NewAdmissionService(AdmissionDeps{
		Store:  memory.NewWindowStore(clk),
		Clock:  clk,
		Logger: zerolog.New(&buf),
	}, limits)
	ctx := context.Background()

	// 700/1000 hourly: below the 80% threshold, no warning.
	for i := 0; i < 7; i++ {
		if err := svc.RecordOutcome(ctx, 100, true); err != nil {
			t.Fatalf("RecordOutcome: %v", err)
		}
		clk.Advance(time.Second)
	}
	if strings.Contains(buf.String(), "quota warning threshold reached") {
		t.Fatal("warning emitted below threshold")
	}

	// 800/1000 crosses the threshold.
	if err := svc.RecordOutcome(ctx, 100, true); err != nil {
		t.Fatalf("RecordOutcome: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "quota warning threshold reached") {
		t.Error("no warning at 80% of hourly budget")
	}
	if !strings.Contains(out, `"scope":"hourly"`) {
		t.Errorf("warning does not name the hourly scope: %s", out)
	}
}

func TestErrorsCountedSeparately(t *testing.T) {
	svc, clk := newTestService(t, quota.DefaultLimits())
	ctx := context.Background()

	_ = svc.RecordOutcome(ctx, 100, true)
	clk.Advance(time.Second)
	_ = svc.RecordOutcome(ctx, 100, false)

	status, err := svc.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	// Failed calls still consume quota.
	if status.Hourly.Used != 200 {
		t.Errorf("used = %d, want 200", status.Hourly.Used)
	}
	if status.Hourly.Requests != 2 {
		t.Errorf("requests = %d, want 2", status.Hourly.Requests)
	}
	if status.Hourly.Errors != 1 {
		t.Errorf("errors = %d, want 1", status.Hourly.Errors)
	}
}

func TestRecommendedDelay(t *testing.T) {
	svc, clk := newTestService(t, quota.DefaultLimits())
	ctx := context.Background()

	if d := svc.RecommendedDelay(); d != 0 {
		t.Errorf("idle delay = %v, want 0", d)
	}

	// 50ms after a recorded call, the 200ms minimum spacing applies.
	_ = svc.RecordOutcome(ctx, 1, true)
	clk.Advance(50 * time.Millisecond)
	if d := svc.RecommendedDelay(); d != 150*time.Millisecond {
		t.Errorf("delay = %v, want 150ms", d)
	}

	clk.Advance(time.Second)
	if d := svc.RecommendedDelay(); d != 0 {
		t.Errorf("delay after spacing elapsed = %v, want 0", d)
	}
}

func TestRecommendedDelayDensity(t *testing.T) {
	limits := quota.DefaultLimits()
	limits.PerMinuteLimit = 10
	svc, clk := newTestService(t, limits)
	ctx := context.Background()

	// 7 calls in the last minute is 70% density: moderate smoothing.
	for i := 0; i < 7; i++ {
		_ = svc.RecordOutcome(ctx, 1, true)
		clk.Advance(2 * time.Second)
	}
	if d := svc.RecommendedDelay(); d != ratelimit.DelayModerate {
		t.Errorf("delay at 70%% density = %v, want %v", d, ratelimit.DelayModerate)
	}

	// 9 of 10 is above 80%: heavy smoothing.
	for i := 0; i < 2; i++ {
		_ = svc.RecordOutcome(ctx, 1, true)
		clk.Advance(2 * time.Second)
	}
	if d := svc.RecommendedDelay(); d != ratelimit.DelayHeavy {
		t.Errorf("delay at 90%% density = %v, want %v", d, ratelimit.DelayHeavy)
	}
}

func TestUpdateLimits(t *testing.T) {
	svc, _ := newTestService(t, quota.DefaultLimits())
	ctx := context.Background()

	recordCalls(t, svc, 1, 100)

	if d := svc.CheckAdmission(ctx, 100); !d.Allowed {
		t.Fatalf("denied under default limits: %q", d.Reason)
	}

	limits := quota.DefaultLimits()
	limits.HourlyLimit = 150
	svc.UpdateLimits(limits)

	d := svc.CheckAdmission(ctx, 100)
	if d.Allowed {
		t.Fatal("expected denial under tightened hourly limit")
	}
	if d.Reason != "hourly quota exceeded" {
		t.Errorf("Reason = %q, want %q", d.Reason, "hourly quota exceeded")
	}
}

func TestStatus(t *testing.T) {
	svc, clk := newTestService(t, quota.DefaultLimits())
	ctx := context.Background()

	_ = svc.RecordOutcome(ctx, 100, true)
	clk.Advance(time.Second)
	_ = svc.RecordOutcome(ctx, 1, true)

	status, err := svc.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}

	if status.InstanceID == "" {
		t.Error("empty instance id")
	}
	if status.Daily.Used != 101 || status.Daily.Limit != 10000 {
		t.Errorf("daily = %+v", status.Daily)
	}
	if status.Daily.Remaining != 9899 {
		t.Errorf("daily remaining = %d, want 9899", status.Daily.Remaining)
	}
	if status.Hourly.Used != 101 || status.Hourly.Limit != 1000 {
		t.Errorf("hourly = %+v", status.Hourly)
	}
	if status.Hourly.Percentage != 10.1 {
		t.Errorf("hourly percentage = %v, want 10.1", status.Hourly.Percentage)
	}
	if status.Burst.CallsLastMinute != 2 {
		t.Errorf("calls_last_minute = %d, want 2", status.Burst.CallsLastMinute)
	}
	if status.Burst.PerMinuteLimit != 300 || status.Burst.PerSecondLimit != 5 {
		t.Errorf("burst limits = %+v", status.Burst)
	}
}

func TestStatusStoreFailure(t *testing.T) {
	clk := clock.NewFake(time.Now())
	svc := NewAdmissionService(AdmissionDeps{
		Store:  failingStore{},
		Clock:  clk,
		Logger: zerolog.Nop(),
	}, quota.DefaultLimits())

	if _, err := svc.Status(context.Background()); err == nil {
		t.Error("Status should surface store errors")
	}
}
