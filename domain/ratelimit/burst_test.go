package ratelimit

import (
	"testing"
	"time"
)

func at(base time.Time, offset time.Duration) time.Time {
	return base.Add(offset)
}

func stateAt(base time.Time, offsets ...time.Duration) BurstState {
	times := make([]time.Time, 0, len(offsets))
	for _, o := range offsets {
		times = append(times, base.Add(o))
	}
	return BurstState{Times: times}
}

func TestPrune(t *testing.T) {
	base := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	state := stateAt(base, 0, 30*time.Second, 59*time.Second)

	now := at(base, 61*time.Second)
	pruned := Prune(state, now, HorizonMinute)
	if len(pruned.Times) != 2 {
		t.Errorf("retained %d timestamps, want 2", len(pruned.Times))
	}

	// Input state stays intact.
	if len(state.Times) != 3 {
		t.Errorf("Prune mutated its input: %d timestamps", len(state.Times))
	}
}

func TestPruneAll(t *testing.T) {
	base := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	state := stateAt(base, 0, time.Second)

	pruned := Prune(state, at(base, 2*time.Minute), HorizonMinute)
	if len(pruned.Times) != 0 {
		t.Errorf("retained %d timestamps, want 0", len(pruned.Times))
	}
}

func TestAppendBounded(t *testing.T) {
	base := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

	var state BurstState
	for i := 0; i < 100; i++ {
		state = Append(state, at(base, time.Duration(i)*time.Second))
	}

	// Only the last minute of appends survives.
	if len(state.Times) > 61 {
		t.Errorf("state holds %d timestamps, want at most 61", len(state.Times))
	}
	last := state.Times[len(state.Times)-1]
	if !last.Equal(at(base, 99*time.Second)) {
		t.Errorf("last timestamp = %v, want %v", last, at(base, 99*time.Second))
	}
}

func TestCountWithin(t *testing.T) {
	base := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	state := stateAt(base,
		0,
		30*time.Second,
		59*time.Second,
		59500*time.Millisecond,
	)
	now := at(base, 60*time.Second)

	if got := CountWithin(state, now, HorizonMinute); got != 3 {
		t.Errorf("minute count = %d, want 3", got)
	}
	if got := CountWithin(state, now, HorizonSecond); got != 1 {
		t.Errorf("second count = %d, want 1", got)
	}
}

func TestCheck(t *testing.T) {
	base := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		offsets     []time.Duration
		nowOffset   time.Duration
		perMin      int
		perSec      int
		wantAllowed bool
		wantReason  string
	}{
		{
			name:        "empty state",
			nowOffset:   0,
			perMin:      300,
			perSec:      5,
			wantAllowed: true,
		},
		{
			name: "per-second full",
			offsets: []time.Duration{
				100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond,
				400 * time.Millisecond, 500 * time.Millisecond,
			},
			nowOffset:   600 * time.Millisecond,
			perMin:      300,
			perSec:      5,
			wantAllowed: false,
			wantReason:  ReasonBurstExceeded,
		},
		{
			name: "per-second clears after a second",
			offsets: []time.Duration{
				100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond,
				400 * time.Millisecond, 500 * time.Millisecond,
			},
			nowOffset:   1600 * time.Millisecond,
			perMin:      300,
			perSec:      5,
			wantAllowed: true,
		},
		{
			name:        "per-minute full",
			offsets:     spread(3, 3*time.Second),
			nowOffset:   10 * time.Second,
			perMin:      3,
			perSec:      0,
			wantAllowed: false,
			wantReason:  ReasonPerMinuteExceeded,
		},
		{
			name:        "disabled limits",
			offsets:     spread(50, 100*time.Millisecond),
			nowOffset:   6 * time.Second,
			perMin:      0,
			perSec:      0,
			wantAllowed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := stateAt(base, tt.offsets...)
			got := Check(state, at(base, tt.nowOffset), tt.perMin, tt.perSec)
			if got.Allowed != tt.wantAllowed {
				t.Errorf("Allowed = %v, want %v", got.Allowed, tt.wantAllowed)
			}
			if got.Reason != tt.wantReason {
				t.Errorf("Reason = %q, want %q", got.Reason, tt.wantReason)
			}
		})
	}
}

// spread builds n offsets step apart starting at zero.
func spread(n int, step time.Duration) []time.Duration {
	out := make([]time.Duration, n)
	for i := range out {
		out[i] = time.Duration(i) * step
	}
	return out
}

func TestCheckMinuteBeforeSecond(t *testing.T) {
	base := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	// Both layers are saturated; the per-minute reason wins.
	state := stateAt(base, spread(5, 10*time.Millisecond)...)
	got := Check(state, at(base, 100*time.Millisecond), 5, 5)
	if got.Allowed {
		t.Fatal("expected denial")
	}
	if got.Reason != ReasonPerMinuteExceeded {
		t.Errorf("Reason = %q, want %q", got.Reason, ReasonPerMinuteExceeded)
	}
}
