package quota

import "time"

// Cost is the abstract weight an operation consumes against a cost budget,
// distinct from the simple call count used by burst limits.
type Cost int64

// Per-operation costs charged by the video platform API.
const (
	CostVideoStats    Cost = 1   // videos.list with snippet,statistics
	CostChannelInfo   Cost = 1   // channels.list with snippet,statistics
	CostChannelSearch Cost = 100 // search.list for channels
	CostChannelVideos Cost = 100 // search.list for channel videos
	CostVideoSearch   Cost = 100 // search.list for videos
)

// Limits holds the static budget configuration. Not persisted.
type Limits struct {
	DailyLimit     int64 // cost budget per day
	HourlyLimit    int64 // cost budget per hour
	PerMinuteLimit int   // call-count budget per minute
	PerSecondLimit int   // call-count budget per second

	// Warning thresholds as fractions of the day/hour budgets. Used only
	// to decide when to log, never to block.
	DailyWarnThreshold  float64
	HourlyWarnThreshold float64

	// MinInterval is the minimum spacing between recorded calls used by
	// the delay recommendation.
	MinInterval time.Duration
}

// DefaultLimits returns the platform's daily quota plus the self-imposed
// hourly, per-minute and burst limits.
func DefaultLimits() Limits {
	return Limits{
		DailyLimit:          10000,
		HourlyLimit:         1000,
		PerMinuteLimit:      300,
		PerSecondLimit:      5,
		DailyWarnThreshold:  0.8,
		HourlyWarnThreshold: 0.8,
		MinInterval:         200 * time.Millisecond,
	}
}

// LimitFor returns the cost budget for a scope.
func (l Limits) LimitFor(s Scope) int64 {
	if s == ScopeDaily {
		return l.DailyLimit
	}
	return l.HourlyLimit
}

// ThresholdFor returns the warning threshold fraction for a scope.
func (l Limits) ThresholdFor(s Scope) float64 {
	if s == ScopeDaily {
		return l.DailyWarnThreshold
	}
	return l.HourlyWarnThreshold
}
