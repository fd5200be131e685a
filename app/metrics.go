package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// admissionAllowedTotal counts admission checks that approved a call.
	admissionAllowedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "databot_quota_admission_allowed_total",
			Help: "Total number of admission checks that allowed the call",
		},
	)

	// admissionDeniedTotal counts denials per reason.
	admissionDeniedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "databot_quota_admission_denied_total",
			Help: "Total number of admission checks that denied the call",
		},
		[]string{"reason"},
	)

	// recordedCostTotal accumulates recorded call cost per scope.
	recordedCostTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "databot_quota_recorded_cost_total",
			Help: "Total recorded call cost per window scope",
		},
		[]string{"scope"},
	)

	// quotaUsed tracks current window usage per scope after each record.
	quotaUsed = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "databot_quota_window_used",
			Help: "Cost recorded in the current window per scope (updated on each record)",
		},
		[]string{"scope"},
	)

	// thresholdWarningsTotal counts warning-threshold crossings per scope.
	thresholdWarningsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "databot_quota_threshold_warnings_total",
			Help: "Total number of warning-threshold events emitted per scope",
		},
		[]string{"scope"},
	)

	// storeErrorsTotal counts window-store failures, each of which degrades
	// the controller to fail-closed denials.
	storeErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "databot_quota_store_errors_total",
			Help: "Total number of window store failures",
		},
	)
)
