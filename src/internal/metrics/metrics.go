// Package metrics provides Prometheus metrics for the repair engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ScanPassesTotal counts completed scan passes, by result.
	ScanPassesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "untruncd_scan_passes_total",
		Help: "Total number of scan passes, by result (ok/error).",
	}, []string{"result"})

	// RepairsTotal counts terminal repair outcomes.
	RepairsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "untruncd_repairs_total",
		Help: "Total number of finished repair jobs, by outcome.",
	}, []string{"outcome"})

	// RepairErrorsTotal counts failed repairs by error kind.
	RepairErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "untruncd_repair_errors_total",
		Help: "Total number of repair failures, by error kind.",
	}, []string{"kind"})

	// FallbackAttemptsTotal counts remote fallback dispatch attempts.
	FallbackAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "untruncd_fallback_attempts_total",
		Help: "Total number of fallback dispatch HTTP attempts.",
	})

	// FallbackExhaustedTotal counts files whose fallback retries ran out.
	FallbackExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "untruncd_fallback_exhausted_total",
		Help: "Total number of files for which fallback dispatch exhausted all retries.",
	})

	// BatchSubmissionsTotal counts cloud batch job submissions, by status.
	BatchSubmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "untruncd_batch_submissions_total",
		Help: "Total number of batch job submissions, by status (accepted/rejected/error).",
	}, []string{"status"})

	// ActiveRepairs tracks repair jobs currently admitted past the gate.
	ActiveRepairs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "untruncd_active_repairs",
		Help: "Current number of repair jobs running against the external tool.",
	})
)

// RecordScanPass increments the scan pass counter.
func RecordScanPass(result string) {
	ScanPassesTotal.WithLabelValues(result).Inc()
}

// RecordRepairOutcome increments the terminal-outcome counter.
func RecordRepairOutcome(outcome string) {
	RepairsTotal.WithLabelValues(outcome).Inc()
}

// RecordRepairError increments the per-kind failure counter.
func RecordRepairError(kind string) {
	RepairErrorsTotal.WithLabelValues(kind).Inc()
}

// RecordBatchSubmission increments the submission counter.
func RecordBatchSubmission(status string) {
	BatchSubmissionsTotal.WithLabelValues(status).Inc()
}
