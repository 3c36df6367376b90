package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sheetOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sheet_operations_total",
			Help:      "Spreadsheet backend calls by operation and outcome.",
		},
		[]string{"op", "outcome"},
	)

	sheetOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sheet_operation_duration_seconds",
			Help:      "Spreadsheet backend call duration in seconds, retries included.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"op"},
	)

	partialFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sheet_partial_failures_total",
			Help:      "Writes that left the sheet half-updated and need manual reconciliation.",
		},
	)
)

// ObserveSheetOp records one spreadsheet backend operation started at start.
func ObserveSheetOp(op string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	sheetOpsTotal.WithLabelValues(op, outcome).Inc()
	sheetOpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// IncPartialFailure counts a write that was not fully applied.
func IncPartialFailure() {
	partialFailures.Inc()
}
