package jsonl

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics shared by every Log in the process.
//
// Metrics:
//   - codeloops_log_appends_total{log,result} - append attempts by outcome
//   - codeloops_log_lock_retries_total{log} - lock acquisitions that found the lock held
//   - codeloops_log_rebuilds_total{log} - atomic rewrites of a log file
//   - codeloops_log_skipped_lines_total{log} - persisted lines that failed to decode
type Metrics struct {
	AppendsTotal      *prometheus.CounterVec
	LockRetriesTotal  *prometheus.CounterVec
	RebuildsTotal     *prometheus.CounterVec
	SkippedLinesTotal *prometheus.CounterVec
}

// NewMetrics returns the process-wide metrics, registering them on first use.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			AppendsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "codeloops_log_appends_total",
					Help: "Total number of log append operations",
				},
				[]string{"log", "result"},
			),
			LockRetriesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "codeloops_log_lock_retries_total",
					Help: "Total number of lock acquisitions that found the lock held",
				},
				[]string{"log"},
			),
			RebuildsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "codeloops_log_rebuilds_total",
					Help: "Total number of atomic log rewrites",
				},
				[]string{"log"},
			),
			SkippedLinesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "codeloops_log_skipped_lines_total",
					Help: "Total number of persisted lines skipped as invalid",
				},
				[]string{"log"},
			),
		}
	})
	return globalMetrics
}
