package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MachineMetrics defines metrics operations needed by the scan state machine.
type MachineMetrics interface {
	// State metrics.
	IncTransitions(from, to string)

	// Driver metrics.
	IncDriverCalls(op string, success bool)
	ObserveScanDuration(d time.Duration)

	// Report metrics.
	IncReports(status string)
}

// Metrics implements MachineMetrics on Prometheus collectors.
type Metrics struct {
	Transitions  *prometheus.CounterVec
	DriverCalls  *prometheus.CounterVec
	ScanDuration prometheus.Histogram
	Reports      *prometheus.CounterVec
}

// Ensure Metrics implements the interface.
var _ MachineMetrics = (*Metrics)(nil)

func (m *Metrics) IncTransitions(from, to string) { m.Transitions.WithLabelValues(from, to).Inc() }
func (m *Metrics) IncReports(status string)       { m.Reports.WithLabelValues(status).Inc() }

// IncDriverCalls counts a driver call by operation and outcome.
func (m *Metrics) IncDriverCalls(op string, success bool) {
	result := "success"
	if !success {
		result = "error"
	}
	m.DriverCalls.WithLabelValues(op, result).Inc()
}

// ObserveScanDuration records how long a hardware scan was in flight.
func (m *Metrics) ObserveScanDuration(d time.Duration) { m.ScanDuration.Observe(d.Seconds()) }

// New creates a new Metrics instance registered with reg. A nil reg uses the
// default Prometheus registry.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Total number of scan state machine transitions",
		}, []string{"from", "to"}),
		DriverCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "driver_calls_total",
			Help:      "Total number of calls issued to the radio driver",
		}, []string{"op", "result"}),
		ScanDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_duration_seconds",
			Help:      "Time a hardware scan spent in flight",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		Reports: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_reports_total",
			Help:      "Total number of scan status reports by status",
		}, []string{"status"}),
	}
}
