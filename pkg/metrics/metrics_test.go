package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	m := New("scand_test", prometheus.NewRegistry())

	m.IncTransitions("HardwareReady", "CommonScanning")
	m.IncTransitions("HardwareReady", "CommonScanning")
	m.IncDriverCalls("start_scan", true)
	m.IncDriverCalls("start_scan", false)
	m.IncReports("COMMON_SCAN_SUCCESS")
	m.ObserveScanDuration(300 * time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Transitions.WithLabelValues("HardwareReady", "CommonScanning")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DriverCalls.WithLabelValues("start_scan", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DriverCalls.WithLabelValues("start_scan", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Reports.WithLabelValues("COMMON_SCAN_SUCCESS")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.ScanDuration))
}
