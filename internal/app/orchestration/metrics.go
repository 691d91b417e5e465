package orchestration

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OrchestrationMetrics defines metrics operations needed by the orchestrator.
type OrchestrationMetrics interface {
	// Request metrics.
	IncScanRequested(ctx context.Context, kind string)
	IncScanDenied(ctx context.Context, reason string)
	IncScanRejected(ctx context.Context)

	// Report metrics.
	IncScanReports(ctx context.Context, status string)
	ObserveResultCount(ctx context.Context, count int)
	IncResultSaveErrors(ctx context.Context)

	// PNO metrics.
	IncPnoFailures(ctx context.Context)
	IncPnoGiveUps(ctx context.Context)

	// Timer metrics.
	IncTimerFired(ctx context.Context, event string)
}

type orchestrationMetrics struct {
	scansRequested   metric.Int64Counter
	scansDenied      metric.Int64Counter
	scansRejected    metric.Int64Counter
	reports          metric.Int64Counter
	resultCount      metric.Int64Histogram
	resultSaveErrors metric.Int64Counter
	pnoFailures      metric.Int64Counter
	pnoGiveUps       metric.Int64Counter
	timersFired      metric.Int64Counter
}

const namespace = "scand"

// NewOrchestrationMetrics creates a new orchestration metrics instance.
func NewOrchestrationMetrics(mp metric.MeterProvider) (*orchestrationMetrics, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	c := new(orchestrationMetrics)
	var err error

	if c.scansRequested, err = meter.Int64Counter(
		"scans_requested_total",
		metric.WithDescription("Total number of scan requests received"),
	); err != nil {
		return nil, err
	}

	if c.scansDenied, err = meter.Int64Counter(
		"scans_denied_total",
		metric.WithDescription("Total number of scan requests denied by policy"),
	); err != nil {
		return nil, err
	}

	if c.scansRejected, err = meter.Int64Counter(
		"scans_rejected_total",
		metric.WithDescription("Total number of scan requests rejected as invalid"),
	); err != nil {
		return nil, err
	}

	if c.reports, err = meter.Int64Counter(
		"scan_reports_total",
		metric.WithDescription("Total number of status reports handled"),
	); err != nil {
		return nil, err
	}

	if c.resultCount, err = meter.Int64Histogram(
		"scan_result_count",
		metric.WithDescription("Number of results forwarded per report"),
	); err != nil {
		return nil, err
	}

	if c.resultSaveErrors, err = meter.Int64Counter(
		"scan_result_save_errors_total",
		metric.WithDescription("Total number of failures persisting full-scan results"),
	); err != nil {
		return nil, err
	}

	if c.pnoFailures, err = meter.Int64Counter(
		"pno_failures_total",
		metric.WithDescription("Total number of PNO scan failures"),
	); err != nil {
		return nil, err
	}

	if c.pnoGiveUps, err = meter.Int64Counter(
		"pno_give_ups_total",
		metric.WithDescription("Total number of times PNO restarts were abandoned"),
	); err != nil {
		return nil, err
	}

	if c.timersFired, err = meter.Int64Counter(
		"timers_fired_total",
		metric.WithDescription("Total number of orchestrator timer firings"),
	); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *orchestrationMetrics) IncScanRequested(ctx context.Context, kind string) {
	c.scansRequested.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (c *orchestrationMetrics) IncScanDenied(ctx context.Context, reason string) {
	c.scansDenied.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (c *orchestrationMetrics) IncScanRejected(ctx context.Context) { c.scansRejected.Add(ctx, 1) }

func (c *orchestrationMetrics) IncScanReports(ctx context.Context, status string) {
	c.reports.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

func (c *orchestrationMetrics) ObserveResultCount(ctx context.Context, count int) {
	c.resultCount.Record(ctx, int64(count))
}

func (c *orchestrationMetrics) IncResultSaveErrors(ctx context.Context) { c.resultSaveErrors.Add(ctx, 1) }

func (c *orchestrationMetrics) IncPnoFailures(ctx context.Context) { c.pnoFailures.Add(ctx, 1) }

func (c *orchestrationMetrics) IncPnoGiveUps(ctx context.Context) { c.pnoGiveUps.Add(ctx, 1) }

func (c *orchestrationMetrics) IncTimerFired(ctx context.Context, event string) {
	c.timersFired.Add(ctx, 1, metric.WithAttributes(attribute.String("event", event)))
}
