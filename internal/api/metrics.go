package api

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const namespace = "scand_api"

// APIMetrics records HTTP request metrics.
type APIMetrics interface {
	IncRequestsTotal(ctx context.Context, method, route string, status int)
	ObserveRequestDuration(ctx context.Context, method, route string, duration time.Duration)
}

type apiMetrics struct {
	requestsTotal   metric.Int64Counter
	requestDuration metric.Float64Histogram
}

// NewAPIMetrics creates the request instruments on mp.
func NewAPIMetrics(mp metric.MeterProvider) (*apiMetrics, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	m := new(apiMetrics)
	var err error

	if m.requestsTotal, err = meter.Int64Counter(
		"requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	); err != nil {
		return nil, err
	}

	if m.requestDuration, err = meter.Float64Histogram(
		"request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *apiMetrics) IncRequestsTotal(ctx context.Context, method, route string, status int) {
	m.requestsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.Int("status", status),
	))
}

func (m *apiMetrics) ObserveRequestDuration(ctx context.Context, method, route string, duration time.Duration) {
	m.requestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
	))
}
