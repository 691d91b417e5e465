package otel

import (
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

func newResource(serviceName string, extra map[string]string) *resource.Resource {
	attrs := make([]attribute.KeyValue, 0, len(extra)+1)
	attrs = append(attrs, semconv.ServiceNameKey.String(serviceName))
	for k, v := range extra {
		attrs = append(attrs, attribute.String(k, v))
	}
	return resource.NewWithAttributes(semconv.SchemaURL, attrs...)
}

// NewLocalMeterProvider returns a meter provider with no reader attached.
// Instruments record into it but nothing is exported; it stands in when OTLP
// export is disabled.
func NewLocalMeterProvider(serviceName string, attrs map[string]string) *sdkmetric.MeterProvider {
	return sdkmetric.NewMeterProvider(sdkmetric.WithResource(newResource(serviceName, attrs)))
}
