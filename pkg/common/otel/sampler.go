package otel

import (
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// endpointExcluder drops root spans for excluded routes, such as health
// probes, and samples everything else by trace id ratio.
type endpointExcluder struct {
	excluded map[string]struct{}
	sampler  sdktrace.Sampler
}

func newEndpointExcluder(excluded map[string]struct{}, probability float64) endpointExcluder {
	if probability <= 0 {
		probability = 1
	}
	return endpointExcluder{
		excluded: excluded,
		sampler:  sdktrace.ParentBased(sdktrace.TraceIDRatioBased(probability)),
	}
}

func (ee endpointExcluder) ShouldSample(p sdktrace.SamplingParameters) sdktrace.SamplingResult {
	if _, ok := ee.excluded[p.Name]; ok {
		return sdktrace.SamplingResult{Decision: sdktrace.Drop}
	}
	return ee.sampler.ShouldSample(p)
}

func (ee endpointExcluder) Description() string {
	return "endpointExcluder"
}
