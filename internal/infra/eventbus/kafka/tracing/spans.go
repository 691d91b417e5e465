// Package tracing carries trace context across Kafka messages.
package tracing

import (
	"context"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// StartProducerSpan creates a new span for producing messages
func StartProducerSpan(ctx context.Context, topic string, tracer trace.Tracer) (context.Context, trace.Span) {
	return tracer.Start(ctx, "kafka.produce",
		trace.WithAttributes(
			semconv.MessagingSystemKafka,
			semconv.MessagingDestinationName(topic),
			semconv.MessagingOperationPublish,
		),
	)
}

// MessageCarrier adapts Kafka record headers to a propagation.TextMapCarrier.
type MessageCarrier struct {
	Headers []sarama.RecordHeader
}

// Get returns the value for key, or "".
func (c *MessageCarrier) Get(key string) string {
	for _, h := range c.Headers {
		if string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}

// Set replaces or appends key.
func (c *MessageCarrier) Set(key, value string) {
	for i, h := range c.Headers {
		if string(h.Key) == key {
			c.Headers[i].Value = []byte(value)
			return
		}
	}
	c.Headers = append(c.Headers, sarama.RecordHeader{Key: []byte(key), Value: []byte(value)})
}

// Keys lists the header keys.
func (c *MessageCarrier) Keys() []string {
	keys := make([]string, len(c.Headers))
	for i, h := range c.Headers {
		keys[i] = string(h.Key)
	}
	return keys
}

// InjectTraceContext adds trace context to Kafka message headers
func InjectTraceContext(ctx context.Context, msg *sarama.ProducerMessage) {
	carrier := &MessageCarrier{Headers: msg.Headers}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	msg.Headers = carrier.Headers
}
