package kafka

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/scand/internal/domain/events"
	"github.com/ahrav/scand/internal/infra/eventbus/kafka/tracing"
	"github.com/ahrav/scand/pkg/common/logger"
)

// PublisherMetrics defines metrics operations needed to monitor publishing.
type PublisherMetrics interface {
	IncMessagePublished(ctx context.Context, topic string)
	IncPublishError(ctx context.Context, topic string)
}

var _ events.DomainEventPublisher = (*Publisher)(nil)

// Publisher implements events.DomainEventPublisher on a Kafka SyncProducer.
// Every event goes to one topic; the publish key selects the partition.
type Publisher struct {
	producer sarama.SyncProducer
	topic    string

	logger  *logger.Logger
	metrics PublisherMetrics
	tracer  trace.Tracer
}

// NewPublisher creates a Publisher writing to topic. metrics may be nil.
func NewPublisher(
	producer sarama.SyncProducer,
	topic string,
	logger *logger.Logger,
	metrics PublisherMetrics,
	tracer trace.Tracer,
) *Publisher {
	return &Publisher{
		producer: producer,
		topic:    topic,
		logger:   logger.With("component", "kafka_publisher", "topic", topic),
		metrics:  metrics,
		tracer:   tracer,
	}
}

// PublishDomainEvent serializes event and sends it synchronously. The event
// type and id travel as headers next to any caller supplied headers.
func (p *Publisher) PublishDomainEvent(ctx context.Context, event events.DomainEvent, opts ...events.PublishOption) error {
	ctx, span := tracing.StartProducerSpan(ctx, p.topic, p.tracer)
	defer span.End()

	params := events.ApplyOptions(opts...)
	span.SetAttributes(
		attribute.String("event.type", string(event.Type)),
		attribute.String("event.key", params.Key),
	)

	value, err := encodeEvent(event)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to encode event")
		p.incError(ctx)
		return fmt.Errorf("failed to serialize event %s: %w", event.Type, err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(event.Type)},
			{Key: []byte("event_id"), Value: []byte(event.ID.String())},
		},
	}
	if params.Key != "" {
		msg.Key = sarama.StringEncoder(params.Key)
	}
	for k, v := range params.Headers {
		msg.Headers = append(msg.Headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}
	tracing.InjectTraceContext(ctx, msg)

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send message")
		p.incError(ctx)
		return fmt.Errorf("failed to send message to kafka topic %s: %w", p.topic, err)
	}

	if p.metrics != nil {
		p.metrics.IncMessagePublished(ctx, p.topic)
	}
	span.SetStatus(codes.Ok, "message published")
	p.logger.Debug(ctx, "Published message to Kafka",
		"event_type", string(event.Type),
		"partition", partition,
		"offset", offset,
		"key", params.Key,
	)
	return nil
}

func (p *Publisher) incError(ctx context.Context) {
	if p.metrics != nil {
		p.metrics.IncPublishError(ctx, p.topic)
	}
}

// Close closes the underlying producer.
func (p *Publisher) Close() error { return p.producer.Close() }

type publisherMetrics struct {
	published metric.Int64Counter
	errors    metric.Int64Counter
}

// NewPublisherMetrics registers the publisher's counters with mp.
func NewPublisherMetrics(mp metric.MeterProvider) (PublisherMetrics, error) {
	meter := mp.Meter("scand_kafka", metric.WithInstrumentationVersion("v0.1.0"))

	m := new(publisherMetrics)
	var err error
	if m.published, err = meter.Int64Counter(
		"messages_published_total",
		metric.WithDescription("Total number of messages published"),
	); err != nil {
		return nil, err
	}
	if m.errors, err = meter.Int64Counter(
		"publish_errors_total",
		metric.WithDescription("Total number of publish errors"),
	); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *publisherMetrics) IncMessagePublished(ctx context.Context, topic string) {
	m.published.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", topic)))
}

func (m *publisherMetrics) IncPublishError(ctx context.Context, topic string) {
	m.errors.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", topic)))
}
