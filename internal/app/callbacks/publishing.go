package callbacks

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/scand/internal/domain/events"
	"github.com/ahrav/scand/internal/domain/wifi"
	"github.com/ahrav/scand/pkg/common/logger"
	"github.com/ahrav/scand/pkg/common/timeutil"
)

var _ wifi.ScanCallbacks = (*PublishingSink)(nil)

// PublishingSink turns callbacks into domain events. All events of one device
// share a partition key so consumers see them in order. Publish failures are
// logged and dropped; callbacks have no error path.
type PublishingSink struct {
	publisher events.DomainEventPublisher
	deviceID  string
	clock     timeutil.Provider

	logger *logger.Logger
	tracer trace.Tracer
}

// NewPublishingSink returns a PublishingSink publishing through publisher.
func NewPublishingSink(
	publisher events.DomainEventPublisher,
	deviceID string,
	clock timeutil.Provider,
	log *logger.Logger,
	tracer trace.Tracer,
) *PublishingSink {
	return &PublishingSink{
		publisher: publisher,
		deviceID:  deviceID,
		clock:     clock,
		logger:    log.With("component", "scan_event_publisher", "device_id", deviceID),
		tracer:    tracer,
	}
}

func (p *PublishingSink) publish(ctx context.Context, t events.EventType, payload any) {
	ctx, span := p.tracer.Start(ctx, "callbacks.publish_event",
		trace.WithAttributes(
			attribute.String("event_type", string(t)),
			attribute.String("device_id", p.deviceID),
		))
	defer span.End()

	evt := events.NewDomainEvent(t, p.clock.Now(), payload)
	if err := p.publisher.PublishDomainEvent(ctx, evt, events.WithKey(p.deviceID)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to publish event")
		p.logger.Error(ctx, "Failed to publish scan event", "event_type", string(t), "err", err)
		return
	}
	span.SetStatus(codes.Ok, "event published")
}

func (p *PublishingSink) OnScanStartEvent(ctx context.Context) {
	p.publish(ctx, events.EventTypeScanStarted, nil)
}

func (p *PublishingSink) OnScanStopEvent(ctx context.Context) {
	p.publish(ctx, events.EventTypeScanStopped, nil)
}

func (p *PublishingSink) OnScanFinishEvent(ctx context.Context, requestIndices []int) {
	p.publish(ctx, events.EventTypeScanFinished, events.ScanFinishedPayload{RequestIndices: requestIndices})
}

func (p *PublishingSink) OnScanInfoEvent(ctx context.Context, results []wifi.ScanInfo) {
	p.publish(ctx, events.EventTypeScanResults, events.ScanResultsPayload{Results: results})
}

func (p *PublishingSink) OnStoreScanInfoEvent(ctx context.Context, results []wifi.ScanInfo) {
	p.publish(ctx, events.EventTypeScanResultsStored, events.ScanResultsPayload{Results: results})
}
