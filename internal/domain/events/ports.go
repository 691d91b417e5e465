// Package events provides domain event handling capabilities for communicating state changes
// across system boundaries in a decoupled way.
package events

import "context"

// DomainEventPublisher publishes domain events to notify other parts of the system about
// important domain changes. It decouples event producers from the underlying messaging
// infrastructure.
type DomainEventPublisher interface {
	// PublishDomainEvent sends a domain event to interested subscribers. The provided context
	// controls cancellation and deadlines. Optional PublishOptions configure routing behavior.
	PublishDomainEvent(ctx context.Context, event DomainEvent, opts ...PublishOption) error
}
