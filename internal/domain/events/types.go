package events

// EventType represents a domain event category, enabling type-safe event routing and handling.
type EventType string

// Scan lifecycle events, one per upstream callback.
const (
	EventTypeScanStarted       EventType = "ScanStarted"
	EventTypeScanStopped       EventType = "ScanStopped"
	EventTypeScanFinished      EventType = "ScanFinished"
	EventTypeScanResults       EventType = "ScanResults"
	EventTypeScanResultsStored EventType = "ScanResultsStored"
)

// PublishOption is a function type that modifies PublishParams.
type PublishOption func(*PublishParams)

// PublishParams contains configuration options for publishing domain events.
type PublishParams struct {
	// Key is used as a partition key to control event routing and ordering.
	Key string
	// Headers contain metadata key-value pairs attached to the event.
	Headers map[string]string
}

// WithKey returns a PublishOption that sets the partition key for event routing.
func WithKey(key string) PublishOption {
	return func(p *PublishParams) { p.Key = key }
}

// WithHeaders returns a PublishOption that attaches metadata headers to an event.
func WithHeaders(headers map[string]string) PublishOption {
	return func(p *PublishParams) { p.Headers = headers }
}

// ApplyOptions folds opts into a PublishParams.
func ApplyOptions(opts ...PublishOption) PublishParams {
	var p PublishParams
	for _, opt := range opts {
		opt(&p)
	}
	return p
}
