package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/ahrav/scand/internal/domain/wifi"
)

// DomainEvent encapsulates all event data flowing through the system, providing
// a standardized format for event processing and distribution.
type DomainEvent struct {
	// ID uniquely identifies this occurrence.
	ID uuid.UUID

	// Type identifies the category of this event for routing and handling.
	Type EventType

	// Timestamp records when this event was created.
	Timestamp time.Time

	// Payload contains the actual event data. The concrete type depends on
	// the EventType: ScanFinishedPayload, ScanResultsPayload or nil.
	Payload any
}

// NewDomainEvent stamps a new event of type t.
func NewDomainEvent(t EventType, at time.Time, payload any) DomainEvent {
	return DomainEvent{ID: uuid.New(), Type: t, Timestamp: at, Payload: payload}
}

// ScanFinishedPayload lists the requests that completed without results.
type ScanFinishedPayload struct {
	RequestIndices []int
}

// ScanResultsPayload carries a result list.
type ScanResultsPayload struct {
	Results []wifi.ScanInfo
}
