package kafka

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ahrav/scand/internal/domain/events"
	"github.com/ahrav/scand/internal/domain/wifi"
)

// encodeEvent renders evt as a protobuf Struct. Consumers decode it with any
// protobuf runtime without sharing Go types.
func encodeEvent(evt events.DomainEvent) ([]byte, error) {
	m := map[string]any{
		"id":        evt.ID.String(),
		"type":      string(evt.Type),
		"timestamp": evt.Timestamp.UTC().Format(time.RFC3339Nano),
	}

	switch p := evt.Payload.(type) {
	case nil:
	case events.ScanFinishedPayload:
		m["request_indices"] = intsToAny(p.RequestIndices)
	case events.ScanResultsPayload:
		m["results"] = resultsToAny(p.Results)
	default:
		return nil, fmt.Errorf("unsupported payload %T for event %s", evt.Payload, evt.Type)
	}

	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("building struct for event %s: %w", evt.Type, err)
	}
	return proto.Marshal(s)
}

// decodeEvent is the inverse of encodeEvent.
func decodeEvent(b []byte) (events.DomainEvent, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(b, &s); err != nil {
		return events.DomainEvent{}, fmt.Errorf("unmarshal event: %w", err)
	}
	fields := s.GetFields()

	id, err := uuid.Parse(fields["id"].GetStringValue())
	if err != nil {
		return events.DomainEvent{}, fmt.Errorf("parse event id: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, fields["timestamp"].GetStringValue())
	if err != nil {
		return events.DomainEvent{}, fmt.Errorf("parse event timestamp: %w", err)
	}

	evt := events.DomainEvent{ID: id, Type: events.EventType(fields["type"].GetStringValue()), Timestamp: ts}
	switch {
	case fields["request_indices"] != nil:
		var idx []int
		for _, v := range fields["request_indices"].GetListValue().GetValues() {
			idx = append(idx, int(v.GetNumberValue()))
		}
		evt.Payload = events.ScanFinishedPayload{RequestIndices: idx}
	case fields["results"] != nil:
		var results []wifi.ScanInfo
		for _, v := range fields["results"].GetListValue().GetValues() {
			results = append(results, resultFromStruct(v.GetStructValue()))
		}
		evt.Payload = events.ScanResultsPayload{Results: results}
	}
	return evt, nil
}

func intsToAny(in []int) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}

func resultsToAny(in []wifi.ScanInfo) []any {
	out := make([]any, len(in))
	for i, r := range in {
		m := map[string]any{
			"bssid":        r.BSSID,
			"ssid":         r.SSID,
			"frequency":    r.Frequency,
			"rssi":         r.RSSI,
			"capabilities": r.Capabilities,
		}
		if !r.Timestamp.IsZero() {
			m["timestamp"] = r.Timestamp.UTC().Format(time.RFC3339Nano)
		}
		out[i] = m
	}
	return out
}

func resultFromStruct(s *structpb.Struct) wifi.ScanInfo {
	f := s.GetFields()
	info := wifi.ScanInfo{
		BSSID:        f["bssid"].GetStringValue(),
		SSID:         f["ssid"].GetStringValue(),
		Frequency:    int(f["frequency"].GetNumberValue()),
		RSSI:         int(f["rssi"].GetNumberValue()),
		Capabilities: f["capabilities"].GetStringValue(),
	}
	if ts := f["timestamp"].GetStringValue(); ts != "" {
		info.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
	}
	return info
}
