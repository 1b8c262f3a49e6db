package domain

import "time"

// EventKind names a telemetry stream.
type EventKind string

const (
	EventInteraction EventKind = "interaction"
	EventRouting     EventKind = "routing"
	EventPerformance EventKind = "performance"
	EventError       EventKind = "error"
)

// EventKinds lists all telemetry streams.
var EventKinds = []EventKind{EventInteraction, EventRouting, EventPerformance, EventError}

// TelemetryEvent is a single execution record.
type TelemetryEvent struct {
	Kind          EventKind      `json:"kind"`
	CorrelationID string         `json:"correlationId"`
	Timestamp     time.Time      `json:"timestamp"`
	Payload       map[string]any `json:"payload,omitempty"`
}
