// Package messaging defines the outbound event port for graph mutations and
// the event payloads carried over it.
package messaging

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event is the contract every published event satisfies.
type Event interface {
	// EventType is the wire discriminator, e.g. "version.branched".
	EventType() string
	// AggregateID identifies the lineage the event belongs to.
	AggregateID() string
	// Timestamp is when the event occurred.
	Timestamp() time.Time
}

// EventBus publishes events to downstream consumers.
type EventBus interface {
	Publish(ctx context.Context, event Event) error
	PublishBatch(ctx context.Context, events []Event) error
}

// NoopBus discards all events. Used in tests and when no bus is configured.
type NoopBus struct{}

func (NoopBus) Publish(ctx context.Context, event Event) error         { return nil }
func (NoopBus) PublishBatch(ctx context.Context, events []Event) error { return nil }

// BaseEvent carries the fields common to all events.
type BaseEvent struct {
	EventID    string    `json:"event_id"`
	Type       string    `json:"type"`
	LineageID  string    `json:"lineage_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

func newBaseEvent(eventType, lineageID string, at time.Time) BaseEvent {
	return BaseEvent{
		EventID:    uuid.New().String(),
		Type:       eventType,
		LineageID:  lineageID,
		OccurredAt: at,
	}
}

func (e BaseEvent) EventType() string    { return e.Type }
func (e BaseEvent) AggregateID() string  { return e.LineageID }
func (e BaseEvent) Timestamp() time.Time { return e.OccurredAt }
