package events

import (
	"context"
	"time"
)

// Event defines the contract for all system events.
type Event interface {
	// EventType returns the unique code for this event (e.g., "SESSION_DELETED").
	EventType() string

	// Payload returns the data associated with the event.
	Payload() map[string]interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

const (
	TypeSessionConsolidated = "SESSION_CONSOLIDATED"
	TypeSessionDeleted      = "SESSION_DELETED"
	TypeKnowledgeIngested   = "KNOWLEDGE_INGESTED"
	TypeKnowledgeDeleted    = "KNOWLEDGE_DELETED"
)

type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

func New(eventType string, data map[string]interface{}) BaseEvent {
	return BaseEvent{Type: eventType, Data: data, OccurredAt: time.Now().UTC()}
}

// SessionID reads the session_id field that every session event carries.
func SessionID(e Event) string {
	id, _ := e.Payload()["session_id"].(string)
	return id
}

// Origin reads the id of the instance that published e, if it was stamped.
func Origin(e Event) string {
	id, _ := e.Payload()["origin"].(string)
	return id
}

// Publisher is anything that can put an event on the bus.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// NopPublisher drops every event. It stands in when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, event Event) error { return nil }

type originPublisher struct {
	next   Publisher
	origin string
}

// WithOrigin stamps every event with the publishing instance id so that
// subscribers can skip their own events.
func WithOrigin(next Publisher, origin string) Publisher {
	return originPublisher{next: next, origin: origin}
}

func (p originPublisher) Publish(ctx context.Context, event Event) error {
	data := make(map[string]interface{}, len(event.Payload())+1)
	for k, v := range event.Payload() {
		data[k] = v
	}
	data["origin"] = p.origin
	return p.next.Publish(ctx, BaseEvent{Type: event.EventType(), Data: data, OccurredAt: event.Timestamp()})
}
