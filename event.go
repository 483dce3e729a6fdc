package eventstore

import (
	"time"

	"github.com/indebted-modules/uuid"
)

// EventPayload interface
type EventPayload interface {
	PayloadType() string
}

// Event model
type Event struct {
	ID            string
	Type          string
	StreamID      string
	Sequence      int64
	TransactionID string
	Committed     bool
	Payload       interface{}
	Created       time.Time
}

// NewEvent creates a new event. StreamID, Sequence and TransactionID are
// assigned by the driver on Append.
func NewEvent(payload EventPayload) *Event {
	return &Event{
		ID:      uuid.NewID(),
		Type:    payload.PayloadType(),
		Payload: payload,
		Created: time.Now().UTC(),
	}
}

// Types returns the distinct event types in order of first appearance
func Types(events []*Event) []string {
	set := make(map[string]bool)
	types := make([]string, 0, len(events))
	for _, event := range events {
		if !set[event.Type] {
			set[event.Type] = true
			types = append(types, event.Type)
		}
	}
	return types
}
