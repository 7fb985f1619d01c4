package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is the envelope every outbound draft event travels in, both over the
// websocket fan-out and through the outbox journal.
type Event struct {
	ID        uuid.UUID       `json:"id"`
	DraftID   uuid.UUID       `json:"draft_id"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// EventType represents the type of draft event.
type EventType string

const (
	EventTypeDraftSnapshot  EventType = "DraftSnapshot"
	EventTypePickInProgress EventType = "PickInProgress"

	// Direct replies to a single connection, never fanned out.
	EventTypeQueueState   EventType = "QueueState"
	EventTypeCommandError EventType = "CommandError"

	// Journal-only domain events; clients consume snapshots instead.
	EventTypeDraftStarted   EventType = "DraftStarted"
	EventTypePickMade       EventType = "PickMade"
	EventTypeDraftCompleted EventType = "DraftCompleted"
	EventTypeDraftReset     EventType = "DraftReset"
	EventTypeDraftStalled   EventType = "DraftStalled"
)

// New wraps a payload in an envelope, stamping identity and time.
func New(draftID uuid.UUID, typ EventType, at time.Time, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		ID:        uuid.New(),
		DraftID:   draftID,
		Type:      typ,
		Timestamp: at,
		Data:      data,
	}, nil
}
