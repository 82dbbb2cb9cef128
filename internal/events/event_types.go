package events

import (
	"time"

	"github.com/spec-kit/collab-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventRoomCreated       EventType = "room_created"
	EventParticipantJoined EventType = "participant_joined"
	EventParticipantLeft   EventType = "participant_left"
	EventFieldUpdated      EventType = "field_updated"
)

// Event represents a collaboration event emitted by the engine.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	RoomID    string      `json:"room_id"`
	CompanyID string      `json:"company_id"`
	UserID    string      `json:"user_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// RoomCreatedPayload payload.
type RoomCreatedPayload struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
}

// ParticipantJoinedPayload payload.
type ParticipantJoinedPayload struct {
	ClientID string `json:"client_id"`
	UserName string `json:"user_name"`
}

// ParticipantLeftPayload payload.
type ParticipantLeftPayload struct {
	ClientIDs []string `json:"client_ids"`
}

// FieldUpdatedPayload payload.
type FieldUpdatedPayload struct {
	FieldName  string            `json:"field_name"`
	ChangeType domain.ChangeType `json:"change_type"`
	Sequence   int64             `json:"sequence"`
	NewValue   any               `json:"new_value"`
}
