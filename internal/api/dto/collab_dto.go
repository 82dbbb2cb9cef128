package dto

import (
	"time"

	"github.com/spec-kit/collab-service/internal/domain"
)

// CreateRoomRequest payload for opening a room on a business entity.
type CreateRoomRequest struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
}

// JoinRoomRequest payload. ClientID is optional; the server assigns one
// when absent so every connection attempt stays distinct.
type JoinRoomRequest struct {
	ClientID string `json:"client_id,omitempty"`
}

// UpdateRequest payload for one field change.
type UpdateRequest struct {
	ChangeType string `json:"change_type"`
	FieldName  string `json:"field_name"`
	OldValue   any    `json:"old_value"`
	NewValue   any    `json:"new_value"`
}

// RoomResponse mirrors the room descriptor.
type RoomResponse struct {
	ID             string                `json:"id"`
	EntityType     string                `json:"entity_type"`
	EntityID       string                `json:"entity_id"`
	CompanyID      string                `json:"company_id"`
	Participants   []ParticipantResponse `json:"participants"`
	CreatedAt      time.Time             `json:"created_at"`
	LastActivityAt time.Time             `json:"last_activity_at"`
}

// ParticipantResponse mirrors one client session.
type ParticipantResponse struct {
	UserID   string    `json:"user_id"`
	UserName string    `json:"user_name"`
	ClientID string    `json:"client_id"`
	JoinedAt time.Time `json:"joined_at"`
}

// RoomSummaryResponse mirrors the compact listing form.
type RoomSummaryResponse struct {
	ID               string    `json:"id"`
	EntityType       string    `json:"entity_type"`
	EntityID         string    `json:"entity_id"`
	ParticipantCount int       `json:"participant_count"`
	LastActivityAt   time.Time `json:"last_activity_at"`
}

// JoinRoomResponse carries the room view plus the assigned client id.
type JoinRoomResponse struct {
	Room     RoomResponse    `json:"room"`
	Snapshot domain.Snapshot `json:"snapshot"`
	ClientID string          `json:"client_id"`
}

// UpdateResponse is the accepted update with its assigned sequence.
type UpdateResponse struct {
	ID         string    `json:"id"`
	RoomID     string    `json:"room_id"`
	UserID     string    `json:"user_id"`
	ChangeType string    `json:"change_type"`
	FieldName  string    `json:"field_name"`
	OldValue   any       `json:"old_value"`
	NewValue   any       `json:"new_value"`
	Sequence   int64     `json:"sequence"`
	Timestamp  time.Time `json:"timestamp"`
	Degraded   bool      `json:"degraded,omitempty"`
}

// HistoryEntryResponse mirrors one durable history record.
type HistoryEntryResponse struct {
	ID         string    `json:"id"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	RoomID     string    `json:"room_id"`
	UserID     string    `json:"user_id"`
	ChangeType string    `json:"change_type"`
	FieldName  string    `json:"field_name"`
	OldValue   any       `json:"old_value"`
	NewValue   any       `json:"new_value"`
	Sequence   int64     `json:"sequence"`
	CreatedAt  time.Time `json:"created_at"`
}
