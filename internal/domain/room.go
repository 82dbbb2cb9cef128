package domain

import "time"

// Participant is one connected client session for a user inside a room.
// A user may hold several participants at once (multiple tabs/devices),
// distinguished by ClientID.
type Participant struct {
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name"`
	UserEmail string    `json:"user_email"`
	ClientID  string    `json:"client_id"`
	JoinedAt  time.Time `json:"joined_at"`
}

// SnapshotEntry is the authoritative current state of one tracked field.
type SnapshotEntry struct {
	Value        any    `json:"value"`
	LastWriterID string `json:"last_writer_id"`
	Sequence     int64  `json:"sequence"`
}

// Snapshot maps field names to their authoritative current state.
type Snapshot map[string]SnapshotEntry

// RoomDescriptor is the read-only view of a live room handed to callers.
type RoomDescriptor struct {
	ID             string        `json:"id"`
	EntityType     string        `json:"entity_type"`
	EntityID       string        `json:"entity_id"`
	CompanyID      string        `json:"company_id"`
	Participants   []Participant `json:"participants"`
	CreatedAt      time.Time     `json:"created_at"`
	LastActivityAt time.Time     `json:"last_activity_at"`
}

// RoomSummary is the compact listing form of a room.
type RoomSummary struct {
	ID               string    `json:"id"`
	EntityType       string    `json:"entity_type"`
	EntityID         string    `json:"entity_id"`
	CompanyID        string    `json:"company_id"`
	ParticipantCount int       `json:"participant_count"`
	LastActivityAt   time.Time `json:"last_activity_at"`
}
