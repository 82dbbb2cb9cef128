package domain

import "time"

// ChangeType enumerates the kinds of field changes a client may submit.
type ChangeType string

const (
	ChangeTypeCreate ChangeType = "create"
	ChangeTypeUpdate ChangeType = "update"
	ChangeTypeDelete ChangeType = "delete"
)

// Valid reports whether the change type is one of the known values.
func (c ChangeType) Valid() bool {
	switch c {
	case ChangeTypeCreate, ChangeTypeUpdate, ChangeTypeDelete:
		return true
	}
	return false
}

// Update is the wire/event record of one accepted field change. It is
// immutable once produced and persisted verbatim to the history store.
type Update struct {
	ID         string     `json:"id"`
	RoomID     string     `json:"room_id"`
	UserID     string     `json:"user_id"`
	CompanyID  string     `json:"company_id"`
	ChangeType ChangeType `json:"change_type"`
	FieldName  string     `json:"field_name"`
	OldValue   any        `json:"old_value"`
	NewValue   any        `json:"new_value"`
	Sequence   int64      `json:"sequence"`
	Timestamp  time.Time  `json:"timestamp"`
}

// HistoryEntry is the durable, room-instance-independent record of one
// accepted update, keyed by business entity rather than by ephemeral room.
type HistoryEntry struct {
	ID         string     `json:"id"`
	CompanyID  string     `json:"company_id"`
	EntityType string     `json:"entity_type"`
	EntityID   string     `json:"entity_id"`
	RoomID     string     `json:"room_id"`
	UserID     string     `json:"user_id"`
	ChangeType ChangeType `json:"change_type"`
	FieldName  string     `json:"field_name"`
	OldValue   any        `json:"old_value"`
	NewValue   any        `json:"new_value"`
	Sequence   int64      `json:"sequence"`
	CreatedAt  time.Time  `json:"created_at"`
}
