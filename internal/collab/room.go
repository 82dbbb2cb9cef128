package collab

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/collab-service/internal/domain"
)

// Room is the live collaborative state for one business entity. All
// mutations of participants and snapshot are serialized by the room's own
// mutex; different rooms proceed fully in parallel.
type Room struct {
	ID         string
	EntityType string
	EntityID   string
	CompanyID  string

	mu             sync.Mutex
	lastSeq        int64
	participants   map[string]domain.Participant
	snapshot       map[string]domain.SnapshotEntry
	createdAt      time.Time
	lastActivityAt time.Time
}

func newRoom(entityType, entityID, companyID string, now time.Time) *Room {
	return &Room{
		ID:             RoomID(entityType, entityID),
		EntityType:     entityType,
		EntityID:       entityID,
		CompanyID:      companyID,
		participants:   make(map[string]domain.Participant),
		snapshot:       make(map[string]domain.SnapshotEntry),
		createdAt:      now,
		lastActivityAt: now,
	}
}

// RoomID builds the composite room key for a business entity.
func RoomID(entityType, entityID string) string {
	return entityType + ":" + entityID
}

// SplitRoomID parses a composite room key back into its entity parts.
func SplitRoomID(roomID string) (entityType, entityID string, ok bool) {
	return strings.Cut(roomID, ":")
}

// AddParticipant registers a connected client session.
func (r *Room) AddParticipant(p domain.Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.participants[p.ClientID] = p
	r.lastActivityAt = time.Now()
}

// RemoveUser removes every client session held by the given user and
// returns the removed client ids. Removing an absent user is a no-op.
func (r *Room) RemoveUser(userID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed []string
	for clientID, p := range r.participants {
		if p.UserID == userID {
			delete(r.participants, clientID)
			removed = append(removed, clientID)
		}
	}
	if len(removed) > 0 {
		r.lastActivityAt = time.Now()
	}
	return removed
}

// RemoveClient removes a single client session, reporting whether it was
// present and which user held it.
func (r *Room) RemoveClient(clientID string) (userID string, removed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[clientID]
	if !ok {
		return "", false
	}
	delete(r.participants, clientID)
	r.lastActivityAt = time.Now()
	return p.UserID, true
}

// HasUser reports whether the user holds at least one client session.
func (r *Room) HasUser(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

// ParticipantCount returns the number of connected client sessions.
func (r *Room) ParticipantCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.participants)
}

// SnapshotCopy returns an isolated copy of the current snapshot. Entries
// are replaced wholesale on every accepted update, never mutated in place,
// so copying the map is enough to keep the caller clear of future writes.
func (r *Room) SnapshotCopy() domain.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotCopyLocked()
}

func (r *Room) snapshotCopyLocked() domain.Snapshot {
	out := make(domain.Snapshot, len(r.snapshot))
	for field, entry := range r.snapshot {
		out[field] = entry
	}
	return out
}

// ApplyChange assigns the next sequence number, mutates the snapshot and
// returns the immutable update record. A delete with a nil new value
// removes the field from the snapshot; the update still records it.
func (r *Room) ApplyChange(userID string, changeType domain.ChangeType, fieldName string, oldValue, newValue any) domain.Update {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastSeq++
	now := time.Now()

	if changeType == domain.ChangeTypeDelete && newValue == nil {
		delete(r.snapshot, fieldName)
	} else {
		r.snapshot[fieldName] = domain.SnapshotEntry{
			Value:        newValue,
			LastWriterID: userID,
			Sequence:     r.lastSeq,
		}
	}
	r.lastActivityAt = now

	return domain.Update{
		ID:         uuid.NewString(),
		RoomID:     r.ID,
		UserID:     userID,
		CompanyID:  r.CompanyID,
		ChangeType: changeType,
		FieldName:  fieldName,
		OldValue:   oldValue,
		NewValue:   newValue,
		Sequence:   r.lastSeq,
		Timestamp:  now,
	}
}

// Descriptor returns the read-only view of the room.
func (r *Room) Descriptor() domain.RoomDescriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	participants := make([]domain.Participant, 0, len(r.participants))
	for _, p := range r.participants {
		participants = append(participants, p)
	}
	return domain.RoomDescriptor{
		ID:             r.ID,
		EntityType:     r.EntityType,
		EntityID:       r.EntityID,
		CompanyID:      r.CompanyID,
		Participants:   participants,
		CreatedAt:      r.createdAt,
		LastActivityAt: r.lastActivityAt,
	}
}

// Summary returns the compact listing form of the room.
func (r *Room) Summary() domain.RoomSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return domain.RoomSummary{
		ID:               r.ID,
		EntityType:       r.EntityType,
		EntityID:         r.EntityID,
		CompanyID:        r.CompanyID,
		ParticipantCount: len(r.participants),
		LastActivityAt:   r.lastActivityAt,
	}
}

// IdleSince reports whether the room is empty and has seen no activity
// since the given cutoff, making it eligible for eviction.
func (r *Room) IdleSince(cutoff time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.participants) == 0 && r.lastActivityAt.Before(cutoff)
}
