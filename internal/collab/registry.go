package collab

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/collab-service/internal/domain"
	apperrors "github.com/spec-kit/collab-service/pkg/util/errorutil"
)

// Registry owns the mapping from room identity to live room state. It is
// constructed once at process start and injected into handlers; the
// registry lock guards only map mutations and is never held while a
// room's own lock is taken.
type Registry struct {
	mu     sync.RWMutex
	rooms  map[string]*Room
	fanout *Broadcaster
	logger *zap.Logger

	idleGrace time.Duration
}

// NewRegistry builds a registry wired to the given broadcaster.
func NewRegistry(fanout *Broadcaster, idleGrace time.Duration, logger *zap.Logger) *Registry {
	if idleGrace <= 0 {
		idleGrace = 5 * time.Minute
	}
	return &Registry{
		rooms:     make(map[string]*Room),
		fanout:    fanout,
		logger:    logger,
		idleGrace: idleGrace,
	}
}

// CreateRoom returns the room for the given entity, creating it when
// absent. Creation is idempotent: an existing room is returned unchanged,
// its snapshot and participants untouched.
func (reg *Registry) CreateRoom(entityType, entityID, companyID string) (*Room, bool, error) {
	if entityType == "" || entityID == "" {
		return nil, false, apperrors.NewValidationError("entity_type and entity_id required", nil)
	}
	roomID := RoomID(entityType, entityID)

	reg.mu.Lock()
	room, ok := reg.rooms[roomID]
	if !ok {
		room = newRoom(entityType, entityID, companyID, time.Now())
		reg.rooms[roomID] = room
	}
	reg.mu.Unlock()

	if room.CompanyID != companyID {
		return nil, false, apperrors.NewForbidden("room belongs to another company")
	}
	if !ok {
		reg.logger.Info("room created",
			zap.String("room_id", roomID),
			zap.String("company_id", companyID))
	}
	return room, !ok, nil
}

// GetRoom looks up a live room.
func (reg *Registry) GetRoom(roomID string) (*Room, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	room, ok := reg.rooms[roomID]
	return room, ok
}

// Join admits a participant into the room, creating the room when absent
// (the first joiner becomes its origin). The returned snapshot is an
// isolated copy of the room's current state.
func (reg *Registry) Join(roomID, companyID string, p domain.Participant) (*Room, domain.Snapshot, error) {
	entityType, entityID, ok := SplitRoomID(roomID)
	if !ok || entityType == "" || entityID == "" {
		return nil, nil, apperrors.NewValidationError("room id must be entityType:entityId", nil)
	}

	room, _, err := reg.CreateRoom(entityType, entityID, companyID)
	if err != nil {
		return nil, nil, err
	}

	room.AddParticipant(p)
	reg.fanout.Register(roomID, p.ClientID)
	return room, room.SnapshotCopy(), nil
}

// LeaveUser removes every client session the user holds in the room and
// tears down their outbound queues. Leaving an absent room or user is a
// no-op; leave is idempotent by design.
func (reg *Registry) LeaveUser(roomID, userID, companyID string) []string {
	room, ok := reg.GetRoom(roomID)
	if !ok || room.CompanyID != companyID {
		return nil
	}
	removed := room.RemoveUser(userID)
	for _, clientID := range removed {
		reg.fanout.Unregister(roomID, clientID)
	}
	return removed
}

// DetachClient removes a single client session, used when one push
// connection closes while the user may keep others open.
func (reg *Registry) DetachClient(roomID, clientID string) (userID string, removed bool) {
	room, ok := reg.GetRoom(roomID)
	if !ok {
		return "", false
	}
	userID, removed = room.RemoveClient(clientID)
	if removed {
		reg.fanout.Unregister(roomID, clientID)
	}
	return userID, removed
}

// UserRooms lists summaries of every room the user currently occupies.
// Read-only scan, no side effects.
func (reg *Registry) UserRooms(userID string) []domain.RoomSummary {
	reg.mu.RLock()
	rooms := make([]*Room, 0, len(reg.rooms))
	for _, room := range reg.rooms {
		rooms = append(rooms, room)
	}
	reg.mu.RUnlock()

	summaries := make([]domain.RoomSummary, 0)
	for _, room := range rooms {
		if room.HasUser(userID) {
			summaries = append(summaries, room.Summary())
		}
	}
	return summaries
}

// Stats returns live counts derived from registry contents.
func (reg *Registry) Stats() (activeRooms, totalParticipants int) {
	reg.mu.RLock()
	rooms := make([]*Room, 0, len(reg.rooms))
	for _, room := range reg.rooms {
		rooms = append(rooms, room)
	}
	reg.mu.RUnlock()

	for _, room := range rooms {
		totalParticipants += room.ParticipantCount()
	}
	return len(rooms), totalParticipants
}

// Sweep evicts rooms that are empty and idle past the grace period,
// returning the number removed. History entries are untouched; a room can
// be recreated for the same entity at any time.
func (reg *Registry) Sweep() int {
	cutoff := time.Now().Add(-reg.idleGrace)

	reg.mu.RLock()
	candidates := make([]string, 0)
	for roomID, room := range reg.rooms {
		if room.IdleSince(cutoff) {
			candidates = append(candidates, roomID)
		}
	}
	reg.mu.RUnlock()

	evicted := make([]string, 0, len(candidates))
	reg.mu.Lock()
	for _, roomID := range candidates {
		room, ok := reg.rooms[roomID]
		if !ok || !room.IdleSince(cutoff) {
			continue
		}
		delete(reg.rooms, roomID)
		evicted = append(evicted, roomID)
	}
	reg.mu.Unlock()

	for _, roomID := range evicted {
		reg.fanout.DropRoom(roomID)
	}
	if len(evicted) > 0 {
		reg.logger.Info("idle rooms evicted", zap.Int("count", len(evicted)))
	}
	return len(evicted)
}

// StartSweeper runs the eviction sweep on a fixed interval until the
// context is cancelled.
func (reg *Registry) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				reg.Sweep()
			}
		}
	}()
}
