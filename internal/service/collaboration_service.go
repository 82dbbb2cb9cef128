package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/collab-service/internal/collab"
	"github.com/spec-kit/collab-service/internal/config"
	"github.com/spec-kit/collab-service/internal/domain"
	"github.com/spec-kit/collab-service/internal/events"
	"github.com/spec-kit/collab-service/internal/observability"
	"github.com/spec-kit/collab-service/internal/repository"
	apperrors "github.com/spec-kit/collab-service/pkg/util/errorutil"
)

// CollaborationService coordinates the collaboration engine: room
// lifecycle, presence, update ordering, broadcast fan-out and the durable
// audit history.
type CollaborationService struct {
	registry   *collab.Registry
	fanout     *collab.Broadcaster
	history    repository.CollabHistoryRepository
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	cfg        config.CollabConfig

	rateMu      sync.Mutex
	updateTimes []time.Time
}

// CollaborationDependencies bundles collaborators for the service.
type CollaborationDependencies struct {
	Registry    *collab.Registry
	Broadcaster *collab.Broadcaster
	HistoryRepo repository.CollabHistoryRepository
	Dispatcher  events.Dispatcher
	Metrics     *observability.Metrics
	Logger      *zap.Logger
}

// JoinInput identifies the joining participant.
type JoinInput struct {
	RoomID    string
	UserID    string
	UserName  string
	UserEmail string
	CompanyID string
	ClientID  string
}

// JoinResult carries the room view handed to a new participant.
type JoinResult struct {
	Room     domain.RoomDescriptor
	Snapshot domain.Snapshot
	ClientID string
}

// UpdateInput is the decoded processUpdate command.
type UpdateInput struct {
	RoomID     string
	UserID     string
	CompanyID  string
	ChangeType domain.ChangeType
	FieldName  string
	OldValue   any
	NewValue   any
}

// UpdateResult is the accepted update plus the durability outcome.
// Degraded means the history write failed or timed out while the
// in-memory state and broadcast succeeded.
type UpdateResult struct {
	Update   domain.Update
	Degraded bool
}

// Statistics aggregates live engine counts.
type Statistics struct {
	ActiveRooms                int     `json:"active_rooms"`
	TotalParticipants          int     `json:"total_participants"`
	AverageParticipantsPerRoom float64 `json:"average_participants_per_room"`
	UpdatesPerSecond           float64 `json:"updates_per_second"`
	UpdatesProcessed           int64   `json:"updates_processed"`
	BroadcastsDelivered        int64   `json:"broadcasts_delivered"`
	BroadcastsDropped          int64   `json:"broadcasts_dropped"`
	DegradedHistoryWrites      int64   `json:"degraded_history_writes"`
}

const updateRateWindow = time.Minute

// NewCollaborationService constructs the service.
func NewCollaborationService(cfg config.CollabConfig, deps CollaborationDependencies) *CollaborationService {
	return &CollaborationService{
		registry:   deps.Registry,
		fanout:     deps.Broadcaster,
		history:    deps.HistoryRepo,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		cfg:        cfg,
	}
}

// CreateRoom returns the room descriptor for the entity, creating the room
// when absent. Idempotent: an existing room is returned unchanged.
func (s *CollaborationService) CreateRoom(ctx context.Context, entityType, entityID, companyID string) (domain.RoomDescriptor, error) {
	room, created, err := s.registry.CreateRoom(entityType, entityID, companyID)
	if err != nil {
		return domain.RoomDescriptor{}, err
	}
	if created {
		s.publish(ctx, events.Event{
			Type:      events.EventRoomCreated,
			RoomID:    room.ID,
			CompanyID: companyID,
			Payload:   events.RoomCreatedPayload{EntityType: entityType, EntityID: entityID},
		})
	}
	return room.Descriptor(), nil
}

// JoinRoom admits a participant, creating the room when absent, and
// returns the descriptor plus an isolated snapshot copy for rendering
// current state without racing future updates.
func (s *CollaborationService) JoinRoom(ctx context.Context, input JoinInput) (JoinResult, error) {
	if input.UserID == "" {
		return JoinResult{}, apperrors.NewValidationError("user_id required", nil)
	}
	clientID := input.ClientID
	if clientID == "" {
		clientID = uuid.NewString()
	}

	participant := domain.Participant{
		UserID:    input.UserID,
		UserName:  input.UserName,
		UserEmail: input.UserEmail,
		ClientID:  clientID,
		JoinedAt:  time.Now(),
	}
	room, snapshot, err := s.registry.Join(input.RoomID, input.CompanyID, participant)
	if err != nil {
		return JoinResult{}, err
	}

	s.publish(ctx, events.Event{
		Type:      events.EventParticipantJoined,
		RoomID:    room.ID,
		CompanyID: input.CompanyID,
		UserID:    input.UserID,
		Payload:   events.ParticipantJoinedPayload{ClientID: clientID, UserName: input.UserName},
	})
	return JoinResult{Room: room.Descriptor(), Snapshot: snapshot, ClientID: clientID}, nil
}

// LeaveRoom removes every client session of the user. Idempotent: leaving
// an absent room or user is a no-op, never an error.
func (s *CollaborationService) LeaveRoom(ctx context.Context, roomID, userID, companyID string) {
	removed := s.registry.LeaveUser(roomID, userID, companyID)
	if len(removed) == 0 {
		return
	}
	s.publish(ctx, events.Event{
		Type:      events.EventParticipantLeft,
		RoomID:    roomID,
		CompanyID: companyID,
		UserID:    userID,
		Payload:   events.ParticipantLeftPayload{ClientIDs: removed},
	})
}

// DetachClient drops a single client session when one push connection
// closes; the user's other sessions stay joined.
func (s *CollaborationService) DetachClient(ctx context.Context, roomID, clientID, companyID string) {
	userID, removed := s.registry.DetachClient(roomID, clientID)
	if !removed {
		return
	}
	s.publish(ctx, events.Event{
		Type:      events.EventParticipantLeft,
		RoomID:    roomID,
		CompanyID: companyID,
		UserID:    userID,
		Payload:   events.ParticipantLeftPayload{ClientIDs: []string{clientID}},
	})
}

// AttachClient hands out the participant's outbound update queue so a push
// transport can stream broadcasts.
func (s *CollaborationService) AttachClient(roomID, clientID string) (<-chan domain.Update, bool) {
	return s.fanout.Attach(roomID, clientID)
}

// ProcessUpdate validates the change, stamps it with the room's next
// sequence number, mutates the snapshot (last-write-wins per field),
// persists the history entry and schedules the broadcast. The durable
// write happens outside the room's critical section; its failure degrades
// the result without rolling back the applied state.
func (s *CollaborationService) ProcessUpdate(ctx context.Context, input UpdateInput) (UpdateResult, error) {
	if !input.ChangeType.Valid() {
		return UpdateResult{}, apperrors.NewValidationError("unknown change_type", map[string]any{"change_type": string(input.ChangeType)})
	}
	if input.FieldName == "" {
		return UpdateResult{}, apperrors.NewValidationError("field_name required", nil)
	}

	room, ok := s.registry.GetRoom(input.RoomID)
	if !ok {
		return UpdateResult{}, apperrors.NewNotFound("room", map[string]any{"room_id": input.RoomID})
	}
	if room.CompanyID != input.CompanyID {
		return UpdateResult{}, apperrors.NewForbidden("room belongs to another company")
	}

	update := room.ApplyChange(input.UserID, input.ChangeType, input.FieldName, input.OldValue, input.NewValue)

	degraded := s.appendHistory(ctx, room, update)

	delivered, dropped := s.fanout.Broadcast(room.ID, update)
	s.metrics.RecordBroadcast(delivered, dropped)
	s.metrics.RecordUpdate()
	s.markUpdate(update.Timestamp)

	s.publish(ctx, events.Event{
		Type:      events.EventFieldUpdated,
		RoomID:    room.ID,
		CompanyID: input.CompanyID,
		UserID:    input.UserID,
		Payload: events.FieldUpdatedPayload{
			FieldName:  update.FieldName,
			ChangeType: update.ChangeType,
			Sequence:   update.Sequence,
			NewValue:   update.NewValue,
		},
	})

	return UpdateResult{Update: update, Degraded: degraded}, nil
}

// GetRoom returns the descriptor of a live room.
func (s *CollaborationService) GetRoom(roomID, companyID string) (domain.RoomDescriptor, error) {
	room, ok := s.registry.GetRoom(roomID)
	if !ok {
		return domain.RoomDescriptor{}, apperrors.NewNotFound("room", map[string]any{"room_id": roomID})
	}
	if room.CompanyID != companyID {
		return domain.RoomDescriptor{}, apperrors.NewForbidden("room belongs to another company")
	}
	return room.Descriptor(), nil
}

// UserRooms lists summaries of the rooms the user currently occupies.
func (s *CollaborationService) UserRooms(userID string) []domain.RoomSummary {
	return s.registry.UserRooms(userID)
}

// History returns up to limit entries for the entity, newest first.
func (s *CollaborationService) History(ctx context.Context, companyID, entityType, entityID string, limit int) ([]domain.HistoryEntry, error) {
	if entityType == "" || entityID == "" {
		return nil, apperrors.NewValidationError("entity_type and entity_id required", nil)
	}
	if limit <= 0 {
		return nil, apperrors.NewValidationError("limit must be positive", map[string]any{"limit": limit})
	}
	if s.cfg.HistoryMaxLimit > 0 && limit > s.cfg.HistoryMaxLimit {
		limit = s.cfg.HistoryMaxLimit
	}
	entries, err := s.history.ListByEntity(ctx, companyID, entityType, entityID, limit)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return entries, nil
}

// GetStatistics derives live counts from registry state; nothing is
// persisted, so the numbers always match current registry contents.
func (s *CollaborationService) GetStatistics() Statistics {
	activeRooms, totalParticipants := s.registry.Stats()
	counters := s.metrics.Engine()

	stats := Statistics{
		ActiveRooms:           activeRooms,
		TotalParticipants:     totalParticipants,
		UpdatesPerSecond:      s.updateRate(),
		UpdatesProcessed:      counters.UpdatesProcessed,
		BroadcastsDelivered:   counters.BroadcastsDelivered,
		BroadcastsDropped:     counters.BroadcastsDropped,
		DegradedHistoryWrites: counters.DegradedWrites,
	}
	if activeRooms > 0 {
		stats.AverageParticipantsPerRoom = float64(totalParticipants) / float64(activeRooms)
	}
	return stats
}

func (s *CollaborationService) appendHistory(ctx context.Context, room *collab.Room, update domain.Update) (degraded bool) {
	entry := domain.HistoryEntry{
		ID:         update.ID,
		CompanyID:  update.CompanyID,
		EntityType: room.EntityType,
		EntityID:   room.EntityID,
		RoomID:     update.RoomID,
		UserID:     update.UserID,
		ChangeType: update.ChangeType,
		FieldName:  update.FieldName,
		OldValue:   update.OldValue,
		NewValue:   update.NewValue,
		Sequence:   update.Sequence,
		CreatedAt:  update.Timestamp,
	}

	writeCtx, cancel := context.WithTimeout(ctx, s.cfg.HistoryWriteTimeout())
	defer cancel()
	if err := s.history.Append(writeCtx, &entry); err != nil {
		s.metrics.RecordDegradedWrite()
		s.logger.Warn("history write degraded",
			zap.String("room_id", room.ID),
			zap.Int64("sequence", update.Sequence),
			zap.Error(err))
		return true
	}
	return false
}

func (s *CollaborationService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	event.ID = uuid.NewString()
	event.Timestamp = time.Now()
	_ = s.dispatcher.Publish(ctx, event)
}

func (s *CollaborationService) markUpdate(at time.Time) {
	cutoff := at.Add(-updateRateWindow)
	s.rateMu.Lock()
	defer s.rateMu.Unlock()
	s.updateTimes = append(s.updateTimes, at)
	trimmed := s.updateTimes[:0]
	for _, t := range s.updateTimes {
		if t.After(cutoff) {
			trimmed = append(trimmed, t)
		}
	}
	s.updateTimes = trimmed
}

func (s *CollaborationService) updateRate() float64 {
	cutoff := time.Now().Add(-updateRateWindow)
	s.rateMu.Lock()
	defer s.rateMu.Unlock()
	n := 0
	for _, t := range s.updateTimes {
		if t.After(cutoff) {
			n++
		}
	}
	return float64(n) / updateRateWindow.Seconds()
}
