package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/collab-service/internal/collab"
	"github.com/spec-kit/collab-service/internal/config"
	"github.com/spec-kit/collab-service/internal/domain"
	"github.com/spec-kit/collab-service/internal/events"
	"github.com/spec-kit/collab-service/internal/observability"
	"github.com/spec-kit/collab-service/internal/repository"
	apperrors "github.com/spec-kit/collab-service/pkg/util/errorutil"
)

func testConfig() config.CollabConfig {
	return config.CollabConfig{
		IdleGraceSeconds:          300,
		OutboundQueueSize:         8,
		HistoryWriteTimeoutMillis: 1000,
		HistoryDefaultLimit:       50,
		HistoryMaxLimit:           500,
	}
}

func newTestEngine(history repository.CollabHistoryRepository) *CollaborationService {
	logger := zap.NewNop()
	fanout := collab.NewBroadcaster(8, logger)
	registry := collab.NewRegistry(fanout, 5*time.Minute, logger)
	return NewCollaborationService(testConfig(), CollaborationDependencies{
		Registry:    registry,
		Broadcaster: fanout,
		HistoryRepo: history,
		Dispatcher:  events.NewInMemoryDispatcher(),
		Metrics:     observability.NewMetrics(),
		Logger:      logger,
	})
}

func join(t *testing.T, engine *CollaborationService, roomID, userID, companyID string) JoinResult {
	t.Helper()
	result, err := engine.JoinRoom(context.Background(), JoinInput{
		RoomID:    roomID,
		UserID:    userID,
		UserName:  userID,
		CompanyID: companyID,
	})
	if err != nil {
		t.Fatal(err)
	}
	return result
}

func sendUpdate(t *testing.T, engine *CollaborationService, roomID, userID, companyID, field string, oldValue, newValue any) UpdateResult {
	t.Helper()
	result, err := engine.ProcessUpdate(context.Background(), UpdateInput{
		RoomID:     roomID,
		UserID:     userID,
		CompanyID:  companyID,
		ChangeType: domain.ChangeTypeUpdate,
		FieldName:  field,
		OldValue:   oldValue,
		NewValue:   newValue,
	})
	if err != nil {
		t.Fatal(err)
	}
	return result
}

// Full walkthrough: first joiner sees an empty snapshot, a late joiner of
// the same company sees prior updates, and a caller from another company
// is rejected.
func TestCollaborationScenario(t *testing.T) {
	engine := newTestEngine(repository.NewMemoryHistoryRepository())
	ctx := context.Background()

	if _, err := engine.CreateRoom(ctx, "order", "42", "company-a"); err != nil {
		t.Fatal(err)
	}

	u1 := join(t, engine, "order:42", "u1", "company-a")
	if len(u1.Snapshot) != 0 {
		t.Fatalf("expected empty snapshot, got %d entries", len(u1.Snapshot))
	}

	result := sendUpdate(t, engine, "order:42", "u1", "company-a", "status", nil, "confirmed")
	if result.Update.Sequence != 1 {
		t.Errorf("first update should get sequence 1, got %d", result.Update.Sequence)
	}
	if result.Degraded {
		t.Error("healthy history store should not degrade the update")
	}

	u2 := join(t, engine, "order:42", "u2", "company-a")
	if u2.Snapshot["status"].Value != "confirmed" {
		t.Errorf("late joiner should see status=confirmed, got %v", u2.Snapshot["status"].Value)
	}

	_, err := engine.JoinRoom(ctx, JoinInput{RoomID: "order:42", UserID: "u3", CompanyID: "company-b"})
	if err == nil || apperrors.ToDomainError(err).Code != "FORBIDDEN" {
		t.Errorf("cross-tenant join must be forbidden, got %v", err)
	}
}

func TestProcessUpdateLastWriteWinsAndHistoryOrder(t *testing.T) {
	engine := newTestEngine(repository.NewMemoryHistoryRepository())
	ctx := context.Background()
	join(t, engine, "order:42", "u1", "company-a")

	sendUpdate(t, engine, "order:42", "u1", "company-a", "status", nil, "X")
	sendUpdate(t, engine, "order:42", "u2", "company-a", "status", "X", "Y")

	u3 := join(t, engine, "order:42", "u3", "company-a")
	if u3.Snapshot["status"].Value != "Y" {
		t.Errorf("expected final value Y, got %v", u3.Snapshot["status"].Value)
	}

	entries, err := engine.History(ctx, "company-a", "order", "42", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(entries))
	}
	if entries[0].NewValue != "Y" || entries[1].NewValue != "X" {
		t.Error("history must be newest first")
	}

	// Stable: repeated reads with no new updates return identical results.
	again, err := engine.History(ctx, "company-a", "order", "42", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(again) != len(entries) || again[0].ID != entries[0].ID {
		t.Error("repeated history reads should be stable")
	}
}

func TestProcessUpdateFailures(t *testing.T) {
	engine := newTestEngine(repository.NewMemoryHistoryRepository())
	ctx := context.Background()
	join(t, engine, "order:42", "u1", "company-a")

	_, err := engine.ProcessUpdate(ctx, UpdateInput{
		RoomID: "missing:1", UserID: "u1", CompanyID: "company-a",
		ChangeType: domain.ChangeTypeUpdate, FieldName: "status", NewValue: "x",
	})
	if apperrors.ToDomainError(err).Code != "NOT_FOUND" {
		t.Errorf("expected NOT_FOUND for absent room, got %v", err)
	}

	_, err = engine.ProcessUpdate(ctx, UpdateInput{
		RoomID: "order:42", UserID: "u1", CompanyID: "company-b",
		ChangeType: domain.ChangeTypeUpdate, FieldName: "status", NewValue: "x",
	})
	if apperrors.ToDomainError(err).Code != "FORBIDDEN" {
		t.Errorf("expected FORBIDDEN for tenant mismatch, got %v", err)
	}

	_, err = engine.ProcessUpdate(ctx, UpdateInput{
		RoomID: "order:42", UserID: "u1", CompanyID: "company-a",
		ChangeType: "merge", FieldName: "status", NewValue: "x",
	})
	if apperrors.ToDomainError(err).Code != "VALIDATION_FAILED" {
		t.Errorf("expected VALIDATION_FAILED for unknown change type, got %v", err)
	}

	_, err = engine.ProcessUpdate(ctx, UpdateInput{
		RoomID: "order:42", UserID: "u1", CompanyID: "company-a",
		ChangeType: domain.ChangeTypeUpdate, FieldName: "", NewValue: "x",
	})
	if apperrors.ToDomainError(err).Code != "VALIDATION_FAILED" {
		t.Errorf("expected VALIDATION_FAILED for empty field, got %v", err)
	}
}

type failingHistory struct{}

func (failingHistory) Append(ctx context.Context, entry *domain.HistoryEntry) error {
	return errors.New("disk on fire")
}

func (failingHistory) ListByEntity(ctx context.Context, companyID, entityType, entityID string, limit int) ([]domain.HistoryEntry, error) {
	return nil, errors.New("disk on fire")
}

// A failed durable write degrades the result but never rolls back the
// in-memory state; live collaboration keeps its source of truth.
func TestHistoryFailureDegradesWithoutRollback(t *testing.T) {
	engine := newTestEngine(failingHistory{})
	join(t, engine, "order:42", "u1", "company-a")

	result := sendUpdate(t, engine, "order:42", "u1", "company-a", "status", nil, "confirmed")
	if !result.Degraded {
		t.Error("expected degraded result when the history write fails")
	}
	if result.Update.Sequence != 1 {
		t.Errorf("update must still be sequenced, got %d", result.Update.Sequence)
	}

	u2 := join(t, engine, "order:42", "u2", "company-a")
	if u2.Snapshot["status"].Value != "confirmed" {
		t.Error("snapshot mutation must survive a degraded history write")
	}

	stats := engine.GetStatistics()
	if stats.DegradedHistoryWrites != 1 {
		t.Errorf("expected 1 degraded write in statistics, got %d", stats.DegradedHistoryWrites)
	}
}

// A client whose queue overflowed recovers full state from a fresh join:
// missed broadcasts are self-healing by design.
func TestMissedBroadcastRecoveryViaRejoin(t *testing.T) {
	logger := zap.NewNop()
	fanout := collab.NewBroadcaster(1, logger)
	registry := collab.NewRegistry(fanout, 5*time.Minute, logger)
	engine := NewCollaborationService(testConfig(), CollaborationDependencies{
		Registry:    registry,
		Broadcaster: fanout,
		HistoryRepo: repository.NewMemoryHistoryRepository(),
		Dispatcher:  events.NewInMemoryDispatcher(),
		Metrics:     observability.NewMetrics(),
		Logger:      logger,
	})

	first := join(t, engine, "order:42", "u1", "company-a")
	for i := 0; i < 5; i++ {
		sendUpdate(t, engine, "order:42", "u1", "company-a", "status", nil, i)
	}

	// Queue of size 1 lost most broadcasts; only the newest survives.
	queue, ok := engine.AttachClient("order:42", first.ClientID)
	if !ok {
		t.Fatal("expected attached queue")
	}
	if update := <-queue; update.NewValue != 4 {
		t.Errorf("expected only the newest update retained, got %v", update.NewValue)
	}

	engine.LeaveRoom(context.Background(), "order:42", "u1", "company-a")
	rejoined := join(t, engine, "order:42", "u1", "company-a")
	if rejoined.Snapshot["status"].Value != 4 {
		t.Errorf("rejoin snapshot must carry authoritative state, got %v", rejoined.Snapshot["status"].Value)
	}
}

func TestGetRoomReflectsPresence(t *testing.T) {
	engine := newTestEngine(repository.NewMemoryHistoryRepository())
	ctx := context.Background()
	join(t, engine, "order:42", "u1", "company-a")

	room, err := engine.GetRoom("order:42", "company-a")
	if err != nil {
		t.Fatal(err)
	}
	if len(room.Participants) != 1 || room.Participants[0].UserID != "u1" {
		t.Fatalf("expected u1 present after join, got %+v", room.Participants)
	}

	engine.LeaveRoom(ctx, "order:42", "u1", "company-a")
	room, err = engine.GetRoom("order:42", "company-a")
	if err != nil {
		t.Fatal(err)
	}
	if len(room.Participants) != 0 {
		t.Error("expected no participants after leave")
	}

	if _, err := engine.GetRoom("order:42", "company-b"); apperrors.ToDomainError(err).Code != "FORBIDDEN" {
		t.Error("cross-tenant room read must be forbidden")
	}
	if _, err := engine.GetRoom("missing:1", "company-a"); apperrors.ToDomainError(err).Code != "NOT_FOUND" {
		t.Error("absent room must be NOT_FOUND")
	}
}

func TestHistoryValidation(t *testing.T) {
	engine := newTestEngine(repository.NewMemoryHistoryRepository())
	ctx := context.Background()

	if _, err := engine.History(ctx, "company-a", "order", "42", 0); apperrors.ToDomainError(err).Code != "VALIDATION_FAILED" {
		t.Error("limit 0 must be rejected")
	}
	if _, err := engine.History(ctx, "company-a", "order", "42", -5); apperrors.ToDomainError(err).Code != "VALIDATION_FAILED" {
		t.Error("negative limit must be rejected")
	}
	if _, err := engine.History(ctx, "company-a", "", "42", 5); apperrors.ToDomainError(err).Code != "VALIDATION_FAILED" {
		t.Error("empty entity type must be rejected")
	}
}

func TestHistoryLimitAndTenantScope(t *testing.T) {
	engine := newTestEngine(repository.NewMemoryHistoryRepository())
	ctx := context.Background()
	join(t, engine, "order:42", "u1", "company-a")

	for i := 0; i < 5; i++ {
		sendUpdate(t, engine, "order:42", "u1", "company-a", "status", nil, i)
	}

	entries, err := engine.History(ctx, "company-a", "order", "42", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected limit to cap results at 3, got %d", len(entries))
	}
	if entries[0].NewValue != 4 {
		t.Errorf("expected newest entry first, got %v", entries[0].NewValue)
	}

	other, err := engine.History(ctx, "company-b", "order", "42", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(other) != 0 {
		t.Error("history must be company-scoped")
	}
}

func TestStatistics(t *testing.T) {
	engine := newTestEngine(repository.NewMemoryHistoryRepository())
	join(t, engine, "order:42", "u1", "company-a")
	join(t, engine, "order:42", "u2", "company-a")
	join(t, engine, "invoice:7", "u1", "company-a")
	sendUpdate(t, engine, "order:42", "u1", "company-a", "status", nil, "x")

	stats := engine.GetStatistics()
	if stats.ActiveRooms != 2 {
		t.Errorf("expected 2 active rooms, got %d", stats.ActiveRooms)
	}
	if stats.TotalParticipants != 3 {
		t.Errorf("expected 3 participants, got %d", stats.TotalParticipants)
	}
	if stats.AverageParticipantsPerRoom != 1.5 {
		t.Errorf("expected average 1.5, got %f", stats.AverageParticipantsPerRoom)
	}
	if stats.UpdatesProcessed != 1 {
		t.Errorf("expected 1 processed update, got %d", stats.UpdatesProcessed)
	}
	if stats.BroadcastsDelivered != 2 {
		t.Errorf("expected 2 deliveries for the order room, got %d", stats.BroadcastsDelivered)
	}
	if stats.UpdatesPerSecond <= 0 {
		t.Error("expected a positive update rate inside the window")
	}
}
