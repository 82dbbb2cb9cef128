package collab

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/collab-service/internal/domain"
	apperrors "github.com/spec-kit/collab-service/pkg/util/errorutil"
)

func newTestRegistry(idleGrace time.Duration) *Registry {
	fanout := NewBroadcaster(8, zap.NewNop())
	return NewRegistry(fanout, idleGrace, zap.NewNop())
}

func participant(userID, clientID string) domain.Participant {
	return domain.Participant{UserID: userID, UserName: userID, ClientID: clientID, JoinedAt: time.Now()}
}

func errCode(t *testing.T, err error) string {
	t.Helper()
	if err == nil {
		t.Fatal("expected error")
	}
	return apperrors.ToDomainError(err).Code
}

func TestCreateRoomIdempotent(t *testing.T) {
	reg := newTestRegistry(time.Minute)

	first, created, err := reg.CreateRoom("order", "42", "company-a")
	if err != nil || !created {
		t.Fatalf("expected fresh room, err=%v created=%v", err, created)
	}
	first.ApplyChange("u1", domain.ChangeTypeCreate, "status", nil, "draft")

	second, created, err := reg.CreateRoom("order", "42", "company-a")
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Error("second create should reuse the existing room")
	}
	if second != first {
		t.Error("expected the same room instance")
	}
	if second.SnapshotCopy()["status"].Value != "draft" {
		t.Error("existing snapshot must survive a repeated create")
	}
}

func TestCreateRoomValidation(t *testing.T) {
	reg := newTestRegistry(time.Minute)
	if _, _, err := reg.CreateRoom("", "42", "company-a"); errCode(t, err) != "VALIDATION_FAILED" {
		t.Error("expected validation failure for empty entity type")
	}
	if _, _, err := reg.CreateRoom("order", "", "company-a"); errCode(t, err) != "VALIDATION_FAILED" {
		t.Error("expected validation failure for empty entity id")
	}
}

func TestJoinEnforcesTenantIsolation(t *testing.T) {
	reg := newTestRegistry(time.Minute)
	if _, _, err := reg.Join("order:42", "company-a", participant("u1", "c1")); err != nil {
		t.Fatal(err)
	}

	_, _, err := reg.Join("order:42", "company-b", participant("u3", "c3"))
	if errCode(t, err) != "FORBIDDEN" {
		t.Errorf("expected FORBIDDEN for cross-tenant join, got %s", errCode(t, err))
	}
}

func TestJoinCreatesRoomAndCopiesSnapshot(t *testing.T) {
	reg := newTestRegistry(time.Minute)

	room, snapshot, err := reg.Join("order:42", "company-a", participant("u1", "c1"))
	if err != nil {
		t.Fatal(err)
	}
	if len(snapshot) != 0 {
		t.Errorf("fresh room should have an empty snapshot, got %d entries", len(snapshot))
	}

	room.ApplyChange("u1", domain.ChangeTypeCreate, "status", nil, "confirmed")
	_, snapshot2, err := reg.Join("order:42", "company-a", participant("u2", "c2"))
	if err != nil {
		t.Fatal(err)
	}
	if snapshot2["status"].Value != "confirmed" {
		t.Error("late joiner should see prior updates in the snapshot")
	}
	if len(snapshot) != 0 {
		t.Error("first joiner's snapshot copy must stay isolated")
	}
}

func TestLeaveIsIdempotent(t *testing.T) {
	reg := newTestRegistry(time.Minute)
	reg.Join("order:42", "company-a", participant("u1", "c1"))
	reg.Join("order:42", "company-a", participant("u1", "c2"))

	if removed := reg.LeaveUser("order:42", "u1", "company-a"); len(removed) != 2 {
		t.Fatalf("expected both clients removed, got %d", len(removed))
	}
	if removed := reg.LeaveUser("order:42", "u1", "company-a"); len(removed) != 0 {
		t.Error("second leave should be a no-op")
	}
	if removed := reg.LeaveUser("missing:1", "u1", "company-a"); len(removed) != 0 {
		t.Error("leaving an absent room should be a no-op")
	}

	room, _ := reg.GetRoom("order:42")
	if room.HasUser("u1") {
		t.Error("user should be absent after leave")
	}
}

func TestUserRooms(t *testing.T) {
	reg := newTestRegistry(time.Minute)
	reg.Join("order:42", "company-a", participant("u1", "c1"))
	reg.Join("invoice:7", "company-a", participant("u1", "c2"))
	reg.Join("order:43", "company-a", participant("u2", "c3"))

	summaries := reg.UserRooms("u1")
	if len(summaries) != 2 {
		t.Fatalf("expected 2 rooms for u1, got %d", len(summaries))
	}
}

func TestSweepEvictsIdleEmptyRooms(t *testing.T) {
	reg := newTestRegistry(10 * time.Millisecond)
	reg.Join("order:42", "company-a", participant("u1", "c1"))
	reg.Join("order:43", "company-a", participant("u2", "c2"))
	reg.LeaveUser("order:42", "u1", "company-a")

	time.Sleep(25 * time.Millisecond)

	if evicted := reg.Sweep(); evicted != 1 {
		t.Fatalf("expected 1 eviction, got %d", evicted)
	}
	if _, ok := reg.GetRoom("order:42"); ok {
		t.Error("idle empty room should be gone")
	}
	if _, ok := reg.GetRoom("order:43"); !ok {
		t.Error("occupied room must never be evicted")
	}

	activeRooms, totalParticipants := reg.Stats()
	if activeRooms != 1 || totalParticipants != 1 {
		t.Errorf("unexpected stats after sweep: rooms=%d participants=%d", activeRooms, totalParticipants)
	}
}

func TestDetachClientKeepsOtherSessions(t *testing.T) {
	reg := newTestRegistry(time.Minute)
	reg.Join("order:42", "company-a", participant("u1", "c1"))
	reg.Join("order:42", "company-a", participant("u1", "c2"))

	userID, removed := reg.DetachClient("order:42", "c1")
	if !removed || userID != "u1" {
		t.Fatalf("expected c1 detached for u1, got %s/%v", userID, removed)
	}
	room, _ := reg.GetRoom("order:42")
	if !room.HasUser("u1") {
		t.Error("user should keep the remaining session")
	}
	if _, removed := reg.DetachClient("order:42", "c1"); removed {
		t.Error("detaching twice should be a no-op")
	}
}
