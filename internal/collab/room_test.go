package collab

import (
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/spec-kit/collab-service/internal/domain"
)

func TestRoomLastWriteWins(t *testing.T) {
	room := newRoom("order", "42", "company-a", time.Now())

	room.ApplyChange("u1", domain.ChangeTypeUpdate, "status", nil, "X")
	update := room.ApplyChange("u2", domain.ChangeTypeUpdate, "status", "X", "Y")

	if update.Sequence != 2 {
		t.Fatalf("expected sequence 2, got %d", update.Sequence)
	}
	snapshot := room.SnapshotCopy()
	entry, ok := snapshot["status"]
	if !ok {
		t.Fatal("status missing from snapshot")
	}
	if entry.Value != "Y" {
		t.Errorf("expected last write Y, got %v", entry.Value)
	}
	if entry.LastWriterID != "u2" {
		t.Errorf("expected last writer u2, got %s", entry.LastWriterID)
	}
	if entry.Sequence != 2 {
		t.Errorf("expected entry sequence 2, got %d", entry.Sequence)
	}
}

func TestRoomSequenceStrictlyIncreasing(t *testing.T) {
	room := newRoom("order", "42", "company-a", time.Now())

	const writers = 100
	sequences := make([]int64, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			update := room.ApplyChange("u1", domain.ChangeTypeUpdate, "status", nil, i)
			sequences[i] = update.Sequence
		}(i)
	}
	wg.Wait()

	sort.Slice(sequences, func(a, b int) bool { return sequences[a] < sequences[b] })
	for i, seq := range sequences {
		if seq != int64(i+1) {
			t.Fatalf("expected dense sequence %d, got %d (gaps or repeats)", i+1, seq)
		}
	}
}

func TestRoomDeleteRemovesField(t *testing.T) {
	room := newRoom("invoice", "7", "company-a", time.Now())

	room.ApplyChange("u1", domain.ChangeTypeCreate, "discount", nil, 10)
	update := room.ApplyChange("u1", domain.ChangeTypeDelete, "discount", 10, nil)

	if _, ok := room.SnapshotCopy()["discount"]; ok {
		t.Error("deleted field still present in snapshot")
	}
	if update.FieldName != "discount" || update.OldValue != 10 {
		t.Error("delete update should still record the removed field")
	}
}

func TestRoomSnapshotCopyIsolated(t *testing.T) {
	room := newRoom("order", "42", "company-a", time.Now())
	room.ApplyChange("u1", domain.ChangeTypeCreate, "status", nil, "draft")

	snapshot := room.SnapshotCopy()
	room.ApplyChange("u1", domain.ChangeTypeUpdate, "status", "draft", "confirmed")

	if snapshot["status"].Value != "draft" {
		t.Error("snapshot copy changed after later update")
	}
}

func TestRoomRemoveUserDropsAllClients(t *testing.T) {
	room := newRoom("order", "42", "company-a", time.Now())
	room.AddParticipant(domain.Participant{UserID: "u1", ClientID: "c1"})
	room.AddParticipant(domain.Participant{UserID: "u1", ClientID: "c2"})
	room.AddParticipant(domain.Participant{UserID: "u2", ClientID: "c3"})

	removed := room.RemoveUser("u1")
	if len(removed) != 2 {
		t.Fatalf("expected 2 removed clients, got %d", len(removed))
	}
	if room.ParticipantCount() != 1 {
		t.Errorf("expected 1 participant left, got %d", room.ParticipantCount())
	}
	if len(room.RemoveUser("u1")) != 0 {
		t.Error("second remove should be a no-op")
	}
}

func TestSplitRoomID(t *testing.T) {
	entityType, entityID, ok := SplitRoomID("order:42")
	if !ok || entityType != "order" || entityID != "42" {
		t.Fatalf("unexpected parse: %s %s %v", entityType, entityID, ok)
	}
	if _, _, ok := SplitRoomID("plain"); ok {
		t.Error("expected parse failure without separator")
	}
}
