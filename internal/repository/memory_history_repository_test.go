package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/spec-kit/collab-service/internal/domain"
)

func appendEntries(t *testing.T, repo CollabHistoryRepository, companyID string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		entry := &domain.HistoryEntry{
			ID:         fmt.Sprintf("%s-%d", companyID, i),
			CompanyID:  companyID,
			EntityType: "order",
			EntityID:   "42",
			RoomID:     "order:42",
			UserID:     "u1",
			ChangeType: domain.ChangeTypeUpdate,
			FieldName:  "status",
			NewValue:   i,
			Sequence:   int64(i + 1),
			CreatedAt:  time.Now(),
		}
		if err := repo.Append(context.Background(), entry); err != nil {
			t.Fatal(err)
		}
	}
}

func TestMemoryHistoryNewestFirstWithLimit(t *testing.T) {
	repo := NewMemoryHistoryRepository()
	appendEntries(t, repo, "company-a", 5)

	entries, err := repo.ListByEntity(context.Background(), "company-a", "order", "42", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i, want := range []int64{5, 4, 3} {
		if entries[i].Sequence != want {
			t.Errorf("position %d: expected sequence %d, got %d", i, want, entries[i].Sequence)
		}
	}
}

func TestMemoryHistoryCompanyScoped(t *testing.T) {
	repo := NewMemoryHistoryRepository()
	appendEntries(t, repo, "company-a", 2)
	appendEntries(t, repo, "company-b", 1)

	entries, err := repo.ListByEntity(context.Background(), "company-b", "order", "42", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only company-b entries, got %d", len(entries))
	}

	none, err := repo.ListByEntity(context.Background(), "company-c", "order", "42", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Error("unknown company should see no history")
	}
}
