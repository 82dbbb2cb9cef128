package repository

import (
	"context"
	"sync"

	"github.com/spec-kit/collab-service/internal/domain"
)

// memoryHistoryRepository keeps history entries in process memory. Used
// when no database is configured and throughout the test suite.
type memoryHistoryRepository struct {
	mu      sync.RWMutex
	entries []domain.HistoryEntry
}

// NewMemoryHistoryRepository builds the in-memory repository.
func NewMemoryHistoryRepository() CollabHistoryRepository {
	return &memoryHistoryRepository{}
}

func (r *memoryHistoryRepository) Append(ctx context.Context, entry *domain.HistoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *memoryHistoryRepository) ListByEntity(ctx context.Context, companyID, entityType, entityID string, limit int) ([]domain.HistoryEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.HistoryEntry, 0, limit)
	for i := len(r.entries) - 1; i >= 0 && len(result) < limit; i-- {
		entry := r.entries[i]
		if entry.CompanyID != companyID || entry.EntityType != entityType || entry.EntityID != entityID {
			continue
		}
		result = append(result, entry)
	}
	return result, nil
}
