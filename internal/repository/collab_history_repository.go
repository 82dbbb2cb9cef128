package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/collab-service/internal/domain"
)

// CollabHistoryRepository is the durable, append-only log of accepted
// updates, keyed by business entity rather than by room instance.
type CollabHistoryRepository interface {
	Append(ctx context.Context, entry *domain.HistoryEntry) error
	ListByEntity(ctx context.Context, companyID, entityType, entityID string, limit int) ([]domain.HistoryEntry, error)
}

type collabHistoryRepository struct {
	pool *pgxpool.Pool
}

// NewCollabHistoryRepository builds the postgres-backed repository.
func NewCollabHistoryRepository(pool *pgxpool.Pool) CollabHistoryRepository {
	return &collabHistoryRepository{pool: pool}
}

func (r *collabHistoryRepository) Append(ctx context.Context, entry *domain.HistoryEntry) error {
	oldValue, err := json.Marshal(entry.OldValue)
	if err != nil {
		return fmt.Errorf("marshal old value: %w", err)
	}
	newValue, err := json.Marshal(entry.NewValue)
	if err != nil {
		return fmt.Errorf("marshal new value: %w", err)
	}

	const query = `
        INSERT INTO collab_history
            (id, company_id, entity_type, entity_id, room_id, user_id, change_type, field_name, old_value, new_value, sequence, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`
	_, err = r.pool.Exec(ctx, query,
		entry.ID,
		entry.CompanyID,
		entry.EntityType,
		entry.EntityID,
		entry.RoomID,
		entry.UserID,
		entry.ChangeType,
		entry.FieldName,
		oldValue,
		newValue,
		entry.Sequence,
		entry.CreatedAt,
	)
	return err
}

func (r *collabHistoryRepository) ListByEntity(ctx context.Context, companyID, entityType, entityID string, limit int) ([]domain.HistoryEntry, error) {
	const query = `
        SELECT id, company_id, entity_type, entity_id, room_id, user_id, change_type, field_name, old_value, new_value, sequence, created_at
        FROM collab_history
        WHERE company_id=$1 AND entity_type=$2 AND entity_id=$3
        ORDER BY created_at DESC, sequence DESC
        LIMIT $4`
	rows, err := r.pool.Query(ctx, query, companyID, entityType, entityID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.HistoryEntry
	for rows.Next() {
		var entry domain.HistoryEntry
		var oldValue, newValue []byte
		if err := rows.Scan(
			&entry.ID,
			&entry.CompanyID,
			&entry.EntityType,
			&entry.EntityID,
			&entry.RoomID,
			&entry.UserID,
			&entry.ChangeType,
			&entry.FieldName,
			&oldValue,
			&newValue,
			&entry.Sequence,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		if len(oldValue) > 0 {
			if err := json.Unmarshal(oldValue, &entry.OldValue); err != nil {
				return nil, err
			}
		}
		if len(newValue) > 0 {
			if err := json.Unmarshal(newValue, &entry.NewValue); err != nil {
				return nil, err
			}
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}
