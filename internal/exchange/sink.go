package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PGEntitySink stores imported records in a generic per-entity table.
// The business-facing CRUD screens own their richer schemas elsewhere; the
// pipeline only needs an upsert target keyed by entity type and natural key.
type PGEntitySink struct {
	db DBTX
}

// NewPGEntitySink creates an entity sink backed by the given pool or
// transaction.
func NewPGEntitySink(db DBTX) *PGEntitySink {
	return &PGEntitySink{db: db}
}

// Upsert stores one record. Import rows are processed sequentially, so the
// exists-then-write pair needs no locking to stay deterministic.
func (s *PGEntitySink) Upsert(ctx context.Context, entityType, naturalKey string, fields map[string]string, updateExisting bool) (UpsertOutcome, error) {
	payload, err := json.Marshal(fields)
	if err != nil {
		return OutcomeCreated, fmt.Errorf("encode record: %w", err)
	}

	now := time.Now().UTC()

	// Keyless records are always created.
	if naturalKey == "" {
		_, err := s.db.Exec(ctx, `
			INSERT INTO entity_records (id, entity_type, natural_key, fields, created_at, updated_at)
			VALUES ($1, $2, '', $3, $4, $4)`,
			uuid.New(), entityType, payload, now)
		return OutcomeCreated, err
	}

	var exists bool
	err = s.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM entity_records WHERE entity_type = $1 AND natural_key = $2
		)`, entityType, naturalKey).Scan(&exists)
	if err != nil {
		return OutcomeCreated, err
	}

	if exists {
		if !updateExisting {
			return OutcomeCreated, ErrDuplicateRecord
		}
		_, err := s.db.Exec(ctx, `
			UPDATE entity_records SET fields = $3, updated_at = $4
			WHERE entity_type = $1 AND natural_key = $2`,
			entityType, naturalKey, payload, now)
		return OutcomeUpdated, err
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO entity_records (id, entity_type, natural_key, fields, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)`,
		uuid.New(), entityType, naturalKey, payload, now)
	return OutcomeCreated, err
}

// Query returns records of an entity type whose fields contain every
// key=value pair of the filter, in insertion order.
func (s *PGEntitySink) Query(ctx context.Context, entityType string, filter map[string]string) ([]map[string]string, error) {
	query := `SELECT fields FROM entity_records WHERE entity_type = $1`
	args := []interface{}{entityType}

	if len(filter) > 0 {
		payload, err := json.Marshal(filter)
		if err != nil {
			return nil, fmt.Errorf("encode filter: %w", err)
		}
		query += ` AND fields @> $2::jsonb`
		args = append(args, payload)
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []map[string]string
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		record := make(map[string]string)
		if err := json.Unmarshal(payload, &record); err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}
