package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sijan324/nepshop/internal/entity"
	"github.com/sijan324/nepshop/internal/repository"
)

type outboxStore struct {
	db *sql.DB
}

// NewOutboxStore creates an OutboxStore over the cart_outbox table.
func NewOutboxStore(db *sql.DB) repository.OutboxStore {
	return &outboxStore{db: db}
}

func (s *outboxStore) PendingEvents(ctx context.Context, limit int) ([]entity.OutboxRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, cart_id, event_type, payload, created_at FROM cart_outbox WHERE published_at IS NULL ORDER BY created_at, id LIMIT $1",
		limit,
	)
	if err != nil {
		return nil, wrapErr("load pending outbox events", err)
	}
	defer rows.Close()

	var records []entity.OutboxRecord
	for rows.Next() {
		var record entity.OutboxRecord
		if err := rows.Scan(&record.ID, &record.CartID, &record.EventType, &record.Payload, &record.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outbox record: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterate outbox rows", err)
	}

	return records, nil
}

func (s *outboxStore) MarkPublished(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr("begin transaction", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, "UPDATE cart_outbox SET published_at = $2 WHERE id = $1 AND published_at IS NULL")
	if err != nil {
		return wrapErr("prepare outbox update", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id, at); err != nil {
			return wrapErr("mark outbox event "+id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return wrapErr("commit transaction", err)
	}

	return nil
}
