package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/pointstore/internal/domain"
)

const settlementEventColumns = `id, settlement_id, event_type, payload, status,
	attempts, last_attempt, created_at`

type SettlementEventRepository struct {
	db *sql.DB
}

func NewSettlementEventRepository(db *sql.DB) *SettlementEventRepository {
	return &SettlementEventRepository{db: db}
}

// Create writes the event in the caller's transaction so it commits or rolls
// back together with the settlement change it describes.
func (r *SettlementEventRepository) Create(ctx context.Context, tx *sql.Tx, event *domain.SettlementEvent) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO settlement_events (
			id, settlement_id, event_type, payload, status, attempts, last_attempt, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		event.ID, event.SettlementID, event.EventType, []byte(event.Payload),
		event.Status, event.Attempts, event.LastAttempt, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

// ClaimPending locks up to limit pending events in tx. Concurrent relays skip
// rows another relay already holds.
func (r *SettlementEventRepository) ClaimPending(ctx context.Context, tx *sql.Tx, limit int) ([]domain.SettlementEvent, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT `+settlementEventColumns+` FROM settlement_events
		WHERE status = $1 ORDER BY created_at LIMIT $2 FOR UPDATE SKIP LOCKED`,
		domain.SettlementEventStatusPending, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ClaimPending: %w", err)
	}
	defer rows.Close()

	var events []domain.SettlementEvent
	for rows.Next() {
		e, err := scanSettlementEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("ClaimPending: scan: %w", err)
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ClaimPending: rows: %w", err)
	}
	return events, nil
}

// RecordAttempt bumps the attempt counter and sets the new status.
func (r *SettlementEventRepository) RecordAttempt(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.SettlementEventStatus) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE settlement_events SET status = $1, attempts = attempts + 1, last_attempt = now()
		WHERE id = $2`,
		status, id,
	)
	if err != nil {
		return fmt.Errorf("RecordAttempt: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("RecordAttempt: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("RecordAttempt: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *SettlementEventRepository) ListBySettlement(ctx context.Context, settlementID uuid.UUID) ([]domain.SettlementEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+settlementEventColumns+` FROM settlement_events
		WHERE settlement_id = $1 ORDER BY created_at, id`,
		settlementID,
	)
	if err != nil {
		return nil, fmt.Errorf("ListBySettlement: %w", err)
	}
	defer rows.Close()

	var events []domain.SettlementEvent
	for rows.Next() {
		e, err := scanSettlementEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("ListBySettlement: scan: %w", err)
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListBySettlement: rows: %w", err)
	}
	return events, nil
}

func scanSettlementEvent(s scanner) (*domain.SettlementEvent, error) {
	var e domain.SettlementEvent
	var payload []byte
	err := s.Scan(
		&e.ID, &e.SettlementID, &e.EventType, &payload,
		&e.Status, &e.Attempts, &e.LastAttempt, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Payload = payload
	return &e, nil
}
