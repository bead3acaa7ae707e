package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/josh-kwaku/pointstore/internal/domain"
)

const settlementColumns = `id, account_id, status, total_value, created_at, updated_at, cancelled_at`

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type SettlementRepository struct {
	db *sql.DB
}

func NewSettlementRepository(db *sql.DB) *SettlementRepository {
	return &SettlementRepository{db: db}
}

// Create records the settlement and its lines in tx.
func (r *SettlementRepository) Create(ctx context.Context, tx *sql.Tx, s *domain.Settlement) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO settlements (id, account_id, status, total_value, created_at, updated_at, cancelled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.ID, s.AccountID, s.Status, s.TotalValue, s.CreatedAt, s.UpdatedAt, s.CancelledAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}

	if len(s.Lines) == 0 {
		return nil
	}

	ins := psql.Insert("settlement_lines").
		Columns("settlement_id", "position", "item_id", "quantity", "unit_price")
	for _, l := range s.Lines {
		ins = ins.Values(s.ID, l.Position, l.ItemID, l.Quantity, l.UnitPrice)
	}
	query, args, err := ins.ToSql()
	if err != nil {
		return fmt.Errorf("Create: build lines: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("Create: lines: %w", err)
	}
	return nil
}

// GetForUpdate locks an active settlement owned by accountID. Anything else,
// including a settlement owned by someone else, is ErrSettlementNotFound.
func (r *SettlementRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, id, accountID uuid.UUID) (*domain.Settlement, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+settlementColumns+` FROM settlements
		WHERE id = $1 AND account_id = $2 AND status = $3 FOR UPDATE`,
		id, accountID, domain.SettlementStatusActive,
	)
	s, err := scanSettlement(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrSettlementNotFound)
		}
		return nil, fmt.Errorf("GetForUpdate: %w", err)
	}

	if err := r.attachLines(ctx, tx, []*domain.Settlement{s}); err != nil {
		return nil, fmt.Errorf("GetForUpdate: %w", err)
	}
	return s, nil
}

func (r *SettlementRepository) GetForAccount(ctx context.Context, id, accountID uuid.UUID) (*domain.Settlement, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+settlementColumns+` FROM settlements WHERE id = $1 AND account_id = $2`,
		id, accountID,
	)
	s, err := scanSettlement(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForAccount: %w", domain.ErrSettlementNotFound)
		}
		return nil, fmt.Errorf("GetForAccount: %w", err)
	}

	if err := r.attachLines(ctx, r.db, []*domain.Settlement{s}); err != nil {
		return nil, fmt.Errorf("GetForAccount: %w", err)
	}
	return s, nil
}

// ListForAccount returns the account's settlements newest first, with lines,
// plus the total count.
func (r *SettlementRepository) ListForAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.Settlement, int, error) {
	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM settlements WHERE account_id = $1`, accountID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("ListForAccount: count: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+settlementColumns+` FROM settlements
		WHERE account_id = $1 ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`,
		accountID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("ListForAccount: %w", err)
	}
	defer rows.Close()

	var ptrs []*domain.Settlement
	for rows.Next() {
		s, err := scanSettlement(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("ListForAccount: scan: %w", err)
		}
		ptrs = append(ptrs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("ListForAccount: rows: %w", err)
	}

	if err := r.attachLines(ctx, r.db, ptrs); err != nil {
		return nil, 0, fmt.Errorf("ListForAccount: %w", err)
	}

	settlements := make([]domain.Settlement, 0, len(ptrs))
	for _, s := range ptrs {
		settlements = append(settlements, *s)
	}
	return settlements, total, nil
}

// MarkCancelled flips an active settlement to cancelled. A settlement that is
// no longer active yields ErrSettlementNotFound.
func (r *SettlementRepository) MarkCancelled(ctx context.Context, tx *sql.Tx, id uuid.UUID, at time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE settlements SET status = $1, cancelled_at = $2, updated_at = $2
		WHERE id = $3 AND status = $4`,
		domain.SettlementStatusCancelled, at, id, domain.SettlementStatusActive,
	)
	if err != nil {
		return fmt.Errorf("MarkCancelled: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("MarkCancelled: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("MarkCancelled: %w", domain.ErrSettlementNotFound)
	}
	return nil
}

func (r *SettlementRepository) attachLines(ctx context.Context, q querier, settlements []*domain.Settlement) error {
	if len(settlements) == 0 {
		return nil
	}

	byID := make(map[uuid.UUID]*domain.Settlement, len(settlements))
	ids := make([]uuid.UUID, 0, len(settlements))
	for _, s := range settlements {
		byID[s.ID] = s
		ids = append(ids, s.ID)
	}

	rows, err := q.QueryContext(ctx,
		`SELECT settlement_id, position, item_id, quantity, unit_price
		FROM settlement_lines WHERE settlement_id = ANY($1)
		ORDER BY settlement_id, position`,
		pq.Array(uuidStrings(ids)),
	)
	if err != nil {
		return fmt.Errorf("attachLines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var settlementID uuid.UUID
		var l domain.SettlementLine
		if err := rows.Scan(&settlementID, &l.Position, &l.ItemID, &l.Quantity, &l.UnitPrice); err != nil {
			return fmt.Errorf("attachLines: scan: %w", err)
		}
		if s, ok := byID[settlementID]; ok {
			s.Lines = append(s.Lines, l)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("attachLines: rows: %w", err)
	}
	return nil
}

func scanSettlement(s scanner) (*domain.Settlement, error) {
	var st domain.Settlement
	err := s.Scan(
		&st.ID, &st.AccountID, &st.Status, &st.TotalValue,
		&st.CreatedAt, &st.UpdatedAt, &st.CancelledAt,
	)
	if err != nil {
		return nil, err
	}
	return &st, nil
}
