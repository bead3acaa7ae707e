package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/josh-kwaku/pointstore/internal/domain"
)

const itemColumns = `id, title, author, cover_url, tag, available_quantity,
	unit_price, active, version, created_at, updated_at`

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type ItemFilter struct {
	Tag     string
	Query   string
	InStock bool
	Limit   int
	Offset  int
}

type ItemRepository struct {
	db *sql.DB
}

func NewItemRepository(db *sql.DB) *ItemRepository {
	return &ItemRepository{db: db}
}

// GetByID returns the item regardless of its active flag.
func (r *ItemRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Item, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE id = $1`, id,
	)
	it, err := scanItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrItemNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return it, nil
}

// List returns active items matching f and the total number of matches.
func (r *ItemRepository) List(ctx context.Context, f ItemFilter) ([]domain.Item, int, error) {
	where := sq.And{sq.Eq{"active": true}}
	if f.Tag != "" {
		where = append(where, sq.Eq{"tag": f.Tag})
	}
	if f.Query != "" {
		where = append(where, sq.ILike{"title": "%" + f.Query + "%"})
	}
	if f.InStock {
		where = append(where, sq.Gt{"available_quantity": 0})
	}

	countSQL, countArgs, err := psql.Select("COUNT(*)").From("items").Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("List: build count: %w", err)
	}
	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("List: count: %w", err)
	}

	query := psql.Select(itemColumns).From("items").Where(where).OrderBy("title ASC", "id ASC")
	if f.Limit > 0 {
		query = query.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		query = query.Offset(uint64(f.Offset))
	}
	listSQL, args, err := query.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("List: build: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, listSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("List: %w", err)
	}
	defer rows.Close()

	items := []domain.Item{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("List: scan: %w", err)
		}
		items = append(items, *it)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("List: rows: %w", err)
	}
	return items, total, nil
}

func (r *ItemRepository) Create(ctx context.Context, item *domain.Item) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO items (
			id, title, author, cover_url, tag, available_quantity,
			unit_price, active, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		item.ID, item.Title, item.Author, item.CoverURL, item.Tag, item.AvailableQuantity,
		item.UnitPrice, item.Active, item.Version, item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("Create: %w", domain.ErrItemExists)
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

// Update overwrites the mutable catalog fields of an active item, guarded by
// item.Version. On success item.Version is advanced.
func (r *ItemRepository) Update(ctx context.Context, item *domain.Item) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE items SET title = $1, author = $2, cover_url = $3, tag = $4,
			available_quantity = $5, unit_price = $6,
			version = version + 1, updated_at = now()
		WHERE id = $7 AND version = $8 AND active`,
		item.Title, item.Author, item.CoverURL, item.Tag,
		item.AvailableQuantity, item.UnitPrice,
		item.ID, item.Version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("Update: %w", domain.ErrItemExists)
		}
		return fmt.Errorf("Update: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("Update: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("Update: %w", domain.ErrVersionConflict)
	}
	item.Version++
	return nil
}

// Deactivate soft-deletes an item. Settlements already referencing it can no
// longer be reversed.
func (r *ItemRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE items SET active = FALSE, version = version + 1, updated_at = now()
		WHERE id = $1 AND active`, id,
	)
	if err != nil {
		return fmt.Errorf("Deactivate: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("Deactivate: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("Deactivate: %w", domain.ErrItemNotFound)
	}
	return nil
}

// LockMany locks the rows of ids in ascending id order and returns them keyed
// by id. Ids with no row are absent from the map; inactive rows are returned
// and left to the caller to reject.
func (r *ItemRepository) LockMany(ctx context.Context, tx *sql.Tx, ids []uuid.UUID) (map[uuid.UUID]*domain.Item, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE id = ANY($1) ORDER BY id FOR UPDATE`,
		pq.Array(uuidStrings(ids)),
	)
	if err != nil {
		return nil, fmt.Errorf("LockMany: %w", err)
	}
	defer rows.Close()

	items := make(map[uuid.UUID]*domain.Item, len(ids))
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("LockMany: scan: %w", err)
		}
		items[it.ID] = it
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("LockMany: rows: %w", err)
	}
	return items, nil
}

// AdjustQuantity adds delta to the available quantity of an active item. The
// update only applies while the result stays non-negative.
func (r *ItemRepository) AdjustQuantity(ctx context.Context, tx *sql.Tx, id uuid.UUID, delta int64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE items SET available_quantity = available_quantity + $1,
			version = version + 1, updated_at = now()
		WHERE id = $2 AND active AND available_quantity + $1 >= 0`,
		delta, id,
	)
	if err != nil {
		if isCheckViolation(err) {
			return fmt.Errorf("AdjustQuantity: %w", domain.ErrInsufficientStock)
		}
		return fmt.Errorf("AdjustQuantity: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("AdjustQuantity: rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}

	var active bool
	err = tx.QueryRowContext(ctx, `SELECT active FROM items WHERE id = $1`, id).Scan(&active)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !active) {
		return fmt.Errorf("AdjustQuantity: %w", domain.ErrItemNotFound)
	}
	if err != nil {
		return fmt.Errorf("AdjustQuantity: %w", err)
	}
	return fmt.Errorf("AdjustQuantity: %w", domain.ErrInsufficientStock)
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func scanItem(s scanner) (*domain.Item, error) {
	var it domain.Item
	err := s.Scan(
		&it.ID, &it.Title, &it.Author, &it.CoverURL, &it.Tag, &it.AvailableQuantity,
		&it.UnitPrice, &it.Active, &it.Version, &it.CreatedAt, &it.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &it, nil
}
