package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/pointstore/internal/domain"
)

const accountColumns = `id, email, name, password_hash, role, balance, version, created_at`

type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id,
	)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return a, nil
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email,
	)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByEmail: %w", domain.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("GetByEmail: %w", err)
	}
	return a, nil
}

func (r *AccountRepository) Create(ctx context.Context, account *domain.Account) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (id, email, name, password_hash, role, balance, version, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		account.ID, account.Email, account.Name, account.PasswordHash,
		account.Role, account.Balance, account.Version, account.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("Create: %w", domain.ErrAccountExists)
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *AccountRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Account, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id,
	)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("GetForUpdate: %w", err)
	}
	return a, nil
}

// AdjustBalance applies delta to the balance of a row locked at expectedVersion.
// A debit that would drive the balance negative fails with ErrInsufficientFunds;
// a concurrent writer that bumped the version yields ErrVersionConflict.
func (r *AccountRepository) AdjustBalance(ctx context.Context, tx *sql.Tx, id uuid.UUID, delta decimal.Decimal, expectedVersion int64) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := tx.QueryRowContext(ctx,
		`UPDATE accounts SET balance = balance + $1, version = version + 1
		WHERE id = $2 AND version = $3 AND balance + $1 >= 0
		RETURNING balance`,
		delta, id, expectedVersion,
	).Scan(&balance)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		if isCheckViolation(err) {
			return decimal.Zero, fmt.Errorf("AdjustBalance: %w", domain.ErrInsufficientFunds)
		}
		return decimal.Zero, fmt.Errorf("AdjustBalance: %w", err)
	}

	// Nothing matched: tell a stale version apart from an overdraft.
	var current decimal.Decimal
	var version int64
	err = tx.QueryRowContext(ctx,
		`SELECT balance, version FROM accounts WHERE id = $1`, id,
	).Scan(&current, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, fmt.Errorf("AdjustBalance: %w", domain.ErrAccountNotFound)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("AdjustBalance: %w", err)
	}
	if version != expectedVersion {
		return decimal.Zero, fmt.Errorf("AdjustBalance: %w", domain.ErrVersionConflict)
	}
	return decimal.Zero, fmt.Errorf("AdjustBalance: %w", domain.ErrInsufficientFunds)
}

func scanAccount(s scanner) (*domain.Account, error) {
	var a domain.Account
	err := s.Scan(
		&a.ID, &a.Email, &a.Name, &a.PasswordHash,
		&a.Role, &a.Balance, &a.Version, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
