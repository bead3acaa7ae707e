package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// IdempotencyCacheEntry is the first response given to an Idempotency-Key,
// scoped to the account that sent it.
type IdempotencyCacheEntry struct {
	Key          string
	AccountID    uuid.UUID
	RequestHash  string
	StatusCode   int
	ResponseBody []byte
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

// IdempotencyRepository is the Postgres-backed store used when no Redis is
// configured. Expired rows are removed by CleanExpired.
type IdempotencyRepository struct {
	db *sql.DB
}

func NewIdempotencyRepository(db *sql.DB) *IdempotencyRepository {
	return &IdempotencyRepository{db: db}
}

// claimAttempts bounds how often Claim retries when the conflicting row
// disappears between the insert and the read.
const claimAttempts = 3

// ErrClaimLost means the pending entry was released, expired or taken over
// before the response could be stored.
var ErrClaimLost = errors.New("idempotency claim lost")

// Pending reports whether the request holding the key has not finished yet.
func (e *IdempotencyCacheEntry) Pending() bool { return e.StatusCode == 0 }

// Get returns nil, nil when the key is unknown or has expired.
func (r *IdempotencyRepository) Get(ctx context.Context, key string, accountID uuid.UUID) (*IdempotencyCacheEntry, error) {
	e := IdempotencyCacheEntry{Key: key, AccountID: accountID}
	err := r.db.QueryRowContext(ctx,
		`SELECT request_hash, status_code, response_body, created_at, expires_at
		FROM idempotency_cache
		WHERE idempotency_key = $1 AND account_id = $2 AND expires_at > now()`,
		key, accountID,
	).Scan(&e.RequestHash, &e.StatusCode, &e.ResponseBody, &e.CreatedAt, &e.ExpiresAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("IdempotencyRepository.Get: %w", err)
	}
	return &e, nil
}

// Claim reserves e.Key for the calling request with a pending row that lives
// until e.ExpiresAt. It returns nil when the caller now holds the key and the
// live entry of an earlier request otherwise. Expired rows are taken over.
func (r *IdempotencyRepository) Claim(ctx context.Context, e *IdempotencyCacheEntry) (*IdempotencyCacheEntry, error) {
	for range claimAttempts {
		var claimed string
		err := r.db.QueryRowContext(ctx,
			`INSERT INTO idempotency_cache
				(idempotency_key, account_id, request_hash, status_code, response_body, created_at, expires_at)
			VALUES ($1, $2, $3, 0, $4, $5, $6)
			ON CONFLICT (idempotency_key, account_id) DO UPDATE
			SET request_hash = EXCLUDED.request_hash,
				status_code = 0,
				response_body = EXCLUDED.response_body,
				created_at = EXCLUDED.created_at,
				expires_at = EXCLUDED.expires_at
			WHERE idempotency_cache.expires_at <= now()
			RETURNING idempotency_key`,
			e.Key, e.AccountID, e.RequestHash, []byte{}, e.CreatedAt, e.ExpiresAt,
		).Scan(&claimed)
		if err == nil {
			return nil, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("IdempotencyRepository.Claim: %w", err)
		}

		existing, err := r.Get(ctx, e.Key, e.AccountID)
		if err != nil {
			return nil, fmt.Errorf("IdempotencyRepository.Claim: %w", err)
		}
		if existing != nil {
			return existing, nil
		}
	}
	return nil, fmt.Errorf("IdempotencyRepository.Claim: key %q released while claiming", e.Key)
}

// Complete stores the response on a row still pending for the same request.
func (r *IdempotencyRepository) Complete(ctx context.Context, e *IdempotencyCacheEntry) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE idempotency_cache
		SET status_code = $1, response_body = $2, expires_at = $3
		WHERE idempotency_key = $4 AND account_id = $5 AND request_hash = $6 AND status_code = 0`,
		e.StatusCode, e.ResponseBody, e.ExpiresAt, e.Key, e.AccountID, e.RequestHash,
	)
	if err != nil {
		return fmt.Errorf("IdempotencyRepository.Complete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("IdempotencyRepository.Complete: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("IdempotencyRepository.Complete: %w", ErrClaimLost)
	}
	return nil
}

// Release drops a pending claim so the key can be used again. Completed
// entries are left alone.
func (r *IdempotencyRepository) Release(ctx context.Context, e *IdempotencyCacheEntry) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM idempotency_cache
		WHERE idempotency_key = $1 AND account_id = $2 AND request_hash = $3 AND status_code = 0`,
		e.Key, e.AccountID, e.RequestHash,
	)
	if err != nil {
		return fmt.Errorf("IdempotencyRepository.Release: %w", err)
	}
	return nil
}

func (r *IdempotencyRepository) CleanExpired(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM idempotency_cache WHERE expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("IdempotencyRepository.CleanExpired: %w", err)
	}
	return res.RowsAffected()
}
