package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/josh-kwaku/pointstore/internal/repository"
)

const (
	idempotencyPrefix = "idempotency:"
	claimAttempts     = 3
)

// completeScript replaces a pending entry with the final response, but only
// while the key is still held by the request with the same hash.
var completeScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if not current then
	return 0
end

local entry = cjson.decode(current)
if entry.status_code ~= 0 or entry.request_hash ~= ARGV[1] then
	return 0
end

redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

var releaseScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if not current then
	return 0
end

local entry = cjson.decode(current)
if entry.status_code ~= 0 or entry.request_hash ~= ARGV[1] then
	return 0
end

return redis.call('DEL', KEYS[1])
`)

// IdempotencyStore keeps replayable responses in Redis. Entries expire on
// their own, so there is no cleanup job.
type IdempotencyStore struct {
	client *redis.Client
}

func NewIdempotencyStore(client *redis.Client) *IdempotencyStore {
	return &IdempotencyStore{client: client}
}

func idempotencyKey(key string, accountID uuid.UUID) string {
	return idempotencyPrefix + accountID.String() + ":" + key
}

type storedEntry struct {
	RequestHash  string    `json:"request_hash"`
	StatusCode   int       `json:"status_code"`
	ResponseBody []byte    `json:"response_body"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Get returns nil, nil when nothing is stored under key.
func (s *IdempotencyStore) Get(ctx context.Context, key string, accountID uuid.UUID) (*repository.IdempotencyCacheEntry, error) {
	raw, err := s.client.Get(ctx, idempotencyKey(key, accountID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("IdempotencyStore.Get: %w", err)
	}

	var e storedEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("IdempotencyStore.Get: decode: %w", err)
	}
	return &repository.IdempotencyCacheEntry{
		Key:          key,
		AccountID:    accountID,
		RequestHash:  e.RequestHash,
		StatusCode:   e.StatusCode,
		ResponseBody: e.ResponseBody,
		CreatedAt:    e.CreatedAt,
		ExpiresAt:    e.ExpiresAt,
	}, nil
}

func encodeEntry(e *repository.IdempotencyCacheEntry) ([]byte, error) {
	return json.Marshal(storedEntry{
		RequestHash:  e.RequestHash,
		StatusCode:   e.StatusCode,
		ResponseBody: e.ResponseBody,
		CreatedAt:    e.CreatedAt,
		ExpiresAt:    e.ExpiresAt,
	})
}

// Claim reserves the key with a pending entry that expires at e.ExpiresAt.
// It returns nil when the caller now holds the key and the entry of an
// earlier request otherwise.
func (s *IdempotencyStore) Claim(ctx context.Context, e *repository.IdempotencyCacheEntry) (*repository.IdempotencyCacheEntry, error) {
	ttl := time.Until(e.ExpiresAt)
	if ttl <= 0 {
		return nil, fmt.Errorf("IdempotencyStore.Claim: claim for %q already expired", e.Key)
	}

	pending := *e
	pending.StatusCode = 0
	pending.ResponseBody = nil
	raw, err := encodeEntry(&pending)
	if err != nil {
		return nil, fmt.Errorf("IdempotencyStore.Claim: encode: %w", err)
	}

	for range claimAttempts {
		ok, err := s.client.SetNX(ctx, idempotencyKey(e.Key, e.AccountID), raw, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("IdempotencyStore.Claim: %w", err)
		}
		if ok {
			return nil, nil
		}

		existing, err := s.Get(ctx, e.Key, e.AccountID)
		if err != nil {
			return nil, fmt.Errorf("IdempotencyStore.Claim: %w", err)
		}
		if existing != nil {
			return existing, nil
		}
	}
	return nil, fmt.Errorf("IdempotencyStore.Claim: key %q released while claiming", e.Key)
}

// Complete stores the response over the pending entry held by the same request.
func (s *IdempotencyStore) Complete(ctx context.Context, e *repository.IdempotencyCacheEntry) error {
	ttl := time.Until(e.ExpiresAt)
	if ttl <= 0 {
		return nil
	}

	raw, err := encodeEntry(e)
	if err != nil {
		return fmt.Errorf("IdempotencyStore.Complete: encode: %w", err)
	}

	stored, err := completeScript.Run(ctx, s.client,
		[]string{idempotencyKey(e.Key, e.AccountID)},
		e.RequestHash, raw, ttl.Milliseconds(),
	).Int()
	if err != nil {
		return fmt.Errorf("IdempotencyStore.Complete: %w", err)
	}
	if stored == 0 {
		return fmt.Errorf("IdempotencyStore.Complete: %w", repository.ErrClaimLost)
	}
	return nil
}

func (s *IdempotencyStore) Release(ctx context.Context, e *repository.IdempotencyCacheEntry) error {
	if err := releaseScript.Run(ctx, s.client, []string{idempotencyKey(e.Key, e.AccountID)}, e.RequestHash).Err(); err != nil {
		return fmt.Errorf("IdempotencyStore.Release: %w", err)
	}
	return nil
}

func (s *IdempotencyStore) PingContext(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
