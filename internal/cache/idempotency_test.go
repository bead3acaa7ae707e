package cache

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/pointstore/internal/repository"
)

func getRedisClient(t *testing.T) *redis.Client {
	t.Helper()

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		t.Skipf("Redis not available: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func claimEntry(key string, accountID uuid.UUID, hash string) *repository.IdempotencyCacheEntry {
	now := time.Now().UTC()
	return &repository.IdempotencyCacheEntry{
		Key:         key,
		AccountID:   accountID,
		RequestHash: hash,
		CreatedAt:   now,
		ExpiresAt:   now.Add(time.Minute),
	}
}

func TestIdempotencyStore_ClaimCompleteReplay(t *testing.T) {
	client := getRedisClient(t)
	store := NewIdempotencyStore(client)
	ctx := context.Background()

	accountID := uuid.New()
	key := uuid.NewString()
	t.Cleanup(func() { client.Del(ctx, idempotencyKey(key, accountID)) })

	claim := claimEntry(key, accountID, "abc")
	existing, err := store.Claim(ctx, claim)
	require.NoError(t, err)
	assert.Nil(t, existing)

	existing, err = store.Claim(ctx, claimEntry(key, accountID, "abc"))
	require.NoError(t, err)
	require.NotNil(t, existing)
	assert.True(t, existing.Pending())

	done := *claim
	done.StatusCode = 201
	done.ResponseBody = []byte(`{"success":true}`)
	done.ExpiresAt = time.Now().Add(time.Hour)
	require.NoError(t, store.Complete(ctx, &done))

	got, err := store.Claim(ctx, claimEntry(key, accountID, "abc"))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, got.Pending())
	assert.Equal(t, 201, got.StatusCode)
	assert.JSONEq(t, `{"success":true}`, string(got.ResponseBody))

	ttl, err := client.TTL(ctx, idempotencyKey(key, accountID)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Minute)

	require.ErrorIs(t, store.Complete(ctx, &done), repository.ErrClaimLost)
}

func TestIdempotencyStore_ReleaseFreesPendingOnly(t *testing.T) {
	client := getRedisClient(t)
	store := NewIdempotencyStore(client)
	ctx := context.Background()

	accountID := uuid.New()
	key := uuid.NewString()
	t.Cleanup(func() { client.Del(ctx, idempotencyKey(key, accountID)) })

	claim := claimEntry(key, accountID, "h")
	_, err := store.Claim(ctx, claim)
	require.NoError(t, err)

	require.NoError(t, store.Release(ctx, claimEntry(key, accountID, "other")))
	got, err := store.Get(ctx, key, accountID)
	require.NoError(t, err)
	require.NotNil(t, got, "a different request must not release the claim")

	require.NoError(t, store.Release(ctx, claim))
	got, err = store.Get(ctx, key, accountID)
	require.NoError(t, err)
	assert.Nil(t, got)

	existing, err := store.Claim(ctx, claim)
	require.NoError(t, err)
	assert.Nil(t, existing)
}

func TestIdempotencyStore_ConcurrentClaimsHaveOneWinner(t *testing.T) {
	client := getRedisClient(t)
	store := NewIdempotencyStore(client)
	ctx := context.Background()

	accountID := uuid.New()
	key := uuid.NewString()
	t.Cleanup(func() { client.Del(ctx, idempotencyKey(key, accountID)) })

	const claimers = 10
	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for range claimers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			existing, err := store.Claim(ctx, claimEntry(key, accountID, "h"))
			if err == nil && existing == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestIdempotencyStore_ScopedPerAccount(t *testing.T) {
	client := getRedisClient(t)
	store := NewIdempotencyStore(client)
	ctx := context.Background()

	owner, other := uuid.New(), uuid.New()
	key := uuid.NewString()
	t.Cleanup(func() {
		client.Del(ctx, idempotencyKey(key, owner))
		client.Del(ctx, idempotencyKey(key, other))
	})

	_, err := store.Claim(ctx, claimEntry(key, owner, "h"))
	require.NoError(t, err)

	existing, err := store.Claim(ctx, claimEntry(key, other, "h"))
	require.NoError(t, err)
	assert.Nil(t, existing)
}
