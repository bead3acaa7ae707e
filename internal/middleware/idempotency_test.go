package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/pointstore/internal/auth"
	"github.com/josh-kwaku/pointstore/internal/repository"
)

type memoryStore struct {
	mu      sync.Mutex
	entries map[string]*repository.IdempotencyCacheEntry
}

func newMemoryStore() *memoryStore {
	return &memoryStore{entries: map[string]*repository.IdempotencyCacheEntry{}}
}

func storeKey(e *repository.IdempotencyCacheEntry) string {
	return e.AccountID.String() + ":" + e.Key
}

func (m *memoryStore) Claim(_ context.Context, e *repository.IdempotencyCacheEntry) (*repository.IdempotencyCacheEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.entries[storeKey(e)]; ok {
		cp := *existing
		return &cp, nil
	}
	cp := *e
	m.entries[storeKey(e)] = &cp
	return nil, nil
}

func (m *memoryStore) Complete(_ context.Context, e *repository.IdempotencyCacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.entries[storeKey(e)]
	if !ok || !cur.Pending() || cur.RequestHash != e.RequestHash {
		return repository.ErrClaimLost
	}
	cp := *e
	m.entries[storeKey(e)] = &cp
	return nil
}

func (m *memoryStore) Release(_ context.Context, e *repository.IdempotencyCacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.entries[storeKey(e)]; ok && cur.Pending() && cur.RequestHash == e.RequestHash {
		delete(m.entries, storeKey(e))
	}
	return nil
}

func (m *memoryStore) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func countingHandler(status int, calls *int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"success":true}`))
	})
}

func authedRequest(accountID uuid.UUID, body, key string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/settlements", strings.NewReader(body))
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	ctx := auth.ContextWithClaims(req.Context(), &auth.Claims{AccountID: accountID})
	return req.WithContext(ctx)
}

func TestIdempotency_ReplaysStoredResponse(t *testing.T) {
	store := newMemoryStore()
	calls := 0
	h := Idempotency(store)(countingHandler(http.StatusCreated, &calls))
	accountID := uuid.New()

	first := httptest.NewRecorder()
	h.ServeHTTP(first, authedRequest(accountID, `{"lines":[]}`, "key-1"))
	require.Equal(t, http.StatusCreated, first.Code)

	second := httptest.NewRecorder()
	h.ServeHTTP(second, authedRequest(accountID, `{"lines":[]}`, "key-1"))

	assert.Equal(t, 1, calls)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get("X-Idempotent-Replayed"))
	assert.Equal(t, first.Body.String(), second.Body.String())
}

func TestIdempotency_DifferentBodySameKeyConflicts(t *testing.T) {
	store := newMemoryStore()
	calls := 0
	h := Idempotency(store)(countingHandler(http.StatusCreated, &calls))
	accountID := uuid.New()

	h.ServeHTTP(httptest.NewRecorder(), authedRequest(accountID, `{"a":1}`, "key-1"))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest(accountID, `{"a":2}`, "key-1"))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, 1, calls)
}

func TestIdempotency_KeysAreScopedPerAccount(t *testing.T) {
	store := newMemoryStore()
	calls := 0
	h := Idempotency(store)(countingHandler(http.StatusCreated, &calls))

	h.ServeHTTP(httptest.NewRecorder(), authedRequest(uuid.New(), `{}`, "shared"))
	h.ServeHTTP(httptest.NewRecorder(), authedRequest(uuid.New(), `{}`, "shared"))

	assert.Equal(t, 2, calls)
}

func TestIdempotency_ServerErrorsAreNotStored(t *testing.T) {
	store := newMemoryStore()
	calls := 0
	h := Idempotency(store)(countingHandler(http.StatusServiceUnavailable, &calls))
	accountID := uuid.New()

	h.ServeHTTP(httptest.NewRecorder(), authedRequest(accountID, `{}`, "retry-me"))
	assert.Zero(t, store.size())
	h.ServeHTTP(httptest.NewRecorder(), authedRequest(accountID, `{}`, "retry-me"))

	assert.Equal(t, 2, calls)
}

func TestIdempotency_MissingKey(t *testing.T) {
	calls := 0
	h := Idempotency(newMemoryStore())(countingHandler(http.StatusCreated, &calls))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest(uuid.New(), `{}`, ""))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, calls)
}

func TestIdempotency_GetPassesThrough(t *testing.T) {
	calls := 0
	h := Idempotency(newMemoryStore())(countingHandler(http.StatusOK, &calls))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/settlements", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, calls)
}

func TestIdempotency_DuplicateWhileRunningIsRejected(t *testing.T) {
	store := newMemoryStore()
	var calls atomic.Int32
	entered := make(chan struct{})
	finish := make(chan struct{})

	h := Idempotency(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			close(entered)
			<-finish
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	accountID := uuid.New()

	first := httptest.NewRecorder()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.ServeHTTP(first, authedRequest(accountID, `{"lines":[]}`, "double-submit"))
	}()
	<-entered

	second := httptest.NewRecorder()
	h.ServeHTTP(second, authedRequest(accountID, `{"lines":[]}`, "double-submit"))

	close(finish)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, http.StatusCreated, first.Code)
	assert.Equal(t, http.StatusConflict, second.Code)
	assert.Contains(t, second.Body.String(), "IDEMPOTENCY_IN_PROGRESS")

	third := httptest.NewRecorder()
	h.ServeHTTP(third, authedRequest(accountID, `{"lines":[]}`, "double-submit"))
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, http.StatusCreated, third.Code)
	assert.Equal(t, "true", third.Header().Get("X-Idempotent-Replayed"))
}

func TestIdempotency_ConcurrentDuplicatesRunHandlerOnce(t *testing.T) {
	store := newMemoryStore()
	var calls atomic.Int32
	h := Idempotency(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	accountID := uuid.New()

	const requests = 8
	codes := make([]int, requests)
	var wg sync.WaitGroup
	for i := range requests {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, authedRequest(accountID, `{"lines":[]}`, "same-key"))
			codes[i] = rec.Code
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, code := range codes {
		assert.Contains(t, []int{http.StatusCreated, http.StatusConflict}, code)
	}
}

func TestIdempotency_PanicReleasesClaim(t *testing.T) {
	store := newMemoryStore()
	var calls atomic.Int32
	h := Recovery(Idempotency(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			panic("boom")
		}
		w.WriteHeader(http.StatusCreated)
	})))
	accountID := uuid.New()

	first := httptest.NewRecorder()
	h.ServeHTTP(first, authedRequest(accountID, `{}`, "after-panic"))
	require.Equal(t, http.StatusInternalServerError, first.Code)
	assert.Zero(t, store.size())

	second := httptest.NewRecorder()
	h.ServeHTTP(second, authedRequest(accountID, `{}`, "after-panic"))

	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, int32(2), calls.Load())
}
