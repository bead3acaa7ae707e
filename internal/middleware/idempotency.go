package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/josh-kwaku/pointstore/internal/auth"
	"github.com/josh-kwaku/pointstore/internal/handler"
	"github.com/josh-kwaku/pointstore/internal/logging"
	"github.com/josh-kwaku/pointstore/internal/repository"
)

const (
	idempotencyHeader    = "Idempotency-Key"
	replayedHeader       = "X-Idempotent-Replayed"
	idempotencyTTL       = 24 * time.Hour
	idempotencyLease     = time.Minute
	maxIdempotencyKeyLen = 128
)

// IdempotencyStore is satisfied by the Postgres table and the Redis cache.
// Claim returns nil when the caller now holds the key, otherwise the entry
// left by the request that got there first.
type IdempotencyStore interface {
	Claim(ctx context.Context, entry *repository.IdempotencyCacheEntry) (*repository.IdempotencyCacheEntry, error)
	Complete(ctx context.Context, entry *repository.IdempotencyCacheEntry) error
	Release(ctx context.Context, entry *repository.IdempotencyCacheEntry) error
}

// Idempotency must run after Auth. The key is claimed before the handler
// runs, so a key is executed at most once per account: a repeat gets the
// stored response, a repeat while the first is still running gets 409, and
// the same key with a different request is a conflict. Server errors release
// the claim so the client can retry them.
func Idempotency(store IdempotencyStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get(idempotencyHeader)
			if key == "" || len(key) > maxIdempotencyKeyLen {
				handler.RespondAppError(w, handler.ErrMissingIdempotencyKey, nil)
				return
			}

			accountID, ok := auth.AccountIDFromContext(r.Context())
			if !ok {
				handler.RespondAppError(w, handler.ErrMissingToken, nil)
				return
			}

			log := logging.FromContext(r.Context()).With("idempotency_key", key)

			body, err := io.ReadAll(r.Body)
			if err != nil {
				handler.RespondAppError(w, handler.ErrInvalidRequest, nil)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			fingerprint := requestFingerprint(r, body)

			now := time.Now().UTC()
			claim := &repository.IdempotencyCacheEntry{
				Key:         key,
				AccountID:   accountID,
				RequestHash: fingerprint,
				CreatedAt:   now,
				ExpiresAt:   now.Add(idempotencyLease),
			}

			stored, err := store.Claim(r.Context(), claim)
			if err != nil {
				log.Error("idempotency claim failed", "error", err)
				handler.RespondAppError(w, handler.ErrInternalError, nil)
				return
			}
			if stored != nil {
				switch {
				case stored.RequestHash != fingerprint:
					handler.RespondAppError(w, handler.ErrIdempotencyConflict, nil)
				case stored.Pending():
					handler.RespondAppError(w, handler.ErrIdempotencyInProgress, nil)
				default:
					replay(w, stored, log)
				}
				return
			}

			// Claims are settled even after the client has gone away.
			storeCtx := context.WithoutCancel(r.Context())
			done := false
			defer func() {
				if done {
					return
				}
				if err := store.Release(storeCtx, claim); err != nil {
					log.Error("idempotency release failed", "error", err)
				}
			}()

			rec := &captureWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			if rec.status >= http.StatusInternalServerError {
				return
			}

			done = true
			finished := time.Now().UTC()
			err = store.Complete(storeCtx, &repository.IdempotencyCacheEntry{
				Key:          key,
				AccountID:    accountID,
				RequestHash:  fingerprint,
				StatusCode:   rec.status,
				ResponseBody: rec.body.Bytes(),
				CreatedAt:    now,
				ExpiresAt:    finished.Add(idempotencyTTL),
			})
			if err != nil {
				log.Error("idempotency store failed", "error", err)
			}
		})
	}
}

func isSafeMethod(m string) bool {
	return m == http.MethodGet || m == http.MethodHead || m == http.MethodOptions
}

func requestFingerprint(r *http.Request, body []byte) string {
	h := sha256.New()
	h.Write([]byte(r.Method))
	h.Write([]byte{0})
	h.Write([]byte(r.URL.Path))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func replay(w http.ResponseWriter, entry *repository.IdempotencyCacheEntry, log *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(replayedHeader, "true")
	w.WriteHeader(entry.StatusCode)
	if _, err := w.Write(entry.ResponseBody); err != nil {
		log.Error("idempotent replay write failed", "error", err)
	}
}

type captureWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (c *captureWriter) WriteHeader(code int) {
	c.status = code
	c.ResponseWriter.WriteHeader(code)
}

func (c *captureWriter) Write(b []byte) (int, error) {
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}
