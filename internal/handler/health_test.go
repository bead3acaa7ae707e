package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPinger struct{ err error }

func (p stubPinger) PingContext(context.Context) error { return p.err }

func TestReadiness(t *testing.T) {
	down := errors.New("connection refused")

	tests := []struct {
		name       string
		db         pinger
		cache      pinger
		wantStatus int
		wantChecks map[string]string
	}{
		{
			name:       "database only",
			db:         stubPinger{},
			wantStatus: http.StatusOK,
			wantChecks: map[string]string{"database": "ok"},
		},
		{
			name:       "database and cache up",
			db:         stubPinger{},
			cache:      stubPinger{},
			wantStatus: http.StatusOK,
			wantChecks: map[string]string{"database": "ok", "cache": "ok"},
		},
		{
			name:       "database down",
			db:         stubPinger{err: down},
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{"database": "down"},
		},
		{
			name:       "cache down",
			db:         stubPinger{},
			cache:      stubPinger{err: down},
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{"database": "ok", "cache": "down"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHealthHandler(tc.db, tc.cache)
			rec := httptest.NewRecorder()

			h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			assert.Equal(t, tc.wantStatus, rec.Code)

			var body struct {
				Status string            `json:"status"`
				Checks map[string]string `json:"checks"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.wantChecks, body.Checks)
			if tc.wantStatus == http.StatusOK {
				assert.Equal(t, "ok", body.Status)
			} else {
				assert.Equal(t, "down", body.Status)
			}
		})
	}
}

func TestLiveness(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHealthHandler(stubPinger{}, nil).Liveness(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}
