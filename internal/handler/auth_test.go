package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/pointstore/internal/domain"
	"github.com/josh-kwaku/pointstore/internal/service"
)

type mockAccountService struct {
	registered service.RegisterRequest
	account    *domain.Account
	token      string
	err        error
}

func (m *mockAccountService) Register(_ context.Context, req service.RegisterRequest) (*domain.Account, error) {
	m.registered = req
	return m.account, m.err
}

func (m *mockAccountService) Login(context.Context, string, string) (string, *domain.Account, error) {
	return m.token, m.account, m.err
}

func (m *mockAccountService) Profile(context.Context, uuid.UUID) (*domain.Account, error) {
	return m.account, m.err
}

func sampleAccount() *domain.Account {
	return &domain.Account{
		ID:           uuid.New(),
		Email:        "reader@test.com",
		Name:         "Reader",
		PasswordHash: "$2a$10$secret",
		Role:         domain.RoleUser,
		Balance:      decimal.NewFromInt(100),
	}
}

func TestAuthHandler_Register(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "created",
			body:       `{"name":"Reader","email":"reader@test.com","password":"password123"}`,
			wantStatus: http.StatusCreated,
		},
		{
			name:       "short password",
			body:       `{"name":"Reader","email":"reader@test.com","password":"short"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_FAILED",
		},
		{
			name:       "duplicate email",
			body:       `{"name":"Reader","email":"reader@test.com","password":"password123"}`,
			err:        domain.ErrAccountExists,
			wantStatus: http.StatusConflict,
			wantCode:   "ACCOUNT_ALREADY_EXISTS",
		},
		{
			name:       "malformed json",
			body:       `{`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_REQUEST",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := NewAuthHandler(&mockAccountService{account: sampleAccount(), err: tc.err})
			rec := httptest.NewRecorder()

			h.Register(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", strings.NewReader(tc.body)))

			assert.Equal(t, tc.wantStatus, rec.Code)
			if tc.wantCode != "" {
				assert.Equal(t, tc.wantCode, decodeEnvelope(t, rec).Error.Code)
			}
		})
	}
}

func TestAuthHandler_LoginNeverLeaksPasswordHash(t *testing.T) {
	h := NewAuthHandler(&mockAccountService{account: sampleAccount(), token: "signed.jwt.token"})
	rec := httptest.NewRecorder()

	body := `{"email":"reader@test.com","password":"password123"}`
	h.Login(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "$2a$")

	var resp loginResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &resp))
	assert.Equal(t, "signed.jwt.token", resp.Token)
	assert.Equal(t, "100.00", resp.Account.Balance)
}

func TestAuthHandler_LoginInvalidCredentials(t *testing.T) {
	h := NewAuthHandler(&mockAccountService{err: domain.ErrInvalidCredentials})
	rec := httptest.NewRecorder()

	body := `{"email":"reader@test.com","password":"wrong-password"}`
	h.Login(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body)))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "INVALID_CREDENTIALS", decodeEnvelope(t, rec).Error.Code)
}

func TestAuthHandler_Me(t *testing.T) {
	acct := sampleAccount()
	h := NewAuthHandler(&mockAccountService{account: acct})
	rec := httptest.NewRecorder()

	h.Me(rec, withAccount(httptest.NewRequest(http.MethodGet, "/api/v1/me", nil), acct.ID))

	require.Equal(t, http.StatusOK, rec.Code)
	var dto accountDTO
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &dto))
	assert.Equal(t, acct.ID, dto.ID)
	assert.Equal(t, "user", dto.Role)
}
