package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/pointstore/internal/auth"
	"github.com/josh-kwaku/pointstore/internal/domain"
	"github.com/josh-kwaku/pointstore/internal/logging"
	"github.com/josh-kwaku/pointstore/internal/service"
)

type accountService interface {
	Register(ctx context.Context, req service.RegisterRequest) (*domain.Account, error)
	Login(ctx context.Context, email, password string) (string, *domain.Account, error)
	Profile(ctx context.Context, accountID uuid.UUID) (*domain.Account, error)
}

type AuthHandler struct {
	accounts accountService
}

func NewAuthHandler(accounts accountService) *AuthHandler {
	return &AuthHandler{accounts: accounts}
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	AdminKey string `json:"admin_key,omitempty"`
}

func (r registerRequest) Validate() []FieldError {
	var errs []FieldError
	if r.Name == "" {
		errs = append(errs, FieldError{Field: "name", Message: "required"})
	}
	if r.Email == "" {
		errs = append(errs, FieldError{Field: "email", Message: "required"})
	}
	if len(r.Password) < 8 {
		errs = append(errs, FieldError{Field: "password", Message: "must be at least 8 characters"})
	}
	return errs
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r loginRequest) Validate() []FieldError {
	var errs []FieldError
	if r.Email == "" {
		errs = append(errs, FieldError{Field: "email", Message: "required"})
	}
	if r.Password == "" {
		errs = append(errs, FieldError{Field: "password", Message: "required"})
	}
	return errs
}

type loginResponse struct {
	Token   string     `json:"token"`
	Account accountDTO `json:"account"`
}

type accountDTO struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	Balance   string    `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
}

func toAccountDTO(a *domain.Account) accountDTO {
	return accountDTO{
		ID:        a.ID,
		Email:     a.Email,
		Name:      a.Name,
		Role:      string(a.Role),
		Balance:   a.Balance.StringFixed(2),
		CreatedAt: a.CreatedAt,
	}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	account, err := h.accounts.Register(r.Context(), service.RegisterRequest{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		AdminKey: req.AdminKey,
	})
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, toAccountDTO(account))
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	token, account, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, loginResponse{
		Token:   token,
		Account: toAccountDTO(account),
	})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	accountID, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		log.Error("account id missing from context")
		RespondAppError(w, ErrInternalError, nil)
		return
	}

	account, err := h.accounts.Profile(r.Context(), accountID)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toAccountDTO(account))
}
