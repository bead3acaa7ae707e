package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/josh-kwaku/pointstore/internal/auth"
	"github.com/josh-kwaku/pointstore/internal/domain"
	"github.com/josh-kwaku/pointstore/internal/logging"
)

type accountRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	Create(ctx context.Context, account *domain.Account) error
}

type AccountConfig struct {
	OpeningBalance decimal.Decimal
	AdminSignupKey string
	JWTSecret      string
	JWTExpiry      time.Duration
	BcryptCost     int
}

type AccountService struct {
	accounts accountRepo
	cfg      AccountConfig
}

func NewAccountService(accounts accountRepo, cfg AccountConfig) *AccountService {
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	return &AccountService{accounts: accounts, cfg: cfg}
}

type RegisterRequest struct {
	Name     string
	Email    string
	Password string
	AdminKey string
}

// Register creates an account holding the opening balance. The admin role is
// granted only when AdminKey matches the configured signup key.
func (s *AccountService) Register(ctx context.Context, req RegisterRequest) (*domain.Account, error) {
	log := logging.FromContext(ctx)

	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, fmt.Errorf("Register: %w", err)
	}
	if strings.TrimSpace(req.Name) == "" || len(req.Password) < 8 {
		return nil, fmt.Errorf("Register: %w", domain.ErrInvalidRequest)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("Register: hash password: %w", err)
	}

	role := domain.RoleUser
	if req.AdminKey != "" && s.cfg.AdminSignupKey != "" &&
		subtle.ConstantTimeCompare([]byte(req.AdminKey), []byte(s.cfg.AdminSignupKey)) == 1 {
		role = domain.RoleAdmin
	}

	account := &domain.Account{
		ID:           uuid.New(),
		Email:        email,
		Name:         strings.TrimSpace(req.Name),
		PasswordHash: string(hash),
		Role:         role,
		Balance:      s.cfg.OpeningBalance,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, fmt.Errorf("Register: %w", err)
	}

	log.Info("account registered",
		"account_id", account.ID,
		"role", account.Role,
		"opening_balance", account.Balance.String(),
	)
	return account, nil
}

// Login checks the password and issues a bearer token. Unknown emails and
// wrong passwords are indistinguishable to the caller.
func (s *AccountService) Login(ctx context.Context, email, password string) (string, *domain.Account, error) {
	normalized, err := normalizeEmail(email)
	if err != nil {
		return "", nil, fmt.Errorf("Login: %w", domain.ErrInvalidCredentials)
	}

	account, err := s.accounts.GetByEmail(ctx, normalized)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return "", nil, fmt.Errorf("Login: %w", domain.ErrInvalidCredentials)
		}
		return "", nil, fmt.Errorf("Login: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return "", nil, fmt.Errorf("Login: %w", domain.ErrInvalidCredentials)
	}

	token, err := auth.GenerateToken(account.ID, account.Email, account.Role, s.cfg.JWTSecret, s.cfg.JWTExpiry)
	if err != nil {
		return "", nil, fmt.Errorf("Login: %w", err)
	}
	return token, account, nil
}

func (s *AccountService) Profile(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("Profile: %w", err)
	}
	return account, nil
}

func normalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil || addr.Name != "" {
		return "", domain.ErrInvalidRequest
	}
	return strings.ToLower(addr.Address), nil
}
