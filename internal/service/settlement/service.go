// Package settlement converts account points into inventory and reverses
// such conversions. Every Settle or Cancel runs in a single transaction that
// locks the settlement, the account and then the items in ascending id order.
package settlement

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/josh-kwaku/pointstore/internal/domain"
)

type txRunner interface {
	RunInTx(ctx context.Context, fn func(tx *sql.Tx) error) error
}

type accountRepo interface {
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Account, error)
	AdjustBalance(ctx context.Context, tx *sql.Tx, id uuid.UUID, delta decimal.Decimal, expectedVersion int64) (decimal.Decimal, error)
}

type itemRepo interface {
	LockMany(ctx context.Context, tx *sql.Tx, ids []uuid.UUID) (map[uuid.UUID]*domain.Item, error)
	AdjustQuantity(ctx context.Context, tx *sql.Tx, id uuid.UUID, delta int64) error
}

type settlementRepo interface {
	Create(ctx context.Context, tx *sql.Tx, s *domain.Settlement) error
	GetForUpdate(ctx context.Context, tx *sql.Tx, id, accountID uuid.UUID) (*domain.Settlement, error)
	GetForAccount(ctx context.Context, id, accountID uuid.UUID) (*domain.Settlement, error)
	ListForAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.Settlement, int, error)
	MarkCancelled(ctx context.Context, tx *sql.Tx, id uuid.UUID, at time.Time) error
}

type eventRepo interface {
	Create(ctx context.Context, tx *sql.Tx, event *domain.SettlementEvent) error
}

type ledgerRepo interface {
	Create(ctx context.Context, tx *sql.Tx, entry *domain.LedgerEntry) error
	ListForAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.LedgerEntry, int, error)
	ListBySettlement(ctx context.Context, settlementID uuid.UUID) ([]domain.LedgerEntry, error)
}

type Config struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxRetries:      3,
		InitialInterval: 20 * time.Millisecond,
		MaxInterval:     500 * time.Millisecond,
	}
}

type Service struct {
	db          txRunner
	accounts    accountRepo
	items       itemRepo
	settlements settlementRepo
	events      eventRepo
	ledger      ledgerRepo
	cfg         Config
	tracer      trace.Tracer
	now         func() time.Time
}

func NewService(
	db txRunner,
	accounts accountRepo,
	items itemRepo,
	settlements settlementRepo,
	events eventRepo,
	ledger ledgerRepo,
	cfg Config,
) *Service {
	return &Service{
		db:          db,
		accounts:    accounts,
		items:       items,
		settlements: settlements,
		events:      events,
		ledger:      ledger,
		cfg:         cfg,
		tracer:      otel.Tracer("github.com/josh-kwaku/pointstore/internal/service/settlement"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Get returns a settlement owned by accountID. A settlement owned by another
// account is reported as ErrSettlementNotFound.
func (s *Service) Get(ctx context.Context, accountID, settlementID uuid.UUID) (*domain.Settlement, error) {
	st, err := s.settlements.GetForAccount(ctx, settlementID, accountID)
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return st, nil
}

func (s *Service) List(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.Settlement, int, error) {
	list, total, err := s.settlements.ListForAccount(ctx, accountID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("List: %w", err)
	}
	return list, total, nil
}

// Ledger lists the balance movements of accountID, newest first.
func (s *Service) Ledger(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.LedgerEntry, int, error) {
	entries, total, err := s.ledger.ListForAccount(ctx, accountID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("Ledger: %w", err)
	}
	return entries, total, nil
}

// SettlementLedger returns the debit and any credit recorded for one
// settlement owned by accountID, oldest first.
func (s *Service) SettlementLedger(ctx context.Context, accountID, settlementID uuid.UUID) ([]domain.LedgerEntry, error) {
	if _, err := s.settlements.GetForAccount(ctx, settlementID, accountID); err != nil {
		return nil, fmt.Errorf("SettlementLedger: %w", err)
	}
	entries, err := s.ledger.ListBySettlement(ctx, settlementID)
	if err != nil {
		return nil, fmt.Errorf("SettlementLedger: %w", err)
	}
	return entries, nil
}
