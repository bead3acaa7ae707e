package settlement

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/josh-kwaku/pointstore/internal/domain"
	"github.com/josh-kwaku/pointstore/internal/logging"
	"github.com/josh-kwaku/pointstore/internal/pricing"
)

// Settle debits the account by the current value of basket and takes the
// requested quantities out of stock. Either every line applies or none does.
func (s *Service) Settle(ctx context.Context, accountID uuid.UUID, basket []domain.BasketLine) (*domain.Settlement, error) {
	ctx, span := s.tracer.Start(ctx, "settlement.Settle", trace.WithAttributes(
		attribute.String("account_id", accountID.String()),
		attribute.Int("basket.lines", len(basket)),
	))
	defer span.End()

	log := logging.FromContext(ctx)

	if err := pricing.ValidateBasket(basket); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("Settle: %w", err)
	}

	var settled *domain.Settlement
	err := s.runUnit(ctx, "settle", func(ctx context.Context) error {
		return s.db.RunInTx(ctx, func(tx *sql.Tx) error {
			st, err := s.settleInTx(ctx, tx, accountID, basket)
			if err != nil {
				return err
			}
			settled = st
			return nil
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Info("settlement rejected", "account_id", accountID, "lines", len(basket), "error", err)
		return nil, fmt.Errorf("Settle: %w", err)
	}

	span.SetAttributes(
		attribute.String("settlement_id", settled.ID.String()),
		attribute.String("total_value", settled.TotalValue.String()),
	)
	log.Info("settlement completed",
		"settlement_id", settled.ID,
		"account_id", accountID,
		"total_value", settled.TotalValue.String(),
		"lines", len(settled.Lines),
	)
	return settled, nil
}

func (s *Service) settleInTx(ctx context.Context, tx *sql.Tx, accountID uuid.UUID, basket []domain.BasketLine) (*domain.Settlement, error) {
	account, err := s.accounts.GetForUpdate(ctx, tx, accountID)
	if err != nil {
		return nil, fmt.Errorf("settleInTx: %w", err)
	}

	items, err := s.items.LockMany(ctx, tx, pricing.ItemIDs(basket))
	if err != nil {
		return nil, fmt.Errorf("settleInTx: %w", err)
	}

	tally := pricing.NewTally(items)
	for i, line := range basket {
		if err := tally.Add(i, line); err != nil {
			return nil, fmt.Errorf("settleInTx: %w", err)
		}
	}

	total := tally.Total()
	if total.GreaterThan(account.Balance) {
		return nil, fmt.Errorf("settleInTx: need %s, have %s: %w", total, account.Balance, domain.ErrInsufficientFunds)
	}

	for _, taken := range tally.Taken() {
		if err := s.items.AdjustQuantity(ctx, tx, taken.ItemID, -taken.Quantity); err != nil {
			return nil, fmt.Errorf("settleInTx: item %s: %w", taken.ItemID, err)
		}
	}

	balanceAfter, err := s.accounts.AdjustBalance(ctx, tx, accountID, total.Neg(), account.Version)
	if err != nil {
		return nil, fmt.Errorf("settleInTx: %w", err)
	}

	now := s.now()
	st := &domain.Settlement{
		ID:         uuid.New(),
		AccountID:  accountID,
		Status:     domain.SettlementStatusActive,
		Lines:      tally.Lines(),
		TotalValue: total,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.settlements.Create(ctx, tx, st); err != nil {
		return nil, fmt.Errorf("settleInTx: create settlement: %w", err)
	}

	if err := s.recordLedger(ctx, tx, st, domain.EntryTypeDebit, total, balanceAfter, now); err != nil {
		return nil, fmt.Errorf("settleInTx: %w", err)
	}

	if err := s.writeEvent(ctx, tx, st, domain.SettlementEventCreated, now); err != nil {
		return nil, fmt.Errorf("settleInTx: %w", err)
	}

	return st, nil
}
