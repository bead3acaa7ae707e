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

// Cancel reverses an active settlement owned by accountID: stock goes back
// to every item and the recorded total goes back to the account. If any
// item no longer exists nothing is restored.
func (s *Service) Cancel(ctx context.Context, accountID, settlementID uuid.UUID) error {
	ctx, span := s.tracer.Start(ctx, "settlement.Cancel", trace.WithAttributes(
		attribute.String("account_id", accountID.String()),
		attribute.String("settlement_id", settlementID.String()),
	))
	defer span.End()

	log := logging.FromContext(ctx)

	var cancelled *domain.Settlement
	err := s.runUnit(ctx, "cancel", func(ctx context.Context) error {
		return s.db.RunInTx(ctx, func(tx *sql.Tx) error {
			st, err := s.cancelInTx(ctx, tx, accountID, settlementID)
			if err != nil {
				return err
			}
			cancelled = st
			return nil
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Info("cancellation rejected", "account_id", accountID, "settlement_id", settlementID, "error", err)
		return fmt.Errorf("Cancel: %w", err)
	}

	log.Info("settlement cancelled",
		"settlement_id", settlementID,
		"account_id", accountID,
		"total_value", cancelled.TotalValue.String(),
		"lines", len(cancelled.Lines),
	)
	return nil
}

func (s *Service) cancelInTx(ctx context.Context, tx *sql.Tx, accountID, settlementID uuid.UUID) (*domain.Settlement, error) {
	st, err := s.settlements.GetForUpdate(ctx, tx, settlementID, accountID)
	if err != nil {
		return nil, fmt.Errorf("cancelInTx: %w", err)
	}

	account, err := s.accounts.GetForUpdate(ctx, tx, accountID)
	if err != nil {
		return nil, fmt.Errorf("cancelInTx: %w", err)
	}

	restock := pricing.Restock(st.Lines)
	ids := make([]uuid.UUID, 0, len(restock))
	for _, r := range restock {
		ids = append(ids, r.ItemID)
	}

	items, err := s.items.LockMany(ctx, tx, ids)
	if err != nil {
		return nil, fmt.Errorf("cancelInTx: %w", err)
	}

	for _, l := range st.Lines {
		if it, ok := items[l.ItemID]; !ok || !it.Settleable() {
			return nil, fmt.Errorf("cancelInTx: %w", &domain.LineError{Index: l.Position, ItemID: l.ItemID, Err: domain.ErrItemNotFound})
		}
	}

	for _, r := range restock {
		if err := s.items.AdjustQuantity(ctx, tx, r.ItemID, r.Quantity); err != nil {
			return nil, fmt.Errorf("cancelInTx: item %s: %w", r.ItemID, err)
		}
	}

	balanceAfter, err := s.accounts.AdjustBalance(ctx, tx, accountID, st.TotalValue, account.Version)
	if err != nil {
		return nil, fmt.Errorf("cancelInTx: %w", err)
	}

	now := s.now()
	if err := s.settlements.MarkCancelled(ctx, tx, st.ID, now); err != nil {
		return nil, fmt.Errorf("cancelInTx: %w", err)
	}
	st.Status = domain.SettlementStatusCancelled
	st.UpdatedAt = now
	st.CancelledAt = &now

	if err := s.recordLedger(ctx, tx, st, domain.EntryTypeCredit, st.TotalValue, balanceAfter, now); err != nil {
		return nil, fmt.Errorf("cancelInTx: %w", err)
	}

	if err := s.writeEvent(ctx, tx, st, domain.SettlementEventCancelled, now); err != nil {
		return nil, fmt.Errorf("cancelInTx: %w", err)
	}

	return st, nil
}
