package settlement

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/pointstore/internal/domain"
)

type eventLine struct {
	ItemID    uuid.UUID `json:"item_id"`
	Quantity  int64     `json:"quantity"`
	UnitPrice string    `json:"unit_price"`
}

type eventPayload struct {
	SettlementID uuid.UUID   `json:"settlement_id"`
	AccountID    uuid.UUID   `json:"account_id"`
	Status       string      `json:"status"`
	TotalValue   string      `json:"total_value"`
	Lines        []eventLine `json:"lines"`
	OccurredAt   time.Time   `json:"occurred_at"`
}

func (s *Service) writeEvent(ctx context.Context, tx *sql.Tx, st *domain.Settlement, eventType domain.SettlementEventType, at time.Time) error {
	payload := eventPayload{
		SettlementID: st.ID,
		AccountID:    st.AccountID,
		Status:       string(st.Status),
		TotalValue:   st.TotalValue.StringFixed(2),
		Lines:        make([]eventLine, 0, len(st.Lines)),
		OccurredAt:   at,
	}
	for _, l := range st.Lines {
		payload.Lines = append(payload.Lines, eventLine{
			ItemID:    l.ItemID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice.StringFixed(2),
		})
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("writeEvent: marshal: %w", err)
	}

	event := &domain.SettlementEvent{
		ID:           uuid.New(),
		SettlementID: st.ID,
		EventType:    eventType,
		Payload:      raw,
		Status:       domain.SettlementEventStatusPending,
		CreatedAt:    at,
	}
	if err := s.events.Create(ctx, tx, event); err != nil {
		return fmt.Errorf("writeEvent: %w", err)
	}
	return nil
}

// recordLedger stores the balance movement of st. balanceAfter is the
// balance returned by the guarded update.
func (s *Service) recordLedger(ctx context.Context, tx *sql.Tx, st *domain.Settlement, entryType domain.EntryType, amount, balanceAfter decimal.Decimal, at time.Time) error {
	before := balanceAfter.Add(amount)
	if entryType == domain.EntryTypeCredit {
		before = balanceAfter.Sub(amount)
	}

	entry := &domain.LedgerEntry{
		ID:            uuid.New(),
		SettlementID:  st.ID,
		AccountID:     st.AccountID,
		EntryType:     entryType,
		Amount:        amount,
		BalanceBefore: before,
		BalanceAfter:  balanceAfter,
		CreatedAt:     at,
	}
	if err := s.ledger.Create(ctx, tx, entry); err != nil {
		return fmt.Errorf("recordLedger: %w", err)
	}
	return nil
}
