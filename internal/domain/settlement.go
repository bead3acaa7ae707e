package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type SettlementStatus string

const (
	SettlementStatusActive    SettlementStatus = "active"
	SettlementStatusCancelled SettlementStatus = "cancelled"
)

type BasketLine struct {
	ItemID   uuid.UUID
	Quantity int64
}

// SettlementLine snapshots the item price at settlement time. Reversal always
// uses these values, never the live catalog.
type SettlementLine struct {
	Position  int
	ItemID    uuid.UUID
	Quantity  int64
	UnitPrice decimal.Decimal
}

func (l SettlementLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(l.Quantity))
}

type Settlement struct {
	ID          uuid.UUID
	AccountID   uuid.UUID
	Status      SettlementStatus
	Lines       []SettlementLine
	TotalValue  decimal.Decimal
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CancelledAt *time.Time
}
