package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type EntryType string

const (
	EntryTypeDebit  EntryType = "debit"
	EntryTypeCredit EntryType = "credit"
)

// LedgerEntry records one balance movement caused by a settlement or its
// reversal. Amount is always positive; EntryType gives the direction.
type LedgerEntry struct {
	ID            uuid.UUID
	SettlementID  uuid.UUID
	AccountID     uuid.UUID
	EntryType     EntryType
	Amount        decimal.Decimal
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
	CreatedAt     time.Time
}
