package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Item struct {
	ID                uuid.UUID
	Title             string
	Author            string
	CoverURL          string
	Tag               string
	AvailableQuantity int64
	UnitPrice         decimal.Decimal
	Active            bool
	Version           int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Settleable reports whether the item can take part in a settlement or a reversal.
func (i *Item) Settleable() bool {
	return i != nil && i.Active
}
