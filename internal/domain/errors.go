package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrAccountNotFound    = errors.New("account not found")
	ErrEmptyBasket        = errors.New("basket must contain at least one line")
	ErrInvalidQuantity    = errors.New("quantity must be at least 1")
	ErrItemNotFound       = errors.New("item not found")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrSettlementNotFound = errors.New("settlement not found")
	ErrSettlementAborted  = errors.New("settlement aborted")
	ErrVersionConflict    = errors.New("optimistic lock conflict")
	ErrAccountExists      = errors.New("account already exists for this email")
	ErrItemExists         = errors.New("item already exists with this title")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// LineError ties a basket or settlement line failure to its position and item.
type LineError struct {
	Index  int
	ItemID uuid.UUID
	Err    error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d (item %s): %v", e.Index, e.ItemID, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }
