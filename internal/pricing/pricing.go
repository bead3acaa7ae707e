package pricing

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/pointstore/internal/domain"
)

// Points are stored as NUMERIC(14,2).
const pointsScale = 2

var maxPoints = decimal.RequireFromString("999999999999.99")

// ParsePoints parses a non-negative point amount with at most two decimals.
func ParsePoints(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("ParsePoints: %q: %w", s, domain.ErrInvalidRequest)
	}
	if err := ValidatePoints(d); err != nil {
		return decimal.Zero, fmt.Errorf("ParsePoints: %w", err)
	}
	return d, nil
}

func ValidatePoints(d decimal.Decimal) error {
	if d.IsNegative() {
		return fmt.Errorf("ValidatePoints: negative amount %s: %w", d, domain.ErrInvalidRequest)
	}
	if !d.Equal(d.Truncate(pointsScale)) {
		return fmt.Errorf("ValidatePoints: more than %d decimals in %s: %w", pointsScale, d, domain.ErrInvalidRequest)
	}
	if d.GreaterThan(maxPoints) {
		return fmt.Errorf("ValidatePoints: %s out of range: %w", d, domain.ErrInvalidRequest)
	}
	return nil
}

// ValidateBasket checks the shape of a basket without touching storage.
func ValidateBasket(lines []domain.BasketLine) error {
	if len(lines) == 0 {
		return fmt.Errorf("ValidateBasket: %w", domain.ErrEmptyBasket)
	}
	for i, l := range lines {
		if l.Quantity <= 0 {
			return fmt.Errorf("ValidateBasket: %w", &domain.LineError{Index: i, ItemID: l.ItemID, Err: domain.ErrInvalidQuantity})
		}
	}
	return nil
}

// ItemIDs returns the distinct item ids of lines in first-seen order.
func ItemIDs(lines []domain.BasketLine) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(lines))
	ids := make([]uuid.UUID, 0, len(lines))
	for _, l := range lines {
		if _, ok := seen[l.ItemID]; ok {
			continue
		}
		seen[l.ItemID] = struct{}{}
		ids = append(ids, l.ItemID)
	}
	return ids
}

// Tally evaluates basket lines in order against a snapshot of locked items.
// Repeated items draw on the same remaining stock.
type Tally struct {
	items     map[uuid.UUID]*domain.Item
	remaining map[uuid.UUID]int64
	taken     map[uuid.UUID]int64
	order     []uuid.UUID
	lines     []domain.SettlementLine
}

func NewTally(items map[uuid.UUID]*domain.Item) *Tally {
	return &Tally{
		items:     items,
		remaining: make(map[uuid.UUID]int64, len(items)),
		taken:     make(map[uuid.UUID]int64, len(items)),
	}
}

// Add prices line index. It fails with ErrItemNotFound for a missing or
// inactive item and ErrInsufficientStock when the remaining stock is short.
func (t *Tally) Add(index int, line domain.BasketLine) error {
	it, ok := t.items[line.ItemID]
	if !ok || !it.Settleable() {
		return &domain.LineError{Index: index, ItemID: line.ItemID, Err: domain.ErrItemNotFound}
	}

	left, seen := t.remaining[line.ItemID]
	if !seen {
		left = it.AvailableQuantity
		t.order = append(t.order, line.ItemID)
	}
	if left < line.Quantity {
		return &domain.LineError{Index: index, ItemID: line.ItemID, Err: domain.ErrInsufficientStock}
	}

	t.remaining[line.ItemID] = left - line.Quantity
	t.taken[line.ItemID] += line.Quantity
	t.lines = append(t.lines, domain.SettlementLine{
		Position:  index,
		ItemID:    line.ItemID,
		Quantity:  line.Quantity,
		UnitPrice: it.UnitPrice,
	})
	return nil
}

func (t *Tally) Lines() []domain.SettlementLine { return t.lines }

// Total is the value of the lines added so far at their snapshot prices.
func (t *Tally) Total() decimal.Decimal { return Total(t.lines) }

// Taken returns the summed quantity per item in first-seen order.
func (t *Tally) Taken() []ItemQuantity {
	out := make([]ItemQuantity, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, ItemQuantity{ItemID: id, Quantity: t.taken[id]})
	}
	return out
}

type ItemQuantity struct {
	ItemID   uuid.UUID
	Quantity int64
}

// Total sums the snapshot subtotals of lines.
func Total(lines []domain.SettlementLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// Restock sums line quantities per item in first-seen order.
func Restock(lines []domain.SettlementLine) []ItemQuantity {
	idx := make(map[uuid.UUID]int, len(lines))
	var out []ItemQuantity
	for _, l := range lines {
		if i, ok := idx[l.ItemID]; ok {
			out[i].Quantity += l.Quantity
			continue
		}
		idx[l.ItemID] = len(out)
		out = append(out, ItemQuantity{ItemID: l.ItemID, Quantity: l.Quantity})
	}
	return out
}
