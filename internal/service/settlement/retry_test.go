package settlement

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/pointstore/internal/domain"
)

type fakeTx struct {
	calls int
}

func (f *fakeTx) RunInTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	f.calls++
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(nil)
}

type fakeAccounts struct {
	account     *domain.Account
	adjustErrs  []error
	adjustCalls int
}

func (f *fakeAccounts) GetForUpdate(_ context.Context, _ *sql.Tx, id uuid.UUID) (*domain.Account, error) {
	if f.account == nil || f.account.ID != id {
		return nil, domain.ErrAccountNotFound
	}
	a := *f.account
	return &a, nil
}

func (f *fakeAccounts) AdjustBalance(_ context.Context, _ *sql.Tx, _ uuid.UUID, delta decimal.Decimal, _ int64) (decimal.Decimal, error) {
	f.adjustCalls++
	if len(f.adjustErrs) > 0 {
		err := f.adjustErrs[0]
		f.adjustErrs = f.adjustErrs[1:]
		if err != nil {
			return decimal.Zero, err
		}
	}
	return f.account.Balance.Add(delta), nil
}

type fakeItems struct {
	items map[uuid.UUID]*domain.Item
}

func (f *fakeItems) LockMany(_ context.Context, _ *sql.Tx, ids []uuid.UUID) (map[uuid.UUID]*domain.Item, error) {
	out := make(map[uuid.UUID]*domain.Item, len(ids))
	for _, id := range ids {
		if it, ok := f.items[id]; ok {
			c := *it
			out[id] = &c
		}
	}
	return out, nil
}

func (f *fakeItems) AdjustQuantity(context.Context, *sql.Tx, uuid.UUID, int64) error { return nil }

type fakeSettlements struct{}

func (fakeSettlements) Create(context.Context, *sql.Tx, *domain.Settlement) error { return nil }
func (fakeSettlements) GetForUpdate(context.Context, *sql.Tx, uuid.UUID, uuid.UUID) (*domain.Settlement, error) {
	return nil, domain.ErrSettlementNotFound
}
func (fakeSettlements) GetForAccount(context.Context, uuid.UUID, uuid.UUID) (*domain.Settlement, error) {
	return nil, domain.ErrSettlementNotFound
}
func (fakeSettlements) ListForAccount(context.Context, uuid.UUID, int, int) ([]domain.Settlement, int, error) {
	return nil, 0, nil
}
func (fakeSettlements) MarkCancelled(context.Context, *sql.Tx, uuid.UUID, time.Time) error { return nil }

type fakeEvents struct{}

func (fakeEvents) Create(context.Context, *sql.Tx, *domain.SettlementEvent) error { return nil }

type fakeLedger struct{}

func (fakeLedger) Create(context.Context, *sql.Tx, *domain.LedgerEntry) error { return nil }

func (fakeLedger) ListBySettlement(context.Context, uuid.UUID) ([]domain.LedgerEntry, error) {
	return nil, nil
}

func (fakeLedger) ListForAccount(context.Context, uuid.UUID, int, int) ([]domain.LedgerEntry, int, error) {
	return nil, 0, nil
}

func newFakeService(balance string, adjustErrs ...error) (*Service, *fakeTx, *fakeAccounts, uuid.UUID) {
	acct := &domain.Account{ID: uuid.New(), Balance: decimal.RequireFromString(balance)}
	item := &domain.Item{ID: uuid.New(), AvailableQuantity: 10, UnitPrice: decimal.NewFromInt(10), Active: true}

	tx := &fakeTx{}
	accounts := &fakeAccounts{account: acct, adjustErrs: adjustErrs}
	svc := NewService(
		tx,
		accounts,
		&fakeItems{items: map[uuid.UUID]*domain.Item{item.ID: item}},
		fakeSettlements{},
		fakeEvents{},
		fakeLedger{},
		Config{MaxRetries: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond},
	)
	return svc, tx, accounts, item.ID
}

func TestSettle_RetriesVersionConflict(t *testing.T) {
	svc, tx, accounts, itemID := newFakeService("100", domain.ErrVersionConflict)
	ctx := context.Background()

	st, err := svc.Settle(ctx, accounts.account.ID, []domain.BasketLine{{ItemID: itemID, Quantity: 2}})
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(20).Equal(st.TotalValue))
	assert.Equal(t, 2, tx.calls)
}

func TestSettle_AbortMapping(t *testing.T) {
	deadlock := &pq.Error{Code: "40P01", Message: "deadlock detected"}

	tests := []struct {
		name       string
		adjustErrs []error
		wantCalls  int
		wantErrIs  error
	}{
		{
			name:       "retries exhausted",
			adjustErrs: []error{deadlock, deadlock, deadlock, deadlock, deadlock},
			wantCalls:  4,
			wantErrIs:  deadlock,
		},
		{
			name:       "storage failure is not retried",
			adjustErrs: []error{sql.ErrConnDone},
			wantCalls:  1,
			wantErrIs:  sql.ErrConnDone,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc, tx, accounts, itemID := newFakeService("100", tc.adjustErrs...)

			_, err := svc.Settle(context.Background(), accounts.account.ID, []domain.BasketLine{{ItemID: itemID, Quantity: 1}})
			require.ErrorIs(t, err, domain.ErrSettlementAborted)
			assert.ErrorIs(t, err, tc.wantErrIs)
			assert.Equal(t, tc.wantCalls, tx.calls)
		})
	}
}

func TestSettle_OutcomesAreNotRetriedOrAborted(t *testing.T) {
	svc, tx, accounts, itemID := newFakeService("5")

	_, err := svc.Settle(context.Background(), accounts.account.ID, []domain.BasketLine{{ItemID: itemID, Quantity: 1}})
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.False(t, errors.Is(err, domain.ErrSettlementAborted))
	assert.Equal(t, 1, tx.calls)
	assert.Equal(t, 0, accounts.adjustCalls)
}

func TestSettle_CancelledContextAborts(t *testing.T) {
	svc, _, accounts, itemID := newFakeService("100")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Settle(ctx, accounts.account.ID, []domain.BasketLine{{ItemID: itemID, Quantity: 1}})
	require.ErrorIs(t, err, domain.ErrSettlementAborted)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSettle_InvalidBasketNeverOpensTransaction(t *testing.T) {
	svc, tx, accounts, itemID := newFakeService("100")

	_, err := svc.Settle(context.Background(), accounts.account.ID, []domain.BasketLine{{ItemID: itemID, Quantity: -1}})
	require.ErrorIs(t, err, domain.ErrInvalidQuantity)
	assert.Equal(t, 0, tx.calls)
}

func TestCancel_UnknownSettlement(t *testing.T) {
	svc, tx, accounts, _ := newFakeService("100")

	err := svc.Cancel(context.Background(), accounts.account.ID, uuid.New())
	require.ErrorIs(t, err, domain.ErrSettlementNotFound)
	assert.NotErrorIs(t, err, domain.ErrSettlementAborted)
	assert.Equal(t, 1, tx.calls)
}
