package repository_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/pointstore/internal/domain"
	"github.com/josh-kwaku/pointstore/internal/repository"
	"github.com/josh-kwaku/pointstore/internal/testutil"
)

func TestSettlementRepository_CreateStoresAllLines(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewSettlementRepository(db)
	ctx := context.Background()

	acct := testutil.SeedAccount(t, db, "lines@test.com", decimal.NewFromInt(100))
	x := testutil.SeedItem(t, db, "Middlemarch", 10, decimal.RequireFromString("4.50"))
	y := testutil.SeedItem(t, db, "Persuasion", 10, decimal.RequireFromString("3"))

	now := time.Now().UTC().Truncate(time.Microsecond)
	st := &domain.Settlement{
		ID:        uuid.New(),
		AccountID: acct.ID,
		Status:    domain.SettlementStatusActive,
		Lines: []domain.SettlementLine{
			{Position: 0, ItemID: x.ID, Quantity: 2, UnitPrice: x.UnitPrice},
			{Position: 1, ItemID: y.ID, Quantity: 1, UnitPrice: y.UnitPrice},
			{Position: 2, ItemID: x.ID, Quantity: 3, UnitPrice: x.UnitPrice},
		},
		TotalValue: decimal.RequireFromString("25.50"),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	require.NoError(t, inTx(t, db, func(tx *sql.Tx) error {
		return repo.Create(ctx, tx, st)
	}))

	got, err := repo.GetForAccount(ctx, st.ID, acct.ID)
	require.NoError(t, err)
	require.Len(t, got.Lines, 3)
	for i, l := range got.Lines {
		assert.Equal(t, i, l.Position)
		assert.Equal(t, st.Lines[i].ItemID, l.ItemID)
		assert.Equal(t, st.Lines[i].Quantity, l.Quantity)
		assert.True(t, st.Lines[i].UnitPrice.Equal(l.UnitPrice), "line %d: got %s", i, l.UnitPrice)
	}
	assert.True(t, st.TotalValue.Equal(got.TotalValue))
}

func TestLedgerRepository_ListBySettlement(t *testing.T) {
	db := testutil.SetupTestDB(t)
	settlements := repository.NewSettlementRepository(db)
	ledger := repository.NewLedgerRepository(db)
	ctx := context.Background()

	acct := testutil.SeedAccount(t, db, "ledger@test.com", decimal.NewFromInt(100))
	item := testutil.SeedItem(t, db, "Emma", 5, decimal.NewFromInt(20))

	now := time.Now().UTC()
	st := &domain.Settlement{
		ID:         uuid.New(),
		AccountID:  acct.ID,
		Status:     domain.SettlementStatusActive,
		Lines:      []domain.SettlementLine{{Position: 0, ItemID: item.ID, Quantity: 1, UnitPrice: item.UnitPrice}},
		TotalValue: decimal.NewFromInt(20),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	require.NoError(t, inTx(t, db, func(tx *sql.Tx) error {
		if err := settlements.Create(ctx, tx, st); err != nil {
			return err
		}
		if err := ledger.Create(ctx, tx, &domain.LedgerEntry{
			ID: uuid.New(), SettlementID: st.ID, AccountID: acct.ID, EntryType: domain.EntryTypeDebit,
			Amount: decimal.NewFromInt(20), BalanceBefore: decimal.NewFromInt(100), BalanceAfter: decimal.NewFromInt(80),
			CreatedAt: now,
		}); err != nil {
			return err
		}
		return ledger.Create(ctx, tx, &domain.LedgerEntry{
			ID: uuid.New(), SettlementID: st.ID, AccountID: acct.ID, EntryType: domain.EntryTypeCredit,
			Amount: decimal.NewFromInt(20), BalanceBefore: decimal.NewFromInt(80), BalanceAfter: decimal.NewFromInt(100),
			CreatedAt: now.Add(time.Second),
		})
	}))

	entries, err := ledger.ListBySettlement(ctx, st.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.EntryTypeDebit, entries[0].EntryType)
	assert.Equal(t, domain.EntryTypeCredit, entries[1].EntryType)

	none, err := ledger.ListBySettlement(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, none)
}
