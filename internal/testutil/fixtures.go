package testutil

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/josh-kwaku/pointstore/internal/domain"
)

const TestPassword = "password123"

func SeedAccount(t *testing.T, db *sql.DB, email string, balance decimal.Decimal) *domain.Account {
	t.Helper()
	return SeedAccountWithRole(t, db, email, balance, domain.RoleUser)
}

func SeedAccountWithRole(t *testing.T, db *sql.DB, email string, balance decimal.Decimal, role domain.Role) *domain.Account {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(TestPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	a := &domain.Account{
		ID:           uuid.New(),
		Email:        email,
		Name:         "Test Reader",
		PasswordHash: string(hash),
		Role:         role,
		Balance:      balance,
		CreatedAt:    time.Now().UTC(),
	}

	_, err = db.Exec(
		`INSERT INTO accounts (id, email, name, password_hash, role, balance, version, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.Email, a.Name, a.PasswordHash, a.Role, a.Balance, a.Version, a.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed account %s: %v", email, err)
	}
	return a
}

func SeedItem(t *testing.T, db *sql.DB, title string, quantity int64, price decimal.Decimal) *domain.Item {
	t.Helper()

	now := time.Now().UTC()
	it := &domain.Item{
		ID:                uuid.New(),
		Title:             title,
		Author:            "Test Author",
		Tag:               "fiction",
		AvailableQuantity: quantity,
		UnitPrice:         price,
		Active:            true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	_, err := db.Exec(
		`INSERT INTO items (id, title, author, cover_url, tag, available_quantity, unit_price, active, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		it.ID, it.Title, it.Author, it.CoverURL, it.Tag, it.AvailableQuantity,
		it.UnitPrice, it.Active, it.Version, it.CreatedAt, it.UpdatedAt,
	)
	if err != nil {
		t.Fatalf("seed item %s: %v", title, err)
	}
	return it
}

func GetItemQuantity(t *testing.T, db *sql.DB, itemID uuid.UUID) int64 {
	t.Helper()

	var qty int64
	err := db.QueryRow(`SELECT available_quantity FROM items WHERE id = $1`, itemID).Scan(&qty)
	if err != nil {
		t.Fatalf("get item quantity %s: %v", itemID, err)
	}
	return qty
}

func GetBalance(t *testing.T, db *sql.DB, accountID uuid.UUID) decimal.Decimal {
	t.Helper()

	var balance decimal.Decimal
	err := db.QueryRow(`SELECT balance FROM accounts WHERE id = $1`, accountID).Scan(&balance)
	if err != nil {
		t.Fatalf("get balance %s: %v", accountID, err)
	}
	return balance
}

func SetItemPrice(t *testing.T, db *sql.DB, itemID uuid.UUID, price decimal.Decimal) {
	t.Helper()

	if _, err := db.Exec(`UPDATE items SET unit_price = $1 WHERE id = $2`, price, itemID); err != nil {
		t.Fatalf("set item price %s: %v", itemID, err)
	}
}

func DeleteItem(t *testing.T, db *sql.DB, itemID uuid.UUID) {
	t.Helper()

	if _, err := db.Exec(`DELETE FROM items WHERE id = $1`, itemID); err != nil {
		t.Fatalf("delete item %s: %v", itemID, err)
	}
}

func CountSettlements(t *testing.T, db *sql.DB, accountID uuid.UUID) int {
	t.Helper()

	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM settlements WHERE account_id = $1`, accountID).Scan(&count)
	if err != nil {
		t.Fatalf("count settlements for %s: %v", accountID, err)
	}
	return count
}

func CountSettlementEvents(t *testing.T, db *sql.DB, settlementID uuid.UUID, status domain.SettlementEventStatus) int {
	t.Helper()

	var count int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM settlement_events WHERE settlement_id = $1 AND status = $2`,
		settlementID, status,
	).Scan(&count)
	if err != nil {
		t.Fatalf("count settlement events for %s: %v", settlementID, err)
	}
	return count
}
