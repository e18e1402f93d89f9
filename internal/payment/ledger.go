package payment

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	. "github.com/onegate/onegate/internal/logging"
)

// Ledger is a sqlite-backed credit ledger implementing Service. Every debit
// and credit is a row; balances are materialized per account and updated in
// the same transaction as the entry.
type Ledger struct {
	db         *sql.DB
	whitelist  map[int64]bool
	nativeRate float64 // native currency units per USD cent
}

const ledgerSchema = `
CREATE TABLE IF NOT EXISTS accounts (
    account_id INTEGER PRIMARY KEY,
    balance REAL NOT NULL DEFAULT 0,
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS entries (
    id INTEGER PRIMARY KEY,
    uuid TEXT NOT NULL UNIQUE,
    account_id INTEGER NOT NULL,
    amount REAL NOT NULL,
    memo TEXT,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entries_account ON entries(account_id);
CREATE INDEX IF NOT EXISTS idx_entries_created ON entries(created_at DESC);
`

// NewLedger opens (or creates) the ledger database at path. whitelist lists
// account ids that are never charged. nativeRate is the exchange rate from
// USD cents to the chat currency's native units; zero means 1:1.
func NewLedger(path string, whitelist []int64, nativeRate float64) (*Ledger, error) {
	if nativeRate == 0 {
		nativeRate = 1
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}

	if _, err := db.Exec(ledgerSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init ledger schema: %w", err)
	}

	wl := make(map[int64]bool, len(whitelist))
	for _, id := range whitelist {
		wl[id] = true
	}

	L_info("payment: ledger opened", "path", path, "whitelisted", len(whitelist))
	return &Ledger{db: db, whitelist: wl, nativeRate: nativeRate}, nil
}

// PriceToNative converts a USD-cent amount into native currency units at the
// configured rate.
func (l *Ledger) PriceToNative(cents float64) float64 {
	return cents * l.nativeRate
}

// Close releases the database handle.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// IsWhitelisted reports whether the account bypasses charging.
func (l *Ledger) IsWhitelisted(accountID int64) bool {
	return l.whitelist[accountID]
}

// Balance returns the account's available credit in cents. Unknown accounts
// have a zero balance.
func (l *Ledger) Balance(ctx context.Context, accountID int64) (float64, error) {
	var balance float64
	err := l.db.QueryRowContext(ctx,
		`SELECT balance FROM accounts WHERE account_id = ?`, accountID).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query balance: %w", err)
	}
	return balance, nil
}

// Pay debits amount cents. Whitelisted accounts short-circuit to success.
func (l *Ledger) Pay(ctx context.Context, accountID int64, amount float64, memo string) error {
	if l.whitelist[accountID] {
		L_debug("payment: whitelisted, skipping charge", "account", accountID, "amount", amount)
		return nil
	}
	if amount <= 0 {
		return nil
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin pay tx: %w", err)
	}
	defer tx.Rollback()

	var balance float64
	err = tx.QueryRowContext(ctx,
		`SELECT balance FROM accounts WHERE account_id = ?`, accountID).Scan(&balance)
	if err == sql.ErrNoRows {
		return ErrInsufficientBalance
	}
	if err != nil {
		return fmt.Errorf("query balance: %w", err)
	}

	if balance < amount {
		L_info("payment: insufficient balance", "account", accountID, "balance", balance, "amount", amount)
		return ErrInsufficientBalance
	}

	if err := l.applyEntry(ctx, tx, accountID, -amount, memo); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit pay tx: %w", err)
	}

	L_debug("payment: charged", "account", accountID, "amount", amount, "memo", memo)
	return nil
}

// Credit adds amount cents to the account, creating it if needed.
func (l *Ledger) Credit(ctx context.Context, accountID int64, amount float64, memo string) error {
	if amount <= 0 {
		return nil
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin credit tx: %w", err)
	}
	defer tx.Rollback()

	if err := l.applyEntry(ctx, tx, accountID, amount, memo); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit credit tx: %w", err)
	}

	L_debug("payment: credited", "account", accountID, "amount", amount, "memo", memo)
	return nil
}

func (l *Ledger) applyEntry(ctx context.Context, tx *sql.Tx, accountID int64, amount float64, memo string) error {
	now := time.Now().Format(time.RFC3339)

	_, err := tx.ExecContext(ctx, `
		INSERT INTO accounts (account_id, balance, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(account_id) DO UPDATE SET balance = balance + excluded.balance, updated_at = excluded.updated_at
	`, accountID, amount, now)
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO entries (uuid, account_id, amount, memo, created_at) VALUES (?, ?, ?, ?, ?)
	`, uuid.NewString(), accountID, amount, memo, now)
	if err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}
	return nil
}
