package payment

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func setupLedger(t *testing.T, whitelist []int64) *Ledger {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.db")
	l, err := NewLedger(path, whitelist, 0)
	if err != nil {
		t.Fatalf("NewLedger failed: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestPriceToNative(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	l, err := NewLedger(path, nil, 3)
	if err != nil {
		t.Fatalf("NewLedger failed: %v", err)
	}
	t.Cleanup(func() { l.Close() })

	if got := l.PriceToNative(2); got != 6 {
		t.Errorf("PriceToNative(2) = %v, want 6", got)
	}

	// Zero rate defaults to 1:1.
	def := setupLedger(t, nil)
	if got := def.PriceToNative(2.5); got != 2.5 {
		t.Errorf("PriceToNative(2.5) = %v, want 2.5", got)
	}
}

func TestCreditAndBalance(t *testing.T) {
	l := setupLedger(t, nil)
	ctx := context.Background()

	if err := l.Credit(ctx, 100, 50, "top up"); err != nil {
		t.Fatalf("Credit failed: %v", err)
	}
	if err := l.Credit(ctx, 100, 25, "top up"); err != nil {
		t.Fatalf("Credit failed: %v", err)
	}

	balance, err := l.Balance(ctx, 100)
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if balance != 75 {
		t.Errorf("balance = %v, want 75", balance)
	}
}

func TestUnknownAccountBalanceIsZero(t *testing.T) {
	l := setupLedger(t, nil)

	balance, err := l.Balance(context.Background(), 999)
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if balance != 0 {
		t.Errorf("balance = %v, want 0", balance)
	}
}

func TestPayDebitsBalance(t *testing.T) {
	l := setupLedger(t, nil)
	ctx := context.Background()

	if err := l.Credit(ctx, 200, 10, "top up"); err != nil {
		t.Fatalf("Credit failed: %v", err)
	}
	if err := l.Pay(ctx, 200, 4, "completion"); err != nil {
		t.Fatalf("Pay failed: %v", err)
	}

	balance, _ := l.Balance(ctx, 200)
	if balance != 6 {
		t.Errorf("balance = %v, want 6", balance)
	}
}

func TestPayInsufficientBalance(t *testing.T) {
	l := setupLedger(t, nil)
	ctx := context.Background()

	// Unknown account.
	if err := l.Pay(ctx, 300, 1, "completion"); !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("Pay on unknown account = %v, want ErrInsufficientBalance", err)
	}

	// Known account, not enough credit.
	if err := l.Credit(ctx, 300, 2, "top up"); err != nil {
		t.Fatalf("Credit failed: %v", err)
	}
	if err := l.Pay(ctx, 300, 5, "completion"); !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("Pay beyond balance = %v, want ErrInsufficientBalance", err)
	}

	// The failed debit must not touch the balance.
	balance, _ := l.Balance(ctx, 300)
	if balance != 2 {
		t.Errorf("balance = %v, want 2", balance)
	}
}

func TestPayZeroOrNegativeIsNoop(t *testing.T) {
	l := setupLedger(t, nil)
	ctx := context.Background()

	if err := l.Pay(ctx, 400, 0, "free"); err != nil {
		t.Errorf("Pay(0) = %v, want nil", err)
	}
	if err := l.Pay(ctx, 400, -1, "refund-shaped"); err != nil {
		t.Errorf("Pay(-1) = %v, want nil", err)
	}
}

func TestWhitelistBypassesCharges(t *testing.T) {
	l := setupLedger(t, []int64{500})
	ctx := context.Background()

	if !l.IsWhitelisted(500) {
		t.Fatal("expected account 500 whitelisted")
	}
	if l.IsWhitelisted(501) {
		t.Fatal("account 501 must not be whitelisted")
	}

	// No credit, yet charging succeeds and records nothing.
	if err := l.Pay(ctx, 500, 100, "completion"); err != nil {
		t.Errorf("whitelisted Pay = %v, want nil", err)
	}
	balance, _ := l.Balance(ctx, 500)
	if balance != 0 {
		t.Errorf("balance = %v, want 0 (untouched)", balance)
	}
}
