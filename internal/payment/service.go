// Package payment manages per-user credit balances and settlement of
// completion and ingestion fees. Amounts are USD cents throughout.
package payment

import (
	"context"
	"errors"
)

// ErrInsufficientBalance is returned by Pay when the account cannot cover
// the charge. The caller keeps any already-delivered content and informs the
// user instead of rolling back the conversation.
var ErrInsufficientBalance = errors.New("insufficient balance")

// Service is the settlement collaborator the gateway charges through.
type Service interface {
	// Balance returns the available credit for an account in USD cents.
	Balance(ctx context.Context, accountID int64) (float64, error)

	// Pay debits amount cents from the account. Returns
	// ErrInsufficientBalance without debiting when funds do not cover it.
	// Whitelisted accounts always succeed and are never debited.
	Pay(ctx context.Context, accountID int64, amount float64, memo string) error

	// Credit adds amount cents to the account.
	Credit(ctx context.Context, accountID int64, amount float64, memo string) error

	// PriceToNative converts a USD-cent amount into the chat currency's
	// native units for user-facing fee display.
	PriceToNative(cents float64) float64

	// IsWhitelisted reports whether the account bypasses charging.
	IsWhitelisted(accountID int64) bool
}
