package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// AccountStore owns all balance mutation. Debit's balance check and subtraction
// are one indivisible step; two concurrent debits against the same account must
// never both pass the check against a stale balance.
type AccountStore interface {
	GetBalance(ctx context.Context, accountID string) (decimal.Decimal, error)
	Debit(ctx context.Context, accountID string, amount decimal.Decimal) error
	Credit(ctx context.Context, accountID string, amount decimal.Decimal) error
}
