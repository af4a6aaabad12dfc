package service_interfaces

import (
	"context"

	"github.com/shopspring/decimal"
)

type AccountService interface {
	GetBalance(ctx context.Context, accountID string) (decimal.Decimal, error)
	Deposit(ctx context.Context, accountID string, amount decimal.Decimal) error
	Withdraw(ctx context.Context, accountID string, amount decimal.Decimal) error
}
