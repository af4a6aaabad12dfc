package services

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/api-sage/wallet-ledger-core/internal/commons"
	"github.com/api-sage/wallet-ledger-core/internal/domain"
	"github.com/api-sage/wallet-ledger-core/internal/logger"
)

// AccountService exposes single-account wallet operations. All mutation goes
// through the AccountStore's atomic primitives.
type AccountService struct {
	accountStore domain.AccountStore
}

func NewAccountService(accountStore domain.AccountStore) *AccountService {
	return &AccountService{accountStore: accountStore}
}

func (s *AccountService) GetBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(accountID)
	if trimmed == "" {
		return decimal.Zero, commons.ErrAccountNotFound
	}

	return s.accountStore.GetBalance(ctx, trimmed)
}

func (s *AccountService) Deposit(ctx context.Context, accountID string, amount decimal.Decimal) error {
	logger.Info("account service deposit", logger.Fields{
		"accountId": accountID,
		"amount":    amount,
	})

	if amount.LessThanOrEqual(decimal.Zero) {
		return commons.ErrInvalidAmount
	}

	return s.accountStore.Credit(ctx, strings.TrimSpace(accountID), amount)
}

func (s *AccountService) Withdraw(ctx context.Context, accountID string, amount decimal.Decimal) error {
	logger.Info("account service withdraw", logger.Fields{
		"accountId": accountID,
		"amount":    amount,
	})

	if amount.LessThanOrEqual(decimal.Zero) {
		return commons.ErrInvalidAmount
	}

	return s.accountStore.Debit(ctx, strings.TrimSpace(accountID), amount)
}
