package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/api-sage/wallet-ledger-core/internal/commons"
	"github.com/api-sage/wallet-ledger-core/internal/domain"
	"github.com/api-sage/wallet-ledger-core/internal/logger"
)

type AccountStore struct {
	db *sql.DB
}

var _ domain.AccountStore = (*AccountStore)(nil)

func NewAccountStore(db *sql.DB) *AccountStore {
	return &AccountStore{db: db}
}

// CreateAccount provisions a new account row. Account creation is not part of the
// ledger core contract; this exists for setup tooling and tests.
func (s *AccountStore) CreateAccount(ctx context.Context, account domain.Account) (domain.Account, error) {
	const query = `
INSERT INTO accounts (balance)
VALUES ($1)
RETURNING id, created_at, updated_at`

	var (
		id        string
		createdAt time.Time
		updatedAt time.Time
	)

	if err := s.db.QueryRowContext(ctx, query, account.Balance.StringFixed(2)).
		Scan(&id, &createdAt, &updatedAt); err != nil {
		return domain.Account{}, fmt.Errorf("create account: %w", err)
	}

	account.ID = id
	account.CreatedAt = createdAt
	account.UpdatedAt = updatedAt

	return account, nil
}

func (s *AccountStore) GetBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	const query = `SELECT balance FROM accounts WHERE id = $1`

	var raw string
	if err := s.db.QueryRowContext(ctx, query, accountID).Scan(&raw); err != nil {
		if err == sql.ErrNoRows {
			return decimal.Zero, commons.ErrAccountNotFound
		}
		return decimal.Zero, fmt.Errorf("get balance: %w", err)
	}

	balance, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse balance for account %s: %w", accountID, err)
	}

	return balance, nil
}

// Debit subtracts amount in a single conditional UPDATE. The balance predicate in
// the WHERE clause makes the check-and-subtract indivisible; concurrent debits
// against the same row serialize on the row lock and re-evaluate the predicate.
func (s *AccountStore) Debit(ctx context.Context, accountID string, amount decimal.Decimal) error {
	logger.Info("account store debit", logger.Fields{
		"accountId": accountID,
		"amount":    amount,
	})

	if amount.LessThanOrEqual(decimal.Zero) {
		return commons.ErrInvalidAmount
	}

	const query = `
UPDATE accounts
SET balance = balance - $2::numeric,
    updated_at = NOW()
WHERE id = $1
  AND balance >= $2::numeric`

	result, err := s.db.ExecContext(ctx, query, accountID, amount.StringFixed(2))
	if err != nil {
		logger.Error("account store debit failed", err, logger.Fields{
			"accountId": accountID,
		})
		return fmt.Errorf("debit account: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("debit account rows affected: %w", err)
	}
	if rows == 0 {
		// Zero rows means the account is missing or the balance check failed.
		if _, err := s.GetBalance(ctx, accountID); err != nil {
			return err
		}
		logger.Info("account store debit rejected", logger.Fields{
			"accountId": accountID,
			"amount":    amount,
		})
		return commons.ErrInsufficientBalance
	}

	return nil
}

func (s *AccountStore) Credit(ctx context.Context, accountID string, amount decimal.Decimal) error {
	logger.Info("account store credit", logger.Fields{
		"accountId": accountID,
		"amount":    amount,
	})

	if amount.LessThanOrEqual(decimal.Zero) {
		return commons.ErrInvalidAmount
	}

	const query = `
UPDATE accounts
SET balance = balance + $2::numeric,
    updated_at = NOW()
WHERE id = $1`

	result, err := s.db.ExecContext(ctx, query, accountID, amount.StringFixed(2))
	if err != nil {
		logger.Error("account store credit failed", err, logger.Fields{
			"accountId": accountID,
		})
		return fmt.Errorf("credit account: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("credit account rows affected: %w", err)
	}
	if rows == 0 {
		return commons.ErrAccountNotFound
	}

	return nil
}

// TotalBalance sums every account balance. Used by reconciliation to audit the
// conservation invariant.
func (s *AccountStore) TotalBalance(ctx context.Context) (decimal.Decimal, error) {
	const query = `SELECT COALESCE(SUM(balance), 0) FROM accounts`

	var raw string
	if err := s.db.QueryRowContext(ctx, query).Scan(&raw); err != nil {
		return decimal.Zero, fmt.Errorf("total balance: %w", err)
	}

	total, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse total balance: %w", err)
	}

	return total, nil
}
