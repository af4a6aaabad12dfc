package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionStatus string

const (
	TransactionStatusPending  TransactionStatus = "PENDING"
	TransactionStatusExecuted TransactionStatus = "EXECUTED"
	TransactionStatusFailed   TransactionStatus = "FAILED"
	TransactionStatusClosed   TransactionStatus = "CLOSED"
)

func (s TransactionStatus) IsTerminal() bool {
	switch s {
	case TransactionStatusExecuted, TransactionStatusFailed, TransactionStatusClosed:
		return true
	}
	return false
}

// CanTransitionTo reports whether the single legal edge PENDING -> terminal applies.
// Re-applying the same terminal status is allowed so that retries after a crash are
// no-op successes.
func (s TransactionStatus) CanTransitionTo(next TransactionStatus) bool {
	if s == next && s.IsTerminal() {
		return true
	}
	return s == TransactionStatusPending && next.IsTerminal()
}

type TransactionRecord struct {
	ID            string
	Reference     *string
	FromAccountID string
	ToAccountID   string
	Amount        decimal.Decimal
	Status        TransactionStatus
	AuditPayload  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	ProcessedAt   *time.Time
}
