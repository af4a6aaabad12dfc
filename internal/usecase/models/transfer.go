package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/api-sage/wallet-ledger-core/internal/commons"
	"github.com/api-sage/wallet-ledger-core/internal/domain"
)

type TransferRequest struct {
	FromAccountID string          `json:"fromAccountId"`
	ToAccountID   string          `json:"toAccountId"`
	Amount        decimal.Decimal `json:"amount"`
	// Reference is an optional caller-supplied idempotency key. Resubmitting a
	// request with a known reference returns the recorded outcome instead of
	// opening a new transfer.
	Reference string `json:"reference,omitempty"`
	Narration string `json:"narration,omitempty"`
}

func (r TransferRequest) Validate() error {
	var errs []string

	if strings.TrimSpace(r.FromAccountID) == "" {
		errs = append(errs, "fromAccountId is required")
	}
	if strings.TrimSpace(r.ToAccountID) == "" {
		errs = append(errs, "toAccountId is required")
	}
	if strings.TrimSpace(r.FromAccountID) != "" &&
		strings.TrimSpace(r.FromAccountID) == strings.TrimSpace(r.ToAccountID) {
		errs = append(errs, "fromAccountId and toAccountId cannot be the same")
	}
	if r.Amount.LessThanOrEqual(decimal.Zero) {
		errs = append(errs, "amount must be greater than zero")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", commons.ErrInvalidRequest, strings.Join(errs, "; "))
	}

	return nil
}

type TransferResult struct {
	TransactionID string                   `json:"transactionId"`
	Reference     string                   `json:"reference,omitempty"`
	FromAccountID string                   `json:"fromAccountId"`
	ToAccountID   string                   `json:"toAccountId"`
	Amount        decimal.Decimal          `json:"amount"`
	Status        domain.TransactionStatus `json:"status"`
	ProcessedAt   *time.Time               `json:"processedAt,omitempty"`
}

// StuckTransaction is a PENDING record that outlived the expected saga duration,
// annotated with what a reconciliation probe could learn about its accounts.
type StuckTransaction struct {
	Record             domain.TransactionRecord
	FromAccountMissing bool
	ToAccountMissing   bool
}
