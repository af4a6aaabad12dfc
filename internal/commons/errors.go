package commons

import (
	"errors"
	"fmt"
)

var ErrAccountNotFound = errors.New("account not found")
var ErrTransactionNotFound = errors.New("transaction not found")
var ErrInsufficientBalance = errors.New("insufficient balance")
var ErrInvalidAmount = errors.New("amount must be greater than zero")
var ErrInvalidTransition = errors.New("invalid transaction status transition")
var ErrInvalidRequest = errors.New("invalid transfer request")
var ErrDuplicateReference = errors.New("transaction reference already exists")
var ErrTransferFailed = errors.New("transfer failed")

// CompensationError reports a transfer whose debit succeeded, whose credit failed,
// and whose compensating credit-back also failed. The transaction record stays
// PENDING; reconciliation tooling must repair it against the transaction log.
type CompensationError struct {
	TransactionID   string
	PostingErr      error
	CompensationErr error
}

func (e *CompensationError) Error() string {
	return fmt.Sprintf(
		"compensation failed for transaction %s: posting: %v, compensation: %v",
		e.TransactionID, e.PostingErr, e.CompensationErr,
	)
}

func (e *CompensationError) Unwrap() error {
	return e.CompensationErr
}
