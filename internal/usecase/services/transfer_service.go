package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/api-sage/wallet-ledger-core/internal/commons"
	"github.com/api-sage/wallet-ledger-core/internal/domain"
	"github.com/api-sage/wallet-ledger-core/internal/logger"
	"github.com/api-sage/wallet-ledger-core/internal/usecase/models"
)

// TransferService coordinates a transfer as a short saga: durable intent first,
// then debit, then credit, then finalize. A credit failure after a successful
// debit is compensated by crediting the amount back before the record is failed.
type TransferService struct {
	accountStore   domain.AccountStore
	transactionLog domain.TransactionLog
}

func NewTransferService(accountStore domain.AccountStore, transactionLog domain.TransactionLog) *TransferService {
	return &TransferService{
		accountStore:   accountStore,
		transactionLog: transactionLog,
	}
}

func (s *TransferService) Transfer(ctx context.Context, req models.TransferRequest) (models.TransferResult, error) {
	logger.Info("transfer service request", logger.Fields{
		"payload": logger.SanitizePayload(req),
	})

	if err := req.Validate(); err != nil {
		return models.TransferResult{}, err
	}

	fromAccountID := strings.TrimSpace(req.FromAccountID)
	toAccountID := strings.TrimSpace(req.ToAccountID)
	reference := strings.TrimSpace(req.Reference)

	if reference != "" {
		existing, err := s.transactionLog.GetByReference(ctx, reference)
		if err == nil {
			logger.Info("transfer service reference replay", logger.Fields{
				"transactionId": existing.ID,
				"reference":     reference,
				"status":        existing.Status,
			})
			return mapRecordToResult(existing), resultError(existing)
		}
		if !errors.Is(err, commons.ErrTransactionNotFound) {
			return models.TransferResult{}, fmt.Errorf("lookup transfer reference: %w", err)
		}
	}

	auditPayload := ""
	if b, err := json.Marshal(logger.SanitizePayload(req)); err == nil {
		auditPayload = string(b)
	}

	record := domain.TransactionRecord{
		FromAccountID: fromAccountID,
		ToAccountID:   toAccountID,
		Amount:        req.Amount,
		AuditPayload:  auditPayload,
	}
	if reference != "" {
		record.Reference = &reference
	}

	created, err := s.transactionLog.Create(ctx, record)
	if errors.Is(err, commons.ErrDuplicateReference) {
		// Lost the race against a concurrent resubmission; its record is the
		// authoritative one.
		existing, getErr := s.transactionLog.GetByReference(ctx, reference)
		if getErr != nil {
			return models.TransferResult{}, fmt.Errorf("resolve duplicate reference: %w", getErr)
		}
		return mapRecordToResult(existing), resultError(existing)
	}
	if err != nil {
		return models.TransferResult{}, fmt.Errorf("record transfer intent: %w", err)
	}

	if err := s.accountStore.Debit(ctx, fromAccountID, req.Amount); err != nil {
		if errors.Is(err, commons.ErrInsufficientBalance) {
			if finErr := s.finalize(ctx, created.ID, domain.TransactionStatusClosed); finErr != nil {
				return mapRecordToResult(created), finErr
			}
			created.Status = domain.TransactionStatusClosed
			return mapRecordToResult(created), commons.ErrInsufficientBalance
		}
		if finErr := s.finalize(ctx, created.ID, domain.TransactionStatusFailed); finErr != nil {
			return mapRecordToResult(created), finErr
		}
		created.Status = domain.TransactionStatusFailed
		return mapRecordToResult(created), fmt.Errorf("%w: debit account %s: %w", commons.ErrTransferFailed, fromAccountID, err)
	}

	if err := s.accountStore.Credit(ctx, toAccountID, req.Amount); err != nil {
		if compErr := s.accountStore.Credit(ctx, fromAccountID, req.Amount); compErr != nil {
			// Debit applied, credit failed, credit-back failed. The record stays
			// PENDING; reconciliation must repair this against the log.
			fatal := &commons.CompensationError{
				TransactionID:   created.ID,
				PostingErr:      err,
				CompensationErr: compErr,
			}
			logger.Error("transfer service compensation failed", fatal, logger.Fields{
				"transactionId": created.ID,
				"fromAccountId": fromAccountID,
				"toAccountId":   toAccountID,
			})
			return mapRecordToResult(created), fatal
		}

		if finErr := s.finalize(ctx, created.ID, domain.TransactionStatusFailed); finErr != nil {
			return mapRecordToResult(created), finErr
		}
		created.Status = domain.TransactionStatusFailed
		return mapRecordToResult(created), fmt.Errorf("%w: credit account %s: %w", commons.ErrTransferFailed, toAccountID, err)
	}

	if finErr := s.finalize(ctx, created.ID, domain.TransactionStatusExecuted); finErr != nil {
		return mapRecordToResult(created), finErr
	}
	created.Status = domain.TransactionStatusExecuted

	logger.Info("transfer service executed", logger.Fields{
		"transactionId": created.ID,
		"fromAccountId": fromAccountID,
		"toAccountId":   toAccountID,
		"amount":        req.Amount,
	})

	return mapRecordToResult(created), nil
}

// GetTransfer returns the recorded outcome of a transfer. After a caller-side
// timeout this is the authoritative way to learn whether the saga completed.
func (s *TransferService) GetTransfer(ctx context.Context, transactionID string) (models.TransferResult, error) {
	record, err := s.transactionLog.Get(ctx, transactionID)
	if err != nil {
		return models.TransferResult{}, err
	}

	return mapRecordToResult(record), nil
}

// finalize drives the record to its terminal status. A failure here is a hard
// error for the caller: the fund movement is already consistent, but the
// authoritative record still says PENDING, so the caller must not be told a
// terminal status the log never recorded.
func (s *TransferService) finalize(ctx context.Context, transactionID string, status domain.TransactionStatus) error {
	if err := s.transactionLog.UpdateStatus(ctx, transactionID, status); err != nil {
		logger.Error("transfer service finalize status failed", err, logger.Fields{
			"transactionId": transactionID,
			"status":        status,
		})
		return fmt.Errorf("finalize transfer %s as %s: %w", transactionID, status, err)
	}

	return nil
}

// resultError reproduces the error a caller would have seen when the recorded
// outcome was first reached, so that idempotent resubmission is indistinguishable
// from the original call.
func resultError(record domain.TransactionRecord) error {
	switch record.Status {
	case domain.TransactionStatusExecuted:
		return nil
	case domain.TransactionStatusClosed:
		return commons.ErrInsufficientBalance
	case domain.TransactionStatusFailed:
		return fmt.Errorf("%w: transfer %s", commons.ErrTransferFailed, record.ID)
	default:
		return fmt.Errorf("transfer %s is still pending", record.ID)
	}
}

func mapRecordToResult(record domain.TransactionRecord) models.TransferResult {
	result := models.TransferResult{
		TransactionID: record.ID,
		FromAccountID: record.FromAccountID,
		ToAccountID:   record.ToAccountID,
		Amount:        record.Amount,
		Status:        record.Status,
		ProcessedAt:   record.ProcessedAt,
	}
	if record.Reference != nil {
		result.Reference = *record.Reference
	}

	return result
}
