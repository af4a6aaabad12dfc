package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/api-sage/wallet-ledger-core/internal/commons"
	"github.com/api-sage/wallet-ledger-core/internal/domain"
)

// TransactionLog is an in-memory TransactionLog with the same state-machine and
// reference-uniqueness guarantees as the postgres implementation.
type TransactionLog struct {
	mu          sync.RWMutex
	records     map[string]*domain.TransactionRecord
	byReference map[string]string
}

var _ domain.TransactionLog = (*TransactionLog)(nil)

func NewTransactionLog() *TransactionLog {
	return &TransactionLog{
		records:     make(map[string]*domain.TransactionRecord),
		byReference: make(map[string]string),
	}
}

func (l *TransactionLog) Create(ctx context.Context, record domain.TransactionRecord) (domain.TransactionRecord, error) {
	if record.Amount.LessThanOrEqual(decimal.Zero) {
		return domain.TransactionRecord{}, commons.ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if record.Reference != nil {
		ref := strings.TrimSpace(*record.Reference)
		if ref != "" {
			if _, exists := l.byReference[ref]; exists {
				return domain.TransactionRecord{}, commons.ErrDuplicateReference
			}
			record.Reference = &ref
		}
	}

	now := time.Now().UTC()
	record.ID = uuid.NewString()
	record.Status = domain.TransactionStatusPending
	record.CreatedAt = now
	record.UpdatedAt = now
	record.ProcessedAt = nil

	stored := record
	l.records[record.ID] = &stored
	if record.Reference != nil && *record.Reference != "" {
		l.byReference[*record.Reference] = record.ID
	}

	return record, nil
}

func (l *TransactionLog) Get(ctx context.Context, transactionID string) (domain.TransactionRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	rec, ok := l.records[transactionID]
	if !ok {
		return domain.TransactionRecord{}, commons.ErrTransactionNotFound
	}

	return *rec, nil
}

func (l *TransactionLog) GetByReference(ctx context.Context, reference string) (domain.TransactionRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	id, ok := l.byReference[strings.TrimSpace(reference)]
	if !ok {
		return domain.TransactionRecord{}, commons.ErrTransactionNotFound
	}

	return *l.records[id], nil
}

func (l *TransactionLog) UpdateStatus(ctx context.Context, transactionID string, status domain.TransactionStatus) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[transactionID]
	if !ok {
		return commons.ErrTransactionNotFound
	}

	if !rec.Status.CanTransitionTo(status) {
		return commons.ErrInvalidTransition
	}
	if rec.Status == status {
		// Idempotent terminal retry.
		return nil
	}

	now := time.Now().UTC()
	rec.Status = status
	rec.UpdatedAt = now
	if rec.ProcessedAt == nil {
		rec.ProcessedAt = &now
	}

	return nil
}

func (l *TransactionLog) ListByStatusOlderThan(ctx context.Context, status domain.TransactionStatus, cutoff time.Time) ([]domain.TransactionRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []domain.TransactionRecord
	for _, rec := range l.records {
		if rec.Status == status && rec.UpdatedAt.Before(cutoff) {
			out = append(out, *rec)
		}
	}

	return out, nil
}
