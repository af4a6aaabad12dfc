package domain

import (
	"context"
	"time"
)

// TransactionLog owns every status transition. A terminal status is immutable;
// re-applying the same terminal status succeeds as a no-op.
type TransactionLog interface {
	Create(ctx context.Context, record TransactionRecord) (TransactionRecord, error)
	Get(ctx context.Context, transactionID string) (TransactionRecord, error)
	GetByReference(ctx context.Context, reference string) (TransactionRecord, error)
	UpdateStatus(ctx context.Context, transactionID string, status TransactionStatus) error
	ListByStatusOlderThan(ctx context.Context, status TransactionStatus, cutoff time.Time) ([]TransactionRecord, error)
}
