package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/api-sage/wallet-ledger-core/internal/commons"
	"github.com/api-sage/wallet-ledger-core/internal/domain"
	"github.com/api-sage/wallet-ledger-core/internal/logger"
)

type TransactionLog struct {
	db *sql.DB
}

var _ domain.TransactionLog = (*TransactionLog)(nil)

func NewTransactionLog(db *sql.DB) *TransactionLog {
	return &TransactionLog{db: db}
}

const transactionColumns = `
id,
reference,
from_account_id,
to_account_id,
amount,
status,
audit_payload,
created_at,
updated_at,
processed_at`

func (l *TransactionLog) Create(ctx context.Context, record domain.TransactionRecord) (domain.TransactionRecord, error) {
	logger.Info("transaction log create", logger.Fields{
		"reference":     record.Reference,
		"fromAccountId": record.FromAccountID,
		"toAccountId":   record.ToAccountID,
		"amount":        record.Amount,
	})

	if record.Amount.LessThanOrEqual(decimal.Zero) {
		return domain.TransactionRecord{}, commons.ErrInvalidAmount
	}

	const query = `
INSERT INTO wallet_transactions (
	reference,
	from_account_id,
	to_account_id,
	amount,
	status,
	audit_payload
) VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, created_at, updated_at`

	var (
		id        string
		createdAt time.Time
		updatedAt time.Time
	)

	if err := l.db.QueryRowContext(
		ctx,
		query,
		record.Reference,
		record.FromAccountID,
		record.ToAccountID,
		record.Amount.StringFixed(2),
		domain.TransactionStatusPending,
		record.AuditPayload,
	).Scan(&id, &createdAt, &updatedAt); err != nil {
		if IsUniqueViolation(err) {
			return domain.TransactionRecord{}, commons.ErrDuplicateReference
		}
		logger.Error("transaction log create failed", err, logger.Fields{
			"reference": record.Reference,
		})
		return domain.TransactionRecord{}, fmt.Errorf("create transaction: %w", err)
	}

	record.ID = id
	record.Status = domain.TransactionStatusPending
	record.CreatedAt = createdAt
	record.UpdatedAt = updatedAt

	return record, nil
}

func (l *TransactionLog) Get(ctx context.Context, transactionID string) (domain.TransactionRecord, error) {
	query := `SELECT ` + transactionColumns + ` FROM wallet_transactions WHERE id = $1`
	return l.scanOne(ctx, query, transactionID)
}

func (l *TransactionLog) GetByReference(ctx context.Context, reference string) (domain.TransactionRecord, error) {
	trimmed := strings.TrimSpace(reference)
	if trimmed == "" {
		return domain.TransactionRecord{}, fmt.Errorf("reference is required")
	}

	query := `SELECT ` + transactionColumns + ` FROM wallet_transactions WHERE reference = $1`
	return l.scanOne(ctx, query, trimmed)
}

// UpdateStatus drives the PENDING -> terminal edge. The status predicate in the
// WHERE clause enforces the state machine at the storage layer: re-applying the
// same terminal status matches the row and is a no-op success, while a conflicting
// terminal write matches nothing.
func (l *TransactionLog) UpdateStatus(ctx context.Context, transactionID string, status domain.TransactionStatus) error {
	logger.Info("transaction log update status", logger.Fields{
		"transactionId": transactionID,
		"status":        status,
	})

	if !status.IsTerminal() {
		return commons.ErrInvalidTransition
	}

	const query = `
UPDATE wallet_transactions
SET status = $2::varchar,
    updated_at = NOW(),
    processed_at = COALESCE(processed_at, NOW())
WHERE id = $1
  AND (status = 'PENDING' OR status = $2::varchar)`

	result, err := l.db.ExecContext(ctx, query, transactionID, status)
	if err != nil {
		logger.Error("transaction log update status failed", err, logger.Fields{
			"transactionId": transactionID,
			"status":        status,
		})
		return fmt.Errorf("update transaction status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update transaction status rows affected: %w", err)
	}
	if rows == 0 {
		if _, err := l.Get(ctx, transactionID); err != nil {
			return err
		}
		return commons.ErrInvalidTransition
	}

	return nil
}

func (l *TransactionLog) ListByStatusOlderThan(ctx context.Context, status domain.TransactionStatus, cutoff time.Time) ([]domain.TransactionRecord, error) {
	query := `SELECT ` + transactionColumns + `
FROM wallet_transactions
WHERE status = $1
  AND updated_at < $2
ORDER BY updated_at ASC`

	rows, err := l.db.QueryContext(ctx, query, status, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list transactions by status: %w", err)
	}
	defer rows.Close()

	var records []domain.TransactionRecord
	for rows.Next() {
		record, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}

	return records, nil
}

func (l *TransactionLog) scanOne(ctx context.Context, query string, arg any) (domain.TransactionRecord, error) {
	record, err := scanRecord(l.db.QueryRowContext(ctx, query, arg).Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.TransactionRecord{}, commons.ErrTransactionNotFound
		}
		return domain.TransactionRecord{}, err
	}
	return record, nil
}

func scanRecord(scan func(...any) error) (domain.TransactionRecord, error) {
	var (
		record      domain.TransactionRecord
		reference   sql.NullString
		amount      string
		processedAt sql.NullTime
	)

	if err := scan(
		&record.ID,
		&reference,
		&record.FromAccountID,
		&record.ToAccountID,
		&amount,
		&record.Status,
		&record.AuditPayload,
		&record.CreatedAt,
		&record.UpdatedAt,
		&processedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.TransactionRecord{}, err
		}
		return domain.TransactionRecord{}, fmt.Errorf("scan transaction: %w", err)
	}

	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return domain.TransactionRecord{}, fmt.Errorf("parse transaction amount: %w", err)
	}
	record.Amount = parsed

	if reference.Valid {
		value := reference.String
		record.Reference = &value
	}
	if processedAt.Valid {
		value := processedAt.Time
		record.ProcessedAt = &value
	}

	return record, nil
}

// IsUniqueViolation reports whether err is a postgres duplicate-key error, used to
// detect a concurrent insert with the same idempotency reference.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == "23505"
	}
	return false
}
