package services_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/api-sage/wallet-ledger-core/internal/adapter/repository/memory"
	"github.com/api-sage/wallet-ledger-core/internal/commons"
	"github.com/api-sage/wallet-ledger-core/internal/domain"
	"github.com/api-sage/wallet-ledger-core/internal/usecase/models"
	"github.com/api-sage/wallet-ledger-core/internal/usecase/services"
)

// faultyStore wraps an AccountStore and fails credits against chosen accounts,
// simulating a store outage between the two legs of a transfer.
type faultyStore struct {
	domain.AccountStore
	failCreditFor map[string]bool
}

func (s *faultyStore) Credit(ctx context.Context, accountID string, amount decimal.Decimal) error {
	if s.failCreditFor[accountID] {
		return fmt.Errorf("simulated store fault")
	}
	return s.AccountStore.Credit(ctx, accountID, amount)
}

// faultyLog wraps a TransactionLog and fails every status update, simulating a
// log outage between posting and finalization.
type faultyLog struct {
	domain.TransactionLog
	failUpdate bool
}

func (l *faultyLog) UpdateStatus(ctx context.Context, transactionID string, status domain.TransactionStatus) error {
	if l.failUpdate {
		return fmt.Errorf("simulated log outage")
	}
	return l.TransactionLog.UpdateStatus(ctx, transactionID, status)
}

func newLedger(t *testing.T, balances ...int64) (*memory.AccountStore, *memory.TransactionLog, []string) {
	t.Helper()

	store := memory.NewAccountStore()
	ids := make([]string, 0, len(balances))
	for _, balance := range balances {
		account, err := store.CreateAccount(context.Background(), decimal.NewFromInt(balance))
		if err != nil {
			t.Fatalf("create account: %v", err)
		}
		ids = append(ids, account.ID)
	}

	return store, memory.NewTransactionLog(), ids
}

func farFuture() time.Time {
	return time.Now().UTC().Add(time.Hour)
}

func mustBalance(t *testing.T, store *memory.AccountStore, accountID string) decimal.Decimal {
	t.Helper()

	balance, err := store.GetBalance(context.Background(), accountID)
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	return balance
}

func TestTransferExecuted(t *testing.T) {
	ctx := context.Background()
	store, log, ids := newLedger(t, 100, 0)
	svc := services.NewTransferService(store, log)

	result, err := svc.Transfer(ctx, models.TransferRequest{
		FromAccountID: ids[0],
		ToAccountID:   ids[1],
		Amount:        decimal.NewFromInt(40),
	})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if result.Status != domain.TransactionStatusExecuted {
		t.Fatalf("status = %s, want EXECUTED", result.Status)
	}
	if result.TransactionID == "" {
		t.Fatal("no transaction id returned")
	}

	if got := mustBalance(t, store, ids[0]); !got.Equal(decimal.NewFromInt(60)) {
		t.Fatalf("from balance = %s, want 60", got)
	}
	if got := mustBalance(t, store, ids[1]); !got.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("to balance = %s, want 40", got)
	}

	record, err := log.Get(ctx, result.TransactionID)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if record.Status != domain.TransactionStatusExecuted {
		t.Fatalf("recorded status = %s, want EXECUTED", record.Status)
	}
	if record.AuditPayload == "" {
		t.Fatal("audit payload not recorded")
	}
}

func TestTransferInsufficientBalanceCloses(t *testing.T) {
	ctx := context.Background()
	store, log, ids := newLedger(t, 10, 0)
	svc := services.NewTransferService(store, log)

	result, err := svc.Transfer(ctx, models.TransferRequest{
		FromAccountID: ids[0],
		ToAccountID:   ids[1],
		Amount:        decimal.NewFromInt(40),
	})
	if !errors.Is(err, commons.ErrInsufficientBalance) {
		t.Fatalf("error = %v, want ErrInsufficientBalance", err)
	}
	if result.Status != domain.TransactionStatusClosed {
		t.Fatalf("status = %s, want CLOSED", result.Status)
	}

	if got := mustBalance(t, store, ids[0]); !got.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("from balance = %s, want unchanged 10", got)
	}
	if got := mustBalance(t, store, ids[1]); !got.Equal(decimal.Zero) {
		t.Fatalf("to balance = %s, want unchanged 0", got)
	}

	record, err := log.Get(ctx, result.TransactionID)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if record.Status != domain.TransactionStatusClosed {
		t.Fatalf("recorded status = %s, want CLOSED", record.Status)
	}
}

func TestTransferCreditFailureCompensates(t *testing.T) {
	ctx := context.Background()
	store, log, ids := newLedger(t, 100, 0)
	faulty := &faultyStore{
		AccountStore:  store,
		failCreditFor: map[string]bool{ids[1]: true},
	}
	svc := services.NewTransferService(faulty, log)

	result, err := svc.Transfer(ctx, models.TransferRequest{
		FromAccountID: ids[0],
		ToAccountID:   ids[1],
		Amount:        decimal.NewFromInt(40),
	})
	if err == nil {
		t.Fatal("expected error when credit leg fails")
	}
	if result.Status != domain.TransactionStatusFailed {
		t.Fatalf("status = %s, want FAILED", result.Status)
	}

	// The debit was compensated: the source account is back where it started.
	if got := mustBalance(t, store, ids[0]); !got.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("from balance = %s, want compensated 100", got)
	}
	if got := mustBalance(t, store, ids[1]); !got.Equal(decimal.Zero) {
		t.Fatalf("to balance = %s, want 0", got)
	}

	record, err := log.Get(ctx, result.TransactionID)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if record.Status != domain.TransactionStatusFailed {
		t.Fatalf("recorded status = %s, want FAILED", record.Status)
	}
}

func TestTransferCompensationFailureIsFatal(t *testing.T) {
	ctx := context.Background()
	store, log, ids := newLedger(t, 100, 0)
	faulty := &faultyStore{
		AccountStore:  store,
		failCreditFor: map[string]bool{ids[0]: true, ids[1]: true},
	}
	svc := services.NewTransferService(faulty, log)

	result, err := svc.Transfer(ctx, models.TransferRequest{
		FromAccountID: ids[0],
		ToAccountID:   ids[1],
		Amount:        decimal.NewFromInt(40),
	})

	var compErr *commons.CompensationError
	if !errors.As(err, &compErr) {
		t.Fatalf("error = %v, want CompensationError", err)
	}
	if compErr.TransactionID != result.TransactionID {
		t.Fatalf("compensation error for %s, want %s", compErr.TransactionID, result.TransactionID)
	}

	// Never coerced into FAILED: the record stays PENDING for reconciliation.
	record, err := log.Get(ctx, result.TransactionID)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if record.Status != domain.TransactionStatusPending {
		t.Fatalf("recorded status = %s, want PENDING", record.Status)
	}
}

func TestTransferSameAccountRejectedBeforeAnyState(t *testing.T) {
	ctx := context.Background()
	store, log, ids := newLedger(t, 100)
	svc := services.NewTransferService(store, log)

	_, err := svc.Transfer(ctx, models.TransferRequest{
		FromAccountID: ids[0],
		ToAccountID:   ids[0],
		Amount:        decimal.NewFromInt(10),
	})
	if !errors.Is(err, commons.ErrInvalidRequest) {
		t.Fatalf("error = %v, want ErrInvalidRequest", err)
	}

	records, err := log.ListByStatusOlderThan(ctx, domain.TransactionStatusPending, farFuture())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("log has %d records, want none for a rejected request", len(records))
	}
	if got := mustBalance(t, store, ids[0]); !got.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("balance = %s, want untouched 100", got)
	}
}

func TestTransferNonPositiveAmountRejected(t *testing.T) {
	ctx := context.Background()
	store, log, ids := newLedger(t, 100, 0)
	svc := services.NewTransferService(store, log)

	for _, amount := range []decimal.Decimal{decimal.Zero, decimal.NewFromInt(-5)} {
		_, err := svc.Transfer(ctx, models.TransferRequest{
			FromAccountID: ids[0],
			ToAccountID:   ids[1],
			Amount:        amount,
		})
		if !errors.Is(err, commons.ErrInvalidRequest) {
			t.Fatalf("amount %s: error = %v, want ErrInvalidRequest", amount, err)
		}
	}
}

func TestTransferConcurrentOverdraw(t *testing.T) {
	ctx := context.Background()
	store, log, ids := newLedger(t, 100, 0)
	svc := services.NewTransferService(store, log)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Transfer(ctx, models.TransferRequest{
				FromAccountID: ids[0],
				ToAccountID:   ids[1],
				Amount:        decimal.NewFromInt(60),
			})
			results[i] = err
		}()
	}
	wg.Wait()

	var succeeded, insufficient int
	for _, err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, commons.ErrInsufficientBalance):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 || insufficient != 1 {
		t.Fatalf("succeeded = %d, insufficient = %d, want exactly one of each", succeeded, insufficient)
	}

	if got := mustBalance(t, store, ids[0]); !got.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("from balance = %s, want 40", got)
	}
	if got := mustBalance(t, store, ids[1]); !got.Equal(decimal.NewFromInt(60)) {
		t.Fatalf("to balance = %s, want 60", got)
	}
}

func TestTransferIdempotentReference(t *testing.T) {
	ctx := context.Background()
	store, log, ids := newLedger(t, 100, 0)
	svc := services.NewTransferService(store, log)

	req := models.TransferRequest{
		FromAccountID: ids[0],
		ToAccountID:   ids[1],
		Amount:        decimal.NewFromInt(40),
		Reference:     "order-42",
	}

	first, err := svc.Transfer(ctx, req)
	if err != nil {
		t.Fatalf("first transfer: %v", err)
	}

	second, err := svc.Transfer(ctx, req)
	if err != nil {
		t.Fatalf("resubmission: %v", err)
	}

	if second.TransactionID != first.TransactionID {
		t.Fatalf("resubmission opened a new transaction %s, want %s", second.TransactionID, first.TransactionID)
	}
	if second.Status != domain.TransactionStatusExecuted {
		t.Fatalf("resubmission status = %s, want EXECUTED", second.Status)
	}

	// Funds moved exactly once.
	if got := mustBalance(t, store, ids[0]); !got.Equal(decimal.NewFromInt(60)) {
		t.Fatalf("from balance = %s, want 60", got)
	}
	if got := mustBalance(t, store, ids[1]); !got.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("to balance = %s, want 40", got)
	}
}

func TestTransferIdempotentReferenceReplaysFailure(t *testing.T) {
	ctx := context.Background()
	store, log, ids := newLedger(t, 10, 0)
	svc := services.NewTransferService(store, log)

	req := models.TransferRequest{
		FromAccountID: ids[0],
		ToAccountID:   ids[1],
		Amount:        decimal.NewFromInt(40),
		Reference:     "order-43",
	}

	first, err := svc.Transfer(ctx, req)
	if !errors.Is(err, commons.ErrInsufficientBalance) {
		t.Fatalf("first transfer error = %v, want ErrInsufficientBalance", err)
	}

	second, err := svc.Transfer(ctx, req)
	if !errors.Is(err, commons.ErrInsufficientBalance) {
		t.Fatalf("resubmission error = %v, want ErrInsufficientBalance", err)
	}
	if second.TransactionID != first.TransactionID {
		t.Fatalf("resubmission opened a new transaction %s, want %s", second.TransactionID, first.TransactionID)
	}
}

func TestTransferConservationUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	store, log, ids := newLedger(t, 500, 500, 500, 500)
	svc := services.NewTransferService(store, log)

	const workers = 8
	const transfersPerWorker = 25

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		w := w
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < transfersPerWorker; i++ {
				from := ids[(w+i)%len(ids)]
				to := ids[(w+i+1)%len(ids)]
				_, err := svc.Transfer(ctx, models.TransferRequest{
					FromAccountID: from,
					ToAccountID:   to,
					Amount:        decimal.NewFromInt(int64(1 + i%7)),
				})
				if err != nil && !errors.Is(err, commons.ErrInsufficientBalance) {
					t.Errorf("transfer: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	total, err := store.TotalBalance(ctx)
	if err != nil {
		t.Fatalf("total balance: %v", err)
	}
	if !total.Equal(decimal.NewFromInt(2000)) {
		t.Fatalf("total balance = %s, want conserved 2000", total)
	}

	for _, id := range ids {
		if mustBalance(t, store, id).IsNegative() {
			t.Fatalf("account %s went negative", id)
		}
	}
}

func TestTransferFinalizeFailurePropagates(t *testing.T) {
	ctx := context.Background()
	store, log, ids := newLedger(t, 100, 0)
	svc := services.NewTransferService(store, &faultyLog{TransactionLog: log, failUpdate: true})

	result, err := svc.Transfer(ctx, models.TransferRequest{
		FromAccountID: ids[0],
		ToAccountID:   ids[1],
		Amount:        decimal.NewFromInt(40),
	})
	if err == nil {
		t.Fatal("expected hard error when status finalization fails")
	}
	// The caller must never be told a terminal status the log never recorded.
	if result.Status != domain.TransactionStatusPending {
		t.Fatalf("result status = %s, want PENDING", result.Status)
	}

	record, getErr := log.Get(ctx, result.TransactionID)
	if getErr != nil {
		t.Fatalf("get record: %v", getErr)
	}
	if record.Status != domain.TransactionStatusPending {
		t.Fatalf("recorded status = %s, want PENDING", record.Status)
	}

	// The fund movement itself completed before finalization failed.
	if got := mustBalance(t, store, ids[0]); !got.Equal(decimal.NewFromInt(60)) {
		t.Fatalf("from balance = %s, want 60", got)
	}
	if got := mustBalance(t, store, ids[1]); !got.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("to balance = %s, want 40", got)
	}
}

func TestTransferFinalizeFailureOnClosedPath(t *testing.T) {
	ctx := context.Background()
	store, log, ids := newLedger(t, 10, 0)
	svc := services.NewTransferService(store, &faultyLog{TransactionLog: log, failUpdate: true})

	result, err := svc.Transfer(ctx, models.TransferRequest{
		FromAccountID: ids[0],
		ToAccountID:   ids[1],
		Amount:        decimal.NewFromInt(40),
	})
	if err == nil {
		t.Fatal("expected hard error when status finalization fails")
	}
	if errors.Is(err, commons.ErrInsufficientBalance) {
		t.Fatalf("error = %v, want the finalize failure rather than the business outcome", err)
	}

	record, getErr := log.Get(ctx, result.TransactionID)
	if getErr != nil {
		t.Fatalf("get record: %v", getErr)
	}
	if record.Status != domain.TransactionStatusPending {
		t.Fatalf("recorded status = %s, want PENDING", record.Status)
	}
}

func TestTransferFailedReplayKeepsErrorClass(t *testing.T) {
	ctx := context.Background()
	store, log, ids := newLedger(t, 100, 0)
	faulty := &faultyStore{
		AccountStore:  store,
		failCreditFor: map[string]bool{ids[1]: true},
	}
	svc := services.NewTransferService(faulty, log)

	req := models.TransferRequest{
		FromAccountID: ids[0],
		ToAccountID:   ids[1],
		Amount:        decimal.NewFromInt(40),
		Reference:     "order-44",
	}

	first, err := svc.Transfer(ctx, req)
	if !errors.Is(err, commons.ErrTransferFailed) {
		t.Fatalf("first transfer error = %v, want ErrTransferFailed", err)
	}

	second, err := svc.Transfer(ctx, req)
	if !errors.Is(err, commons.ErrTransferFailed) {
		t.Fatalf("resubmission error = %v, want ErrTransferFailed", err)
	}
	if second.TransactionID != first.TransactionID {
		t.Fatalf("resubmission opened a new transaction %s, want %s", second.TransactionID, first.TransactionID)
	}
	if second.Status != domain.TransactionStatusFailed {
		t.Fatalf("resubmission status = %s, want FAILED", second.Status)
	}
}

func TestGetTransferAfterTimeoutIsAuthoritative(t *testing.T) {
	ctx := context.Background()
	store, log, ids := newLedger(t, 100, 0)
	svc := services.NewTransferService(store, log)

	result, err := svc.Transfer(ctx, models.TransferRequest{
		FromAccountID: ids[0],
		ToAccountID:   ids[1],
		Amount:        decimal.NewFromInt(40),
	})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}

	got, err := svc.GetTransfer(ctx, result.TransactionID)
	if err != nil {
		t.Fatalf("get transfer: %v", err)
	}
	if got.Status != domain.TransactionStatusExecuted {
		t.Fatalf("status = %s, want EXECUTED", got.Status)
	}

	if _, err := svc.GetTransfer(ctx, "missing"); !errors.Is(err, commons.ErrTransactionNotFound) {
		t.Fatalf("unknown id error = %v, want ErrTransactionNotFound", err)
	}
}
