package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/api-sage/wallet-ledger-core/internal/commons"
	"github.com/api-sage/wallet-ledger-core/internal/domain"
	"github.com/api-sage/wallet-ledger-core/internal/logger"
	"github.com/api-sage/wallet-ledger-core/internal/usecase/models"
)

// BalanceAuditor is the extra capability reconciliation needs from a store
// beyond the AccountStore contract.
type BalanceAuditor interface {
	TotalBalance(ctx context.Context) (decimal.Decimal, error)
}

// ReconciliationService is the out-of-band repair surface for transfers whose
// compensation failed: their records stay PENDING and must be found by age.
type ReconciliationService struct {
	accountStore    domain.AccountStore
	transactionLog  domain.TransactionLog
	balanceAuditor  BalanceAuditor
	stalePendingAge time.Duration
}

func NewReconciliationService(
	accountStore domain.AccountStore,
	transactionLog domain.TransactionLog,
	balanceAuditor BalanceAuditor,
	stalePendingAge time.Duration,
) *ReconciliationService {
	return &ReconciliationService{
		accountStore:    accountStore,
		transactionLog:  transactionLog,
		balanceAuditor:  balanceAuditor,
		stalePendingAge: stalePendingAge,
	}
}

// FindStuck lists PENDING records older than the configured age and probes both
// referenced accounts concurrently to annotate each record for the operator.
func (s *ReconciliationService) FindStuck(ctx context.Context) ([]models.StuckTransaction, error) {
	cutoff := time.Now().UTC().Add(-s.stalePendingAge)

	records, err := s.transactionLog.ListByStatusOlderThan(ctx, domain.TransactionStatusPending, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list stale pending transactions: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	logger.Info("reconciliation service stale pending records", logger.Fields{
		"count":  len(records),
		"cutoff": cutoff,
	})

	stuck := make([]models.StuckTransaction, len(records))
	g, gctx := errgroup.WithContext(ctx)

	for i, record := range records {
		i, record := i, record
		g.Go(func() error {
			fromMissing, err := s.accountMissing(gctx, record.FromAccountID)
			if err != nil {
				return err
			}
			toMissing, err := s.accountMissing(gctx, record.ToAccountID)
			if err != nil {
				return err
			}

			stuck[i] = models.StuckTransaction{
				Record:             record,
				FromAccountMissing: fromMissing,
				ToAccountMissing:   toMissing,
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return stuck, nil
}

// CheckConservation audits that the ledger total still equals the expected sum.
// Completed transfers move funds between accounts; they never change the total.
func (s *ReconciliationService) CheckConservation(ctx context.Context, expectedTotal decimal.Decimal) error {
	total, err := s.balanceAuditor.TotalBalance(ctx)
	if err != nil {
		return fmt.Errorf("sum account balances: %w", err)
	}

	if !total.Equal(expectedTotal) {
		logger.Error("reconciliation service conservation violated", nil, logger.Fields{
			"expectedTotal": expectedTotal,
			"actualTotal":   total,
		})
		return fmt.Errorf("ledger total %s does not match expected %s",
			total.StringFixed(2), expectedTotal.StringFixed(2))
	}

	return nil
}

func (s *ReconciliationService) accountMissing(ctx context.Context, accountID string) (bool, error) {
	_, err := s.accountStore.GetBalance(ctx, accountID)
	if errors.Is(err, commons.ErrAccountNotFound) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("probe account %s: %w", accountID, err)
	}
	return false, nil
}
