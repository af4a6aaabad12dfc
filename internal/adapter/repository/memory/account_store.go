package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/api-sage/wallet-ledger-core/internal/commons"
	"github.com/api-sage/wallet-ledger-core/internal/domain"
)

// AccountStore is an in-memory AccountStore for tests and embedded use. Each
// account carries its own mutex so that debits against one account serialize
// while transfers over disjoint account pairs run fully in parallel.
type AccountStore struct {
	mu       sync.RWMutex
	accounts map[string]*accountRecord
}

type accountRecord struct {
	mu        sync.Mutex
	balance   decimal.Decimal
	createdAt time.Time
	updatedAt time.Time
}

var _ domain.AccountStore = (*AccountStore)(nil)

func NewAccountStore() *AccountStore {
	return &AccountStore{
		accounts: make(map[string]*accountRecord),
	}
}

// CreateAccount provisions an account with an opening balance. Creation is
// out-of-band for the ledger core; tests and embedders seed accounts through it.
func (s *AccountStore) CreateAccount(ctx context.Context, balance decimal.Decimal) (domain.Account, error) {
	if balance.IsNegative() {
		return domain.Account{}, commons.ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	id := uuid.NewString()
	s.accounts[id] = &accountRecord{
		balance:   balance,
		createdAt: now,
		updatedAt: now,
	}

	return domain.Account{
		ID:        id,
		Balance:   balance,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *AccountStore) GetBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	rec, err := s.get(accountID)
	if err != nil {
		return decimal.Zero, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	return rec.balance, nil
}

// Debit runs the balance check and subtraction inside the account lock, making
// the pair one indivisible step.
func (s *AccountStore) Debit(ctx context.Context, accountID string, amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return commons.ErrInvalidAmount
	}

	rec, err := s.get(accountID)
	if err != nil {
		return err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.balance.LessThan(amount) {
		return commons.ErrInsufficientBalance
	}

	rec.balance = rec.balance.Sub(amount)
	rec.updatedAt = time.Now().UTC()

	return nil
}

func (s *AccountStore) Credit(ctx context.Context, accountID string, amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return commons.ErrInvalidAmount
	}

	rec, err := s.get(accountID)
	if err != nil {
		return err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	rec.balance = rec.balance.Add(amount)
	rec.updatedAt = time.Now().UTC()

	return nil
}

// TotalBalance sums every account balance for conservation audits.
func (s *AccountStore) TotalBalance(ctx context.Context) (decimal.Decimal, error) {
	s.mu.RLock()
	records := make([]*accountRecord, 0, len(s.accounts))
	for _, rec := range s.accounts {
		records = append(records, rec)
	}
	s.mu.RUnlock()

	total := decimal.Zero
	for _, rec := range records {
		rec.mu.Lock()
		total = total.Add(rec.balance)
		rec.mu.Unlock()
	}

	return total, nil
}

func (s *AccountStore) get(accountID string) (*accountRecord, error) {
	s.mu.RLock()
	rec, ok := s.accounts[accountID]
	s.mu.RUnlock()
	if !ok {
		return nil, commons.ErrAccountNotFound
	}

	return rec, nil
}
