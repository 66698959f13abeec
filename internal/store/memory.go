package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/obiekwelu/chatwallet/internal/domain"
)

// MemoryStore is a mutex-guarded in-memory ledger. It backs the engine's
// tests and the "memory" store driver. A single lock covers all state, which
// trivially satisfies the per-account serialization the store contract
// requires.
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[int64]*domain.Account
	txns     map[string]*domain.Transaction
	refOrder []string
	nextID   int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[int64]*domain.Account),
		txns:     make(map[string]*domain.Transaction),
	}
}

func copyAccount(a *domain.Account) *domain.Account {
	c := *a
	return &c
}

func copyTransaction(t *domain.Transaction) *domain.Transaction {
	c := *t
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		c.CompletedAt = &at
	}
	return &c
}

func (s *MemoryStore) GetAccount(_ context.Context, id int64) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %d: %w", id, domain.ErrNotFound)
	}
	return copyAccount(account), nil
}

func (s *MemoryStore) CreateAccount(_ context.Context, email string, opening domain.Money) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	account := &domain.Account{
		ID:        s.nextID,
		Email:     email,
		Balance:   opening,
		CreatedAt: time.Now().UTC(),
	}
	s.accounts[account.ID] = account
	return copyAccount(account), nil
}

func (s *MemoryStore) SaveAuthorization(_ context.Context, accountID int64, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[accountID]
	if !ok {
		return fmt.Errorf("account %d: %w", accountID, domain.ErrNotFound)
	}
	account.AuthorizationToken = token
	return nil
}

func (s *MemoryStore) CreateTransaction(_ context.Context, txn *domain.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.txns[txn.Reference]; ok {
		return fmt.Errorf("reference %s: %w", txn.Reference, domain.ErrDuplicateReference)
	}
	if _, ok := s.accounts[txn.AccountID]; !ok {
		return fmt.Errorf("account %d: %w", txn.AccountID, domain.ErrNotFound)
	}
	s.txns[txn.Reference] = copyTransaction(txn)
	s.refOrder = append(s.refOrder, txn.Reference)
	return nil
}

func (s *MemoryStore) FindTransactionByReference(_ context.Context, ref string) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	txn, ok := s.txns[ref]
	if !ok {
		return nil, fmt.Errorf("reference %s: %w", ref, domain.ErrNotFound)
	}
	return copyTransaction(txn), nil
}

func (s *MemoryStore) TransitionTransaction(_ context.Context, ref string, status domain.TransactionStatus, reason string, completedAt time.Time) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	txn, err := s.transitionLocked(ref, status, reason, completedAt)
	if err != nil {
		return nil, err
	}
	return copyTransaction(txn), nil
}

// transitionLocked is the check-and-set on status. Caller holds mu.
func (s *MemoryStore) transitionLocked(ref string, status domain.TransactionStatus, reason string, completedAt time.Time) (*domain.Transaction, error) {
	txn, ok := s.txns[ref]
	if !ok {
		return nil, fmt.Errorf("reference %s: %w", ref, domain.ErrNotFound)
	}
	if txn.Status.Terminal() {
		if txn.Status == status {
			return txn, nil
		}
		return nil, fmt.Errorf("reference %s is %s: %w", ref, txn.Status, domain.ErrAlreadyTerminal)
	}
	txn.Status = status
	txn.FailureReason = reason
	at := completedAt
	txn.CompletedAt = &at
	return txn, nil
}

func (s *MemoryStore) ApplyDelta(_ context.Context, accountID int64, delta int64, ref string) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, err := s.applyDeltaLocked(accountID, delta, ref)
	if err != nil {
		return nil, err
	}
	return copyAccount(account), nil
}

func (s *MemoryStore) applyDeltaLocked(accountID int64, delta int64, ref string) (*domain.Account, error) {
	account, ok := s.accounts[accountID]
	if !ok {
		return nil, fmt.Errorf("account %d: %w", accountID, domain.ErrNotFound)
	}
	if delta < 0 && account.Balance.Amount+delta < 0 {
		return nil, fmt.Errorf("account %d settling %s: %w", accountID, ref, domain.ErrInsufficientFunds)
	}
	account.Balance.Amount += delta
	return account, nil
}

func (s *MemoryStore) SettleTransaction(_ context.Context, ref string, outcome domain.Settlement) (*domain.Transaction, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	txn, ok := s.txns[ref]
	if !ok {
		return nil, false, fmt.Errorf("reference %s: %w", ref, domain.ErrNotFound)
	}
	if txn.Status.Terminal() {
		if txn.Status == outcome.Status {
			return copyTransaction(txn), false, nil
		}
		return nil, false, fmt.Errorf("reference %s is %s: %w", ref, txn.Status, domain.ErrAlreadyTerminal)
	}

	if outcome.Status == domain.StatusCompleted {
		// Delta first: if the debit would overdraw, the transaction must
		// stay pending, so the transition is never attempted.
		if _, err := s.applyDeltaLocked(txn.AccountID, txn.SignedDelta(), ref); err != nil {
			return nil, false, err
		}
		if outcome.AuthorizationToken != "" {
			s.accounts[txn.AccountID].AuthorizationToken = outcome.AuthorizationToken
		}
	}

	settled, err := s.transitionLocked(ref, outcome.Status, outcome.FailureReason, outcome.CompletedAt)
	if err != nil {
		// Unreachable after the terminal check above; a partial commit
		// here would corrupt the ledger.
		panic(fmt.Sprintf("settle %s: transition failed after delta: %v", ref, err))
	}
	return copyTransaction(settled), true, nil
}

func (s *MemoryStore) ListTransactions(_ context.Context, accountID int64, page, pageSize int) ([]domain.Transaction, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[accountID]; !ok {
		return nil, 0, fmt.Errorf("account %d: %w", accountID, domain.ErrNotFound)
	}

	// refOrder is creation order; walk it backwards for newest-first.
	var matches []domain.Transaction
	for i := len(s.refOrder) - 1; i >= 0; i-- {
		txn := s.txns[s.refOrder[i]]
		if txn.AccountID == accountID {
			matches = append(matches, *copyTransaction(txn))
		}
	}

	total := int64(len(matches))
	start := (page - 1) * pageSize
	if start >= len(matches) {
		return []domain.Transaction{}, total, nil
	}
	end := start + pageSize
	if end > len(matches) {
		end = len(matches)
	}
	return matches[start:end], total, nil
}
