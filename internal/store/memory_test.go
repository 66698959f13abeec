package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/obiekwelu/chatwallet/internal/domain"
)

func newTestStore(t *testing.T, balance int64) (*MemoryStore, *domain.Account) {
	t.Helper()
	s := NewMemoryStore()
	account, err := s.CreateAccount(context.Background(), "user@chat.example", domain.NewMoney(balance, "NGN"))
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	return s, account
}

func pendingTxn(accountID int64, ref string, dir domain.Direction, amount int64) *domain.Transaction {
	return &domain.Transaction{
		ID:        uuid.New(),
		AccountID: accountID,
		Reference: ref,
		Direction: dir,
		Amount:    domain.NewMoney(amount, "NGN"),
		Status:    domain.StatusPending,
		CreatedAt: time.Now().UTC(),
	}
}

func TestCreateTransactionDuplicateReference(t *testing.T) {
	s, account := newTestStore(t, 10000)
	ctx := context.Background()

	if err := s.CreateTransaction(ctx, pendingTxn(account.ID, "R1", domain.DirectionCredit, 500)); err != nil {
		t.Fatalf("first create: %v", err)
	}
	err := s.CreateTransaction(ctx, pendingTxn(account.ID, "R1", domain.DirectionCredit, 500))
	if !errors.Is(err, domain.ErrDuplicateReference) {
		t.Fatalf("expected ErrDuplicateReference, got %v", err)
	}
}

func TestCreateTransactionUnknownAccount(t *testing.T) {
	s, _ := newTestStore(t, 0)
	err := s.CreateTransaction(context.Background(), pendingTxn(999, "R1", domain.DirectionCredit, 500))
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTransitionTransaction(t *testing.T) {
	s, account := newTestStore(t, 10000)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := s.CreateTransaction(ctx, pendingTxn(account.ID, "R1", domain.DirectionCredit, 500)); err != nil {
		t.Fatal(err)
	}

	txn, err := s.TransitionTransaction(ctx, "R1", domain.StatusFailed, domain.ReasonGatewayDeclined, now)
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if txn.Status != domain.StatusFailed || txn.CompletedAt == nil {
		t.Fatalf("transition result = %+v", txn)
	}

	// Same terminal status again is a no-op success.
	again, err := s.TransitionTransaction(ctx, "R1", domain.StatusFailed, domain.ReasonGatewayDeclined, now)
	if err != nil {
		t.Fatalf("repeat transition: %v", err)
	}
	if again.Status != domain.StatusFailed {
		t.Fatalf("repeat transition status = %s", again.Status)
	}

	// A conflicting terminal status is an invariant violation.
	if _, err := s.TransitionTransaction(ctx, "R1", domain.StatusCompleted, "", now); !errors.Is(err, domain.ErrAlreadyTerminal) {
		t.Fatalf("expected ErrAlreadyTerminal, got %v", err)
	}

	if _, err := s.TransitionTransaction(ctx, "nope", domain.StatusFailed, "", now); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestApplyDeltaInsufficientFunds(t *testing.T) {
	s, account := newTestStore(t, 1000)
	ctx := context.Background()

	_, err := s.ApplyDelta(ctx, account.ID, -1001, "R1")
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	got, err := s.GetAccount(ctx, account.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Balance.Amount != 1000 {
		t.Fatalf("balance mutated on failed delta: %d", got.Balance.Amount)
	}
}

func TestApplyDeltaConcurrent(t *testing.T) {
	const (
		initial = 50000
		workers = 50
		rounds  = 20
	)
	s, account := newTestStore(t, initial)
	ctx := context.Background()

	// Interleaved credits and debits that cancel out pairwise.
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		delta := int64(7)
		if i%2 == 1 {
			delta = -7
		}
		go func(d int64) {
			defer wg.Done()
			for j := 0; j < rounds; j++ {
				if _, err := s.ApplyDelta(ctx, account.ID, d, "stress"); err != nil {
					t.Errorf("apply delta: %v", err)
					return
				}
			}
		}(delta)
	}
	wg.Wait()

	got, err := s.GetAccount(ctx, account.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Balance.Amount != initial {
		t.Fatalf("final balance = %d, want %d (lost update)", got.Balance.Amount, initial)
	}
}

func TestSettleTransactionAppliesOnce(t *testing.T) {
	s, account := newTestStore(t, 1000)
	ctx := context.Background()

	if err := s.CreateTransaction(ctx, pendingTxn(account.ID, "R1", domain.DirectionCredit, 2500)); err != nil {
		t.Fatal(err)
	}

	outcome := domain.Settlement{Status: domain.StatusCompleted, CompletedAt: time.Now().UTC()}
	txn, applied, err := s.SettleTransaction(ctx, "R1", outcome)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if !applied || txn.Status != domain.StatusCompleted {
		t.Fatalf("settle = applied %v status %s", applied, txn.Status)
	}

	txn, applied, err = s.SettleTransaction(ctx, "R1", outcome)
	if err != nil {
		t.Fatalf("replay settle: %v", err)
	}
	if applied {
		t.Fatal("replay settle applied the delta again")
	}
	if txn.Status != domain.StatusCompleted {
		t.Fatalf("replay settle status = %s", txn.Status)
	}

	got, _ := s.GetAccount(ctx, account.ID)
	if got.Balance.Amount != 3500 {
		t.Fatalf("balance = %d, want 3500", got.Balance.Amount)
	}
}

func TestSettleTransactionOverdrawStaysPending(t *testing.T) {
	s, account := newTestStore(t, 1000)
	ctx := context.Background()

	if err := s.CreateTransaction(ctx, pendingTxn(account.ID, "R1", domain.DirectionDebit, 6000)); err != nil {
		t.Fatal(err)
	}

	_, _, err := s.SettleTransaction(ctx, "R1", domain.Settlement{Status: domain.StatusCompleted, CompletedAt: time.Now().UTC()})
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	txn, err := s.FindTransactionByReference(ctx, "R1")
	if err != nil {
		t.Fatal(err)
	}
	if txn.Status != domain.StatusPending {
		t.Fatalf("transaction transitioned despite failed delta: %s", txn.Status)
	}
	got, _ := s.GetAccount(ctx, account.ID)
	if got.Balance.Amount != 1000 {
		t.Fatalf("balance mutated: %d", got.Balance.Amount)
	}
}

func TestSettleTransactionSavesAuthorization(t *testing.T) {
	s, account := newTestStore(t, 0)
	ctx := context.Background()

	if err := s.CreateTransaction(ctx, pendingTxn(account.ID, "R1", domain.DirectionCredit, 500)); err != nil {
		t.Fatal(err)
	}
	_, _, err := s.SettleTransaction(ctx, "R1", domain.Settlement{
		Status:             domain.StatusCompleted,
		AuthorizationToken: "AUTH_x9",
		CompletedAt:        time.Now().UTC(),
	})
	if err != nil {
		t.Fatal(err)
	}

	got, _ := s.GetAccount(ctx, account.ID)
	if got.AuthorizationToken != "AUTH_x9" {
		t.Fatalf("authorization token = %q", got.AuthorizationToken)
	}
}

func TestListTransactionsPagination(t *testing.T) {
	s, account := newTestStore(t, 0)
	ctx := context.Background()

	refs := []string{"R1", "R2", "R3", "R4", "R5"}
	for _, ref := range refs {
		if err := s.CreateTransaction(ctx, pendingTxn(account.ID, ref, domain.DirectionCredit, 100)); err != nil {
			t.Fatal(err)
		}
	}

	page, total, err := s.ListTransactions(ctx, account.ID, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if total != 5 {
		t.Fatalf("total = %d, want 5", total)
	}
	if len(page) != 2 || page[0].Reference != "R5" || page[1].Reference != "R4" {
		t.Fatalf("page 1 = %+v", page)
	}

	page, _, err = s.ListTransactions(ctx, account.ID, 3, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 1 || page[0].Reference != "R1" {
		t.Fatalf("page 3 = %+v", page)
	}

	page, _, err = s.ListTransactions(ctx, account.ID, 4, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 0 {
		t.Fatalf("page past end = %+v", page)
	}

	if _, _, err := s.ListTransactions(ctx, 999, 1, 2); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
