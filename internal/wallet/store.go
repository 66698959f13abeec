package wallet

import (
	"context"
	"time"

	"github.com/obiekwelu/chatwallet/internal/domain"
)

// Store is the durable ledger the engine settles against. Implementations
// must serialize ApplyDelta per account and make SettleTransaction a single
// atomic unit: the status transition and the balance delta either both commit
// or neither does.
type Store interface {
	GetAccount(ctx context.Context, id int64) (*domain.Account, error)
	CreateAccount(ctx context.Context, email string, opening domain.Money) (*domain.Account, error)

	// SaveAuthorization persists a reusable gateway authorization token on
	// the account.
	SaveAuthorization(ctx context.Context, accountID int64, token string) error

	// CreateTransaction persists a pending transaction. The gateway
	// reference is the uniqueness gate: a reuse fails with
	// domain.ErrDuplicateReference.
	CreateTransaction(ctx context.Context, txn *domain.Transaction) error

	FindTransactionByReference(ctx context.Context, ref string) (*domain.Transaction, error)

	// TransitionTransaction moves a pending transaction to a terminal
	// status with an atomic check-and-set. Repeating a transition into the
	// same terminal status returns the stored record unchanged; a
	// conflicting terminal status fails with domain.ErrAlreadyTerminal.
	TransitionTransaction(ctx context.Context, ref string, status domain.TransactionStatus, reason string, completedAt time.Time) (*domain.Transaction, error)

	// ApplyDelta atomically adjusts an account balance. Debits that would
	// overdraw fail with domain.ErrInsufficientFunds and leave the balance
	// untouched. The reference identifies the settling transaction for
	// error context.
	ApplyDelta(ctx context.Context, accountID int64, delta int64, ref string) (*domain.Account, error)

	// SettleTransaction applies a Settlement to the pending transaction for
	// ref. For completions it also applies the signed balance delta and
	// persists any authorization token, all in one atomic unit. The bool
	// reports whether this call performed the mutation; a call that finds
	// the transaction already in the requested terminal state returns the
	// stored record and false.
	SettleTransaction(ctx context.Context, ref string, outcome domain.Settlement) (*domain.Transaction, bool, error)

	// ListTransactions returns one page of an account's transactions,
	// newest first, plus the total count.
	ListTransactions(ctx context.Context, accountID int64, page, pageSize int) ([]domain.Transaction, int64, error)
}
