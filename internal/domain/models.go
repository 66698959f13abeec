package domain

import (
	"time"

	"github.com/google/uuid"
)

// Direction encodes which way money moves relative to the wallet. Amounts are
// always positive; direction carries the sign.
type Direction string

const (
	DirectionCredit Direction = "credit"
	DirectionDebit  Direction = "debit"
)

// TransactionStatus is the settlement state of a transaction. Terminal states
// never transition further.
type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusCompleted TransactionStatus = "completed"
	StatusFailed    TransactionStatus = "failed"
)

func (s TransactionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Machine-readable reasons recorded on failed transactions.
const (
	ReasonGatewayDeclined               = "gateway_declined"
	ReasonInsufficientFundsAtSettlement = "insufficient_funds_at_settlement"
)

// Account is a user's wallet. The balance is only ever mutated by the
// reconciliation engine settling a transaction.
type Account struct {
	ID                 int64     `json:"id"`
	Email              string    `json:"email"`
	Balance            Money     `json:"balance"`
	AuthorizationToken string    `json:"-"`
	CreatedAt          time.Time `json:"created_at"`
}

// Transaction is one gateway-backed movement of money. The gateway reference
// is globally unique and acts as the idempotency key for reconciliation.
type Transaction struct {
	ID            uuid.UUID         `json:"id"`
	AccountID     int64             `json:"account_id"`
	Reference     string            `json:"reference"`
	Direction     Direction         `json:"direction"`
	Amount        Money             `json:"amount"`
	Counterparty  string            `json:"counterparty"`
	Status        TransactionStatus `json:"status"`
	FailureReason string            `json:"failure_reason,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
}

// SignedDelta is the balance change settling this transaction applies:
// positive for credits, negative for debits.
func (t *Transaction) SignedDelta() int64 {
	if t.Direction == DirectionDebit {
		return -t.Amount.Amount
	}
	return t.Amount.Amount
}

// Settlement is the outcome applied to a pending transaction as one atomic
// unit: the status transition plus, for completions, the balance delta and
// any reusable authorization token.
type Settlement struct {
	Status             TransactionStatus
	FailureReason      string
	AuthorizationToken string
	CompletedAt        time.Time
}
