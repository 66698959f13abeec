package wallet

import (
	"context"

	"github.com/obiekwelu/chatwallet/internal/domain"
)

// VerifyStatus is the gateway's authoritative view of a payment attempt.
type VerifyStatus string

const (
	VerifySuccess VerifyStatus = "success"
	VerifyFailed  VerifyStatus = "failed"
	VerifyPending VerifyStatus = "pending"
)

// CreditInit is the gateway's answer to a credit initialization: where to
// send the payer and the reference that keys all later reconciliation.
type CreditInit struct {
	AuthorizationURL string
	Reference        string
}

// TransferInit is the gateway's answer to an outbound transfer initiation.
type TransferInit struct {
	Reference string
}

// ChargeInit is the gateway's answer to charging a saved authorization. The
// status is a hint only; settlement still goes through Verify.
type ChargeInit struct {
	Status    VerifyStatus
	Reference string
}

// Verification is the result of asking the gateway for a payment's true
// outcome. AuthorizationToken is set when the payment produced a reusable
// authorization.
type Verification struct {
	Status             VerifyStatus
	Amount             domain.Money
	AuthorizationToken string
}

// Destination identifies the bank account an outbound debit pays into.
type Destination struct {
	Name          string `json:"name"`
	AccountNumber string `json:"account_number"`
	BankCode      string `json:"bank_code"`
}

// Gateway abstracts the external payment provider. Implementations map
// provider failures onto domain.ErrGatewayRejected (business decline),
// domain.ErrGatewayUnavailable (transient, retryable) or
// domain.ErrGatewayProtocol (malformed response, needs investigation).
type Gateway interface {
	InitializeCredit(ctx context.Context, email string, amount domain.Money) (*CreditInit, error)
	ChargeAuthorization(ctx context.Context, email, token string, amount domain.Money) (*ChargeInit, error)
	CreateRecipient(ctx context.Context, dest Destination) (string, error)
	InitiateTransfer(ctx context.Context, recipientCode string, amount domain.Money, reason string) (*TransferInit, error)
	Verify(ctx context.Context, reference string, direction domain.Direction) (*Verification, error)
}
