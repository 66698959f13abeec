package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/obiekwelu/chatwallet/internal/domain"
)

// MaxPageSize caps transaction listing pages.
const MaxPageSize = 100

var (
	initiationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_initiations_total",
		Help: "Transactions initiated, labeled by direction",
	}, []string{"direction"})

	reconciliationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_reconciliations_total",
		Help: "Reconcile calls, labeled by outcome",
	}, []string{"outcome"})
)

var (
	ErrNoSavedAuthorization = errors.New("account has no saved authorization")
)

// Engine orchestrates fund movement: it records intent, calls the gateway,
// and applies verified outcomes to balances exactly once.
type Engine struct {
	store    Store
	gateway  Gateway
	currency string
	log      *zap.Logger
}

func NewEngine(store Store, gw Gateway, currency string, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{store: store, gateway: gw, currency: currency, log: log.Named("wallet")}
}

// CreditIntent is the result of initiating a credit: the payer completes the
// payment at AuthorizationURL, then the transaction is reconciled by
// reference.
type CreditIntent struct {
	Reference        string              `json:"reference"`
	AuthorizationURL string              `json:"authorization_url,omitempty"`
	Transaction      *domain.Transaction `json:"transaction"`
}

// DebitIntent is the result of initiating an outbound debit.
type DebitIntent struct {
	Reference   string              `json:"reference"`
	Transaction *domain.Transaction `json:"transaction"`
}

// ReconcileResult reports the transaction's settled state. Applied is true
// only for the call that performed the balance mutation; replays and
// already-terminal lookups return the stored record with Applied false.
type ReconcileResult struct {
	Transaction *domain.Transaction `json:"transaction"`
	Applied     bool                `json:"applied"`
}

func (e *Engine) validateAmount(amount domain.Money) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", domain.ErrValidation)
	}
	if amount.Currency != e.currency {
		return fmt.Errorf("%w: wallet currency is %s, got %s", domain.ErrValidation, e.currency, amount.Currency)
	}
	return nil
}

// InitiateCredit starts a gateway-backed deposit. The pending transaction is
// durably recorded, keyed by the gateway reference, before this returns.
func (e *Engine) InitiateCredit(ctx context.Context, accountID int64, amount domain.Money) (*CreditIntent, error) {
	if err := e.validateAmount(amount); err != nil {
		return nil, err
	}

	account, err := e.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("load account %d: %w", accountID, err)
	}

	init, err := e.gateway.InitializeCredit(ctx, account.Email, amount)
	if err != nil {
		return nil, fmt.Errorf("initialize credit: %w", err)
	}

	txn, err := e.recordPending(ctx, account, domain.DirectionCredit, amount, init.Reference, account.Email)
	if err != nil {
		return nil, err
	}

	initiationsTotal.WithLabelValues(string(domain.DirectionCredit)).Inc()
	e.log.Info("credit initiated",
		zap.Int64("account_id", accountID),
		zap.String("reference", init.Reference),
		zap.Int64("amount", amount.Amount),
	)
	return &CreditIntent{Reference: init.Reference, AuthorizationURL: init.AuthorizationURL, Transaction: txn}, nil
}

// ChargeAuthorization starts a deposit funded by the account's saved gateway
// authorization. No redirect is involved; the gateway's inline status is a
// hint only and settlement still goes through Reconcile.
func (e *Engine) ChargeAuthorization(ctx context.Context, accountID int64, amount domain.Money) (*CreditIntent, error) {
	if err := e.validateAmount(amount); err != nil {
		return nil, err
	}

	account, err := e.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("load account %d: %w", accountID, err)
	}
	if account.AuthorizationToken == "" {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, ErrNoSavedAuthorization)
	}

	charge, err := e.gateway.ChargeAuthorization(ctx, account.Email, account.AuthorizationToken, amount)
	if err != nil {
		return nil, fmt.Errorf("charge authorization: %w", err)
	}

	txn, err := e.recordPending(ctx, account, domain.DirectionCredit, amount, charge.Reference, account.Email)
	if err != nil {
		return nil, err
	}

	initiationsTotal.WithLabelValues(string(domain.DirectionCredit)).Inc()
	e.log.Info("authorization charge initiated",
		zap.Int64("account_id", accountID),
		zap.String("reference", charge.Reference),
		zap.String("gateway_hint", string(charge.Status)),
	)
	return &CreditIntent{Reference: charge.Reference, Transaction: txn}, nil
}

// InitiateDebit starts an outbound transfer to a bank destination. The
// balance pre-check here only rejects obvious overdrafts early; the
// authoritative check happens again inside settlement, so two racing debits
// can both pass this point and still settle correctly.
func (e *Engine) InitiateDebit(ctx context.Context, accountID int64, amount domain.Money, dest Destination) (*DebitIntent, error) {
	if err := e.validateAmount(amount); err != nil {
		return nil, err
	}
	if dest.Name == "" || dest.AccountNumber == "" || dest.BankCode == "" {
		return nil, fmt.Errorf("%w: destination name, account number and bank code are required", domain.ErrValidation)
	}

	account, err := e.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("load account %d: %w", accountID, err)
	}
	if cmp, err := account.Balance.Cmp(amount); err != nil {
		return nil, err
	} else if cmp < 0 {
		return nil, fmt.Errorf("%w: balance %s below %s", domain.ErrInsufficientFunds, account.Balance, amount)
	}

	recipientCode, err := e.gateway.CreateRecipient(ctx, dest)
	if err != nil {
		return nil, fmt.Errorf("create recipient: %w", err)
	}

	init, err := e.gateway.InitiateTransfer(ctx, recipientCode, amount, "wallet withdrawal")
	if err != nil {
		return nil, fmt.Errorf("initiate transfer: %w", err)
	}

	counterparty := fmt.Sprintf("%s (%s/%s)", dest.Name, dest.BankCode, dest.AccountNumber)
	txn, err := e.recordPending(ctx, account, domain.DirectionDebit, amount, init.Reference, counterparty)
	if err != nil {
		return nil, err
	}

	initiationsTotal.WithLabelValues(string(domain.DirectionDebit)).Inc()
	e.log.Info("debit initiated",
		zap.Int64("account_id", accountID),
		zap.String("reference", init.Reference),
		zap.Int64("amount", amount.Amount),
	)
	return &DebitIntent{Reference: init.Reference, Transaction: txn}, nil
}

func (e *Engine) recordPending(ctx context.Context, account *domain.Account, dir domain.Direction, amount domain.Money, ref, counterparty string) (*domain.Transaction, error) {
	txn := &domain.Transaction{
		ID:           uuid.New(),
		AccountID:    account.ID,
		Reference:    ref,
		Direction:    dir,
		Amount:       amount,
		Counterparty: counterparty,
		Status:       domain.StatusPending,
		CreatedAt:    time.Now().UTC(),
	}
	if err := e.store.CreateTransaction(ctx, txn); err != nil {
		if errors.Is(err, domain.ErrDuplicateReference) {
			// A freshly issued reference must be globally unique; a
			// collision means the gateway replayed one.
			return nil, fmt.Errorf("%w: gateway reused reference %s", domain.ErrGatewayProtocol, ref)
		}
		return nil, fmt.Errorf("record pending transaction: %w", err)
	}
	return txn, nil
}

// Reconcile is the idempotent convergence point for verify calls and webhook
// deliveries. It re-derives the authoritative outcome from the gateway and
// applies it to the ledger at most once.
func (e *Engine) Reconcile(ctx context.Context, reference string) (*ReconcileResult, error) {
	txn, err := e.store.FindTransactionByReference(ctx, reference)
	if err != nil {
		reconciliationsTotal.WithLabelValues("unknown_reference").Inc()
		return nil, fmt.Errorf("find transaction %s: %w", reference, err)
	}

	// Terminal states are absorbing: duplicate webhooks, repeated verifies
	// and out-of-order deliveries all land here.
	if txn.Status.Terminal() {
		reconciliationsTotal.WithLabelValues("replay").Inc()
		return &ReconcileResult{Transaction: txn, Applied: false}, nil
	}

	verification, err := e.gateway.Verify(ctx, reference, txn.Direction)
	if err != nil {
		reconciliationsTotal.WithLabelValues("verify_error").Inc()
		return nil, fmt.Errorf("verify %s: %w", reference, err)
	}

	switch verification.Status {
	case VerifyPending:
		reconciliationsTotal.WithLabelValues("still_pending").Inc()
		return &ReconcileResult{Transaction: txn, Applied: false}, nil

	case VerifyFailed:
		settled, applied, err := e.store.SettleTransaction(ctx, reference, domain.Settlement{
			Status:        domain.StatusFailed,
			FailureReason: domain.ReasonGatewayDeclined,
			CompletedAt:   time.Now().UTC(),
		})
		if err != nil {
			return nil, fmt.Errorf("settle %s as failed: %w", reference, err)
		}
		reconciliationsTotal.WithLabelValues("failed").Inc()
		return &ReconcileResult{Transaction: settled, Applied: applied}, nil

	case VerifySuccess:
		return e.settleSuccess(ctx, txn, verification)

	default:
		reconciliationsTotal.WithLabelValues("verify_error").Inc()
		return nil, fmt.Errorf("%w: verify status %q", domain.ErrGatewayProtocol, verification.Status)
	}
}

func (e *Engine) settleSuccess(ctx context.Context, txn *domain.Transaction, v *Verification) (*ReconcileResult, error) {
	// The recorded amount is immutable; a gateway settling a different
	// amount is a discrepancy to investigate, not to post.
	if v.Amount.Amount != 0 {
		if cmp, err := txn.Amount.Cmp(v.Amount); err != nil || cmp != 0 {
			reconciliationsTotal.WithLabelValues("amount_mismatch").Inc()
			e.log.Error("settled amount differs from recorded amount",
				zap.String("reference", txn.Reference),
				zap.Int64("recorded", txn.Amount.Amount),
				zap.Int64("settled", v.Amount.Amount),
				zap.String("settled_currency", v.Amount.Currency),
			)
			return nil, fmt.Errorf("%w: settled %s for recorded %s on %s",
				domain.ErrGatewayProtocol, v.Amount, txn.Amount, txn.Reference)
		}
	}

	token := ""
	if txn.Direction == domain.DirectionCredit {
		token = v.AuthorizationToken
	}

	settled, applied, err := e.store.SettleTransaction(ctx, txn.Reference, domain.Settlement{
		Status:             domain.StatusCompleted,
		AuthorizationToken: token,
		CompletedAt:        time.Now().UTC(),
	})
	if errors.Is(err, domain.ErrInsufficientFunds) {
		// The debit lost the settlement race: the pre-check passed but
		// the funds are gone. Fail it without touching the balance.
		settled, applied, err = e.store.SettleTransaction(ctx, txn.Reference, domain.Settlement{
			Status:        domain.StatusFailed,
			FailureReason: domain.ReasonInsufficientFundsAtSettlement,
			CompletedAt:   time.Now().UTC(),
		})
		if err != nil {
			return nil, fmt.Errorf("settle %s as failed after overdraw: %w", txn.Reference, err)
		}
		reconciliationsTotal.WithLabelValues("insufficient_funds").Inc()
		e.log.Warn("debit failed at settlement",
			zap.String("reference", txn.Reference),
			zap.Int64("account_id", txn.AccountID),
		)
		return &ReconcileResult{Transaction: settled, Applied: applied}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("settle %s: %w", txn.Reference, err)
	}

	reconciliationsTotal.WithLabelValues("completed").Inc()
	if applied {
		e.log.Info("transaction settled",
			zap.String("reference", txn.Reference),
			zap.Int64("account_id", txn.AccountID),
			zap.String("direction", string(txn.Direction)),
			zap.Int64("amount", txn.Amount.Amount),
		)
	}
	return &ReconcileResult{Transaction: settled, Applied: applied}, nil
}

// List returns one page of an account's transaction history, newest first.
func (e *Engine) List(ctx context.Context, accountID int64, page, pageSize int) ([]domain.Transaction, int64, error) {
	if page < 1 {
		return nil, 0, fmt.Errorf("%w: page must be positive", domain.ErrValidation)
	}
	if pageSize < 1 {
		return nil, 0, fmt.Errorf("%w: page_size must be positive", domain.ErrValidation)
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return e.store.ListTransactions(ctx, accountID, page, pageSize)
}
