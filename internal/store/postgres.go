package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/obiekwelu/chatwallet/internal/domain"
)

const pgUniqueViolation = "23505"

// PostgresStore is the pgx-backed ledger store. Settlement runs in a single
// database transaction: the status check-and-set and the balance delta commit
// together or not at all.
type PostgresStore struct {
	Db *pgxpool.Pool
}

func NewPostgresStore(connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &PostgresStore{Db: pool}, nil
}

func (s *PostgresStore) Close() {
	s.Db.Close()
}

// Migrate creates the ledger schema if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS accounts (
    id BIGSERIAL PRIMARY KEY,
    email TEXT NOT NULL UNIQUE,
    balance BIGINT NOT NULL DEFAULT 0,
    currency TEXT NOT NULL,
    authorization_token TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS transactions (
    id UUID PRIMARY KEY,
    account_id BIGINT NOT NULL REFERENCES accounts(id),
    reference TEXT NOT NULL UNIQUE,
    direction TEXT NOT NULL,
    amount BIGINT NOT NULL,
    currency TEXT NOT NULL,
    counterparty TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'pending',
    failure_reason TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    completed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_transactions_account_created
    ON transactions (account_id, created_at DESC);
`
	if _, err := s.Db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	var account domain.Account
	err := s.Db.QueryRow(ctx,
		"SELECT id, email, balance, currency, authorization_token, created_at FROM accounts WHERE id = $1",
		id).Scan(&account.ID, &account.Email, &account.Balance.Amount, &account.Balance.Currency,
		&account.AuthorizationToken, &account.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("account %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get account %d: %w", id, err)
	}
	return &account, nil
}

func (s *PostgresStore) CreateAccount(ctx context.Context, email string, opening domain.Money) (*domain.Account, error) {
	account := domain.Account{Email: email, Balance: opening}
	err := s.Db.QueryRow(ctx,
		"INSERT INTO accounts (email, balance, currency) VALUES ($1, $2, $3) RETURNING id, created_at",
		email, opening.Amount, opening.Currency).Scan(&account.ID, &account.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}
	return &account, nil
}

func (s *PostgresStore) SaveAuthorization(ctx context.Context, accountID int64, token string) error {
	tag, err := s.Db.Exec(ctx,
		"UPDATE accounts SET authorization_token = $2 WHERE id = $1", accountID, token)
	if err != nil {
		return fmt.Errorf("save authorization for account %d: %w", accountID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("account %d: %w", accountID, domain.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) CreateTransaction(ctx context.Context, txn *domain.Transaction) error {
	_, err := s.Db.Exec(ctx, `
INSERT INTO transactions (id, account_id, reference, direction, amount, currency, counterparty, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		txn.ID, txn.AccountID, txn.Reference, txn.Direction, txn.Amount.Amount,
		txn.Amount.Currency, txn.Counterparty, txn.Status, txn.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("reference %s: %w", txn.Reference, domain.ErrDuplicateReference)
		}
		return fmt.Errorf("create transaction %s: %w", txn.Reference, err)
	}
	return nil
}

const transactionColumns = "id, account_id, reference, direction, amount, currency, counterparty, status, failure_reason, created_at, completed_at"

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var txn domain.Transaction
	err := row.Scan(&txn.ID, &txn.AccountID, &txn.Reference, &txn.Direction,
		&txn.Amount.Amount, &txn.Amount.Currency, &txn.Counterparty,
		&txn.Status, &txn.FailureReason, &txn.CreatedAt, &txn.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func (s *PostgresStore) FindTransactionByReference(ctx context.Context, ref string) (*domain.Transaction, error) {
	txn, err := scanTransaction(s.Db.QueryRow(ctx,
		"SELECT "+transactionColumns+" FROM transactions WHERE reference = $1", ref))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("reference %s: %w", ref, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find transaction %s: %w", ref, err)
	}
	return txn, nil
}

func (s *PostgresStore) TransitionTransaction(ctx context.Context, ref string, status domain.TransactionStatus, reason string, completedAt time.Time) (*domain.Transaction, error) {
	txn, err := scanTransaction(s.Db.QueryRow(ctx, `
UPDATE transactions SET status = $2, failure_reason = $3, completed_at = $4
WHERE reference = $1 AND status = 'pending'
RETURNING `+transactionColumns,
		ref, status, reason, completedAt))
	if err == nil {
		return txn, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("transition %s: %w", ref, err)
	}

	// No pending row matched: either the reference is unknown or the
	// transaction already settled.
	existing, err := s.FindTransactionByReference(ctx, ref)
	if err != nil {
		return nil, err
	}
	if existing.Status == status {
		return existing, nil
	}
	return nil, fmt.Errorf("reference %s is %s: %w", ref, existing.Status, domain.ErrAlreadyTerminal)
}

func (s *PostgresStore) ApplyDelta(ctx context.Context, accountID int64, delta int64, ref string) (*domain.Account, error) {
	tx, err := s.Db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	account, err := applyDeltaTx(ctx, tx, accountID, delta, ref)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("tx commit failed: %w", err)
	}
	return account, nil
}

// applyDeltaTx adjusts the balance under a row lock inside the caller's
// transaction.
func applyDeltaTx(ctx context.Context, tx pgx.Tx, accountID int64, delta int64, ref string) (*domain.Account, error) {
	var account domain.Account
	err := tx.QueryRow(ctx,
		"SELECT id, email, balance, currency, authorization_token, created_at FROM accounts WHERE id = $1 FOR UPDATE",
		accountID).Scan(&account.ID, &account.Email, &account.Balance.Amount, &account.Balance.Currency,
		&account.AuthorizationToken, &account.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("account %d: %w", accountID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("lock acquisition failed: %w", err)
	}

	if delta < 0 && account.Balance.Amount+delta < 0 {
		return nil, fmt.Errorf("account %d settling %s: %w", accountID, ref, domain.ErrInsufficientFunds)
	}

	account.Balance.Amount += delta
	if _, err := tx.Exec(ctx, "UPDATE accounts SET balance = $2 WHERE id = $1", accountID, account.Balance.Amount); err != nil {
		return nil, fmt.Errorf("balance update failed: %w", err)
	}
	return &account, nil
}

func (s *PostgresStore) SettleTransaction(ctx context.Context, ref string, outcome domain.Settlement) (*domain.Transaction, bool, error) {
	tx, err := s.Db.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	// Check-and-set on status: only one settler wins the pending row.
	txn, err := scanTransaction(tx.QueryRow(ctx, `
UPDATE transactions SET status = $2, failure_reason = $3, completed_at = $4
WHERE reference = $1 AND status = 'pending'
RETURNING `+transactionColumns,
		ref, outcome.Status, outcome.FailureReason, outcome.CompletedAt))
	if errors.Is(err, pgx.ErrNoRows) {
		existing, ferr := s.FindTransactionByReference(ctx, ref)
		if ferr != nil {
			return nil, false, ferr
		}
		if existing.Status == outcome.Status {
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("reference %s is %s: %w", ref, existing.Status, domain.ErrAlreadyTerminal)
	}
	if err != nil {
		return nil, false, fmt.Errorf("settle %s: %w", ref, err)
	}

	if outcome.Status == domain.StatusCompleted {
		// Rollback on overdraw leaves the transaction pending.
		if _, err := applyDeltaTx(ctx, tx, txn.AccountID, txn.SignedDelta(), ref); err != nil {
			return nil, false, err
		}
		if outcome.AuthorizationToken != "" {
			if _, err := tx.Exec(ctx,
				"UPDATE accounts SET authorization_token = $2 WHERE id = $1",
				txn.AccountID, outcome.AuthorizationToken); err != nil {
				return nil, false, fmt.Errorf("save authorization: %w", err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("tx commit failed: %w", err)
	}
	return txn, true, nil
}

func (s *PostgresStore) ListTransactions(ctx context.Context, accountID int64, page, pageSize int) ([]domain.Transaction, int64, error) {
	// First check if account exists
	var exists bool
	if err := s.Db.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM accounts WHERE id=$1)", accountID).Scan(&exists); err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	if !exists {
		return nil, 0, fmt.Errorf("account %d: %w", accountID, domain.ErrNotFound)
	}

	var total int64
	if err := s.Db.QueryRow(ctx, "SELECT COUNT(*) FROM transactions WHERE account_id = $1", accountID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	rows, err := s.Db.Query(ctx,
		"SELECT "+transactionColumns+" FROM transactions WHERE account_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3",
		accountID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	txns := []domain.Transaction{}
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan transaction: %w", err)
		}
		txns = append(txns, *txn)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	return txns, total, nil
}
