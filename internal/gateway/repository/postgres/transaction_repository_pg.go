package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/lumipay/paygate/internal/gateway/domain"
	"github.com/lumipay/paygate/internal/gateway/repository"
)

// PgxPool is the subset of pgxpool.Pool the repository needs. Declared here
// so tests can substitute pgxmock.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgTransactionRepository struct {
	db     PgxPool
	logger *slog.Logger
}

func NewPgTransactionRepository(db PgxPool, logger *slog.Logger) repository.TransactionRepository {
	return &PgTransactionRepository{db: db, logger: logger.With("component", "transaction_repository_pg")}
}

const transactionColumns = `id, merchant_order_no, provider_ref, direction, amount, status,
	       fee_amount, credited_amount,
	       customer_id, bank_name, bank_account_name, bank_account_no,
	       pay_url, expires_at, error_code, error_message,
	       created_at, updated_at, settled_at`

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var t domain.Transaction
	err := row.Scan(
		&t.ID, &t.MerchantOrderNo, &t.ProviderRef, &t.Direction, &t.Amount, &t.Status,
		&t.FeeAmount, &t.CreditedAmount,
		&t.CustomerID, &t.BankName, &t.BankAccountName, &t.BankAccountNo,
		&t.PayURL, &t.ExpiresAt, &t.ErrorCode, &t.ErrorMessage,
		&t.CreatedAt, &t.UpdatedAt, &t.SettledAt,
	)
	if err != nil {
		return nil, err // caller handles pgx.ErrNoRows
	}
	return &t, nil
}

func (r *PgTransactionRepository) Create(ctx context.Context, txn *domain.Transaction) (*domain.Transaction, error) {
	if txn.ID == "" {
		txn.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	txn.CreatedAt = now
	txn.UpdatedAt = now
	txn.Status = domain.StatusPending

	query := `
		INSERT INTO transactions (
			id, merchant_order_no, direction, amount, status,
			customer_id, bank_name, bank_account_name, bank_account_no,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.Exec(ctx, query,
		txn.ID, txn.MerchantOrderNo, txn.Direction, txn.Amount, txn.Status,
		txn.CustomerID, txn.BankName, txn.BankAccountName, txn.BankAccountNo,
		txn.CreatedAt, txn.UpdatedAt,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error creating transaction", "error", err, "merchant_order_no", txn.MerchantOrderNo)
		return nil, fmt.Errorf("creating transaction: %w", err)
	}
	r.logger.InfoContext(ctx, "Transaction created", "merchant_order_no", txn.MerchantOrderNo, "direction", txn.Direction)
	return txn, nil
}

func (r *PgTransactionRepository) GetByOrderNo(ctx context.Context, orderNo string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE merchant_order_no = $1`
	row := r.db.QueryRow(ctx, query, orderNo)
	txn, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.logger.ErrorContext(ctx, "Error getting transaction by order number", "error", err, "merchant_order_no", orderNo)
		return nil, fmt.Errorf("getting transaction by order number: %w", err)
	}
	return txn, nil
}

func (r *PgTransactionRepository) MarkRequestAccepted(ctx context.Context, orderNo, providerRef string, preview repository.AcceptancePreview) error {
	// Withdraws advance to PROCESSING on acceptance; deposits stay PENDING
	// until the settlement callback. Terminal rows are never touched.
	query := `
		UPDATE transactions SET
			provider_ref = $2,
			pay_url = $3,
			expires_at = $4,
			status = CASE WHEN direction = 'WITHDRAW' THEN 'PROCESSING' ELSE status END,
			updated_at = $5
		WHERE merchant_order_no = $1 AND status IN ('PENDING', 'PROCESSING')
	`
	tag, err := r.db.Exec(ctx, query, orderNo, providerRef, preview.PayURL, preview.ExpiresAt, time.Now().UTC())
	if err != nil {
		r.logger.ErrorContext(ctx, "Error marking request accepted", "error", err, "merchant_order_no", orderNo)
		return fmt.Errorf("marking request accepted: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.classifyUnmatched(ctx, orderNo)
	}
	r.logger.InfoContext(ctx, "Request accepted by provider", "merchant_order_no", orderNo, "provider_ref", providerRef)
	return nil
}

func (r *PgTransactionRepository) MarkRequestRejected(ctx context.Context, orderNo, errCode, errMsg string) error {
	query := `
		UPDATE transactions SET
			status = 'FAILED',
			error_code = $2,
			error_message = $3,
			updated_at = $4
		WHERE merchant_order_no = $1 AND status IN ('PENDING', 'PROCESSING')
	`
	tag, err := r.db.Exec(ctx, query, orderNo, errCode, errMsg, time.Now().UTC())
	if err != nil {
		r.logger.ErrorContext(ctx, "Error marking request rejected", "error", err, "merchant_order_no", orderNo)
		return fmt.Errorf("marking request rejected: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.classifyUnmatched(ctx, orderNo)
	}
	r.logger.InfoContext(ctx, "Request rejected by provider", "merchant_order_no", orderNo, "error_code", errCode)
	return nil
}

func (r *PgTransactionRepository) ApplyTerminalStatus(ctx context.Context, orderNo string, final domain.TransactionStatus, credited, fee *decimal.Decimal) (*domain.Transaction, error) {
	if !final.IsTerminal() {
		return nil, fmt.Errorf("applying terminal status: %s is not terminal", final)
	}

	// The idempotency guard: one conditional UPDATE that only matches
	// non-terminal rows. Two concurrent callbacks race on this statement and
	// exactly one wins; the loser sees zero rows affected.
	query := `
		UPDATE transactions SET
			status = $2,
			credited_amount = $3,
			fee_amount = $4,
			settled_at = $5,
			updated_at = $5
		WHERE merchant_order_no = $1 AND status IN ('PENDING', 'PROCESSING')
		RETURNING ` + transactionColumns
	row := r.db.QueryRow(ctx, query, orderNo, final, credited, fee, time.Now().UTC())
	txn, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.classifyUnmatched(ctx, orderNo)
		}
		r.logger.ErrorContext(ctx, "Error applying terminal status", "error", err, "merchant_order_no", orderNo)
		return nil, fmt.Errorf("applying terminal status: %w", err)
	}
	r.logger.InfoContext(ctx, "Terminal status applied", "merchant_order_no", orderNo, "status", final)
	return txn, nil
}

// classifyUnmatched distinguishes "row does not exist" from "row is already
// terminal" after a guarded update matched nothing.
func (r *PgTransactionRepository) classifyUnmatched(ctx context.Context, orderNo string) error {
	var status domain.TransactionStatus
	err := r.db.QueryRow(ctx, `SELECT status FROM transactions WHERE merchant_order_no = $1`, orderNo).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("classifying unmatched update: %w", err)
	}
	if status.IsTerminal() {
		return domain.ErrAlreadySettled
	}
	// Matched neither the guard nor a terminal state: the row changed under
	// us between statements. Report as already settled; the caller retries
	// or acknowledges.
	return domain.ErrAlreadySettled
}
