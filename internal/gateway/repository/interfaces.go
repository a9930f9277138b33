package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lumipay/paygate/internal/gateway/domain"
)

// AcceptancePreview carries the provisional settlement data the provider
// returns when it accepts a deposit request.
type AcceptancePreview struct {
	PayURL    *string
	ExpiresAt *time.Time
}

// TransactionRepository is the durable store of outbound requests and their
// settlement state. It is the only shared mutable resource in the adapter;
// every status mutation is a single conditional statement so concurrent
// duplicate callbacks cannot double-apply.
type TransactionRepository interface {
	// Create inserts a new PENDING transaction. The merchant order number
	// must already be assigned and is immutable from here on.
	Create(ctx context.Context, txn *domain.Transaction) (*domain.Transaction, error)

	// GetByOrderNo returns domain.ErrNotFound when no row matches.
	GetByOrderNo(ctx context.Context, orderNo string) (*domain.Transaction, error)

	// MarkRequestAccepted records the provider's reference and preview data.
	// Deposits stay PENDING; withdraws advance PENDING→PROCESSING. Never
	// transitions to a terminal status.
	MarkRequestAccepted(ctx context.Context, orderNo, providerRef string, preview AcceptancePreview) error

	// MarkRequestRejected moves a non-terminal transaction to FAILED with the
	// provider's error code and message.
	MarkRequestRejected(ctx context.Context, orderNo, errCode, errMsg string) error

	// ApplyTerminalStatus performs the guarded at-most-once settlement write:
	// the status, credited amount, fee and settled_at land in one conditional
	// UPDATE that only matches non-terminal rows. A terminal row yields
	// domain.ErrAlreadySettled; a missing row domain.ErrNotFound.
	ApplyTerminalStatus(ctx context.Context, orderNo string, final domain.TransactionStatus, credited, fee *decimal.Decimal) (*domain.Transaction, error)
}
