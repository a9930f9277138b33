package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lumipay/paygate/internal/gateway/domain"
	"github.com/lumipay/paygate/internal/gateway/provider"
	"github.com/lumipay/paygate/internal/gateway/repository"
)

// OrchestratorConfig carries the merchant identity and callback wiring the
// orchestrator embeds into provider payloads.
type OrchestratorConfig struct {
	MerchantID string
	SiteID     string
	// NotifyURL is this service's own callback endpoint; the provider calls
	// back to the adapter, never to the original caller.
	NotifyURL string
	// ValidityWindow bounds how long a deposit pay URL stays payable.
	ValidityWindow time.Duration
	// ProviderLocation is the provider's local time zone; expiry timestamps
	// are computed in it.
	ProviderLocation *time.Location
}

// Orchestrator builds provider-bound payloads, signs them, calls the
// provider and persists the outcome of request creation.
type Orchestrator struct {
	repo     repository.TransactionRepository
	provider provider.Client
	orderNos *domain.OrderNoGenerator
	cfg      OrchestratorConfig
	logger   *slog.Logger
}

func NewOrchestrator(
	repo repository.TransactionRepository,
	providerClient provider.Client,
	orderNos *domain.OrderNoGenerator,
	cfg OrchestratorConfig,
	logger *slog.Logger,
) *Orchestrator {
	if cfg.ProviderLocation == nil {
		cfg.ProviderLocation = time.UTC
	}
	if cfg.ValidityWindow <= 0 {
		cfg.ValidityWindow = 15 * time.Minute
	}
	return &Orchestrator{
		repo:     repo,
		provider: providerClient,
		orderNos: orderNos,
		cfg:      cfg,
		logger:   logger.With("component", "orchestrator"),
	}
}

type DepositRequest struct {
	Amount     decimal.Decimal
	Currency   string
	CustomerID string
	SecretKey  string
}

type DepositResult struct {
	MerchantOrderNo string
	ProviderRef     string
	PayURL          string
	ExpiresAt       time.Time
}

type PayoutRequest struct {
	Amount          decimal.Decimal
	CustomerID      string
	BankName        string
	BankAccountName string
	BankAccountNo   string
	SecretKey       string
}

type PayoutResult struct {
	MerchantOrderNo string
	ProviderRef     string
}

type PayoutStatus struct {
	MerchantOrderNo string
	ProviderRef     *string
	LocalStatus     domain.TransactionStatus
	ProviderStatus  string
}

type Balance struct {
	Available decimal.Decimal
	Frozen    decimal.Decimal
}

// InitiateDeposit creates a PENDING transaction, places a deposit order with
// the provider and records acceptance or rejection. The secret key comes
// from the caller, not process config.
func (o *Orchestrator) InitiateDeposit(ctx context.Context, req DepositRequest) (*DepositResult, error) {
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("deposit amount must be positive, got %s", req.Amount)
	}

	orderNo := o.orderNos.Next(domain.DirectionDeposit)
	logger := o.logger.With("merchant_order_no", orderNo, "direction", "deposit")

	txn := &domain.Transaction{
		MerchantOrderNo: orderNo,
		Direction:       domain.DirectionDeposit,
		Amount:          req.Amount,
		CustomerID:      req.CustomerID,
	}
	if _, err := o.repo.Create(ctx, txn); err != nil {
		initiationsCounter.WithLabelValues("deposit", "store_error").Inc()
		return nil, fmt.Errorf("creating transaction record: %w", err)
	}

	start := time.Now()
	resp, err := o.provider.CreateDepositOrder(ctx, provider.DepositOrderRequest{
		MerchantID:  o.cfg.MerchantID,
		OrderNo:     orderNo,
		OrderAmount: req.Amount.StringFixed(2),
		Currency:    req.Currency,
		NotifyURL:   o.cfg.NotifyURL,
		CustomerID:  req.CustomerID,
	}, req.SecretKey)
	providerRequestDurationHist.WithLabelValues("create_deposit").Observe(time.Since(start).Seconds())

	if err != nil {
		return nil, o.recordInitiationFailure(ctx, logger, "deposit", orderNo, err)
	}

	expiresAt := time.Now().In(o.cfg.ProviderLocation).Add(o.cfg.ValidityWindow)
	payURL := resp.PayURL
	preview := repository.AcceptancePreview{PayURL: &payURL, ExpiresAt: &expiresAt}
	if err := o.repo.MarkRequestAccepted(ctx, orderNo, resp.PlatOrderNo, preview); err != nil {
		initiationsCounter.WithLabelValues("deposit", "store_error").Inc()
		logger.ErrorContext(ctx, "Provider accepted deposit but local update failed", "error", err, "provider_ref", resp.PlatOrderNo)
		return nil, fmt.Errorf("recording provider acceptance: %w", err)
	}

	initiationsCounter.WithLabelValues("deposit", "accepted").Inc()
	logger.InfoContext(ctx, "Deposit order accepted by provider", "provider_ref", resp.PlatOrderNo)
	return &DepositResult{
		MerchantOrderNo: orderNo,
		ProviderRef:     resp.PlatOrderNo,
		PayURL:          resp.PayURL,
		ExpiresAt:       expiresAt,
	}, nil
}

// InitiatePayout creates a PENDING transaction, places a payout order with
// the provider and records acceptance (PENDING→PROCESSING) or rejection.
func (o *Orchestrator) InitiatePayout(ctx context.Context, req PayoutRequest) (*PayoutResult, error) {
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("payout amount must be positive, got %s", req.Amount)
	}

	orderNo := o.orderNos.Next(domain.DirectionWithdraw)
	logger := o.logger.With("merchant_order_no", orderNo, "direction", "withdraw")

	txn := &domain.Transaction{
		MerchantOrderNo: orderNo,
		Direction:       domain.DirectionWithdraw,
		Amount:          req.Amount,
		CustomerID:      req.CustomerID,
		BankName:        &req.BankName,
		BankAccountName: &req.BankAccountName,
		BankAccountNo:   &req.BankAccountNo,
	}
	if _, err := o.repo.Create(ctx, txn); err != nil {
		initiationsCounter.WithLabelValues("withdraw", "store_error").Inc()
		return nil, fmt.Errorf("creating transaction record: %w", err)
	}

	start := time.Now()
	resp, err := o.provider.CreatePayoutOrder(ctx, provider.PayoutOrderRequest{
		MerchantID:  o.cfg.MerchantID,
		OrderNo:     orderNo,
		OrderAmount: req.Amount.StringFixed(2),
		BankName:    req.BankName,
		AccountName: req.BankAccountName,
		AccountNo:   req.BankAccountNo,
		NotifyURL:   o.cfg.NotifyURL,
		CustomerID:  req.CustomerID,
	}, req.SecretKey)
	providerRequestDurationHist.WithLabelValues("create_payout").Observe(time.Since(start).Seconds())

	if err != nil {
		return nil, o.recordInitiationFailure(ctx, logger, "withdraw", orderNo, err)
	}

	if err := o.repo.MarkRequestAccepted(ctx, orderNo, resp.PlatOrderNo, repository.AcceptancePreview{}); err != nil {
		initiationsCounter.WithLabelValues("withdraw", "store_error").Inc()
		logger.ErrorContext(ctx, "Provider accepted payout but local update failed", "error", err, "provider_ref", resp.PlatOrderNo)
		return nil, fmt.Errorf("recording provider acceptance: %w", err)
	}

	initiationsCounter.WithLabelValues("withdraw", "accepted").Inc()
	logger.InfoContext(ctx, "Payout order accepted by provider", "provider_ref", resp.PlatOrderNo)
	return &PayoutResult{MerchantOrderNo: orderNo, ProviderRef: resp.PlatOrderNo}, nil
}

// recordInitiationFailure persists an explicit provider rejection and passes
// the error through. Upstream-unreachable leaves the row PENDING: the
// provider may still have accepted the order and its callback must be able
// to settle it.
func (o *Orchestrator) recordInitiationFailure(ctx context.Context, logger *slog.Logger, direction, orderNo string, err error) error {
	var provErr *domain.ProviderError
	if errors.As(err, &provErr) {
		initiationsCounter.WithLabelValues(direction, "rejected").Inc()
		logger.WarnContext(ctx, "Provider rejected request", "code", provErr.Code, "message", provErr.Message)
		if markErr := o.repo.MarkRequestRejected(ctx, orderNo, provErr.Code, provErr.Message); markErr != nil {
			logger.ErrorContext(ctx, "Failed to record provider rejection", "error", markErr)
		}
		return err
	}

	initiationsCounter.WithLabelValues(direction, "upstream_error").Inc()
	logger.ErrorContext(ctx, "Provider unreachable", "error", err)
	return err
}

// GetPayoutStatus answers a withdraw-status query: the local record plus the
// provider's current view of the order.
func (o *Orchestrator) GetPayoutStatus(ctx context.Context, orderNo, secretKey string) (*PayoutStatus, error) {
	txn, err := o.repo.GetByOrderNo(ctx, orderNo)
	if err != nil {
		return nil, err
	}
	if txn.Direction != domain.DirectionWithdraw {
		return nil, domain.ErrNotFound
	}

	status := &PayoutStatus{
		MerchantOrderNo: txn.MerchantOrderNo,
		ProviderRef:     txn.ProviderRef,
		LocalStatus:     txn.Status,
	}

	start := time.Now()
	resp, err := o.provider.QueryPayoutStatus(ctx, provider.PayoutQueryRequest{
		MerchantID: o.cfg.MerchantID,
		OrderNo:    orderNo,
	}, secretKey)
	providerRequestDurationHist.WithLabelValues("query_payout").Observe(time.Since(start).Seconds())
	if err != nil {
		// The local record still answers the query; the provider view is
		// best effort.
		o.logger.WarnContext(ctx, "Payout status query to provider failed", "merchant_order_no", orderNo, "error", err)
		return status, nil
	}

	status.ProviderStatus = resp.OrderStatus
	return status, nil
}

// GetBalance queries the merchant's balance at the provider.
func (o *Orchestrator) GetBalance(ctx context.Context, secretKey string) (*Balance, error) {
	start := time.Now()
	resp, err := o.provider.QueryBalance(ctx, provider.BalanceQueryRequest{
		MerchantID: o.cfg.MerchantID,
	}, secretKey)
	providerRequestDurationHist.WithLabelValues("query_balance").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	available, err := decimal.NewFromString(resp.Balance)
	if err != nil {
		return nil, fmt.Errorf("parsing provider balance %q: %w", resp.Balance, err)
	}
	frozen := decimal.Zero
	if resp.FrozenBalance != "" {
		frozen, err = decimal.NewFromString(resp.FrozenBalance)
		if err != nil {
			return nil, fmt.Errorf("parsing provider frozen balance %q: %w", resp.FrozenBalance, err)
		}
	}
	return &Balance{Available: available, Frozen: frozen}, nil
}
