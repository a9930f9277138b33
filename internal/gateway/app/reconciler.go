package app

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lumipay/paygate/internal/gateway/domain"
	"github.com/lumipay/paygate/internal/gateway/repository"
	"github.com/lumipay/paygate/internal/gateway/sign"
)

// AckResponse is the literal body the provider expects for a handled
// callback. Anything else makes the provider redeliver.
const AckResponse = "success"

// Provider order-status codes carried in callbacks and payout queries.
const (
	providerStatusProcessing    = "0"
	providerStatusSuccess       = "1"
	providerStatusFailed        = "2"
	providerStatusManualSuccess = "3"
)

// EventPublisher publishes settlement events. Satisfied by
// messagebroker.NATSClient.
type EventPublisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// SettlementEvent is published on every terminal transition.
type SettlementEvent struct {
	MerchantOrderNo string           `json:"merchant_order_no"`
	ProviderRef     *string          `json:"provider_ref,omitempty"`
	Direction       domain.Direction `json:"direction"`
	Status          string           `json:"status"`
	Amount          string           `json:"amount"`
	CreditedAmount  *string          `json:"credited_amount,omitempty"`
	FeeAmount       *string          `json:"fee_amount,omitempty"`
	SettledAt       *time.Time       `json:"settled_at,omitempty"`
}

// Reconciler validates inbound provider callbacks and applies at-most-once
// status transitions to the matching transaction.
type Reconciler struct {
	repo      repository.TransactionRepository
	publisher EventPublisher
	logger    *slog.Logger
}

func NewReconciler(repo repository.TransactionRepository, publisher EventPublisher, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		repo:      repo,
		publisher: publisher,
		logger:    logger.With("component", "reconciler"),
	}
}

// HandleCallback processes one provider callback. It returns AckResponse for
// every logically handled delivery, including duplicates ("already settled")
// and still-processing notifications. Only a bad signature, an unknown
// order, an uninterpretable status code, or a storage failure surface as
// errors; the provider treats a non-ack as "deliver again".
//
// Verification happens before any lookup so a failed signature discloses
// nothing about whether the order exists.
func (r *Reconciler) HandleCallback(ctx context.Context, params map[string]string, secretKey string) (string, error) {
	if !sign.Verify(params, params[sign.SignField], secretKey) {
		callbacksCounter.WithLabelValues("invalid_signature").Inc()
		r.logger.WarnContext(ctx, "Callback rejected: signature verification failed")
		return "", domain.ErrSignatureInvalid
	}

	orderNo := params["orderNo"]
	logger := r.logger.With("merchant_order_no", orderNo)

	txn, err := r.repo.GetByOrderNo(ctx, orderNo)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			callbacksCounter.WithLabelValues("not_found").Inc()
			logger.WarnContext(ctx, "Callback for unknown order")
			return "", domain.ErrNotFound
		}
		callbacksCounter.WithLabelValues("error").Inc()
		return "", err
	}

	var final domain.TransactionStatus
	switch params["orderStatus"] {
	case providerStatusProcessing:
		// No terminal action; acknowledge so the provider stops retrying
		// this intermediate notification.
		callbacksCounter.WithLabelValues("processing").Inc()
		logger.InfoContext(ctx, "Callback reports order still processing")
		return AckResponse, nil
	case providerStatusSuccess, providerStatusManualSuccess:
		final = domain.StatusSuccess
	case providerStatusFailed:
		final = domain.StatusFailed
	default:
		// A code outside the documented set is a failure to interpret,
		// never an implicit success.
		callbacksCounter.WithLabelValues("unknown_status").Inc()
		logger.ErrorContext(ctx, "Callback carries unknown order status", "order_status", params["orderStatus"])
		return "", domain.ErrUnknownStatus
	}

	credited := parseOptionalDecimal(params["orderAmount"])
	fee := parseOptionalDecimal(params["fee"])

	settled, err := r.repo.ApplyTerminalStatus(ctx, orderNo, final, credited, fee)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadySettled) {
			// Duplicate or late delivery on a terminal row: a no-op, still
			// acknowledged.
			callbacksCounter.WithLabelValues("duplicate").Inc()
			logger.InfoContext(ctx, "Callback on already-settled order, no-op", "status", txn.Status)
			return AckResponse, nil
		}
		callbacksCounter.WithLabelValues("error").Inc()
		logger.ErrorContext(ctx, "Failed to apply terminal status", "error", err)
		return "", err
	}

	callbacksCounter.WithLabelValues("applied").Inc()
	logger.InfoContext(ctx, "Terminal status applied from callback", "status", final)

	r.publishSettlement(ctx, logger, settled)
	return AckResponse, nil
}

// publishSettlement emits the settlement event. Publishing is best effort:
// the status transition is already durable and the callback is acknowledged
// regardless.
func (r *Reconciler) publishSettlement(ctx context.Context, logger *slog.Logger, txn *domain.Transaction) {
	if r.publisher == nil {
		return
	}

	event := SettlementEvent{
		MerchantOrderNo: txn.MerchantOrderNo,
		ProviderRef:     txn.ProviderRef,
		Direction:       txn.Direction,
		Status:          string(txn.Status),
		Amount:          txn.Amount.StringFixed(2),
		SettledAt:       txn.SettledAt,
	}
	if txn.CreditedAmount != nil {
		s := txn.CreditedAmount.StringFixed(2)
		event.CreditedAmount = &s
	}
	if txn.FeeAmount != nil {
		s := txn.FeeAmount.StringFixed(2)
		event.FeeAmount = &s
	}

	data, err := json.Marshal(event)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to marshal settlement event", "error", err)
		return
	}

	subject := "payments.settled." + strings.ToLower(string(txn.Direction))
	if err := r.publisher.Publish(ctx, subject, data); err != nil {
		logger.ErrorContext(ctx, "Failed to publish settlement event", "subject", subject, "error", err)
		return
	}
	settlementEventsCounter.WithLabelValues(strings.ToLower(string(txn.Direction)), string(txn.Status)).Inc()
}

func parseOptionalDecimal(s string) *decimal.Decimal {
	if s == "" {
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	return &d
}
