package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/lumipay/paygate/internal/gateway/app"
	"github.com/lumipay/paygate/internal/gateway/domain"
)

// PaymentOrchestrator defines the application operations behind the
// transaction routes. Declared here so the handler can be tested with mocks.
type PaymentOrchestrator interface {
	InitiateDeposit(ctx context.Context, req app.DepositRequest) (*app.DepositResult, error)
	InitiatePayout(ctx context.Context, req app.PayoutRequest) (*app.PayoutResult, error)
	GetPayoutStatus(ctx context.Context, merchantOrderNo, secretKey string) (*app.PayoutStatus, error)
	GetBalance(ctx context.Context, secretKey string) (*app.Balance, error)
}

type TransactionHandler struct {
	orchestrator PaymentOrchestrator
	secretKey    string
	validate     *validator.Validate
	logger       *slog.Logger
}

func NewTransactionHandler(orchestrator PaymentOrchestrator, secretKey string, validate *validator.Validate, logger *slog.Logger) *TransactionHandler {
	return &TransactionHandler{
		orchestrator: orchestrator,
		secretKey:    secretKey,
		validate:     validate,
		logger:       logger.With("handler", "transaction"),
	}
}

// RegisterRoutes registers transaction routes with the given router.
func (h *TransactionHandler) RegisterRoutes(r chi.Router) {
	r.Post("/deposits", h.handleCreateDeposit)
	r.Post("/payouts", h.handleCreatePayout)
	r.Get("/payouts/{orderNo}", h.handleGetPayoutStatus)
	r.Get("/balance", h.handleGetBalance)
}

func (h *TransactionHandler) handleCreateDeposit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	var reqDTO CreateDepositRequest
	if err := json.NewDecoder(r.Body).Decode(&reqDTO); err != nil {
		logger.WarnContext(ctx, "Failed to decode deposit request", "error", err)
		h.jsonError(w, logger, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if err := h.validate.StructCtx(ctx, reqDTO); err != nil {
		logger.WarnContext(ctx, "Deposit request validation failed", "error", err)
		h.jsonError(w, logger, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}
	amount, err := decimal.NewFromString(reqDTO.Amount)
	if err != nil || amount.Sign() <= 0 {
		h.jsonError(w, logger, "Amount must be a positive decimal", http.StatusBadRequest)
		return
	}

	result, err := h.orchestrator.InitiateDeposit(ctx, app.DepositRequest{
		Amount:     amount,
		Currency:   reqDTO.Currency,
		CustomerID: reqDTO.CustomerID,
		SecretKey:  h.resolveSecret(reqDTO.SecretKey),
	})
	if err != nil {
		h.writeInitiationError(ctx, w, logger, "deposit", err)
		return
	}

	logger.InfoContext(ctx, "Deposit initiated", "merchant_order_no", result.MerchantOrderNo, "provider_ref", result.ProviderRef)
	resp := CreateDepositResponse{
		MerchantOrderNo: result.MerchantOrderNo,
		ProviderRef:     result.ProviderRef,
		PayURL:          result.PayURL,
		ExpiresAt:       result.ExpiresAt,
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(resp)
}

func (h *TransactionHandler) handleCreatePayout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	var reqDTO CreatePayoutRequest
	if err := json.NewDecoder(r.Body).Decode(&reqDTO); err != nil {
		logger.WarnContext(ctx, "Failed to decode payout request", "error", err)
		h.jsonError(w, logger, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if err := h.validate.StructCtx(ctx, reqDTO); err != nil {
		logger.WarnContext(ctx, "Payout request validation failed", "error", err)
		h.jsonError(w, logger, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}
	amount, err := decimal.NewFromString(reqDTO.Amount)
	if err != nil || amount.Sign() <= 0 {
		h.jsonError(w, logger, "Amount must be a positive decimal", http.StatusBadRequest)
		return
	}

	result, err := h.orchestrator.InitiatePayout(ctx, app.PayoutRequest{
		Amount:          amount,
		CustomerID:      reqDTO.CustomerID,
		BankName:        reqDTO.BankName,
		BankAccountName: reqDTO.BankAccountName,
		BankAccountNo:   reqDTO.BankAccountNo,
		SecretKey:       h.resolveSecret(reqDTO.SecretKey),
	})
	if err != nil {
		h.writeInitiationError(ctx, w, logger, "payout", err)
		return
	}

	logger.InfoContext(ctx, "Payout initiated", "merchant_order_no", result.MerchantOrderNo, "provider_ref", result.ProviderRef)
	resp := CreatePayoutResponse{
		MerchantOrderNo: result.MerchantOrderNo,
		ProviderRef:     result.ProviderRef,
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(resp)
}

func (h *TransactionHandler) handleGetPayoutStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	orderNo := chi.URLParam(r, "orderNo")
	if orderNo == "" {
		h.jsonError(w, logger, "Order number is required", http.StatusBadRequest)
		return
	}

	status, err := h.orchestrator.GetPayoutStatus(ctx, orderNo, h.secretKey)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			h.jsonError(w, logger, "Payout not found", http.StatusNotFound)
			return
		}
		logger.ErrorContext(ctx, "Failed to get payout status", "error", err, "merchant_order_no", orderNo)
		h.jsonError(w, logger, "Failed to retrieve payout status", http.StatusInternalServerError)
		return
	}

	resp := PayoutStatusResponse{
		MerchantOrderNo: status.MerchantOrderNo,
		ProviderRef:     status.ProviderRef,
		Status:          string(status.LocalStatus),
		ProviderStatus:  status.ProviderStatus,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (h *TransactionHandler) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	balance, err := h.orchestrator.GetBalance(ctx, h.secretKey)
	if err != nil {
		h.writeInitiationError(ctx, w, logger, "balance", err)
		return
	}

	resp := BalanceResponse{
		Available: balance.Available.StringFixed(2),
		Frozen:    balance.Frozen.StringFixed(2),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (h *TransactionHandler) resolveSecret(requestKey string) string {
	if requestKey != "" {
		return requestKey
	}
	return h.secretKey
}

// writeInitiationError maps application errors from outbound provider calls
// onto HTTP statuses. A provider rejection carries the provider's own code and
// message; an unreachable provider is a gateway timeout.
func (h *TransactionHandler) writeInitiationError(ctx context.Context, w http.ResponseWriter, logger *slog.Logger, operation string, err error) {
	var provErr *domain.ProviderError
	switch {
	case errors.As(err, &provErr):
		logger.WarnContext(ctx, "Provider rejected request", "operation", operation, "resp_code", provErr.Code, "resp_msg", provErr.Message)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(errorResponse{Error: "provider rejected request", Code: provErr.Code, Message: provErr.Message})
	case errors.Is(err, domain.ErrUpstreamUnreachable):
		logger.ErrorContext(ctx, "Provider unreachable", "operation", operation, "error", err)
		h.jsonError(w, logger, "Payment provider unreachable", http.StatusGatewayTimeout)
	default:
		logger.ErrorContext(ctx, "Internal error handling request", "operation", operation, "error", err)
		h.jsonError(w, logger, "Internal server error", http.StatusInternalServerError)
	}
}

func (h *TransactionHandler) jsonError(w http.ResponseWriter, logger *slog.Logger, message string, statusCode int) {
	logger.Warn("API error response", "status_code", statusCode, "message", message)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(errorResponse{Error: message})
}
