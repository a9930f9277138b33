package http

import "time"

// CreateDepositRequest DTO for POST /api/v1/deposits.
type CreateDepositRequest struct {
	Amount     string `json:"amount" validate:"required"`
	Currency   string `json:"currency" validate:"required,len=3"`
	CustomerID string `json:"customer_id" validate:"required"`
	// Per-merchant signing key; falls back to the configured site key when
	// omitted.
	SecretKey string `json:"secret_key,omitempty"`
}

type CreateDepositResponse struct {
	MerchantOrderNo string    `json:"merchant_order_no"`
	ProviderRef     string    `json:"provider_ref"`
	PayURL          string    `json:"pay_url"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// CreatePayoutRequest DTO for POST /api/v1/payouts.
type CreatePayoutRequest struct {
	Amount          string `json:"amount" validate:"required"`
	CustomerID      string `json:"customer_id" validate:"required"`
	BankName        string `json:"bank_name" validate:"required"`
	BankAccountName string `json:"bank_account_name" validate:"required"`
	BankAccountNo   string `json:"bank_account_no" validate:"required"`
	SecretKey       string `json:"secret_key,omitempty"`
}

type CreatePayoutResponse struct {
	MerchantOrderNo string `json:"merchant_order_no"`
	ProviderRef     string `json:"provider_ref"`
}

// PayoutStatusResponse DTO for GET /api/v1/payouts/{orderNo}.
type PayoutStatusResponse struct {
	MerchantOrderNo string  `json:"merchant_order_no"`
	ProviderRef     *string `json:"provider_ref,omitempty"`
	Status          string  `json:"status"`
	ProviderStatus  string  `json:"provider_status,omitempty"`
}

// BalanceResponse DTO for GET /api/v1/balance.
type BalanceResponse struct {
	Available string `json:"available"`
	Frozen    string `json:"frozen"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}
