package provider

import "context"

// Client is the outbound surface of the payment provider. All calls are
// POST with JSON bodies, signed per the provider's MD5 scheme, and bounded
// by the client's timeout. Implementations never retry; retry policy
// belongs to the caller.
type Client interface {
	CreateDepositOrder(ctx context.Context, req DepositOrderRequest, secretKey string) (*DepositOrderResponse, error)
	CreatePayoutOrder(ctx context.Context, req PayoutOrderRequest, secretKey string) (*PayoutOrderResponse, error)
	QueryPayoutStatus(ctx context.Context, req PayoutQueryRequest, secretKey string) (*PayoutQueryResponse, error)
	QueryBalance(ctx context.Context, req BalanceQueryRequest, secretKey string) (*BalanceQueryResponse, error)
}

// RespCodeSuccess is the provider's "request accepted" response code.
// Anything else is an explicit rejection.
const RespCodeSuccess = "000"

type DepositOrderRequest struct {
	MerchantID  string `json:"merchantId"`
	OrderNo     string `json:"orderNo"`
	OrderAmount string `json:"orderAmount"`
	Currency    string `json:"currency"`
	NotifyURL   string `json:"notifyUrl"`
	CustomerID  string `json:"customerId"`
	Sign        string `json:"sign"`
}

type DepositOrderResponse struct {
	RespCode    string `json:"respCode"`
	RespMsg     string `json:"respMsg"`
	PlatOrderNo string `json:"platOrderNo"`
	PayURL      string `json:"payUrl"`
}

type PayoutOrderRequest struct {
	MerchantID  string `json:"merchantId"`
	OrderNo     string `json:"orderNo"`
	OrderAmount string `json:"orderAmount"`
	BankName    string `json:"bankName"`
	AccountName string `json:"accountName"`
	AccountNo   string `json:"accountNo"`
	NotifyURL   string `json:"notifyUrl"`
	CustomerID  string `json:"customerId"`
	Sign        string `json:"sign"`
}

type PayoutOrderResponse struct {
	RespCode    string `json:"respCode"`
	RespMsg     string `json:"respMsg"`
	PlatOrderNo string `json:"platOrderNo"`
}

type PayoutQueryRequest struct {
	MerchantID string `json:"merchantId"`
	OrderNo    string `json:"orderNo"`
	Sign       string `json:"sign"`
}

type PayoutQueryResponse struct {
	RespCode    string `json:"respCode"`
	RespMsg     string `json:"respMsg"`
	PlatOrderNo string `json:"platOrderNo"`
	OrderStatus string `json:"orderStatus"`
	OrderAmount string `json:"orderAmount"`
	Fee         string `json:"fee"`
}

type BalanceQueryRequest struct {
	MerchantID string `json:"merchantId"`
	Sign       string `json:"sign"`
}

type BalanceQueryResponse struct {
	RespCode      string `json:"respCode"`
	RespMsg       string `json:"respMsg"`
	Balance       string `json:"balance"`
	FrozenBalance string `json:"frozenBalance"`
}
