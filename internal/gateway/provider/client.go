package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/lumipay/paygate/internal/gateway/domain"
	"github.com/lumipay/paygate/internal/gateway/sign"
)

// Provider endpoint paths, relative to the configured base URL.
const (
	pathCreateDeposit = "/api/pay/create"
	pathCreatePayout  = "/api/payout/create"
	pathQueryPayout   = "/api/payout/query"
	pathQueryBalance  = "/api/balance/query"
)

// DefaultTimeout bounds every provider call. The provider contract allows
// no internal retries, so a hung call must fail within this window.
const DefaultTimeout = 30 * time.Second

type HTTPClient struct {
	logger     *slog.Logger
	httpClient *http.Client
	baseURL    string
}

func NewHTTPClient(logger *slog.Logger, baseURL string, httpClient *http.Client) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &HTTPClient{
		logger:     logger.With("component", "provider_client"),
		httpClient: httpClient,
		baseURL:    baseURL,
	}
}

func (c *HTTPClient) CreateDepositOrder(ctx context.Context, req DepositOrderRequest, secretKey string) (*DepositOrderResponse, error) {
	req.Sign = sign.Sign(map[string]string{
		"merchantId":  req.MerchantID,
		"orderNo":     req.OrderNo,
		"orderAmount": req.OrderAmount,
		"currency":    req.Currency,
		"notifyUrl":   req.NotifyURL,
		"customerId":  req.CustomerID,
	}, secretKey)

	var resp DepositOrderResponse
	if err := c.post(ctx, pathCreateDeposit, req, &resp); err != nil {
		return nil, err
	}
	if resp.RespCode != RespCodeSuccess {
		return nil, &domain.ProviderError{Code: resp.RespCode, Message: resp.RespMsg}
	}
	return &resp, nil
}

func (c *HTTPClient) CreatePayoutOrder(ctx context.Context, req PayoutOrderRequest, secretKey string) (*PayoutOrderResponse, error) {
	req.Sign = sign.Sign(map[string]string{
		"merchantId":  req.MerchantID,
		"orderNo":     req.OrderNo,
		"orderAmount": req.OrderAmount,
		"bankName":    req.BankName,
		"accountName": req.AccountName,
		"accountNo":   req.AccountNo,
		"notifyUrl":   req.NotifyURL,
		"customerId":  req.CustomerID,
	}, secretKey)

	var resp PayoutOrderResponse
	if err := c.post(ctx, pathCreatePayout, req, &resp); err != nil {
		return nil, err
	}
	if resp.RespCode != RespCodeSuccess {
		return nil, &domain.ProviderError{Code: resp.RespCode, Message: resp.RespMsg}
	}
	return &resp, nil
}

func (c *HTTPClient) QueryPayoutStatus(ctx context.Context, req PayoutQueryRequest, secretKey string) (*PayoutQueryResponse, error) {
	req.Sign = sign.Sign(map[string]string{
		"merchantId": req.MerchantID,
		"orderNo":    req.OrderNo,
	}, secretKey)

	var resp PayoutQueryResponse
	if err := c.post(ctx, pathQueryPayout, req, &resp); err != nil {
		return nil, err
	}
	if resp.RespCode != RespCodeSuccess {
		return nil, &domain.ProviderError{Code: resp.RespCode, Message: resp.RespMsg}
	}
	return &resp, nil
}

func (c *HTTPClient) QueryBalance(ctx context.Context, req BalanceQueryRequest, secretKey string) (*BalanceQueryResponse, error) {
	req.Sign = sign.Sign(map[string]string{
		"merchantId": req.MerchantID,
	}, secretKey)

	var resp BalanceQueryResponse
	if err := c.post(ctx, pathQueryBalance, req, &resp); err != nil {
		return nil, err
	}
	if resp.RespCode != RespCodeSuccess {
		return nil, &domain.ProviderError{Code: resp.RespCode, Message: resp.RespMsg}
	}
	return &resp, nil
}

// post sends a signed JSON body and decodes the JSON response. Transport
// failures (connect, timeout, read, bad status, bad JSON) all wrap
// domain.ErrUpstreamUnreachable: the caller cannot know whether the
// provider received the request.
func (c *HTTPClient) post(ctx context.Context, path string, body any, out any) error {
	reqBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling provider request: %w", err)
	}

	url := c.baseURL + path
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(reqBytes))
	if err != nil {
		return fmt.Errorf("creating provider request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	c.logger.DebugContext(ctx, "Sending provider request", "url", url)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.ErrorContext(ctx, "Provider request failed", "url", url, "error", err)
		return fmt.Errorf("%w: %s", domain.ErrUpstreamUnreachable, err.Error())
	}
	defer httpResp.Body.Close()

	respBytes, err := io.ReadAll(httpResp.Body)
	if err != nil {
		c.logger.ErrorContext(ctx, "Failed to read provider response", "url", url, "status_code", httpResp.StatusCode, "error", err)
		return fmt.Errorf("%w: reading response: %s", domain.ErrUpstreamUnreachable, err.Error())
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		c.logger.WarnContext(ctx, "Provider returned non-2xx status", "url", url, "status_code", httpResp.StatusCode)
		return fmt.Errorf("%w: http status %d", domain.ErrUpstreamUnreachable, httpResp.StatusCode)
	}

	if err := json.Unmarshal(respBytes, out); err != nil {
		c.logger.ErrorContext(ctx, "Failed to decode provider response", "url", url, "error", err, "body", string(respBytes))
		return fmt.Errorf("%w: decoding response: %s", domain.ErrUpstreamUnreachable, err.Error())
	}
	return nil
}
