package app

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/lumipay/paygate/internal/gateway/domain"
	"github.com/lumipay/paygate/internal/gateway/provider"
	"github.com/lumipay/paygate/internal/gateway/repository"
)

type MockTransactionRepository struct {
	mock.Mock
}

func (m *MockTransactionRepository) Create(ctx context.Context, txn *domain.Transaction) (*domain.Transaction, error) {
	args := m.Called(ctx, txn)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) GetByOrderNo(ctx context.Context, orderNo string) (*domain.Transaction, error) {
	args := m.Called(ctx, orderNo)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) MarkRequestAccepted(ctx context.Context, orderNo, providerRef string, preview repository.AcceptancePreview) error {
	args := m.Called(ctx, orderNo, providerRef, preview)
	return args.Error(0)
}

func (m *MockTransactionRepository) MarkRequestRejected(ctx context.Context, orderNo, errCode, errMsg string) error {
	args := m.Called(ctx, orderNo, errCode, errMsg)
	return args.Error(0)
}

func (m *MockTransactionRepository) ApplyTerminalStatus(ctx context.Context, orderNo string, final domain.TransactionStatus, credited, fee *decimal.Decimal) (*domain.Transaction, error) {
	args := m.Called(ctx, orderNo, final, credited, fee)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Transaction), args.Error(1)
}

type MockProviderClient struct {
	mock.Mock
}

func (m *MockProviderClient) CreateDepositOrder(ctx context.Context, req provider.DepositOrderRequest, secretKey string) (*provider.DepositOrderResponse, error) {
	args := m.Called(ctx, req, secretKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.DepositOrderResponse), args.Error(1)
}

func (m *MockProviderClient) CreatePayoutOrder(ctx context.Context, req provider.PayoutOrderRequest, secretKey string) (*provider.PayoutOrderResponse, error) {
	args := m.Called(ctx, req, secretKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.PayoutOrderResponse), args.Error(1)
}

func (m *MockProviderClient) QueryPayoutStatus(ctx context.Context, req provider.PayoutQueryRequest, secretKey string) (*provider.PayoutQueryResponse, error) {
	args := m.Called(ctx, req, secretKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.PayoutQueryResponse), args.Error(1)
}

func (m *MockProviderClient) QueryBalance(ctx context.Context, req provider.BalanceQueryRequest, secretKey string) (*provider.BalanceQueryResponse, error) {
	args := m.Called(ctx, req, secretKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.BalanceQueryResponse), args.Error(1)
}

type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	args := m.Called(ctx, subject, data)
	return args.Error(0)
}
