package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lumipay/paygate/internal/gateway/domain"
	"github.com/lumipay/paygate/internal/gateway/sign"
)

const testSecret = "K"

// signedCallback builds a callback parameter set carrying a valid signature.
func signedCallback(params map[string]string) map[string]string {
	params[sign.SignField] = sign.Sign(params, testSecret)
	return params
}

func newTestReconciler(repo *MockTransactionRepository, pub EventPublisher) *Reconciler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewReconciler(repo, pub, logger)
}

func TestReconciler_HandleCallback_AppliesSuccess(t *testing.T) {
	mockRepo := new(MockTransactionRepository)
	mockPub := new(MockEventPublisher)
	rec := newTestReconciler(mockRepo, mockPub)

	params := signedCallback(map[string]string{
		"merchantId":  "M1",
		"orderNo":     "P011700000000000001",
		"orderStatus": "1",
		"orderAmount": "100.00",
		"fee":         "1.50",
	})

	pending := &domain.Transaction{
		MerchantOrderNo: "P011700000000000001",
		Direction:       domain.DirectionDeposit,
		Status:          domain.StatusPending,
		Amount:          decimal.RequireFromString("100.00"),
	}
	mockRepo.On("GetByOrderNo", mock.Anything, "P011700000000000001").Return(pending, nil).Once()

	credited := decimal.RequireFromString("100.00")
	fee := decimal.RequireFromString("1.50")
	settledAt := time.Now().UTC()
	settled := &domain.Transaction{
		MerchantOrderNo: "P011700000000000001",
		Direction:       domain.DirectionDeposit,
		Status:          domain.StatusSuccess,
		Amount:          pending.Amount,
		CreditedAmount:  &credited,
		FeeAmount:       &fee,
		SettledAt:       &settledAt,
	}
	mockRepo.On("ApplyTerminalStatus", mock.Anything, "P011700000000000001", domain.StatusSuccess,
		mock.MatchedBy(func(d *decimal.Decimal) bool { return d != nil && d.Equal(credited) }),
		mock.MatchedBy(func(d *decimal.Decimal) bool { return d != nil && d.Equal(fee) }),
	).Return(settled, nil).Once()

	mockPub.On("Publish", mock.Anything, "payments.settled.deposit", mock.MatchedBy(func(data []byte) bool {
		var event SettlementEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return false
		}
		return event.MerchantOrderNo == "P011700000000000001" &&
			event.Status == "SUCCESS" &&
			event.CreditedAmount != nil && *event.CreditedAmount == "100.00"
	})).Return(nil).Once()

	ack, err := rec.HandleCallback(context.Background(), params, testSecret)
	require.NoError(t, err)
	assert.Equal(t, AckResponse, ack)
	mockRepo.AssertExpectations(t)
	mockPub.AssertExpectations(t)
}

func TestReconciler_HandleCallback_ManualSuccessTreatedAsSuccess(t *testing.T) {
	mockRepo := new(MockTransactionRepository)
	rec := newTestReconciler(mockRepo, nil)

	params := signedCallback(map[string]string{
		"orderNo":     "W011700000000000001",
		"orderStatus": "3",
	})

	mockRepo.On("GetByOrderNo", mock.Anything, "W011700000000000001").Return(&domain.Transaction{
		MerchantOrderNo: "W011700000000000001",
		Direction:       domain.DirectionWithdraw,
		Status:          domain.StatusProcessing,
	}, nil).Once()
	mockRepo.On("ApplyTerminalStatus", mock.Anything, "W011700000000000001", domain.StatusSuccess,
		(*decimal.Decimal)(nil), (*decimal.Decimal)(nil)).
		Return(&domain.Transaction{
			MerchantOrderNo: "W011700000000000001",
			Direction:       domain.DirectionWithdraw,
			Status:          domain.StatusSuccess,
		}, nil).Once()

	ack, err := rec.HandleCallback(context.Background(), params, testSecret)
	require.NoError(t, err)
	assert.Equal(t, AckResponse, ack)
}

func TestReconciler_HandleCallback_FailedStatus(t *testing.T) {
	mockRepo := new(MockTransactionRepository)
	rec := newTestReconciler(mockRepo, nil)

	params := signedCallback(map[string]string{
		"orderNo":     "P011700000000000002",
		"orderStatus": "2",
	})

	mockRepo.On("GetByOrderNo", mock.Anything, "P011700000000000002").Return(&domain.Transaction{
		MerchantOrderNo: "P011700000000000002",
		Status:          domain.StatusPending,
	}, nil).Once()
	mockRepo.On("ApplyTerminalStatus", mock.Anything, "P011700000000000002", domain.StatusFailed,
		(*decimal.Decimal)(nil), (*decimal.Decimal)(nil)).
		Return(&domain.Transaction{
			MerchantOrderNo: "P011700000000000002",
			Status:          domain.StatusFailed,
		}, nil).Once()

	ack, err := rec.HandleCallback(context.Background(), params, testSecret)
	require.NoError(t, err)
	assert.Equal(t, AckResponse, ack)
}

func TestReconciler_HandleCallback_DuplicateIsAcknowledgedNoOp(t *testing.T) {
	mockRepo := new(MockTransactionRepository)
	mockPub := new(MockEventPublisher)
	rec := newTestReconciler(mockRepo, mockPub)

	params := signedCallback(map[string]string{
		"orderNo":     "P011700000000000003",
		"orderStatus": "1",
		"orderAmount": "100.00",
	})

	mockRepo.On("GetByOrderNo", mock.Anything, "P011700000000000003").Return(&domain.Transaction{
		MerchantOrderNo: "P011700000000000003",
		Status:          domain.StatusSuccess,
	}, nil).Once()
	mockRepo.On("ApplyTerminalStatus", mock.Anything, "P011700000000000003", domain.StatusSuccess,
		mock.Anything, mock.Anything).Return(nil, domain.ErrAlreadySettled).Once()

	ack, err := rec.HandleCallback(context.Background(), params, testSecret)
	require.NoError(t, err)
	assert.Equal(t, AckResponse, ack)

	// No event for a no-op.
	mockPub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestReconciler_HandleCallback_InvalidSignature(t *testing.T) {
	mockRepo := new(MockTransactionRepository)
	rec := newTestReconciler(mockRepo, nil)

	params := map[string]string{
		"orderNo":     "P011700000000000004",
		"orderStatus": "1",
		"sign":        "not-a-valid-signature",
	}

	ack, err := rec.HandleCallback(context.Background(), params, testSecret)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSignatureInvalid)
	assert.Empty(t, ack)

	// No lookup happens before verification, so a forged callback cannot
	// probe for order existence.
	mockRepo.AssertNotCalled(t, "GetByOrderNo", mock.Anything, mock.Anything)
	mockRepo.AssertNotCalled(t, "ApplyTerminalStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReconciler_HandleCallback_OrderNotFound(t *testing.T) {
	mockRepo := new(MockTransactionRepository)
	rec := newTestReconciler(mockRepo, nil)

	params := signedCallback(map[string]string{
		"orderNo":     "P019999999999999999",
		"orderStatus": "1",
	})

	mockRepo.On("GetByOrderNo", mock.Anything, "P019999999999999999").Return(nil, domain.ErrNotFound).Once()

	ack, err := rec.HandleCallback(context.Background(), params, testSecret)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Empty(t, ack)
}

func TestReconciler_HandleCallback_ProcessingIsAcknowledged(t *testing.T) {
	mockRepo := new(MockTransactionRepository)
	rec := newTestReconciler(mockRepo, nil)

	params := signedCallback(map[string]string{
		"orderNo":     "W011700000000000005",
		"orderStatus": "0",
	})

	mockRepo.On("GetByOrderNo", mock.Anything, "W011700000000000005").Return(&domain.Transaction{
		MerchantOrderNo: "W011700000000000005",
		Status:          domain.StatusProcessing,
	}, nil).Once()

	ack, err := rec.HandleCallback(context.Background(), params, testSecret)
	require.NoError(t, err)
	assert.Equal(t, AckResponse, ack)
	mockRepo.AssertNotCalled(t, "ApplyTerminalStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReconciler_HandleCallback_UnknownStatusCode(t *testing.T) {
	mockRepo := new(MockTransactionRepository)
	rec := newTestReconciler(mockRepo, nil)

	params := signedCallback(map[string]string{
		"orderNo":     "P011700000000000006",
		"orderStatus": "9",
	})

	mockRepo.On("GetByOrderNo", mock.Anything, "P011700000000000006").Return(&domain.Transaction{
		MerchantOrderNo: "P011700000000000006",
		Status:          domain.StatusPending,
	}, nil).Once()

	ack, err := rec.HandleCallback(context.Background(), params, testSecret)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnknownStatus)
	assert.Empty(t, ack)
	mockRepo.AssertNotCalled(t, "ApplyTerminalStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReconciler_HandleCallback_PublishFailureStillAcks(t *testing.T) {
	mockRepo := new(MockTransactionRepository)
	mockPub := new(MockEventPublisher)
	rec := newTestReconciler(mockRepo, mockPub)

	params := signedCallback(map[string]string{
		"orderNo":     "P011700000000000007",
		"orderStatus": "1",
		"orderAmount": "20.00",
	})

	mockRepo.On("GetByOrderNo", mock.Anything, "P011700000000000007").Return(&domain.Transaction{
		MerchantOrderNo: "P011700000000000007",
		Status:          domain.StatusPending,
	}, nil).Once()
	mockRepo.On("ApplyTerminalStatus", mock.Anything, "P011700000000000007", domain.StatusSuccess,
		mock.Anything, mock.Anything).Return(&domain.Transaction{
		MerchantOrderNo: "P011700000000000007",
		Direction:       domain.DirectionDeposit,
		Status:          domain.StatusSuccess,
	}, nil).Once()
	mockPub.On("Publish", mock.Anything, "payments.settled.deposit", mock.Anything).
		Return(errors.New("nats unavailable")).Once()

	// The transition is durable; a broken broker must not cause provider
	// redelivery.
	ack, err := rec.HandleCallback(context.Background(), params, testSecret)
	require.NoError(t, err)
	assert.Equal(t, AckResponse, ack)
}

func TestReconciler_HandleCallback_StoreFailurePropagates(t *testing.T) {
	mockRepo := new(MockTransactionRepository)
	rec := newTestReconciler(mockRepo, nil)

	params := signedCallback(map[string]string{
		"orderNo":     "P011700000000000008",
		"orderStatus": "1",
	})

	mockRepo.On("GetByOrderNo", mock.Anything, "P011700000000000008").Return(&domain.Transaction{
		MerchantOrderNo: "P011700000000000008",
		Status:          domain.StatusPending,
	}, nil).Once()
	storeErr := errors.New("connection reset")
	mockRepo.On("ApplyTerminalStatus", mock.Anything, "P011700000000000008", domain.StatusSuccess,
		mock.Anything, mock.Anything).Return(nil, storeErr).Once()

	ack, err := rec.HandleCallback(context.Background(), params, testSecret)
	require.Error(t, err)
	assert.Empty(t, ack)
	assert.ErrorIs(t, err, storeErr)
}
