package domain

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Direction distinguishes money moving in (deposit) from money moving out
// (withdraw / payout).
type Direction string

const (
	DirectionDeposit  Direction = "DEPOSIT"
	DirectionWithdraw Direction = "WITHDRAW"
)

// Value implements the driver.Valuer interface for Direction.
func (d Direction) Value() (driver.Value, error) {
	return string(d), nil
}

// Scan implements the sql.Scanner interface for Direction.
func (d *Direction) Scan(value interface{}) error {
	strVal, ok := value.(string)
	if !ok {
		bytesVal, ok := value.([]byte)
		if !ok {
			return fmt.Errorf("failed to scan Direction: value is not string or []byte, it is %T", value)
		}
		strVal = string(bytesVal)
	}
	*d = Direction(strVal)
	switch *d {
	case DirectionDeposit, DirectionWithdraw:
		return nil
	default:
		return fmt.Errorf("unknown Direction value: %s", strVal)
	}
}

// TransactionStatus is the lifecycle state of a transaction.
//
// Transitions are monotonic: PENDING → PROCESSING (withdraw only) →
// SUCCESS | FAILED. SUCCESS and FAILED are terminal; nothing moves a
// transaction out of them.
type TransactionStatus string

const (
	StatusPending    TransactionStatus = "PENDING"
	StatusProcessing TransactionStatus = "PROCESSING"
	StatusSuccess    TransactionStatus = "SUCCESS"
	StatusFailed     TransactionStatus = "FAILED"
)

// IsTerminal reports whether no further status transition is permitted.
func (s TransactionStatus) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// Value implements the driver.Valuer interface for TransactionStatus.
func (s TransactionStatus) Value() (driver.Value, error) {
	return string(s), nil
}

// Scan implements the sql.Scanner interface for TransactionStatus.
func (s *TransactionStatus) Scan(value interface{}) error {
	strVal, ok := value.(string)
	if !ok {
		bytesVal, ok := value.([]byte)
		if !ok {
			return fmt.Errorf("failed to scan TransactionStatus: value is not string or []byte, it is %T", value)
		}
		strVal = string(bytesVal)
	}
	*s = TransactionStatus(strVal)
	switch *s {
	case StatusPending, StatusProcessing, StatusSuccess, StatusFailed:
		return nil
	default:
		return fmt.Errorf("unknown TransactionStatus value: %s", strVal)
	}
}

// Transaction is the durable record of one outbound deposit or payout
// request and its eventual settlement.
type Transaction struct {
	ID              string            `json:"id"` // UUID
	MerchantOrderNo string            `json:"merchant_order_no"`
	ProviderRef     *string           `json:"provider_ref,omitempty"`
	Direction       Direction         `json:"direction"`
	Amount          decimal.Decimal   `json:"amount"`
	Status          TransactionStatus `json:"status"`

	// Settlement fields, written atomically with the terminal status.
	FeeAmount      *decimal.Decimal `json:"fee_amount,omitempty"`
	CreditedAmount *decimal.Decimal `json:"credited_amount,omitempty"`

	// Counterparty. CustomerID is set for both directions; the bank fields
	// only for withdraws.
	CustomerID      string  `json:"customer_id"`
	BankName        *string `json:"bank_name,omitempty"`
	BankAccountName *string `json:"bank_account_name,omitempty"`
	BankAccountNo   *string `json:"bank_account_no,omitempty"`

	// Deposit preview returned by the provider on acceptance.
	PayURL    *string    `json:"pay_url,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	// Provider rejection details.
	ErrorCode    *string `json:"error_code,omitempty"`
	ErrorMessage *string `json:"error_message,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	SettledAt *time.Time `json:"settled_at,omitempty"`
}
