package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no transaction matches the given order number.
	ErrNotFound = errors.New("transaction not found")

	// ErrAlreadySettled is returned by the terminal-status guard when the
	// transaction is already in SUCCESS or FAILED. Duplicate callbacks land
	// here; it is not a failure condition.
	ErrAlreadySettled = errors.New("transaction already settled")

	// ErrSignatureInvalid means an inbound callback failed verification.
	// The callback is discarded without touching state.
	ErrSignatureInvalid = errors.New("callback signature invalid")

	// ErrUnknownStatus means the provider reported a status code outside the
	// documented set. Treated as failure to interpret, never as success.
	ErrUnknownStatus = errors.New("unknown provider status code")

	// ErrUpstreamUnreachable wraps transport-level failures talking to the
	// provider: the request may or may not have been received.
	ErrUpstreamUnreachable = errors.New("payment provider unreachable")

	// ErrProviderRejected is the base error for explicit provider rejections.
	ErrProviderRejected = errors.New("payment provider rejected request")
)

// ProviderError carries the provider's rejection code and message. It wraps
// ErrProviderRejected so callers can distinguish "provider said no" from
// "we don't know" (ErrUpstreamUnreachable).
type ProviderError struct {
	Code    string
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider rejected request: code=%s message=%s", e.Code, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return ErrProviderRejected
}
