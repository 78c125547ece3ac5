package status

import (
	"errors"
	"fmt"
)

var (
	ErrOrderNotFound       = errors.New("order: order not found")
	ErrTransactionNotFound = errors.New("transaction: transaction not found")
	ErrTicketNotFound      = errors.New("ticket: ticket not found")
)

// ValidationError is malformed client input. Maps to 400, no side effects.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// InventoryError is insufficient or ineligible ticket availability. The
// message is user facing and surfaced verbatim in 400 responses.
type InventoryError struct {
	Message string
}

func (e *InventoryError) Error() string { return e.Message }

func NewInventoryError(format string, args ...any) *InventoryError {
	return &InventoryError{Message: fmt.Sprintf(format, args...)}
}

// GatewayError is a payment provider rejection or network failure during
// initiation. The orchestrator releases held inventory before surfacing it.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway: %s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

func NewGatewayError(op string, err error) *GatewayError {
	return &GatewayError{Op: op, Err: err}
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsInventory(err error) bool {
	var ie *InventoryError
	return errors.As(err, &ie)
}

func IsGateway(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge)
}
