package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNoMarketData means no price is known for the symbol; the order stays PENDING.
	ErrNoMarketData = errors.New("no market data available")
	// ErrPersistenceConflict means the ledger was busy; the operation may be retried from its read step.
	ErrPersistenceConflict = errors.New("ledger persistence conflict")
	// ErrOrderNotFound is returned for unknown order ids.
	ErrOrderNotFound = errors.New("order not found")
	// ErrInvalidTransition is returned when an order is not in a state that allows the operation.
	ErrInvalidTransition = errors.New("invalid order state transition")
)

// ValidationError is a malformed request; nothing is persisted
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// NewValidationError creates a ValidationError
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// RiskRejectedError carries the reason the risk gate refused an order
type RiskRejectedError struct {
	Reason string
}

func (e *RiskRejectedError) Error() string {
	return "order rejected: " + e.Reason
}

// IsValidation reports whether err is or wraps a ValidationError
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// RejectionReason extracts the risk reason from err, if any
func RejectionReason(err error) (string, bool) {
	var re *RiskRejectedError
	if errors.As(err, &re) {
		return re.Reason, true
	}
	return "", false
}
