package payments

import (
	"errors"
	"fmt"
)

const (
	maxErrorMessageLength = 4000
	truncatedPrefixLength = 3950
	truncationMarker      = "... [Error message truncated due to length]"
)

var (
	ErrPaymentNotFound = errors.New("payment not found")
	ErrVersionConflict = errors.New("payment was modified concurrently")
)

// RuleError is a payment the service refuses to convert. It is recorded as FAILED.
type RuleError struct {
	Msg string
}

func (e *RuleError) Error() string { return e.Msg }

var (
	ErrSameCurrency     error = &RuleError{Msg: "Source and destination currencies must be different"}
	ErrPayoutRoundsZero error = &RuleError{Msg: "Payout amount rounds to zero"}
)

// ValidationError rejects a request before anything is stored.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func notFound(id int64) error {
	return fmt.Errorf("%w with id: %d", ErrPaymentNotFound, id)
}

// TruncateErrorMessage bounds a stored diagnostic to 4000 characters.
func TruncateErrorMessage(msg string) string {
	runes := []rune(msg)
	if len(runes) <= maxErrorMessageLength {
		return msg
	}
	return string(runes[:truncatedPrefixLength]) + truncationMarker
}
