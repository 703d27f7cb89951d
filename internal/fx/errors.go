package fx

import (
	"errors"
	"fmt"
)

// Kinds of rate lookup failure. Match them with errors.Is.
var (
	ErrUnavailable       = errors.New("fx service unavailable")
	ErrUpstream          = errors.New("fx service error")
	ErrInvalidResponse   = errors.New("invalid fx response")
	ErrInvalidRateFormat = errors.New("invalid fx rate format")
	ErrNonPositiveRate   = errors.New("non-positive fx rate")
	ErrAccessDenied      = errors.New("fx access denied")
	ErrCircuitOpen       = errors.New("fx circuit open")
)

var errCallNotPermitted = errors.New("CircuitBreaker 'fxService' is OPEN and does not permit further calls")

// Error is returned by Client.GetRate. Its message is the diagnostic stored on failed payments.
type Error struct {
	Kind  error
	Msg   string
	Cause error
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

// Transient reports whether another attempt might succeed.
func (e *Error) Transient() bool {
	return e.Kind == ErrUnavailable || e.Kind == ErrUpstream
}

func unavailable(cause error) *Error {
	return &Error{Kind: ErrUnavailable, Msg: "FX service is unavailable or slow: " + cause.Error(), Cause: cause}
}

func upstream(status int, statusText string) *Error {
	return &Error{Kind: ErrUpstream, Msg: fmt.Sprintf("Error calling FX service: %d %s", status, statusText)}
}

func accessDenied() *Error {
	return &Error{Kind: ErrAccessDenied, Msg: "Access forbidden by FX service"}
}

func invalidResponse(cause error) *Error {
	return &Error{Kind: ErrInvalidResponse, Msg: "Invalid response from FX service: rate not found", Cause: cause}
}

func invalidRateFormat() *Error {
	return &Error{Kind: ErrInvalidRateFormat, Msg: "Invalid rate format in FX service response"}
}

func nonPositiveRate() *Error {
	return &Error{Kind: ErrNonPositiveRate, Msg: "FX rate must be greater than zero"}
}

func circuitOpen(source, destination string) *Error {
	return &Error{
		Kind: ErrCircuitOpen,
		Msg: fmt.Sprintf("FX service circuit breaker is OPEN. Service unavailable for %s/%s. "+
			"Please try again later. Original error: %s", source, destination, errCallNotPermitted),
		Cause: errCallNotPermitted,
	}
}

// IsTransient reports whether err is a retryable rate lookup failure.
func IsTransient(err error) bool {
	var fxErr *Error
	return errors.As(err, &fxErr) && fxErr.Transient()
}
