// Package apperr defines the typed error vocabulary shared by the workflow,
// the scrape state machine and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies an error independently of its message.
type Code string

// Error codes understood by the HTTP layer and by pipeline callers.
const (
	CodeInvalidInput     Code = "INVALID_INPUT"
	CodeUnauthorized     Code = "UNAUTHORIZED"
	CodeNotFound         Code = "NOT_FOUND"
	CodeConflict         Code = "CONFLICT"
	CodeCreditsExhausted Code = "CREDITS_EXHAUSTED"
	CodeProvider         Code = "PROVIDER_ERROR"
	CodeNetwork          Code = "NETWORK_ERROR"
	CodeTimeout          Code = "TIMEOUT"
	CodeDatabase         Code = "DATABASE_ERROR"
	CodeInvalidConfig    Code = "INVALID_CONFIGURATION"
	CodeExecutionFailed  Code = "EXECUTION_FAILED"
	CodeInternal         Code = "INTERNAL_ERROR"
)

// Severity tells a pipeline whether a failed stage may be skipped.
type Severity int

const (
	// Soft failures are recorded as warnings and the run continues.
	Soft Severity = iota
	// Hard failures abort the run.
	Hard
)

func (s Severity) String() string {
	if s == Hard {
		return "hard"
	}
	return "soft"
}

// Error carries a code, the failing operation and optional provider details.
type Error struct {
	Code    Code
	Op      string
	Message string
	Err     error
	// Details holds provider payloads surfaced as debug data.
	Details map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	switch {
	case msg == "" && e.Err != nil:
		msg = e.Err.Error()
	case msg != "" && e.Err != nil:
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	case msg == "":
		msg = string(e.Code)
	}
	if e.Op == "" {
		return msg
	}
	return e.Op + ": " + msg
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error carrying the same code, which lets code-only
// sentinels such as ErrConflict be used with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Op == "" && t.Message == "" && t.Err == nil
}

// WithDetail attaches a debug key/value and returns the receiver.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// Code-only sentinels for errors.Is checks.
var (
	ErrInvalidInput     = &Error{Code: CodeInvalidInput}
	ErrUnauthorized     = &Error{Code: CodeUnauthorized}
	ErrNotFound         = &Error{Code: CodeNotFound}
	ErrConflict         = &Error{Code: CodeConflict}
	ErrCreditsExhausted = &Error{Code: CodeCreditsExhausted}
	ErrProvider         = &Error{Code: CodeProvider}
	ErrInvalidConfig    = &Error{Code: CodeInvalidConfig}
	ErrExecutionFailed  = &Error{Code: CodeExecutionFailed}
)

// New builds an error without an underlying cause.
func New(code Code, op, message string) *Error {
	return &Error{Code: code, Op: op, Message: message}
}

// Newf builds an error with a formatted message.
func Newf(code Code, op, format string, args ...any) *Error {
	return &Error{Code: code, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and operation to err. A nil err yields nil.
func Wrap(code Code, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Op: op, Err: err}
}

// CodeOf returns the code of the first *Error in the chain, or CodeInternal.
func CodeOf(err error) Code {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeInternal
}

// DetailsOf returns the debug details of the first *Error in the chain.
func DetailsOf(err error) map[string]any {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Details
	}
	return nil
}

// HTTPStatus maps an error to the status code returned to callers.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeInvalidInput:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeCreditsExhausted:
		return http.StatusPaymentRequired
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Provider builds the error for a non-2xx provider response. The status,
// provider error type and a bounded copy of the body are kept as details.
func Provider(op string, status int, errType, message, body string) *Error {
	if message == "" {
		message = fmt.Sprintf("provider returned status %d", status)
	}
	e := &Error{Code: CodeProvider, Op: op, Message: message}
	e.WithDetail("status", status)
	if errType != "" {
		e.WithDetail("type", errType)
	}
	if body != "" {
		e.WithDetail("body", body)
	}
	return e
}
