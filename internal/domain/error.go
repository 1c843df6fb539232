package domain

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	CodeTransport        ErrorCode = "TRANSPORT"
	CodeProtocol         ErrorCode = "PROTOCOL"
	CodeBusiness         ErrorCode = "BUSINESS"
	CodeExhausted        ErrorCode = "EXHAUSTED"
	CodeInvalidArgument  ErrorCode = "INVALID_ARGUMENT"
	CodeUnavailable      ErrorCode = "UNAVAILABLE"
	CodeCanceled         ErrorCode = "CANCELED"
	CodeDeadlineExceeded ErrorCode = "DEADLINE_EXCEEDED"
	CodeInternal         ErrorCode = "INTERNAL"
)

var (
	ErrNoTools         = errors.New("response contained no tools")
	ErrInvalidResponse = errors.New("response is not a valid protocol message")
	ErrRetryExhausted  = errors.New("retry_exhausted")
	ErrNegativeCounter = errors.New("done called more times than add")
)

// Error is the failure type surfaced by every component in this module.
// Retryable marks whether the retry wrapper may attempt the operation again;
// RemoteCode carries the JSON-RPC error code when the failure originated from
// a well-formed error object.
type Error struct {
	Code       ErrorCode
	Op         string
	Message    string
	Cause      error
	Retryable  bool
	Elevated   bool
	HTTPStatus int
	RemoteCode int
	Meta       map[string]string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if e.Op == "" {
		if msg == "" {
			return string(e.Code)
		}
		return fmt.Sprintf("%s: %s", e.Code, msg)
	}
	if msg == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Code, msg)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func E(code ErrorCode, op, msg string, cause error) *Error {
	if msg == "" && cause != nil {
		msg = cause.Error()
	}
	return &Error{
		Code:    code,
		Op:      op,
		Message: msg,
		Cause:   cause,
	}
}

func Wrap(code ErrorCode, op string, err error) *Error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		if existing.Op != "" || op == "" {
			return existing
		}
		clone := *existing
		clone.Op = op
		return &clone
	}
	return E(code, op, "", err)
}

// CodeFrom extracts the error code from any error produced by this module.
func CodeFrom(err error) (ErrorCode, bool) {
	if err == nil {
		return "", false
	}
	var domainErr *Error
	if errors.As(err, &domainErr) && domainErr.Code != "" {
		return domainErr.Code, true
	}
	switch {
	case errors.Is(err, ErrNoTools), errors.Is(err, ErrInvalidResponse):
		return CodeProtocol, true
	case errors.Is(err, ErrRetryExhausted):
		return CodeExhausted, true
	default:
		return "", false
	}
}

// IsRetryable reports whether the retry wrapper may run the operation again.
func IsRetryable(err error) bool {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Retryable
	}
	return false
}

// IsElevated reports whether the failure calls for the longer stabilization
// backoff (the remote execution environment was torn down mid-call).
func IsElevated(err error) bool {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Elevated
	}
	return false
}
