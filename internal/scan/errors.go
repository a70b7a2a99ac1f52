package scan

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rawblock/daybreakscan/internal/upstream"
)

// ErrorKind is the stable machine-readable class of a scan failure. The
// API layer surfaces it verbatim in error bodies.
type ErrorKind string

const (
	KindInvalidAddress      ErrorKind = "INVALID_ADDRESS"
	KindDeployerNotFound    ErrorKind = "DEPLOYER_NOT_FOUND"
	KindUpstreamRateLimited ErrorKind = "UPSTREAM_RATE_LIMITED"
	KindUpstreamError       ErrorKind = "UPSTREAM_ERROR"
	KindScanTimeout         ErrorKind = "SCAN_TIMEOUT"
	KindInternalError       ErrorKind = "INTERNAL_ERROR"
)

// Error is a classified scan failure.
type Error struct {
	Kind    ErrorKind
	Message string
	cause   error
}

func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func WrapError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// HTTPStatus maps the failure class to its response status code.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindInvalidAddress:
		return http.StatusBadRequest
	case KindDeployerNotFound:
		return http.StatusNotFound
	case KindUpstreamRateLimited, KindUpstreamError:
		return http.StatusServiceUnavailable
	case KindScanTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Classify folds an arbitrary stage failure into an Error. Context
// deadlines become SCAN_TIMEOUT, provider throttling becomes
// UPSTREAM_RATE_LIMITED, everything else UPSTREAM_ERROR. Already
// classified errors pass through unchanged.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var scanErr *Error
	if errors.As(err, &scanErr) {
		return scanErr
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return WrapError(KindScanTimeout, "scan deadline exceeded", err)
	case errors.Is(err, upstream.ErrRateLimited):
		return WrapError(KindUpstreamRateLimited, "upstream rate limited", err)
	default:
		return WrapError(KindUpstreamError, "upstream request failed", err)
	}
}
