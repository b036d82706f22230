package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// TransientError marks a failure worth retrying: network trouble, 5xx,
// rate limiting. Wraps the underlying cause.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// ValidationError marks a failure caused by the request itself, bad
// input, credentials, or markup the provider refuses. Never retried.
type ValidationError struct {
	Op     string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: validation: %s", e.Op, e.Reason)
}

// SchemaViolation marks a generation response that could not be parsed
// into the expected shape. Retried, since it may be a formatting fluke,
// then escalated as fatal.
type SchemaViolation struct {
	Op     string
	Reason string
	Raw    string
}

func (e *SchemaViolation) Error() string {
	return fmt.Sprintf("%s: schema violation: %s", e.Op, e.Reason)
}

// httpStatusError carries a non-2xx response before classification.
type httpStatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("%s: http %d: %s", e.Op, e.StatusCode, e.Body)
}

func retryableStatus(code int) bool {
	if code == 408 || code == 429 {
		return true
	}
	return code >= 500 && code <= 599
}

// classifyHTTP maps a non-2xx status onto the error taxonomy: timeouts,
// rate limits and 5xx are transient, everything else is the request's
// fault.
func classifyHTTP(op string, code int, body string) error {
	he := &httpStatusError{Op: op, StatusCode: code, Body: body}
	if retryableStatus(code) {
		return &TransientError{Op: op, Err: he}
	}
	return &ValidationError{Op: op, Reason: he.Error()}
}

// wrapTransport classifies an error from http.Client.Do. Context
// cancellation passes through untouched so callers can tell an aborted
// run from a flaky network.
func wrapTransport(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &TransientError{Op: op, Err: err}
}

// IsRetryable is the shared predicate for the backoff policy: transient
// failures, timeouts, and schema violations are retried; validation
// errors and caller cancellation are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var tr *TransientError
	if errors.As(err, &tr) {
		return true
	}
	var sv *SchemaViolation
	if errors.As(err, &sv) {
		return true
	}
	return false
}
