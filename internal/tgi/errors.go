package tgi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// BackendError reports a failed or malformed backend call.
type BackendError struct {
	Op Operation
	// Status is the HTTP status, 0 when the failure happened before or after
	// the status line (transport error, bad stream event).
	Status int
	// Kind is the server-reported error_type when available
	// (validation, generation, overloaded, incomplete_generation), or
	// "transport"/"malformed_response" for client-side failures.
	Kind    string
	Message string
	Err     error
}

func (e *BackendError) Error() string {
	msg := fmt.Sprintf("tgi %s: %s", e.Op, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *BackendError) Unwrap() error { return e.Err }

// StatusCode maps the failure for HTTP callers.
func (e *BackendError) StatusCode() int {
	if e.Status == http.StatusTooManyRequests {
		return http.StatusTooManyRequests
	}
	return http.StatusBadGateway
}

// TimeoutError reports a backend call that exceeded its time bound.
type TimeoutError struct {
	Op      Operation
	Timeout time.Duration
	Err     error
}

func (e *TimeoutError) Error() string {
	if e.Timeout > 0 {
		return fmt.Sprintf("tgi %s: timed out after %s", e.Op, e.Timeout)
	}
	return fmt.Sprintf("tgi %s: timed out", e.Op)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// StatusCode maps the failure for HTTP callers.
func (e *TimeoutError) StatusCode() int { return http.StatusGatewayTimeout }

// IsBackendError reports whether err is (or wraps) a BackendError.
func IsBackendError(err error) bool {
	var be *BackendError
	return errors.As(err, &be)
}

// IsTimeout reports whether err is (or wraps) a TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// classify turns a low-level failure into the facade's error kinds. parent is
// the caller's context; cancellation by the caller is returned unchanged.
func (c *HTTPClient) classify(parent context.Context, op Operation, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) && parent.Err() != nil {
		return parent.Err()
	}
	// The client's own bound is only reported when the caller's deadline
	// did not fire first.
	bound := c.timeout
	if parent.Err() != nil {
		bound = 0
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Op: op, Timeout: bound, Err: err}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &TimeoutError{Op: op, Timeout: bound, Err: err}
	}
	var be *BackendError
	if errors.As(err, &be) {
		return err
	}
	return &BackendError{Op: op, Kind: "transport", Message: err.Error(), Err: err}
}
