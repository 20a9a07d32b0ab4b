package rpc

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTimeout matches every *TimeoutError.
	ErrTimeout = errors.New("rpc: timeout")
	// ErrClientClosed is returned by calls on, or pending during, Close.
	ErrClientClosed = errors.New("rpc: client closed")
	// ErrBackend matches every *BackendError.
	ErrBackend = errors.New("rpc: backend error")
	// ErrEmptyQueue is returned when Call is given no destination.
	ErrEmptyQueue = errors.New("rpc: queue name must not be empty")
	// ErrConsumerClosed is returned by Serve when the broker ends the
	// consumer before the context is done.
	ErrConsumerClosed = errors.New("rpc: consumer closed")
)

// TimeoutError reports a call that saw no reply before its deadline. The
// backend may still be working; its late reply is discarded.
type TimeoutError struct {
	Queue         string
	CorrelationID string
	Timeout       time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("rpc: no reply from %s within %s (correlation_id=%s)", e.Queue, e.Timeout, e.CorrelationID)
}

// Is makes errors.Is(err, ErrTimeout) hold.
func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// BackendError is a structured failure reported by the backend, or a reply
// the client could not decode (then Err wraps envelope.ErrMalformed).
type BackendError struct {
	Queue         string
	CorrelationID string
	Message       string
	StatusCode    int
	Err           error
}

func (e *BackendError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("rpc: %s failed (status %d): %s", e.Queue, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("rpc: %s failed: %s", e.Queue, e.Message)
}

// Is makes errors.Is(err, ErrBackend) hold.
func (e *BackendError) Is(target error) bool { return target == ErrBackend }

func (e *BackendError) Unwrap() error { return e.Err }

// StatusError lets a handler choose the status_code of its error record.
type StatusError struct {
	Code    int
	Message string
}

// NewStatusError returns a StatusError.
func NewStatusError(code int, format string, args ...any) *StatusError {
	return &StatusError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func (e *StatusError) Error() string { return e.Message }

// StatusCode implements envelope.StatusCoder.
func (e *StatusError) StatusCode() int { return e.Code }
