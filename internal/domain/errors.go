package domain

import (
	"errors"
	"fmt"
)

// ErrScheduleUnavailable is returned by schedule readers when the source
// cannot be reached or does not exist.
var ErrScheduleUnavailable = errors.New("schedule source unavailable")

// StorageError wraps a failed durable read or write.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// ParseError marks a malformed schedule row or timestamp. Always recoverable.
type ParseError struct {
	Row string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %q: %v", e.Row, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// DeliveryError describes a webhook call that did not succeed.
// StatusCode is 0 when no response was received.
type DeliveryError struct {
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("deliver to %s: HTTP %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("deliver to %s: %v", e.Endpoint, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
