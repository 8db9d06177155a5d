package models

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	ErrEmptyQueue        = errors.New("cart is empty")
	ErrNoTasks           = errors.New("no benchmark tasks selected")
	ErrRunInProgress     = errors.New("a benchmark run is already in progress")
	ErrNotRunning        = errors.New("no benchmark run in progress")
	ErrNoActiveLog       = errors.New("no active log file")
	ErrNavigationBlocked = errors.New("stop benchmark first")
	ErrInvalidSetting    = errors.New("invalid setting")
)

// PreconditionError is returned when a run cannot start. Cause is one of
// ErrEmptyQueue or ErrNoTasks.
type PreconditionError struct {
	Cause error
}

func (e *PreconditionError) Error() string {
	if e == nil || e.Cause == nil {
		return "run precondition failed"
	}
	return e.Cause.Error()
}

func (e *PreconditionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// TransportError wraps a network failure talking to the remote service.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NotFoundError is returned when a log file does not exist on the remote.
type NotFoundError struct {
	Filename string
	Message  string
}

func (e *NotFoundError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("log %q not found", e.Filename)
	}
	return fmt.Sprintf("log %q not found: %s", e.Filename, e.Message)
}

// DeleteError is returned when the remote refuses to delete a log.
type DeleteError struct {
	Filename string
	Message  string
}

func (e *DeleteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("delete %q failed", e.Filename)
	}
	return fmt.Sprintf("delete %q failed: %s", e.Filename, e.Message)
}

// IsTransport reports whether err is a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
