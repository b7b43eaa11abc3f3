// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package eventloop

import (
	"fmt"

	"github.com/joeycumines/go-reactor/errkind"
)

// Standard errors.
var (
	// ErrLoopTerminated is returned when operating on a closed loop.
	ErrLoopTerminated = errkind.New(errkind.InvalidState, "eventloop: loop has been terminated", nil)
	// ErrLoopAlreadyRunning is returned by Run or RunOnce while another call
	// is in progress.
	ErrLoopAlreadyRunning = errkind.New(errkind.InvalidState, "eventloop: loop is already running", nil)
	// ErrReentrantRun is returned by Run or RunOnce when called from within a
	// callback on the loop goroutine.
	ErrReentrantRun = errkind.New(errkind.InvalidState, "eventloop: cannot run loop from within the loop", nil)
	// ErrWrongGoroutine is returned by Run or RunOnce when called from a
	// goroutine other than the one that first ran the loop.
	ErrWrongGoroutine = errkind.New(errkind.InvalidState, "eventloop: loop is owned by another goroutine", nil)
	// ErrLoopStopped is returned by SubmitSync when the loop was stopped
	// before the task ran.
	ErrLoopStopped = errkind.New(errkind.InvalidState, "eventloop: loop stopped before task ran", nil)
	// ErrLoopNotRunning is returned by SubmitSync when no Run or RunOnce call
	// is in progress to run the task.
	ErrLoopNotRunning = errkind.New(errkind.InvalidState, "eventloop: loop is not running", nil)

	ErrNilTask             = errkind.New(errkind.InvalidParam, "eventloop: nil task", nil)
	ErrNilCallback         = errkind.New(errkind.InvalidParam, "eventloop: nil callback", nil)
	ErrInvalidDelay        = errkind.New(errkind.InvalidParam, "eventloop: invalid timer delay", nil)
	ErrInvalidEvents       = errkind.New(errkind.InvalidParam, "eventloop: events must include read or write", nil)
	ErrFDOutOfRange        = errkind.New(errkind.InvalidParam, "eventloop: fd out of range", nil)
	ErrFDAlreadyRegistered = errkind.New(errkind.AlreadyExist, "eventloop: fd already registered", nil)
	ErrFDNotRegistered     = errkind.New(errkind.NotExist, "eventloop: fd not registered", nil)
	ErrPollerClosed        = errkind.New(errkind.Closed, "eventloop: poller closed", nil)
	ErrPollTypeUnsupported = errkind.New(errkind.NotSupported, "eventloop: poll type not supported on this platform", nil)
)

// PanicError wraps a value recovered from a panicking callback.
type PanicError struct {
	Value any
}

// Error implements the error interface.
func (e PanicError) Error() string {
	return fmt.Sprintf("eventloop: callback panicked: %v", e.Value)
}

// Unwrap returns the panic value, if it is an error.
func (e PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// pollError annotates a failed poller syscall.
func pollError(op string, err error) error {
	return errkind.New(errkind.PollError, "eventloop: "+op, err)
}
