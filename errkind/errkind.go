// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package errkind defines the closed set of failure kinds shared by the
// reactor and the request layer.
//
// Success is always a nil error. Every non-nil error returned by this module
// maps to exactly one Kind via [Of], which also understands wrapped errors.
package errkind

import (
	"errors"
	"strings"
)

// Kind classifies a failure. The zero value, NoErr, is the kind of a nil
// error, and is never returned as an error by this module.
type Kind int

const (
	NoErr Kind = iota
	Failed
	InvalidParam
	InvalidState
	AlreadyExist
	NotExist
	Again
	Closed
	Destroyed
	Timeout
	Aborted
	SockError
	PollError
	ProtoError
	SSLError
	NotSupported
)

var kindNames = [...]string{
	NoErr:        "no error",
	Failed:       "failed",
	InvalidParam: "invalid parameter",
	InvalidState: "invalid state",
	AlreadyExist: "already exists",
	NotExist:     "does not exist",
	Again:        "try again",
	Closed:       "closed",
	Destroyed:    "destroyed",
	Timeout:      "timeout",
	Aborted:      "aborted",
	SockError:    "socket error",
	PollError:    "poll error",
	ProtoError:   "protocol error",
	SSLError:     "ssl error",
	NotSupported: "not supported",
}

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Error implements the error interface, allowing a bare Kind to be returned
// and matched with [errors.Is].
func (k Kind) Error() string {
	return k.String()
}

// Error is a failure annotated with its kind, the operation that failed, and
// an optional underlying cause.
type Error struct {
	Cause error
	Op    string
	Kind  Kind
}

// New returns an [*Error] of the given kind.
func New(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Cause: cause}
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is the Kind of this error, so that
// errors.Is(err, errkind.NotExist) works without errors.As.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// Of returns the kind of err. A nil error is NoErr, and an error that carries
// no kind anywhere in its chain is Failed.
func Of(err error) Kind {
	if err == nil {
		return NoErr
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var k Kind
	if errors.As(err, &k) {
		return k
	}
	return Failed
}
