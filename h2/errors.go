// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package h2

import (
	"github.com/joeycumines/go-reactor/errkind"
)

// Standard errors.
var (
	ErrInvalidState  = errkind.New(errkind.InvalidState, "h2: operation not valid in the current state", nil)
	ErrReleased      = errkind.New(errkind.Destroyed, "h2: request has been released", nil)
	ErrInvalidMethod = errkind.New(errkind.InvalidParam, "h2: invalid method", nil)
	ErrInvalidTarget = errkind.New(errkind.InvalidParam, "h2: invalid target", nil)
	ErrNotWritable   = errkind.New(errkind.Again, "h2: stream is not writable", nil)
	ErrNilArgument   = errkind.New(errkind.InvalidParam, "h2: nil argument", nil)
)
