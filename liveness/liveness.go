// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package liveness implements a destruction detector for objects that invoke
// user callbacks which may, in turn, destroy the object.
//
// The owner holds a [*Token] for its lifetime and kills it exactly once when
// it is released. Any dispatch path copies the pointer before invoking user
// code, then checks [Token.Alive] before touching the owner again. The token
// stays reachable through that copy, so the check is valid even after the
// owner itself has gone.
package liveness

import (
	"sync/atomic"
)

// Token is an alive flag shared between an object and its in-flight
// dispatches. The zero value is dead; use [New].
type Token struct {
	alive atomic.Bool
}

// New returns a live token.
func New() *Token {
	t := new(Token)
	t.alive.Store(true)
	return t
}

// Alive reports whether the token has not been killed. A nil token is dead.
func (t *Token) Alive() bool {
	return t != nil && t.alive.Load()
}

// Kill marks the token dead, returning true only on the first call.
func (t *Token) Kill() bool {
	return t != nil && t.alive.Swap(false)
}

// Invoke calls fn if the token is alive (a nil fn is skipped), and reports
// whether the token is still alive afterwards. Callers must stop touching the
// owning object when it returns false.
func (t *Token) Invoke(fn func()) bool {
	if !t.Alive() {
		return false
	}
	if fn != nil {
		fn()
	}
	return t.Alive()
}
