// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package eventloop

import (
	"runtime/debug"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/go-reactor/errkind"
)

// Panic log categories, each rate limited independently.
const (
	categoryFD    = "fd"
	categoryTimer = "timer"
	categoryTask  = "task"
)

func newPanicLimiter(rates map[time.Duration]int) (limiter *catrate.Limiter, err error) {
	if len(rates) == 0 {
		return nil, nil
	}
	defer func() {
		if r := recover(); r != nil {
			limiter, err = nil, errkind.New(errkind.InvalidParam, "eventloop: invalid panic log rates", PanicError{Value: r})
		}
	}()
	return catrate.NewLimiter(rates), nil
}

// safeCall executes fn with panic recovery, logging the panic.
func (l *Loop) safeCall(category string, fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = PanicError{Value: r}
			l.metrics.panicked()
			l.logPanic(category, r)
		}
	}()
	fn()
	return nil
}

func (l *Loop) logPanic(category string, value any) {
	if _, ok := l.panicLimiter.Allow(category); !ok {
		return
	}
	l.logger.Err().
		Str("category", category).
		Interface("panic", value).
		Str("stack", string(debug.Stack())).
		Log("eventloop: recovered panic in callback")
}
