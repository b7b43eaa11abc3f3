// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package eventloop provides a single-goroutine I/O reactor, multiplexing
// file descriptor readiness, timers, and tasks posted from other goroutines.
//
// # Architecture
//
// A [Loop] owns a platform poller (epoll, kqueue, or poll(2), see [PollType]),
// a descriptor registry, a timer heap, and a FIFO task queue paired with a
// wake descriptor (eventfd on Linux, a self-pipe on Darwin). Each iteration,
// see [Loop.RunOnce], performs these steps in order:
//
//  1. poll, bounded by the caller's maximum wait and the next timer expiry
//  2. dispatch callbacks for ready descriptors
//  3. run expired timers
//  4. drain the tasks queued before the drain began
//
// # Thread Safety
//
// Every callback runs on the goroutine that first drove the loop, via
// [Loop.Run] or [Loop.RunOnce]. That goroutine owns the loop for its
// lifetime, and is locked to its OS thread while the loop runs.
//
//   - [Loop.Submit] and [Loop.ScheduleTimer] are safe to call from any goroutine
//   - [Loop.SubmitSync] runs inline on the loop goroutine, blocks elsewhere while
//     the loop is running, and fails fast while it is not
//   - [Loop.RegisterFD] called off the loop goroutine is applied asynchronously
//   - [Loop.UnregisterFD] and [Loop.ModifyFD] are acknowledged before returning
//   - [Timer.Cancel] is idempotent, including from the timer's own callback
//
// Once [Loop.UnregisterFD] returns, the callback for that descriptor will not
// be invoked again, even for readiness already collected by the current poll.
//
// # Errors
//
// Failures carry an [errkind.Kind], retrievable with [errkind.Of]. Callback
// panics are recovered and logged, and never escape the dispatch loop.
package eventloop
