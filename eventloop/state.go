// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package eventloop

import (
	"sync/atomic"
)

// LoopState represents the current state of the event loop.
//
// State Machine:
//
//	StateAwake → StateRunning             [Run, RunOnce]
//	StateRunning → StateSleeping          [poll, via CAS]
//	StateSleeping → StateRunning          [poll returned, via CAS]
//	StateRunning → StateAwake             [Run or RunOnce returned]
//	StateAwake → StateTerminating         [Close]
//	StateRunning → StateTerminating       [Close]
//	StateSleeping → StateTerminating      [Close]
//	StateTerminating → StateTerminated    [resources released]
//
// Use TryTransition (CAS) for the temporary states, and Store only for
// StateTerminated.
type LoopState uint64

const (
	// StateAwake indicates the loop is not currently being driven.
	StateAwake LoopState = 0
	// StateTerminated indicates the loop has been closed.
	StateTerminated LoopState = 1
	// StateSleeping indicates the loop is blocked in poll.
	StateSleeping LoopState = 2
	// StateRunning indicates the loop is dispatching.
	StateRunning LoopState = 3
	// StateTerminating indicates Close was called while the loop was running.
	StateTerminating LoopState = 4
)

// String returns a human-readable representation of the state.
func (s LoopState) String() string {
	switch s {
	case StateAwake:
		return "Awake"
	case StateRunning:
		return "Running"
	case StateSleeping:
		return "Sleeping"
	case StateTerminating:
		return "Terminating"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// FastState is a lock-free state machine with cache-line padding.
type FastState struct { // betteralign:ignore
	_ [64]byte      // Cache line padding (before value) //nolint:unused
	v atomic.Uint64 // State value
	_ [56]byte      // Pad to complete cache line (64 - 8 = 56) //nolint:unused
}

// NewFastState creates a new state machine in the Awake state.
func NewFastState() *FastState {
	s := &FastState{}
	s.v.Store(uint64(StateAwake))
	return s
}

// Load returns the current state atomically.
func (s *FastState) Load() LoopState {
	return LoopState(s.v.Load())
}

// Store atomically stores a new state, without validation.
func (s *FastState) Store(state LoopState) {
	s.v.Store(uint64(state))
}

// TryTransition attempts to atomically transition from one state to another.
func (s *FastState) TryTransition(from, to LoopState) bool {
	return s.v.CompareAndSwap(uint64(from), uint64(to))
}

// IsTerminal returns true once the loop has been closed, or is closing.
func (s *FastState) IsTerminal() bool {
	state := s.Load()
	return state == StateTerminated || state == StateTerminating
}

// IsRunning returns true if the loop is currently running or sleeping.
func (s *FastState) IsRunning() bool {
	state := s.Load()
	return state == StateRunning || state == StateSleeping
}
