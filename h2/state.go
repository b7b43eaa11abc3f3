// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package h2

// State is the lifecycle state of a [Request].
type State int

const (
	StateIdle State = iota
	StateSendingRequest
	StateRecvingResponse
	StateComplete
	StateClosed
	StateError
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateSendingRequest:
		return "SendingRequest"
	case StateRecvingResponse:
		return "RecvingResponse"
	case StateComplete:
		return "Complete"
	case StateClosed:
		return "Closed"
	case StateError:
		return "Error"
	default:
		return "Unknown"
	}
}

// inFlight reports whether stream notifications are accepted.
func (s State) inFlight() bool {
	return s == StateSendingRequest || s == StateRecvingResponse
}
