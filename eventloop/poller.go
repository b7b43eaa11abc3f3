// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package eventloop

// IOEvents represents the type of I/O events to monitor.
type IOEvents uint32

const (
	// EventRead indicates the file descriptor is ready for reading.
	EventRead IOEvents = 1 << iota
	// EventWrite indicates the file descriptor is ready for writing.
	EventWrite
	// EventError indicates an error condition on the file descriptor.
	EventError
	// EventHangup indicates the peer closed its end of the connection.
	EventHangup
)

// IOCallback is the callback type for I/O events. It is always invoked on
// the loop goroutine.
type IOCallback func(IOEvents)

// PollType identifies a polling mechanism.
type PollType int

const (
	// PollDefault selects the platform's preferred mechanism.
	PollDefault PollType = iota
	// PollEpoll is Linux epoll.
	PollEpoll
	// PollKqueue is BSD/Darwin kqueue.
	PollKqueue
	// PollPoll is poll(2), available on every supported platform.
	PollPoll
)

// String returns a human-readable representation of the poll type.
func (p PollType) String() string {
	switch p {
	case PollDefault:
		return "default"
	case PollEpoll:
		return "epoll"
	case PollKqueue:
		return "kqueue"
	case PollPoll:
		return "poll"
	default:
		return "unknown"
	}
}

// readyEvent is a single readiness notification collected by a poller.
type readyEvent struct {
	fd     int
	events IOEvents
}

// poller is implemented per platform mechanism. Implementations track only
// interest sets; callbacks live in the Loop's registry. All methods other
// than wait are safe for concurrent use.
type poller interface {
	add(fd int, events IOEvents) error
	modify(fd int, events IOEvents) error
	remove(fd int) error
	// wait blocks for up to timeoutMs (-1 is forever), appending the ready
	// descriptors to out[:0]. EINTR is not an error. Only the loop goroutine
	// calls wait.
	wait(timeoutMs int, out []readyEvent) ([]readyEvent, error)
	levelTriggered() bool
	close() error
}
