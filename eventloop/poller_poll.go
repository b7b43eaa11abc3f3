// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build linux || darwin

package eventloop

import (
	"sync"

	"golang.org/x/sys/unix"
)

// pollPoller implements poller with poll(2). The pollfd set is rebuilt from
// the interest map on each wait, which is linear in the number of
// registrations, and is always level-triggered.
type pollPoller struct {
	interest map[int]IOEvents
	fds      []unix.PollFd
	mu       sync.Mutex
	closed   bool
}

func newPollPoller() *pollPoller {
	return &pollPoller{interest: make(map[int]IOEvents)}
}

func (p *pollPoller) add(fd int, events IOEvents) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPollerClosed
	}
	if _, ok := p.interest[fd]; ok {
		return ErrFDAlreadyRegistered
	}
	p.interest[fd] = events
	return nil
}

func (p *pollPoller) modify(fd int, events IOEvents) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPollerClosed
	}
	if _, ok := p.interest[fd]; !ok {
		return ErrFDNotRegistered
	}
	p.interest[fd] = events
	return nil
}

func (p *pollPoller) remove(fd int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPollerClosed
	}
	if _, ok := p.interest[fd]; !ok {
		return ErrFDNotRegistered
	}
	delete(p.interest, fd)
	return nil
}

func (p *pollPoller) wait(timeoutMs int, out []readyEvent) ([]readyEvent, error) {
	out = out[:0]
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return out, ErrPollerClosed
	}
	p.fds = p.fds[:0]
	for fd, events := range p.interest {
		p.fds = append(p.fds, unix.PollFd{Fd: int32(fd), Events: eventsToPoll(events)})
	}
	p.mu.Unlock()

	n, err := unix.Poll(p.fds, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return out, nil
		}
		return out, pollError("poll", err)
	}
	for i := range p.fds {
		if len(out) == n {
			break
		}
		if p.fds[i].Revents != 0 {
			out = append(out, readyEvent{fd: int(p.fds[i].Fd), events: pollToEvents(p.fds[i].Revents)})
		}
	}
	return out, nil
}

func (p *pollPoller) levelTriggered() bool { return true }

func (p *pollPoller) close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.interest = nil
	return nil
}

func eventsToPoll(events IOEvents) int16 {
	var pollEvents int16
	if events&EventRead != 0 {
		pollEvents |= unix.POLLIN
	}
	if events&EventWrite != 0 {
		pollEvents |= unix.POLLOUT
	}
	return pollEvents
}

func pollToEvents(revents int16) IOEvents {
	var events IOEvents
	if revents&unix.POLLIN != 0 {
		events |= EventRead
	}
	if revents&unix.POLLOUT != 0 {
		events |= EventWrite
	}
	if revents&(unix.POLLERR|unix.POLLNVAL) != 0 {
		events |= EventError
	}
	if revents&unix.POLLHUP != 0 {
		events |= EventHangup
	}
	return events
}
