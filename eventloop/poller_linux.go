// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build linux

package eventloop

import (
	"sync/atomic"

	"golang.org/x/sys/unix"
)

func newPoller(pollType PollType, edgeTriggered bool, maxEvents int) (poller, PollType, error) {
	switch pollType {
	case PollDefault, PollEpoll:
		p, err := newEpollPoller(edgeTriggered, maxEvents)
		if err != nil {
			return nil, 0, err
		}
		return p, PollEpoll, nil
	case PollPoll:
		return newPollPoller(), PollPoll, nil
	default:
		return nil, 0, ErrPollTypeUnsupported
	}
}

// epollPoller manages I/O event registration using epoll (Linux).
type epollPoller struct {
	eventBuf []unix.EpollEvent
	epfd     int
	edge     bool
	closed   atomic.Bool
}

func newEpollPoller(edgeTriggered bool, maxEvents int) (*epollPoller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, pollError("epoll_create1", err)
	}
	return &epollPoller{
		epfd:     epfd,
		edge:     edgeTriggered,
		eventBuf: make([]unix.EpollEvent, maxEvents),
	}, nil
}

func (p *epollPoller) ctl(op int, fd int, events IOEvents) error {
	if p.closed.Load() {
		return ErrPollerClosed
	}
	var ev *unix.EpollEvent
	if op != unix.EPOLL_CTL_DEL {
		ev = &unix.EpollEvent{
			Events: eventsToEpoll(events, p.edge),
			Fd:     int32(fd),
		}
	}
	if err := unix.EpollCtl(p.epfd, op, fd, ev); err != nil {
		return pollError("epoll_ctl", err)
	}
	return nil
}

func (p *epollPoller) add(fd int, events IOEvents) error {
	return p.ctl(unix.EPOLL_CTL_ADD, fd, events)
}

func (p *epollPoller) modify(fd int, events IOEvents) error {
	return p.ctl(unix.EPOLL_CTL_MOD, fd, events)
}

func (p *epollPoller) remove(fd int) error {
	return p.ctl(unix.EPOLL_CTL_DEL, fd, 0)
}

func (p *epollPoller) wait(timeoutMs int, out []readyEvent) ([]readyEvent, error) {
	out = out[:0]
	if p.closed.Load() {
		return out, ErrPollerClosed
	}
	n, err := unix.EpollWait(p.epfd, p.eventBuf, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return out, nil
		}
		return out, pollError("epoll_wait", err)
	}
	for i := range n {
		out = append(out, readyEvent{
			fd:     int(p.eventBuf[i].Fd),
			events: epollToEvents(p.eventBuf[i].Events),
		})
	}
	return out, nil
}

func (p *epollPoller) levelTriggered() bool { return !p.edge }

func (p *epollPoller) close() error {
	if p.closed.Swap(true) {
		return nil
	}
	return unix.Close(p.epfd)
}

// eventsToEpoll converts IOEvents to epoll event flags.
func eventsToEpoll(events IOEvents, edge bool) uint32 {
	var epollEvents uint32
	if events&EventRead != 0 {
		epollEvents |= unix.EPOLLIN | unix.EPOLLRDHUP
	}
	if events&EventWrite != 0 {
		epollEvents |= unix.EPOLLOUT
	}
	if edge {
		epollEvents |= unix.EPOLLET
	}
	return epollEvents
}

// epollToEvents converts epoll event flags to IOEvents.
func epollToEvents(epollEvents uint32) IOEvents {
	var events IOEvents
	if epollEvents&unix.EPOLLIN != 0 {
		events |= EventRead
	}
	if epollEvents&unix.EPOLLOUT != 0 {
		events |= EventWrite
	}
	if epollEvents&unix.EPOLLERR != 0 {
		events |= EventError
	}
	if epollEvents&(unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 {
		events |= EventHangup
	}
	return events
}
