// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build darwin

package eventloop

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

func newPoller(pollType PollType, edgeTriggered bool, maxEvents int) (poller, PollType, error) {
	switch pollType {
	case PollDefault, PollKqueue:
		p, err := newKqueuePoller(edgeTriggered, maxEvents)
		if err != nil {
			return nil, 0, err
		}
		return p, PollKqueue, nil
	case PollPoll:
		return newPollPoller(), PollPoll, nil
	default:
		return nil, 0, ErrPollTypeUnsupported
	}
}

// kqueuePoller manages I/O event registration using kqueue (Darwin).
// Filters are per direction, so the current interest set is tracked to
// compute the delta on modify and remove.
type kqueuePoller struct {
	interest map[int]IOEvents
	eventBuf []unix.Kevent_t
	mu       sync.Mutex
	kq       int
	edge     bool
	closed   atomic.Bool
}

func newKqueuePoller(edgeTriggered bool, maxEvents int) (*kqueuePoller, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, pollError("kqueue", err)
	}
	unix.CloseOnExec(kq)
	return &kqueuePoller{
		interest: make(map[int]IOEvents),
		eventBuf: make([]unix.Kevent_t, maxEvents),
		kq:       kq,
		edge:     edgeTriggered,
	}, nil
}

func (p *kqueuePoller) apply(fd int, events IOEvents, flags uint16) error {
	kevents := eventsToKevents(fd, events, flags)
	if len(kevents) == 0 {
		return nil
	}
	if _, err := unix.Kevent(p.kq, kevents, nil, nil); err != nil {
		return pollError("kevent", err)
	}
	return nil
}

func (p *kqueuePoller) addFlags() uint16 {
	flags := uint16(unix.EV_ADD | unix.EV_ENABLE)
	if p.edge {
		flags |= unix.EV_CLEAR
	}
	return flags
}

func (p *kqueuePoller) add(fd int, events IOEvents) error {
	if p.closed.Load() {
		return ErrPollerClosed
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.interest[fd]; ok {
		return ErrFDAlreadyRegistered
	}
	if err := p.apply(fd, events, p.addFlags()); err != nil {
		return err
	}
	p.interest[fd] = events
	return nil
}

func (p *kqueuePoller) modify(fd int, events IOEvents) error {
	if p.closed.Load() {
		return ErrPollerClosed
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	old, ok := p.interest[fd]
	if !ok {
		return ErrFDNotRegistered
	}
	if removed := old &^ events; removed != 0 {
		_ = p.apply(fd, removed, unix.EV_DELETE)
	}
	if added := events &^ old; added != 0 {
		if err := p.apply(fd, added, p.addFlags()); err != nil {
			return err
		}
	}
	p.interest[fd] = events
	return nil
}

func (p *kqueuePoller) remove(fd int) error {
	if p.closed.Load() {
		return ErrPollerClosed
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	old, ok := p.interest[fd]
	if !ok {
		return ErrFDNotRegistered
	}
	delete(p.interest, fd)
	// the descriptor may already be closed, which drops its filters
	_ = p.apply(fd, old, unix.EV_DELETE)
	return nil
}

func (p *kqueuePoller) wait(timeoutMs int, out []readyEvent) ([]readyEvent, error) {
	out = out[:0]
	if p.closed.Load() {
		return out, ErrPollerClosed
	}
	var ts *unix.Timespec
	if timeoutMs >= 0 {
		ts = &unix.Timespec{
			Sec:  int64(timeoutMs / 1000),
			Nsec: int64((timeoutMs % 1000) * 1000000),
		}
	}
	n, err := unix.Kevent(p.kq, nil, p.eventBuf, ts)
	if err != nil {
		if err == unix.EINTR {
			return out, nil
		}
		return out, pollError("kevent", err)
	}
	// read and write filters are reported separately, merge them per fd
	for i := range n {
		fd, events := int(p.eventBuf[i].Ident), keventToEvents(&p.eventBuf[i])
		merged := false
		for j := range out {
			if out[j].fd == fd {
				out[j].events |= events
				merged = true
				break
			}
		}
		if !merged {
			out = append(out, readyEvent{fd: fd, events: events})
		}
	}
	return out, nil
}

func (p *kqueuePoller) levelTriggered() bool { return !p.edge }

func (p *kqueuePoller) close() error {
	if p.closed.Swap(true) {
		return nil
	}
	return unix.Close(p.kq)
}

// eventsToKevents converts IOEvents to kqueue kevent structures.
func eventsToKevents(fd int, events IOEvents, flags uint16) []unix.Kevent_t {
	var kevents []unix.Kevent_t
	if events&EventRead != 0 {
		kevents = append(kevents, unix.Kevent_t{
			Ident:  uint64(fd),
			Filter: unix.EVFILT_READ,
			Flags:  flags,
		})
	}
	if events&EventWrite != 0 {
		kevents = append(kevents, unix.Kevent_t{
			Ident:  uint64(fd),
			Filter: unix.EVFILT_WRITE,
			Flags:  flags,
		})
	}
	return kevents
}

// keventToEvents converts kqueue event to IOEvents.
func keventToEvents(kev *unix.Kevent_t) IOEvents {
	var events IOEvents
	switch kev.Filter {
	case unix.EVFILT_READ:
		events |= EventRead
	case unix.EVFILT_WRITE:
		events |= EventWrite
	}
	if kev.Flags&unix.EV_ERROR != 0 {
		events |= EventError
	}
	if kev.Flags&unix.EV_EOF != 0 {
		events |= EventHangup
	}
	return events
}
