// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package eventloop

import (
	"errors"

	"github.com/joeycumines/go-reactor/errkind"
)

// RegisterFD registers a file descriptor for I/O monitoring, with at most
// one registration per descriptor. The callback receives the ready subset
// of events, plus EventError and EventHangup, which are always reported.
//
// Called off the loop goroutine while the loop is running, the parameters
// are validated synchronously, but the registration itself is queued as a
// task, and any failure to apply it is logged rather than returned.
func (l *Loop) RegisterFD(fd int, events IOEvents, callback IOCallback) error {
	if fd < 0 {
		return ErrFDOutOfRange
	}
	if callback == nil {
		return ErrNilCallback
	}
	if events&(EventRead|EventWrite) == 0 {
		return ErrInvalidEvents
	}
	if l.state.IsTerminal() {
		return ErrLoopTerminated
	}
	if fd == l.wakeFd || fd == l.wakeWriteFd {
		return ErrFDAlreadyRegistered
	}

	if l.state.IsRunning() && !l.IsLoopThread() {
		l.fdMu.RLock()
		_, exists := l.fds[fd]
		l.fdMu.RUnlock()
		if exists {
			return ErrFDAlreadyRegistered
		}
		return l.Submit(func() {
			if err := l.installFD(fd, events, callback); err != nil {
				l.logger.Warning().
					Int("fd", fd).
					Err(err).
					Log("eventloop: deferred fd registration failed")
			}
		})
	}

	return l.installFD(fd, events, callback)
}

func (l *Loop) installFD(fd int, events IOEvents, callback IOCallback) error {
	l.fdMu.Lock()
	defer l.fdMu.Unlock()
	if l.fds == nil {
		return ErrLoopTerminated
	}
	if _, ok := l.fds[fd]; ok {
		return ErrFDAlreadyRegistered
	}
	if err := l.poller.add(fd, events); err != nil {
		return err
	}
	l.regSeq++
	l.fds[fd] = registration{callback: callback, events: events, seq: l.regSeq}
	return nil
}

// ModifyFD replaces the events being monitored for a registered descriptor.
// Called off the loop goroutine while the loop is running, it blocks until
// the loop has applied the change.
func (l *Loop) ModifyFD(fd int, events IOEvents) error {
	if fd < 0 {
		return ErrFDOutOfRange
	}
	if events&(EventRead|EventWrite) == 0 {
		return ErrInvalidEvents
	}
	if l.state.IsTerminal() {
		return ErrLoopTerminated
	}
	return l.onLoop(func() error {
		l.fdMu.Lock()
		defer l.fdMu.Unlock()
		if l.fds == nil {
			return ErrLoopTerminated
		}
		reg, ok := l.fds[fd]
		if !ok {
			return ErrFDNotRegistered
		}
		if err := l.poller.modify(fd, events); err != nil {
			return err
		}
		reg.events = events
		l.fds[fd] = reg
		return nil
	})
}

// UnregisterFD removes a descriptor from monitoring. Once it returns, the
// descriptor's callback will not be invoked again. If closeFile is set, the
// descriptor is closed, even if it was not registered.
//
// Called off the loop goroutine while the loop is running, it blocks until
// the loop has applied the removal.
func (l *Loop) UnregisterFD(fd int, closeFile bool) error {
	if fd < 0 {
		return ErrFDOutOfRange
	}
	if fd == l.wakeFd || fd == l.wakeWriteFd {
		return ErrFDNotRegistered
	}
	return l.onLoop(func() error {
		l.fdMu.Lock()
		_, ok := l.fds[fd]
		if ok {
			delete(l.fds, fd)
			// fails if the descriptor was already closed, which also drops it
			if err := l.poller.remove(fd); err != nil {
				l.logger.Debug().Int("fd", fd).Err(err).Log("eventloop: poller remove failed")
			}
		}
		terminated := l.fds == nil
		l.fdMu.Unlock()

		var err error
		switch {
		case terminated:
			err = ErrLoopTerminated
		case !ok:
			err = ErrFDNotRegistered
		}
		if closeFile {
			if cerr := closeFD(fd); cerr != nil && err == nil {
				err = errkind.New(errkind.SockError, "eventloop: close fd", cerr)
			}
		}
		return err
	})
}

// onLoop runs fn on the loop goroutine when the loop is running and the
// caller is elsewhere, otherwise it runs fn directly, since nothing else is
// dispatching.
func (l *Loop) onLoop(fn func() error) error {
	if l.state.IsRunning() && !l.IsLoopThread() {
		var result error
		err := l.SubmitSync(func() { result = fn() })
		if err == nil {
			return result
		}
		if !errors.Is(err, ErrLoopStopped) && !errors.Is(err, ErrLoopTerminated) && !errors.Is(err, ErrLoopNotRunning) {
			return err
		}
	}
	return fn()
}
