// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package eventloop

import (
	"container/heap"
	"sync"
	"sync/atomic"
	"time"
)

// Timer is a handle to a callback scheduled with [Loop.ScheduleTimer].
type Timer struct {
	when     time.Time
	loop     *Loop
	fn       func()
	interval time.Duration
	seq      uint64
	index    int // position in the heap, -1 when not queued; guarded by timerService.mu
	// firing is only accessed by the loop goroutine
	firing    bool
	repeat    bool
	cancelled atomic.Bool
	finished  atomic.Bool
}

// Cancel stops the timer. It is idempotent, and safe to call from any
// goroutine, including from the timer's own callback, and after a one-shot
// timer has fired. A repeating timer cancelled during its callback is not
// rescheduled.
func (t *Timer) Cancel() {
	if t == nil || t.cancelled.Swap(true) {
		return
	}
	t.loop.timers.remove(t)
}

// Active reports whether the timer is still scheduled, i.e. it has not been
// cancelled, and is not a one-shot timer that has already fired.
func (t *Timer) Active() bool {
	return t != nil && !t.cancelled.Load() && !t.finished.Load()
}

// timerHeap is a min-heap of timers, ordered by expiry then schedule order.
type timerHeap []*Timer

// Implement heap.Interface for timerHeap
func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].when.Equal(h[j].when) {
		return h[i].seq < h[j].seq
	}
	return h[i].when.Before(h[j].when)
}
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*Timer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

// timerService guards the heap with a mutex, so timers may be scheduled and
// cancelled from any goroutine. Callbacks are always invoked by the loop.
type timerService struct {
	heap timerHeap
	mu   sync.Mutex
	seq  uint64
}

func (x *timerService) push(t *Timer) {
	x.mu.Lock()
	x.seq++
	t.seq = x.seq
	heap.Push(&x.heap, t)
	x.mu.Unlock()
}

func (x *timerService) remove(t *Timer) {
	x.mu.Lock()
	if t.index >= 0 && t.index < len(x.heap) && x.heap[t.index] == t {
		heap.Remove(&x.heap, t.index)
	}
	x.mu.Unlock()
}

// next returns the earliest expiry, if any timer is queued.
func (x *timerService) next() (time.Time, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if len(x.heap) == 0 {
		return time.Time{}, false
	}
	return x.heap[0].when, true
}

// popExpired removes and returns the earliest timer, if it is due at now.
func (x *timerService) popExpired(now time.Time) *Timer {
	x.mu.Lock()
	defer x.mu.Unlock()
	if len(x.heap) == 0 || x.heap[0].when.After(now) {
		return nil
	}
	return heap.Pop(&x.heap).(*Timer)
}

func (x *timerService) clear() {
	x.mu.Lock()
	for _, t := range x.heap {
		t.index = -1
	}
	x.heap = nil
	x.mu.Unlock()
}

// ScheduleTimer schedules fn to run on the loop goroutine after delay. If
// repeat is set, fn runs every delay until the timer is cancelled, with
// each expiry computed from the previous one rather than from when the
// callback finished. Invocations never overlap: ticks missed while a
// callback was running are skipped.
//
// Safe to call from any goroutine.
func (l *Loop) ScheduleTimer(delay time.Duration, fn func(), repeat bool) (*Timer, error) {
	if fn == nil {
		return nil, ErrNilCallback
	}
	if delay < 0 || (repeat && delay == 0) {
		return nil, ErrInvalidDelay
	}
	if l.state.IsTerminal() {
		return nil, ErrLoopTerminated
	}
	t := &Timer{
		loop:     l,
		fn:       fn,
		when:     time.Now().Add(delay),
		interval: delay,
		repeat:   repeat,
		index:    -1,
	}
	l.timers.push(t)
	// recompute the poll timeout
	l.wake()
	return t, nil
}

// runTimers executes all expired timers.
func (l *Loop) runTimers() {
	now := time.Now()
	for {
		t := l.timers.popExpired(now)
		if t == nil {
			return
		}
		if t.cancelled.Load() || t.firing {
			continue
		}

		t.firing = true
		_ = l.safeCall(categoryTimer, t.fn)
		t.firing = false
		l.metrics.timerFired()

		if !t.repeat {
			t.finished.Store(true)
			continue
		}
		if t.cancelled.Load() {
			continue
		}
		next := t.when.Add(t.interval)
		if after := time.Now(); !next.After(after) {
			missed := after.Sub(next)/t.interval + 1
			next = next.Add(missed * t.interval)
		}
		t.when = next
		l.timers.push(t)
		// cancelled concurrently with the push
		if t.cancelled.Load() {
			l.timers.remove(t)
		}
	}
}
