// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package eventloop

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
)

// task is a unit of work queued for the loop goroutine.
type task struct {
	enqueued time.Time // zero unless metrics are enabled
	fn       func()
}

// taskQueue is a multi-producer FIFO drained by the loop goroutine. The
// length is mirrored in an atomic so the loop can check it between
// announcing it is about to sleep and actually sleeping, without the lock.
type taskQueue struct {
	q      *queue.Queue
	mu     sync.Mutex
	length atomic.Int64
}

func (x *taskQueue) push(t task) int {
	x.mu.Lock()
	if x.q == nil {
		x.q = queue.New()
	}
	x.q.Add(t)
	n := x.q.Length()
	x.length.Store(int64(n))
	x.mu.Unlock()
	return n
}

func (x *taskQueue) len() int {
	return int(x.length.Load())
}

// drain moves every task queued at the time of the call into buf. Tasks
// pushed after drain returns are left for the next call.
func (x *taskQueue) drain(buf []task) []task {
	buf = buf[:0]
	x.mu.Lock()
	if x.q != nil {
		for x.q.Length() > 0 {
			buf = append(buf, x.q.Remove().(task))
		}
	}
	x.length.Store(0)
	x.mu.Unlock()
	return buf
}

func (x *taskQueue) clear() {
	x.mu.Lock()
	x.q = nil
	x.length.Store(0)
	x.mu.Unlock()
}
