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
)

// Metrics is a snapshot of runtime statistics for the event loop, available
// via [Loop.Metrics] when the loop was created with WithMetrics(true).
//
// Example:
//
//	loop, _ := New(WithMetrics(true))
//	_ = loop.RunOnce(0)
//	stats := loop.Metrics()
//	fmt.Printf("cycles: %d, mean task latency: %v\n",
//		stats.Cycles, stats.TaskLatency.Mean)
type Metrics struct {
	TaskLatency    LatencyMetrics
	Cycles         uint64
	FDDispatches   uint64
	TimersFired    uint64
	TasksRun       uint64
	Panics         uint64
	QueueDepth     int
	QueueDepthPeak int
}

// LatencyMetrics summarizes the time tasks spent queued before running.
type LatencyMetrics struct {
	Mean  time.Duration
	Max   time.Duration
	Count uint64
}

// loopMetrics accumulates statistics. A nil *loopMetrics is valid, and
// records nothing.
type loopMetrics struct {
	cycles       atomic.Uint64
	fdDispatches atomic.Uint64
	timersFired  atomic.Uint64
	tasksRun     atomic.Uint64
	panics       atomic.Uint64
	mu           sync.Mutex
	latencySum   time.Duration
	latencyMax   time.Duration
	latencyCount uint64
	queuePeak    int
}

func (m *loopMetrics) cycle() {
	if m != nil {
		m.cycles.Add(1)
	}
}

func (m *loopMetrics) fdDispatched() {
	if m != nil {
		m.fdDispatches.Add(1)
	}
}

func (m *loopMetrics) timerFired() {
	if m != nil {
		m.timersFired.Add(1)
	}
}

func (m *loopMetrics) panicked() {
	if m != nil {
		m.panics.Add(1)
	}
}

func (m *loopMetrics) enqueued(depth int) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.queuePeak = max(m.queuePeak, depth)
	m.mu.Unlock()
}

func (m *loopMetrics) taskRun(enqueued time.Time) {
	if m == nil {
		return
	}
	m.tasksRun.Add(1)
	if enqueued.IsZero() {
		return
	}
	d := time.Since(enqueued)
	m.mu.Lock()
	m.latencySum += d
	m.latencyCount++
	m.latencyMax = max(m.latencyMax, d)
	m.mu.Unlock()
}

// Metrics returns a snapshot of the loop's statistics. It returns the zero
// value if metrics are disabled. Safe to call from any goroutine.
func (l *Loop) Metrics() Metrics {
	m := l.metrics
	if m == nil {
		return Metrics{}
	}
	s := Metrics{
		Cycles:       m.cycles.Load(),
		FDDispatches: m.fdDispatches.Load(),
		TimersFired:  m.timersFired.Load(),
		TasksRun:     m.tasksRun.Load(),
		Panics:       m.panics.Load(),
		QueueDepth:   l.tasks.len(),
	}
	m.mu.Lock()
	s.QueueDepthPeak = m.queuePeak
	s.TaskLatency = LatencyMetrics{Max: m.latencyMax, Count: m.latencyCount}
	if m.latencyCount != 0 {
		s.TaskLatency.Mean = m.latencySum / time.Duration(m.latencyCount)
	}
	m.mu.Unlock()
	return s
}
