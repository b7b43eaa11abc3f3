// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package eventloop

import (
	"context"
	"encoding/binary"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/go-reactor/errkind"
	"github.com/joeycumines/logiface"
)

// Loop is a single-goroutine reactor. See the package documentation for the
// execution model.
//
// The goroutine that first calls Run or RunOnce owns the loop for its whole
// lifetime. A Loop must be released with Close.
type Loop struct { // betteralign:ignore
	state        *FastState
	poller       poller
	logger       *logiface.Logger[logiface.Event]
	panicLimiter *catrate.Limiter
	metrics      *loopMetrics
	done         chan struct{}

	// fds is the descriptor registry, nil once terminated
	fds    map[int]registration
	regSeq uint64
	fdMu   sync.RWMutex

	syncWaiters map[*syncWaiter]struct{}
	syncMu      sync.Mutex

	id     string
	tasks  taskQueue
	timers timerService

	// loop goroutine only
	ready    []readyEvent
	drainBuf []task
	pollSeq  uint64
	inLoop   bool

	pollType    PollType
	wakeFd      int
	wakeWriteFd int
	wakeBuf     [8]byte

	loopGoroutineID atomic.Uint64
	stopSeq         atomic.Uint64
	wakePending     atomic.Bool
}

// registration is the registry entry for a descriptor. seq orders it against
// the poll that collected a readiness event.
type registration struct {
	callback IOCallback
	seq      uint64
	events   IOEvents
}

// New creates a new event loop, allocating its poller and wake descriptor.
func New(opts ...LoopOption) (*Loop, error) {
	cfg, err := resolveLoopOptions(opts)
	if err != nil {
		return nil, err
	}

	limiter, err := newPanicLimiter(cfg.panicLogRates)
	if err != nil {
		return nil, err
	}

	p, pollType, err := newPoller(cfg.pollType, cfg.edgeTriggered, cfg.maxEvents)
	if err != nil {
		return nil, err
	}

	wakeFd, wakeWriteFd, err := createWakeFd()
	if err != nil {
		_ = p.close()
		return nil, err
	}

	if err := p.add(wakeFd, EventRead); err != nil {
		_ = p.close()
		_ = closeFD(wakeFd)
		if wakeWriteFd != wakeFd {
			_ = closeFD(wakeWriteFd)
		}
		return nil, err
	}

	id := uuid.NewString()

	l := &Loop{
		state:        NewFastState(),
		poller:       p,
		pollType:     pollType,
		logger:       cfg.logger.Clone().Str("loop", id).Logger(),
		panicLimiter: limiter,
		done:         make(chan struct{}),
		fds:          make(map[int]registration),
		id:           id,
		wakeFd:       wakeFd,
		wakeWriteFd:  wakeWriteFd,
		ready:        make([]readyEvent, 0, cfg.maxEvents),
	}
	if cfg.metricsEnabled {
		l.metrics = new(loopMetrics)
	}

	l.logger.Debug().
		Str("poll_type", pollType.String()).
		Bool("level_triggered", p.levelTriggered()).
		Log("eventloop: created")

	return l, nil
}

// ID returns the unique identifier assigned to the loop at construction.
func (l *Loop) ID() string { return l.id }

// Logger returns the loop's logger, which may be nil. It carries the loop's
// identifier as a field.
func (l *Loop) Logger() *logiface.Logger[logiface.Event] { return l.logger }

// PollType returns the polling mechanism in use.
func (l *Loop) PollType() PollType { return l.pollType }

// LevelTriggered reports whether readiness is level-triggered, i.e. a
// descriptor stays ready until its data is consumed.
func (l *Loop) LevelTriggered() bool { return l.poller.levelTriggered() }

// State returns the current loop state.
func (l *Loop) State() LoopState { return l.state.Load() }

// Done returns a channel that is closed once the loop has terminated, and
// released its resources.
func (l *Loop) Done() <-chan struct{} { return l.done }

// IsLoopThread reports whether the caller is the goroutine that owns the
// loop. It returns false before the loop has first been run.
func (l *Loop) IsLoopThread() bool {
	id := l.loopGoroutineID.Load()
	return id != 0 && id == getGoroutineID()
}

// Run drives the loop until Stop or Close is called, or ctx is cancelled,
// returning nil, nil, or ctx.Err(), respectively. The maxWait parameter
// bounds each poll, where a negative value means no bound other than the
// next timer.
//
// Run locks the calling goroutine to its OS thread for its duration.
func (l *Loop) Run(ctx context.Context, maxWait time.Duration) error {
	stopSeq := l.stopSeq.Load()

	if err := l.begin(); err != nil {
		return err
	}

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer l.end()

	if ctx.Done() != nil {
		stop := context.AfterFunc(ctx, l.wake)
		defer stop()
	}

	l.logger.Debug().Log("eventloop: running")

	for {
		if l.stopSeq.Load() != stopSeq || l.state.Load() == StateTerminating {
			l.logger.Debug().Log("eventloop: stopped")
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := l.cycle(ctx, maxWait, stopSeq); err != nil {
			return err
		}
	}
}

// RunOnce performs a single iteration: poll for at most maxWait (negative
// means until the next timer, or forever), dispatch ready descriptors, run
// expired timers, then run the tasks queued before the drain began.
func (l *Loop) RunOnce(maxWait time.Duration) error {
	stopSeq := l.stopSeq.Load()

	if err := l.begin(); err != nil {
		return err
	}
	defer l.end()

	return l.cycle(context.Background(), maxWait, stopSeq)
}

// begin claims the loop for the calling goroutine, and transitions it to
// running.
func (l *Loop) begin() error {
	gid := getGoroutineID()
	if !l.loopGoroutineID.CompareAndSwap(0, gid) && l.loopGoroutineID.Load() != gid {
		if l.state.IsTerminal() {
			return ErrLoopTerminated
		}
		return ErrWrongGoroutine
	}
	if l.inLoop {
		return ErrReentrantRun
	}
	if !l.state.TryTransition(StateAwake, StateRunning) {
		if l.state.IsTerminal() {
			return ErrLoopTerminated
		}
		return ErrLoopAlreadyRunning
	}
	l.inLoop = true
	return nil
}

// end reverts to StateAwake, failing any SubmitSync callers left waiting, or
// completes a Close requested while running.
func (l *Loop) end() {
	l.inLoop = false
	for {
		if l.state.TryTransition(StateRunning, StateAwake) ||
			l.state.TryTransition(StateSleeping, StateAwake) {
			l.failSyncWaiters(ErrLoopNotRunning)
			return
		}
		if l.state.Load() == StateTerminating {
			l.terminate()
			return
		}
	}
}

// cycle is a single iteration of the event loop.
func (l *Loop) cycle(ctx context.Context, maxWait time.Duration, stopSeq uint64) error {
	if err := l.poll(ctx, maxWait, stopSeq); err != nil {
		return err
	}
	if l.state.Load() != StateRunning {
		return nil
	}
	l.dispatchReady()
	l.runTimers()
	l.runTasks()
	l.metrics.cycle()
	return nil
}

// poll performs the blocking poll. The state is set to StateSleeping before
// the task queue, stop request, and timers are checked, so that any producer
// that missed the sleeping state is guaranteed to be observed here.
func (l *Loop) poll(ctx context.Context, maxWait time.Duration, stopSeq uint64) error {
	if !l.state.TryTransition(StateRunning, StateSleeping) {
		return nil
	}

	timeout := 0
	if l.tasks.len() == 0 && l.stopSeq.Load() == stopSeq && ctx.Err() == nil {
		timeout = l.pollTimeout(maxWait)
	}

	l.fdMu.RLock()
	l.pollSeq = l.regSeq
	l.fdMu.RUnlock()

	var err error
	l.ready, err = l.poller.wait(timeout, l.ready)

	l.state.TryTransition(StateSleeping, StateRunning)

	if err != nil {
		l.ready = l.ready[:0]
		l.logger.Err().Err(err).Log("eventloop: poll failed")
		return err
	}
	return nil
}

// pollTimeout determines how long to block in poll, in milliseconds.
func (l *Loop) pollTimeout(maxWait time.Duration) int {
	d := maxWait
	if when, ok := l.timers.next(); ok {
		until := max(time.Until(when), 0)
		if d < 0 || until < d {
			d = until
		}
	}
	if d < 0 {
		return -1
	}
	// round up, so timers are not polled for early
	ms := (d + time.Millisecond - 1) / time.Millisecond
	if ms > math.MaxInt32 {
		ms = math.MaxInt32
	}
	return int(ms)
}

// dispatchReady invokes callbacks for the descriptors collected by the last
// poll. The registry is consulted for each descriptor, so a callback that
// unregisters another descriptor suppresses its pending notification.
func (l *Loop) dispatchReady() {
	for _, ev := range l.ready {
		if ev.fd == l.wakeFd {
			l.drainWakeFd()
			continue
		}

		l.fdMu.RLock()
		reg, ok := l.fds[ev.fd]
		l.fdMu.RUnlock()

		// registered after the poll collected this event
		if !ok || reg.seq > l.pollSeq {
			continue
		}

		events := ev.events & (reg.events | EventError | EventHangup)
		if events == 0 {
			continue
		}

		l.metrics.fdDispatched()
		_ = l.safeCall(categoryFD, func() { reg.callback(events) })
	}
	l.ready = l.ready[:0]
}

// runTasks runs the tasks queued at the start of the drain.
func (l *Loop) runTasks() {
	l.drainBuf = l.tasks.drain(l.drainBuf)
	for i := range l.drainBuf {
		t := l.drainBuf[i]
		l.drainBuf[i] = task{}
		l.metrics.taskRun(t.enqueued)
		_ = l.safeCall(categoryTask, t.fn)
	}
}

// drainWakeFd drains the wake descriptor.
func (l *Loop) drainWakeFd() {
	for {
		if _, err := readFD(l.wakeFd, l.wakeBuf[:]); err != nil {
			break
		}
	}
	l.wakePending.Store(false)
}

// wake interrupts the poll, if the loop is sleeping.
func (l *Loop) wake() {
	if l.state.Load() != StateSleeping {
		return
	}
	l.wakeup()
}

// wakeup writes to the wake descriptor, unless a write is already pending.
func (l *Loop) wakeup() {
	if !l.wakePending.CompareAndSwap(false, true) {
		return
	}
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	if _, err := writeFD(l.wakeWriteFd, buf[:]); err != nil {
		l.wakePending.Store(false)
	}
}

// Submit queues task to run on the loop goroutine. Tasks run in the order
// they were submitted. Safe to call from any goroutine, including the loop.
func (l *Loop) Submit(task func()) error {
	if task == nil {
		return ErrNilTask
	}
	if l.state.IsTerminal() {
		return ErrLoopTerminated
	}
	l.submit(task)
	return nil
}

func (l *Loop) submit(fn func()) {
	t := task{fn: fn}
	if l.metrics != nil {
		t.enqueued = time.Now()
	}
	depth := l.tasks.push(t)
	l.metrics.enqueued(depth)
	l.wake()
}

// syncWaiter tracks a caller blocked in SubmitSync.
type syncWaiter struct {
	done chan struct{}
	err  error
}

// SubmitSync runs task on the loop goroutine, and waits for it to complete.
// Called from within a loop callback, task runs inline, immediately.
// Otherwise the loop must be running: the call fails fast with
// [ErrLoopNotRunning] if it is not, and blocks until the loop runs the task
// if it is. If the loop returns, is stopped, or is closed first, the call
// fails with [ErrLoopNotRunning], [ErrLoopStopped], or [ErrLoopTerminated],
// and the task will never run.
//
// A panic in task is recovered, and returned as an error wrapping
// [PanicError].
func (l *Loop) SubmitSync(task func()) error {
	if task == nil {
		return ErrNilTask
	}

	if l.state.IsTerminal() {
		return ErrLoopTerminated
	}

	if l.IsLoopThread() {
		if !l.inLoop {
			return ErrLoopNotRunning
		}
		return l.runSync(task)
	}

	w := &syncWaiter{done: make(chan struct{})}

	l.syncMu.Lock()
	if l.syncWaiters == nil {
		l.syncWaiters = make(map[*syncWaiter]struct{})
	}
	l.syncWaiters[w] = struct{}{}
	l.syncMu.Unlock()

	if err := l.Submit(func() {
		if !l.claimWaiter(w) {
			return
		}
		w.err = l.runSync(task)
		close(w.done)
	}); err != nil {
		if l.claimWaiter(w) {
			return err
		}
	}

	// checked after the waiter is visible to end, which fails it on return
	if !l.state.IsRunning() && l.claimWaiter(w) {
		if l.state.IsTerminal() {
			return ErrLoopTerminated
		}
		return ErrLoopNotRunning
	}

	<-w.done
	return w.err
}

func (l *Loop) runSync(task func()) error {
	if err := l.safeCall(categoryTask, task); err != nil {
		return errkind.New(errkind.Failed, "eventloop: sync task", err)
	}
	return nil
}

// claimWaiter removes w, returning false if it was already failed.
func (l *Loop) claimWaiter(w *syncWaiter) bool {
	l.syncMu.Lock()
	defer l.syncMu.Unlock()
	if _, ok := l.syncWaiters[w]; !ok {
		return false
	}
	delete(l.syncWaiters, w)
	return true
}

func (l *Loop) failSyncWaiters(err error) {
	l.syncMu.Lock()
	defer l.syncMu.Unlock()
	for w := range l.syncWaiters {
		w.err = err
		close(w.done)
	}
	clear(l.syncWaiters)
}

// Stop causes a running Run call to return, after the current iteration.
// It is idempotent, safe to call from any goroutine, and a no-op if the loop
// is not running, except that pending SubmitSync calls always fail.
func (l *Loop) Stop() {
	if l.state.IsRunning() {
		l.stopSeq.Add(1)
		l.wake()
	}
	l.failSyncWaiters(ErrLoopStopped)
}

// Close terminates the loop, releasing the poller and wake descriptor.
// Registered descriptors are not closed, and queued tasks and timers are
// discarded. If the loop is running, Close returns immediately, and the
// running Run or RunOnce call completes the shutdown before returning; use
// Done to wait for it.
func (l *Loop) Close() error {
	for {
		switch s := l.state.Load(); s {
		case StateTerminated, StateTerminating:
			return ErrLoopTerminated
		case StateAwake:
			if l.state.TryTransition(StateAwake, StateTerminating) {
				l.terminate()
				return nil
			}
		default:
			if l.state.TryTransition(s, StateTerminating) {
				l.wakeup()
				return nil
			}
		}
	}
}

// terminate releases all resources. Called exactly once, by whichever of
// Close or end observed StateTerminating.
func (l *Loop) terminate() {
	l.failSyncWaiters(ErrLoopTerminated)

	l.fdMu.Lock()
	l.fds = nil
	l.fdMu.Unlock()

	l.timers.clear()
	l.tasks.clear()

	_ = l.poller.close()
	_ = closeFD(l.wakeFd)
	if l.wakeWriteFd != l.wakeFd {
		_ = closeFD(l.wakeWriteFd)
	}

	l.state.Store(StateTerminated)
	close(l.done)

	l.logger.Debug().Log("eventloop: terminated")
}
