// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package eventloop

import (
	"time"

	"github.com/joeycumines/go-reactor/errkind"
	"github.com/joeycumines/logiface"
)

const defaultMaxEvents = 256

// loopOptions holds configuration options for Loop creation.
type loopOptions struct {
	logger         *logiface.Logger[logiface.Event]
	panicLogRates  map[time.Duration]int
	pollType       PollType
	maxEvents      int
	edgeTriggered  bool
	metricsEnabled bool
}

// --- Loop Options ---

// LoopOption configures a Loop instance.
type LoopOption interface {
	applyLoop(*loopOptions) error
}

// loopOptionImpl implements LoopOption.
type loopOptionImpl struct {
	applyLoopFunc func(*loopOptions) error
}

func (l *loopOptionImpl) applyLoop(opts *loopOptions) error {
	return l.applyLoopFunc(opts)
}

// WithLogger sets the structured logger used by the loop. A nil logger (the
// default) disables logging.
func WithLogger(logger *logiface.Logger[logiface.Event]) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithPollType selects the polling mechanism. PollDefault picks epoll on
// Linux and kqueue on Darwin.
func WithPollType(pollType PollType) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		if pollType < PollDefault || pollType > PollPoll {
			return errkind.New(errkind.InvalidParam, "eventloop: unknown poll type", nil)
		}
		opts.pollType = pollType
		return nil
	}}
}

// WithEdgeTriggered requests edge-triggered notification, where the poller
// supports it (epoll and kqueue). Callbacks must then consume all available
// data on each notification. See [Loop.LevelTriggered].
func WithEdgeTriggered(enabled bool) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.edgeTriggered = enabled
		return nil
	}}
}

// WithMaxEvents sets the number of readiness events collected per poll.
func WithMaxEvents(n int) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		if n <= 0 {
			return errkind.New(errkind.InvalidParam, "eventloop: max events must be positive", nil)
		}
		opts.maxEvents = n
		return nil
	}}
}

// WithMetrics enables runtime metrics collection on the Loop.
// When enabled, metrics can be accessed via Loop.Metrics().
func WithMetrics(enabled bool) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.metricsEnabled = enabled
		return nil
	}}
}

// WithPanicLogRates overrides the per-category rate limits applied to logs
// for recovered callback panics, in the format accepted by
// [catrate.NewLimiter]. An empty map disables rate limiting.
func WithPanicLogRates(rates map[time.Duration]int) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.panicLogRates = rates
		return nil
	}}
}

// resolveLoopOptions applies LoopOption instances to loopOptions.
func resolveLoopOptions(opts []LoopOption) (*loopOptions, error) {
	cfg := &loopOptions{
		maxEvents: defaultMaxEvents,
		panicLogRates: map[time.Duration]int{
			time.Second: 5,
			time.Minute: 30,
		},
	}
	for _, opt := range opts {
		if opt == nil {
			continue // Skip nil options gracefully
		}
		if err := opt.applyLoop(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
