// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Example: Timers
//
// This example demonstrates timer usage patterns:
// - One-shot timers, firing in deadline order
// - A repeating timer that cancels itself
// - Cancelling a timer before it fires
//
// Run with: go run ./eventloop/examples/02_timers/
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joeycumines/go-reactor/eventloop"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

func main() {
	logger := stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(os.Stderr)),
		stumpy.L.WithLevel(logiface.LevelDebug),
	).Logger()

	loop, err := eventloop.New(eventloop.WithLogger(logger), eventloop.WithMetrics(true))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer loop.Close()

	start := time.Now()
	elapsed := func() time.Duration { return time.Since(start).Round(time.Millisecond) }

	// Order: B (50ms), A (100ms), C (150ms)
	for _, tc := range []struct {
		name  string
		delay time.Duration
	}{
		{"A", 100 * time.Millisecond},
		{"B", 50 * time.Millisecond},
		{"C", 150 * time.Millisecond},
	} {
		_, _ = loop.ScheduleTimer(tc.delay, func() {
			fmt.Printf("timer %s fired at %v\n", tc.name, elapsed())
		}, false)
	}

	cancelled, _ := loop.ScheduleTimer(200*time.Millisecond, func() {
		fmt.Println("this should NOT print")
	}, false)
	cancelled.Cancel()

	var (
		ticks int
		tick  *eventloop.Timer
	)
	tick, _ = loop.ScheduleTimer(40*time.Millisecond, func() {
		ticks++
		fmt.Printf("tick %d at %v\n", ticks, elapsed())
		if ticks == 5 {
			tick.Cancel()
		}
	}, true)

	_, _ = loop.ScheduleTimer(300*time.Millisecond, loop.Stop, false)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := loop.Run(ctx, -1); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	m := loop.Metrics()
	fmt.Printf("cycles=%d timers=%d active=%v\n", m.Cycles, m.TimersFired, tick.Active())
}
