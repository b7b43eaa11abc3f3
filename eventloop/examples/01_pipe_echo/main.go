// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build linux || darwin

// Example: Pipe Echo
//
// This example demonstrates descriptor handling:
// - Registering the read end of a pipe
// - Writing from another goroutine
// - Unregistering from within the callback, then stopping
//
// Run with: go run ./eventloop/examples/01_pipe_echo/
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/joeycumines/go-reactor/eventloop"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	logger := stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(os.Stderr)),
		stumpy.L.WithLevel(logiface.LevelInformational),
	).Logger()

	loop, err := eventloop.New(eventloop.WithLogger(logger))
	if err != nil {
		return err
	}
	defer loop.Close()

	r, w, err := os.Pipe()
	if err != nil {
		return err
	}
	defer r.Close()
	defer w.Close()

	const messages = 3
	var (
		received strings.Builder
		count    int
		buf      [64]byte
	)

	fd := int(r.Fd())
	err = loop.RegisterFD(fd, eventloop.EventRead, func(events eventloop.IOEvents) {
		n, err := syscall.Read(fd, buf[:])
		if n > 0 {
			received.Write(buf[:n])
			count += strings.Count(string(buf[:n]), "\n")
			fmt.Printf("read %d bytes (events=%d)\n", n, events)
		}
		if count >= messages || n == 0 || (err != nil && !errors.Is(err, syscall.EAGAIN)) {
			_ = loop.UnregisterFD(fd, false)
			loop.Stop()
		}
	})
	if err != nil {
		return err
	}

	go func() {
		for i := range messages {
			time.Sleep(50 * time.Millisecond)
			_, _ = fmt.Fprintf(w, "message %d\n", i)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := loop.Run(ctx, -1); err != nil {
		return err
	}

	fmt.Print(received.String())
	return nil
}
