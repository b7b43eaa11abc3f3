// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package examples contains runnable example programs demonstrating
// the eventloop package functionality.
//
// # Examples
//
// The examples directory contains the following subdirectories:
//
//   - 01_pipe_echo: Descriptor registration, readiness, and unregistration
//   - 02_timers: One-shot, repeating, and cancelled timers
//   - 03_cached_request: An h2.Request served from a cache, then the network
//
// # Running Examples
//
// Each example can be run from the repository root (linux or darwin):
//
//	go run ./eventloop/examples/01_pipe_echo/
//	go run ./eventloop/examples/02_timers/
//	go run ./eventloop/examples/03_cached_request/
//
// Every example logs JSON to stderr, via stumpy.
package examples
