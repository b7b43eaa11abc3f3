// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package h2 implements the client request state machine on top of an
// HTTP/2 stream, driven entirely by callbacks from an [eventloop.Loop].
//
// A [Request] delegates framing to a [StreamProxy], and may short-circuit
// the network via a [CacheGateway]. A cached response is delivered through
// the same callbacks, in the same order, as a response from the network,
// but always asynchronously, from a later loop iteration.
//
// Any callback may release, close, or reset the request it was invoked for.
// Delivery stops as soon as that happens.
package h2
