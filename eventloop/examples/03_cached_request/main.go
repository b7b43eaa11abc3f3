// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Example: Cached Request
//
// This example demonstrates the h2 request state machine:
// - A cacheable GET served from the cache, without touching the stream
// - A cache miss, answered by a simulated stream on a timer
// - Releasing the request from within its complete callback
//
// Run with: go run ./eventloop/examples/03_cached_request/
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joeycumines/go-reactor/eventloop"
	"github.com/joeycumines/go-reactor/h2"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// memoryCache is a fixed, read-only cache of GET responses.
type memoryCache map[string]h2.CacheEntry

func (x memoryCache) IsCacheable(method string, fields []h2.Field) bool {
	if method != "GET" {
		return false
	}
	for _, f := range fields {
		if f.Name == "cache-control" && f.Value == "no-cache" {
			return false
		}
	}
	return true
}

func (x memoryCache) GetCache(key string) (h2.CacheEntry, bool) {
	e, ok := x[key]
	return e, ok
}

// simulatedStream answers every request after a short delay, using a loop
// timer in place of a connection.
type simulatedStream struct {
	loop     *eventloop.Loop
	outgoing h2.Header
	incoming h2.Header
	status   int
	timer    *eventloop.Timer

	onHeader   func(endStream bool)
	onData     func(data []byte, endStream bool)
	onError    func(err error)
	onWrite    func(err error)
	onComplete func()
}

func (x *simulatedStream) SetHeaderCallback(cb func(endStream bool))            { x.onHeader = cb }
func (x *simulatedStream) SetDataCallback(cb func(data []byte, endStream bool)) { x.onData = cb }
func (x *simulatedStream) SetErrorCallback(cb func(err error))                  { x.onError = cb }
func (x *simulatedStream) SetWriteCallback(cb func(err error))                  { x.onWrite = cb }
func (x *simulatedStream) SetCompleteCallback(cb func())                        { x.onComplete = cb }

func (x *simulatedStream) SendRequest(method, target string, _ h2.SSLFlags) error {
	body := []byte(fmt.Sprintf("live response to %s %s\n", method, target))
	t, err := x.loop.ScheduleTimer(20*time.Millisecond, func() {
		x.status = 200
		_ = x.incoming.Set("content-length", fmt.Sprint(len(body)))
		x.onHeader(false)
		x.onData(body, true)
		x.onComplete()
	}, false)
	x.timer = t
	return err
}

func (x *simulatedStream) CanSendData() bool              { return false }
func (x *simulatedStream) SendData(p []byte) (int, error) { return 0, h2.ErrNotWritable }
func (x *simulatedStream) OutgoingHeaders() *h2.Header    { return &x.outgoing }
func (x *simulatedStream) IncomingHeaders() *h2.Header    { return &x.incoming }
func (x *simulatedStream) StatusCode() int                { return x.status }
func (x *simulatedStream) RunOnLoopThread(fn func()) error {
	return x.loop.Submit(fn)
}

func (x *simulatedStream) Close() error {
	x.timer.Cancel()
	x.status = 0
	return nil
}

func main() {
	logger := stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(os.Stderr)),
		stumpy.L.WithLevel(logiface.LevelDebug),
	).Logger()

	loop, err := eventloop.New(eventloop.WithLogger(logger))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer loop.Close()

	cache := memoryCache{
		h2.CacheKey("GET", "https://example.com/hello"): {
			Status: 200,
			Header: []h2.Field{{Name: "content-type", Value: "text/plain"}},
			Body:   []byte("cached hello\n"),
		},
	}

	targets := []string{
		"https://EXAMPLE.com:443/hello",
		"https://example.com/other",
	}

	pending := len(targets)
	for _, target := range targets {
		_ = loop.Submit(func() {
			req, err := h2.NewRequest(loop, &simulatedStream{loop: loop}, cache)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				loop.Stop()
				return
			}
			req.SetHeaderCompleteCallback(func() {
				fmt.Printf("%s: status %d\n", target, req.StatusCode())
			})
			req.SetDataCallback(func(data []byte) {
				fmt.Printf("%s: %s", target, data)
			})
			req.SetCompleteCallback(func() {
				req.Release()
				if pending--; pending == 0 {
					loop.Stop()
				}
			})
			req.SetErrorCallback(func(err error) {
				fmt.Printf("%s: failed: %v\n", target, err)
				req.Release()
				loop.Stop()
			})
			if err := req.SendRequest("GET", target, h2.SSLEnable|h2.SSLVerifyHostName); err != nil {
				fmt.Fprintln(os.Stderr, err)
				loop.Stop()
			}
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := loop.Run(ctx, -1); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
