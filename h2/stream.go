// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package h2

// SSLFlags controls TLS behavior of the underlying connection.
type SSLFlags uint32

const (
	SSLNone   SSLFlags = 0
	SSLEnable SSLFlags = 1 << (iota - 1)
	SSLAllowExpiredCert
	SSLAllowInvalidCertCN
	SSLAllowSelfSignedCert
	SSLAllowExpiredRootCert
	SSLVerifyHostName
)

// StreamProxy is a single HTTP/2 stream, on a connection managed elsewhere.
//
// Implementations must invoke every callback on the loop goroutine, and
// never from within the call that triggered it. Close must be idempotent,
// and must leave the proxy able to send a new request.
type StreamProxy interface {
	SetHeaderCallback(cb func(endStream bool))
	SetDataCallback(cb func(data []byte, endStream bool))
	SetErrorCallback(cb func(err error))
	// SetWriteCallback sets the callback for the stream becoming writable,
	// or failing to write, in which case err is non-nil.
	SetWriteCallback(cb func(err error))
	SetCompleteCallback(cb func())

	// SendRequest starts the request, sending the outgoing headers.
	SendRequest(method, target string, flags SSLFlags) error
	CanSendData() bool
	SendData(p []byte) (int, error)

	OutgoingHeaders() *Header
	IncomingHeaders() *Header
	StatusCode() int

	Close() error

	// RunOnLoopThread queues fn to run on the loop goroutine, in a later
	// iteration.
	RunOnLoopThread(fn func()) error
}
