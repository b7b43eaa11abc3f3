// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package h2

import (
	"bytes"
	"fmt"

	"github.com/google/uuid"
	"github.com/joeycumines/go-reactor/errkind"
	"github.com/joeycumines/go-reactor/eventloop"
	"github.com/joeycumines/go-reactor/liveness"
	"github.com/joeycumines/logiface"
	"golang.org/x/net/http/httpguts"
)

type requestOptions struct {
	logger *logiface.Logger[logiface.Event]
	id     string
}

// RequestOption configures a Request.
type RequestOption interface {
	applyRequest(*requestOptions)
}

type requestOptionImpl struct {
	applyRequestFunc func(*requestOptions)
}

func (r *requestOptionImpl) applyRequest(opts *requestOptions) {
	r.applyRequestFunc(opts)
}

// WithRequestLogger overrides the logger, which defaults to the loop's.
func WithRequestLogger(logger *logiface.Logger[logiface.Event]) RequestOption {
	return &requestOptionImpl{func(opts *requestOptions) {
		opts.logger = logger
	}}
}

// WithRequestID overrides the generated request identifier.
func WithRequestID(id string) RequestOption {
	return &requestOptionImpl{func(opts *requestOptions) {
		opts.id = id
	}}
}

// Request is a single HTTP/2 request and its response.
//
// A Request is not safe for concurrent use. Once SendRequest has been
// called, it must only be used from the loop goroutine. Release must be
// called when the request is no longer needed, and may be called from
// within any of its callbacks.
type Request struct {
	loop   *eventloop.Loop
	stream StreamProxy
	cache  CacheGateway
	token  *liveness.Token
	logger *logiface.Logger[logiface.Event]

	headerCompleteCb func()
	dataCb           func(data []byte)
	writeCb          func()
	completeCb       func()
	errorCb          func(err error)

	id          string
	method      string
	target      string
	cacheBody   []byte
	cacheStatus int
	// cacheGen invalidates scheduled cache deliveries on close and reset
	cacheGen uint64
	flags    SSLFlags
	state    State
}

// NewRequest returns an idle request, sending via stream, and consulting
// cache (which may be nil) before each send.
func NewRequest(loop *eventloop.Loop, stream StreamProxy, cache CacheGateway, opts ...RequestOption) (*Request, error) {
	if loop == nil || stream == nil {
		return nil, ErrNilArgument
	}

	cfg := requestOptions{logger: loop.Logger()}
	for _, opt := range opts {
		if opt != nil {
			opt.applyRequest(&cfg)
		}
	}
	if cfg.id == "" {
		cfg.id = uuid.NewString()
	}

	r := &Request{
		loop:   loop,
		stream: stream,
		cache:  cache,
		token:  liveness.New(),
		logger: cfg.logger.Clone().Str("request", cfg.id).Logger(),
		id:     cfg.id,
	}

	stream.SetHeaderCallback(r.onStreamHeader)
	stream.SetDataCallback(r.onStreamData)
	stream.SetWriteCallback(r.onStreamWrite)
	stream.SetErrorCallback(r.onStreamError)
	stream.SetCompleteCallback(r.onStreamComplete)

	return r, nil
}

// SetHeaderCompleteCallback sets the callback for the response headers
// having been received.
func (r *Request) SetHeaderCompleteCallback(cb func()) { r.headerCompleteCb = cb }

// SetDataCallback sets the callback for each chunk of the response body.
// The slice is only valid for the duration of the call.
func (r *Request) SetDataCallback(cb func(data []byte)) { r.dataCb = cb }

// SetWriteCallback sets the callback for the stream becoming writable.
func (r *Request) SetWriteCallback(cb func()) { r.writeCb = cb }

// SetCompleteCallback sets the callback for the response having been
// received in full.
func (r *Request) SetCompleteCallback(cb func()) { r.completeCb = cb }

// SetErrorCallback sets the callback for an asynchronous failure. It is
// invoked at most once per send, after which the request is in StateError.
func (r *Request) SetErrorCallback(cb func(err error)) { r.errorCb = cb }

// ID returns the request identifier, which is also attached to its logs.
func (r *Request) ID() string { return r.id }

// Loop returns the loop the request is bound to.
func (r *Request) Loop() *eventloop.Loop { return r.loop }

// State returns the current state.
func (r *Request) State() State { return r.state }

// Method returns the method of the current send, if any.
func (r *Request) Method() string { return r.method }

// Target returns the target of the current send, if any.
func (r *Request) Target() string { return r.target }

// SSLFlags returns the flags of the current send.
func (r *Request) SSLFlags() SSLFlags { return r.flags }

// AddHeader appends an outgoing header field. Only valid while idle.
func (r *Request) AddHeader(name, value string) error {
	if err := r.checkState(StateIdle); err != nil {
		return err
	}
	return r.stream.OutgoingHeaders().Add(name, value)
}

// RequestHeader returns the outgoing header fields.
func (r *Request) RequestHeader() *Header { return r.stream.OutgoingHeaders() }

// ResponseHeader returns the incoming header fields.
func (r *Request) ResponseHeader() HeaderReader { return r.stream.IncomingHeaders() }

// HeaderValue returns the first response header value for name, or "".
func (r *Request) HeaderValue(name string) string {
	return r.stream.IncomingHeaders().Get(name)
}

// ForEachHeader calls fn for each response header field, in order, until
// fn returns false.
func (r *Request) ForEachHeader(fn func(name, value string) bool) {
	for name, value := range r.stream.IncomingHeaders().All() {
		if !fn(name, value) {
			return
		}
	}
}

// StatusCode returns the response status, which is the cached status if the
// response was served from the cache, or 0 if not yet known.
func (r *Request) StatusCode() int {
	if r.cacheStatus != 0 {
		return r.cacheStatus
	}
	return r.stream.StatusCode()
}

// SendRequest starts the request. If the cache gateway holds a response for
// it, the network is bypassed entirely, and the cached response is
// delivered from a later loop iteration. Otherwise the request is sent via
// the stream.
//
// Only valid while idle. A failure is returned without changing state.
func (r *Request) SendRequest(method, target string, flags SSLFlags) error {
	if err := r.checkState(StateIdle); err != nil {
		return err
	}
	if method == "" || !httpguts.ValidHeaderFieldName(method) {
		return fmt.Errorf("%w: %q", ErrInvalidMethod, method)
	}
	if target == "" {
		return ErrInvalidTarget
	}

	r.method, r.target, r.flags = method, target, flags

	if hit, err := r.processCache(); hit || err != nil {
		if err != nil {
			r.method, r.target, r.flags = "", "", 0
		}
		return err
	}

	r.state = StateSendingRequest
	if err := r.stream.SendRequest(method, target, flags); err != nil {
		r.state = StateIdle
		r.method, r.target, r.flags = "", "", 0
		return err
	}

	r.logger.Debug().
		Str("method", method).
		Str("target", target).
		Log("h2: request sent")

	return nil
}

// processCache serves the request from the cache, if possible, returning
// true if the cached response was scheduled.
func (r *Request) processCache() (bool, error) {
	if r.cache == nil || !r.cache.IsCacheable(r.method, r.stream.OutgoingHeaders().Fields()) {
		return false, nil
	}

	key := CacheKey(r.method, r.target)
	entry, ok := r.cache.GetCache(key)
	if !ok {
		r.logger.Debug().Str("key", key).Log("h2: cache miss")
		return false, nil
	}

	r.state = StateRecvingResponse
	r.stream.IncomingHeaders().SetFields(entry.Header)
	r.cacheStatus = entry.Status
	r.cacheBody = bytes.Clone(entry.Body)
	r.cacheGen++

	token, gen := r.token, r.cacheGen
	if err := r.stream.RunOnLoopThread(func() {
		if token.Alive() {
			r.onCacheComplete(gen)
		}
	}); err != nil {
		r.state = StateIdle
		r.stream.IncomingHeaders().Reset()
		r.cacheStatus = 0
		r.cacheBody = nil
		return true, err
	}

	r.logger.Info().
		Str("key", key).
		Int("status", entry.Status).
		Int("body_size", len(entry.Body)).
		Log("h2: serving response from cache")

	return true, nil
}

// onCacheComplete replays a cached response, checking before each step that
// the request was not released, closed, or reset by the previous one.
func (r *Request) onCacheComplete(gen uint64) {
	token := r.token
	current := func() bool {
		return token.Alive() && r.cacheGen == gen && r.state == StateRecvingResponse
	}

	if !current() {
		return
	}
	if !token.Invoke(r.headerCompleteCb) || !current() {
		return
	}

	if body, cb := r.cacheBody, r.dataCb; len(body) != 0 && cb != nil {
		if !token.Invoke(func() { cb(body) }) || !current() {
			return
		}
	}

	r.cacheBody = nil
	r.state = StateComplete
	token.Invoke(r.completeCb)
}

// CanSendBody reports whether SendBody would accept data.
func (r *Request) CanSendBody() bool {
	return r.token.Alive() && r.state.inFlight() && r.stream.CanSendData()
}

// SendBody writes request body data to the stream, returning the number of
// bytes accepted. If the stream is not writable, it fails with a kind of
// errkind.Again, and the write callback signals when to retry.
func (r *Request) SendBody(p []byte) (int, error) {
	if !r.token.Alive() {
		return 0, ErrReleased
	}
	if !r.state.inFlight() {
		return 0, fmt.Errorf("%w: %s", ErrInvalidState, r.state)
	}
	if !r.stream.CanSendData() {
		return 0, ErrNotWritable
	}
	return r.stream.SendData(p)
}

// Close ends the request, closing the stream. It never invokes callbacks,
// and is idempotent.
func (r *Request) Close() error {
	if r.state == StateClosed {
		return nil
	}
	r.cacheGen++
	r.state = StateClosed
	if err := r.stream.Close(); err != nil {
		r.logger.Debug().Err(err).Log("h2: stream close failed")
	}
	return nil
}

// Reset returns the request to its initial idle state, closing the stream,
// and clearing both header collections along with any cached response.
// Callbacks are retained.
func (r *Request) Reset() {
	if !r.token.Alive() {
		return
	}
	if r.state != StateClosed {
		if err := r.stream.Close(); err != nil {
			r.logger.Debug().Err(err).Log("h2: stream close failed")
		}
	}
	r.cacheGen++
	r.stream.OutgoingHeaders().Reset()
	r.stream.IncomingHeaders().Reset()
	r.method, r.target, r.flags = "", "", 0
	r.cacheStatus = 0
	r.cacheBody = nil
	r.state = StateIdle
}

// Release destroys the request. Pending and in-progress deliveries stop,
// and no callback will be invoked afterwards. Safe to call from within any
// callback, and idempotent.
func (r *Request) Release() {
	if !r.token.Kill() {
		return
	}
	_ = r.Close()
	r.headerCompleteCb, r.dataCb, r.writeCb, r.completeCb, r.errorCb = nil, nil, nil, nil, nil
	r.cacheBody = nil
	r.logger.Debug().Log("h2: request released")
}

func (r *Request) checkState(want State) error {
	if !r.token.Alive() {
		return ErrReleased
	}
	if r.state != want {
		return fmt.Errorf("%w: %s", ErrInvalidState, r.state)
	}
	return nil
}

// accepting reports whether stream notifications should be processed.
func (r *Request) accepting() bool {
	return r.token.Alive() && r.state.inFlight()
}

func (r *Request) onStreamHeader(endStream bool) {
	if !r.accepting() {
		return
	}
	r.state = StateRecvingResponse
	r.checkResponseHeaders(endStream)
	r.token.Invoke(r.headerCompleteCb)
}

func (r *Request) checkResponseHeaders(endStream bool) {
	if n, ok := r.stream.IncomingHeaders().ContentLength(); ok {
		r.logger.Debug().
			Int("status", r.stream.StatusCode()).
			Int64("content_length", n).
			Bool("end_stream", endStream).
			Log("h2: response headers received")
	}
}

func (r *Request) onStreamData(data []byte, _ bool) {
	if !r.accepting() || r.state != StateRecvingResponse {
		return
	}
	if cb := r.dataCb; cb != nil {
		r.token.Invoke(func() { cb(data) })
	}
}

func (r *Request) onStreamWrite(err error) {
	if err != nil {
		r.onStreamError(err)
		return
	}
	if !r.accepting() {
		return
	}
	r.token.Invoke(r.writeCb)
}

func (r *Request) onStreamComplete() {
	if !r.accepting() {
		return
	}
	r.state = StateComplete
	r.token.Invoke(r.completeCb)
}

// onStreamError moves to StateError, after which every further stream
// notification is ignored, so the error callback fires at most once.
func (r *Request) onStreamError(err error) {
	if !r.accepting() {
		return
	}
	if err == nil {
		err = errkind.Failed
	}
	r.state = StateError
	r.logger.Debug().Err(err).Str("kind", errkind.Of(err).String()).Log("h2: request failed")
	if cb := r.errorCb; cb != nil {
		r.token.Invoke(func() { cb(err) })
	}
}
