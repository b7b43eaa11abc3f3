// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package h2

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/joeycumines/go-reactor/errkind"
	"github.com/joeycumines/go-reactor/eventloop"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentRequest struct {
	Method string
	Target string
	Flags  SSLFlags
}

// fakeStream records requests, and lets tests deliver stream events.
type fakeStream struct {
	loop     *eventloop.Loop
	outgoing Header
	incoming Header
	status   int
	writable bool
	sent     []sentRequest
	data     [][]byte
	closed   int
	sendErr  error
	runErr   error

	headerCb   func(endStream bool)
	dataCb     func(data []byte, endStream bool)
	errorCb    func(err error)
	writeCb    func(err error)
	completeCb func()
}

var _ StreamProxy = (*fakeStream)(nil)

func (x *fakeStream) SetHeaderCallback(cb func(endStream bool))            { x.headerCb = cb }
func (x *fakeStream) SetDataCallback(cb func(data []byte, endStream bool)) { x.dataCb = cb }
func (x *fakeStream) SetErrorCallback(cb func(err error))                  { x.errorCb = cb }
func (x *fakeStream) SetWriteCallback(cb func(err error))                  { x.writeCb = cb }
func (x *fakeStream) SetCompleteCallback(cb func())                        { x.completeCb = cb }

func (x *fakeStream) SendRequest(method, target string, flags SSLFlags) error {
	if x.sendErr != nil {
		return x.sendErr
	}
	x.sent = append(x.sent, sentRequest{method, target, flags})
	return nil
}

func (x *fakeStream) CanSendData() bool { return x.writable }

func (x *fakeStream) SendData(p []byte) (int, error) {
	x.data = append(x.data, bytes.Clone(p))
	return len(p), nil
}

func (x *fakeStream) OutgoingHeaders() *Header { return &x.outgoing }
func (x *fakeStream) IncomingHeaders() *Header { return &x.incoming }
func (x *fakeStream) StatusCode() int          { return x.status }

func (x *fakeStream) Close() error {
	x.closed++
	x.status = 0
	return nil
}

func (x *fakeStream) RunOnLoopThread(fn func()) error {
	if x.runErr != nil {
		return x.runErr
	}
	return x.loop.Submit(fn)
}

// respond delivers a full response, as the network would.
func (x *fakeStream) respond(status int, fields []Field, body ...string) {
	x.status = status
	x.incoming.SetFields(fields)
	x.headerCb(len(body) == 0)
	for i, b := range body {
		x.dataCb([]byte(b), i == len(body)-1)
	}
	x.completeCb()
}

type fakeCache struct {
	mu        sync.Mutex
	entries   map[string]CacheEntry
	cacheable bool
	lookups   []string
	checked   [][]Field
}

func (x *fakeCache) IsCacheable(method string, fields []Field) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.checked = append(x.checked, fields)
	return x.cacheable && method == "GET"
}

func (x *fakeCache) GetCache(key string) (CacheEntry, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.lookups = append(x.lookups, key)
	e, ok := x.entries[key]
	return e, ok
}

// recorder captures request callbacks, in order.
type recorder struct {
	events []string
	body   bytes.Buffer
	errs   []error
}

func (x *recorder) attach(r *Request) {
	r.SetHeaderCompleteCallback(func() { x.events = append(x.events, "header") })
	r.SetDataCallback(func(data []byte) {
		x.events = append(x.events, "data")
		x.body.Write(data)
	})
	r.SetWriteCallback(func() { x.events = append(x.events, "write") })
	r.SetCompleteCallback(func() { x.events = append(x.events, "complete") })
	r.SetErrorCallback(func(err error) {
		x.events = append(x.events, "error")
		x.errs = append(x.errs, err)
	})
}

type fixture struct {
	loop   *eventloop.Loop
	stream *fakeStream
	cache  *fakeCache
	req    *Request
	rec    *recorder
}

func newFixture(t *testing.T, opts ...RequestOption) *fixture {
	t.Helper()
	loop, err := eventloop.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = loop.Close() })

	f := &fixture{
		loop:   loop,
		stream: &fakeStream{loop: loop},
		cache: &fakeCache{
			cacheable: true,
			entries: map[string]CacheEntry{
				"GET https://example.com/hello": {
					Header: []Field{{"content-type", "text/plain"}, {"content-length", "5"}},
					Body:   []byte("hello"),
					Status: 200,
				},
				"GET https://example.com/empty": {
					Header: []Field{{"content-length", "0"}},
					Status: 204,
				},
			},
		},
		rec: new(recorder),
	}
	f.req, err = NewRequest(loop, f.stream, f.cache, opts...)
	require.NoError(t, err)
	f.rec.attach(f.req)
	return f
}

// tick runs a single loop iteration, on the test goroutine.
func (f *fixture) tick(t *testing.T) {
	t.Helper()
	require.NoError(t, f.loop.RunOnce(0))
}

func TestNewRequest_nilArguments(t *testing.T) {
	loop, err := eventloop.New()
	require.NoError(t, err)
	defer loop.Close()

	_, err = NewRequest(nil, &fakeStream{}, nil)
	require.ErrorIs(t, err, ErrNilArgument)
	_, err = NewRequest(loop, nil, nil)
	require.ErrorIs(t, err, ErrNilArgument)
	assert.Equal(t, errkind.InvalidParam, errkind.Of(err))
}

func TestNewRequest_defaults(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, StateIdle, f.req.State())
	assert.NotEmpty(t, f.req.ID())
	assert.Same(t, f.loop, f.req.Loop())
	assert.Equal(t, 0, f.req.StatusCode())

	other := newFixture(t, WithRequestID("fixed"), nil)
	assert.Equal(t, "fixed", other.req.ID())
	assert.NotEqual(t, f.req.ID(), newFixture(t).req.ID())
}

func TestRequest_cacheHit(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.req.AddHeader("accept", "text/plain"))

	require.NoError(t, f.req.SendRequest("GET", "https://Example.com/hello", SSLEnable))

	// nothing is delivered synchronously
	assert.Empty(t, f.rec.events)
	assert.Equal(t, StateRecvingResponse, f.req.State())
	assert.Empty(t, f.stream.sent)
	assert.Equal(t, []string{"GET https://example.com/hello"}, f.cache.lookups)
	assert.Equal(t, [][]Field{{{"accept", "text/plain"}}}, f.cache.checked)

	f.tick(t)

	assert.Equal(t, []string{"header", "data", "complete"}, f.rec.events)
	assert.Equal(t, "hello", f.rec.body.String())
	assert.Equal(t, StateComplete, f.req.State())
	assert.Equal(t, 200, f.req.StatusCode())
	assert.Equal(t, "text/plain", f.req.HeaderValue("Content-Type"))
	assert.Equal(t, "5", f.req.ResponseHeader().Get("content-length"))
	assert.Empty(t, f.stream.sent)
	assert.Equal(t, 0, f.stream.closed)
}

func TestRequest_cacheHit_emptyBody(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.req.SendRequest("GET", "https://example.com/empty", SSLEnable))
	f.tick(t)
	assert.Equal(t, []string{"header", "complete"}, f.rec.events)
	assert.Equal(t, 204, f.req.StatusCode())
	assert.Equal(t, StateComplete, f.req.State())
}

func TestRequest_cacheHit_bodyIsCopied(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.req.SendRequest("GET", "https://example.com/hello", SSLEnable))
	entry := f.cache.entries["GET https://example.com/hello"]
	entry.Body[0] = 'J'
	f.tick(t)
	assert.Equal(t, "hello", f.rec.body.String())
}

func TestRequest_cacheMiss(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.req.SendRequest("GET", "https://example.com/missing", SSLEnable|SSLVerifyHostName))

	assert.Equal(t, StateSendingRequest, f.req.State())
	assert.Equal(t, []sentRequest{{"GET", "https://example.com/missing", SSLEnable | SSLVerifyHostName}}, f.stream.sent)
	assert.Equal(t, "GET", f.req.Method())
	assert.Equal(t, "https://example.com/missing", f.req.Target())
	assert.Equal(t, SSLEnable|SSLVerifyHostName, f.req.SSLFlags())

	f.tick(t)
	assert.Empty(t, f.rec.events)

	f.stream.respond(404, []Field{{"content-length", "9"}}, "not ", "found")
	assert.Equal(t, []string{"header", "data", "data", "complete"}, f.rec.events)
	assert.Equal(t, "not found", f.rec.body.String())
	assert.Equal(t, 404, f.req.StatusCode())
	assert.Equal(t, StateComplete, f.req.State())
}

func TestRequest_notCacheable(t *testing.T) {
	f := newFixture(t)
	f.cache.cacheable = false
	require.NoError(t, f.req.SendRequest("GET", "https://example.com/hello", SSLNone))
	assert.Empty(t, f.cache.lookups)
	assert.Len(t, f.stream.sent, 1)

	g := newFixture(t)
	require.NoError(t, g.req.SendRequest("POST", "https://example.com/hello", SSLNone))
	assert.Empty(t, g.cache.lookups)
	assert.Len(t, g.stream.sent, 1)
}

func TestRequest_nilCache(t *testing.T) {
	loop, err := eventloop.New()
	require.NoError(t, err)
	defer loop.Close()
	stream := &fakeStream{loop: loop}
	req, err := NewRequest(loop, stream, nil)
	require.NoError(t, err)
	require.NoError(t, req.SendRequest("GET", "https://example.com/hello", SSLNone))
	assert.Len(t, stream.sent, 1)
}

func TestRequest_SendRequest_validation(t *testing.T) {
	f := newFixture(t)
	require.ErrorIs(t, f.req.SendRequest("", "https://example.com/", SSLNone), ErrInvalidMethod)
	require.ErrorIs(t, f.req.SendRequest("GE T", "https://example.com/", SSLNone), ErrInvalidMethod)
	require.ErrorIs(t, f.req.SendRequest("GET", "", SSLNone), ErrInvalidTarget)
	assert.Equal(t, StateIdle, f.req.State())
	assert.Empty(t, f.stream.sent)
	assert.Empty(t, f.cache.lookups)
}

func TestRequest_SendRequest_streamFailure(t *testing.T) {
	f := newFixture(t)
	f.stream.sendErr = errkind.New(errkind.SockError, "connect", errors.New("refused"))
	err := f.req.SendRequest("GET", "https://example.com/missing", SSLNone)
	assert.Equal(t, errkind.SockError, errkind.Of(err))
	assert.Equal(t, StateIdle, f.req.State())
	assert.Empty(t, f.req.Method())
	assert.Empty(t, f.rec.events)

	f.stream.sendErr = nil
	require.NoError(t, f.req.SendRequest("GET", "https://example.com/missing", SSLNone))
	assert.Equal(t, StateSendingRequest, f.req.State())
}

func TestRequest_SendRequest_scheduleFailure(t *testing.T) {
	f := newFixture(t)
	f.stream.runErr = eventloop.ErrLoopTerminated
	err := f.req.SendRequest("GET", "https://example.com/hello", SSLNone)
	require.ErrorIs(t, err, eventloop.ErrLoopTerminated)
	assert.Equal(t, StateIdle, f.req.State())
	assert.Equal(t, 0, f.req.StatusCode())
	assert.Equal(t, 0, f.req.ResponseHeader().Len())
	assert.Empty(t, f.stream.sent)
}

func TestRequest_stateErrors(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.req.SendRequest("GET", "https://example.com/missing", SSLNone))

	err := f.req.SendRequest("GET", "https://example.com/missing", SSLNone)
	require.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, errkind.InvalidState, errkind.Of(err))
	assert.Contains(t, err.Error(), "SendingRequest")
	require.ErrorIs(t, f.req.AddHeader("a", "b"), ErrInvalidState)
	assert.Len(t, f.stream.sent, 1)

	f.stream.respond(200, nil)
	require.ErrorIs(t, f.req.SendRequest("GET", "https://example.com/missing", SSLNone), ErrInvalidState)
	_, err = f.req.SendBody([]byte("x"))
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestRequest_SendBody(t *testing.T) {
	f := newFixture(t)
	assert.False(t, f.req.CanSendBody())

	require.NoError(t, f.req.SendRequest("POST", "https://example.com/upload", SSLNone))
	assert.False(t, f.req.CanSendBody())
	_, err := f.req.SendBody([]byte("part"))
	require.ErrorIs(t, err, ErrNotWritable)
	assert.Equal(t, errkind.Again, errkind.Of(err))

	f.stream.writable = true
	f.stream.writeCb(nil)
	assert.Equal(t, []string{"write"}, f.rec.events)
	assert.True(t, f.req.CanSendBody())
	n, err := f.req.SendBody([]byte("part"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, [][]byte{[]byte("part")}, f.stream.data)
}

func TestRequest_writeFailureIsError(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.req.SendRequest("POST", "https://example.com/upload", SSLNone))
	cause := errkind.New(errkind.SockError, "write", errors.New("broken pipe"))
	f.stream.writeCb(cause)
	assert.Equal(t, []string{"error"}, f.rec.events)
	assert.Equal(t, []error{cause}, f.rec.errs)
	assert.Equal(t, StateError, f.req.State())
}

func TestRequest_errorOnce(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.req.SendRequest("GET", "https://example.com/missing", SSLNone))
	f.stream.headerCb(false)
	f.stream.errorCb(errkind.ProtoError)
	f.stream.errorCb(errkind.SockError)
	f.stream.dataCb([]byte("late"), true)
	f.stream.completeCb()
	f.stream.writeCb(nil)

	assert.Equal(t, []string{"header", "error"}, f.rec.events)
	require.Len(t, f.rec.errs, 1)
	assert.Equal(t, errkind.ProtoError, errkind.Of(f.rec.errs[0]))
	assert.Equal(t, StateError, f.req.State())

	// a nil error is still reported as a failure
	g := newFixture(t)
	require.NoError(t, g.req.SendRequest("GET", "https://example.com/missing", SSLNone))
	g.stream.errorCb(nil)
	require.Len(t, g.rec.errs, 1)
	assert.Equal(t, errkind.Failed, errkind.Of(g.rec.errs[0]))
}

func TestRequest_eventsIgnoredWhenIdle(t *testing.T) {
	f := newFixture(t)
	f.stream.headerCb(true)
	f.stream.dataCb([]byte("x"), true)
	f.stream.completeCb()
	f.stream.errorCb(errkind.Failed)
	f.stream.writeCb(nil)
	assert.Empty(t, f.rec.events)
	assert.Equal(t, StateIdle, f.req.State())
}

func TestRequest_dataBeforeHeaderIgnored(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.req.SendRequest("GET", "https://example.com/missing", SSLNone))
	f.stream.dataCb([]byte("early"), false)
	assert.Empty(t, f.rec.events)
}

func TestRequest_releaseInHeaderCallback(t *testing.T) {
	f := newFixture(t)
	var events []string
	f.req.SetHeaderCompleteCallback(func() {
		events = append(events, "header")
		f.req.Release()
	})
	f.req.SetDataCallback(func([]byte) { events = append(events, "data") })
	f.req.SetCompleteCallback(func() { events = append(events, "complete") })

	require.NoError(t, f.req.SendRequest("GET", "https://example.com/hello", SSLNone))
	f.tick(t)

	assert.Equal(t, []string{"header"}, events)
	assert.Equal(t, StateClosed, f.req.State())
	assert.Equal(t, 1, f.stream.closed)
	require.ErrorIs(t, f.req.SendRequest("GET", "https://example.com/hello", SSLNone), ErrReleased)
	_, err := f.req.SendBody(nil)
	require.ErrorIs(t, err, ErrReleased)
	assert.Equal(t, errkind.Destroyed, errkind.Of(err))
	assert.False(t, f.req.CanSendBody())
}

func TestRequest_releaseInCompleteCallback(t *testing.T) {
	f := newFixture(t)
	completed := 0
	f.req.SetCompleteCallback(func() {
		completed++
		f.req.Release()
		f.req.Release()
	})

	require.NoError(t, f.req.SendRequest("GET", "https://example.com/missing", SSLNone))
	f.stream.respond(200, nil, "body")
	f.stream.completeCb()

	assert.Equal(t, 1, completed)
	assert.Equal(t, StateClosed, f.req.State())
	assert.Equal(t, 1, f.stream.closed)
	assert.Equal(t, []string{"header", "data"}, f.rec.events)
}

func TestRequest_releaseInDataCallback_cached(t *testing.T) {
	f := newFixture(t)
	f.req.SetDataCallback(func([]byte) {
		f.rec.events = append(f.rec.events, "data")
		f.req.Release()
	})
	require.NoError(t, f.req.SendRequest("GET", "https://example.com/hello", SSLNone))
	f.tick(t)
	assert.Equal(t, []string{"header", "data"}, f.rec.events)
}

func TestRequest_releaseInDataCallback(t *testing.T) {
	f := newFixture(t)
	f.req.SetDataCallback(func(data []byte) {
		f.rec.events = append(f.rec.events, "data")
		f.rec.body.Write(data)
		f.req.Release()
	})
	require.NoError(t, f.req.SendRequest("GET", "https://example.com/missing", SSLNone))
	f.stream.respond(200, []Field{{"content-length", "10"}}, "first", "second")

	assert.Equal(t, []string{"header", "data"}, f.rec.events)
	assert.Equal(t, "first", f.rec.body.String())
	assert.Equal(t, StateClosed, f.req.State())
	assert.Equal(t, 1, f.stream.closed)
	assert.Empty(t, f.rec.errs)
}

func TestRequest_releaseBeforeDelivery(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.req.SendRequest("GET", "https://example.com/hello", SSLNone))
	f.req.Release()
	f.tick(t)
	assert.Empty(t, f.rec.events)
	f.req.Reset()
	assert.Equal(t, StateClosed, f.req.State())
}

func TestRequest_closeSuppressesCachedDelivery(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.req.SendRequest("GET", "https://example.com/hello", SSLNone))
	require.NoError(t, f.req.Close())
	f.tick(t)
	assert.Empty(t, f.rec.events)
	assert.Equal(t, StateClosed, f.req.State())
}

func TestRequest_resetSuppressesCachedDelivery(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.req.SendRequest("GET", "https://example.com/hello", SSLNone))
	f.req.Reset()
	require.NoError(t, f.req.SendRequest("GET", "https://example.com/empty", SSLNone))
	f.tick(t)

	// only the second delivery runs
	assert.Equal(t, []string{"header", "complete"}, f.rec.events)
	assert.Equal(t, 204, f.req.StatusCode())
}

func TestRequest_Close(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.req.SendRequest("GET", "https://example.com/missing", SSLNone))
	require.NoError(t, f.req.Close())
	require.NoError(t, f.req.Close())
	assert.Equal(t, 1, f.stream.closed)
	assert.Equal(t, StateClosed, f.req.State())
	assert.Empty(t, f.rec.events)

	f.stream.respond(200, nil, "late")
	assert.Empty(t, f.rec.events)
	require.ErrorIs(t, f.req.SendRequest("GET", "https://example.com/missing", SSLNone), ErrInvalidState)
}

type requestSnapshot struct {
	State          State
	Method         string
	Target         string
	Flags          SSLFlags
	Status         int
	RequestFields  []Field
	ResponseFields []Field
	CanSendBody    bool
}

func snapshot(r *Request) requestSnapshot {
	return requestSnapshot{
		State:          r.State(),
		Method:         r.Method(),
		Target:         r.Target(),
		Flags:          r.SSLFlags(),
		Status:         r.StatusCode(),
		RequestFields:  r.RequestHeader().Fields(),
		ResponseFields: r.ResponseHeader().Fields(),
		CanSendBody:    r.CanSendBody(),
	}
}

func TestRequest_Reset(t *testing.T) {
	for _, tc := range []struct {
		name  string
		setup func(t *testing.T, f *fixture)
	}{
		{"idle", func(t *testing.T, f *fixture) {}},
		{"cached", func(t *testing.T, f *fixture) {
			require.NoError(t, f.req.AddHeader("accept", "*/*"))
			require.NoError(t, f.req.SendRequest("GET", "https://example.com/hello", SSLEnable))
			f.tick(t)
		}},
		{"sending", func(t *testing.T, f *fixture) {
			require.NoError(t, f.req.SendRequest("GET", "https://example.com/missing", SSLEnable))
		}},
		{"error", func(t *testing.T, f *fixture) {
			require.NoError(t, f.req.SendRequest("GET", "https://example.com/missing", SSLEnable))
			f.stream.status = 500
			f.stream.incoming.SetFields([]Field{{"x", "y"}})
			f.stream.errorCb(errkind.ProtoError)
		}},
		{"closed", func(t *testing.T, f *fixture) {
			require.NoError(t, f.req.SendRequest("GET", "https://example.com/missing", SSLEnable))
			require.NoError(t, f.req.Close())
		}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			fresh := newFixture(t)
			f := newFixture(t)
			tc.setup(t, f)
			f.req.Reset()
			if diff := cmp.Diff(snapshot(fresh.req), snapshot(f.req)); diff != "" {
				t.Errorf("reset request differs from a fresh one (-want +got):\n%s", diff)
			}

			// callbacks are kept
			f.rec.events = nil
			require.NoError(t, f.req.SendRequest("GET", "https://example.com/empty", SSLNone))
			f.tick(t)
			assert.Equal(t, []string{"header", "complete"}, f.rec.events)
		})
	}
}

func TestRequest_ForEachHeader(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.req.SendRequest("GET", "https://example.com/hello", SSLNone))
	f.tick(t)

	var all []string
	f.req.ForEachHeader(func(name, value string) bool {
		all = append(all, name+": "+value)
		return true
	})
	assert.Equal(t, []string{"content-type: text/plain", "content-length: 5"}, all)

	var first []string
	f.req.ForEachHeader(func(name, value string) bool {
		first = append(first, name)
		return false
	})
	assert.Equal(t, []string{"content-type"}, first)
}

func TestRequest_logging(t *testing.T) {
	var buf bytes.Buffer
	logger := stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(&buf), stumpy.WithTimeField(``)),
		stumpy.L.WithLevel(logiface.LevelDebug),
	).Logger()

	f := newFixture(t, WithRequestLogger(logger), WithRequestID("req-1"))
	require.NoError(t, f.req.SendRequest("GET", "https://example.com/missing", SSLNone))
	f.stream.respond(200, []Field{{"Content-Length", "4"}}, "body")

	g := newFixture(t, WithRequestLogger(logger), WithRequestID("req-2"))
	require.NoError(t, g.req.SendRequest("GET", "https://example.com/hello", SSLNone))

	out := buf.String()
	assert.Contains(t, out, `"request":"req-1"`)
	assert.Contains(t, out, `h2: response headers received`)
	assert.Contains(t, out, `"content_length"`)
	assert.Contains(t, out, `"request":"req-2"`)
	assert.Contains(t, out, `h2: serving response from cache`)
}
