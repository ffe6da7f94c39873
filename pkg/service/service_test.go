package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zfogg/daredrop/pkg/contentgate"
	"github.com/zfogg/daredrop/pkg/gateway"
	"github.com/zfogg/daredrop/pkg/optimistic"
	"github.com/zfogg/daredrop/pkg/realtime"
	"github.com/zfogg/daredrop/pkg/session"
	"github.com/zfogg/daredrop/pkg/subscription"
)

const (
	selfID   = "11111111-1111-4111-8111-111111111111"
	friendID = "22222222-2222-4222-8222-222222222222"
	otherID  = "33333333-3333-4333-8333-333333333333"
	roomID   = "44444444-4444-4444-8444-444444444444"
)

var fixedNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

type recorded struct {
	method string
	path   string
	query  url.Values
	header http.Header
	body   string
}

func (r recorded) decode(t *testing.T, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal([]byte(r.body), v))
}

// fakeBackend routes gateway calls by "METHOD /path" and records every request
type fakeBackend struct {
	mu       sync.Mutex
	requests []recorded
	routes   map[string]http.HandlerFunc
	log      *eventLog
}

func newBackend(t *testing.T) (*fakeBackend, *gateway.Client) {
	t.Helper()
	fb := &fakeBackend{routes: make(map[string]http.HandlerFunc)}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		fb.mu.Lock()
		fb.requests = append(fb.requests, recorded{r.Method, r.URL.Path, r.URL.Query(), r.Header.Clone(), string(body)})
		h := fb.routes[r.Method+" "+r.URL.Path]
		log := fb.log
		fb.mu.Unlock()

		if log != nil {
			log.add(r.Method + " " + r.URL.Path)
		}
		if h == nil {
			writeJSON(w, http.StatusNotFound, `{"code":"PGRST205","message":"no route"}`)
			return
		}
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	return fb, gateway.New(gateway.Options{BaseURL: srv.URL, APIKey: "anon-key"})
}

func (b *fakeBackend) record(l *eventLog) {
	b.mu.Lock()
	b.log = l
	b.mu.Unlock()
}

func (b *fakeBackend) on(method, path string, h http.HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.routes[method+" "+path] = h
}

func (b *fakeBackend) reply(method, path string, status int, body string) {
	b.on(method, path, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, status, body)
	})
}

func (b *fakeBackend) calls(method, path string) []recorded {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []recorded
	for _, r := range b.requests {
		if r.method == method && r.path == path {
			out = append(out, r)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func rows(t *testing.T, v interface{}) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	if string(b) == "null" {
		return "[]"
	}
	return string(b)
}

type eventLog struct {
	mu      sync.Mutex
	entries []string
}

func (l *eventLog) add(e string) {
	l.mu.Lock()
	l.entries = append(l.entries, e)
	l.mu.Unlock()
}

func (l *eventLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries...)
}

type fakeStream struct {
	filter realtime.ChangeFilter
	events chan realtime.ChangeEvent
	resync chan struct{}

	mu     sync.Mutex
	closed bool
}

func (f *fakeStream) Events() <-chan realtime.ChangeEvent { return f.events }
func (f *fakeStream) Resync() <-chan struct{}             { return f.resync }
func (f *fakeStream) Err() error                          { return nil }

func (f *fakeStream) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

// end simulates the server dropping the stream
func (f *fakeStream) end() { close(f.events) }

func (f *fakeStream) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeStream) push(t *testing.T, typ realtime.EventType, record interface{}) {
	t.Helper()
	raw, err := json.Marshal(record)
	require.NoError(t, err)
	evt := realtime.ChangeEvent{Type: typ, Schema: "public", Table: f.filter.Table}
	if typ == realtime.EventDelete {
		evt.OldRecord = raw
	} else {
		evt.Record = raw
	}
	f.events <- evt
}

type fakeOpener struct {
	mu      sync.Mutex
	streams []*fakeStream
	fail    error
	log     *eventLog
}

func (o *fakeOpener) Open(_ context.Context, filter realtime.ChangeFilter) (subscription.Stream, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.log != nil {
		o.log.add("subscribe " + filter.Table)
	}
	if o.fail != nil {
		return nil, o.fail
	}
	s := &fakeStream{
		filter: filter,
		events: make(chan realtime.ChangeEvent, 16),
		resync: make(chan struct{}, 1),
	}
	o.streams = append(o.streams, s)
	return s, nil
}

func (o *fakeOpener) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.streams)
}

func (o *fakeOpener) last(t *testing.T) *fakeStream {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	require.NotEmpty(t, o.streams, "no stream opened")
	return o.streams[len(o.streams)-1]
}

type notices struct {
	mu   sync.Mutex
	list []optimistic.Notice
}

func (n *notices) Notify(notice optimistic.Notice) {
	n.mu.Lock()
	n.list = append(n.list, notice)
	n.mu.Unlock()
}

func (n *notices) all() []optimistic.Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]optimistic.Notice(nil), n.list...)
}

type fakeScanner struct {
	mu      sync.Mutex
	verdict contentgate.Verdict
	err     error
	seen    []contentgate.Request
}

func (s *fakeScanner) Scan(_ context.Context, req contentgate.Request) (contentgate.Verdict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, req)
	return s.verdict, s.err
}

type harness struct {
	backend *fakeBackend
	opener  *fakeOpener
	notices *notices
	scanner *fakeScanner
	acks    int
	accept  bool
	deps    Deps
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	backend, gw := newBackend(t)
	h := &harness{
		backend: backend,
		opener:  &fakeOpener{},
		notices: &notices{},
		scanner: &fakeScanner{verdict: contentgate.Verdict{Confidence: 0.9}},
		accept:  true,
	}
	ack := contentgate.AcknowledgerFunc(func(context.Context, contentgate.Verdict) (bool, error) {
		h.acks++
		return h.accept, nil
	})
	h.deps = Deps{
		Gateway:    gw,
		Opener:     h.opener,
		Dispatcher: optimistic.New(h.notices),
		Gate:       contentgate.New(h.scanner, ack, contentgate.PolicyFailClosed),
		Session:    session.Session{UserID: selfID, Email: "me@example.com"},
		Functions:  Functions{Dares: "dare-suggestions", Notify: "send-notification"},
		Now:        func() time.Time { return fixedNow },
	}
	return h
}

var errBoom = errors.New("boom")

// awaitUpdate waits until any of the view's update signals fires
func awaitUpdate(t *testing.T, sources []<-chan struct{}) {
	t.Helper()
	cases := make(chan struct{}, len(sources))
	done := make(chan struct{})
	defer close(done)
	for _, src := range sources {
		go func() {
			select {
			case <-src:
				cases <- struct{}{}
			case <-done:
			}
		}()
	}
	select {
	case <-cases:
	case <-time.After(2 * time.Second):
		t.Fatal("view signalled no update")
	}
}

// drain empties every pending update signal
func drain(sources []<-chan struct{}) {
	for _, src := range sources {
		select {
		case <-src:
		default:
		}
	}
}

// gated blocks a handler until release is called
type gated struct {
	ch   chan struct{}
	once sync.Once
}

func newGated() *gated { return &gated{ch: make(chan struct{})} }

func (g *gated) wait()    { <-g.ch }
func (g *gated) release() { g.once.Do(func() { close(g.ch) }) }
