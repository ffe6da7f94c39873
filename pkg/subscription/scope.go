// Package subscription manages the one live change stream a view keeps open for
// its current target (a room, a user, a table). Opening a new target always
// closes the previous stream first, and callbacks from a replaced target are
// fenced off with generation tokens.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/zfogg/daredrop/pkg/logger"
	"github.com/zfogg/daredrop/pkg/metrics"
	"github.com/zfogg/daredrop/pkg/realtime"
)

var (
	// ErrInvalidTarget is returned when the target id fails validation
	ErrInvalidTarget = errors.New("invalid subscription target")

	// ErrStreamClosed marks a stream that ended while still current
	ErrStreamClosed = errors.New("subscription stream closed")

	// ErrNoTarget is returned by Retry before any Open
	ErrNoTarget = errors.New("subscription has no target")
)

// State is the lifecycle state of a Scope
type State string

const (
	StateIdle    State = "idle"
	StateOpening State = "opening"
	StateOpen    State = "open"
	StateInvalid State = "invalid"
	StateFailed  State = "failed"
	StateClosed  State = "closed"
)

// Stream is one open change feed
type Stream interface {
	Events() <-chan realtime.ChangeEvent
	Resync() <-chan struct{}
	Err() error
	Close()
}

// Opener opens change streams
type Opener interface {
	Open(ctx context.Context, filter realtime.ChangeFilter) (Stream, error)
}

// OpenerFunc adapts a function to Opener
type OpenerFunc func(ctx context.Context, filter realtime.ChangeFilter) (Stream, error)

func (f OpenerFunc) Open(ctx context.Context, filter realtime.ChangeFilter) (Stream, error) {
	return f(ctx, filter)
}

// FromRealtime opens streams as channels of a realtime client
func FromRealtime(c *realtime.Client) Opener {
	return OpenerFunc(func(ctx context.Context, filter realtime.ChangeFilter) (Stream, error) {
		ch, err := c.Subscribe(ctx, filter)
		if err != nil {
			return nil, err
		}
		return ch, nil
	})
}

// Config describes what a Scope subscribes to and where events go.
// OnEvent and OnResync run on the scope's consumer goroutine with a context
// that is cancelled when the stream is replaced or closed; they must mutate
// state only through tok.Apply.
type Config struct {
	Name     string
	Validate func(id string) error
	Filter   func(id string) realtime.ChangeFilter
	OnEvent  func(ctx context.Context, tok Token, evt realtime.ChangeEvent)
	OnResync func(ctx context.Context, tok Token)
}

// Scope owns at most one open stream at a time
type Scope struct {
	opener Opener
	cfg    Config

	// opMu serializes Open, Retry and Close
	opMu sync.Mutex

	mu     sync.Mutex
	state  State
	target string
	gen    uint64
	err    error
	stream Stream
	cancel context.CancelFunc

	changed chan struct{}
}

// New creates an idle scope
func New(opener Opener, cfg Config) *Scope {
	return &Scope{opener: opener, cfg: cfg, state: StateIdle, changed: make(chan struct{}, 1)}
}

// StateChanged fires after the lifecycle state changes. Signals coalesce.
func (s *Scope) StateChanged() <-chan struct{} {
	return s.changed
}

// setStateLocked moves to state and wakes StateChanged listeners
func (s *Scope) setStateLocked(state State) {
	if s.state == state {
		return
	}
	s.state = state
	select {
	case s.changed <- struct{}{}:
	default:
	}
}

// Open closes any current stream, then opens one for id. An invalid id leaves
// the scope in StateInvalid without contacting the opener.
func (s *Scope) Open(ctx context.Context, id string) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.openLocked(ctx, id)
}

// Retry reopens the current target after a failure
func (s *Scope) Retry(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	target, state := s.target, s.state
	s.mu.Unlock()

	if state == StateIdle || state == StateClosed {
		return ErrNoTarget
	}
	if state == StateOpen {
		return nil
	}
	return s.openLocked(ctx, target)
}

// Close ends the current stream. Closing an idle or closed scope is a no-op.
func (s *Scope) Close() {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if s.state == StateIdle || s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.gen++
	s.setStateLocked(StateClosed)
	s.err = nil
	stream := s.detachLocked()
	s.mu.Unlock()

	s.release(stream)
}

// State returns the lifecycle state
func (s *Scope) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the error behind StateInvalid or StateFailed
func (s *Scope) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Target returns the id most recently passed to Open
func (s *Scope) Target() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

// Token captures the current generation
func (s *Scope) Token() Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Token{scope: s, gen: s.gen, target: s.target}
}

func (s *Scope) openLocked(ctx context.Context, id string) error {
	// close-then-open
	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.target = id
	s.err = nil
	s.setStateLocked(StateOpening)
	previous := s.detachLocked()
	s.mu.Unlock()
	s.release(previous)

	if s.cfg.Validate != nil {
		if err := s.cfg.Validate(id); err != nil {
			err = fmt.Errorf("%w %q: %v", ErrInvalidTarget, id, err)
			s.settle(gen, StateInvalid, err)
			metrics.SubscriptionOpened(s.cfg.Name, "invalid")
			return err
		}
	}

	filter := s.cfg.Filter(id)
	logger.Debug("Opening subscription", "name", s.cfg.Name, "target", id, "table", filter.Table)

	stream, err := s.opener.Open(ctx, filter)
	if err != nil {
		logger.Error("Subscription open failed", "name", s.cfg.Name, "target", id, "error", err)
		s.settle(gen, StateFailed, err)
		metrics.SubscriptionOpened(s.cfg.Name, "failed")
		return err
	}

	consumerCtx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		cancel()
		stream.Close()
		return nil
	}
	s.stream = stream
	s.cancel = cancel
	s.setStateLocked(StateOpen)
	s.mu.Unlock()

	metrics.SubscriptionOpened(s.cfg.Name, "ok")
	metrics.Get().ActiveSubscriptions.Inc()

	go s.consume(consumerCtx, Token{scope: s, gen: gen, target: id}, stream)
	return nil
}

func (s *Scope) settle(gen uint64, state State, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen == gen {
		s.err = err
		s.setStateLocked(state)
	}
}

// detachLocked takes the current stream out of the scope; the caller releases it
func (s *Scope) detachLocked() Stream {
	stream := s.stream
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.stream = nil
	return stream
}

func (s *Scope) release(stream Stream) {
	if stream == nil {
		return
	}
	stream.Close()
	metrics.Get().ActiveSubscriptions.Dec()
}

func (s *Scope) consume(ctx context.Context, tok Token, stream Stream) {
	events, resync := stream.Events(), stream.Resync()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				s.ended(tok.gen, stream)
				return
			}
			if s.cfg.OnEvent != nil {
				s.cfg.OnEvent(ctx, tok, evt)
			}
		case <-resync:
			if s.cfg.OnResync != nil {
				metrics.CacheResynced(s.cfg.Name)
				s.cfg.OnResync(ctx, tok)
			}
		}
	}
}

func (s *Scope) ended(gen uint64, stream Stream) {
	s.mu.Lock()
	if s.gen != gen || s.stream != stream {
		s.mu.Unlock()
		return
	}
	cause := stream.Err()
	s.err = fmt.Errorf("%w: %v", ErrStreamClosed, cause)
	s.setStateLocked(StateFailed)
	detached := s.detachLocked()
	s.mu.Unlock()

	logger.Error("Subscription stream ended", "name", s.cfg.Name, "target", s.Target(), "error", cause)
	s.release(detached)
}

// Token identifies one generation of a Scope
type Token struct {
	scope  *Scope
	gen    uint64
	target string
}

// Target returns the id the token was issued for
func (t Token) Target() string { return t.target }

// Valid reports whether the scope still targets the token's generation
func (t Token) Valid() bool {
	if t.scope == nil {
		return false
	}
	t.scope.mu.Lock()
	defer t.scope.mu.Unlock()
	return t.validLocked()
}

func (t Token) validLocked() bool {
	return t.scope.gen == t.gen && t.scope.state != StateClosed
}

// Apply runs fn only if the token is still current, holding the scope lock so
// a concurrent Open cannot interleave. fn must not call back into the scope.
func (t Token) Apply(fn func()) bool {
	if t.scope == nil {
		return false
	}
	t.scope.mu.Lock()
	defer t.scope.mu.Unlock()
	if !t.validLocked() {
		metrics.SubscriptionEvent(t.scope.cfg.Name, "stale")
		return false
	}
	fn()
	metrics.SubscriptionEvent(t.scope.cfg.Name, "applied")
	return true
}
