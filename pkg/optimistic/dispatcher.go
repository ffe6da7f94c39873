// Package optimistic applies user actions to local state immediately and commits
// them to the backend in the background.
//
// Hard mutations (status changes, report resolution, follows) are rolled back
// when the commit fails. Soft mutations (dismissals, local filters) are not.
// At most one commit per key is in flight; further actions on the same key are
// ignored or coalesced according to the mutation's Policy.
package optimistic

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	clierrors "github.com/zfogg/daredrop/pkg/errors"
	"github.com/zfogg/daredrop/pkg/logger"
	"github.com/zfogg/daredrop/pkg/metrics"
	"github.com/zfogg/daredrop/pkg/telemetry"
)

// Kind decides what happens to the local change when its commit fails
type Kind int

const (
	Hard Kind = iota
	Soft
)

func (k Kind) String() string {
	if k == Soft {
		return "soft"
	}
	return "hard"
}

// Policy decides what a second action on a key does while a commit is in flight
type Policy int

const (
	// IgnoreWhilePending drops the second action entirely
	IgnoreWhilePending Policy = iota

	// CoalesceLatest applies the second action locally and commits only the
	// latest intent once the in-flight commit finishes
	CoalesceLatest
)

// Mutation is one optimistic user action
type Mutation struct {
	// Key groups mutations of the same thing ("like:<videoId>")
	Key    string
	Kind   Kind
	Policy Policy

	// Intent is the desired end state; coalesced commits are skipped when the
	// latest intent equals the last confirmed one
	Intent interface{}

	// Apply changes local state and returns how to undo it. It runs synchronously
	// inside Dispatch and may return nil.
	Apply func() (undo func())

	// Commit persists the change remotely. Nil means local only.
	Commit func(ctx context.Context) error

	// Label names the action in notices ("Like", "Mark as read")
	Label string
}

// Outcome reports what Dispatch did with a mutation
type Outcome string

const (
	Applied   Outcome = "applied"
	Ignored   Outcome = "ignored"
	Coalesced Outcome = "coalesced"
)

// Result is returned by Dispatch without waiting for the commit
type Result struct {
	Outcome Outcome
}

// Accepted reports whether the local change was applied
func (r Result) Accepted() bool {
	return r.Outcome != Ignored
}

// Notice describes a failed commit for the user
type Notice struct {
	Key     string
	Label   string
	Kind    Kind
	Err     error
	Message string
}

// Notifier surfaces failed commits
type Notifier interface {
	Notify(Notice)
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

type step struct {
	seq  uint64
	undo func()
}

type keyState struct {
	inflight     bool
	steps        []step
	latest       *Mutation
	latestSeq    uint64
	confirmed    interface{}
	hasConfirmed bool
}

// Dispatcher runs optimistic mutations
type Dispatcher struct {
	notifier Notifier

	mu   sync.Mutex
	keys map[string]*keyState
	seq  uint64
	wg   sync.WaitGroup
}

// New creates a dispatcher. A nil notifier only logs failures.
func New(notifier Notifier) *Dispatcher {
	return &Dispatcher{notifier: notifier, keys: make(map[string]*keyState)}
}

// Dispatch applies m locally and starts its commit. It never waits on the network.
func (d *Dispatcher) Dispatch(ctx context.Context, m Mutation) Result {
	d.mu.Lock()
	defer d.mu.Unlock()

	st := d.keys[m.Key]
	if st != nil && st.inflight && m.Policy == IgnoreWhilePending {
		metrics.Mutation(m.Kind.String(), "ignored")
		logger.Debug("Ignoring mutation while pending", "key", m.Key, "label", m.Label)
		return Result{Outcome: Ignored}
	}
	if st == nil {
		st = &keyState{}
		d.keys[m.Key] = st
	}

	d.seq++
	seq := d.seq
	if m.Apply != nil {
		if undo := m.Apply(); undo != nil {
			st.steps = append(st.steps, step{seq: seq, undo: undo})
		}
	}

	if st.inflight {
		mm := m
		st.latest = &mm
		st.latestSeq = seq
		metrics.Mutation(m.Kind.String(), "coalesced")
		return Result{Outcome: Coalesced}
	}

	st.inflight = true
	d.wg.Add(1)
	go d.run(context.WithoutCancel(ctx), m, seq)
	return Result{Outcome: Applied}
}

// Pending reports whether a commit for key is in flight
func (d *Dispatcher) Pending(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	st := d.keys[key]
	return st != nil && st.inflight
}

// Wait blocks until every in-flight commit has finished
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) run(ctx context.Context, m Mutation, seq uint64) {
	defer d.wg.Done()

	for {
		err := d.commit(ctx, m)

		d.mu.Lock()
		st := d.keys[m.Key]
		if err != nil {
			d.fail(st, m, err)
			delete(d.keys, m.Key)
			d.mu.Unlock()
			d.notify(m, err)
			return
		}

		metrics.Mutation(m.Kind.String(), "committed")
		st.confirmed, st.hasConfirmed = m.Intent, true
		st.steps = after(st.steps, seq)

		next, nextSeq := st.latest, st.latestSeq
		st.latest = nil
		if next == nil || reflect.DeepEqual(next.Intent, st.confirmed) {
			if next != nil {
				logger.Debug("Skipping coalesced commit equal to confirmed state", "key", m.Key)
			}
			delete(d.keys, m.Key)
			d.mu.Unlock()
			return
		}
		d.mu.Unlock()

		m, seq = *next, nextSeq
	}
}

func (d *Dispatcher) commit(ctx context.Context, m Mutation) error {
	if m.Commit == nil {
		return nil
	}
	ctx, span := telemetry.StartSpan(ctx, "optimistic.commit", "key", m.Key, "kind", m.Kind.String(), "label", m.Label)
	err := m.Commit(ctx)
	telemetry.EndSpan(span, err)
	return err
}

// fail applies the failure policy; the caller holds d.mu
func (d *Dispatcher) fail(st *keyState, m Mutation, err error) {
	logger.Error("Optimistic commit failed", "key", m.Key, "label", m.Label, "kind", m.Kind.String(), "error", err)

	if m.Kind == Soft {
		metrics.Mutation(m.Kind.String(), "failed_soft")
		return
	}
	for i := len(st.steps) - 1; i >= 0; i-- {
		st.steps[i].undo()
	}
	metrics.Mutation(m.Kind.String(), "rolled_back")
}

func (d *Dispatcher) notify(m Mutation, err error) {
	n := Notice{Key: m.Key, Label: m.Label, Kind: m.Kind, Err: err}
	if m.Kind == Hard {
		n.Message = clierrors.RolledBackError(m.Label, err).Message
	} else {
		n.Message = fmt.Sprintf("%s failed: %v", m.Label, err)
	}
	if d.notifier != nil {
		d.notifier.Notify(n)
	}
}

// after drops the steps confirmed by a commit of seq
func after(steps []step, seq uint64) []step {
	out := steps[:0]
	for _, s := range steps {
		if s.seq > seq {
			out = append(out, s)
		}
	}
	return out
}
