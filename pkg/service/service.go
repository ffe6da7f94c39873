// Package service holds the feature views of the client. Each view owns an
// entity cache, keeps it current through a subscription scope, and routes user
// actions through the optimistic dispatcher or the content gate.
package service

import (
	"sync"
	"time"

	"github.com/zfogg/daredrop/pkg/config"
	"github.com/zfogg/daredrop/pkg/contentgate"
	"github.com/zfogg/daredrop/pkg/gateway"
	"github.com/zfogg/daredrop/pkg/optimistic"
	"github.com/zfogg/daredrop/pkg/session"
	"github.com/zfogg/daredrop/pkg/subscription"
)

// Functions names the edge functions the views call
type Functions struct {
	Dares  string
	Notify string
}

// FunctionsFromConfig reads function names from the functions.* keys
func FunctionsFromConfig() Functions {
	return Functions{
		Dares:  config.GetString("functions.dares"),
		Notify: config.GetString("functions.notify"),
	}
}

// Deps are the collaborators shared by every view. Session is the signed-in
// user the view acts for; views never look it up on their own.
type Deps struct {
	Gateway    *gateway.Client
	Opener     subscription.Opener
	Dispatcher *optimistic.Dispatcher
	Gate       *contentgate.Gate
	Session    session.Session
	Functions  Functions
	Now        func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// ViewState is what a view shows while it syncs
type ViewState string

const (
	ViewLoading ViewState = "loading"
	ViewReady   ViewState = "ready"
	ViewInvalid ViewState = "invalid"
	ViewFailed  ViewState = "failed"
)

// Snapshot is a point-in-time copy of a view
type Snapshot[T any] struct {
	State  ViewState
	Target string
	Items  []T
	Err    error
}

func viewStateOf(scope *subscription.Scope, loaded bool, loadErr error) (ViewState, error) {
	switch scope.State() {
	case subscription.StateInvalid:
		return ViewInvalid, scope.Err()
	case subscription.StateFailed:
		return ViewFailed, scope.Err()
	}
	if loadErr != nil {
		return ViewFailed, loadErr
	}
	if !loaded {
		return ViewLoading, nil
	}
	return ViewReady, nil
}

// updates lists the signals a view's snapshot depends on
func updates(cache <-chan struct{}, scope *subscription.Scope, load *loadState) []<-chan struct{} {
	return []<-chan struct{}{cache, scope.StateChanged(), load.signal()}
}

func keys[T interface{ Key() string }](items []T) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.Key())
	}
	return out
}

// loadState tracks whether the current target's bulk load has landed
type loadState struct {
	mu      sync.Mutex
	loaded  bool
	err     error
	changed chan struct{}
}

// signal returns the channel that fires when the load outcome changes
func (l *loadState) signal() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.signalLocked()
}

func (l *loadState) signalLocked() chan struct{} {
	if l.changed == nil {
		l.changed = make(chan struct{}, 1)
	}
	return l.changed
}

func (l *loadState) wakeLocked() {
	select {
	case l.signalLocked() <- struct{}{}:
	default:
	}
}

func (l *loadState) reset() {
	l.mu.Lock()
	l.loaded, l.err = false, nil
	l.wakeLocked()
	l.mu.Unlock()
}

func (l *loadState) done(err error) {
	l.mu.Lock()
	if err == nil {
		l.loaded = true
	}
	l.err = err
	l.wakeLocked()
	l.mu.Unlock()
}

func (l *loadState) get() (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loaded, l.err
}
