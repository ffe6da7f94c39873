package service

import (
	"context"

	"github.com/zfogg/daredrop/pkg/entity"
	"github.com/zfogg/daredrop/pkg/logger"
	"github.com/zfogg/daredrop/pkg/realtime"
	"github.com/zfogg/daredrop/pkg/subscription"
)

// reloadingList is a cache that reloads in full whenever its table changes.
// It suits lists whose membership depends on a column an update can change.
type reloadingList[T entity.Keyed] struct {
	cache *entity.Cache[T]
	scope *subscription.Scope
	load  loadState
	query func(ctx context.Context, target string) ([]T, error)
}

func newReloadingList[T entity.Keyed](opener subscription.Opener, table string, order func(a, b T) int,
	validate func(string) error, query func(ctx context.Context, target string) ([]T, error)) *reloadingList[T] {
	l := &reloadingList[T]{cache: entity.New(order), query: query}
	reload := func(ctx context.Context, tok subscription.Token) { _ = l.fetch(ctx, tok) }
	l.scope = subscription.New(opener, subscription.Config{
		Name:     table,
		Validate: validate,
		Filter: func(string) realtime.ChangeFilter {
			return realtime.ChangeFilter{Event: realtime.EventAll, Table: table}
		},
		OnEvent:  func(ctx context.Context, tok subscription.Token, _ realtime.ChangeEvent) { reload(ctx, tok) },
		OnResync: reload,
	})
	return l
}

func (l *reloadingList[T]) open(ctx context.Context, target string) error {
	l.load.reset()
	if err := l.scope.Open(ctx, target); err != nil {
		return err
	}
	return l.fetch(ctx, l.scope.Token())
}

func (l *reloadingList[T]) retry(ctx context.Context) error {
	if err := l.scope.Retry(ctx); err != nil {
		return err
	}
	return l.fetch(ctx, l.scope.Token())
}

func (l *reloadingList[T]) snapshot() Snapshot[T] {
	loaded, loadErr := l.load.get()
	state, err := viewStateOf(l.scope, loaded, loadErr)
	return Snapshot[T]{State: state, Target: l.scope.Target(), Items: l.cache.Items(), Err: err}
}

func (l *reloadingList[T]) updates() []<-chan struct{} {
	return updates(l.cache.Changed(), l.scope, &l.load)
}

func (l *reloadingList[T]) fetch(ctx context.Context, tok subscription.Token) error {
	err := fetchInto(ctx, l.cache, tok, &l.load, func(ctx context.Context) ([]T, error) {
		return l.query(ctx, tok.Target())
	}, nil)
	if err != nil {
		logger.Error("Failed to reload list", "target", tok.Target(), "error", err)
	}
	return err
}

// fetchInto runs one bulk query and lands it in c through tok. Results land in
// the order their queries started, and events applied while the query was in
// flight survive it. landed runs under the scope lock after a result lands.
func fetchInto[T entity.Keyed](ctx context.Context, c *entity.Cache[T], tok subscription.Token, load *loadState,
	query func(ctx context.Context) ([]T, error), landed func()) error {
	ticket := c.BeginLoad()
	defer c.EndLoad(ticket)

	items, err := query(ctx)
	if err != nil {
		tok.Apply(func() {
			if !c.Stale(ticket) {
				load.done(err)
			}
		})
		return err
	}
	tok.Apply(func() {
		if c.LoadFrom(ticket, items) && landed != nil {
			landed()
		}
		load.done(nil)
	})
	return nil
}

// discard returns a mutation Apply that removes key from c until reverted
func discard[T entity.Keyed](c *entity.Cache[T], key string) func() func() {
	return func() func() {
		p, ok := c.Discard(key)
		if !ok {
			return nil
		}
		return func() { c.Revert(p) }
	}
}

// patch returns a mutation Apply that rewrites key in c until reverted
func patch[T entity.Keyed](c *entity.Cache[T], key string, fn func(T) T) func() func() {
	return func() func() {
		p, ok := c.Patch(key, fn)
		if !ok {
			return nil
		}
		return func() { c.Revert(p) }
	}
}
