package service

import (
	"context"
	"slices"

	"github.com/zfogg/daredrop/pkg/entity"
	clierrors "github.com/zfogg/daredrop/pkg/errors"
	"github.com/zfogg/daredrop/pkg/gateway"
	"github.com/zfogg/daredrop/pkg/logger"
	"github.com/zfogg/daredrop/pkg/models"
	"github.com/zfogg/daredrop/pkg/optimistic"
	"github.com/zfogg/daredrop/pkg/realtime"
	"github.com/zfogg/daredrop/pkg/subscription"
)

const (
	notificationsTable = "notifications"
	notificationsLimit = 50
)

// NotificationCenter is the signed-in user's notification list
type NotificationCenter struct {
	deps  Deps
	cache *entity.Cache[models.Notification]
	scope *subscription.Scope
	load  loadState

	// OnNew is called for every notification inserted while the center is open
	OnNew func(models.Notification)
}

// NewNotificationCenter creates a closed notification center
func NewNotificationCenter(deps Deps) *NotificationCenter {
	n := &NotificationCenter{deps: deps, cache: entity.New(models.NewestFirst)}
	n.scope = subscription.New(deps.Opener, subscription.Config{
		Name: notificationsTable,
		Validate: func(id string) error {
			if !models.IsUUID(id) {
				return clierrors.ValidationError("user_id", "not signed in as a valid user")
			}
			return nil
		},
		Filter: func(id string) realtime.ChangeFilter {
			return realtime.ChangeFilter{Event: realtime.EventAll, Table: notificationsTable, Filter: realtime.Eq("user_id", id)}
		},
		OnEvent:  n.onChange,
		OnResync: func(ctx context.Context, tok subscription.Token) { _ = n.fetch(ctx, tok) },
	})
	return n
}

// Open subscribes to the user's notifications and loads the newest ones
func (n *NotificationCenter) Open(ctx context.Context) error {
	n.load.reset()
	if err := n.scope.Open(ctx, n.deps.Session.UserID); err != nil {
		return err
	}
	return n.fetch(ctx, n.scope.Token())
}

// Retry reopens after a failure
func (n *NotificationCenter) Retry(ctx context.Context) error {
	if err := n.scope.Retry(ctx); err != nil {
		return err
	}
	return n.fetch(ctx, n.scope.Token())
}

// Close ends the subscription
func (n *NotificationCenter) Close() {
	n.scope.Close()
}

// View returns the notifications newest first
func (n *NotificationCenter) View() Snapshot[models.Notification] {
	loaded, loadErr := n.load.get()
	state, err := viewStateOf(n.scope, loaded, loadErr)
	return Snapshot[models.Notification]{State: state, Target: n.scope.Target(), Items: n.cache.Items(), Err: err}
}

// Updates lists the signals that fire when View may have changed
func (n *NotificationCenter) Updates() []<-chan struct{} {
	return updates(n.cache.Changed(), n.scope, &n.load)
}

// UnreadCount counts unread notifications in the list
func (n *NotificationCenter) UnreadCount() int {
	count := 0
	for _, item := range n.cache.Items() {
		if !item.Read {
			count++
		}
	}
	return count
}

// MarkRead marks one notification read, rolling back if the update fails
func (n *NotificationCenter) MarkRead(ctx context.Context, id string) (optimistic.Result, error) {
	current, ok := n.cache.Get(id)
	if !ok {
		return optimistic.Result{}, clierrors.NotFoundError("notification", id)
	}
	if current.Read {
		return optimistic.Result{Outcome: optimistic.Ignored}, nil
	}

	return n.deps.Dispatcher.Dispatch(ctx, optimistic.Mutation{
		Key:    "notification:" + id,
		Kind:   optimistic.Hard,
		Policy: optimistic.IgnoreWhilePending,
		Intent: true,
		Label:  "Mark as read",
		Apply:  patch(n.cache, id, markRead),
		Commit: func(ctx context.Context) error {
			return n.deps.Gateway.From(notificationsTable).Eq("id", id).Update(ctx, map[string]bool{"read": true}, nil)
		},
	}), nil
}

// MarkAllRead marks every unread notification read in one update
func (n *NotificationCenter) MarkAllRead(ctx context.Context) optimistic.Result {
	userID := n.deps.Session.UserID
	return n.deps.Dispatcher.Dispatch(ctx, optimistic.Mutation{
		Key:    "notifications:all:" + userID,
		Kind:   optimistic.Hard,
		Policy: optimistic.IgnoreWhilePending,
		Intent: true,
		Label:  "Mark all as read",
		Apply: func() func() {
			var patches []entity.Patch[models.Notification]
			for _, item := range n.cache.Items() {
				if item.Read {
					continue
				}
				if p, ok := n.cache.Patch(item.ID, markRead); ok {
					patches = append(patches, p)
				}
			}
			return func() {
				for _, p := range slices.Backward(patches) {
					n.cache.Revert(p)
				}
			}
		},
		Commit: func(ctx context.Context) error {
			return n.deps.Gateway.From(notificationsTable).
				Eq("user_id", userID).
				Eq("read", false).
				Update(ctx, map[string]bool{"read": true}, nil)
		},
	})
}

// SendToUser asks the notify function to deliver a notification to another user
func (n *NotificationCenter) SendToUser(ctx context.Context, out models.OutgoingNotification) error {
	if !models.IsUUID(out.UserID) {
		return clierrors.ValidationError("user_id", "recipient must be a user id")
	}
	if out.Title == "" {
		return clierrors.ValidationError("title", "title is required")
	}
	return n.deps.Gateway.Invoke(ctx, n.deps.Functions.Notify, out, nil)
}

func (n *NotificationCenter) fetch(ctx context.Context, tok subscription.Token) error {
	err := fetchInto(ctx, n.cache, tok, &n.load, func(ctx context.Context) ([]models.Notification, error) {
		return gateway.FetchAll[models.Notification](ctx, n.deps.Gateway.From(notificationsTable).
			Eq("user_id", tok.Target()).
			Order("created_at", false).
			Limit(notificationsLimit))
	}, nil)
	if err != nil {
		logger.Error("Failed to load notifications", "user_id", tok.Target(), "error", err)
	}
	return err
}

func (n *NotificationCenter) onChange(_ context.Context, tok subscription.Token, evt realtime.ChangeEvent) {
	if evt.Type == realtime.EventDelete {
		if id := evt.RecordID(); id != "" {
			tok.Apply(func() { n.cache.Remove(id) })
		}
		return
	}

	item, err := gateway.DecodeRow[models.Notification](evt.Row())
	if err != nil {
		logger.Warn("Dropping malformed notification event", "error", err)
		return
	}
	if item.UserID != tok.Target() {
		return
	}

	fresh := false
	tok.Apply(func() {
		_, seen := n.cache.Get(item.ID)
		fresh = evt.Type == realtime.EventInsert && !seen
		n.cache.Upsert(item)
	})
	if fresh && n.OnNew != nil {
		n.OnNew(item)
	}
}

func markRead(n models.Notification) models.Notification {
	n.Read = true
	return n
}
