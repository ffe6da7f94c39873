package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
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
	chatTable     = "chat_messages"
	chatHistory   = 50
	chatSelect    = "*,users(username,avatar_url)"
	authorColumns = "id,username,avatar_url"
)

// Room names that used to address shared lobbies. They are not row ids.
var sentinelRooms = map[string]bool{"general": true, "challenges": true}

// ValidateRoomID accepts only row identifiers
func ValidateRoomID(id string) error {
	if sentinelRooms[strings.ToLower(id)] {
		return fmt.Errorf("%q is a lobby name, not a room id", id)
	}
	if !models.IsUUID(id) {
		return fmt.Errorf("%q is not a uuid", id)
	}
	return nil
}

// ChatRoom is the message list of one room, kept live while entered
type ChatRoom struct {
	deps  Deps
	cache *entity.Cache[models.ChatMessage]
	scope *subscription.Scope
	load  loadState

	authorMu sync.Mutex
	authors  map[string]*models.Author
}

// NewChatRoom creates a chat view that has not entered any room
func NewChatRoom(deps Deps) *ChatRoom {
	r := &ChatRoom{
		deps:    deps,
		cache:   entity.New(models.ChatOrder),
		authors: make(map[string]*models.Author),
	}
	r.scope = subscription.New(deps.Opener, subscription.Config{
		Name:     chatTable,
		Validate: ValidateRoomID,
		Filter: func(id string) realtime.ChangeFilter {
			return realtime.ChangeFilter{Event: realtime.EventInsert, Table: chatTable, Filter: realtime.Eq("room_id", id)}
		},
		OnEvent:  r.onInsert,
		OnResync: func(ctx context.Context, tok subscription.Token) { _ = r.fetch(ctx, tok) },
	})
	return r
}

// Enter leaves the current room and opens roomID. The subscription is open
// before the history loads, so no insert falls between the two.
func (r *ChatRoom) Enter(ctx context.Context, roomID string) error {
	r.scope.Close()
	r.cache.Load(nil)
	r.load.reset()

	if err := r.scope.Open(ctx, roomID); err != nil {
		return err
	}
	return r.fetch(ctx, r.scope.Token())
}

// Retry reopens the room after a failed open or load
func (r *ChatRoom) Retry(ctx context.Context) error {
	if err := r.scope.Retry(ctx); err != nil {
		return err
	}
	return r.fetch(ctx, r.scope.Token())
}

// Leave closes the room subscription
func (r *ChatRoom) Leave() {
	r.scope.Close()
}

// View returns the current messages and sync state
func (r *ChatRoom) View() Snapshot[models.ChatMessage] {
	loaded, loadErr := r.load.get()
	state, err := viewStateOf(r.scope, loaded, loadErr)
	return Snapshot[models.ChatMessage]{
		State:  state,
		Target: r.scope.Target(),
		Items:  r.cache.Items(),
		Err:    err,
	}
}

// Updates lists the signals that fire when View may have changed
func (r *ChatRoom) Updates() []<-chan struct{} {
	return updates(r.cache.Changed(), r.scope, &r.load)
}

// Send posts text to the current room. The message shows immediately under a
// client-generated id and is removed again if the insert fails.
func (r *ChatRoom) Send(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", clierrors.ValidationError("message", "message is empty")
	}
	if utf8.RuneCountInString(text) > models.MaxMessageLength {
		return "", clierrors.ValidationError("message", fmt.Sprintf("message exceeds %d characters", models.MaxMessageLength))
	}
	if r.scope.State() != subscription.StateOpen {
		return "", clierrors.ValidationError("room", "not in a valid room")
	}

	tok := r.scope.Token()
	msg := models.ChatMessage{
		ID:        uuid.NewString(),
		RoomID:    tok.Target(),
		UserID:    r.deps.Session.UserID,
		Text:      text,
		CreatedAt: models.NewTime(r.deps.now()),
		Author:    r.author(r.deps.Session.UserID),
	}

	r.deps.Dispatcher.Dispatch(ctx, optimistic.Mutation{
		Key:    "chat:" + msg.ID,
		Kind:   optimistic.Hard,
		Policy: optimistic.IgnoreWhilePending,
		Label:  "Send message",
		Apply: func() func() {
			var echo entity.Patch[models.ChatMessage]
			if !tok.Apply(func() { echo = r.cache.Insert(msg) }) {
				return nil
			}
			return func() { r.cache.Revert(echo) }
		},
		Commit: func(ctx context.Context) error {
			body := models.NewChatMessage{ID: msg.ID, RoomID: msg.RoomID, UserID: msg.UserID, Text: msg.Text}
			return r.deps.Gateway.From(chatTable).Insert(ctx, body, nil)
		},
	})
	return msg.ID, nil
}

// fetch loads the newest messages of tok's room. The table is insert-only, so
// the history is merged rather than replacing messages that arrived meanwhile.
func (r *ChatRoom) fetch(ctx context.Context, tok subscription.Token) error {
	msgs, err := gateway.FetchAll[models.ChatMessage](ctx, r.deps.Gateway.From(chatTable).
		Select(chatSelect).
		Eq("room_id", tok.Target()).
		Order("created_at", false).
		Limit(chatHistory))
	if err != nil {
		logger.Error("Failed to load chat history", "room", tok.Target(), "error", err)
		tok.Apply(func() { r.load.done(err) })
		return err
	}

	for _, m := range msgs {
		if m.Author != nil {
			r.remember(m.UserID, m.Author)
		}
	}
	tok.Apply(func() {
		for _, m := range msgs {
			r.cache.Upsert(m)
		}
		r.load.done(nil)
	})
	return nil
}

func (r *ChatRoom) onInsert(ctx context.Context, tok subscription.Token, evt realtime.ChangeEvent) {
	msg, err := gateway.DecodeRow[models.ChatMessage](evt.Row())
	if err != nil {
		logger.Warn("Dropping malformed chat event", "room", tok.Target(), "error", err)
		return
	}
	if msg.RoomID != tok.Target() {
		return
	}
	if msg.Author == nil {
		msg.Author = r.resolveAuthor(ctx, msg.UserID)
	}
	tok.Apply(func() { r.cache.Upsert(msg) })
}

// resolveAuthor looks up a user's display fields once per user. A failed
// lookup leaves the author unset so the message shows the fallback name.
func (r *ChatRoom) resolveAuthor(ctx context.Context, userID string) *models.Author {
	if a := r.author(userID); a != nil {
		return a
	}
	u, err := gateway.FetchOne[models.User](ctx, r.deps.Gateway.From("users").Select(authorColumns).Eq("id", userID))
	if err != nil {
		logger.Error("Failed to resolve chat author", "user_id", userID, "error", err)
		return nil
	}
	a := &models.Author{Username: u.Username, AvatarURL: u.AvatarURL}
	r.remember(userID, a)
	return a
}

func (r *ChatRoom) author(userID string) *models.Author {
	r.authorMu.Lock()
	defer r.authorMu.Unlock()
	return r.authors[userID]
}

func (r *ChatRoom) remember(userID string, a *models.Author) {
	r.authorMu.Lock()
	r.authors[userID] = a
	r.authorMu.Unlock()
}
