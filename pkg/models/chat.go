package models

import "strings"

const (
	// FallbackAuthor is shown when a message author cannot be resolved
	FallbackAuthor = "Anonymous"

	// MaxMessageLength bounds a single chat message
	MaxMessageLength = 1000
)

// ChatMessage is a row of chat_messages, optionally with the embedded author
type ChatMessage struct {
	ID        string  `json:"id"`
	RoomID    string  `json:"room_id"`
	UserID    string  `json:"user_id"`
	Text      string  `json:"message"`
	CreatedAt Time    `json:"created_at"`
	Author    *Author `json:"users,omitempty"`
}

// Author is the users embed on a chat message
type Author struct {
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// NewChatMessage is the insert body for a chat message
type NewChatMessage struct {
	ID     string `json:"id"`
	RoomID string `json:"room_id"`
	UserID string `json:"user_id"`
	Text   string `json:"message"`
}

func (m ChatMessage) Key() string { return m.ID }

func (m ChatMessage) Validate() error {
	if err := requireID("chat message", m.ID); err != nil {
		return err
	}
	if m.RoomID == "" || m.UserID == "" {
		return invalid("chat message", "missing room or user")
	}
	return nil
}

// AuthorDisplay returns the author's username, or the fallback when unresolved
func (m ChatMessage) AuthorDisplay() string {
	if m.Author == nil || strings.TrimSpace(m.Author.Username) == "" {
		return FallbackAuthor
	}
	return m.Author.Username
}

// ChatOrder sorts messages by created_at ascending, id as tiebreak
func ChatOrder(a, b ChatMessage) int {
	if c := a.CreatedAt.Compare(b.CreatedAt.Time); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}
