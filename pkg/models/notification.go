package models

import (
	"encoding/json"
	"strings"
)

// NotificationType enumerates notification kinds
type NotificationType string

const (
	NotificationLike      NotificationType = "like"
	NotificationComment   NotificationType = "comment"
	NotificationFollow    NotificationType = "follow"
	NotificationChallenge NotificationType = "challenge"
)

// Notification is a row of notifications
type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"user_id"`
	Title     string           `json:"title"`
	Body      string           `json:"body"`
	Type      NotificationType `json:"type"`
	Data      json.RawMessage  `json:"data,omitempty"`
	Read      bool             `json:"read"`
	CreatedAt Time             `json:"created_at"`
}

func (n Notification) Key() string { return n.ID }

func (n Notification) Validate() error {
	if err := requireID("notification", n.ID); err != nil {
		return err
	}
	if n.UserID == "" {
		return invalid("notification", "missing user_id")
	}
	return nil
}

// NewestFirst sorts notifications by created_at descending
func NewestFirst(a, b Notification) int {
	if c := b.CreatedAt.Compare(a.CreatedAt.Time); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

// OutgoingNotification is the body of the send-notification function
type OutgoingNotification struct {
	UserID string           `json:"userId"`
	Title  string           `json:"title"`
	Body   string           `json:"body"`
	Type   NotificationType `json:"type"`
	Data   interface{}      `json:"data,omitempty"`
}
