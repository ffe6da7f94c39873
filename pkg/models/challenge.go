package models

import (
	"strings"
	"time"
)

// ChallengeStatus is the lifecycle of a live challenge
type ChallengeStatus string

const (
	ChallengeActive    ChallengeStatus = "active"
	ChallengeCompleted ChallengeStatus = "completed"
	ChallengeCancelled ChallengeStatus = "cancelled"
)

const (
	DefaultMaxParticipants   = 50
	DefaultChallengeDuration = 30 * time.Minute
)

// LiveChallenge is a row of live_challenges
type LiveChallenge struct {
	ID                  string          `json:"id"`
	Title               string          `json:"title"`
	Description         string          `json:"description"`
	CreatorID           string          `json:"creator_id"`
	Status              ChallengeStatus `json:"status"`
	StartTime           Time            `json:"start_time"`
	EndTime             *Time           `json:"end_time,omitempty"`
	MaxParticipants     int             `json:"max_participants"`
	CurrentParticipants int             `json:"current_participants"`
}

func (c LiveChallenge) Key() string { return c.ID }

func (c LiveChallenge) Validate() error {
	if err := requireID("live challenge", c.ID); err != nil {
		return err
	}
	switch c.Status {
	case ChallengeActive, ChallengeCompleted, ChallengeCancelled:
	default:
		return invalid("live challenge", "unknown status "+string(c.Status))
	}
	if c.CurrentParticipants < 0 || c.MaxParticipants < 0 {
		return invalid("live challenge", "negative participant count")
	}
	return nil
}

// Full reports whether the challenge has reached capacity
func (c LiveChallenge) Full() bool {
	return c.MaxParticipants > 0 && c.CurrentParticipants >= c.MaxParticipants
}

// Ended reports whether the end time has passed
func (c LiveChallenge) Ended(now time.Time) bool {
	return c.EndTime != nil && !c.EndTime.IsZero() && !now.Before(c.EndTime.Time)
}

// Matches reports whether term appears in the title or description, case-insensitively
func (c LiveChallenge) Matches(term string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return true
	}
	return strings.Contains(strings.ToLower(c.Title), term) ||
		strings.Contains(strings.ToLower(c.Description), term)
}

// LatestStart sorts challenges by start_time descending
func LatestStart(a, b LiveChallenge) int {
	if c := b.StartTime.Compare(a.StartTime.Time); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

// NewLiveChallenge is the insert body for a live challenge
type NewLiveChallenge struct {
	Title           string `json:"title"`
	Description     string `json:"description"`
	CreatorID       string `json:"creator_id"`
	MaxParticipants int    `json:"max_participants"`
	EndTime         Time   `json:"end_time"`
}

// Challenge is a row of challenges, the non-live catalogue dares are accepted into
type Challenge struct {
	ID           string `json:"id,omitempty"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	Category     string `json:"category,omitempty"`
	Difficulty   string `json:"difficulty,omitempty"`
	Points       int    `json:"points,omitempty"`
	CreatorID    string `json:"creator_id,omitempty"`
	IsActive     bool   `json:"is_active"`
	Participants int    `json:"participants"`
}

func (c Challenge) Key() string { return c.ID }

func (c Challenge) Validate() error {
	if err := requireID("challenge", c.ID); err != nil {
		return err
	}
	if strings.TrimSpace(c.Title) == "" {
		return invalid("challenge", "missing title")
	}
	return nil
}
