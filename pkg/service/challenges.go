package service

import (
	"context"
	"strings"
	"time"

	"github.com/zfogg/daredrop/pkg/contentgate"
	clierrors "github.com/zfogg/daredrop/pkg/errors"
	"github.com/zfogg/daredrop/pkg/gateway"
	"github.com/zfogg/daredrop/pkg/models"
	"github.com/zfogg/daredrop/pkg/optimistic"
)

const liveChallengesTable = "live_challenges"

// LiveChallenges lists active live challenges. Any change to the table
// triggers a full reload, since an update can move a row out of the active set.
type LiveChallenges struct {
	deps Deps
	list *reloadingList[models.LiveChallenge]
}

// NewLiveChallenges creates a closed challenge list
func NewLiveChallenges(deps Deps) *LiveChallenges {
	l := &LiveChallenges{deps: deps}
	l.list = newReloadingList(deps.Opener, liveChallengesTable, models.LatestStart, nil, l.query)
	return l
}

// Open subscribes to the table and loads the active challenges
func (l *LiveChallenges) Open(ctx context.Context) error {
	return l.list.open(ctx, liveChallengesTable)
}

// Retry reopens after a failure
func (l *LiveChallenges) Retry(ctx context.Context) error {
	return l.list.retry(ctx)
}

// Close ends the subscription
func (l *LiveChallenges) Close() {
	l.list.scope.Close()
}

// View returns the active challenges, latest start first
func (l *LiveChallenges) View() Snapshot[models.LiveChallenge] {
	return l.list.snapshot()
}

// Updates lists the signals that fire when View may have changed
func (l *LiveChallenges) Updates() []<-chan struct{} {
	return l.list.updates()
}

// Filter returns the challenges whose title or description contains term
func (l *LiveChallenges) Filter(term string) []models.LiveChallenge {
	var out []models.LiveChallenge
	for _, c := range l.list.cache.Items() {
		if c.Matches(term) {
			out = append(out, c)
		}
	}
	return out
}

// Join takes a participant slot. The new count is computed from the cached row
// and written back, so two concurrent joins can record only one increment; the
// next reload shows the stored count. A second join while one is in flight is
// ignored.
func (l *LiveChallenges) Join(ctx context.Context, id string) (optimistic.Result, error) {
	c, ok := l.list.cache.Get(id)
	if !ok {
		return optimistic.Result{}, clierrors.NotFoundError("live challenge", id)
	}
	if c.Status != models.ChallengeActive || c.Ended(l.deps.now()) {
		return optimistic.Result{}, clierrors.ValidationError("challenge", "challenge is no longer active")
	}
	if c.Full() {
		return optimistic.Result{}, clierrors.ValidationError("challenge", "challenge is full")
	}

	next := c.CurrentParticipants + 1
	return l.deps.Dispatcher.Dispatch(ctx, optimistic.Mutation{
		Key:    "join:" + id,
		Kind:   optimistic.Hard,
		Policy: optimistic.IgnoreWhilePending,
		Intent: next,
		Label:  "Join challenge",
		Apply: patch(l.list.cache, id, func(c models.LiveChallenge) models.LiveChallenge {
			c.CurrentParticipants = next
			return c
		}),
		Commit: func(ctx context.Context) error {
			return l.deps.Gateway.From(liveChallengesTable).
				Eq("id", id).
				Update(ctx, map[string]int{"current_participants": next}, nil)
		},
	}), nil
}

// ChallengeInput is what a user fills in to start a live challenge
type ChallengeInput struct {
	Title           string
	Description     string
	MaxParticipants int
	Duration        time.Duration
}

func (in ChallengeInput) withDefaults() ChallengeInput {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	if in.MaxParticipants <= 0 {
		in.MaxParticipants = models.DefaultMaxParticipants
	}
	if in.Duration <= 0 {
		in.Duration = models.DefaultChallengeDuration
	}
	return in
}

// Create scans the title and description as text, then inserts the challenge.
// Flagged text is inserted only after the user acknowledges the warning.
func (l *LiveChallenges) Create(ctx context.Context, input ChallengeInput) (contentgate.Outcome, error) {
	in := input.withDefaults()
	if in.Title == "" {
		return contentgate.Outcome{}, clierrors.ValidationError("title", "title is required")
	}

	return l.deps.Gate.Submit(ctx, contentgate.Submission{
		Request: contentgate.Request{
			Content: in.Title + " " + in.Description,
			Type:    contentgate.ContentText,
		},
		Persist: func(ctx context.Context, _ contentgate.Marker) error {
			row := models.NewLiveChallenge{
				Title:           in.Title,
				Description:     in.Description,
				CreatorID:       l.deps.Session.UserID,
				MaxParticipants: in.MaxParticipants,
				EndTime:         models.NewTime(l.deps.now().Add(in.Duration)),
			}
			return l.deps.Gateway.From(liveChallengesTable).Insert(ctx, row, nil)
		},
	})
}

func (l *LiveChallenges) query(ctx context.Context, _ string) ([]models.LiveChallenge, error) {
	return gateway.FetchAll[models.LiveChallenge](ctx, l.deps.Gateway.From(liveChallengesTable).
		Eq("status", string(models.ChallengeActive)).
		Order("start_time", false))
}
