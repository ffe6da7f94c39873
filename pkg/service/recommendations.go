package service

import (
	"context"

	"github.com/zfogg/daredrop/pkg/entity"
	clierrors "github.com/zfogg/daredrop/pkg/errors"
	"github.com/zfogg/daredrop/pkg/gateway"
	"github.com/zfogg/daredrop/pkg/logger"
	"github.com/zfogg/daredrop/pkg/models"
	"github.com/zfogg/daredrop/pkg/optimistic"
)

const recommendationLimit = 10

// Recommendations suggests users to follow
type Recommendations struct {
	deps  Deps
	cache *entity.Cache[models.RecommendedUser]
	load  loadState
}

// NewRecommendations creates an empty recommendation list
func NewRecommendations(deps Deps) *Recommendations {
	return &Recommendations{deps: deps, cache: entity.New(models.MostMutual)}
}

// Load picks up to ten users the viewer does not follow yet and counts how
// many of the viewer's follows already follow each of them
func (r *Recommendations) Load(ctx context.Context) error {
	r.load.reset()
	recs, err := r.query(ctx)
	if err != nil {
		logger.Error("Failed to load recommendations", "error", err)
		r.load.done(err)
		return err
	}
	r.cache.Load(recs)
	r.load.done(nil)
	return nil
}

// View returns the recommendations, most mutual follows first. Dismissed
// users stay hidden across reloads.
func (r *Recommendations) View() Snapshot[models.RecommendedUser] {
	loaded, err := r.load.get()
	state := ViewReady
	switch {
	case err != nil:
		state = ViewFailed
	case !loaded:
		state = ViewLoading
	}
	return Snapshot[models.RecommendedUser]{State: state, Items: r.cache.Items(), Err: err}
}

// Follow follows a recommended user. The user leaves the list at once and
// returns if the follow fails.
func (r *Recommendations) Follow(ctx context.Context, userID string) (optimistic.Result, error) {
	if _, ok := r.cache.Get(userID); !ok {
		return optimistic.Result{}, clierrors.NotFoundError("recommended user", userID)
	}
	follow := models.Follow{FollowerID: r.deps.Session.UserID, FollowingID: userID}

	return r.deps.Dispatcher.Dispatch(ctx, optimistic.Mutation{
		Key:    "follow:" + userID,
		Kind:   optimistic.Hard,
		Policy: optimistic.IgnoreWhilePending,
		Intent: true,
		Label:  "Follow",
		Apply:  discard(r.cache, userID),
		Commit: func(ctx context.Context) error {
			err := r.deps.Gateway.From(followersTable).Insert(ctx, follow, nil)
			if gateway.IsConflict(err) {
				return nil
			}
			return err
		},
	}), nil
}

// Dismiss hides a recommendation for the rest of the session. Nothing is stored.
func (r *Recommendations) Dismiss(ctx context.Context, userID string) optimistic.Result {
	return r.deps.Dispatcher.Dispatch(ctx, optimistic.Mutation{
		Key:    "dismiss:" + userID,
		Kind:   optimistic.Soft,
		Policy: optimistic.IgnoreWhilePending,
		Label:  "Dismiss",
		Apply: func() func() {
			r.cache.Hide(userID)
			return nil
		},
	})
}

func (r *Recommendations) query(ctx context.Context) ([]models.RecommendedUser, error) {
	self := r.deps.Session.UserID

	var follows []models.Follow
	if err := r.deps.Gateway.From(followersTable).
		Select("follower_id,following_id").
		Eq("follower_id", self).
		Fetch(ctx, &follows); err != nil {
		return nil, err
	}
	following := make(map[string]bool, len(follows))
	exclude := []string{self}
	for _, f := range follows {
		following[f.FollowingID] = true
		exclude = append(exclude, f.FollowingID)
	}

	users, err := gateway.FetchAll[models.User](ctx, r.deps.Gateway.From(usersTable).
		NotIn("id", exclude).
		Limit(recommendationLimit))
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, nil
	}

	var edges []models.Follow
	if err := r.deps.Gateway.From(followersTable).
		Select("follower_id,following_id").
		In("following_id", keys(users)).
		Fetch(ctx, &edges); err != nil {
		return nil, err
	}
	mutual := make(map[string]int)
	followers := make(map[string]int)
	for _, e := range edges {
		followers[e.FollowingID]++
		if following[e.FollowerID] {
			mutual[e.FollowingID]++
		}
	}

	recs := make([]models.RecommendedUser, 0, len(users))
	for _, u := range users {
		m, n := mutual[u.ID], followers[u.ID]
		recs = append(recs, models.RecommendedUser{
			User:          u,
			MutualFriends: m,
			FollowerCount: n,
			Reason:        models.RecommendationReason(m, n),
		})
	}
	return recs, nil
}
