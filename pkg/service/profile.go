package service

import (
	"context"
	"sync"

	clierrors "github.com/zfogg/daredrop/pkg/errors"
	"github.com/zfogg/daredrop/pkg/gateway"
	"github.com/zfogg/daredrop/pkg/logger"
	"github.com/zfogg/daredrop/pkg/models"
	"github.com/zfogg/daredrop/pkg/optimistic"
	"golang.org/x/sync/errgroup"
)

// Profile holds the signed-in user's own users row
type Profile struct {
	deps Deps

	mu   sync.Mutex
	user *models.User
	err  error
}

// NewProfile creates an unloaded profile
func NewProfile(deps Deps) *Profile {
	return &Profile{deps: deps}
}

// Load fetches the users row of the session user, creating it when the
// account has none yet
func (p *Profile) Load(ctx context.Context) (models.User, error) {
	user, err := p.fetchOrCreate(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
	if err != nil {
		return models.User{}, err
	}
	p.user = &user
	return user, nil
}

// Current returns the loaded row, including unconfirmed local edits
func (p *Profile) Current() (models.User, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.user == nil {
		return models.User{}, false
	}
	return *p.user, true
}

// Err returns the last load failure
func (p *Profile) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Update edits the profile. The edit shows at once and is rolled back if the
// write fails.
func (p *Profile) Update(ctx context.Context, patch models.ProfilePatch) (optimistic.Result, error) {
	if err := patch.Validate(); err != nil {
		return optimistic.Result{}, clierrors.NewCLIError(clierrors.ErrorTypeValidation, err.Error(), err)
	}
	if _, ok := p.Current(); !ok {
		return optimistic.Result{}, clierrors.ValidationError("profile", "profile is not loaded")
	}

	userID := p.deps.Session.UserID
	return p.deps.Dispatcher.Dispatch(ctx, optimistic.Mutation{
		Key:    "profile:" + userID,
		Kind:   optimistic.Hard,
		Policy: optimistic.IgnoreWhilePending,
		Intent: patch,
		Label:  "Update profile",
		Apply: func() func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			prev := *p.user
			next := patch.Merge(prev)
			p.user = &next
			return func() {
				p.mu.Lock()
				p.user = &prev
				p.mu.Unlock()
			}
		},
		Commit: func(ctx context.Context) error {
			return p.deps.Gateway.From(usersTable).Eq("id", userID).Update(ctx, patch, nil)
		},
	}), nil
}

func (p *Profile) fetchOrCreate(ctx context.Context) (models.User, error) {
	userID := p.deps.Session.UserID
	if userID == "" {
		return models.User{}, clierrors.SessionExpiredError()
	}

	user, err := p.fetch(ctx)
	if !gateway.IsNoRows(err) {
		return user, err
	}

	logger.Info("Creating profile", "user_id", userID)
	var created []models.User
	err = p.deps.Gateway.From(usersTable).Insert(ctx, models.ProfileFor(userID, p.deps.Session.Email), &created)
	switch {
	case gateway.IsConflict(err):
		// created elsewhere since the select
		return p.fetch(ctx)
	case err != nil:
		return models.User{}, err
	case len(created) == 0:
		return p.fetch(ctx)
	}
	if err := created[0].Validate(); err != nil {
		return models.User{}, err
	}
	return created[0], nil
}

func (p *Profile) fetch(ctx context.Context) (models.User, error) {
	return gateway.FetchOne[models.User](ctx, p.deps.Gateway.From(usersTable).Eq("id", p.deps.Session.UserID))
}

// UserAnalytics counts a user's videos, likes given, followers and follows
func UserAnalytics(ctx context.Context, gw *gateway.Client, userID string) (models.Analytics, error) {
	if !models.IsUUID(userID) {
		return models.Analytics{}, clierrors.ValidationError("user", "invalid user id")
	}
	stats := models.Analytics{UserID: userID}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		stats.TotalVideos, err = gw.From(videosTable).Eq("user_id", userID).Count(ctx)
		return err
	})
	g.Go(func() (err error) {
		stats.TotalLikes, err = gw.From(videoLikesTable).Eq("user_id", userID).Count(ctx)
		return err
	})
	g.Go(func() (err error) {
		stats.TotalFollowers, err = gw.From(followersTable).Eq("following_id", userID).Count(ctx)
		return err
	})
	g.Go(func() (err error) {
		stats.TotalFollowing, err = gw.From(followersTable).Eq("follower_id", userID).Count(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return models.Analytics{}, err
	}
	return stats, nil
}
