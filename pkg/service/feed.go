package service

import (
	"context"
	"sync"

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
	followersTable  = "followers"
	videoLikesTable = "video_likes"
	feedLimit       = 20
	feedSelect      = "*,users(username,full_name,avatar_url)"
)

// Feed is the social feed: recent videos from followed users and the viewer
type Feed struct {
	deps  Deps
	cache *entity.Cache[models.FeedPost]
	scope *subscription.Scope
	load  loadState

	mu      sync.Mutex
	authors map[string]bool
	known   bool
	early   []models.FeedPost
}

// NewFeed creates a closed feed
func NewFeed(deps Deps) *Feed {
	f := &Feed{deps: deps, cache: entity.New(models.FeedOrder), authors: make(map[string]bool)}
	f.scope = subscription.New(deps.Opener, subscription.Config{
		Name: videosTable,
		Filter: func(string) realtime.ChangeFilter {
			return realtime.ChangeFilter{Event: realtime.EventInsert, Table: videosTable}
		},
		OnEvent:  f.onInsert,
		OnResync: func(ctx context.Context, tok subscription.Token) { _ = f.fetch(ctx, tok) },
	})
	return f
}

// Open subscribes to new videos and loads the feed
func (f *Feed) Open(ctx context.Context) error {
	f.load.reset()
	f.mu.Lock()
	f.known, f.early = false, nil
	f.mu.Unlock()
	if err := f.scope.Open(ctx, f.deps.Session.UserID); err != nil {
		return err
	}
	return f.fetch(ctx, f.scope.Token())
}

// Retry reopens after a failure
func (f *Feed) Retry(ctx context.Context) error {
	if err := f.scope.Retry(ctx); err != nil {
		return err
	}
	return f.fetch(ctx, f.scope.Token())
}

// Close ends the subscription
func (f *Feed) Close() {
	f.scope.Close()
}

// View returns the posts newest first
func (f *Feed) View() Snapshot[models.FeedPost] {
	loaded, loadErr := f.load.get()
	state, err := viewStateOf(f.scope, loaded, loadErr)
	return Snapshot[models.FeedPost]{State: state, Items: f.cache.Items(), Err: err}
}

// Updates lists the signals that fire when View may have changed
func (f *Feed) Updates() []<-chan struct{} {
	return updates(f.cache.Changed(), f.scope, &f.load)
}

// ToggleLike flips the viewer's like on a post. Rapid toggles show at once and
// only the final state is written; a failed write restores the last stored state.
func (f *Feed) ToggleLike(ctx context.Context, postID string) (optimistic.Result, error) {
	post, ok := f.cache.Get(postID)
	if !ok {
		return optimistic.Result{}, clierrors.NotFoundError("post", postID)
	}
	liked := !post.IsLiked
	userID := f.deps.Session.UserID

	return f.deps.Dispatcher.Dispatch(ctx, optimistic.Mutation{
		Key:    "like:" + postID,
		Kind:   optimistic.Hard,
		Policy: optimistic.CoalesceLatest,
		Intent: liked,
		Label:  "Like",
		Apply:  patch(f.cache, postID, func(p models.FeedPost) models.FeedPost { return setLiked(p, liked) }),
		Commit: func(ctx context.Context) error {
			if liked {
				like := models.VideoLike{VideoID: postID, UserID: userID}
				return f.deps.Gateway.From(videoLikesTable).OnConflict("video_id,user_id").Upsert(ctx, like, nil)
			}
			return f.deps.Gateway.From(videoLikesTable).Eq("video_id", postID).Eq("user_id", userID).Delete(ctx)
		},
	}), nil
}

func setLiked(p models.FeedPost, liked bool) models.FeedPost {
	if p.IsLiked == liked {
		return p
	}
	p.IsLiked = liked
	if liked {
		p.LikeCount++
	} else if p.LikeCount > 0 {
		p.LikeCount--
	}
	return p
}

// fetch loads the feed. New videos seen before the first load lands are held
// until the followed authors are known.
func (f *Feed) fetch(ctx context.Context, tok subscription.Token) error {
	var authors map[string]bool
	err := fetchInto(ctx, f.cache, tok, &f.load, func(ctx context.Context) ([]models.FeedPost, error) {
		posts, a, err := f.query(ctx)
		authors = a
		return posts, err
	}, func() {
		f.mu.Lock()
		f.authors, f.known = authors, true
		early := f.early
		f.early = nil
		f.mu.Unlock()
		for _, p := range early {
			if _, cached := f.cache.Get(p.ID); authors[p.UserID] && !cached {
				f.cache.Upsert(p)
			}
		}
	})
	if err != nil {
		logger.Error("Failed to load feed", "error", err)
	}
	return err
}

func (f *Feed) query(ctx context.Context) ([]models.FeedPost, map[string]bool, error) {
	userID := f.deps.Session.UserID

	var follows []models.Follow
	if err := f.deps.Gateway.From(followersTable).
		Select("follower_id,following_id").
		Eq("follower_id", userID).
		Fetch(ctx, &follows); err != nil {
		return nil, nil, err
	}
	authors := map[string]bool{userID: true}
	ids := []string{userID}
	for _, fl := range follows {
		if !authors[fl.FollowingID] {
			authors[fl.FollowingID] = true
			ids = append(ids, fl.FollowingID)
		}
	}

	videos, err := gateway.FetchAll[models.Video](ctx, f.deps.Gateway.From(videosTable).
		Select(feedSelect).
		In("user_id", ids).
		Order("created_at", false).
		Limit(feedLimit))
	if err != nil {
		return nil, nil, err
	}
	if len(videos) == 0 {
		return nil, authors, nil
	}

	likes, err := gateway.FetchAll[models.VideoLike](ctx, f.deps.Gateway.From(videoLikesTable).
		Select("video_id,user_id").
		Eq("user_id", userID).
		In("video_id", keys(videos)))
	if err != nil {
		return nil, nil, err
	}
	liked := make(map[string]bool, len(likes))
	for _, l := range likes {
		liked[l.VideoID] = true
	}

	posts := make([]models.FeedPost, 0, len(videos))
	for _, v := range videos {
		p := models.PostFromVideo(v)
		p.LikeCount = v.Likes
		p.IsLiked = liked[v.ID]
		posts = append(posts, p)
	}
	return posts, authors, nil
}

func (f *Feed) onInsert(_ context.Context, tok subscription.Token, evt realtime.ChangeEvent) {
	v, err := gateway.DecodeRow[models.Video](evt.Row())
	if err != nil {
		logger.Warn("Dropping malformed video event", "error", err)
		return
	}

	p := models.PostFromVideo(v)
	p.LikeCount = v.Likes
	tok.Apply(func() {
		f.mu.Lock()
		known, followed := f.known, f.authors[v.UserID]
		if !known {
			f.early = append(f.early, p)
		}
		f.mu.Unlock()
		if _, cached := f.cache.Get(p.ID); followed && !cached {
			f.cache.Upsert(p)
		}
	})
}
