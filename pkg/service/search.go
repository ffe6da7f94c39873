package service

import (
	"context"
	"strings"

	"github.com/zfogg/daredrop/pkg/gateway"
	"github.com/zfogg/daredrop/pkg/localstore"
	"github.com/zfogg/daredrop/pkg/logger"
	"github.com/zfogg/daredrop/pkg/models"
	"golang.org/x/sync/errgroup"
)

const searchLimit = 10

// Search runs combined searches and keeps the recent query list
type Search struct {
	gw     *gateway.Client
	recent *localstore.RecentSearches
}

// NewSearch creates a search view. recent may be nil to skip history.
func NewSearch(gw *gateway.Client, recent *localstore.RecentSearches) *Search {
	return &Search{gw: gw, recent: recent}
}

// Search looks up users, challenges and videos in parallel and appends the
// matching trending hashtags. A blank query returns nothing.
func (s *Search) Search(ctx context.Context, query string) ([]models.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if s.recent != nil {
		if _, err := s.recent.Push(query); err != nil {
			logger.Error("Failed to save recent search", "error", err)
		}
	}

	var users, challenges, videos []models.SearchResult
	if gateway.SanitizeTerm(query) != "" {
		pattern := gateway.ContainsPattern(query)
		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() (err error) {
			users, err = s.users(ctx, pattern)
			return err
		})
		g.Go(func() (err error) {
			challenges, err = s.challenges(ctx, pattern)
			return err
		})
		g.Go(func() (err error) {
			videos, err = s.videos(ctx, pattern)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	results := make([]models.SearchResult, 0, len(users)+len(challenges)+len(videos))
	results = append(results, users...)
	results = append(results, challenges...)
	results = append(results, videos...)
	results = append(results, Hashtags(query)...)
	return results, nil
}

// Recent returns recent queries, most recent first
func (s *Search) Recent() ([]string, error) {
	if s.recent == nil {
		return nil, nil
	}
	return s.recent.List()
}

// ClearRecent forgets every recent query
func (s *Search) ClearRecent() error {
	if s.recent == nil {
		return nil
	}
	return s.recent.Clear()
}

// Trending returns the trending query suggestions
func (s *Search) Trending() []string {
	return append([]string(nil), models.TrendingSearches...)
}

// Hashtags returns the trending hashtags containing query
func Hashtags(query string) []models.SearchResult {
	q := strings.ToLower(strings.TrimSpace(query))
	var out []models.SearchResult
	for _, tag := range models.Hashtags {
		if strings.Contains(tag, q) {
			out = append(out, models.SearchResult{ID: tag, Type: models.ResultHashtag, Title: tag, Subtitle: "Trending hashtag"})
		}
	}
	return out
}

func (s *Search) users(ctx context.Context, pattern string) ([]models.SearchResult, error) {
	rows, err := gateway.FetchAll[models.User](ctx, s.gw.From(usersTable).
		Select("id,username,bio,avatar_url").
		Or("username.ilike."+pattern, "bio.ilike."+pattern).
		Limit(searchLimit))
	if err != nil {
		return nil, err
	}
	out := make([]models.SearchResult, 0, len(rows))
	for _, u := range rows {
		out = append(out, models.SearchResult{
			ID:       u.ID,
			Type:     models.ResultUser,
			Title:    u.Username,
			Subtitle: u.Bio,
			Avatar:   u.AvatarURL,
		})
	}
	return out, nil
}

func (s *Search) challenges(ctx context.Context, pattern string) ([]models.SearchResult, error) {
	rows, err := gateway.FetchAll[models.Challenge](ctx, s.gw.From(challengesTable).
		Select("id,title,description,category,participants").
		Or("title.ilike."+pattern, "description.ilike."+pattern, "category.ilike."+pattern).
		Limit(searchLimit))
	if err != nil {
		return nil, err
	}
	out := make([]models.SearchResult, 0, len(rows))
	for _, c := range rows {
		out = append(out, models.SearchResult{
			ID:       c.ID,
			Type:     models.ResultChallenge,
			Title:    c.Title,
			Subtitle: c.Description,
			Metadata: map[string]int{"participants": c.Participants},
		})
	}
	return out, nil
}

func (s *Search) videos(ctx context.Context, pattern string) ([]models.SearchResult, error) {
	rows, err := gateway.FetchAll[models.Video](ctx, s.gw.From(videosTable).
		Select("id,user_id,title,description,views,likes").
		Or("title.ilike."+pattern, "description.ilike."+pattern).
		Limit(searchLimit))
	if err != nil {
		return nil, err
	}
	out := make([]models.SearchResult, 0, len(rows))
	for _, v := range rows {
		title := v.Title
		if title == "" {
			title = "Untitled Video"
		}
		out = append(out, models.SearchResult{
			ID:       v.ID,
			Type:     models.ResultVideo,
			Title:    title,
			Subtitle: v.Description,
			Metadata: map[string]int{"views": v.Views, "likes": v.Likes},
		})
	}
	return out, nil
}
