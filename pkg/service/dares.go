package service

import (
	"context"
	"strings"
	"sync"

	"github.com/zfogg/daredrop/pkg/entity"
	clierrors "github.com/zfogg/daredrop/pkg/errors"
	"github.com/zfogg/daredrop/pkg/gateway"
	"github.com/zfogg/daredrop/pkg/logger"
	"github.com/zfogg/daredrop/pkg/models"
)

const (
	behaviorTable    = "user_behavior"
	challengesTable  = "challenges"
	behaviorSampling = 10
)

// Tags assumed for a user inferred from video history alone
var inferredTags = []string{"social", "creative"}

// Dares holds the dare suggestions offered to the signed-in user
type Dares struct {
	deps  Deps
	cache *entity.Cache[models.DareSuggestion]

	mu       sync.Mutex
	fallback bool
	err      error
}

// NewDares creates an empty suggestion list
func NewDares(deps Deps) *Dares {
	return &Dares{deps: deps, cache: entity.New(models.HighestScore)}
}

// Suggest asks the dare endpoint for suggestions. When the endpoint fails the
// fixed local set is shown instead and Fallback reports true.
func (d *Dares) Suggest(ctx context.Context, loc *models.Location) []models.DareSuggestion {
	req := models.DareRequest{
		UserID:       d.deps.Session.UserID,
		Location:     loc,
		PastBehavior: d.behavior(ctx),
	}

	var resp models.DareResponse
	err := d.deps.Gateway.Invoke(ctx, d.deps.Functions.Dares, req, &resp)

	d.mu.Lock()
	d.err = err
	d.fallback = err != nil
	d.mu.Unlock()

	if err != nil {
		logger.Error("Dare suggestions failed, using fallback set", "error", err)
		d.cache.Load(models.FallbackDares())
		return d.cache.Items()
	}

	valid := make([]models.DareSuggestion, 0, len(resp.Suggestions))
	for _, s := range resp.Suggestions {
		if err := s.Validate(); err != nil {
			logger.Warn("Dropping malformed dare suggestion", "error", err)
			continue
		}
		valid = append(valid, s)
	}
	d.cache.Load(valid)
	return d.cache.Items()
}

// Items returns the current suggestions, best first
func (d *Dares) Items() []models.DareSuggestion {
	return d.cache.Items()
}

// Fallback reports whether the current suggestions are the local fallback set
func (d *Dares) Fallback() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fallback, d.err
}

// Accept turns a suggestion into a challenge owned by the user and records the
// category as a preference for future suggestions
func (d *Dares) Accept(ctx context.Context, id string) (models.Challenge, error) {
	s, ok := d.cache.Get(id)
	if !ok {
		return models.Challenge{}, clierrors.NotFoundError("dare suggestion", id)
	}

	row := models.Challenge{
		Title:       s.Title,
		Description: s.Description,
		Category:    s.Category,
		Difficulty:  s.Difficulty,
		Points:      s.Points,
		CreatorID:   d.deps.Session.UserID,
		IsActive:    true,
	}
	var created []models.Challenge
	if err := d.deps.Gateway.From(challengesTable).Insert(ctx, row, &created); err != nil {
		return models.Challenge{}, err
	}
	if len(created) > 0 {
		row = created[0]
	}

	now := models.NewTime(d.deps.now())
	behavior := models.UserBehavior{
		UserID:              d.deps.Session.UserID,
		PreferredCategories: []string{strings.ToLower(s.Category)},
		CompletedTags:       []string{"accepted"},
		UpdatedAt:           &now,
	}
	if err := d.deps.Gateway.From(behaviorTable).OnConflict("user_id").Upsert(ctx, behavior, nil); err != nil {
		logger.Error("Failed to record dare preference", "user_id", behavior.UserID, "error", err)
	}

	d.cache.Remove(id)
	return row, nil
}

// Dismiss hides a suggestion for the rest of the session
func (d *Dares) Dismiss(id string) {
	d.cache.Hide(id)
}

// behavior returns the stored preferences, or preferences inferred from the
// user's recent videos when none are stored
func (d *Dares) behavior(ctx context.Context) models.UserBehavior {
	userID := d.deps.Session.UserID
	out := models.UserBehavior{PreferredCategories: []string{}, CompletedTags: []string{}}

	stored, err := gateway.FetchOne[models.UserBehavior](ctx, d.deps.Gateway.From(behaviorTable).Eq("user_id", userID))
	if err == nil {
		if stored.PreferredCategories != nil {
			out.PreferredCategories = stored.PreferredCategories
		}
		if stored.CompletedTags != nil {
			out.CompletedTags = stored.CompletedTags
		}
		out.DifficultyPreference = stored.DifficultyPreference
		return out
	}
	logger.Debug("No stored behavior, inferring from videos", "user_id", userID, "error", err)

	var videos []struct {
		ChallengeID *string `json:"challenge_id"`
		Challenge   *struct {
			Category string `json:"category"`
		} `json:"challenges"`
	}
	err = d.deps.Gateway.From(videosTable).
		Select("challenge_id,challenges(category)").
		Eq("user_id", userID).
		Limit(behaviorSampling).
		Fetch(ctx, &videos)
	if err != nil {
		logger.Error("Failed to infer dare preferences", "user_id", userID, "error", err)
		return out
	}
	if len(videos) == 0 {
		return out
	}

	seen := make(map[string]bool)
	for _, v := range videos {
		if v.Challenge == nil || v.Challenge.Category == "" {
			continue
		}
		c := strings.ToLower(v.Challenge.Category)
		if !seen[c] {
			seen[c] = true
			out.PreferredCategories = append(out.PreferredCategories, c)
		}
	}
	out.CompletedTags = append(out.CompletedTags, inferredTags...)
	return out
}
