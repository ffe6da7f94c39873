package service

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zfogg/daredrop/pkg/models"
)

const darePath = "/functions/v1/dare-suggestions"

func suggestion(id, title, category string, score int) models.DareSuggestion {
	return models.DareSuggestion{ID: id, Title: title, Category: category, Difficulty: "Easy", Points: 100, Score: score}
}

func TestSuggestSendsStoredBehavior(t *testing.T) {
	h := newHarness(t)
	h.backend.reply(http.MethodGet, "/rest/v1/user_behavior", 200,
		`{"user_id":"`+selfID+`","preferred_categories":["fitness"],"completed_tags":["outdoor"],"difficulty_preference":"Hard"}`)
	h.backend.reply(http.MethodPost, darePath, 200, rows(t, models.DareResponse{Suggestions: []models.DareSuggestion{
		suggestion("d1", "Push-ups", "Fitness", 70),
		suggestion("d2", "Sing", "Social", 90),
		{ID: "d3"},
	}}))

	dares := NewDares(h.deps)
	got := dares.Suggest(context.Background(), &models.Location{Lat: 1.5, Lng: 2.5})

	require.Len(t, got, 2, "malformed suggestions are dropped")
	assert.Equal(t, "d2", got[0].ID, "highest score first")
	fallback, err := dares.Fallback()
	assert.False(t, fallback)
	assert.NoError(t, err)

	var req models.DareRequest
	h.backend.calls(http.MethodPost, darePath)[0].decode(t, &req)
	assert.Equal(t, selfID, req.UserID)
	require.NotNil(t, req.Location)
	assert.Equal(t, 1.5, req.Location.Lat)
	assert.Equal(t, []string{"fitness"}, req.PastBehavior.PreferredCategories)
	assert.Equal(t, []string{"outdoor"}, req.PastBehavior.CompletedTags)
	assert.Equal(t, "Hard", req.PastBehavior.DifficultyPreference)
	assert.Empty(t, h.backend.calls(http.MethodGet, "/rest/v1/videos"))
}

func TestSuggestInfersBehaviorFromVideos(t *testing.T) {
	h := newHarness(t)
	h.backend.reply(http.MethodGet, "/rest/v1/user_behavior", 406, `{"code":"PGRST116","message":"no rows"}`)
	h.backend.reply(http.MethodGet, "/rest/v1/videos", 200, `[
		{"challenge_id":"c1","challenges":{"category":"Fitness"}},
		{"challenge_id":"c2","challenges":{"category":"fitness"}},
		{"challenge_id":"c3","challenges":{"category":"Music"}},
		{"challenge_id":null,"challenges":null}
	]`)
	h.backend.reply(http.MethodPost, darePath, 200, `{"suggestions":[]}`)

	NewDares(h.deps).Suggest(context.Background(), nil)

	videos := h.backend.calls(http.MethodGet, "/rest/v1/videos")[0]
	assert.Equal(t, "eq."+selfID, videos.query.Get("user_id"))
	assert.Equal(t, "10", videos.query.Get("limit"))

	var req models.DareRequest
	h.backend.calls(http.MethodPost, darePath)[0].decode(t, &req)
	assert.Nil(t, req.Location)
	assert.Equal(t, []string{"fitness", "music"}, req.PastBehavior.PreferredCategories)
	assert.Equal(t, []string{"social", "creative"}, req.PastBehavior.CompletedTags)
}

func TestSuggestWithNoHistorySendsEmptyBehavior(t *testing.T) {
	h := newHarness(t)
	h.backend.reply(http.MethodGet, "/rest/v1/videos", 200, `[]`)
	h.backend.reply(http.MethodPost, darePath, 200, `{"suggestions":[]}`)

	NewDares(h.deps).Suggest(context.Background(), nil)

	call := h.backend.calls(http.MethodPost, darePath)[0]
	assert.Contains(t, call.body, `"preferred_categories":[]`)
	assert.Contains(t, call.body, `"completed_tags":[]`)
}

func TestSuggestFallsBackWhenEndpointFails(t *testing.T) {
	h := newHarness(t)
	h.backend.reply(http.MethodGet, "/rest/v1/videos", 200, `[]`)
	h.backend.reply(http.MethodPost, darePath, 500, `{"message":"model offline"}`)

	dares := NewDares(h.deps)
	got := dares.Suggest(context.Background(), nil)

	require.Len(t, got, len(models.FallbackDares()))
	for _, s := range got {
		assert.True(t, s.Fallback)
	}
	fallback, err := dares.Fallback()
	assert.True(t, fallback)
	assert.Error(t, err)
}

func TestAcceptCreatesChallengeAndRecordsPreference(t *testing.T) {
	h := newHarness(t)
	h.backend.reply(http.MethodGet, "/rest/v1/videos", 200, `[]`)
	h.backend.reply(http.MethodPost, darePath, 200, rows(t, models.DareResponse{Suggestions: []models.DareSuggestion{
		suggestion("d1", "Push-ups", "Fitness", 70),
	}}))
	h.backend.reply(http.MethodPost, "/rest/v1/challenges", 201, `[{"id":"c9","title":"Push-ups","description":"","is_active":true,"participants":0}]`)
	h.backend.reply(http.MethodPost, "/rest/v1/user_behavior", 201, ``)

	dares := NewDares(h.deps)
	dares.Suggest(context.Background(), nil)

	created, err := dares.Accept(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, "c9", created.ID)
	assert.Empty(t, dares.Items())

	var row models.Challenge
	h.backend.calls(http.MethodPost, "/rest/v1/challenges")[0].decode(t, &row)
	assert.Equal(t, selfID, row.CreatorID)
	assert.Equal(t, "Fitness", row.Category)
	assert.True(t, row.IsActive)

	upsert := h.backend.calls(http.MethodPost, "/rest/v1/user_behavior")[0]
	assert.Equal(t, "user_id", upsert.query.Get("on_conflict"))
	var behavior models.UserBehavior
	upsert.decode(t, &behavior)
	assert.Equal(t, []string{"fitness"}, behavior.PreferredCategories)
}

func TestAcceptSurvivesPreferenceFailure(t *testing.T) {
	h := newHarness(t)
	h.backend.reply(http.MethodGet, "/rest/v1/videos", 200, `[]`)
	h.backend.reply(http.MethodPost, darePath, 500, `{}`)
	h.backend.reply(http.MethodPost, "/rest/v1/challenges", 201, `[]`)
	h.backend.reply(http.MethodPost, "/rest/v1/user_behavior", 500, `{"message":"down"}`)

	dares := NewDares(h.deps)
	dares.Suggest(context.Background(), nil)

	created, err := dares.Accept(context.Background(), "fallback-1")
	require.NoError(t, err)
	assert.Equal(t, "Local Coffee Shop Challenge", created.Title)
	assert.Len(t, dares.Items(), len(models.FallbackDares())-1)
}

func TestDismissHidesSuggestion(t *testing.T) {
	h := newHarness(t)
	h.backend.reply(http.MethodGet, "/rest/v1/videos", 200, `[]`)
	h.backend.reply(http.MethodPost, darePath, 500, `{}`)

	dares := NewDares(h.deps)
	dares.Suggest(context.Background(), nil)
	dares.Dismiss("fallback-2")

	for _, s := range dares.Items() {
		assert.NotEqual(t, "fallback-2", s.ID)
	}
	_, err := dares.Accept(context.Background(), "missing")
	assert.Error(t, err)
}
