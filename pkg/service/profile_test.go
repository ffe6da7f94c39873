package service

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zfogg/daredrop/pkg/models"
)

const noRows = `{"code":"PGRST116","message":"JSON object requested, multiple (or no) rows returned","details":"The result contains 0 rows"}`

func TestProfileLoadsOwnRow(t *testing.T) {
	h := newHarness(t)
	h.backend.reply(http.MethodGet, "/rest/v1/users", 200,
		fmt.Sprintf(`{"id":%q,"username":"zoe","bio":"hi","points":120}`, selfID))

	user, err := NewProfile(h.deps).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "zoe", user.Username)
	assert.Equal(t, 120, user.Points)

	req := h.backend.calls(http.MethodGet, "/rest/v1/users")[0]
	assert.Equal(t, "eq."+selfID, req.query.Get("id"))
	assert.Empty(t, h.backend.calls(http.MethodPost, "/rest/v1/users"))
}

func TestProfileCreatedWhenMissing(t *testing.T) {
	h := newHarness(t)
	h.backend.reply(http.MethodGet, "/rest/v1/users", 406, noRows)
	h.backend.reply(http.MethodPost, "/rest/v1/users", 201,
		fmt.Sprintf(`[{"id":%q,"username":"me","bio":"","points":0}]`, selfID))

	p := NewProfile(h.deps)
	user, err := p.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "me", user.Username)

	posts := h.backend.calls(http.MethodPost, "/rest/v1/users")
	require.Len(t, posts, 1)
	var body models.NewProfile
	posts[0].decode(t, &body)
	assert.Equal(t, selfID, body.ID)
	assert.Equal(t, "me", body.Username, "username is the email's local part")
	assert.Contains(t, posts[0].header.Get("Prefer"), "return=representation")

	current, ok := p.Current()
	require.True(t, ok)
	assert.Equal(t, selfID, current.ID)
}

func TestProfileCreateRaceRefetches(t *testing.T) {
	h := newHarness(t)
	var gets atomic.Int32
	h.backend.on(http.MethodGet, "/rest/v1/users", func(w http.ResponseWriter, r *http.Request) {
		if gets.Add(1) == 1 {
			writeJSON(w, 406, noRows)
			return
		}
		writeJSON(w, 200, fmt.Sprintf(`{"id":%q,"username":"other-device"}`, selfID))
	})
	h.backend.reply(http.MethodPost, "/rest/v1/users", 409, `{"code":"23505","message":"duplicate key"}`)

	user, err := NewProfile(h.deps).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "other-device", user.Username)
	assert.Equal(t, int32(2), gets.Load())
}

func TestProfileLoadFailureIsNotACreate(t *testing.T) {
	h := newHarness(t)
	h.backend.reply(http.MethodGet, "/rest/v1/users", 500, `{"message":"down"}`)

	p := NewProfile(h.deps)
	_, err := p.Load(context.Background())
	require.Error(t, err)
	assert.Error(t, p.Err())
	assert.Empty(t, h.backend.calls(http.MethodPost, "/rest/v1/users"))
	_, ok := p.Current()
	assert.False(t, ok)
}

func TestProfileUpdatePatchesOwnRow(t *testing.T) {
	h := newHarness(t)
	h.backend.reply(http.MethodGet, "/rest/v1/users", 200, fmt.Sprintf(`{"id":%q,"username":"zoe"}`, selfID))
	h.backend.reply(http.MethodPatch, "/rest/v1/users", 204, ``)

	p := NewProfile(h.deps)
	_, err := p.Load(context.Background())
	require.NoError(t, err)

	bio := "climbs things"
	res, err := p.Update(context.Background(), models.ProfilePatch{Bio: &bio})
	require.NoError(t, err)
	assert.True(t, res.Accepted())

	current, _ := p.Current()
	assert.Equal(t, "climbs things", current.Bio, "the edit shows before the commit lands")

	h.deps.Dispatcher.Wait()
	patches := h.backend.calls(http.MethodPatch, "/rest/v1/users")
	require.Len(t, patches, 1)
	assert.Equal(t, "eq."+selfID, patches[0].query.Get("id"))
	assert.JSONEq(t, `{"bio":"climbs things"}`, patches[0].body)
}

func TestProfileUpdateRolledBackOnFailure(t *testing.T) {
	h := newHarness(t)
	h.backend.reply(http.MethodGet, "/rest/v1/users", 200, fmt.Sprintf(`{"id":%q,"username":"zoe"}`, selfID))
	h.backend.reply(http.MethodPatch, "/rest/v1/users", 409, `{"code":"23505","message":"username taken"}`)

	p := NewProfile(h.deps)
	_, err := p.Load(context.Background())
	require.NoError(t, err)

	name := "taken"
	_, err = p.Update(context.Background(), models.ProfilePatch{Username: &name})
	require.NoError(t, err)
	h.deps.Dispatcher.Wait()

	current, _ := p.Current()
	assert.Equal(t, "zoe", current.Username)
	require.Len(t, h.notices.all(), 1)
	assert.Equal(t, "Update profile", h.notices.all()[0].Label)
}

func TestProfileUpdateValidation(t *testing.T) {
	h := newHarness(t)
	p := NewProfile(h.deps)

	_, err := p.Update(context.Background(), models.ProfilePatch{})
	assert.Error(t, err, "empty patch")

	bio := "x"
	_, err = p.Update(context.Background(), models.ProfilePatch{Bio: &bio})
	assert.Error(t, err, "profile not loaded")
	assert.Empty(t, h.backend.calls(http.MethodPatch, "/rest/v1/users"))
}

func TestUserAnalytics(t *testing.T) {
	h := newHarness(t)
	count := func(n int) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Range", fmt.Sprintf("*/%d", n))
			w.WriteHeader(200)
		}
	}
	h.backend.on(http.MethodHead, "/rest/v1/videos", count(7))
	h.backend.on(http.MethodHead, "/rest/v1/video_likes", count(30))
	h.backend.on(http.MethodHead, "/rest/v1/followers", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("following_id") != "" {
			count(12)(w, r)
			return
		}
		count(4)(w, r)
	})

	stats, err := UserAnalytics(context.Background(), h.deps.Gateway, friendID)
	require.NoError(t, err)
	assert.Equal(t, models.Analytics{UserID: friendID, TotalVideos: 7, TotalLikes: 30, TotalFollowers: 12, TotalFollowing: 4}, stats)

	for _, req := range h.backend.calls(http.MethodHead, "/rest/v1/videos") {
		assert.Equal(t, "eq."+friendID, req.query.Get("user_id"))
		assert.Equal(t, "count=exact", req.header.Get("Prefer"))
	}
}

func TestUserAnalyticsRejectsBadID(t *testing.T) {
	h := newHarness(t)
	_, err := UserAnalytics(context.Background(), h.deps.Gateway, "me")
	assert.Error(t, err)
	assert.Empty(t, h.backend.calls(http.MethodHead, "/rest/v1/videos"))
}
