package models

import (
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeLayouts(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2024-03-01T10:00:00Z", time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)},
		{"2024-03-01T12:00:00.5+02:00", time.Date(2024, 3, 1, 10, 0, 0, 500000000, time.UTC)},
		{"2024-03-01T10:00:00.123456", time.Date(2024, 3, 1, 10, 0, 0, 123456000, time.UTC)},
		{"2024-03-01 10:00:00", time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTime(tt.in)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got.Time), "got %s", got)
		})
	}

	_, err := ParseTime("yesterday")
	assert.Error(t, err)
}

func TestTimeJSONNull(t *testing.T) {
	var c LiveChallenge
	require.NoError(t, json.Unmarshal([]byte(`{"id":"a","status":"active","start_time":null,"end_time":null}`), &c))

	assert.True(t, c.StartTime.IsZero())
	assert.Nil(t, c.EndTime)
}

func TestChatMessageDecodeWithEmbed(t *testing.T) {
	raw := `{"id":"m1","room_id":"r","user_id":"u","message":"hi","created_at":"2024-03-01T10:00:00Z","users":{"username":"zoe"}}`

	var m ChatMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &m))

	assert.Equal(t, "hi", m.Text)
	assert.Equal(t, "zoe", m.AuthorDisplay())
	assert.NoError(t, m.Validate())
}

func TestAuthorDisplayFallback(t *testing.T) {
	assert.Equal(t, FallbackAuthor, ChatMessage{}.AuthorDisplay())
	assert.Equal(t, FallbackAuthor, ChatMessage{Author: &Author{Username: " "}}.AuthorDisplay())
}

func TestValidateRejectsShapelessRows(t *testing.T) {
	records := []Record{
		ChatMessage{},
		Notification{ID: "n"},
		LiveChallenge{ID: "c", Status: "paused"},
		Report{ID: "r", Status: "open"},
		FlaggedVideo{ID: "v"},
		Video{ID: "v"},
		DareSuggestion{ID: "d"},
		VideoLike{VideoID: "v"},
	}

	for _, r := range records {
		err := r.Validate()
		assert.ErrorIs(t, err, ErrInvalidRecord, "%T", r)
	}
}

func TestReportTransitions(t *testing.T) {
	tests := []struct {
		from, to ReportStatus
		ok       bool
	}{
		{ReportPending, ReportReviewed, true},
		{ReportPending, ReportResolved, true},
		{ReportPending, ReportDismissed, true},
		{ReportReviewed, ReportResolved, true},
		{ReportReviewed, ReportDismissed, true},
		{ReportReviewed, ReportPending, false},
		{ReportResolved, ReportDismissed, false},
		{ReportDismissed, ReportReviewed, false},
		{ReportPending, ReportPending, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			err := tt.from.CanTransition(tt.to)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, ErrInvalidTransition))
			}
		})
	}

	assert.True(t, ReportResolved.Terminal())
	assert.False(t, ReportReviewed.Terminal())
}

func TestReviewTransitions(t *testing.T) {
	assert.NoError(t, ReviewPending.CanTransition(ReviewApproved))
	assert.NoError(t, ReviewPending.CanTransition(ReviewRejected))
	assert.ErrorIs(t, ReviewApproved.CanTransition(ReviewRejected), ErrInvalidTransition)
	assert.ErrorIs(t, ReviewRejected.CanTransition(ReviewPending), ErrInvalidTransition)
}

func TestLiveChallengeCapacity(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	end := NewTime(now.Add(-time.Minute))

	c := LiveChallenge{ID: "c", Status: ChallengeActive, MaxParticipants: 2, CurrentParticipants: 2, EndTime: &end}

	assert.True(t, c.Full())
	assert.True(t, c.Ended(now))
	assert.False(t, LiveChallenge{MaxParticipants: 0, CurrentParticipants: 9}.Full())
	assert.True(t, c.Matches(""))
}

func TestOrderings(t *testing.T) {
	t0 := NewTime(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))
	t1 := NewTime(t0.Add(time.Minute))

	msgs := []ChatMessage{{ID: "b", CreatedAt: t1}, {ID: "a", CreatedAt: t0}}
	sort.Slice(msgs, func(i, j int) bool { return ChatOrder(msgs[i], msgs[j]) < 0 })
	assert.Equal(t, "a", msgs[0].ID)

	notes := []Notification{{ID: "a", CreatedAt: t0}, {ID: "b", CreatedAt: t1}}
	sort.Slice(notes, func(i, j int) bool { return NewestFirst(notes[i], notes[j]) < 0 })
	assert.Equal(t, "b", notes[0].ID)
}

func TestIsUUID(t *testing.T) {
	assert.True(t, IsUUID(uuid.NewString()))
	assert.False(t, IsUUID("general"))
	assert.False(t, IsUUID("challenges"))
	assert.False(t, IsUUID(""))
}

func TestFallbackDares(t *testing.T) {
	dares := FallbackDares()
	require.Len(t, dares, 3)

	for _, d := range dares {
		assert.True(t, d.Fallback)
		assert.NoError(t, d.Validate())
	}
	assert.Equal(t, "Local Coffee Shop Challenge", dares[0].Title)
	assert.Equal(t, 112, dares[1].Score)
}

func TestPostFromVideo(t *testing.T) {
	p := PostFromVideo(Video{ID: "v", Description: "desc only"})
	assert.Equal(t, "desc only", p.Content)

	p = PostFromVideo(Video{ID: "v", Title: "title", Description: "desc"})
	assert.Equal(t, "title", p.Content)
}

func TestRecommendationReason(t *testing.T) {
	assert.Equal(t, "Followed by people you follow", RecommendationReason(3, 0))
	assert.Equal(t, "Followed by someone you follow", RecommendationReason(1, 0))
	assert.Equal(t, "Popular on the platform", RecommendationReason(0, 10))
	assert.Equal(t, "New to the platform", RecommendationReason(0, 0))
}

func TestProfileFor(t *testing.T) {
	assert.Equal(t, "zoe", ProfileFor("u1", "zoe@example.com").Username)
	assert.Equal(t, "User", ProfileFor("u1", "").Username)
	assert.Equal(t, "User", ProfileFor("u1", "@example.com").Username)
}

func TestProfilePatch(t *testing.T) {
	name, bio := "  zed ", "rock climber"
	p := ProfilePatch{Username: &name, Bio: &bio}
	require.NoError(t, p.Validate())

	u := p.Merge(User{ID: "u1", Username: "zoe", FullName: "Zoe Q"})
	assert.Equal(t, "zed", u.Username)
	assert.Equal(t, "rock climber", u.Bio)
	assert.Equal(t, "Zoe Q", u.FullName, "nil fields are left alone")

	assert.ErrorIs(t, ProfilePatch{}.Validate(), ErrInvalidRecord)

	blank := " "
	assert.ErrorIs(t, ProfilePatch{Username: &blank}.Validate(), ErrInvalidRecord)

	long := strings.Repeat("é", MaxBioLength)
	require.NoError(t, ProfilePatch{Bio: &long}.Validate())
	long += "é"
	assert.ErrorIs(t, ProfilePatch{Bio: &long}.Validate(), ErrInvalidRecord)
}
