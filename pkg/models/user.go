package models

import (
	"strings"
	"unicode/utf8"
)

const (
	// MaxBioLength bounds the profile bio
	MaxBioLength = 280

	// MaxUsernameLength bounds a username
	MaxUsernameLength = 30

	defaultUsername = "User"
)

// User is a row of users
type User struct {
	ID                  string `json:"id"`
	Username            string `json:"username"`
	FullName            string `json:"full_name,omitempty"`
	Bio                 string `json:"bio,omitempty"`
	AvatarURL           string `json:"avatar_url,omitempty"`
	Points              int    `json:"points,omitempty"`
	ChallengesCompleted int    `json:"challenges_completed,omitempty"`
	CreatedAt           Time   `json:"created_at"`
}

func (u User) Key() string { return u.ID }

func (u User) Validate() error {
	return requireID("user", u.ID)
}

// NewProfile is the users row created on first sign-in
type NewProfile struct {
	ID                  string `json:"id"`
	Username            string `json:"username"`
	Bio                 string `json:"bio"`
	Points              int    `json:"points"`
	ChallengesCompleted int    `json:"challenges_completed"`
}

// ProfileFor builds the first users row for an account. The username is the
// local part of the email.
func ProfileFor(userID, email string) NewProfile {
	name, _, _ := strings.Cut(email, "@")
	name = strings.TrimSpace(name)
	if name == "" {
		name = defaultUsername
	}
	return NewProfile{ID: userID, Username: name}
}

// ProfilePatch is a partial update of the signed-in user's row. Nil fields
// are left alone.
type ProfilePatch struct {
	Username  *string `json:"username,omitempty"`
	FullName  *string `json:"full_name,omitempty"`
	Bio       *string `json:"bio,omitempty"`
	AvatarURL *string `json:"avatar_url,omitempty"`
}

// Empty reports whether the patch changes nothing
func (p ProfilePatch) Empty() bool {
	return p.Username == nil && p.FullName == nil && p.Bio == nil && p.AvatarURL == nil
}

func (p ProfilePatch) Validate() error {
	if p.Empty() {
		return invalid("profile", "nothing to update")
	}
	if p.Username != nil {
		name := strings.TrimSpace(*p.Username)
		if name == "" {
			return invalid("profile", "username is empty")
		}
		if utf8.RuneCountInString(name) > MaxUsernameLength {
			return invalid("profile", "username is too long")
		}
	}
	if p.Bio != nil && utf8.RuneCountInString(*p.Bio) > MaxBioLength {
		return invalid("profile", "bio is too long")
	}
	return nil
}

// Merge returns u with the patch applied
func (p ProfilePatch) Merge(u User) User {
	if p.Username != nil {
		u.Username = strings.TrimSpace(*p.Username)
	}
	if p.FullName != nil {
		u.FullName = *p.FullName
	}
	if p.Bio != nil {
		u.Bio = *p.Bio
	}
	if p.AvatarURL != nil {
		u.AvatarURL = *p.AvatarURL
	}
	return u
}

// Analytics are the creator counters for one user
type Analytics struct {
	UserID         string `json:"userId"`
	TotalVideos    int    `json:"totalVideos"`
	TotalLikes     int    `json:"totalLikes"`
	TotalFollowers int    `json:"totalFollowers"`
	TotalFollowing int    `json:"totalFollowing"`
}

// UserSummary is the users embed on videos and feed posts
type UserSummary struct {
	Username  string `json:"username"`
	FullName  string `json:"full_name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Follow is a row of followers
type Follow struct {
	FollowerID  string `json:"follower_id"`
	FollowingID string `json:"following_id"`
}

func (f Follow) Key() string { return f.FollowerID + ":" + f.FollowingID }

func (f Follow) Validate() error {
	if f.FollowerID == "" || f.FollowingID == "" {
		return invalid("follow", "missing follower_id or following_id")
	}
	return nil
}

// RecommendedUser is a user suggested to follow, with the reason it was picked
type RecommendedUser struct {
	User
	MutualFriends int    `json:"mutual_friends"`
	FollowerCount int    `json:"follower_count"`
	Reason        string `json:"reason"`
}

// MostMutual sorts recommendations by mutual friend count, then username
func MostMutual(a, b RecommendedUser) int {
	if a.MutualFriends != b.MutualFriends {
		return b.MutualFriends - a.MutualFriends
	}
	if c := strings.Compare(a.Username, b.Username); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

// RecommendationReason picks a display reason for a recommendation
func RecommendationReason(mutual, followers int) string {
	switch {
	case mutual > 1:
		return "Followed by people you follow"
	case mutual == 1:
		return "Followed by someone you follow"
	case followers > 0:
		return "Popular on the platform"
	default:
		return "New to the platform"
	}
}
