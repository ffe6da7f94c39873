package models

import "strings"

// Video is a row of videos
type Video struct {
	ID             string       `json:"id"`
	UserID         string       `json:"user_id"`
	ChallengeID    *string      `json:"challenge_id,omitempty"`
	VideoURL       string       `json:"video_url"`
	Title          string       `json:"title"`
	Description    string       `json:"description"`
	Views          int          `json:"views"`
	Likes          int          `json:"likes"`
	IsFlagged      bool         `json:"is_flagged"`
	ScanFlags      []string     `json:"scan_flags"`
	ScanConfidence float64      `json:"scan_confidence"`
	ScanReason     string       `json:"scan_reason"`
	ReviewStatus   ReviewStatus `json:"review_status,omitempty"`
	CreatedAt      Time         `json:"created_at"`
	Owner          *UserSummary `json:"users,omitempty"`
}

func (v Video) Key() string { return v.ID }

func (v Video) Validate() error {
	if err := requireID("video", v.ID); err != nil {
		return err
	}
	if v.UserID == "" {
		return invalid("video", "missing user_id")
	}
	return nil
}

// VideoNewestFirst sorts videos by created_at descending
func VideoNewestFirst(a, b Video) int {
	if c := b.CreatedAt.Compare(a.CreatedAt.Time); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

// NewVideo is the insert body for an uploaded video
type NewVideo struct {
	UserID         string       `json:"user_id"`
	ChallengeID    *string      `json:"challenge_id,omitempty"`
	VideoURL       string       `json:"video_url"`
	Title          string       `json:"title"`
	Description    string       `json:"description"`
	IsFlagged      bool         `json:"is_flagged"`
	ScanFlags      []string     `json:"scan_flags"`
	ScanConfidence float64      `json:"scan_confidence,omitempty"`
	ScanReason     string       `json:"scan_reason,omitempty"`
	ReviewStatus   ReviewStatus `json:"review_status,omitempty"`
}

// VideoLike is a row of video_likes
type VideoLike struct {
	VideoID string `json:"video_id"`
	UserID  string `json:"user_id"`
}

func (l VideoLike) Key() string { return l.VideoID + ":" + l.UserID }

func (l VideoLike) Validate() error {
	if l.VideoID == "" || l.UserID == "" {
		return invalid("video like", "missing video_id or user_id")
	}
	return nil
}

// FeedPost is a video projected for the social feed with per-viewer like state
type FeedPost struct {
	ID        string       `json:"id"`
	UserID    string       `json:"user_id"`
	Content   string       `json:"content"`
	VideoURL  string       `json:"video_url"`
	CreatedAt Time         `json:"created_at"`
	LikeCount int          `json:"like_count"`
	IsLiked   bool         `json:"is_liked"`
	User      *UserSummary `json:"user,omitempty"`
}

func (p FeedPost) Key() string { return p.ID }

func (p FeedPost) Validate() error {
	return requireID("feed post", p.ID)
}

// FeedOrder sorts posts newest first
func FeedOrder(a, b FeedPost) int {
	if c := b.CreatedAt.Compare(a.CreatedAt.Time); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

// PostFromVideo projects a video row into a feed post
func PostFromVideo(v Video) FeedPost {
	content := v.Title
	if content == "" {
		content = v.Description
	}
	return FeedPost{
		ID:        v.ID,
		UserID:    v.UserID,
		Content:   content,
		VideoURL:  v.VideoURL,
		CreatedAt: v.CreatedAt,
		User:      v.Owner,
	}
}
