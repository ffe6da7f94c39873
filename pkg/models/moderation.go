package models

import (
	"fmt"
	"strings"
)

// ReportStatus is the moderation state of a report
type ReportStatus string

const (
	ReportPending   ReportStatus = "pending"
	ReportReviewed  ReportStatus = "reviewed"
	ReportResolved  ReportStatus = "resolved"
	ReportDismissed ReportStatus = "dismissed"
)

// ReportStatuses lists every status in tab order
var ReportStatuses = []ReportStatus{ReportPending, ReportReviewed, ReportResolved, ReportDismissed}

var reportTransitions = map[ReportStatus][]ReportStatus{
	ReportPending:  {ReportReviewed, ReportResolved, ReportDismissed},
	ReportReviewed: {ReportResolved, ReportDismissed},
}

// Valid reports whether s is a known status
func (s ReportStatus) Valid() bool {
	for _, known := range ReportStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is allowed
func (s ReportStatus) Terminal() bool {
	return s == ReportResolved || s == ReportDismissed
}

// CanTransition checks the report state machine
func (s ReportStatus) CanTransition(to ReportStatus) error {
	for _, allowed := range reportTransitions[s] {
		if allowed == to {
			return nil
		}
	}
	return fmt.Errorf("%w: report %s -> %s", ErrInvalidTransition, s, to)
}

// Profile is the username/avatar embed used on moderation rows
type Profile struct {
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// ReportedVideo is the video embed on a report
type ReportedVideo struct {
	Title        string `json:"title"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
}

// Report is a row of reports with its embeds
type Report struct {
	ID             string         `json:"id"`
	ReporterID     string         `json:"reporter_id"`
	ReportedUserID string         `json:"reported_user_id"`
	VideoID        *string        `json:"video_id,omitempty"`
	Reason         string         `json:"reason"`
	Description    string         `json:"description"`
	Status         ReportStatus   `json:"status"`
	CreatedAt      Time           `json:"created_at"`
	ReviewedAt     *Time          `json:"reviewed_at,omitempty"`
	ReviewedBy     *string        `json:"reviewed_by,omitempty"`
	Reporter       *Profile       `json:"reporter,omitempty"`
	ReportedUser   *Profile       `json:"reported_user,omitempty"`
	Video          *ReportedVideo `json:"video,omitempty"`
}

func (r Report) Key() string { return r.ID }

func (r Report) Validate() error {
	if err := requireID("report", r.ID); err != nil {
		return err
	}
	if !r.Status.Valid() {
		return invalid("report", "unknown status "+string(r.Status))
	}
	return nil
}

// ReportNewestFirst sorts reports by created_at descending
func ReportNewestFirst(a, b Report) int {
	if c := b.CreatedAt.Compare(a.CreatedAt.Time); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

// ReportStatusPatch is the update body for a status change
type ReportStatusPatch struct {
	Status     ReportStatus `json:"status"`
	ReviewedAt Time         `json:"reviewed_at"`
	ReviewedBy string       `json:"reviewed_by"`
}

// NewReport is the insert body for a user-filed report
type NewReport struct {
	ReporterID     string  `json:"reporter_id"`
	ReportedUserID string  `json:"reported_user_id"`
	VideoID        *string `json:"video_id,omitempty"`
	Reason         string  `json:"reason"`
	Description    string  `json:"description"`
}

// Validate rejects incomplete reports before any network call
func (r NewReport) Validate() error {
	if r.ReportedUserID == "" {
		return invalid("report", "missing reported user")
	}
	if strings.TrimSpace(r.Reason) == "" {
		return invalid("report", "missing reason")
	}
	return nil
}

// ReviewStatus is the moderation state of a flagged video
type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "pending"
	ReviewApproved ReviewStatus = "approved"
	ReviewRejected ReviewStatus = "rejected"
)

// CanTransition allows pending to become approved or rejected. Both are terminal.
func (s ReviewStatus) CanTransition(to ReviewStatus) error {
	if s == ReviewPending && (to == ReviewApproved || to == ReviewRejected) {
		return nil
	}
	return fmt.Errorf("%w: review %s -> %s", ErrInvalidTransition, s, to)
}

// FlaggedVideo is a videos row surfaced in the content review queue
type FlaggedVideo struct {
	ID             string       `json:"id"`
	UserID         string       `json:"user_id"`
	Title          string       `json:"title"`
	VideoURL       string       `json:"video_url"`
	IsFlagged      bool         `json:"is_flagged"`
	ScanFlags      []string     `json:"scan_flags"`
	ScanConfidence float64      `json:"scan_confidence"`
	ScanReason     string       `json:"scan_reason"`
	ReviewStatus   ReviewStatus `json:"review_status"`
	CreatedAt      Time         `json:"created_at"`
}

func (v FlaggedVideo) Key() string { return v.ID }

func (v FlaggedVideo) Validate() error {
	if err := requireID("flagged video", v.ID); err != nil {
		return err
	}
	switch v.ReviewStatus {
	case ReviewPending, ReviewApproved, ReviewRejected:
	default:
		return invalid("flagged video", "unknown review status "+string(v.ReviewStatus))
	}
	return nil
}

// FlaggedNewestFirst sorts flagged videos by created_at descending
func FlaggedNewestFirst(a, b FlaggedVideo) int {
	if c := b.CreatedAt.Compare(a.CreatedAt.Time); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

// ReviewPatch is the update body for a flagged video decision
type ReviewPatch struct {
	ReviewStatus ReviewStatus `json:"review_status"`
	ReviewedAt   Time         `json:"reviewed_at"`
	ReviewedBy   string       `json:"reviewed_by"`
}

// ModerationStats summarizes the moderation dashboard
type ModerationStats struct {
	TotalReports    int     `json:"totalReports"`
	PendingReports  int     `json:"pendingReports"`
	ResolvedReports int     `json:"resolvedReports"`
	TotalUsers      int     `json:"totalUsers"`
	FlaggedContent  int     `json:"flaggedContent"`
	TotalVideos     int     `json:"totalVideos"`
	ResolutionRate  float64 `json:"resolutionRate"`
	FlaggedRate     float64 `json:"flaggedRate"`
}
