package service

import (
	"context"

	"github.com/zfogg/daredrop/pkg/contentgate"
	clierrors "github.com/zfogg/daredrop/pkg/errors"
	"github.com/zfogg/daredrop/pkg/logger"
	"github.com/zfogg/daredrop/pkg/models"
	"github.com/zfogg/daredrop/pkg/storage"
)

const (
	uploadTitleDate   = "1/2/2006"
	uploadDescription = "Challenge completion video"
)

// VideoUpload stores a recorded challenge video, scans it and publishes it
type VideoUpload struct {
	deps  Deps
	store storage.VideoStore
}

// NewVideoUpload creates an uploader backed by store
func NewVideoUpload(deps Deps, store storage.VideoStore) *VideoUpload {
	return &VideoUpload{deps: deps, store: store}
}

// UploadResult is what an upload produced
type UploadResult struct {
	Key     string
	URL     string
	Outcome contentgate.Outcome
	Video   *models.Video
}

// Upload stores data, scans the stored object and inserts the videos row with
// the scan marker. The object is deleted whenever the row is not inserted.
func (u *VideoUpload) Upload(ctx context.Context, data []byte, challengeID string) (*UploadResult, error) {
	if len(data) == 0 {
		return nil, clierrors.ValidationError("video", "video is empty")
	}
	if !models.IsUUID(challengeID) {
		return nil, clierrors.ValidationError("challenge", "challenge must be a challenge id")
	}

	userID := u.deps.Session.UserID
	stored, err := u.store.UploadVideo(ctx, data, userID, challengeID)
	if err != nil {
		return nil, err
	}
	logger.Info("Video stored", "key", stored.Key, "size", stored.Size)

	result := &UploadResult{Key: stored.Key, URL: stored.URL}
	outcome, err := u.deps.Gate.Submit(ctx, contentgate.Submission{
		Request: contentgate.Request{Type: contentgate.ContentVideo, VideoURL: stored.URL},
		Persist: func(ctx context.Context, m contentgate.Marker) error {
			row := models.NewVideo{
				UserID:         userID,
				ChallengeID:    &challengeID,
				VideoURL:       stored.URL,
				Title:          "Challenge Video - " + u.deps.now().Format(uploadTitleDate),
				Description:    uploadDescription,
				IsFlagged:      m.Flagged,
				ScanFlags:      nonNil(m.Flags),
				ScanConfidence: m.Confidence,
				ScanReason:     m.Reason,
			}
			if m.Flagged {
				row.ReviewStatus = models.ReviewPending
			}
			var created []models.Video
			if err := u.deps.Gateway.From(videosTable).Insert(ctx, row, &created); err != nil {
				return err
			}
			if len(created) > 0 {
				result.Video = &created[0]
			}
			return nil
		},
		Compensate: func(ctx context.Context) error {
			return u.store.Delete(ctx, stored.Key)
		},
	})
	result.Outcome = outcome
	return result, err
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
