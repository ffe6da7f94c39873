package storage

import "context"

// VideoStore is the object storage used by video uploads
type VideoStore interface {
	UploadVideo(ctx context.Context, data []byte, userID, challengeID string) (*UploadResult, error)
	Delete(ctx context.Context, key string) error
}

// Ensure S3Uploader implements VideoStore
var _ VideoStore = (*S3Uploader)(nil)
