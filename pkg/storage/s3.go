// Package storage puts recorded video blobs into S3-compatible object storage.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/zfogg/daredrop/pkg/config"
	"github.com/zfogg/daredrop/pkg/logger"
)

// S3Uploader handles video uploads to an S3-compatible bucket
type S3Uploader struct {
	client    *s3.Client
	bucket    string
	region    string
	publicURL string
	now       func() time.Time
}

// UploadResult contains the result of an upload
type UploadResult struct {
	Key    string `json:"key"`
	URL    string `json:"url"`
	Bucket string `json:"bucket"`
	Region string `json:"region"`
	Size   int64  `json:"size"`
}

// Options configures an S3Uploader
type Options struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	PublicURL string
	PathStyle bool
}

// NewS3Uploader creates an uploader. Empty credentials fall back to the default AWS chain.
func NewS3Uploader(ctx context.Context, opts Options) (*S3Uploader, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(opts.Region)}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.PathStyle
	})

	return &S3Uploader{
		client:    client,
		bucket:    opts.Bucket,
		region:    opts.Region,
		publicURL: strings.TrimSuffix(opts.PublicURL, "/"),
		now:       time.Now,
	}, nil
}

// NewFromConfig creates an uploader from storage.* configuration. Without
// storage.public_url, public links point at the gateway's public object path.
func NewFromConfig(ctx context.Context) (*S3Uploader, error) {
	bucket := config.GetString("storage.bucket")
	publicURL := config.GetString("storage.public_url")
	if publicURL == "" {
		publicURL = fmt.Sprintf("%s/storage/v1/object/public/%s",
			strings.TrimSuffix(config.GetString("api.base_url"), "/"), bucket)
	}
	endpoint := config.GetString("storage.endpoint")
	if endpoint == "" {
		endpoint = strings.TrimSuffix(config.GetString("api.base_url"), "/") + "/storage/v1/s3"
	}

	return NewS3Uploader(ctx, Options{
		Endpoint:  endpoint,
		Region:    config.GetString("storage.region"),
		Bucket:    bucket,
		AccessKey: config.GetString("storage.access_key"),
		SecretKey: config.GetString("storage.secret_key"),
		PublicURL: publicURL,
		PathStyle: config.GetBool("storage.path_style"),
	})
}

// VideoKey namespaces a recording by user, challenge and upload time
func VideoKey(userID, challengeID string, at time.Time) string {
	return fmt.Sprintf("%s/%s/%d.webm", userID, challengeID, at.UnixMilli())
}

// UploadVideo stores a recorded video and returns its public URL
func (u *S3Uploader) UploadVideo(ctx context.Context, data []byte, userID, challengeID string) (*UploadResult, error) {
	if userID == "" || challengeID == "" {
		return nil, fmt.Errorf("user and challenge are required")
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("video is empty")
	}

	now := u.now()
	key := VideoKey(userID, challengeID, now)

	putObjectInput := &s3.PutObjectInput{
		Bucket:       aws.String(u.bucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(data),
		ContentType:  aws.String(getContentType(filepath.Ext(key))),
		CacheControl: aws.String("max-age=3600"),
		Metadata: map[string]string{
			"user-id":          userID,
			"challenge-id":     challengeID,
			"upload-timestamp": now.Format(time.RFC3339),
			"file-type":        "video",
		},
	}

	logger.Debug("Uploading video", "bucket", u.bucket, "key", key, "size", len(data))

	if _, err := u.client.PutObject(ctx, putObjectInput); err != nil {
		return nil, fmt.Errorf("failed to upload video: %w", err)
	}

	return &UploadResult{
		Key:    key,
		URL:    u.PublicURL(key),
		Bucket: u.bucket,
		Region: u.region,
		Size:   int64(len(data)),
	}, nil
}

// PublicURL returns the playback URL of key
func (u *S3Uploader) PublicURL(key string) string {
	return fmt.Sprintf("%s/%s", u.publicURL, key)
}

// Delete removes an object
func (u *S3Uploader) Delete(ctx context.Context, key string) error {
	_, err := u.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete video: %w", err)
	}
	logger.Debug("Deleted video", "bucket", u.bucket, "key", key)
	return nil
}

// CheckBucketAccess verifies that we can access the bucket
func (u *S3Uploader) CheckBucketAccess(ctx context.Context) error {
	_, err := u.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(u.bucket),
	})
	if err != nil {
		return fmt.Errorf("cannot access bucket %s: %w", u.bucket, err)
	}
	return nil
}

// getContentType returns the MIME type for recorded video extensions
func getContentType(extension string) string {
	switch strings.ToLower(extension) {
	case ".webm":
		return "video/webm"
	case ".mp4":
		return "video/mp4"
	case ".mov":
		return "video/quicktime"
	default:
		return "application/octet-stream"
	}
}
