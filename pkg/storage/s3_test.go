package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetContentType(t *testing.T) {
	tests := []struct {
		extension string
		expected  string
	}{
		{".webm", "video/webm"},
		{".WEBM", "video/webm"},
		{".mp4", "video/mp4"},
		{".mov", "video/quicktime"},
		{".unknown", "application/octet-stream"},
		{"", "application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.extension, func(t *testing.T) {
			assert.Equal(t, tt.expected, getContentType(tt.extension))
		})
	}
}

func TestVideoKey(t *testing.T) {
	at := time.UnixMilli(1700000000123)
	assert.Equal(t, "u1/c1/1700000000123.webm", VideoKey("u1", "c1", at))
}

type objectRequest struct {
	method      string
	path        string
	contentType string
	body        int
}

type fakeObjectStore struct {
	mu   sync.Mutex
	reqs []objectRequest
}

func (f *fakeObjectStore) handler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.reqs = append(f.reqs, objectRequest{
		method:      r.Method,
		path:        r.URL.Path,
		contentType: r.Header.Get("Content-Type"),
		body:        len(body),
	})
	f.mu.Unlock()

	switch r.Method {
	case http.MethodDelete:
		w.WriteHeader(http.StatusNoContent)
	default:
		w.Header().Set("ETag", `"abc"`)
		w.WriteHeader(http.StatusOK)
	}
}

func newTestUploader(t *testing.T) (*S3Uploader, *fakeObjectStore) {
	t.Helper()
	store := &fakeObjectStore{}
	srv := httptest.NewServer(http.HandlerFunc(store.handler))
	t.Cleanup(srv.Close)

	u, err := NewS3Uploader(context.Background(), Options{
		Endpoint:  srv.URL,
		Region:    "us-east-1",
		Bucket:    "videos",
		AccessKey: "test",
		SecretKey: "test",
		PublicURL: "https://cdn.example.co/videos/",
		PathStyle: true,
	})
	require.NoError(t, err)
	u.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return u, store
}

func TestUploadVideo(t *testing.T) {
	u, store := newTestUploader(t)

	res, err := u.UploadVideo(context.Background(), []byte("webm-bytes"), "u1", "c1")
	require.NoError(t, err)

	assert.Equal(t, "u1/c1/1700000000000.webm", res.Key)
	assert.Equal(t, "https://cdn.example.co/videos/u1/c1/1700000000000.webm", res.URL)
	assert.Equal(t, int64(10), res.Size)
	assert.Equal(t, "videos", res.Bucket)

	require.Len(t, store.reqs, 1)
	assert.Equal(t, http.MethodPut, store.reqs[0].method)
	assert.Equal(t, "/videos/u1/c1/1700000000000.webm", store.reqs[0].path)
	assert.Equal(t, "video/webm", store.reqs[0].contentType)
}

func TestUploadVideoValidates(t *testing.T) {
	u, store := newTestUploader(t)

	_, err := u.UploadVideo(context.Background(), nil, "u1", "c1")
	assert.Error(t, err)
	_, err = u.UploadVideo(context.Background(), []byte("x"), "", "c1")
	assert.Error(t, err)
	assert.Empty(t, store.reqs)
}

func TestDelete(t *testing.T) {
	u, store := newTestUploader(t)

	require.NoError(t, u.Delete(context.Background(), "u1/c1/1.webm"))

	require.Len(t, store.reqs, 1)
	assert.Equal(t, http.MethodDelete, store.reqs[0].method)
	assert.Equal(t, "/videos/u1/c1/1.webm", store.reqs[0].path)
}
