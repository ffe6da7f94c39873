// Package contentgate scans user content before it is published and decides
// whether it may be persisted, persisted with a review marker, or refused.
package contentgate

import (
	"context"
	"errors"
	"fmt"

	"github.com/zfogg/daredrop/pkg/gateway"
	"github.com/zfogg/daredrop/pkg/logger"
)

// ErrScanUnavailable wraps every failure to obtain a verdict
var ErrScanUnavailable = errors.New("content scan unavailable")

// ContentType is what is being scanned
type ContentType string

const (
	ContentText  ContentType = "text"
	ContentVideo ContentType = "video"
)

// Request is the body of the scanning endpoint
type Request struct {
	Content  string      `json:"content"`
	Type     ContentType `json:"type"`
	VideoURL string      `json:"videoUrl,omitempty"`
}

// Verdict is the scanner's classification
type Verdict struct {
	IsHarmful   bool     `json:"isHarmful"`
	IsNSFW      bool     `json:"isNSFW"`
	IsDangerous bool     `json:"isDangerous"`
	Confidence  float64  `json:"confidence"`
	Flags       []string `json:"flags"`
	Reason      string   `json:"reason"`
}

// Scanner classifies content
type Scanner interface {
	Scan(ctx context.Context, req Request) (Verdict, error)
}

// HTTPScanner calls the scanning edge function through the gateway
type HTTPScanner struct {
	client   *gateway.Client
	function string
}

// NewHTTPScanner creates a scanner for the named function
func NewHTTPScanner(client *gateway.Client, function string) *HTTPScanner {
	return &HTTPScanner{client: client, function: function}
}

// Scan posts req and decodes the verdict. Any transport failure, non-2xx
// status or malformed verdict is returned as ErrScanUnavailable.
func (s *HTTPScanner) Scan(ctx context.Context, req Request) (Verdict, error) {
	if req.Type != ContentText && req.Type != ContentVideo {
		return Verdict{}, fmt.Errorf("unknown content type %q", req.Type)
	}
	if req.Type == ContentVideo && req.VideoURL == "" {
		return Verdict{}, fmt.Errorf("video scan requires a video url")
	}

	logger.Debug("Scanning content", "type", req.Type, "function", s.function)

	var v Verdict
	if err := s.client.Invoke(ctx, s.function, req, &v); err != nil {
		return Verdict{}, fmt.Errorf("%w: %v", ErrScanUnavailable, err)
	}
	if v.Confidence < 0 || v.Confidence > 1 {
		return Verdict{}, fmt.Errorf("%w: confidence %v out of range", ErrScanUnavailable, v.Confidence)
	}
	return v, nil
}
