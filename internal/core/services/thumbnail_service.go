package services

import (
	"bytes"
	"errors"

	"camcast/internal/core/domain"
	"camcast/internal/core/ports"

	"github.com/disintegration/imaging"
)

const (
	// Thumbnails are bounded to fit this box regardless of source size.
	defaultThumbnailWidth  = 320
	defaultThumbnailHeight = 180
	defaultThumbnailQuality = 70
)

type thumbnailEncoder struct {
	maxWidth  int
	maxHeight int
	quality   int
}

// NewThumbnailEncoder creates the thumbnail capture pipeline. Zero bounds
// or quality fall back to the defaults.
func NewThumbnailEncoder(maxWidth, maxHeight, quality int) ports.ThumbnailEncoder {
	if maxWidth <= 0 {
		maxWidth = defaultThumbnailWidth
	}
	if maxHeight <= 0 {
		maxHeight = defaultThumbnailHeight
	}
	if quality <= 0 || quality > 100 {
		quality = defaultThumbnailQuality
	}
	return &thumbnailEncoder{maxWidth: maxWidth, maxHeight: maxHeight, quality: quality}
}

// Capture snapshots the source's current frame into a JPEG bounded by the
// configured box. Sources without a decoded frame yet fail with
// CaptureNotReady; callers await readiness instead of polling here.
func (e *thumbnailEncoder) Capture(source ports.FrameSource) ([]byte, error) {
	frame, err := source.Frame()
	if err != nil {
		if errors.Is(err, domain.ErrFrameNotReady) {
			return nil, &domain.CaptureError{Kind: domain.CaptureNotReady, Cause: err}
		}
		return nil, &domain.CaptureError{Kind: domain.CaptureEncodingFailed, Cause: err}
	}
	if frame == nil {
		return nil, &domain.CaptureError{Kind: domain.CaptureNotReady, Cause: domain.ErrFrameNotReady}
	}

	scaled := imaging.Fit(frame, e.maxWidth, e.maxHeight, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, scaled, imaging.JPEG, imaging.JPEGQuality(e.quality)); err != nil {
		return nil, &domain.CaptureError{Kind: domain.CaptureEncodingFailed, Cause: err}
	}
	return buf.Bytes(), nil
}
