package ports

import (
	"context"
	"image"

	"camcast/internal/core/domain"
)

// CaptureDevices is the local capture inventory collaborator.
type CaptureDevices interface {
	Enumerate(ctx context.Context) ([]domain.DeviceInfo, error)
	// Open acquires a stream satisfying the profile. Failures are
	// classified *domain.DeviceError values.
	Open(ctx context.Context, profile domain.ConstraintProfile) (DeviceHandle, error)
}

// DeviceHandle owns an acquired capture stream. The holder must call
// Stop exactly once on every exit path; there is no implicit timeout.
type DeviceHandle interface {
	FrameSource
	Stop()
	Stopped() bool
}

// FrameSource exposes the most recently decoded frame. Frame returns
// domain.ErrFrameNotReady until the stream has warmed up.
type FrameSource interface {
	Frame() (image.Image, error)
}
