package ports

import (
	"context"

	"camcast/internal/core/domain"
)

// BroadcastGateway is the only component permitted to mutate broadcast
// records. Each call is a single remote operation with no client-side
// retry; retries belong to the transport layer underneath the repository.
type BroadcastGateway interface {
	CreateRecord(ctx context.Context, identity domain.Identity, title string) (domain.RecordID, error)
	EndRecord(ctx context.Context, id domain.RecordID) error
	UpdateThumbnail(ctx context.Context, id domain.RecordID, image []byte) error
	FetchRecord(ctx context.Context, id domain.RecordID) (*domain.BroadcastRecord, error)
	// SweepActiveRecordsForIdentity ends every active record owned by
	// identity, restoring the at-most-one invariant after crashes.
	SweepActiveRecordsForIdentity(ctx context.Context, identity domain.UserID) error
}

// IdentityProvider supplies the signed-in identity and change
// notifications. Sign-in events are inert to sessions; sign-out drives
// forced broadcast teardown.
type IdentityProvider interface {
	Current() (domain.Identity, bool)
	Watch(ctx context.Context) <-chan domain.IdentityEvent
}

// DeviceNegotiator acquires and owns the local capture handle.
type DeviceNegotiator interface {
	Acquire(ctx context.Context) (DeviceHandle, error)
	Held() (DeviceHandle, bool)
	Release()
}

// ThumbnailEncoder snapshots the current frame of a source into a
// compact encoded still image.
type ThumbnailEncoder interface {
	Capture(source FrameSource) ([]byte, error)
}
