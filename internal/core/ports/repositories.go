package ports

import (
	"context"

	"camcast/internal/core/domain"
)

// BroadcastRepository is the backing document store for broadcast records.
// Implementations assign IDs and server-side timestamps, keep the
// active/endTime pairing consistent, and enforce at most one active record
// per owner atomically on Create (returning domain.ErrOwnerAlreadyLive).
type BroadcastRepository interface {
	Create(ctx context.Context, record *domain.BroadcastRecord) error
	GetByID(ctx context.Context, id domain.RecordID) (*domain.BroadcastRecord, error)
	// End closes a record. Ending an already-ended record is a no-op.
	End(ctx context.Context, id domain.RecordID) error
	SetThumbnail(ctx context.Context, id domain.RecordID, thumbnail []byte) error
	ListActive(ctx context.Context) ([]*domain.BroadcastRecord, error)
	ListActiveByOwner(ctx context.Context, owner domain.UserID) ([]*domain.BroadcastRecord, error)

	// WatchActive delivers the full current active set, then re-delivers
	// it whenever any matching record changes, until ctx is done. The
	// channel is closed on teardown.
	WatchActive(ctx context.Context) (<-chan domain.LiveSnapshot, error)
	// WatchOwnerActive is WatchActive filtered to one owner's records.
	WatchOwnerActive(ctx context.Context, owner domain.UserID) (<-chan domain.LiveSnapshot, error)
}
