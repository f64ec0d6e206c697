package domain

import (
	"time"
)

type RecordID string
type UserID string

// Identity is the signed-in user on whose behalf a session acts.
type Identity struct {
	ID          UserID
	DisplayName string
}

// BroadcastRecord is the durable remote description of one live broadcast.
// It is owned by the backing store: clients mutate it only through the
// record gateway and otherwise consume it read-only.
type BroadcastRecord struct {
	ID              RecordID   `json:"id"`
	BroadcasterID   UserID     `json:"broadcaster_id"`
	BroadcasterName string     `json:"broadcaster_name"`
	Title           string     `json:"title"`
	Active          bool       `json:"active"`
	ViewerCount     int        `json:"viewer_count"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	Thumbnail       []byte     `json:"thumbnail,omitempty"`
}

// Ended reports whether the record has been terminally closed.
// Active and EndTime are kept consistent by the store: a record is
// either live (Active, EndTime nil) or ended (not Active, EndTime set).
func (r *BroadcastRecord) Ended() bool {
	return !r.Active && r.EndTime != nil
}

// LiveSnapshot is the full set of active records delivered by one
// change-feed notification. Consumers replace their previous snapshot
// wholesale; it is never patched incrementally.
type LiveSnapshot []*BroadcastRecord
