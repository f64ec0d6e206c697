package services

import (
	"sort"
	"time"

	"camcast/internal/core/domain"
)

// BroadcastSummary is the wire shape of one live broadcast row, shared
// by the REST list and the websocket feed. Thumbnails travel through
// their own endpoint; rows only flag their presence.
type BroadcastSummary struct {
	ID              domain.RecordID `json:"id"`
	BroadcasterID   domain.UserID   `json:"broadcaster_id"`
	BroadcasterName string          `json:"broadcaster_name"`
	Title           string          `json:"title"`
	ViewerCount     int             `json:"viewer_count"`
	StartTime       time.Time       `json:"start_time"`
	HasThumbnail    bool            `json:"has_thumbnail"`
	Mine            bool            `json:"mine"`
}

// SummarizeLive projects and flattens a snapshot for delivery. viewer
// may be empty for anonymous consumers; their rows never carry Mine.
func SummarizeLive(snapshot domain.LiveSnapshot, viewer domain.UserID) []BroadcastSummary {
	ordered := ProjectLive(snapshot)
	out := make([]BroadcastSummary, 0, len(ordered))
	for _, r := range ordered {
		out = append(out, BroadcastSummary{
			ID:              r.ID,
			BroadcasterID:   r.BroadcasterID,
			BroadcasterName: r.BroadcasterName,
			Title:           r.Title,
			ViewerCount:     r.ViewerCount,
			StartTime:       r.StartTime,
			HasThumbnail:    len(r.Thumbnail) > 0,
			Mine:            viewer != "" && r.BroadcasterID == viewer,
		})
	}
	return out
}

// ProjectLive derives the display ordering from a mirror snapshot:
// newest broadcasts first, viewer count breaking ties, record id breaking
// the rest so the order is deterministic. The input is not mutated; the
// result is recomputed wholesale on every snapshot.
func ProjectLive(snapshot domain.LiveSnapshot) []*domain.BroadcastRecord {
	out := make([]*domain.BroadcastRecord, len(snapshot))
	copy(out, snapshot)

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.StartTime.Equal(b.StartTime) {
			return a.StartTime.After(b.StartTime)
		}
		if a.ViewerCount != b.ViewerCount {
			return a.ViewerCount > b.ViewerCount
		}
		return a.ID < b.ID
	})

	return out
}
