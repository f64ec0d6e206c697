package services

import (
	"context"
	"testing"
	"time"

	"camcast/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func testRecord(id domain.RecordID, owner domain.UserID) *domain.BroadcastRecord {
	return &domain.BroadcastRecord{
		ID:            id,
		BroadcasterID: owner,
		Title:         "broadcast " + string(id),
		Active:        true,
		StartTime:     time.Now(),
	}
}

func receiveSnapshot(t *testing.T, ch <-chan domain.LiveSnapshot) domain.LiveSnapshot {
	t.Helper()
	select {
	case snapshot, ok := <-ch:
		require.True(t, ok, "subscriber channel closed unexpectedly")
		return snapshot
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a snapshot")
		return nil
	}
}

func TestMirrorPublishesToSubscribers(t *testing.T) {
	mirror := NewMirror(zaptest.NewLogger(t).Sugar())
	feed := make(chan domain.LiveSnapshot)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mirror.Run(ctx, feed)

	updates, unsubscribe := mirror.Subscribe()
	defer unsubscribe()

	feed <- domain.LiveSnapshot{testRecord("rec-1", "user-1")}

	snapshot := receiveSnapshot(t, updates)
	require.Len(t, snapshot, 1)
	assert.Equal(t, domain.RecordID("rec-1"), snapshot[0].ID)
}

func TestMirrorSubscribePrimesWithCurrentSnapshot(t *testing.T) {
	mirror := NewMirror(zaptest.NewLogger(t).Sugar())
	feed := make(chan domain.LiveSnapshot, 1)
	feed <- domain.LiveSnapshot{testRecord("rec-1", "user-1")}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mirror.Run(ctx, feed)

	// Wait for the mirror to absorb the first snapshot.
	require.Eventually(t, func() bool {
		_, primed := mirror.Snapshot()
		return primed
	}, 2*time.Second, 5*time.Millisecond, "mirror never primed")

	updates, unsubscribe := mirror.Subscribe()
	defer unsubscribe()

	snapshot := receiveSnapshot(t, updates)
	require.Len(t, snapshot, 1)
	assert.Equal(t, domain.RecordID("rec-1"), snapshot[0].ID)
}

func TestMirrorCoalescesForSlowSubscribers(t *testing.T) {
	mirror := NewMirror(zaptest.NewLogger(t).Sugar())

	updates, unsubscribe := mirror.Subscribe()
	defer unsubscribe()

	// Publish twice without the subscriber draining; only the latest
	// snapshot must be delivered.
	mirror.publish(domain.LiveSnapshot{testRecord("rec-1", "user-1")})
	mirror.publish(domain.LiveSnapshot{testRecord("rec-2", "user-2")})

	snapshot := receiveSnapshot(t, updates)
	require.Len(t, snapshot, 1)
	assert.Equal(t, domain.RecordID("rec-2"), snapshot[0].ID, "only the latest snapshot is delivered")

	select {
	case extra := <-updates:
		t.Errorf("unexpected queued snapshot %v", extra)
	default:
	}
}

func TestMirrorSnapshotReportsPrimed(t *testing.T) {
	mirror := NewMirror(zaptest.NewLogger(t).Sugar())

	_, primed := mirror.Snapshot()
	assert.False(t, primed, "fresh mirror must not report primed")

	mirror.publish(domain.LiveSnapshot{})

	snapshot, primed := mirror.Snapshot()
	assert.True(t, primed, "mirror must report primed after the first snapshot")
	assert.Empty(t, snapshot)
}

func TestMirrorClosesSubscribersOnFeedEnd(t *testing.T) {
	mirror := NewMirror(zaptest.NewLogger(t).Sugar())
	feed := make(chan domain.LiveSnapshot)
	done := make(chan struct{})
	go func() {
		mirror.Run(context.Background(), feed)
		close(done)
	}()

	updates, unsubscribe := mirror.Subscribe()
	defer unsubscribe()

	close(feed)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the feed closed")
	}

	select {
	case _, ok := <-updates:
		assert.False(t, ok, "expected the subscriber channel to be closed")
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber channel never closed")
	}

	// Late subscriptions observe the closed state immediately.
	late, lateCancel := mirror.Subscribe()
	defer lateCancel()
	_, ok := <-late
	assert.False(t, ok, "late subscriber must get a closed channel")
}

func TestMirrorUnsubscribeIsIdempotent(t *testing.T) {
	mirror := NewMirror(zaptest.NewLogger(t).Sugar())

	_, unsubscribe := mirror.Subscribe()
	unsubscribe()
	unsubscribe()

	// Publishing after unsubscribe must not panic on a closed channel.
	mirror.publish(domain.LiveSnapshot{testRecord("rec-1", "user-1")})
}
