package services

import (
	"context"
	"sync"

	"camcast/internal/core/domain"

	"go.uber.org/zap"
)

// Mirror republishes a change feed's snapshots to any number of
// consumers. Each notification replaces the held snapshot wholesale; the
// store is the source of truth and nothing is merged client-side. One
// Mirror instance serves one filtered feed (all-active, or one owner's
// active records).
type Mirror struct {
	logger *zap.SugaredLogger

	mu       sync.Mutex
	snapshot domain.LiveSnapshot
	primed   bool
	nextSub  int
	subs     map[int]chan domain.LiveSnapshot
	closed   bool
}

func NewMirror(logger *zap.SugaredLogger) *Mirror {
	return &Mirror{
		logger: logger,
		subs:   make(map[int]chan domain.LiveSnapshot),
	}
}

// Run consumes the feed until it closes or ctx is done, then closes all
// subscriber channels. Call in its own goroutine.
func (m *Mirror) Run(ctx context.Context, feed <-chan domain.LiveSnapshot) {
	defer m.close()
	for {
		select {
		case <-ctx.Done():
			return
		case snapshot, ok := <-feed:
			if !ok {
				return
			}
			m.publish(snapshot)
		}
	}
}

// Snapshot returns the most recent full snapshot and whether any
// notification has been received yet.
func (m *Mirror) Snapshot() (domain.LiveSnapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot, m.primed
}

// Subscribe registers a consumer. The channel carries whole snapshots and
// is primed with the current one when available. Slow consumers are
// coalesced to the latest snapshot rather than blocking the feed. The
// returned cancel function must be called on consumer teardown; it is
// safe to call more than once.
func (m *Mirror) Subscribe() (<-chan domain.LiveSnapshot, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan domain.LiveSnapshot, 1)
	if m.closed {
		close(ch)
		return ch, func() {}
	}

	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	if m.primed {
		ch <- m.snapshot
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if sub, ok := m.subs[id]; ok {
				delete(m.subs, id)
				close(sub)
			}
		})
	}
	return ch, cancel
}

func (m *Mirror) publish(snapshot domain.LiveSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.snapshot = snapshot
	m.primed = true
	for _, sub := range m.subs {
		// Replace a pending undelivered snapshot with the newer one.
		select {
		case <-sub:
		default:
		}
		sub <- snapshot
	}
	m.logger.Debugw("mirror snapshot published", "records", len(snapshot))
}

func (m *Mirror) close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	for id, sub := range m.subs {
		delete(m.subs, id)
		close(sub)
	}
}
