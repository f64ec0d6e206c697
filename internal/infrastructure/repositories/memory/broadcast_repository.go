package memory

import (
	"context"
	"sync"
	"time"

	"camcast/internal/core/domain"
	"camcast/internal/core/ports"

	"github.com/google/uuid"
)

// MemoryBroadcastRepository keeps broadcast records in process memory.
// It backs single-node deployments and tests; the change feed and the
// owner-uniqueness check behave like the redis-backed store.
type MemoryBroadcastRepository struct {
	mu       sync.Mutex
	records  map[domain.RecordID]*domain.BroadcastRecord
	nextSub  int
	watchers map[int]*watcher

	// now is swappable so tests can control server-assigned timestamps.
	now func() time.Time
}

type watcher struct {
	owner domain.UserID
	all   bool
	ch    chan domain.LiveSnapshot
}

func NewMemoryBroadcastRepository() *MemoryBroadcastRepository {
	return &MemoryBroadcastRepository{
		records:  make(map[domain.RecordID]*domain.BroadcastRecord),
		watchers: make(map[int]*watcher),
		now:      time.Now,
	}
}

// Create assigns the id and start time and enforces at most one active
// record per owner atomically under the repository lock.
func (r *MemoryBroadcastRepository) Create(ctx context.Context, record *domain.BroadcastRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.records {
		if existing.Active && existing.BroadcasterID == record.BroadcasterID {
			return domain.ErrOwnerAlreadyLive
		}
	}

	record.ID = domain.RecordID(uuid.NewString())
	record.Active = true
	record.StartTime = r.now()
	record.EndTime = nil

	stored := *record
	r.records[record.ID] = &stored
	r.notifyLocked()
	return nil
}

func (r *MemoryBroadcastRepository) GetByID(ctx context.Context, id domain.RecordID) (*domain.BroadcastRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[id]
	if !ok {
		return nil, domain.ErrBroadcastNotFound
	}
	copied := *record
	return &copied, nil
}

// End closes the record, keeping Active and EndTime consistent in one
// step. Ending an ended record is a no-op success.
func (r *MemoryBroadcastRepository) End(ctx context.Context, id domain.RecordID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[id]
	if !ok {
		return domain.ErrBroadcastNotFound
	}
	if !record.Active {
		return nil
	}
	ended := r.now()
	record.Active = false
	record.EndTime = &ended
	r.notifyLocked()
	return nil
}

func (r *MemoryBroadcastRepository) SetThumbnail(ctx context.Context, id domain.RecordID, thumbnail []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[id]
	if !ok {
		return domain.ErrBroadcastNotFound
	}
	record.Thumbnail = thumbnail
	r.notifyLocked()
	return nil
}

func (r *MemoryBroadcastRepository) ListActive(ctx context.Context) ([]*domain.BroadcastRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeLocked(""), nil
}

func (r *MemoryBroadcastRepository) ListActiveByOwner(ctx context.Context, owner domain.UserID) ([]*domain.BroadcastRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeLocked(owner), nil
}

func (r *MemoryBroadcastRepository) WatchActive(ctx context.Context) (<-chan domain.LiveSnapshot, error) {
	return r.watch(ctx, "", true)
}

func (r *MemoryBroadcastRepository) WatchOwnerActive(ctx context.Context, owner domain.UserID) (<-chan domain.LiveSnapshot, error) {
	return r.watch(ctx, owner, false)
}

func (r *MemoryBroadcastRepository) watch(ctx context.Context, owner domain.UserID, all bool) (<-chan domain.LiveSnapshot, error) {
	r.mu.Lock()
	w := &watcher{owner: owner, all: all, ch: make(chan domain.LiveSnapshot, 1)}
	id := r.nextSub
	r.nextSub++
	r.watchers[id] = w
	// Prime with the current matching set.
	w.ch <- r.snapshotForLocked(w)
	r.mu.Unlock()

	go func() {
		<-ctx.Done()
		r.mu.Lock()
		if sub, ok := r.watchers[id]; ok {
			delete(r.watchers, id)
			close(sub.ch)
		}
		r.mu.Unlock()
	}()
	return w.ch, nil
}

// notifyLocked re-fires the full matching set to every watcher. Pending
// undelivered snapshots are replaced, never queued.
func (r *MemoryBroadcastRepository) notifyLocked() {
	for _, w := range r.watchers {
		snapshot := r.snapshotForLocked(w)
		select {
		case <-w.ch:
		default:
		}
		w.ch <- snapshot
	}
}

func (r *MemoryBroadcastRepository) snapshotForLocked(w *watcher) domain.LiveSnapshot {
	if w.all {
		return r.activeLocked("")
	}
	return r.activeLocked(w.owner)
}

func (r *MemoryBroadcastRepository) activeLocked(owner domain.UserID) []*domain.BroadcastRecord {
	out := make([]*domain.BroadcastRecord, 0)
	for _, record := range r.records {
		if !record.Active {
			continue
		}
		if owner != "" && record.BroadcasterID != owner {
			continue
		}
		copied := *record
		out = append(out, &copied)
	}
	return out
}

var _ ports.BroadcastRepository = (*MemoryBroadcastRepository)(nil)
