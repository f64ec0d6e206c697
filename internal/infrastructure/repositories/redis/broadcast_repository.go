package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"camcast/internal/core/domain"
	"camcast/internal/core/ports"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	recordPrefix  = "camcast:broadcast:"
	activeSetKey  = "camcast:broadcasts:active"
	livePrefix    = "camcast:broadcast:live:"
	eventsChannel = "camcast:broadcasts:events"
)

// endOwnerScript clears the owner-liveness key only while it still points
// at the record being ended, so a newer broadcast by the same owner is
// never unlocked by a stale end.
const endOwnerScript = `
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`

// RedisBroadcastRepository stores broadcast records in redis and
// publishes change notifications over pub/sub. The owner-liveness key
// (SET NX) makes the at-most-one-active-per-owner invariant atomic at the
// store: two clients racing to create both pass any client-side check,
// but only one wins the key.
type RedisBroadcastRepository struct {
	client *redis.Client
	logger *zap.SugaredLogger
}

func NewRedisBroadcastRepository(client *redis.Client, logger *zap.SugaredLogger) *RedisBroadcastRepository {
	return &RedisBroadcastRepository{client: client, logger: logger}
}

func recordKey(id domain.RecordID) string {
	return recordPrefix + string(id)
}

func liveKey(owner domain.UserID) string {
	return livePrefix + string(owner)
}

func (r *RedisBroadcastRepository) Create(ctx context.Context, record *domain.BroadcastRecord) error {
	id := domain.RecordID(uuid.NewString())

	acquired, err := r.client.SetNX(ctx, liveKey(record.BroadcasterID), string(id), 0).Result()
	if err != nil {
		return fmt.Errorf("failed to claim owner liveness key: %w", err)
	}
	if !acquired {
		return domain.ErrOwnerAlreadyLive
	}

	record.ID = id
	record.Active = true
	record.StartTime = time.Now().UTC()
	record.EndTime = nil

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, recordKey(id), data, 0)
	pipe.SAdd(ctx, activeSetKey, string(id))
	if _, err := pipe.Exec(ctx); err != nil {
		// Give the claim back so the owner is not locked out of creating.
		r.client.Eval(ctx, endOwnerScript, []string{liveKey(record.BroadcasterID)}, string(id))
		return fmt.Errorf("failed to store record: %w", err)
	}

	r.publishChange(ctx)
	return nil
}

func (r *RedisBroadcastRepository) GetByID(ctx context.Context, id domain.RecordID) (*domain.BroadcastRecord, error) {
	data, err := r.client.Get(ctx, recordKey(id)).Result()
	if err == redis.Nil {
		return nil, domain.ErrBroadcastNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}

	var record domain.BroadcastRecord
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return &record, nil
}

func (r *RedisBroadcastRepository) End(ctx context.Context, id domain.RecordID) error {
	record, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !record.Active {
		// Idempotent: the record is already terminal.
		return nil
	}

	now := time.Now().UTC()
	record.Active = false
	record.EndTime = &now

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, recordKey(id), data, 0)
	pipe.SRem(ctx, activeSetKey, string(id))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to end record: %w", err)
	}

	if err := r.client.Eval(ctx, endOwnerScript,
		[]string{liveKey(record.BroadcasterID)}, string(id)).Err(); err != nil && err != redis.Nil {
		r.logger.Warnw("failed to clear owner liveness key",
			"record_id", id,
			"error", err,
		)
	}

	r.publishChange(ctx)
	return nil
}

func (r *RedisBroadcastRepository) SetThumbnail(ctx context.Context, id domain.RecordID, thumbnail []byte) error {
	record, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	record.Thumbnail = thumbnail

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	if err := r.client.Set(ctx, recordKey(id), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to update thumbnail: %w", err)
	}

	r.publishChange(ctx)
	return nil
}

func (r *RedisBroadcastRepository) ListActive(ctx context.Context) ([]*domain.BroadcastRecord, error) {
	return r.listActive(ctx, "")
}

func (r *RedisBroadcastRepository) ListActiveByOwner(ctx context.Context, owner domain.UserID) ([]*domain.BroadcastRecord, error) {
	return r.listActive(ctx, owner)
}

func (r *RedisBroadcastRepository) listActive(ctx context.Context, owner domain.UserID) ([]*domain.BroadcastRecord, error) {
	ids, err := r.client.SMembers(ctx, activeSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list active records: %w", err)
	}

	records := make([]*domain.BroadcastRecord, 0, len(ids))
	for _, id := range ids {
		record, err := r.GetByID(ctx, domain.RecordID(id))
		if err != nil {
			// Skip records removed between SMEMBERS and GET.
			continue
		}
		if !record.Active {
			continue
		}
		if owner != "" && record.BroadcasterID != owner {
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

func (r *RedisBroadcastRepository) WatchActive(ctx context.Context) (<-chan domain.LiveSnapshot, error) {
	return r.watch(ctx, "")
}

func (r *RedisBroadcastRepository) WatchOwnerActive(ctx context.Context, owner domain.UserID) (<-chan domain.LiveSnapshot, error) {
	return r.watch(ctx, owner)
}

// watch re-delivers the full matching set on every published change.
// Change messages carry no payload: the snapshot is always refetched from
// the store, which stays the single source of truth.
func (r *RedisBroadcastRepository) watch(ctx context.Context, owner domain.UserID) (<-chan domain.LiveSnapshot, error) {
	pubsub := r.client.Subscribe(ctx, eventsChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to change feed: %w", err)
	}

	out := make(chan domain.LiveSnapshot, 1)
	deliver := func() {
		snapshot, err := r.listActive(ctx, owner)
		if err != nil {
			if ctx.Err() == nil {
				r.logger.Warnw("change feed refetch failed", "error", err)
			}
			return
		}
		select {
		case <-out:
		default:
		}
		out <- snapshot
	}
	deliver()

	go func() {
		defer close(out)
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				deliver()
			}
		}
	}()
	return out, nil
}

func (r *RedisBroadcastRepository) publishChange(ctx context.Context) {
	if err := r.client.Publish(ctx, eventsChannel, "changed").Err(); err != nil {
		r.logger.Warnw("failed to publish change notification", "error", err)
	}
}

var _ ports.BroadcastRepository = (*RedisBroadcastRepository)(nil)
