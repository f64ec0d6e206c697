package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"camcast/internal/core/domain"
	"camcast/internal/core/ports"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// GatewayMetrics receives gateway operation outcomes. Satisfied by the
// prometheus collector; nil-safe no-op when monitoring is disabled.
type GatewayMetrics interface {
	RecordBroadcastCreated()
	RecordBroadcastEnded()
	RecordGatewayOp(op string, duration time.Duration, err error)
}

type broadcastGateway struct {
	repo    ports.BroadcastRepository
	logger  *zap.SugaredLogger
	metrics GatewayMetrics
	tracer  trace.Tracer
}

// NewBroadcastGateway wraps the record store with the one component
// allowed to mutate broadcast records. It performs no retries of its
// own; transient transport failure surfaces as a RemoteError and the
// caller re-issues the intent.
func NewBroadcastGateway(
	repo ports.BroadcastRepository,
	logger *zap.SugaredLogger,
	metrics GatewayMetrics,
) ports.BroadcastGateway {
	return &broadcastGateway{
		repo:    repo,
		logger:  logger,
		metrics: metrics,
		tracer:  otel.Tracer("camcast/gateway"),
	}
}

func (g *broadcastGateway) CreateRecord(ctx context.Context, identity domain.Identity, title string) (domain.RecordID, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", &domain.ValidationError{Field: "title", Cause: domain.ErrEmptyTitle}
	}
	if identity.ID == "" {
		return "", &domain.ValidationError{Field: "identity", Cause: domain.ErrNotSignedIn}
	}

	ctx, span := g.tracer.Start(ctx, "gateway.CreateRecord",
		trace.WithAttributes(attribute.String("broadcaster_id", string(identity.ID))))
	defer span.End()

	// Restore the at-most-one invariant before creating, in case a prior
	// session crashed without ending its record.
	if err := g.SweepActiveRecordsForIdentity(ctx, identity.ID); err != nil {
		return "", err
	}

	name := identity.DisplayName
	if name == "" {
		name = "Anonymous"
	}
	record := &domain.BroadcastRecord{
		BroadcasterID:   identity.ID,
		BroadcasterName: name,
		Title:           title,
		Active:          true,
		ViewerCount:     0,
	}

	start := time.Now()
	err := g.repo.Create(ctx, record)
	g.observe("create", start, err)
	if err != nil {
		if errors.Is(err, domain.ErrOwnerAlreadyLive) {
			// Last-resort enforcement: a concurrent session won the race
			// between the sweep and the create.
			return "", domain.NewRemoteError(domain.RemoteConflict, "create", err)
		}
		return "", domain.NewRemoteError(domain.RemoteNetwork, "create", err)
	}

	if g.metrics != nil {
		g.metrics.RecordBroadcastCreated()
	}
	g.logger.Infow("broadcast record created",
		"record_id", record.ID,
		"broadcaster_id", identity.ID,
		"title", title,
	)
	return record.ID, nil
}

// EndRecord is idempotent: ending an already-ended record succeeds.
func (g *broadcastGateway) EndRecord(ctx context.Context, id domain.RecordID) error {
	ctx, span := g.tracer.Start(ctx, "gateway.EndRecord",
		trace.WithAttributes(attribute.String("record_id", string(id))))
	defer span.End()

	start := time.Now()
	err := g.repo.End(ctx, id)
	g.observe("end", start, err)
	if err != nil {
		if errors.Is(err, domain.ErrBroadcastNotFound) {
			return domain.NewRemoteError(domain.RemoteNotFound, "end", err)
		}
		return domain.NewRemoteError(domain.RemoteNetwork, "end", err)
	}

	if g.metrics != nil {
		g.metrics.RecordBroadcastEnded()
	}
	g.logger.Infow("broadcast record ended", "record_id", id)
	return nil
}

// UpdateThumbnail refreshes the record's still image. A record that no
// longer exists is an error; the thumbnail never resurrects a broadcast.
func (g *broadcastGateway) UpdateThumbnail(ctx context.Context, id domain.RecordID, image []byte) error {
	ctx, span := g.tracer.Start(ctx, "gateway.UpdateThumbnail",
		trace.WithAttributes(attribute.String("record_id", string(id))))
	defer span.End()

	start := time.Now()
	err := g.repo.SetThumbnail(ctx, id, image)
	g.observe("update_thumbnail", start, err)
	if err != nil {
		if errors.Is(err, domain.ErrBroadcastNotFound) {
			return domain.NewRemoteError(domain.RemoteNotFound, "update_thumbnail", err)
		}
		return domain.NewRemoteError(domain.RemoteNetwork, "update_thumbnail", err)
	}
	return nil
}

func (g *broadcastGateway) FetchRecord(ctx context.Context, id domain.RecordID) (*domain.BroadcastRecord, error) {
	ctx, span := g.tracer.Start(ctx, "gateway.FetchRecord")
	defer span.End()

	start := time.Now()
	record, err := g.repo.GetByID(ctx, id)
	g.observe("fetch", start, err)
	if err != nil {
		if errors.Is(err, domain.ErrBroadcastNotFound) {
			return nil, domain.NewRemoteError(domain.RemoteNotFound, "fetch", err)
		}
		return nil, domain.NewRemoteError(domain.RemoteNetwork, "fetch", err)
	}
	return record, nil
}

// SweepActiveRecordsForIdentity ends every active record the identity
// owns. Used on sign-out and before every create.
func (g *broadcastGateway) SweepActiveRecordsForIdentity(ctx context.Context, identity domain.UserID) error {
	ctx, span := g.tracer.Start(ctx, "gateway.Sweep",
		trace.WithAttributes(attribute.String("broadcaster_id", string(identity))))
	defer span.End()

	start := time.Now()
	stale, err := g.repo.ListActiveByOwner(ctx, identity)
	g.observe("sweep_list", start, err)
	if err != nil {
		return domain.NewRemoteError(domain.RemoteNetwork, "sweep", err)
	}

	var firstErr error
	for _, record := range stale {
		if err := g.repo.End(ctx, record.ID); err != nil && !errors.Is(err, domain.ErrBroadcastNotFound) {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if g.metrics != nil {
			g.metrics.RecordBroadcastEnded()
		}
		g.logger.Warnw("swept stale active broadcast",
			"record_id", record.ID,
			"broadcaster_id", identity,
		)
	}
	if firstErr != nil {
		return domain.NewRemoteError(domain.RemoteNetwork, "sweep", fmt.Errorf("ending stale records: %w", firstErr))
	}
	return nil
}

func (g *broadcastGateway) observe(op string, start time.Time, err error) {
	if g.metrics != nil {
		g.metrics.RecordGatewayOp(op, time.Since(start), err)
	}
}
