package services

import (
	"context"
	"sync"

	"camcast/internal/core/domain"
	"camcast/internal/core/ports"

	"go.uber.org/zap"
)

// SessionManager hosts one session per signed-in identity. Multiple tabs
// for one identity share the single session, which is what keeps a second
// tab from taking a second device lock. Sign-out events are routed to the
// owning session as identityLost.
type SessionManager struct {
	identities *IdentityService
	gateway    ports.BroadcastGateway
	repo       ports.BroadcastRepository
	capture    ports.CaptureDevices
	thumbs     ports.ThumbnailEncoder
	ladder     []domain.ConstraintProfile
	logger     *zap.SugaredLogger
	metrics    SessionMetrics

	mu       sync.Mutex
	sessions map[domain.UserID]*sessionEntry
}

type sessionEntry struct {
	session *Session
	cancel  context.CancelFunc
}

func NewSessionManager(
	identities *IdentityService,
	gateway ports.BroadcastGateway,
	repo ports.BroadcastRepository,
	capture ports.CaptureDevices,
	thumbs ports.ThumbnailEncoder,
	ladder []domain.ConstraintProfile,
	logger *zap.SugaredLogger,
	metrics SessionMetrics,
) *SessionManager {
	return &SessionManager{
		identities: identities,
		gateway:    gateway,
		repo:       repo,
		capture:    capture,
		thumbs:     thumbs,
		ladder:     ladder,
		logger:     logger,
		metrics:    metrics,
		sessions:   make(map[domain.UserID]*sessionEntry),
	}
}

// Run dispatches identity events until ctx is done. Sign-in is inert;
// sign-out tears the identity's session down.
func (m *SessionManager) Run(ctx context.Context) {
	events := m.identities.Watch(ctx)
	for event := range events {
		if event.Kind != domain.IdentitySignedOut {
			continue
		}
		m.mu.Lock()
		entry, ok := m.sessions[event.Identity.ID]
		if ok {
			delete(m.sessions, event.Identity.ID)
		}
		m.mu.Unlock()
		if !ok {
			// No live session: still sweep so a crashed session's record
			// does not outlive the sign-out.
			m.sweepWithoutSession(event.Identity)
			continue
		}
		entry.session.IdentityLost(event.Identity)
		entry.cancel()
		if m.metrics != nil {
			m.metrics.RecordSessionClosed()
		}
	}
}

// SessionFor returns the identity's session, creating it (and its
// owner-scoped mirror) on first use.
func (m *SessionManager) SessionFor(identity domain.Identity) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry, ok := m.sessions[identity.ID]; ok {
		return entry.session, nil
	}

	session := NewSession(
		m.identities.For(identity.ID),
		m.gateway,
		NewDeviceNegotiator(m.capture, m.ladder, m.logger),
		m.thumbs,
		m.logger.With("broadcaster_id", identity.ID),
		m.metrics,
	)

	sctx, cancel := context.WithCancel(context.Background())
	feed, err := m.repo.WatchOwnerActive(sctx, identity.ID)
	if err != nil {
		cancel()
		return nil, err
	}
	mirror := NewMirror(m.logger)
	go mirror.Run(sctx, feed)

	snapshots, unsubscribe := mirror.Subscribe()
	go func() {
		defer unsubscribe()
		for snapshot := range snapshots {
			session.ReconcileRemote(snapshot)
		}
	}()

	m.sessions[identity.ID] = &sessionEntry{session: session, cancel: cancel}
	if m.metrics != nil {
		m.metrics.RecordSessionOpened()
	}
	m.logger.Infow("session created", "broadcaster_id", identity.ID)
	return session, nil
}

// Close releases every session's device and stops the owner mirrors.
// Remote records are left to the sweep on next sign-in.
func (m *SessionManager) Close() {
	m.mu.Lock()
	entries := make([]*sessionEntry, 0, len(m.sessions))
	for id, entry := range m.sessions {
		entries = append(entries, entry)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, entry := range entries {
		entry.session.Leave()
		entry.cancel()
		if m.metrics != nil {
			m.metrics.RecordSessionClosed()
		}
	}
}

func (m *SessionManager) sweepWithoutSession(identity domain.Identity) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	if err := m.gateway.SweepActiveRecordsForIdentity(ctx, identity.ID); err != nil {
		m.logger.Errorw("sign-out sweep failed",
			"broadcaster_id", identity.ID,
			"error", err,
		)
	}
}
