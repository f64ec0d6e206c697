package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"camcast/internal/core/domain"
	"camcast/internal/core/ports"

	"go.uber.org/zap"
)

// SessionMetrics receives session lifecycle observations. Satisfied by
// the prometheus collector; nil disables reporting.
type SessionMetrics interface {
	RecordPhaseChange(from, to domain.Phase)
	RecordDeviceAcquireFailure(kind domain.DeviceErrorKind)
	RecordSessionOpened()
	RecordSessionClosed()
}

// cleanupTimeout bounds the remote calls made during forced teardown,
// where no caller context is available.
const cleanupTimeout = 10 * time.Second

// EnterOptions carries the route context into page entry. A viewer entry
// never touches the capture device; a resume id replays reconciliation
// against the remote record it names.
type EnterOptions struct {
	Viewer         bool
	ResumeRecordID domain.RecordID
}

// Session is the client-local state machine governing one identity's
// broadcast attempt. It owns the capture device lifecycle and is the only
// caller of the gateway on that identity's behalf.
//
// External events (user intents, identity loss, remote reconciliation)
// are processed one at a time: opMu serializes them while mu guards the
// state fields, so a slow remote call never blocks a state read. Every
// transition bumps the epoch; asynchronous results apply only while the
// epoch they were issued under is still current.
type Session struct {
	identity ports.IdentityProvider
	gateway  ports.BroadcastGateway
	devices  ports.DeviceNegotiator
	thumbs   ports.ThumbnailEncoder
	logger   *zap.SugaredLogger
	metrics  SessionMetrics

	opMu sync.Mutex

	mu             sync.Mutex
	phase          domain.Phase
	device         ports.DeviceHandle
	draftTitle     string
	boundRecordID  domain.RecordID
	lastErr        error
	epoch          uint64
	cancelInflight context.CancelFunc
}

func NewSession(
	identity ports.IdentityProvider,
	gateway ports.BroadcastGateway,
	devices ports.DeviceNegotiator,
	thumbs ports.ThumbnailEncoder,
	logger *zap.SugaredLogger,
	metrics SessionMetrics,
) *Session {
	return &Session{
		identity: identity,
		gateway:  gateway,
		devices:  devices,
		thumbs:   thumbs,
		logger:   logger,
		metrics:  metrics,
		phase:    domain.PhaseIdle,
	}
}

// View returns a read-only copy of the session state.
func (s *Session) View() domain.SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	view := domain.SessionView{
		Phase:         s.phase,
		DraftTitle:    s.draftTitle,
		BoundRecordID: s.boundRecordID,
		DeviceHeld:    s.device != nil && !s.device.Stopped(),
	}
	if s.lastErr != nil {
		view.LastError = userMessage(s.lastErr)
	}
	return view
}

// Enter handles broadcast page entry. Viewers consume only the mirror and
// never leave Idle with respect to the device. Broadcaster entries
// acquire the device; entries carrying a record id first reconcile
// against the remote record.
func (s *Session) Enter(ctx context.Context, opts EnterOptions) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if opts.Viewer {
		return nil
	}
	if opts.ResumeRecordID != "" {
		return s.reconcileEntry(ctx, opts.ResumeRecordID)
	}

	s.mu.Lock()
	switch s.phase {
	case domain.PhaseDeviceReady, domain.PhasePublishing:
		// Already entered; the held device keeps serving.
		s.mu.Unlock()
		return nil
	case domain.PhaseIdle, domain.PhaseFailed:
	default:
		phase := s.phase
		s.mu.Unlock()
		return &domain.StateError{Phase: phase, Intent: "enter broadcast page"}
	}
	epoch := s.transitionLocked(domain.PhaseAcquiringDevice)
	ictx, cancel := context.WithCancel(ctx)
	s.cancelInflight = cancel
	s.mu.Unlock()
	defer cancel()

	handle, err := s.devices.Acquire(ictx)

	applied := s.applyIfCurrent(epoch, func() {
		if err != nil {
			s.phase = domain.PhaseFailed
			s.lastErr = err
			return
		}
		s.phase = domain.PhaseDeviceReady
		s.device = handle
		s.lastErr = nil
	})
	if !applied {
		// Superseded by sign-out or teardown; the negotiator still holds
		// the handle and the cleanup path releases it.
		return nil
	}
	if err != nil {
		var devErr *domain.DeviceError
		if s.metrics != nil && errors.As(err, &devErr) {
			s.metrics.RecordDeviceAcquireFailure(devErr.Kind)
		}
		s.logger.Warnw("device acquisition failed", "error", err)
		return err
	}
	return nil
}

// reconcileEntry replays reconciliation for a re-entered broadcast page:
// resume straight into Publishing when the record is live and ours,
// otherwise settle in Idle.
func (s *Session) reconcileEntry(ctx context.Context, id domain.RecordID) error {
	current, signedIn := s.identity.Current()

	record, err := s.gateway.FetchRecord(ctx, id)
	resumable := err == nil && signedIn &&
		record.Active && record.BroadcasterID == current.ID
	if err != nil {
		var remoteErr *domain.RemoteError
		if !errors.As(err, &remoteErr) || remoteErr.Kind != domain.RemoteNotFound {
			return err
		}
	}

	if !resumable {
		// Idle owns no device: drop whatever handle an earlier entry
		// acquired before settling.
		s.devices.Release()

		s.mu.Lock()
		s.transitionLocked(domain.PhaseIdle)
		s.device = nil
		s.boundRecordID = ""
		s.draftTitle = ""
		s.lastErr = nil
		s.mu.Unlock()
		return nil
	}

	// Re-bind the held device when the negotiator still has it, acquire a
	// fresh one otherwise.
	handle, err := s.devices.Acquire(ctx)
	if err != nil {
		s.mu.Lock()
		s.transitionLocked(domain.PhaseFailed)
		s.lastErr = err
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.transitionLocked(domain.PhasePublishing)
	s.device = handle
	s.boundRecordID = record.ID
	s.draftTitle = record.Title
	s.lastErr = nil
	s.mu.Unlock()
	s.logger.Infow("resumed broadcast after re-entry", "record_id", record.ID)
	return nil
}

// SetDraftTitle updates the pending title; only meaningful before start.
func (s *Session) SetDraftTitle(title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != domain.PhaseDeviceReady {
		return &domain.StateError{Phase: s.phase, Intent: "edit title"}
	}
	s.draftTitle = title
	return nil
}

// StartBroadcast creates the remote record and moves to Publishing. A
// create failure keeps the session in DeviceReady with the device held,
// so the same intent can simply be re-issued.
func (s *Session) StartBroadcast(ctx context.Context, title string) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if strings.TrimSpace(title) == "" {
		s.mu.Lock()
		s.lastErr = &domain.ValidationError{Field: "title", Cause: domain.ErrEmptyTitle}
		err := s.lastErr
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	if s.phase != domain.PhaseDeviceReady {
		phase := s.phase
		s.mu.Unlock()
		return &domain.StateError{Phase: phase, Intent: "start broadcast"}
	}
	if s.device == nil || s.device.Stopped() {
		s.mu.Unlock()
		return &domain.StateError{Phase: domain.PhaseDeviceReady, Intent: "start broadcast without device"}
	}
	s.draftTitle = title
	epoch := s.epoch
	ictx, cancel := context.WithCancel(ctx)
	s.cancelInflight = cancel
	s.mu.Unlock()
	defer cancel()

	current, signedIn := s.identity.Current()
	if !signedIn {
		return &domain.ValidationError{Field: "identity", Cause: domain.ErrNotSignedIn}
	}

	id, err := s.gateway.CreateRecord(ictx, current, title)

	applied := s.applyIfCurrent(epoch, func() {
		if err != nil {
			// Remain DeviceReady; the device stays acquired for retry.
			s.lastErr = err
			return
		}
		s.phase = domain.PhasePublishing
		s.boundRecordID = id
		s.lastErr = nil
	})
	if !applied {
		if err == nil {
			// The record was created after this attempt was superseded;
			// close it rather than leaking an unowned live broadcast.
			s.endOrphan(id)
		}
		return &domain.StateError{Phase: s.currentPhase(), Intent: "start broadcast"}
	}
	if err != nil {
		return err
	}

	s.logger.Infow("broadcast started", "record_id", id, "title", title)
	s.captureInitialThumbnail(ctx, id)
	return nil
}

// captureInitialThumbnail snapshots the first frame onto the new record.
// Best effort: readiness or encoding failure is logged, never fatal.
func (s *Session) captureInitialThumbnail(ctx context.Context, id domain.RecordID) {
	s.mu.Lock()
	device := s.device
	s.mu.Unlock()
	if device == nil {
		return
	}
	image, err := s.thumbs.Capture(device)
	if err != nil {
		s.logger.Debugw("initial thumbnail skipped", "error", err)
		return
	}
	if err := s.gateway.UpdateThumbnail(ctx, id, image); err != nil {
		s.logger.Warnw("initial thumbnail update failed", "error", err)
	}
}

// UpdateThumbnail refreshes the live record's still image. Failures are
// reported but never change the phase.
func (s *Session) UpdateThumbnail(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if s.phase != domain.PhasePublishing {
		phase := s.phase
		s.mu.Unlock()
		return &domain.StateError{Phase: phase, Intent: "update thumbnail"}
	}
	device := s.device
	id := s.boundRecordID
	s.mu.Unlock()

	if device == nil {
		return &domain.CaptureError{Kind: domain.CaptureNotReady, Cause: domain.ErrFrameNotReady}
	}
	image, err := s.thumbs.Capture(device)
	if err != nil {
		return err
	}
	return s.gateway.UpdateThumbnail(ctx, id, image)
}

// StopBroadcast releases the device and ends the remote record, in that
// order: local cleanup is never blocked on remote acknowledgement, so the
// device is closed even when the network is gone.
func (s *Session) StopBroadcast(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if s.phase != domain.PhasePublishing {
		phase := s.phase
		s.mu.Unlock()
		return &domain.StateError{Phase: phase, Intent: "stop broadcast"}
	}
	s.transitionLocked(domain.PhaseStopping)
	id := s.boundRecordID
	s.mu.Unlock()

	s.devices.Release()

	err := s.gateway.EndRecord(ctx, id)

	s.mu.Lock()
	s.device = nil
	s.boundRecordID = ""
	s.draftTitle = ""
	s.transitionLocked(domain.PhaseIdle)
	if err != nil {
		s.lastErr = err
	} else {
		s.lastErr = nil
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Warnw("broadcast stop left remote record open", "record_id", id, "error", err)
		return err
	}
	s.logger.Infow("broadcast stopped", "record_id", id)
	return nil
}

// IdentityLost forces the full stop path for a departing identity:
// cancel whatever is in flight, release the device, end the bound record
// and sweep any other active record the identity still owns.
func (s *Session) IdentityLost(departed domain.Identity) {
	s.mu.Lock()
	s.epoch++
	if s.cancelInflight != nil {
		s.cancelInflight()
		s.cancelInflight = nil
	}
	s.mu.Unlock()

	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	s.transitionLocked(domain.PhaseStopping)
	s.mu.Unlock()

	s.devices.Release()

	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	if err := s.gateway.SweepActiveRecordsForIdentity(ctx, departed.ID); err != nil {
		s.logger.Errorw("sign-out sweep failed",
			"broadcaster_id", departed.ID,
			"error", err,
		)
	}

	s.mu.Lock()
	s.device = nil
	s.boundRecordID = ""
	s.draftTitle = ""
	s.lastErr = nil
	s.transitionLocked(domain.PhaseIdle)
	s.mu.Unlock()
	s.logger.Infow("session torn down after sign-out", "broadcaster_id", departed.ID)
}

// Leave handles navigation away from the broadcast page. The device is
// released on this exit path like every other, but a live record stays
// active: re-entry reconciles back into Publishing.
func (s *Session) Leave() {
	s.mu.Lock()
	s.epoch++
	if s.cancelInflight != nil {
		s.cancelInflight()
		s.cancelInflight = nil
	}
	s.mu.Unlock()

	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.devices.Release()

	s.mu.Lock()
	s.device = nil
	s.draftTitle = ""
	s.lastErr = nil
	s.transitionLocked(domain.PhaseIdle)
	s.mu.Unlock()
}

// ReconcileRemote applies an owner-scoped mirror snapshot: when the bound
// record is no longer in the owner's active set, the broadcast was ended
// elsewhere and the local session follows it down.
func (s *Session) ReconcileRemote(snapshot domain.LiveSnapshot) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if s.phase != domain.PhasePublishing || s.boundRecordID == "" {
		s.mu.Unlock()
		return
	}
	id := s.boundRecordID
	stillLive := false
	for _, record := range snapshot {
		if record.ID == id && record.Active {
			stillLive = true
			break
		}
	}
	if stillLive {
		s.mu.Unlock()
		return
	}
	s.transitionLocked(domain.PhaseIdle)
	s.boundRecordID = ""
	s.draftTitle = ""
	s.mu.Unlock()

	s.devices.Release()
	s.mu.Lock()
	s.device = nil
	s.mu.Unlock()
	s.logger.Infow("broadcast ended remotely, session reconciled", "record_id", id)
}

// endOrphan closes a record created by a superseded start attempt.
func (s *Session) endOrphan(id domain.RecordID) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	if err := s.gateway.EndRecord(ctx, id); err != nil {
		s.logger.Errorw("failed to end orphaned record", "record_id", id, "error", err)
	}
}

func (s *Session) currentPhase() domain.Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// transitionLocked moves to the next phase and invalidates in-flight
// results. Callers hold mu.
func (s *Session) transitionLocked(to domain.Phase) uint64 {
	from := s.phase
	s.phase = to
	s.epoch++
	if s.metrics != nil && from != to {
		s.metrics.RecordPhaseChange(from, to)
	}
	return s.epoch
}

// applyIfCurrent runs fn under mu only when the session epoch still
// matches; stale asynchronous results are discarded instead of applied to
// a superseded phase.
func (s *Session) applyIfCurrent(epoch uint64, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return false
	}
	fn()
	return true
}

// userMessage maps an error to its single human-readable message class.
func userMessage(err error) string {
	var devErr *domain.DeviceError
	if errors.As(err, &devErr) {
		return devErr.UserMessage()
	}
	var valErr *domain.ValidationError
	if errors.As(err, &valErr) {
		if errors.Is(valErr, domain.ErrEmptyTitle) {
			return "Please enter a broadcast title."
		}
		return "Invalid input."
	}
	var remErr *domain.RemoteError
	if errors.As(err, &remErr) {
		switch remErr.Op {
		case "create":
			return "Failed to start broadcast. Please try again."
		case "end":
			return "Failed to stop broadcast. Please try again."
		default:
			return "Connection problem. Please try again."
		}
	}
	var stateErr *domain.StateError
	if errors.As(err, &stateErr) {
		return "That action is not available right now."
	}
	var capErr *domain.CaptureError
	if errors.As(err, &capErr) {
		return "Could not capture a thumbnail."
	}
	return "Something went wrong. Please try again."
}
