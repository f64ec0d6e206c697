package services

import (
	"context"
	"errors"
	"sync"

	"camcast/internal/core/domain"
	"camcast/internal/core/ports"

	"go.uber.org/zap"
)

type deviceNegotiator struct {
	devices ports.CaptureDevices
	ladder  []domain.ConstraintProfile
	logger  *zap.SugaredLogger

	mu   sync.Mutex
	held ports.DeviceHandle
}

// NewDeviceNegotiator creates a negotiator that walks the constraint
// ladder on acquisition. A nil ladder uses the default order.
func NewDeviceNegotiator(
	devices ports.CaptureDevices,
	ladder []domain.ConstraintProfile,
	logger *zap.SugaredLogger,
) ports.DeviceNegotiator {
	if ladder == nil {
		ladder = domain.DefaultConstraintLadder()
	}
	return &deviceNegotiator{
		devices: devices,
		ladder:  ladder,
		logger:  logger,
	}
}

// Acquire returns the handle of the first constraint profile the device
// accepts. A handle that is already held and still live is reused rather
// than acquired a second time, so re-entering a broadcast page never
// prompts twice or takes two device locks.
func (n *deviceNegotiator) Acquire(ctx context.Context) (ports.DeviceHandle, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.held != nil && !n.held.Stopped() {
		n.logger.Debug("reusing held capture handle")
		return n.held, nil
	}
	n.held = nil

	inventory, err := n.devices.Enumerate(ctx)
	if err != nil {
		return nil, classifyDeviceError(err)
	}
	hasVideo := false
	for _, d := range inventory {
		if d.Kind == domain.DeviceVideoInput {
			hasVideo = true
			break
		}
	}
	if !hasVideo {
		return nil, domain.NewDeviceError(domain.DeviceNoDeviceFound, nil)
	}

	var lastErr error
	for _, profile := range n.ladder {
		handle, err := n.devices.Open(ctx, profile)
		if err == nil {
			n.logger.Infow("capture device acquired", "profile", profile.Name)
			n.held = handle
			return handle, nil
		}
		n.logger.Debugw("constraint profile rejected",
			"profile", profile.Name,
			"error", err,
		)
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}

	return nil, classifyDeviceError(lastErr)
}

func (n *deviceNegotiator) Held() (ports.DeviceHandle, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.held == nil || n.held.Stopped() {
		return nil, false
	}
	return n.held, true
}

// Release stops the held handle. Safe to call when nothing is held.
func (n *deviceNegotiator) Release() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.held != nil {
		n.held.Stop()
		n.held = nil
		n.logger.Debug("capture device released")
	}
}

// classifyDeviceError reclassifies an acquisition failure into the fixed
// device error taxonomy, passing already-classified errors through.
func classifyDeviceError(err error) error {
	if err == nil {
		return domain.NewDeviceError(domain.DeviceNoDeviceFound, nil)
	}
	var devErr *domain.DeviceError
	if errors.As(err, &devErr) {
		return devErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return domain.NewDeviceError(domain.DeviceUnknown, err)
	}
	return domain.NewDeviceError(domain.DeviceUnknown, err)
}
