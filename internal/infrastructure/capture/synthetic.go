package capture

import (
	"context"
	"image"
	"image/color"
	"sync"
	"time"

	"camcast/internal/core/domain"
	"camcast/internal/core/ports"
)

// SyntheticInventory is a capture device inventory backed by generated
// test-pattern frames. It stands in for platform camera APIs the same way
// the memory repository stands in for redis: same contract, no hardware.
// Each device takes a real exclusive lock, so a second open while a
// handle is live fails with DeviceBusy exactly like a camera would.
type SyntheticInventory struct {
	mu      sync.Mutex
	devices []syntheticDevice
	warmup  time.Duration
}

type syntheticDevice struct {
	info domain.DeviceInfo
	held *SyntheticHandle
}

// Option configures the inventory.
type Option func(*SyntheticInventory)

// WithDevice adds a device to the inventory.
func WithDevice(info domain.DeviceInfo) Option {
	return func(s *SyntheticInventory) {
		s.devices = append(s.devices, syntheticDevice{info: info})
	}
}

// WithWarmup sets how long an opened stream reports no decoded frame.
func WithWarmup(d time.Duration) Option {
	return func(s *SyntheticInventory) { s.warmup = d }
}

// NewSyntheticInventory creates an inventory. Without options it exposes
// a single front-facing camera with no warm-up delay.
func NewSyntheticInventory(opts ...Option) *SyntheticInventory {
	s := &SyntheticInventory{}
	for _, opt := range opts {
		opt(s)
	}
	if len(s.devices) == 0 {
		s.devices = []syntheticDevice{{info: domain.DeviceInfo{
			ID:     "cam0",
			Label:  "Synthetic Camera",
			Kind:   domain.DeviceVideoInput,
			Facing: domain.FacingUser,
		}}}
	}
	return s
}

func (s *SyntheticInventory) Enumerate(ctx context.Context) ([]domain.DeviceInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.DeviceInfo, 0, len(s.devices))
	for _, d := range s.devices {
		out = append(out, d.info)
	}
	return out, nil
}

// Open acquires the first video device matching the profile's facing
// constraint. Sized profiles determine the generated frame dimensions.
func (s *SyntheticInventory) Open(ctx context.Context, profile domain.ConstraintProfile) (ports.DeviceHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var lastErr error
	for i := range s.devices {
		d := &s.devices[i]
		if d.info.Kind != domain.DeviceVideoInput {
			continue
		}
		if profile.Facing != domain.FacingUnknown && d.info.Facing != profile.Facing {
			continue
		}
		if d.held != nil && !d.held.Stopped() {
			lastErr = domain.NewDeviceError(domain.DeviceBusy, nil)
			continue
		}

		width, height := profile.Width, profile.Height
		if width <= 0 || height <= 0 {
			width, height = 1280, 720
		}
		handle := &SyntheticHandle{
			device:  d.info.ID,
			width:   width,
			height:  height,
			readyAt: time.Now().Add(s.warmup),
			release: func(h *SyntheticHandle) {
				s.mu.Lock()
				defer s.mu.Unlock()
				if d.held == h {
					d.held = nil
				}
			},
		}
		d.held = handle
		return handle, nil
	}

	if lastErr == nil {
		lastErr = domain.NewDeviceError(domain.DeviceNoDeviceFound, nil)
	}
	return nil, lastErr
}

// SyntheticHandle is an acquired synthetic stream. Frames are generated
// on demand; before the warm-up elapses Frame reports not-ready, which
// models the decoded-frame-ready signal of a real stream.
type SyntheticHandle struct {
	device  domain.DeviceID
	width   int
	height  int
	readyAt time.Time
	release func(*SyntheticHandle)

	mu      sync.Mutex
	stopped bool
}

func (h *SyntheticHandle) Frame() (image.Image, error) {
	h.mu.Lock()
	stopped := h.stopped
	h.mu.Unlock()
	if stopped {
		return nil, domain.ErrFrameNotReady
	}
	if time.Now().Before(h.readyAt) {
		return nil, domain.ErrFrameNotReady
	}
	return testPattern(h.width, h.height, time.Now()), nil
}

func (h *SyntheticHandle) Stop() {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.stopped = true
	h.mu.Unlock()
	if h.release != nil {
		h.release(h)
	}
}

func (h *SyntheticHandle) Stopped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopped
}

// testPattern renders vertical color bars with a time-dependent offset so
// consecutive frames differ.
func testPattern(width, height int, at time.Time) image.Image {
	bars := []color.RGBA{
		{R: 0xC0, G: 0xC0, B: 0xC0, A: 0xFF},
		{R: 0xC0, G: 0xC0, B: 0x00, A: 0xFF},
		{R: 0x00, G: 0xC0, B: 0xC0, A: 0xFF},
		{R: 0x00, G: 0xC0, B: 0x00, A: 0xFF},
		{R: 0xC0, G: 0x00, B: 0xC0, A: 0xFF},
		{R: 0xC0, G: 0x00, B: 0x00, A: 0xFF},
		{R: 0x00, G: 0x00, B: 0xC0, A: 0xFF},
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	offset := int(at.UnixMilli()/100) % width
	barWidth := width/len(bars) + 1
	for x := 0; x < width; x++ {
		bar := bars[((x+offset)/barWidth)%len(bars)]
		for y := 0; y < height; y++ {
			img.SetRGBA(x, y, bar)
		}
	}
	return img
}

var _ ports.CaptureDevices = (*SyntheticInventory)(nil)
var _ ports.DeviceHandle = (*SyntheticHandle)(nil)
