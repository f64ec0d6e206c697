package domain

import (
	"errors"
	"fmt"
)

var (
	ErrBroadcastNotFound = errors.New("broadcast not found")
	ErrOwnerAlreadyLive  = errors.New("identity already owns an active broadcast")
	ErrNotSignedIn       = errors.New("no signed-in identity")
	ErrEmptyTitle        = errors.New("broadcast title must not be empty")
	ErrFrameNotReady     = errors.New("no decoded frame available yet")
)

// DeviceErrorKind classifies capture acquisition failures.
type DeviceErrorKind string

const (
	DeviceNoDeviceFound    DeviceErrorKind = "no_device_found"
	DeviceBusy             DeviceErrorKind = "device_busy"
	DevicePermissionDenied DeviceErrorKind = "permission_denied"
	DeviceInsecureContext  DeviceErrorKind = "insecure_context"
	DeviceUnknown          DeviceErrorKind = "unknown"
)

// DeviceError is a classified capture acquisition failure. Message keeps
// the underlying driver detail for logs; Kind drives the user-facing copy.
type DeviceError struct {
	Kind    DeviceErrorKind
	Message string
	Cause   error
}

func (e *DeviceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("device error (%s): %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("device error (%s)", e.Kind)
}

func (e *DeviceError) Unwrap() error { return e.Cause }

// UserMessage maps the failure class to one human-readable message, the
// same classes the retry UI distinguishes.
func (e *DeviceError) UserMessage() string {
	switch e.Kind {
	case DeviceBusy:
		return "Camera is in use by another application. Close other apps using the camera and try again."
	case DevicePermissionDenied:
		return "Camera access denied. Allow camera access and try again."
	case DeviceNoDeviceFound:
		return "No camera found. Connect a camera and try again."
	case DeviceInsecureContext:
		return "Capture requires a secure connection."
	default:
		return "Camera error. Try again."
	}
}

func NewDeviceError(kind DeviceErrorKind, cause error) *DeviceError {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &DeviceError{Kind: kind, Message: msg, Cause: cause}
}

// RemoteErrorKind classifies record gateway failures.
type RemoteErrorKind string

const (
	RemoteNotFound         RemoteErrorKind = "not_found"
	RemotePermissionDenied RemoteErrorKind = "permission_denied"
	RemoteNetwork          RemoteErrorKind = "network"
	RemoteConflict         RemoteErrorKind = "conflict"
	RemoteUnknown          RemoteErrorKind = "unknown"
)

// RemoteError is a record create/update/end failure. It is terminal for
// the attempted operation but never for the session.
type RemoteError struct {
	Kind  RemoteErrorKind
	Op    string
	Cause error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error (%s) during %s: %v", e.Kind, e.Op, e.Cause)
}

func (e *RemoteError) Unwrap() error { return e.Cause }

func NewRemoteError(kind RemoteErrorKind, op string, cause error) *RemoteError {
	return &RemoteError{Kind: kind, Op: op, Cause: cause}
}

// ValidationError rejects malformed user input synchronously; it never
// reaches the remote layer.
type ValidationError struct {
	Field string
	Cause error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Cause)
}

func (e *ValidationError) Unwrap() error { return e.Cause }

// StateError rejects an intent issued in a phase that does not accept it.
type StateError struct {
	Phase  Phase
	Intent string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s while %s", e.Intent, e.Phase)
}

// CaptureErrorKind classifies thumbnail capture failures.
type CaptureErrorKind string

const (
	CaptureNotReady       CaptureErrorKind = "not_ready"
	CaptureEncodingFailed CaptureErrorKind = "encoding_failed"
)

// CaptureError is a thumbnail capture failure; non-fatal to a broadcast.
type CaptureError struct {
	Kind  CaptureErrorKind
	Cause error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("capture error (%s): %v", e.Kind, e.Cause)
}

func (e *CaptureError) Unwrap() error { return e.Cause }
