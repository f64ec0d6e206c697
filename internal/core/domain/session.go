package domain

// Phase is the state of a local broadcast session.
type Phase string

const (
	PhaseIdle            Phase = "idle"
	PhaseAcquiringDevice Phase = "acquiring_device"
	PhaseDeviceReady     Phase = "device_ready"
	PhasePublishing      Phase = "publishing"
	PhaseStopping        Phase = "stopping"
	PhaseFailed          Phase = "failed"
)

// SessionView is a read-only copy of the local session state, safe to
// hand to the presentation layer.
type SessionView struct {
	Phase         Phase    `json:"phase"`
	DraftTitle    string   `json:"draft_title,omitempty"`
	BoundRecordID RecordID `json:"bound_record_id,omitempty"`
	LastError     string   `json:"last_error,omitempty"`
	DeviceHeld    bool     `json:"device_held"`
}

// IdentityEventKind distinguishes sign-in from sign-out notifications.
type IdentityEventKind string

const (
	IdentitySignedIn  IdentityEventKind = "signed_in"
	IdentitySignedOut IdentityEventKind = "signed_out"
)

// IdentityEvent is pushed by the identity provider on auth changes.
// Sign-in is inert for sessions; sign-out forces broadcast teardown.
type IdentityEvent struct {
	Kind     IdentityEventKind
	Identity Identity
}
