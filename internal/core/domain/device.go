package domain

type DeviceID string

// DeviceKind mirrors the capture inventory's device classes; only video
// inputs are usable for broadcasting.
type DeviceKind string

const (
	DeviceVideoInput DeviceKind = "videoinput"
	DeviceAudioInput DeviceKind = "audioinput"
)

// DeviceInfo describes one entry of the capture device inventory.
type DeviceInfo struct {
	ID     DeviceID
	Label  string
	Kind   DeviceKind
	Facing Facing
}

// Facing is the direction a camera points, when known.
type Facing string

const (
	FacingUnknown     Facing = ""
	FacingUser        Facing = "user"
	FacingEnvironment Facing = "environment"
)

// ConstraintProfile is one rung of the acquisition fallback ladder.
type ConstraintProfile struct {
	Name        string
	Facing      Facing
	Width       int
	Height      int
	Ideal       bool // width/height are targets rather than requirements
}

// DefaultConstraintLadder is the acquisition order: unconstrained first,
// then facing preferences, then resolution fallbacks. The first profile a
// device accepts wins.
func DefaultConstraintLadder() []ConstraintProfile {
	return []ConstraintProfile{
		{Name: "unconstrained"},
		{Name: "front", Facing: FacingUser},
		{Name: "rear", Facing: FacingEnvironment},
		{Name: "low-res", Width: 640, Height: 480},
		{Name: "hd", Width: 1280, Height: 720, Ideal: true},
	}
}
