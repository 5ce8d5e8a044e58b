package orchestrator

import "time"

// Stage is the pipeline position of the active session.
type Stage int

const (
	Idle Stage = iota
	Awake
	Recording
	VerifyingVoice
	VerifyingFace
	Transcribing
	Dispatching
	Speaking
)

func (s Stage) String() string {
	switch s {
	case Idle:
		return "idle"
	case Awake:
		return "awake"
	case Recording:
		return "recording"
	case VerifyingVoice:
		return "verifying-voice"
	case VerifyingFace:
		return "verifying-face"
	case Transcribing:
		return "transcribing"
	case Dispatching:
		return "dispatching"
	case Speaking:
		return "speaking"
	}
	return "unknown"
}

// SecurityLevel is the process-wide alarm overlay, independent of the
// pipeline stage.
type SecurityLevel int

const (
	Normal SecurityLevel = iota
	Elevated
	Lockdown
)

func (l SecurityLevel) String() string {
	switch l {
	case Normal:
		return "normal"
	case Elevated:
		return "elevated"
	case Lockdown:
		return "lockdown"
	}
	return "unknown"
}

// SecurityState pairs a level with why it was entered. Reasons in use:
// "identity" (failed verification), "camera" (obstructed feed),
// "operator" (spoken security-mode command).
type SecurityState struct {
	Level  SecurityLevel `json:"level"`
	Reason string        `json:"reason,omitempty"`
}

// UIEvent is the orchestrator's outbound feed for the desktop UI and the
// timeline: status lines, spoken messages, transcripts and security
// transitions.
type UIEvent struct {
	Kind     string        `json:"kind"` // status, system, user, security, timeline
	Text     string        `json:"text,omitempty"`
	Stage    string        `json:"stage,omitempty"`
	Security SecurityState `json:"security"`
	At       time.Time     `json:"at"`
}

// Status is the snapshot served to vortex-ctl.
type Status struct {
	Stage         string        `json:"stage"`
	Security      SecurityState `json:"security"`
	CameraBlocked bool          `json:"cameraBlocked"`
	SessionID     string        `json:"sessionId,omitempty"`
}
