package entities

import "fmt"

// Phase is the stage of the conversation turn state machine
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseRecording
	PhaseProcessing
	PhaseSpeaking
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRecording:
		return "recording"
	case PhaseProcessing:
		return "processing"
	case PhaseSpeaking:
		return "speaking"
	default:
		return "unknown"
	}
}

// MarshalText encodes the phase by name for JSON state snapshots
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText parses a phase name
func (p *Phase) UnmarshalText(text []byte) error {
	for _, candidate := range []Phase{PhaseIdle, PhaseRecording, PhaseProcessing, PhaseSpeaking} {
		if candidate.String() == string(text) {
			*p = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", text)
}

// HasReply reports whether a reply may be streaming in this phase
func (p Phase) HasReply() bool {
	return p == PhaseProcessing || p == PhaseSpeaking
}
