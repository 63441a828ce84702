package protocol

import "fmt"

// Phase is the lifecycle position of a round. Phases are ordered.
type Phase int

const (
	PhaseOpen Phase = iota
	PhaseFull
	PhaseComputed
	PhaseDecryptionRequested
	PhaseRevealed
)

var phaseNames = [...]string{
	PhaseOpen:                "open",
	PhaseFull:                "full",
	PhaseComputed:            "computed",
	PhaseDecryptionRequested: "decryption_requested",
	PhaseRevealed:            "revealed",
}

func (p Phase) String() string {
	if p < PhaseOpen || p > PhaseRevealed {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

// MarshalText implements encoding.TextMarshaler.
func (p Phase) MarshalText() ([]byte, error) {
	if p < PhaseOpen || p > PhaseRevealed {
		return nil, fmt.Errorf("invalid phase %d", int(p))
	}
	return []byte(phaseNames[p]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Phase) UnmarshalText(text []byte) error {
	for i, name := range phaseNames {
		if name == string(text) {
			*p = Phase(i)
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", text)
}
