package domain

import (
	"fmt"
	"strings"
)

// Phase is one stage of the agent lifecycle state machine.
type Phase int

const (
	PhaseInitializing Phase = iota
	PhaseObserving
	PhaseAnalyzing
	PhaseDebating
	PhaseDeciding
	PhaseActing
	PhaseReflecting
	PhaseMaintenance
	PhaseError
	PhaseShutdown
)

var phaseNames = [...]string{
	PhaseInitializing: "initializing",
	PhaseObserving:    "observing",
	PhaseAnalyzing:    "analyzing",
	PhaseDebating:     "debating",
	PhaseDeciding:     "deciding",
	PhaseActing:       "acting",
	PhaseReflecting:   "reflecting",
	PhaseMaintenance:  "maintenance",
	PhaseError:        "error",
	PhaseShutdown:     "shutdown",
}

// AllPhases returns every phase in declaration order.
func AllPhases() []Phase {
	phases := make([]Phase, len(phaseNames))
	for i := range phaseNames {
		phases[i] = Phase(i)
	}
	return phases
}

// String returns the lowercase phase name.
func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}

// IsValid reports whether p is a declared phase.
func (p Phase) IsValid() bool {
	return p >= 0 && int(p) < len(phaseNames)
}

// IsTerminal reports whether no transition may leave p.
func (p Phase) IsTerminal() bool {
	return p == PhaseShutdown
}

// ParsePhase converts a phase name (case-insensitive) to a Phase.
func ParsePhase(s string) (Phase, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range phaseNames {
		if n == name {
			return Phase(i), nil
		}
	}
	return 0, NewError(ErrInvalid, "parse phase", "unknown phase %q", s)
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	if !p.IsValid() {
		return nil, fmt.Errorf("invalid phase %d", int(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText decodes a phase name.
func (p *Phase) UnmarshalText(b []byte) error {
	parsed, err := ParsePhase(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
