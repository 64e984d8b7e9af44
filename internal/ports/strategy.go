package ports

import "github.com/bft-labs/swarmcoord/internal/domain"

// TransitionStrategy decides whether an agent should leave its current phase.
// It sees a snapshot taken after the phase method ran and its result was
// stored. It returns the target phase, a trigger label, and whether a
// transition is due. The coordinator validates the target against the
// transition table; strategies do not need to.
type TransitionStrategy interface {
	ShouldTransition(state domain.AgentState) (to domain.Phase, trigger string, ok bool)
}

// TransitionStrategyFunc adapts a function to TransitionStrategy.
type TransitionStrategyFunc func(state domain.AgentState) (domain.Phase, string, bool)

// ShouldTransition calls f.
func (f TransitionStrategyFunc) ShouldTransition(state domain.AgentState) (domain.Phase, string, bool) {
	return f(state)
}
