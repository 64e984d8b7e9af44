package app

import (
	"time"

	"github.com/bft-labs/swarmcoord/internal/domain"
)

// Context flags understood by DefaultStrategy.
const (
	FlagForceAnalysis       = "force_analysis"
	FlagNeedsMoreData       = "needs_more_data"
	FlagReanalyze           = "reanalyze"
	FlagConsensusReached    = "consensus_reached"
	FlagDecisionDeferred    = "decision_deferred"
	FlagMaintenanceRequired = "maintenance_required"
	FlagShutdownRequested   = "shutdown_requested"
	FlagRecoverable         = "recoverable"
)

// Context keys written by the coordinator after each phase dispatch.
const (
	KeyLastObservation = "last_observation"
	KeyLastAnalysis    = "last_analysis"
	KeyLastDebate      = "last_debate"
	KeyLastDecision    = "last_decision"
	KeyLastAction      = "last_action"
	KeyLastReflection  = "last_reflection"
	KeyLastStatus      = "last_status"
	KeyLastError       = "last_error"
)

var allowedTransitions = map[domain.Phase][]domain.Phase{
	domain.PhaseInitializing: {domain.PhaseObserving, domain.PhaseError, domain.PhaseShutdown},
	domain.PhaseObserving:    {domain.PhaseAnalyzing, domain.PhaseError},
	domain.PhaseAnalyzing:    {domain.PhaseDebating, domain.PhaseObserving, domain.PhaseError},
	domain.PhaseDebating:     {domain.PhaseDeciding, domain.PhaseAnalyzing, domain.PhaseError},
	domain.PhaseDeciding:     {domain.PhaseActing, domain.PhaseDebating, domain.PhaseError},
	domain.PhaseActing:       {domain.PhaseReflecting, domain.PhaseError},
	domain.PhaseReflecting:   {domain.PhaseObserving, domain.PhaseMaintenance, domain.PhaseError},
	domain.PhaseMaintenance:  {domain.PhaseObserving, domain.PhaseShutdown, domain.PhaseError},
	domain.PhaseError:        {domain.PhaseInitializing, domain.PhaseShutdown},
	domain.PhaseShutdown:     {},
}

// consumedFlags are cleared from the agent context when it leaves a phase,
// so a one-shot request cannot fire twice.
var consumedFlags = map[domain.Phase][]string{
	domain.PhaseObserving:   {FlagForceAnalysis},
	domain.PhaseAnalyzing:   {FlagNeedsMoreData},
	domain.PhaseDebating:    {FlagReanalyze, FlagConsensusReached},
	domain.PhaseDeciding:    {FlagDecisionDeferred},
	domain.PhaseReflecting:  {FlagMaintenanceRequired},
	domain.PhaseMaintenance: {FlagShutdownRequested},
	domain.PhaseError:       {FlagRecoverable},
}

// DefaultPhaseTimeouts are the maximum durations an agent may spend in a
// phase before it is forced into ERROR. Phases not listed never time out.
func DefaultPhaseTimeouts() map[domain.Phase]time.Duration {
	return map[domain.Phase]time.Duration{
		domain.PhaseObserving:  300 * time.Second,
		domain.PhaseAnalyzing:  600 * time.Second,
		domain.PhaseDebating:   1800 * time.Second,
		domain.PhaseDeciding:   300 * time.Second,
		domain.PhaseActing:     900 * time.Second,
		domain.PhaseReflecting: 300 * time.Second,
	}
}

// CanTransition reports whether the transition table allows from -> to.
func CanTransition(from, to domain.Phase) bool {
	for _, p := range allowedTransitions[from] {
		if p == to {
			return true
		}
	}
	return false
}

// AllowedTransitions returns the phases reachable from p in one step.
func AllowedTransitions(p domain.Phase) []domain.Phase {
	return append([]domain.Phase(nil), allowedTransitions[p]...)
}

// agentStatusFor maps a phase to the coarse status reported in AgentState.
func agentStatusFor(p domain.Phase) string {
	switch p {
	case domain.PhaseMaintenance:
		return domain.StatusMaintenance
	case domain.PhaseError:
		return domain.StatusError
	case domain.PhaseShutdown:
		return domain.StatusShutdown
	default:
		return domain.StatusActive
	}
}
