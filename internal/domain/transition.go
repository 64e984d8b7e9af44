package domain

import "time"

// LifecycleTransition records one attempt to move an agent between phases.
// Records are immutable once appended to the history.
type LifecycleTransition struct {
	TransitionID string                 `json:"transition_id"`
	AgentID      string                 `json:"agent_id"`
	FromPhase    Phase                  `json:"from_phase"`
	ToPhase      Phase                  `json:"to_phase"`
	Trigger      string                 `json:"trigger"`
	Context      map[string]interface{} `json:"context,omitempty"`
	Timestamp    time.Time              `json:"timestamp"`
	Success      bool                   `json:"success"`
	ErrorMessage string                 `json:"error_message,omitempty"`
}

// Transition triggers recorded by the coordinator.
const (
	TriggerStrategy     = "strategy"
	TriggerPhaseTimeout = "phase_timeout"
	TriggerPhaseError   = "phase_error"
	TriggerForced       = "forced"
)
