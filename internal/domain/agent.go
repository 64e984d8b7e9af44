package domain

import (
	"maps"
	"time"
)

// Agent status values reported in AgentState.Status.
const (
	StatusActive      = "active"
	StatusMaintenance = "maintenance"
	StatusError       = "error"
	StatusShutdown    = "shutdown"
)

// Performance metric keys maintained by the coordinator.
const (
	MetricCyclesTotal       = "cycles_total"
	MetricTransitionsOK     = "transitions_ok"
	MetricTransitionsFailed = "transitions_failed"
	MetricAvgCycleMillis    = "avg_cycle_ms"
)

// AgentState is the lifecycle state of one registered agent.
// It is owned by the coordinator; callers only ever see snapshots.
type AgentState struct {
	AgentID            string                 `json:"agent_id"`
	CurrentPhase       Phase                  `json:"current_phase"`
	Status             string                 `json:"status"`
	Capabilities       []string               `json:"capabilities"`
	Context            map[string]interface{} `json:"context"`
	Observations       []interface{}          `json:"observations"`
	Decisions          []interface{}          `json:"decisions"`
	Actions            []interface{}          `json:"actions"`
	PerformanceMetrics map[string]float64     `json:"performance_metrics"`
	LastActivity       time.Time              `json:"last_activity"`

	// PhaseStartedAt is when CurrentPhase was entered; phase timeouts are
	// measured from here.
	PhaseStartedAt time.Time `json:"phase_started_at"`

	CycleCount int `json:"cycle_count"`
	ErrorCount int `json:"error_count"`

	// AnalyzedThrough is the number of observations already handed to analysis.
	AnalyzedThrough int `json:"analyzed_through"`

	// DebateRounds counts debate cycles since DEBATING was last entered.
	DebateRounds int `json:"debate_rounds"`
}

// NewAgentState returns the state of a freshly registered agent.
func NewAgentState(agentID string, capabilities []string, now time.Time) *AgentState {
	return &AgentState{
		AgentID:            agentID,
		CurrentPhase:       PhaseInitializing,
		Status:             StatusActive,
		Capabilities:       append([]string(nil), capabilities...),
		Context:            make(map[string]interface{}),
		Observations:       []interface{}{},
		Decisions:          []interface{}{},
		Actions:            []interface{}{},
		PerformanceMetrics: make(map[string]float64),
		LastActivity:       now,
		PhaseStartedAt:     now,
	}
}

// Snapshot returns a copy that shares no maps or slices with s.
func (s *AgentState) Snapshot() AgentState {
	cp := *s
	cp.Capabilities = append([]string(nil), s.Capabilities...)
	cp.Context = maps.Clone(s.Context)
	cp.Observations = append([]interface{}(nil), s.Observations...)
	cp.Decisions = append([]interface{}(nil), s.Decisions...)
	cp.Actions = append([]interface{}(nil), s.Actions...)
	cp.PerformanceMetrics = maps.Clone(s.PerformanceMetrics)
	return cp
}

// PendingObservations returns how many observations have not yet been analyzed.
func (s *AgentState) PendingObservations() int {
	return len(s.Observations) - s.AnalyzedThrough
}

// TimeInPhase returns how long the agent has been in its current phase.
func (s *AgentState) TimeInPhase(now time.Time) time.Duration {
	return now.Sub(s.PhaseStartedAt)
}

// Flag reports whether the context key holds boolean true.
func (s *AgentState) Flag(key string) bool {
	v, ok := s.Context[key].(bool)
	return ok && v
}

// FlagSet reports whether the context key holds a boolean at all.
func (s *AgentState) FlagSet(key string) bool {
	_, ok := s.Context[key].(bool)
	return ok
}

// AgentStatus is the status an agent reports about itself to the swarm,
// persisted independently of the lifecycle state.
type AgentStatus struct {
	AgentID     string            `json:"agent_id"`
	Status      string            `json:"status"`
	CurrentTask string            `json:"current_task,omitempty"`
	LastUpdated time.Time         `json:"last_updated"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// PhaseOutcome lets a phase method return a value together with context
// flags for the transition strategy (e.g. "consensus_reached"). The
// coordinator stores Value and merges Flags into the agent's context.
type PhaseOutcome struct {
	Value interface{}
	Flags map[string]bool
}
