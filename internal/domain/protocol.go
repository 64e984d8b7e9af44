package domain

import (
	"fmt"
	"time"
)

// ProtocolStatus is the activation state of an emergency protocol.
type ProtocolStatus string

const (
	ProtocolInactive  ProtocolStatus = "inactive"
	ProtocolActive    ProtocolStatus = "active"
	ProtocolEscalated ProtocolStatus = "escalated"
	ProtocolCompleted ProtocolStatus = "completed"
	ProtocolFailed    ProtocolStatus = "failed"
)

// InFlight reports whether a protocol in this status has a live execution.
func (s ProtocolStatus) InFlight() bool {
	return s == ProtocolActive || s == ProtocolEscalated
}

// ResponseAction is one step of an emergency protocol.
type ResponseAction struct {
	Name           string `json:"name" yaml:"name"`
	Description    string `json:"description,omitempty" yaml:"description,omitempty"`
	Priority       int    `json:"priority,omitempty" yaml:"priority,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
}

// Timeout returns the action's advisory time budget. Zero means none.
func (a ResponseAction) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// EmergencyProtocol is a static, named bundle of response actions.
type EmergencyProtocol struct {
	Name                 string           `json:"name" yaml:"name"`
	Description          string           `json:"description,omitempty" yaml:"description,omitempty"`
	ActivationConditions []string         `json:"activation_conditions" yaml:"activation_conditions"`
	ResponseActions      []ResponseAction `json:"response_actions" yaml:"response_actions"`
	EscalationProcedures []string         `json:"escalation_procedures" yaml:"escalation_procedures"`
	RecoveryProcedures   []string         `json:"recovery_procedures" yaml:"recovery_procedures"`
	ValidationCriteria   []string         `json:"validation_criteria" yaml:"validation_criteria"`
}

// Validate checks that the protocol can be executed.
func (p EmergencyProtocol) Validate() error {
	if p.Name == "" {
		return NewError(ErrInvalid, "validate protocol", "protocol name is required")
	}
	if len(p.ResponseActions) == 0 {
		return NewError(ErrInvalid, "validate protocol", "protocol %q has no response actions", p.Name)
	}
	seen := make(map[string]bool, len(p.ResponseActions))
	for i, a := range p.ResponseActions {
		if a.Name == "" {
			return NewError(ErrInvalid, "validate protocol", "protocol %q action %d has no name", p.Name, i)
		}
		if seen[a.Name] {
			return NewError(ErrInvalid, "validate protocol", "protocol %q repeats action %q", p.Name, a.Name)
		}
		seen[a.Name] = true
	}
	return nil
}

// Action result statuses.
const (
	ActionCompleted = "completed"
	ActionSimulated = "simulated"
	ActionFailed    = "failed"
)

// ActionResult is the outcome of executing one response action.
type ActionResult struct {
	Action    string        `json:"action"`
	Status    string        `json:"status"`
	Detail    string        `json:"detail,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	TimedOut  bool          `json:"timed_out,omitempty"`
}

// ProtocolExecution is one activation of a protocol, from activation to
// completion, failure or abort.
type ProtocolExecution struct {
	ExecutionID      string          `json:"execution_id"`
	ProtocolName     string          `json:"protocol_name"`
	Source           string          `json:"source"`
	Status           ProtocolStatus  `json:"status"`
	ActivatedAt      time.Time       `json:"activated_at"`
	FinishedAt       *time.Time      `json:"finished_at,omitempty"`
	ActionsTotal     int             `json:"actions_total"`
	ActionsCompleted int             `json:"actions_completed"`
	Completed        map[string]bool `json:"completed"`
	Results          []ActionResult  `json:"results"`
	Escalations      []string        `json:"escalations,omitempty"`
	Error            string          `json:"error,omitempty"`
}

// Done reports whether every response action has completed.
func (e *ProtocolExecution) Done() bool {
	return e.ActionsCompleted >= e.ActionsTotal
}

// Progress renders completion as "done/total".
func (e *ProtocolExecution) Progress() string {
	return fmt.Sprintf("%d/%d", e.ActionsCompleted, e.ActionsTotal)
}

// Clone returns a copy sharing no maps or slices with e.
func (e *ProtocolExecution) Clone() ProtocolExecution {
	cp := *e
	cp.Completed = make(map[string]bool, len(e.Completed))
	for k, v := range e.Completed {
		cp.Completed[k] = v
	}
	cp.Results = append([]ActionResult(nil), e.Results...)
	cp.Escalations = append([]string(nil), e.Escalations...)
	if e.FinishedAt != nil {
		at := *e.FinishedAt
		cp.FinishedAt = &at
	}
	return cp
}
