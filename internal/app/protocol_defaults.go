package app

import "github.com/bft-labs/swarmcoord/internal/domain"

// Names of the built-in protocols.
const (
	ProtocolWorkflowRestoration = "workflow_restoration"
	ProtocolAgentRecovery       = "agent_recovery"
)

// Actions with real handlers. Anything else is simulated.
const (
	ActionPauseCoordination = "pause_coordination"
	ActionNotifySwarm       = "notify_swarm"
	ActionCheckpointState   = "checkpoint_state"
)

// DefaultProtocols returns the built-in emergency protocols.
func DefaultProtocols() map[string]domain.EmergencyProtocol {
	return map[string]domain.EmergencyProtocol{
		ProtocolWorkflowRestoration: {
			Name:        ProtocolWorkflowRestoration,
			Description: "Restore stalled coordination workflows from the last checkpoint",
			ActivationConditions: []string{
				"workflow_stalled",
				"coordination_loop_failure",
				"decision_deadlock",
			},
			ResponseActions: []domain.ResponseAction{
				{Name: ActionCheckpointState, Description: "Persist decisions and agent statuses", Priority: 1, TimeoutSeconds: 60},
				{Name: "restore_workflow_checkpoint", Description: "Reload workflow state from the checkpoint", Priority: 2, TimeoutSeconds: 120},
				{Name: "reassign_stalled_tasks", Description: "Hand stalled tasks to healthy agents", Priority: 3, TimeoutSeconds: 120},
				{Name: ActionNotifySwarm, Description: "Tell the swarm workflows were restored", Priority: 4, TimeoutSeconds: 30},
			},
			EscalationProcedures: []string{"notify_captain", "request_manual_review"},
			RecoveryProcedures:   []string{"resume_coordination", "replay_pending_decisions"},
			ValidationCriteria:   []string{"coordination_loop_running", "no_pending_deadlocks"},
		},
		ProtocolAgentRecovery: {
			Name:        ProtocolAgentRecovery,
			Description: "Isolate and recover unresponsive or failing agents",
			ActivationConditions: []string{
				"agent_unresponsive",
				"agent_phase_timeout",
				"repeated_phase_errors",
			},
			ResponseActions: []domain.ResponseAction{
				{Name: "isolate_failed_agent", Description: "Stop routing work to the failed agent", Priority: 1, TimeoutSeconds: 60},
				{Name: "reassign_agent_tasks", Description: "Move the agent's tasks to peers", Priority: 2, TimeoutSeconds: 120},
				{Name: ActionNotifySwarm, Description: "Announce the recovery to the swarm", Priority: 3, TimeoutSeconds: 30},
			},
			EscalationProcedures: []string{"escalate_to_captain"},
			RecoveryProcedures:   []string{"reinitialize_agent"},
			ValidationCriteria:   []string{"agent_heartbeat_restored"},
		},
	}
}
