package ports

import (
	"context"

	"github.com/bft-labs/swarmcoord/internal/domain"
)

// DecisionRepository persists the full set of swarm decisions.
type DecisionRepository interface {
	// Load returns every stored decision keyed by ID.
	// Returns an empty map and nil error if nothing has been stored yet.
	Load(ctx context.Context) (map[string]domain.SwarmDecision, error)

	// Save replaces the stored set atomically.
	Save(ctx context.Context, decisions map[string]domain.SwarmDecision) error
}

// AgentStatusRepository persists the statuses agents report about themselves.
type AgentStatusRepository interface {
	// Load returns every stored status keyed by agent ID.
	// Returns an empty map and nil error if nothing has been stored yet.
	Load(ctx context.Context) (map[string]domain.AgentStatus, error)

	// Save replaces the stored set atomically.
	Save(ctx context.Context, statuses map[string]domain.AgentStatus) error
}

// TransitionLog is the append-only audit trail of lifecycle transitions.
type TransitionLog interface {
	// Append records a transition. Records are never updated.
	Append(ctx context.Context, t domain.LifecycleTransition) error

	// List returns the most recent transitions, oldest first. An empty
	// agentID matches all agents; limit <= 0 means no limit.
	List(ctx context.Context, agentID string, limit int) ([]domain.LifecycleTransition, error)

	// Close releases any resources held by the log.
	Close() error
}

// ProtocolSource supplies emergency protocol definitions.
type ProtocolSource interface {
	// LoadProtocols returns custom protocol definitions keyed by name.
	LoadProtocols(ctx context.Context) (map[string]domain.EmergencyProtocol, error)
}
