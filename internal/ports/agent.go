package ports

import (
	"context"

	"github.com/bft-labs/swarmcoord/internal/domain"
)

// SwarmAgent is the capability interface an agent must satisfy to be driven
// by the lifecycle coordinator. Each method corresponds to one phase; the
// returned value is stored in the agent's context and history.
//
// Methods are called from the coordination goroutine without holding any
// coordinator lock, one at a time per agent.
type SwarmAgent interface {
	// ID returns the unique agent identifier.
	ID() string

	// Capabilities lists what the agent can do.
	Capabilities() []string

	Observe(ctx context.Context, state domain.AgentState) (interface{}, error)
	Analyze(ctx context.Context, state domain.AgentState) (interface{}, error)
	Debate(ctx context.Context, state domain.AgentState) (interface{}, error)
	Decide(ctx context.Context, state domain.AgentState) (interface{}, error)
	Act(ctx context.Context, state domain.AgentState) (interface{}, error)
	Reflect(ctx context.Context, state domain.AgentState) (interface{}, error)

	// Status reports the agent's health. Used in MAINTENANCE and ERROR.
	Status(ctx context.Context) (AgentHealth, error)
}

// AgentHealth is the self-reported health of an agent.
type AgentHealth struct {
	Healthy bool                   `json:"healthy"`
	Detail  string                 `json:"detail,omitempty"`
	Extra   map[string]interface{} `json:"extra,omitempty"`
}

// IsHealthy reports h.Healthy.
func (h AgentHealth) IsHealthy() bool {
	return h.Healthy
}
