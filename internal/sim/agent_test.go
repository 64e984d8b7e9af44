package sim

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/swarmcoord/internal/app"
	"github.com/bft-labs/swarmcoord/internal/domain"
	"github.com/bft-labs/swarmcoord/pkg/log"
)

var zeroTime = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type memRepo[T any] struct{ data map[string]T }

func (r *memRepo[T]) Load(ctx context.Context) (map[string]T, error) { return map[string]T{}, nil }
func (r *memRepo[T]) Save(ctx context.Context, m map[string]T) error {
	r.data = m
	return nil
}

func TestAgent_Deterministic(t *testing.T) {
	a := New("Agent-1")
	b := New("Agent-1")
	state := *domain.NewAgentState("Agent-1", nil, zeroTime)

	for i := 0; i < 3; i++ {
		va, err := a.Observe(context.Background(), state)
		require.NoError(t, err)
		vb, err := b.Observe(context.Background(), state)
		require.NoError(t, err)
		assert.Equal(t, va, vb)
	}
}

func TestAgent_DrivesFullLoop(t *testing.T) {
	c := app.NewCoordinator(app.CoordinatorConfig{}, nil, nil, log.Discard, nil)
	agent := New("Agent-1", WithConsensusAfter(2), WithMaintenanceEvery(1))
	require.NoError(t, c.RegisterAgent(agent))

	// init, 2 more observations, analyze, 2 debate rounds, decide, act, reflect
	for i := 0; i < 9; i++ {
		_, err := c.ExecuteCycle(context.Background(), "Agent-1", nil)
		require.NoError(t, err)
	}

	state, err := c.AgentState("Agent-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseMaintenance, state.CurrentPhase)
	assert.Len(t, state.Decisions, 1)
	assert.Len(t, state.Actions, 1)

	// Maintenance reports healthy and returns to observing.
	_, err = c.ExecuteCycle(context.Background(), "Agent-1", nil)
	require.NoError(t, err)
	state, _ = c.AgentState("Agent-1")
	assert.Equal(t, domain.PhaseObserving, state.CurrentPhase)
}

func TestAgent_VotesOnOpenDecisions(t *testing.T) {
	ctx := context.Background()
	dc, err := app.NewDecisionCore(ctx, app.DecisionConfig{VoteThreshold: 3},
		&memRepo[domain.SwarmDecision]{}, &memRepo[domain.AgentStatus]{}, log.Discard, nil)
	require.NoError(t, err)
	d, err := dc.CreateDecision(ctx, "policy", "Scale out", "", "Agent-0")
	require.NoError(t, err)

	agents := []*Agent{
		New("Agent-1", WithBallotBox(dc)),
		New("Agent-2", WithBallotBox(dc)),
		New("Agent-3", WithBallotBox(dc)),
	}
	state := *domain.NewAgentState("x", nil, zeroTime)
	for _, a := range agents {
		_, err := a.Act(ctx, state)
		require.NoError(t, err)
		// Acting again does not vote twice.
		_, err = a.Act(ctx, state)
		require.NoError(t, err)
		assert.Equal(t, 1, a.Votes())
	}

	got, err := dc.Decision(d.DecisionID)
	require.NoError(t, err)
	assert.True(t, got.IsResolved())
	assert.Len(t, got.Votes, 3)
	assert.Equal(t, ballot(d.DecisionID, "Agent-1"), string(got.Votes["Agent-1"]))
}
