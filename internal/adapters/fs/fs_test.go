package fs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/swarmcoord/internal/domain"
)

func TestDecisionFileRepository_RoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data", "swarm")
	repo := NewDecisionFileRepository(dir)

	empty, err := repo.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, empty)

	resolvedAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	in := map[string]domain.SwarmDecision{
		"decision_20260301_095900_0a1b2c3d": {
			DecisionID:   "decision_20260301_095900_0a1b2c3d",
			DecisionType: "policy",
			Title:        "Adopt plan B",
			ProposedBy:   "Agent-1",
			CreatedAt:    time.Date(2026, 3, 1, 9, 59, 0, 0, time.UTC),
			Status:       domain.DecisionResolved,
			Votes: map[string]domain.Vote{
				"Agent-1": domain.VoteYes, "Agent-2": domain.VoteYes, "Agent-3": domain.VoteNo,
				"Agent-4": domain.VoteNo, "Agent-5": domain.VoteAbstain,
			},
			Resolution: domain.ResolutionTied,
			ResolvedAt: &resolvedAt,
		},
		"decision_20260301_100500_deadbeef": {
			DecisionID: "decision_20260301_100500_deadbeef",
			Title:      "Open",
			Status:     domain.DecisionVoting,
			Votes:      map[string]domain.Vote{"Agent-2": domain.VoteYes},
			CreatedAt:  time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC),
		},
	}
	require.NoError(t, repo.Save(context.Background(), in))

	out, err := repo.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, in, out)

	info, err := os.Stat(repo.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	_, err = os.Stat(repo.Path() + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file must be renamed away")
}

func TestDecisionFileRepository_Corrupt(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DecisionsFileName), []byte("{not json"), 0o600))

	_, err := NewDecisionFileRepository(dir).Load(context.Background())
	assert.Error(t, err)
}

func TestAgentStatusFileRepository_RoundTrip(t *testing.T) {
	repo := NewAgentStatusFileRepository(t.TempDir())

	in := map[string]domain.AgentStatus{
		"Agent-1": {
			AgentID:     "Agent-1",
			Status:      "busy",
			CurrentTask: "indexing",
			LastUpdated: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
			Metadata:    map[string]string{"zone": "eu"},
		},
	}
	require.NoError(t, repo.Save(context.Background(), in))

	out, err := repo.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, in, out)
	assert.Equal(t, AgentStatusFileName, filepath.Base(repo.Path()))
}

func TestProtocolFileSource(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		got, err := NewProtocolFileSource(filepath.Join(t.TempDir(), "nope.json")).LoadProtocols(context.Background())
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("json", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "protocol_manager.json")
		require.NoError(t, os.WriteFile(path, []byte(`{
  "monitoring_interval": 30,
  "custom_protocols": {
    "network_partition": {
      "activation_conditions": ["heartbeat_gap"],
      "response_actions": [
        {"name": "checkpoint_state", "priority": 1, "timeout_seconds": 60},
        {"name": "elect_leader", "priority": 2}
      ],
      "escalation_procedures": ["page_operator"]
    }
  }
}`), 0o600))

		got, err := NewProtocolFileSource(path).LoadProtocols(context.Background())
		require.NoError(t, err)
		require.Contains(t, got, "network_partition")
		p := got["network_partition"]
		assert.Equal(t, "network_partition", p.Name)
		require.Len(t, p.ResponseActions, 2)
		assert.Equal(t, 60, p.ResponseActions[0].TimeoutSeconds)
		assert.NoError(t, p.Validate())
	})

	t.Run("yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "protocols.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
custom_protocols:
  storage_degraded:
    name: storage_recovery
    response_actions:
      - name: checkpoint_state
        timeout_seconds: 30
      - name: notify_swarm
`), 0o600))

		got, err := NewProtocolFileSource(path).LoadProtocols(context.Background())
		require.NoError(t, err)
		require.Contains(t, got, "storage_recovery")
		assert.Len(t, got["storage_recovery"].ResponseActions, 2)
	})

	t.Run("malformed", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "protocol_manager.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"custom_protocols": [`), 0o600))
		_, err := NewProtocolFileSource(path).LoadProtocols(context.Background())
		assert.Error(t, err)
	})
}
