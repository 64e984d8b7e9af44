package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/swarmcoord/internal/domain"
)

// memRepo is an in-memory repository for both decisions and statuses.
type memRepo[T any] struct {
	mu    sync.Mutex
	data  map[string]T
	saves int
	err   error
}

func (r *memRepo[T]) Load(ctx context.Context) (map[string]T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]T, len(r.data))
	for k, v := range r.data {
		out[k] = v
	}
	return out, nil
}

func (r *memRepo[T]) Save(ctx context.Context, m map[string]T) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.saves++
	r.data = make(map[string]T, len(m))
	for k, v := range m {
		r.data[k] = v
	}
	return nil
}

func newTestDecisionCore(t *testing.T, cfg DecisionConfig) (*DecisionCore, *memRepo[domain.SwarmDecision], *memRepo[domain.AgentStatus], *mockEmitter) {
	t.Helper()
	decisions := &memRepo[domain.SwarmDecision]{}
	statuses := &memRepo[domain.AgentStatus]{}
	emitter := &mockEmitter{}
	dc, err := NewDecisionCore(context.Background(), cfg, decisions, statuses, &mockLogger{}, emitter)
	require.NoError(t, err)
	return dc, decisions, statuses, emitter
}

func castVotes(t *testing.T, dc *DecisionCore, id string, votes ...string) domain.SwarmDecision {
	t.Helper()
	var d domain.SwarmDecision
	for i, v := range votes {
		var err error
		d, err = dc.Vote(context.Background(), id, fmt.Sprintf("Agent-%d", i+1), v)
		require.NoError(t, err)
	}
	return d
}

func TestDecisionCore_CreateDecision(t *testing.T) {
	dc, repo, _, _ := newTestDecisionCore(t, DecisionConfig{})
	dc.now = func() time.Time { return time.Date(2026, 3, 1, 9, 30, 15, 0, time.UTC) }

	d, err := dc.CreateDecision(context.Background(), "", "Adopt plan B", "switch routing", "Agent-1")
	require.NoError(t, err)

	assert.Regexp(t, `^decision_20260301_093015_[0-9a-f]{8}$`, d.DecisionID)
	assert.Equal(t, DefaultDecisionType, d.DecisionType)
	assert.Equal(t, domain.DecisionPending, d.Status)
	assert.Empty(t, d.Votes)
	assert.Equal(t, 1, repo.saves)
	assert.Contains(t, repo.data, d.DecisionID)

	other, err := dc.CreateDecision(context.Background(), "policy", "Second", "", "Agent-2")
	require.NoError(t, err)
	assert.NotEqual(t, d.DecisionID, other.DecisionID)

	_, err = dc.CreateDecision(context.Background(), "policy", " ", "", "Agent-1")
	assert.ErrorIs(t, err, domain.ErrInvalid)
	_, err = dc.CreateDecision(context.Background(), "policy", "Title", "", "")
	assert.ErrorIs(t, err, domain.ErrInvalid)
}

func TestDecisionCore_CreateDecisionPersistFailure(t *testing.T) {
	dc, repo, _, _ := newTestDecisionCore(t, DecisionConfig{})
	repo.err = errors.New("read-only filesystem")

	_, err := dc.CreateDecision(context.Background(), "policy", "Title", "", "Agent-1")
	require.ErrorIs(t, err, domain.ErrTransient)
	assert.Empty(t, dc.ListDecisions(""))
}

func TestDecisionCore_Resolution(t *testing.T) {
	tests := []struct {
		name  string
		votes []string
		want  domain.Resolution
	}{
		{"approved", []string{"yes", "yes", "no", "yes", "no"}, domain.ResolutionApproved},
		{"rejected", []string{"no", "no", "yes", "no", "abstain"}, domain.ResolutionRejected},
		{"tied with abstain", []string{"yes", "yes", "no", "no", "abstain"}, domain.ResolutionTied},
		{"all abstain", []string{"abstain", "abstain", "abstain", "abstain", "abstain"}, domain.ResolutionTied},
		{"case insensitive", []string{"YES", " Yes ", "no", "yes", "No"}, domain.ResolutionApproved},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dc, _, _, emitter := newTestDecisionCore(t, DecisionConfig{})
			d, err := dc.CreateDecision(context.Background(), "policy", "Title", "", "Agent-1")
			require.NoError(t, err)

			d = castVotes(t, dc, d.DecisionID, tt.votes...)
			assert.Equal(t, domain.DecisionResolved, d.Status)
			assert.Equal(t, tt.want, d.Resolution)
			require.NotNil(t, d.ResolvedAt)
			require.Len(t, emitter.resolved, 1)
			assert.Equal(t, d.DecisionID, emitter.resolved[0].DecisionID)
		})
	}
}

func TestDecisionCore_VotingBeforeThreshold(t *testing.T) {
	dc, _, _, emitter := newTestDecisionCore(t, DecisionConfig{})
	d, err := dc.CreateDecision(context.Background(), "policy", "Title", "", "Agent-1")
	require.NoError(t, err)

	d = castVotes(t, dc, d.DecisionID, "yes", "no", "yes", "yes")
	assert.Equal(t, domain.DecisionVoting, d.Status)
	assert.Empty(t, d.Resolution)
	assert.Empty(t, emitter.resolved)

	// A repeat vote overwrites and does not count twice.
	d, err = dc.Vote(context.Background(), d.DecisionID, "Agent-1", "no")
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionVoting, d.Status)
	assert.Equal(t, domain.VoteNo, d.Votes["Agent-1"])

	tally, err := dc.Tally(d.DecisionID)
	require.NoError(t, err)
	assert.Equal(t, domain.VoteTally{Yes: 2, No: 2}, tally)
}

func TestDecisionCore_ResolvedIsFinal(t *testing.T) {
	dc, _, _, _ := newTestDecisionCore(t, DecisionConfig{})
	d, err := dc.CreateDecision(context.Background(), "policy", "Title", "", "Agent-1")
	require.NoError(t, err)
	resolved := castVotes(t, dc, d.DecisionID, "yes", "yes", "yes", "no", "no")

	for _, vote := range []string{"no", "no", "no"} {
		_, err := dc.Vote(context.Background(), d.DecisionID, "Agent-9", vote)
		require.ErrorIs(t, err, domain.ErrConflict)
		_, err = dc.Vote(context.Background(), d.DecisionID, "Agent-1", vote)
		require.ErrorIs(t, err, domain.ErrConflict)
	}

	after, err := dc.Decision(d.DecisionID)
	require.NoError(t, err)
	assert.Equal(t, resolved.Resolution, after.Resolution)
	assert.Equal(t, resolved.Votes, after.Votes)
}

func TestDecisionCore_VoteErrors(t *testing.T) {
	dc, _, _, _ := newTestDecisionCore(t, DecisionConfig{Roster: []string{"Agent-1", "Agent-2"}})
	d, err := dc.CreateDecision(context.Background(), "policy", "Title", "", "Agent-1")
	require.NoError(t, err)

	_, err = dc.Vote(context.Background(), "decision_missing", "Agent-1", "yes")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = dc.Vote(context.Background(), d.DecisionID, "Agent-1", "maybe")
	assert.ErrorIs(t, err, domain.ErrInvalid)

	_, err = dc.Vote(context.Background(), d.DecisionID, "Agent-7", "yes")
	assert.ErrorIs(t, err, domain.ErrInvalid)

	_, err = dc.Vote(context.Background(), d.DecisionID, "", "yes")
	assert.ErrorIs(t, err, domain.ErrInvalid)

	got, err := dc.Decision(d.DecisionID)
	require.NoError(t, err)
	assert.Empty(t, got.Votes)
}

func TestDecisionCore_VotePersistFailureRollsBack(t *testing.T) {
	dc, repo, _, _ := newTestDecisionCore(t, DecisionConfig{})
	d, err := dc.CreateDecision(context.Background(), "policy", "Title", "", "Agent-1")
	require.NoError(t, err)

	repo.err = errors.New("disk full")
	_, err = dc.Vote(context.Background(), d.DecisionID, "Agent-1", "yes")
	require.ErrorIs(t, err, domain.ErrTransient)

	got, err := dc.Decision(d.DecisionID)
	require.NoError(t, err)
	assert.Empty(t, got.Votes)
	assert.Equal(t, domain.DecisionPending, got.Status)
}

func TestDecisionCore_ReloadFromRepository(t *testing.T) {
	dc, decisions, statuses, _ := newTestDecisionCore(t, DecisionConfig{})
	resolved, err := dc.CreateDecision(context.Background(), "policy", "One", "", "Agent-1")
	require.NoError(t, err)
	castVotes(t, dc, resolved.DecisionID, "yes", "yes", "no", "no", "abstain")
	open, err := dc.CreateDecision(context.Background(), "policy", "Two", "", "Agent-2")
	require.NoError(t, err)
	castVotes(t, dc, open.DecisionID, "yes")
	_, err = dc.UpdateAgentStatus(context.Background(), "Agent-1", "busy", "voting", map[string]string{"zone": "eu"})
	require.NoError(t, err)

	reloaded, err := NewDecisionCore(context.Background(), DecisionConfig{}, decisions, statuses, &mockLogger{}, nil)
	require.NoError(t, err)

	assert.Equal(t, dc.ListDecisions(""), reloaded.ListDecisions(""))
	got, err := reloaded.Decision(resolved.DecisionID)
	require.NoError(t, err)
	assert.Equal(t, domain.ResolutionTied, got.Resolution)

	status, err := reloaded.AgentStatus("Agent-1")
	require.NoError(t, err)
	assert.Equal(t, "eu", status.Metadata["zone"])
}

func TestDecisionCore_ListDecisions(t *testing.T) {
	dc, _, _, _ := newTestDecisionCore(t, DecisionConfig{VoteThreshold: 1})
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	var n int
	dc.now = func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}

	first, err := dc.CreateDecision(context.Background(), "policy", "First", "", "Agent-1")
	require.NoError(t, err)
	second, err := dc.CreateDecision(context.Background(), "policy", "Second", "", "Agent-1")
	require.NoError(t, err)
	_, err = dc.Vote(context.Background(), first.DecisionID, "Agent-1", "yes")
	require.NoError(t, err)

	all := dc.ListDecisions("")
	require.Len(t, all, 2)
	assert.Equal(t, first.DecisionID, all[0].DecisionID)

	pending := dc.ListDecisions(domain.DecisionPending)
	require.Len(t, pending, 1)
	assert.Equal(t, second.DecisionID, pending[0].DecisionID)

	assert.Len(t, dc.ListDecisions(domain.DecisionResolved), 1)
}

func TestDecisionCore_AgentStatuses(t *testing.T) {
	dc, _, statuses, _ := newTestDecisionCore(t, DecisionConfig{})

	_, err := dc.UpdateAgentStatus(context.Background(), "Agent-2", "idle", "", nil)
	require.NoError(t, err)
	s, err := dc.UpdateAgentStatus(context.Background(), "Agent-1", "busy", "indexing", map[string]string{"k": "v"})
	require.NoError(t, err)
	assert.Equal(t, "indexing", s.CurrentTask)
	assert.Equal(t, 2, statuses.saves)

	list := dc.ListAgentStatuses()
	require.Len(t, list, 2)
	assert.Equal(t, "Agent-1", list[0].AgentID)

	_, err = dc.AgentStatus("Agent-9")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = dc.UpdateAgentStatus(context.Background(), "Agent-1", "", "", nil)
	assert.ErrorIs(t, err, domain.ErrInvalid)

	statuses.err = errors.New("disk full")
	_, err = dc.UpdateAgentStatus(context.Background(), "Agent-3", "idle", "", nil)
	require.ErrorIs(t, err, domain.ErrTransient)
	_, err = dc.AgentStatus("Agent-3")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDecisionCore_Flush(t *testing.T) {
	dc, decisions, statuses, _ := newTestDecisionCore(t, DecisionConfig{})
	require.NoError(t, dc.Flush(context.Background()))
	assert.Equal(t, 1, decisions.saves)
	assert.Equal(t, 1, statuses.saves)

	decisions.err = errors.New("boom")
	assert.ErrorIs(t, dc.Flush(context.Background()), domain.ErrTransient)
}
