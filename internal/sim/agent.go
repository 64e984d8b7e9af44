// Package sim provides a deterministic SwarmAgent for running the swarm
// without real workers.
package sim

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/bft-labs/swarmcoord/internal/app"
	"github.com/bft-labs/swarmcoord/internal/domain"
	"github.com/bft-labs/swarmcoord/internal/ports"
)

// BallotBox is the part of the decision core a simulated agent votes through.
type BallotBox interface {
	ListDecisions(status domain.DecisionStatus) []domain.SwarmDecision
	Vote(ctx context.Context, decisionID, agentID, vote string) (domain.SwarmDecision, error)
}

// Option configures an Agent.
type Option func(*Agent)

// WithCapabilities sets the advertised capabilities.
func WithCapabilities(caps ...string) Option {
	return func(a *Agent) { a.caps = caps }
}

// WithConsensusAfter makes the agent report consensus after n debate rounds.
// Zero leaves it to the strategy's round limit.
func WithConsensusAfter(n int) Option {
	return func(a *Agent) { a.consensusAfter = n }
}

// WithMaintenanceEvery requests maintenance after every n-th reflection.
func WithMaintenanceEvery(n int) Option {
	return func(a *Agent) { a.maintenanceEvery = n }
}

// WithBallotBox lets the agent vote on open decisions when it acts.
func WithBallotBox(b BallotBox) Option {
	return func(a *Agent) { a.ballots = b }
}

// Agent is a simulated swarm member. Every phase result is derived from
// its own counters and the state it is given, so runs are reproducible.
type Agent struct {
	id               string
	caps             []string
	consensusAfter   int
	maintenanceEvery int
	ballots          BallotBox

	mu          sync.Mutex
	observed    int
	reflections int
	votes       int
}

var _ ports.SwarmAgent = (*Agent)(nil)

// New creates a simulated agent.
func New(id string, opts ...Option) *Agent {
	a := &Agent{
		id:   id,
		caps: []string{"observe", "analyze", "vote"},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ID returns the agent ID.
func (a *Agent) ID() string { return a.id }

// Capabilities returns a copy of the agent's capability list.
func (a *Agent) Capabilities() []string { return append([]string(nil), a.caps...) }

// Votes returns how many ballots the agent has cast.
func (a *Agent) Votes() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.votes
}

// Observe returns a numbered reading with a signal derived from the agent ID.
func (a *Agent) Observe(ctx context.Context, state domain.AgentState) (interface{}, error) {
	a.mu.Lock()
	a.observed++
	n := a.observed
	a.mu.Unlock()

	return map[string]interface{}{
		"agent":  a.id,
		"seq":    n,
		"signal": signal(a.id, n),
	}, nil
}

// Analyze averages the signals observed since the last analysis.
func (a *Agent) Analyze(ctx context.Context, state domain.AgentState) (interface{}, error) {
	pending := state.Observations[state.AnalyzedThrough:]
	var sum int
	for _, o := range pending {
		if m, ok := o.(map[string]interface{}); ok {
			if v, ok := m["signal"].(int); ok {
				sum += v
			}
		}
	}
	mean := 0.0
	if len(pending) > 0 {
		mean = float64(sum) / float64(len(pending))
	}
	return map[string]interface{}{
		"observations": len(pending),
		"mean_signal":  mean,
		"trend":        trend(mean),
	}, nil
}

// Debate argues from the last analysis and reports consensus once the
// configured round is reached.
func (a *Agent) Debate(ctx context.Context, state domain.AgentState) (interface{}, error) {
	round := state.DebateRounds + 1
	out := domain.PhaseOutcome{
		Value: map[string]interface{}{
			"round":    round,
			"position": position(state.Context[app.KeyLastAnalysis]),
		},
	}
	if a.consensusAfter > 0 && round >= a.consensusAfter {
		out.Flags = map[string]bool{app.FlagConsensusReached: true}
	}
	return out, nil
}

// Decide proceeds when the debate favored expansion and holds otherwise.
func (a *Agent) Decide(ctx context.Context, state domain.AgentState) (interface{}, error) {
	choice := "hold"
	if m, ok := state.Context[app.KeyLastDebate].(map[string]interface{}); ok && m["position"] == "expand" {
		choice = "proceed"
	}
	return map[string]interface{}{"choice": choice, "cycle": state.CycleCount}, nil
}

// Act executes the last decision and, with a ballot box, votes on open
// decisions.
func (a *Agent) Act(ctx context.Context, state domain.AgentState) (interface{}, error) {
	result := map[string]interface{}{"executed": state.Context[app.KeyLastDecision]}
	if a.ballots != nil {
		cast, err := a.castVotes(ctx)
		if err != nil {
			return nil, err
		}
		result["votes_cast"] = cast
	}
	return result, nil
}

// Reflect counts reflections and requests maintenance every
// maintenanceEvery of them.
func (a *Agent) Reflect(ctx context.Context, state domain.AgentState) (interface{}, error) {
	a.mu.Lock()
	a.reflections++
	n := a.reflections
	a.mu.Unlock()

	out := domain.PhaseOutcome{Value: map[string]interface{}{"reflection": n, "actions": len(state.Actions)}}
	if a.maintenanceEvery > 0 && n%a.maintenanceEvery == 0 {
		out.Flags = map[string]bool{app.FlagMaintenanceRequired: true}
	}
	return out, nil
}

// Status always reports healthy.
func (a *Agent) Status(ctx context.Context) (ports.AgentHealth, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return ports.AgentHealth{
		Healthy: true,
		Detail:  fmt.Sprintf("%d observations, %d reflections", a.observed, a.reflections),
	}, nil
}

// castVotes votes once on every open decision the agent has not voted on.
func (a *Agent) castVotes(ctx context.Context) (int, error) {
	var cast int
	for _, status := range []domain.DecisionStatus{domain.DecisionPending, domain.DecisionVoting} {
		for _, d := range a.ballots.ListDecisions(status) {
			if _, voted := d.Votes[a.id]; voted {
				continue
			}
			if _, err := a.ballots.Vote(ctx, d.DecisionID, a.id, ballot(d.DecisionID, a.id)); err != nil {
				return cast, err
			}
			cast++
		}
	}

	a.mu.Lock()
	a.votes += cast
	a.mu.Unlock()
	return cast, nil
}

func signal(id string, n int) int {
	h := fnv.New32a()
	fmt.Fprintf(h, "%s/%d", id, n)
	return int(h.Sum32() % 100)
}

func trend(mean float64) string {
	switch {
	case mean >= 60:
		return "rising"
	case mean <= 40:
		return "falling"
	default:
		return "flat"
	}
}

func position(analysis interface{}) string {
	if m, ok := analysis.(map[string]interface{}); ok && m["trend"] == "rising" {
		return "expand"
	}
	return "conserve"
}

// ballot picks a stable vote for an agent on a decision.
func ballot(decisionID, agentID string) string {
	h := fnv.New32a()
	fmt.Fprintf(h, "%s/%s", decisionID, agentID)
	switch h.Sum32() % 5 {
	case 0:
		return string(domain.VoteAbstain)
	case 1, 2:
		return string(domain.VoteNo)
	default:
		return string(domain.VoteYes)
	}
}
