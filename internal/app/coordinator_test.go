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
	"github.com/bft-labs/swarmcoord/internal/ports"
)

// stubAgent returns a fresh value from every phase method. Per-phase errors
// and panics can be injected.
type stubAgent struct {
	id    string
	caps  []string
	fail  map[domain.Phase]error
	panic map[domain.Phase]bool

	// debate overrides the Debate result when set.
	debate interface{}
	// statusErr is returned by every Status call when set.
	statusErr error

	mu    sync.Mutex
	calls map[string]int
}

func newStubAgent(id string) *stubAgent {
	return &stubAgent{
		id:    id,
		caps:  []string{"observe", "vote"},
		fail:  map[domain.Phase]error{},
		panic: map[domain.Phase]bool{},
		calls: map[string]int{},
	}
}

func (a *stubAgent) ID() string             { return a.id }
func (a *stubAgent) Capabilities() []string { return a.caps }

func (a *stubAgent) call(method string, state domain.AgentState) (interface{}, error) {
	a.mu.Lock()
	a.calls[method]++
	n := a.calls[method]
	a.mu.Unlock()

	if a.panic[state.CurrentPhase] {
		panic("boom")
	}
	if err := a.fail[state.CurrentPhase]; err != nil {
		return nil, err
	}
	return fmt.Sprintf("%s-%d", method, n), nil
}

func (a *stubAgent) Calls(method string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[method]
}

func (a *stubAgent) Observe(ctx context.Context, s domain.AgentState) (interface{}, error) {
	return a.call("observe", s)
}
func (a *stubAgent) Analyze(ctx context.Context, s domain.AgentState) (interface{}, error) {
	return a.call("analyze", s)
}
func (a *stubAgent) Debate(ctx context.Context, s domain.AgentState) (interface{}, error) {
	v, err := a.call("debate", s)
	if err == nil && a.debate != nil {
		return a.debate, nil
	}
	return v, err
}
func (a *stubAgent) Decide(ctx context.Context, s domain.AgentState) (interface{}, error) {
	return a.call("decide", s)
}
func (a *stubAgent) Act(ctx context.Context, s domain.AgentState) (interface{}, error) {
	return a.call("act", s)
}
func (a *stubAgent) Reflect(ctx context.Context, s domain.AgentState) (interface{}, error) {
	return a.call("reflect", s)
}
func (a *stubAgent) Status(ctx context.Context) (ports.AgentHealth, error) {
	a.mu.Lock()
	a.calls["status"]++
	a.mu.Unlock()
	if a.statusErr != nil {
		return ports.AgentHealth{}, a.statusErr
	}
	return ports.AgentHealth{Healthy: true}, nil
}

// recordingLog is an in-memory ports.TransitionLog.
type recordingLog struct {
	mu      sync.Mutex
	records []domain.LifecycleTransition
	err     error
}

func (l *recordingLog) Append(ctx context.Context, t domain.LifecycleTransition) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.records = append(l.records, t)
	return nil
}

func (l *recordingLog) List(ctx context.Context, agentID string, limit int) ([]domain.LifecycleTransition, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.LifecycleTransition(nil), l.records...), nil
}

func (l *recordingLog) Close() error { return nil }

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestCoordinator(t *testing.T, cfg CoordinatorConfig) (*Coordinator, *recordingLog, *mockEmitter, *fakeClock) {
	t.Helper()
	log := &recordingLog{}
	emitter := &mockEmitter{}
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	c := NewCoordinator(cfg, nil, log, &mockLogger{}, emitter)
	c.now = clock.Now
	return c, log, emitter, clock
}

func cycle(t *testing.T, c *Coordinator, id string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := c.ExecuteCycle(context.Background(), id, nil)
		require.NoError(t, err, "cycle %d", i+1)
	}
}

func TestCoordinator_RegisterAgent(t *testing.T) {
	c, _, _, _ := newTestCoordinator(t, CoordinatorConfig{})
	agent := newStubAgent("Agent-1")

	require.NoError(t, c.RegisterAgent(agent))
	cycle(t, c, "Agent-1", 1)

	before, err := c.AgentState("Agent-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseObserving, before.CurrentPhase)

	dup := newStubAgent("Agent-1")
	dup.caps = []string{"other"}
	err = c.RegisterAgent(dup)
	require.ErrorIs(t, err, domain.ErrConflict)

	after, err := c.AgentState("Agent-1")
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, []string{"Agent-1"}, c.AgentIDs())

	assert.ErrorIs(t, c.RegisterAgent(newStubAgent("")), domain.ErrInvalid)
}

func TestCoordinator_UnregisterAgent(t *testing.T) {
	c, _, _, _ := newTestCoordinator(t, CoordinatorConfig{})
	require.NoError(t, c.RegisterAgent(newStubAgent("a")))
	require.NoError(t, c.RegisterAgent(newStubAgent("b")))

	require.NoError(t, c.UnregisterAgent("a"))
	assert.Equal(t, []string{"b"}, c.AgentIDs())

	_, err := c.ExecuteCycle(context.Background(), "a", nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, c.UnregisterAgent("a"), domain.ErrNotFound)
}

func TestCoordinator_ThirdObservationMovesToAnalyzing(t *testing.T) {
	c, log, _, _ := newTestCoordinator(t, CoordinatorConfig{})
	agent := newStubAgent("Agent-X")
	require.NoError(t, c.RegisterAgent(agent))

	cycle(t, c, "Agent-X", 2)
	before := len(c.History("Agent-X", 0))

	tr, err := c.ExecuteCycle(context.Background(), "Agent-X", nil)
	require.NoError(t, err)
	require.NotNil(t, tr)

	state, err := c.AgentState("Agent-X")
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseAnalyzing, state.CurrentPhase)
	assert.Len(t, state.Observations, 3)
	assert.Equal(t, 3, state.PendingObservations())
	assert.Equal(t, 3, agent.Calls("observe"))

	history := c.History("Agent-X", 0)
	require.Len(t, history, before+1)
	last := history[len(history)-1]
	assert.True(t, last.Success)
	assert.Equal(t, domain.PhaseObserving, last.FromPhase)
	assert.Equal(t, domain.PhaseAnalyzing, last.ToPhase)
	assert.Equal(t, domain.TriggerStrategy, last.Trigger)
	assert.Equal(t, tr.TransitionID, last.TransitionID)
	assert.Len(t, log.records, len(history))

	// Analysis consumes the pending observations.
	cycle(t, c, "Agent-X", 1)
	state, _ = c.AgentState("Agent-X")
	assert.Equal(t, domain.PhaseDebating, state.CurrentPhase)
	assert.Equal(t, 3, state.AnalyzedThrough)
	assert.Zero(t, state.PendingObservations())
}

func TestCoordinator_FullLoop(t *testing.T) {
	c, _, emitter, _ := newTestCoordinator(t, CoordinatorConfig{})
	require.NoError(t, c.RegisterAgent(newStubAgent("a")))

	cycle(t, c, "a", 10)

	state, err := c.AgentState("a")
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseObserving, state.CurrentPhase)
	assert.Equal(t, 10, state.CycleCount)
	assert.Len(t, state.Decisions, 1)
	assert.Len(t, state.Actions, 1)
	assert.Equal(t, "reflect-1", state.Context[KeyLastReflection])

	var path []domain.Phase
	for _, tr := range c.History("a", 0) {
		require.True(t, tr.Success)
		path = append(path, tr.ToPhase)
	}
	assert.Equal(t, []domain.Phase{
		domain.PhaseObserving,
		domain.PhaseAnalyzing,
		domain.PhaseDebating,
		domain.PhaseDeciding,
		domain.PhaseActing,
		domain.PhaseReflecting,
		domain.PhaseObserving,
	}, path)
	assert.Len(t, emitter.transitions, 7)
	assert.Equal(t, float64(7), state.PerformanceMetrics[domain.MetricTransitionsOK])
	assert.Equal(t, float64(10), state.PerformanceMetrics[domain.MetricCyclesTotal])
}

func TestCoordinator_RejectedTransition(t *testing.T) {
	c, log, emitter, _ := newTestCoordinator(t, CoordinatorConfig{})
	require.NoError(t, c.RegisterAgent(newStubAgent("a")))

	tr, err := c.ForceTransition(context.Background(), "a", domain.PhaseDebating, "skip ahead")
	require.ErrorIs(t, err, domain.ErrInvariant)
	assert.False(t, tr.Success)
	assert.NotEmpty(t, tr.ErrorMessage)
	assert.Equal(t, domain.TriggerForced, tr.Trigger)

	state, err := c.AgentState("a")
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseInitializing, state.CurrentPhase)
	assert.Equal(t, float64(1), state.PerformanceMetrics[domain.MetricTransitionsFailed])

	require.Len(t, log.records, 1)
	assert.False(t, log.records[0].Success)
	assert.Empty(t, emitter.transitions)
}

func TestCoordinator_StrategyProposesIllegalPhase(t *testing.T) {
	strategy := ports.TransitionStrategyFunc(func(s domain.AgentState) (domain.Phase, string, bool) {
		return domain.PhaseActing, "jump", true
	})
	c := NewCoordinator(CoordinatorConfig{}, strategy, nil, &mockLogger{}, nil)
	require.NoError(t, c.RegisterAgent(newStubAgent("a")))

	tr, err := c.ExecuteCycle(context.Background(), "a", nil)
	require.ErrorIs(t, err, domain.ErrInvariant)
	require.NotNil(t, tr)
	assert.False(t, tr.Success)

	state, _ := c.AgentState("a")
	assert.Equal(t, domain.PhaseInitializing, state.CurrentPhase)
}

func TestCoordinator_PhaseTimeout(t *testing.T) {
	c, _, _, clock := newTestCoordinator(t, CoordinatorConfig{})
	agent := newStubAgent("a")
	require.NoError(t, c.RegisterAgent(agent))
	cycle(t, c, "a", 1)

	clock.Advance(299 * time.Second)
	tr, err := c.ExecuteCycle(context.Background(), "a", nil)
	require.NoError(t, err)
	assert.Nil(t, tr)

	clock.Advance(2 * time.Second)
	observed := agent.Calls("observe")
	tr, err = c.ExecuteCycle(context.Background(), "a", nil)
	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.Equal(t, domain.PhaseError, tr.ToPhase)
	assert.Equal(t, domain.TriggerPhaseTimeout, tr.Trigger)
	assert.Equal(t, observed, agent.Calls("observe"), "timed-out cycle must not dispatch")

	state, _ := c.AgentState("a")
	assert.Equal(t, domain.StatusError, state.Status)
	assert.Equal(t, 1, state.ErrorCount)
}

func TestCoordinator_PhaseErrorAndPanic(t *testing.T) {
	tests := []struct {
		name  string
		setup func(a *stubAgent)
	}{
		{"error", func(a *stubAgent) { a.fail[domain.PhaseObserving] = errors.New("sensor offline") }},
		{"panic", func(a *stubAgent) { a.panic[domain.PhaseObserving] = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _, _, _ := newTestCoordinator(t, CoordinatorConfig{})
			agent := newStubAgent("a")
			require.NoError(t, c.RegisterAgent(agent))
			cycle(t, c, "a", 1)
			tt.setup(agent)

			tr, err := c.ExecuteCycle(context.Background(), "a", nil)
			require.ErrorIs(t, err, domain.ErrTransient)
			require.NotNil(t, tr)
			assert.True(t, tr.Success)
			assert.Equal(t, domain.PhaseError, tr.ToPhase)
			assert.Equal(t, domain.TriggerPhaseError, tr.Trigger)

			state, _ := c.AgentState("a")
			assert.Equal(t, 1, state.ErrorCount)
			assert.NotEmpty(t, state.Context[KeyLastError])
		})
	}
}

func TestCoordinator_ErrorRecovery(t *testing.T) {
	t.Run("recovers to initializing", func(t *testing.T) {
		c, _, _, _ := newTestCoordinator(t, CoordinatorConfig{})
		agent := newStubAgent("a")
		require.NoError(t, c.RegisterAgent(agent))
		_, err := c.ForceTransition(context.Background(), "a", domain.PhaseError, "test")
		require.NoError(t, err)

		tr, err := c.ExecuteCycle(context.Background(), "a", nil)
		require.NoError(t, err)
		require.NotNil(t, tr)
		assert.Equal(t, domain.PhaseInitializing, tr.ToPhase)
		assert.Equal(t, 1, agent.Calls("status"))
	})

	t.Run("unrecoverable shuts down", func(t *testing.T) {
		c, _, _, _ := newTestCoordinator(t, CoordinatorConfig{})
		require.NoError(t, c.RegisterAgent(newStubAgent("a")))
		_, err := c.ForceTransition(context.Background(), "a", domain.PhaseError, "test")
		require.NoError(t, err)

		tr, err := c.ExecuteCycle(context.Background(), "a", map[string]interface{}{FlagRecoverable: false})
		require.NoError(t, err)
		require.NotNil(t, tr)
		assert.Equal(t, domain.PhaseShutdown, tr.ToPhase)

		_, err = c.ExecuteCycle(context.Background(), "a", nil)
		assert.ErrorIs(t, err, domain.ErrInvalid)

		state, _ := c.AgentState("a")
		assert.Equal(t, domain.StatusShutdown, state.Status)
	})
}

func TestCoordinator_FailingStatusInError(t *testing.T) {
	c, _, _, _ := newTestCoordinator(t, CoordinatorConfig{})
	agent := newStubAgent("a")
	agent.statusErr = errors.New("health endpoint down")
	require.NoError(t, c.RegisterAgent(agent))
	ctx := context.Background()

	_, err := c.ForceTransition(ctx, "a", domain.PhaseError, "test")
	require.NoError(t, err)

	tr, err := c.ExecuteCycle(ctx, "a", nil)
	require.ErrorIs(t, err, domain.ErrTransient)
	require.NotNil(t, tr)
	assert.True(t, tr.Success)
	assert.Equal(t, domain.PhaseInitializing, tr.ToPhase)
	state, _ := c.AgentState("a")
	assert.Equal(t, 2, state.ErrorCount)

	// Back in ERROR the budget is spent: 3 on entry, 4 after the check.
	_, err = c.ForceTransition(ctx, "a", domain.PhaseError, "test")
	require.NoError(t, err)
	tr, err = c.ExecuteCycle(ctx, "a", nil)
	require.ErrorIs(t, err, domain.ErrTransient)
	require.NotNil(t, tr)
	assert.Equal(t, domain.PhaseShutdown, tr.ToPhase)

	state, _ = c.AgentState("a")
	assert.Equal(t, domain.PhaseShutdown, state.CurrentPhase)
	assert.Equal(t, 4, state.ErrorCount)
}

func TestCoordinator_FailingStatusInMaintenance(t *testing.T) {
	c, _, _, _ := newTestCoordinator(t, CoordinatorConfig{})
	agent := newStubAgent("a")
	agent.statusErr = errors.New("health endpoint down")
	require.NoError(t, c.RegisterAgent(agent))
	ctx := context.Background()

	for _, p := range []domain.Phase{
		domain.PhaseObserving, domain.PhaseAnalyzing, domain.PhaseDebating, domain.PhaseDeciding,
		domain.PhaseActing, domain.PhaseReflecting, domain.PhaseMaintenance,
	} {
		_, err := c.ForceTransition(ctx, "a", p, "test")
		require.NoError(t, err, p.String())
	}

	tr, err := c.ExecuteCycle(ctx, "a", nil)
	require.ErrorIs(t, err, domain.ErrTransient)
	require.NotNil(t, tr)
	assert.Equal(t, domain.PhaseError, tr.ToPhase)

	tr, err = c.ExecuteCycle(ctx, "a", nil)
	require.ErrorIs(t, err, domain.ErrTransient)
	require.NotNil(t, tr)
	assert.Equal(t, domain.PhaseInitializing, tr.ToPhase)
}

func TestCoordinator_ContextFlags(t *testing.T) {
	c, _, _, _ := newTestCoordinator(t, CoordinatorConfig{})
	agent := newStubAgent("a")
	agent.debate = domain.PhaseOutcome{Value: "agreed", Flags: map[string]bool{FlagConsensusReached: true}}
	require.NoError(t, c.RegisterAgent(agent))
	cycle(t, c, "a", 1)

	tr, err := c.ExecuteCycle(context.Background(), "a", map[string]interface{}{FlagForceAnalysis: true})
	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.Equal(t, domain.PhaseAnalyzing, tr.ToPhase)

	state, _ := c.AgentState("a")
	assert.NotContains(t, state.Context, FlagForceAnalysis)

	cycle(t, c, "a", 1) // analyzing -> debating
	tr, err = c.ExecuteCycle(context.Background(), "a", nil)
	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.Equal(t, domain.PhaseDeciding, tr.ToPhase)

	state, _ = c.AgentState("a")
	assert.Equal(t, "agreed", state.Context[KeyLastDebate])
	assert.Equal(t, 1, state.DebateRounds)
	assert.NotContains(t, state.Context, FlagConsensusReached)
}

func TestCoordinator_HistoryCap(t *testing.T) {
	c, _, _, _ := newTestCoordinator(t, CoordinatorConfig{MaxHistory: 3})
	require.NoError(t, c.RegisterAgent(newStubAgent("a")))

	for i := 0; i < 5; i++ {
		_, _ = c.ForceTransition(context.Background(), "a", domain.PhaseShutdown, "bad")
	}
	// INITIALIZING -> SHUTDOWN is legal; later attempts fail from SHUTDOWN.
	history := c.History("", 0)
	assert.Len(t, history, 3)
	assert.Len(t, c.History("a", 2), 2)
	assert.Empty(t, c.History("nobody", 0))
}

func TestCoordinator_TransitionLogErrorIsNotFatal(t *testing.T) {
	c, log, _, _ := newTestCoordinator(t, CoordinatorConfig{})
	log.err = errors.New("disk full")
	require.NoError(t, c.RegisterAgent(newStubAgent("a")))

	tr, err := c.ExecuteCycle(context.Background(), "a", nil)
	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.True(t, tr.Success)
}

func TestCoordinator_RunPassBatches(t *testing.T) {
	c, _, _, _ := newTestCoordinator(t, CoordinatorConfig{BatchSize: 2, BatchPause: time.Millisecond})
	for i := 0; i < 5; i++ {
		require.NoError(t, c.RegisterAgent(newStubAgent(fmt.Sprintf("Agent-%d", i))))
	}
	failing := newStubAgent("Agent-bad")
	failing.panic[domain.PhaseInitializing] = true
	require.NoError(t, c.RegisterAgent(failing))

	stats := c.RunPass(context.Background())
	assert.Equal(t, 6, stats.Agents)
	assert.Equal(t, 6, stats.Transitions)
	assert.Equal(t, 1, stats.Failures)

	for _, id := range c.AgentIDs() {
		s, err := c.AgentState(id)
		require.NoError(t, err)
		assert.Equal(t, 1, s.CycleCount, id)
	}
}

func TestCoordinator_StartPauseStop(t *testing.T) {
	c := NewCoordinator(CoordinatorConfig{CycleInterval: 5 * time.Millisecond, ShutdownTimeout: time.Second}, nil, nil, &mockLogger{}, nil)
	require.NoError(t, c.RegisterAgent(newStubAgent("a")))

	assert.ErrorIs(t, c.Stop(), domain.ErrNotRunning)
	assert.ErrorIs(t, c.Pause("early"), domain.ErrConflict)

	require.NoError(t, c.Start(context.Background()))
	assert.ErrorIs(t, c.Start(context.Background()), domain.ErrAlreadyRunning)

	require.Eventually(t, func() bool {
		s, _ := c.AgentState("a")
		return s.CycleCount >= 3
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, c.Pause("maintenance window"))
	assert.Equal(t, LoopPaused, c.LoopState())
	require.NoError(t, c.Resume("done"))
	assert.Equal(t, LoopRunning, c.LoopState())

	require.NoError(t, c.Stop())
	assert.Equal(t, LoopStopped, c.LoopState())
}
