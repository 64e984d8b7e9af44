package app

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bft-labs/swarmcoord/internal/domain"
	"github.com/bft-labs/swarmcoord/internal/ports"
)

// Default coordinator tuning.
const (
	DefaultCycleInterval = 60 * time.Second
	DefaultBatchSize     = 50
	DefaultBatchPause    = 100 * time.Millisecond
	DefaultMaxHistory    = 1000
)

// CoordinatorConfig tunes the Coordinator and its background loop.
type CoordinatorConfig struct {
	// CycleInterval is the pause between full passes over all agents.
	CycleInterval time.Duration

	// BatchSize is how many agents are cycled before BatchPause.
	BatchSize int

	// BatchPause is the pause between batches within one pass.
	BatchPause time.Duration

	// MaxHistory caps the in-memory transition history.
	MaxHistory int

	// ShutdownTimeout bounds how long Stop waits for the loop to exit.
	ShutdownTimeout time.Duration

	// PhaseTimeouts are per-phase time limits. Nil means DefaultPhaseTimeouts.
	PhaseTimeouts map[domain.Phase]time.Duration
}

// DefaultCoordinatorConfig returns the stock coordinator tuning.
func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		CycleInterval:   DefaultCycleInterval,
		BatchSize:       DefaultBatchSize,
		BatchPause:      DefaultBatchPause,
		MaxHistory:      DefaultMaxHistory,
		ShutdownTimeout: ShutdownTimeout,
		PhaseTimeouts:   DefaultPhaseTimeouts(),
	}
}

func (c CoordinatorConfig) withDefaults() CoordinatorConfig {
	def := DefaultCoordinatorConfig()
	if c.CycleInterval <= 0 {
		c.CycleInterval = def.CycleInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.BatchPause < 0 {
		c.BatchPause = def.BatchPause
	}
	if c.MaxHistory <= 0 {
		c.MaxHistory = def.MaxHistory
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = def.ShutdownTimeout
	}
	if c.PhaseTimeouts == nil {
		c.PhaseTimeouts = def.PhaseTimeouts
	}
	return c
}

// PassStats summarizes one pass of the coordination loop.
type PassStats struct {
	Agents      int
	Transitions int
	Failures    int
}

// Coordinator owns every registered agent's lifecycle state. All state
// mutation goes through mu; agent phase methods run outside the lock on a
// snapshot and their results are merged back under it.
type Coordinator struct {
	cfg      CoordinatorConfig
	strategy ports.TransitionStrategy
	log      ports.TransitionLog
	logger   ports.Logger
	emitter  EventEmitter
	loop     *Lifecycle

	now   func() time.Time
	newID func() string

	mu      sync.RWMutex
	agents  map[string]ports.SwarmAgent
	states  map[string]*domain.AgentState
	order   []string
	running map[string]bool
	history []domain.LifecycleTransition
}

// NewCoordinator creates a coordinator. A nil strategy means DefaultStrategy
// with stock tuning; a nil transition log keeps history in memory only.
func NewCoordinator(cfg CoordinatorConfig, strategy ports.TransitionStrategy, transitions ports.TransitionLog, logger ports.Logger, emitter EventEmitter) *Coordinator {
	if strategy == nil {
		strategy = NewDefaultStrategy(DefaultStrategyConfig())
	}
	emitter = emitterOrNop(emitter)
	return &Coordinator{
		cfg:      cfg.withDefaults(),
		strategy: strategy,
		log:      transitions,
		logger:   logger,
		emitter:  emitter,
		loop:     NewLifecycle(logger, emitter),
		now:      time.Now,
		newID:    uuid.NewString,
		agents:   make(map[string]ports.SwarmAgent),
		states:   make(map[string]*domain.AgentState),
		running:  make(map[string]bool),
	}
}

// RegisterAgent adds an agent in INITIALIZING. A duplicate ID is rejected
// and the existing state is left untouched.
func (c *Coordinator) RegisterAgent(agent ports.SwarmAgent) error {
	const op = "register agent"
	if agent == nil || agent.ID() == "" {
		return domain.NewError(domain.ErrInvalid, op, "agent must have an id")
	}
	id := agent.ID()

	c.mu.Lock()
	if _, exists := c.states[id]; exists {
		c.mu.Unlock()
		return domain.NewError(domain.ErrConflict, op, "agent %q is already registered", id)
	}
	c.agents[id] = agent
	c.states[id] = domain.NewAgentState(id, agent.Capabilities(), c.now())
	c.order = append(c.order, id)
	c.mu.Unlock()

	c.logger.Info("agent registered",
		ports.String("agent", id),
		ports.Strings("capabilities", agent.Capabilities()),
	)
	return nil
}

// UnregisterAgent removes an agent and its state. History is kept.
func (c *Coordinator) UnregisterAgent(agentID string) error {
	c.mu.Lock()
	if _, ok := c.states[agentID]; !ok {
		c.mu.Unlock()
		return domain.NewError(domain.ErrNotFound, "unregister agent", "agent %q is not registered", agentID)
	}
	delete(c.agents, agentID)
	delete(c.states, agentID)
	for i, id := range c.order {
		if id == agentID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.mu.Unlock()

	c.logger.Info("agent unregistered", ports.String("agent", agentID))
	return nil
}

// AgentState returns a snapshot of an agent's state.
func (c *Coordinator) AgentState(agentID string) (domain.AgentState, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.states[agentID]
	if !ok {
		return domain.AgentState{}, domain.NewError(domain.ErrNotFound, "agent state", "agent %q is not registered", agentID)
	}
	return s.Snapshot(), nil
}

// AgentIDs returns registered agent IDs in registration order.
func (c *Coordinator) AgentIDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.order...)
}

// History returns the most recent transitions, oldest first. An empty
// agentID matches every agent; limit <= 0 returns everything retained.
func (c *Coordinator) History(agentID string, limit int) []domain.LifecycleTransition {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []domain.LifecycleTransition
	for _, t := range c.history {
		if agentID == "" || t.AgentID == agentID {
			out = append(out, t)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// ExecuteCycle runs one lifecycle cycle for an agent: merge cycleCtx into
// its context, check the phase timeout, dispatch the phase method and ask
// the strategy for a transition.
//
// The returned transition is nil when the agent stayed in its phase. A
// rejected transition is returned with Success=false together with an
// ErrInvariant error.
func (c *Coordinator) ExecuteCycle(ctx context.Context, agentID string, cycleCtx map[string]interface{}) (*domain.LifecycleTransition, error) {
	const op = "execute cycle"

	c.mu.Lock()
	state, ok := c.states[agentID]
	if !ok {
		c.mu.Unlock()
		return nil, domain.NewError(domain.ErrNotFound, op, "agent %q is not registered", agentID)
	}
	if state.CurrentPhase.IsTerminal() {
		c.mu.Unlock()
		return nil, domain.NewError(domain.ErrInvalid, op, "agent %q is shut down", agentID)
	}
	if c.running[agentID] {
		c.mu.Unlock()
		return nil, domain.NewError(domain.ErrConflict, op, "agent %q already has a cycle in progress", agentID)
	}
	for k, v := range cycleCtx {
		state.Context[k] = v
	}

	now := c.now()
	if limit := c.cfg.PhaseTimeouts[state.CurrentPhase]; limit > 0 && state.TimeInPhase(now) > limit {
		t, err := c.applyLocked(state, domain.PhaseError, domain.TriggerPhaseTimeout, map[string]interface{}{
			"timeout": limit.String(),
			"elapsed": state.TimeInPhase(now).String(),
		})
		c.mu.Unlock()
		c.publish(ctx, t)
		return &t, err
	}

	agent := c.agents[agentID]
	c.running[agentID] = true
	snapshot := state.Snapshot()
	c.mu.Unlock()

	started := time.Now()
	result, phaseErr := c.dispatch(ctx, agent, snapshot)
	elapsed := time.Since(started)

	c.mu.Lock()
	delete(c.running, agentID)
	state, ok = c.states[agentID]
	if !ok {
		c.mu.Unlock()
		return nil, domain.NewError(domain.ErrNotFound, op, "agent %q was unregistered during its cycle", agentID)
	}
	if state.CurrentPhase != snapshot.CurrentPhase {
		c.mu.Unlock()
		c.logger.Debug("phase changed during cycle, result discarded",
			ports.String("agent", agentID),
			ports.String("dispatched", snapshot.CurrentPhase.String()),
			ports.String("current", state.CurrentPhase.String()),
		)
		return nil, nil
	}
	recordCycle(state, elapsed)

	var (
		rec *domain.LifecycleTransition
		err error
	)
	if phaseErr != nil {
		state.Context[KeyLastError] = phaseErr.Error()
		err = domain.Wrap(domain.ErrTransient, op, phaseErr)
		if state.CurrentPhase == domain.PhaseError {
			// A failed health check counts against the recovery budget.
			state.ErrorCount++
			if to, reason, ok := c.strategy.ShouldTransition(state.Snapshot()); ok && to != state.CurrentPhase {
				t, terr := c.applyLocked(state, to, domain.TriggerStrategy, map[string]interface{}{
					"reason": reason,
					"error":  phaseErr.Error(),
				})
				rec = &t
				if terr != nil {
					err = terr
				}
			}
		} else if CanTransition(state.CurrentPhase, domain.PhaseError) {
			t, _ := c.applyLocked(state, domain.PhaseError, domain.TriggerPhaseError, map[string]interface{}{
				"error": phaseErr.Error(),
			})
			rec = &t
		}
	} else {
		storeResult(state, result)
		if to, reason, ok := c.strategy.ShouldTransition(state.Snapshot()); ok && to != state.CurrentPhase {
			t, terr := c.applyLocked(state, to, domain.TriggerStrategy, map[string]interface{}{"reason": reason})
			rec, err = &t, terr
		}
	}
	c.mu.Unlock()

	if rec != nil {
		c.publish(ctx, *rec)
	}
	return rec, err
}

// ForceTransition moves an agent to a phase outside the strategy. The
// transition table still applies.
func (c *Coordinator) ForceTransition(ctx context.Context, agentID string, to domain.Phase, reason string) (domain.LifecycleTransition, error) {
	const op = "force transition"
	if !to.IsValid() {
		return domain.LifecycleTransition{}, domain.NewError(domain.ErrInvalid, op, "unknown phase %d", int(to))
	}

	c.mu.Lock()
	state, ok := c.states[agentID]
	if !ok {
		c.mu.Unlock()
		return domain.LifecycleTransition{}, domain.NewError(domain.ErrNotFound, op, "agent %q is not registered", agentID)
	}
	t, err := c.applyLocked(state, to, domain.TriggerForced, map[string]interface{}{"reason": reason})
	c.mu.Unlock()

	c.publish(ctx, t)
	return t, err
}

// dispatch calls the agent method for the snapshot's phase. A panic in
// the agent is reported as a phase error.
func (c *Coordinator) dispatch(ctx context.Context, agent ports.SwarmAgent, state domain.AgentState) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("agent panicked in %s: %v", state.CurrentPhase, r)
		}
	}()

	switch state.CurrentPhase {
	case domain.PhaseInitializing, domain.PhaseObserving:
		return agent.Observe(ctx, state)
	case domain.PhaseAnalyzing:
		return agent.Analyze(ctx, state)
	case domain.PhaseDebating:
		return agent.Debate(ctx, state)
	case domain.PhaseDeciding:
		return agent.Decide(ctx, state)
	case domain.PhaseActing:
		return agent.Act(ctx, state)
	case domain.PhaseReflecting:
		return agent.Reflect(ctx, state)
	case domain.PhaseMaintenance, domain.PhaseError:
		h, err := agent.Status(ctx)
		if err != nil {
			return nil, err
		}
		return h, nil
	default:
		return nil, fmt.Errorf("no phase method for %s", state.CurrentPhase)
	}
}

// storeResult writes a phase result into the state. Must hold mu.
func storeResult(state *domain.AgentState, result interface{}) {
	value := result
	if o, ok := result.(domain.PhaseOutcome); ok {
		value = o.Value
		for k, v := range o.Flags {
			state.Context[k] = v
		}
	}

	switch state.CurrentPhase {
	case domain.PhaseInitializing, domain.PhaseObserving:
		state.Context[KeyLastObservation] = value
		if value != nil {
			state.Observations = append(state.Observations, value)
		}
	case domain.PhaseAnalyzing:
		state.Context[KeyLastAnalysis] = value
	case domain.PhaseDebating:
		state.Context[KeyLastDebate] = value
		state.DebateRounds++
	case domain.PhaseDeciding:
		state.Context[KeyLastDecision] = value
		if value != nil {
			state.Decisions = append(state.Decisions, value)
		}
	case domain.PhaseActing:
		state.Context[KeyLastAction] = value
		if value != nil {
			state.Actions = append(state.Actions, value)
		}
	case domain.PhaseReflecting:
		state.Context[KeyLastReflection] = value
	case domain.PhaseMaintenance, domain.PhaseError:
		state.Context[KeyLastStatus] = value
	}
}

func recordCycle(state *domain.AgentState, elapsed time.Duration) {
	state.CycleCount++
	n := float64(state.CycleCount)
	avg := state.PerformanceMetrics[domain.MetricAvgCycleMillis]
	ms := float64(elapsed.Microseconds()) / 1000
	state.PerformanceMetrics[domain.MetricCyclesTotal] = n
	state.PerformanceMetrics[domain.MetricAvgCycleMillis] = avg + (ms-avg)/n
}

// applyLocked validates and applies a transition, appending the record to
// the in-memory history either way. Must hold mu.
func (c *Coordinator) applyLocked(state *domain.AgentState, to domain.Phase, trigger string, tctx map[string]interface{}) (domain.LifecycleTransition, error) {
	now := c.now()
	from := state.CurrentPhase
	t := domain.LifecycleTransition{
		TransitionID: c.newID(),
		AgentID:      state.AgentID,
		FromPhase:    from,
		ToPhase:      to,
		Trigger:      trigger,
		Context:      maps.Clone(tctx),
		Timestamp:    now,
	}

	if !CanTransition(from, to) {
		t.ErrorMessage = fmt.Sprintf("transition %s -> %s is not allowed", from, to)
		state.PerformanceMetrics[domain.MetricTransitionsFailed]++
		c.appendHistoryLocked(t)
		return t, domain.NewError(domain.ErrInvariant, "transition", "agent %q: transition %s -> %s is not allowed", state.AgentID, from, to)
	}

	t.Success = true
	for _, k := range consumedFlags[from] {
		delete(state.Context, k)
	}
	state.CurrentPhase = to
	state.Status = agentStatusFor(to)
	state.PhaseStartedAt = now
	state.LastActivity = now
	switch to {
	case domain.PhaseDebating:
		if from == domain.PhaseAnalyzing {
			state.AnalyzedThrough = len(state.Observations)
		}
		state.DebateRounds = 0
	case domain.PhaseReflecting:
		state.ErrorCount = 0
	case domain.PhaseError:
		state.ErrorCount++
	}
	state.PerformanceMetrics[domain.MetricTransitionsOK]++
	c.appendHistoryLocked(t)
	return t, nil
}

func (c *Coordinator) appendHistoryLocked(t domain.LifecycleTransition) {
	c.history = append(c.history, t)
	if over := len(c.history) - c.cfg.MaxHistory; over > 0 {
		c.history = append([]domain.LifecycleTransition(nil), c.history[over:]...)
	}
}

// publish writes a transition to the durable log and notifies listeners.
func (c *Coordinator) publish(ctx context.Context, t domain.LifecycleTransition) {
	if c.log != nil {
		if err := c.log.Append(ctx, t); err != nil {
			c.logger.Warn("failed to record transition",
				ports.String("agent", t.AgentID),
				ports.String("transition", t.TransitionID),
				ports.Err(err),
			)
		}
	}

	if !t.Success {
		c.logger.Warn("transition rejected",
			ports.String("agent", t.AgentID),
			ports.String("from", t.FromPhase.String()),
			ports.String("to", t.ToPhase.String()),
			ports.String("error", t.ErrorMessage),
		)
		return
	}

	c.logger.Debug("phase transition",
		ports.String("agent", t.AgentID),
		ports.String("from", t.FromPhase.String()),
		ports.String("to", t.ToPhase.String()),
		ports.String("trigger", t.Trigger),
	)
	c.emitter.OnPhaseTransition(t)
}

// LoopState returns the state of the background loop.
func (c *Coordinator) LoopState() LoopState {
	return c.loop.State()
}

// Start launches the background coordination loop.
func (c *Coordinator) Start(ctx context.Context) error {
	if !c.loop.CanStart() {
		return domain.ErrAlreadyRunning
	}
	if err := c.loop.TransitionTo(LoopStarting, "start requested"); err != nil {
		return err
	}

	c.loop.Launch(ctx, c.run)

	return c.loop.TransitionTo(LoopRunning, "coordination loop started")
}

// Stop signals the loop and waits up to ShutdownTimeout for it to exit.
// An agent cycle already in progress runs to completion.
func (c *Coordinator) Stop() error {
	if !c.loop.CanStop() {
		return domain.ErrNotRunning
	}
	if err := c.loop.TransitionTo(LoopStopping, "stop requested"); err != nil {
		return err
	}

	if err := c.loop.Halt(c.cfg.ShutdownTimeout); err != nil {
		_ = c.loop.TransitionTo(LoopCrashed, "shutdown timeout")
		return err
	}
	return c.loop.TransitionTo(LoopStopped, "coordination loop stopped")
}

// Pause suspends the loop between passes. Manual cycles still work.
func (c *Coordinator) Pause(reason string) error {
	if s := c.loop.State(); s != LoopRunning {
		return domain.NewError(domain.ErrConflict, "pause", "coordination loop is %s", s)
	}
	return c.loop.TransitionTo(LoopPaused, reason)
}

// Resume continues a paused loop.
func (c *Coordinator) Resume(reason string) error {
	if s := c.loop.State(); s != LoopPaused {
		return domain.NewError(domain.ErrConflict, "resume", "coordination loop is %s", s)
	}
	return c.loop.TransitionTo(LoopRunning, reason)
}

func (c *Coordinator) run(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("coordination loop panicked", ports.Any("panic", r))
			_ = c.loop.TransitionTo(LoopCrashed, fmt.Sprint(r))
		}
	}()

	for {
		if c.loop.State() != LoopPaused {
			stats := c.RunPass(ctx)
			c.logger.Debug("coordination pass complete",
				ports.Int("agents", stats.Agents),
				ports.Int("transitions", stats.Transitions),
				ports.Int("failures", stats.Failures),
			)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.cfg.CycleInterval):
		}
	}
}

// RunPass cycles every registered agent once, in batches of BatchSize with
// BatchPause between batches. Shut-down agents are skipped. Per-agent
// failures are logged and counted, never returned.
func (c *Coordinator) RunPass(ctx context.Context) PassStats {
	var stats PassStats
	ids := c.AgentIDs()
	cycleCtx := context.WithoutCancel(ctx)

	for start := 0; start < len(ids); start += c.cfg.BatchSize {
		end := min(start+c.cfg.BatchSize, len(ids))
		for _, id := range ids[start:end] {
			if ctx.Err() != nil {
				return stats
			}
			c.cycleAgent(cycleCtx, id, &stats)
		}

		if end < len(ids) {
			select {
			case <-ctx.Done():
				return stats
			case <-time.After(c.cfg.BatchPause):
			}
		}
	}
	return stats
}

func (c *Coordinator) cycleAgent(ctx context.Context, agentID string, stats *PassStats) {
	defer func() {
		if r := recover(); r != nil {
			stats.Failures++
			c.logger.Error("agent cycle panicked",
				ports.String("agent", agentID),
				ports.Any("panic", r),
			)
		}
	}()

	c.mu.RLock()
	state, ok := c.states[agentID]
	skip := !ok || state.CurrentPhase.IsTerminal()
	c.mu.RUnlock()
	if skip {
		return
	}

	stats.Agents++
	t, err := c.ExecuteCycle(ctx, agentID, nil)
	if t != nil && t.Success {
		stats.Transitions++
	}
	if err != nil {
		stats.Failures++
		c.logger.Warn("agent cycle failed",
			ports.String("agent", agentID),
			ports.Err(err),
		)
	}
}
