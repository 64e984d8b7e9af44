// Package selfcheck runs the end-to-end checks behind `swarmcoord test`
// against throwaway state in a temporary directory.
package selfcheck

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bft-labs/swarmcoord/internal/adapters/fs"
	"github.com/bft-labs/swarmcoord/internal/adapters/memory"
	"github.com/bft-labs/swarmcoord/internal/adapters/sqlite"
	"github.com/bft-labs/swarmcoord/internal/app"
	"github.com/bft-labs/swarmcoord/internal/domain"
	"github.com/bft-labs/swarmcoord/internal/ports"
	"github.com/bft-labs/swarmcoord/internal/sim"
	"github.com/bft-labs/swarmcoord/pkg/log"
)

// Result is the outcome of one check.
type Result struct {
	Name     string
	Err      error
	Duration time.Duration
}

// Passed reports whether the check succeeded.
func (r Result) Passed() bool { return r.Err == nil }

type check struct {
	name string
	run  func(ctx context.Context, env *env) error
}

type env struct {
	dir    string
	logger ports.Logger
}

// Names lists the checks in the order Run executes them.
func Names() []string {
	out := make([]string, len(checks))
	for i, c := range checks {
		out[i] = c.name
	}
	return out
}

var checks = []check{
	{"duplicate agent registration is rejected", checkDuplicateAgent},
	{"illegal transition is recorded and refused", checkIllegalTransition},
	{"third observation moves agent to analyzing", checkThirdObservation},
	{"majority vote approves", checkApproved},
	{"equal yes and no is tied", checkTied},
	{"resolved decision rejects further votes", checkResolvedIsFinal},
	{"decisions survive a reload from disk", checkPersistence},
	{"protocol cannot be activated twice", checkProtocolExclusive},
	{"protocol runs to completion", checkProtocolCompletes},
	{"transition log persists to sqlite", checkSQLiteLog},
}

// Run executes every check in a fresh subdirectory of a temporary
// directory, which is removed afterwards. A nil logger discards output.
func Run(ctx context.Context, logger ports.Logger) ([]Result, error) {
	if logger == nil {
		logger = log.Discard
	}
	root, err := os.MkdirTemp("", "swarmcoord-selfcheck-")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(root)

	results := make([]Result, 0, len(checks))
	for i, c := range checks {
		e := &env{dir: filepath.Join(root, fmt.Sprintf("check-%02d", i)), logger: logger}
		if err := os.MkdirAll(e.dir, 0o700); err != nil {
			return results, err
		}
		started := time.Now()
		err := runOne(ctx, c, e)
		results = append(results, Result{Name: c.name, Err: err, Duration: time.Since(started)})
	}
	return results, nil
}

func runOne(ctx context.Context, c check, e *env) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return c.run(ctx, e)
}

func (e *env) coordinator() *app.Coordinator {
	return app.NewCoordinator(app.DefaultCoordinatorConfig(), nil, memory.NewTransitionLog(0), e.logger, nil)
}

func (e *env) decisionCore(ctx context.Context) (*app.DecisionCore, error) {
	return app.NewDecisionCore(ctx, app.DefaultDecisionConfig(),
		fs.NewDecisionFileRepository(e.dir),
		fs.NewAgentStatusFileRepository(e.dir),
		e.logger, nil)
}

func checkDuplicateAgent(ctx context.Context, e *env) error {
	c := e.coordinator()
	if err := c.RegisterAgent(sim.New("Agent-X")); err != nil {
		return err
	}
	if _, err := c.ExecuteCycle(ctx, "Agent-X", nil); err != nil {
		return err
	}
	before, _ := c.AgentState("Agent-X")

	err := c.RegisterAgent(sim.New("Agent-X"))
	if !errors.Is(err, domain.ErrConflict) {
		return fmt.Errorf("second registration: got %v, want conflict", err)
	}
	after, _ := c.AgentState("Agent-X")
	if after.CurrentPhase != before.CurrentPhase || len(after.Observations) != len(before.Observations) {
		return errors.New("duplicate registration changed the existing state")
	}
	return nil
}

func checkIllegalTransition(ctx context.Context, e *env) error {
	c := e.coordinator()
	if err := c.RegisterAgent(sim.New("a")); err != nil {
		return err
	}
	if _, err := c.ExecuteCycle(ctx, "a", nil); err != nil {
		return err
	}
	t, err := c.ForceTransition(ctx, "a", domain.PhaseDeciding, "skip ahead")
	if !errors.Is(err, domain.ErrInvariant) {
		return fmt.Errorf("observing -> deciding: got %v, want invariant error", err)
	}
	if t.Success || t.ErrorMessage == "" {
		return fmt.Errorf("record = success %v, error %q; want a failed record", t.Success, t.ErrorMessage)
	}
	s, _ := c.AgentState("a")
	if s.CurrentPhase != domain.PhaseObserving {
		return fmt.Errorf("phase = %s, want observing", s.CurrentPhase)
	}
	return nil
}

func checkThirdObservation(ctx context.Context, e *env) error {
	c := e.coordinator()
	if err := c.RegisterAgent(sim.New("Agent-X")); err != nil {
		return err
	}
	for i := 0; i < 2; i++ {
		if _, err := c.ExecuteCycle(ctx, "Agent-X", nil); err != nil {
			return err
		}
	}
	before := len(c.History("Agent-X", 0))
	if _, err := c.ExecuteCycle(ctx, "Agent-X", nil); err != nil {
		return err
	}
	s, _ := c.AgentState("Agent-X")
	if s.CurrentPhase != domain.PhaseAnalyzing {
		return fmt.Errorf("phase = %s, want analyzing", s.CurrentPhase)
	}
	history := c.History("Agent-X", 0)
	if len(history) != before+1 || !history[len(history)-1].Success {
		return fmt.Errorf("third cycle appended %d transitions, want one successful", len(history)-before)
	}
	return nil
}

func castVotes(ctx context.Context, dc *app.DecisionCore, votes ...string) (domain.SwarmDecision, error) {
	d, err := dc.CreateDecision(ctx, "", "self-check", "", "selfcheck")
	if err != nil {
		return d, err
	}
	for i, v := range votes {
		if d, err = dc.Vote(ctx, d.DecisionID, fmt.Sprintf("agent-%d", i+1), v); err != nil {
			return d, err
		}
	}
	return d, nil
}

func expectResolution(d domain.SwarmDecision, want domain.Resolution) error {
	if !d.IsResolved() || d.Resolution != want {
		return fmt.Errorf("status %s resolution %q, want resolved %q", d.Status, d.Resolution, want)
	}
	return nil
}

func checkApproved(ctx context.Context, e *env) error {
	dc, err := e.decisionCore(ctx)
	if err != nil {
		return err
	}
	d, err := castVotes(ctx, dc, "yes", "yes", "yes", "no", "no")
	if err != nil {
		return err
	}
	return expectResolution(d, domain.ResolutionApproved)
}

func checkTied(ctx context.Context, e *env) error {
	dc, err := e.decisionCore(ctx)
	if err != nil {
		return err
	}
	d, err := castVotes(ctx, dc, "yes", "yes", "no", "no", "abstain")
	if err != nil {
		return err
	}
	return expectResolution(d, domain.ResolutionTied)
}

func checkResolvedIsFinal(ctx context.Context, e *env) error {
	dc, err := e.decisionCore(ctx)
	if err != nil {
		return err
	}
	d, err := castVotes(ctx, dc, "no", "no", "no", "yes", "yes")
	if err != nil {
		return err
	}
	if _, err := dc.Vote(ctx, d.DecisionID, "agent-6", "yes"); !errors.Is(err, domain.ErrConflict) {
		return fmt.Errorf("late vote: got %v, want conflict", err)
	}
	after, _ := dc.Decision(d.DecisionID)
	if after.Resolution != domain.ResolutionRejected || len(after.Votes) != 5 {
		return fmt.Errorf("late vote changed the decision: %q with %d votes", after.Resolution, len(after.Votes))
	}
	return nil
}

func checkPersistence(ctx context.Context, e *env) error {
	dc, err := e.decisionCore(ctx)
	if err != nil {
		return err
	}
	resolved, err := castVotes(ctx, dc, "yes", "yes", "yes", "no", "abstain")
	if err != nil {
		return err
	}
	open, err := castVotes(ctx, dc, "no")
	if err != nil {
		return err
	}

	reloaded, err := e.decisionCore(ctx)
	if err != nil {
		return err
	}
	for _, want := range []domain.SwarmDecision{resolved, open} {
		got, err := reloaded.Decision(want.DecisionID)
		if err != nil {
			return err
		}
		if got.Resolution != want.Resolution || len(got.Votes) != len(want.Votes) {
			return fmt.Errorf("decision %s differs after reload", want.DecisionID)
		}
		for agent, v := range want.Votes {
			if got.Votes[agent] != v {
				return fmt.Errorf("decision %s: vote of %s differs after reload", want.DecisionID, agent)
			}
		}
	}
	return nil
}

func checkProtocolExclusive(ctx context.Context, e *env) error {
	pe := app.NewProtocolExecutor(nil, e.logger, nil)
	if _, err := pe.ActivateProtocol(app.ProtocolWorkflowRestoration, "selfcheck"); err != nil {
		return err
	}
	if _, err := pe.ActivateProtocol(app.ProtocolWorkflowRestoration, "selfcheck"); !errors.Is(err, domain.ErrConflict) {
		return fmt.Errorf("second activation: got %v, want conflict", err)
	}
	return nil
}

func checkProtocolCompletes(ctx context.Context, e *env) error {
	dc, err := e.decisionCore(ctx)
	if err != nil {
		return err
	}
	pe := app.NewProtocolExecutor(nil, e.logger, nil)
	pe.BindCoordination(e.coordinator(), dc)

	if _, err := pe.ActivateProtocol(app.ProtocolWorkflowRestoration, "selfcheck"); err != nil {
		return err
	}
	results, err := pe.ExecuteProtocolActions(ctx, app.ProtocolWorkflowRestoration)
	if err != nil {
		return err
	}
	p, _ := pe.Protocol(app.ProtocolWorkflowRestoration)
	if len(results) != len(p.ResponseActions) {
		return fmt.Errorf("ran %d of %d actions", len(results), len(p.ResponseActions))
	}
	if s, _ := pe.Status(app.ProtocolWorkflowRestoration); s != domain.ProtocolCompleted {
		return fmt.Errorf("status = %s, want completed", s)
	}
	return nil
}

func checkSQLiteLog(ctx context.Context, e *env) error {
	path := filepath.Join(e.dir, "history.db")
	store, err := sqlite.Open(path)
	if err != nil {
		return err
	}
	c := app.NewCoordinator(app.DefaultCoordinatorConfig(), nil, store, e.logger, nil)
	if err := c.RegisterAgent(sim.New("a")); err != nil {
		_ = store.Close()
		return err
	}
	if _, err := c.ExecuteCycle(ctx, "a", nil); err != nil {
		_ = store.Close()
		return err
	}
	if err := store.Close(); err != nil {
		return err
	}

	reopened, err := sqlite.Open(path)
	if err != nil {
		return err
	}
	defer reopened.Close()
	n, err := reopened.Count(ctx, "a")
	if err != nil {
		return err
	}
	if n != 1 {
		return fmt.Errorf("stored %d transitions, want 1", n)
	}
	return nil
}
