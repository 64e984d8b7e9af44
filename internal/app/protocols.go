package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bft-labs/swarmcoord/internal/domain"
	"github.com/bft-labs/swarmcoord/internal/ports"
)

// ActionHandler executes one response action and returns a short detail
// string for the ActionResult.
type ActionHandler func(ctx context.Context, exec domain.ProtocolExecution, action domain.ResponseAction) (string, error)

// ProtocolExecutor activates emergency protocols and runs their response
// actions. At most one execution is in flight per protocol name.
type ProtocolExecutor struct {
	logger  ports.Logger
	emitter EventEmitter
	now     func() time.Time
	newID   func() string

	mu        sync.Mutex
	protocols map[string]domain.EmergencyProtocol
	status    map[string]domain.ProtocolStatus
	active    map[string]*domain.ProtocolExecution
	executing map[string]bool
	history   []domain.ProtocolExecution
	handlers  map[string]ActionHandler
}

// NewProtocolExecutor creates an executor holding the built-in protocols
// merged with custom. A custom protocol replaces a built-in of the same
// name; invalid custom protocols are skipped.
func NewProtocolExecutor(custom map[string]domain.EmergencyProtocol, logger ports.Logger, emitter EventEmitter) *ProtocolExecutor {
	pe := &ProtocolExecutor{
		logger:    logger,
		emitter:   emitterOrNop(emitter),
		now:       time.Now,
		newID:     uuid.NewString,
		status:    make(map[string]domain.ProtocolStatus),
		active:    make(map[string]*domain.ProtocolExecution),
		executing: make(map[string]bool),
		handlers:  make(map[string]ActionHandler),
	}
	pe.protocols = pe.merge(custom)
	for name := range pe.protocols {
		pe.status[name] = domain.ProtocolInactive
	}
	pe.handlers[ActionNotifySwarm] = pe.notifySwarm
	return pe
}

func (pe *ProtocolExecutor) merge(custom map[string]domain.EmergencyProtocol) map[string]domain.EmergencyProtocol {
	merged := DefaultProtocols()
	for key, p := range custom {
		if p.Name == "" {
			p.Name = key
		}
		if err := p.Validate(); err != nil {
			pe.logger.Warn("skipping invalid custom protocol",
				ports.String("protocol", key),
				ports.Err(err),
			)
			continue
		}
		merged[p.Name] = p
	}
	return merged
}

// RegisterActionHandler binds a response action name to a real handler.
func (pe *ProtocolExecutor) RegisterActionHandler(action string, h ActionHandler) {
	pe.mu.Lock()
	defer pe.mu.Unlock()
	pe.handlers[action] = h
}

// BindCoordination registers the handlers that act on the coordinator and
// the decision core. Either may be nil.
func (pe *ProtocolExecutor) BindCoordination(coord *Coordinator, decisions *DecisionCore) {
	if coord != nil {
		pe.RegisterActionHandler(ActionPauseCoordination, func(ctx context.Context, exec domain.ProtocolExecution, action domain.ResponseAction) (string, error) {
			err := coord.Pause(fmt.Sprintf("protocol %s", exec.ProtocolName))
			if errors.Is(err, domain.ErrConflict) {
				return fmt.Sprintf("coordination loop not running (%s)", coord.LoopState()), nil
			}
			if err != nil {
				return "", err
			}
			return "coordination loop paused", nil
		})
	}
	if decisions != nil {
		pe.RegisterActionHandler(ActionCheckpointState, func(ctx context.Context, exec domain.ProtocolExecution, action domain.ResponseAction) (string, error) {
			if err := decisions.Flush(ctx); err != nil {
				return "", err
			}
			return "decisions and agent statuses checkpointed", nil
		})
	}
}

func (pe *ProtocolExecutor) notifySwarm(ctx context.Context, exec domain.ProtocolExecution, action domain.ResponseAction) (string, error) {
	msg := action.Description
	if msg == "" {
		msg = fmt.Sprintf("protocol %s is %s", exec.ProtocolName, exec.Status)
	}
	pe.emitter.OnSwarmNotification(exec.ProtocolName, msg)
	return "swarm notified", nil
}

// ActivateProtocol starts a new execution. The protocol must exist and be
// INACTIVE; a COMPLETED or FAILED protocol needs Reset first.
func (pe *ProtocolExecutor) ActivateProtocol(name, source string) (domain.ProtocolExecution, error) {
	const op = "activate protocol"

	pe.mu.Lock()
	p, ok := pe.protocols[name]
	if !ok {
		pe.mu.Unlock()
		return domain.ProtocolExecution{}, domain.NewError(domain.ErrNotFound, op, "unknown protocol %q", name)
	}
	prev := pe.status[name]
	if prev != domain.ProtocolInactive {
		pe.mu.Unlock()
		return domain.ProtocolExecution{}, domain.NewError(domain.ErrConflict, op, "protocol %q is %s", name, prev)
	}

	exec := &domain.ProtocolExecution{
		ExecutionID:  pe.newID(),
		ProtocolName: name,
		Source:       source,
		Status:       domain.ProtocolActive,
		ActivatedAt:  pe.now(),
		ActionsTotal: len(p.ResponseActions),
		Completed:    make(map[string]bool, len(p.ResponseActions)),
	}
	pe.active[name] = exec
	pe.status[name] = domain.ProtocolActive
	out := exec.Clone()
	pe.mu.Unlock()

	pe.logger.Warn("emergency protocol activated",
		ports.String("protocol", name),
		ports.String("source", source),
		ports.String("execution", out.ExecutionID),
	)
	pe.emitter.OnProtocolStatusChange(name, prev, domain.ProtocolActive, out.ExecutionID)
	return out, nil
}

// ExecuteProtocolActions runs every response action of the in-flight
// execution that has not completed yet, in declaration order. A handler
// error fails the execution; there is no retry.
func (pe *ProtocolExecutor) ExecuteProtocolActions(ctx context.Context, name string) ([]domain.ActionResult, error) {
	const op = "execute protocol"

	pe.mu.Lock()
	p, ok := pe.protocols[name]
	if !ok {
		pe.mu.Unlock()
		return nil, domain.NewError(domain.ErrNotFound, op, "unknown protocol %q", name)
	}
	exec, ok := pe.active[name]
	if !ok {
		pe.mu.Unlock()
		return nil, domain.NewError(domain.ErrConflict, op, "protocol %q is %s", name, pe.status[name])
	}
	if pe.executing[name] {
		pe.mu.Unlock()
		return nil, domain.NewError(domain.ErrConflict, op, "protocol %q actions are already running", name)
	}
	pe.executing[name] = true
	var pending []domain.ResponseAction
	for _, a := range p.ResponseActions {
		if !exec.Completed[a.Name] {
			pending = append(pending, a)
		}
	}
	pe.mu.Unlock()

	defer func() {
		pe.mu.Lock()
		delete(pe.executing, name)
		pe.mu.Unlock()
	}()

	var results []domain.ActionResult
	for _, a := range pending {
		pe.mu.Lock()
		snapshot := exec.Clone()
		h := pe.handlers[a.Name]
		pe.mu.Unlock()

		res, herr := pe.runAction(ctx, h, snapshot, a)
		results = append(results, res)

		pe.mu.Lock()
		exec.Results = append(exec.Results, res)
		if herr != nil {
			exec.Error = fmt.Sprintf("action %s: %v", a.Name, herr)
			prev := pe.finishLocked(name, exec, domain.ProtocolFailed)
			pe.mu.Unlock()

			pe.logger.Error("protocol action failed",
				ports.String("protocol", name),
				ports.String("action", a.Name),
				ports.Err(herr),
			)
			pe.emitter.OnProtocolStatusChange(name, prev, domain.ProtocolFailed, exec.ExecutionID)
			return results, domain.Wrap(domain.ErrTransient, op, fmt.Errorf("action %s: %w", a.Name, herr))
		}
		exec.Completed[a.Name] = true
		exec.ActionsCompleted++
		pe.mu.Unlock()
	}

	pe.mu.Lock()
	if !exec.Done() {
		pe.mu.Unlock()
		return results, nil
	}
	prev := pe.finishLocked(name, exec, domain.ProtocolCompleted)
	executionID := exec.ExecutionID
	pe.mu.Unlock()

	pe.logger.Info("emergency protocol completed",
		ports.String("protocol", name),
		ports.String("execution", executionID),
		ports.Int("actions", len(p.ResponseActions)),
	)
	pe.emitter.OnProtocolStatusChange(name, prev, domain.ProtocolCompleted, executionID)
	return results, nil
}

func (pe *ProtocolExecutor) runAction(ctx context.Context, h ActionHandler, exec domain.ProtocolExecution, a domain.ResponseAction) (domain.ActionResult, error) {
	res := domain.ActionResult{Action: a.Name, StartedAt: pe.now()}
	started := time.Now()

	var err error
	if h == nil {
		res.Status = domain.ActionSimulated
		res.Detail = fmt.Sprintf("simulated %s", a.Name)
	} else if res.Detail, err = h(ctx, exec, a); err != nil {
		res.Status = domain.ActionFailed
		res.Detail = err.Error()
	} else {
		res.Status = domain.ActionCompleted
	}
	res.Duration = time.Since(started)

	if limit := a.Timeout(); limit > 0 && res.Duration > limit {
		res.TimedOut = true
		pe.logger.Warn("protocol action exceeded its timeout",
			ports.String("protocol", exec.ProtocolName),
			ports.String("action", a.Name),
			ports.Duration("timeout", limit),
			ports.Duration("took", res.Duration),
		)
	}
	return res, err
}

// finishLocked closes an execution into history and returns the protocol's
// previous status. Must hold mu.
func (pe *ProtocolExecutor) finishLocked(name string, exec *domain.ProtocolExecution, status domain.ProtocolStatus) domain.ProtocolStatus {
	prev := pe.status[name]
	at := pe.now()
	exec.Status = status
	exec.FinishedAt = &at
	pe.history = append(pe.history, exec.Clone())
	delete(pe.active, name)
	pe.status[name] = status
	return prev
}

// Escalate runs the escalation procedures of an in-flight protocol as
// simulated steps and marks it ESCALATED.
func (pe *ProtocolExecutor) Escalate(name string) (domain.ProtocolExecution, error) {
	const op = "escalate protocol"

	pe.mu.Lock()
	p, ok := pe.protocols[name]
	if !ok {
		pe.mu.Unlock()
		return domain.ProtocolExecution{}, domain.NewError(domain.ErrNotFound, op, "unknown protocol %q", name)
	}
	exec, ok := pe.active[name]
	if !ok {
		pe.mu.Unlock()
		return domain.ProtocolExecution{}, domain.NewError(domain.ErrConflict, op, "protocol %q is %s", name, pe.status[name])
	}
	prev := pe.status[name]
	exec.Escalations = append(exec.Escalations, p.EscalationProcedures...)
	exec.Status = domain.ProtocolEscalated
	pe.status[name] = domain.ProtocolEscalated
	out := exec.Clone()
	pe.mu.Unlock()

	pe.logger.Warn("emergency protocol escalated",
		ports.String("protocol", name),
		ports.Strings("procedures", p.EscalationProcedures),
	)
	if prev != domain.ProtocolEscalated {
		pe.emitter.OnProtocolStatusChange(name, prev, domain.ProtocolEscalated, out.ExecutionID)
	}
	return out, nil
}

// Deactivate aborts an in-flight execution into history and returns the
// protocol to INACTIVE.
func (pe *ProtocolExecutor) Deactivate(name, reason string) error {
	const op = "deactivate protocol"

	pe.mu.Lock()
	if _, ok := pe.protocols[name]; !ok {
		pe.mu.Unlock()
		return domain.NewError(domain.ErrNotFound, op, "unknown protocol %q", name)
	}
	exec, ok := pe.active[name]
	if !ok {
		pe.mu.Unlock()
		return domain.NewError(domain.ErrConflict, op, "protocol %q is %s", name, pe.status[name])
	}
	if pe.executing[name] {
		pe.mu.Unlock()
		return domain.NewError(domain.ErrConflict, op, "protocol %q actions are running", name)
	}
	exec.Error = "deactivated: " + reason
	prev := pe.finishLocked(name, exec, domain.ProtocolInactive)
	pe.mu.Unlock()

	pe.logger.Info("emergency protocol deactivated",
		ports.String("protocol", name),
		ports.String("reason", reason),
	)
	pe.emitter.OnProtocolStatusChange(name, prev, domain.ProtocolInactive, exec.ExecutionID)
	return nil
}

// Reset returns a COMPLETED or FAILED protocol to INACTIVE so it can be
// activated again. Resetting an INACTIVE protocol is a no-op.
func (pe *ProtocolExecutor) Reset(name string) error {
	const op = "reset protocol"

	pe.mu.Lock()
	if _, ok := pe.protocols[name]; !ok {
		pe.mu.Unlock()
		return domain.NewError(domain.ErrNotFound, op, "unknown protocol %q", name)
	}
	prev := pe.status[name]
	if prev.InFlight() {
		pe.mu.Unlock()
		return domain.NewError(domain.ErrConflict, op, "protocol %q is %s", name, prev)
	}
	pe.status[name] = domain.ProtocolInactive
	pe.mu.Unlock()

	if prev != domain.ProtocolInactive {
		pe.emitter.OnProtocolStatusChange(name, prev, domain.ProtocolInactive, "")
	}
	return nil
}

// Reload replaces the custom protocol set. Protocols with an execution in
// flight keep their current definition. Returns the number of protocols
// now known.
func (pe *ProtocolExecutor) Reload(custom map[string]domain.EmergencyProtocol) int {
	merged := pe.merge(custom)

	pe.mu.Lock()
	for name := range pe.active {
		merged[name] = pe.protocols[name]
	}
	for name := range pe.protocols {
		if _, ok := merged[name]; !ok {
			delete(pe.status, name)
		}
	}
	for name := range merged {
		if _, ok := pe.status[name]; !ok {
			pe.status[name] = domain.ProtocolInactive
		}
	}
	pe.protocols = merged
	n := len(merged)
	pe.mu.Unlock()

	pe.logger.Info("protocols reloaded", ports.Int("protocols", n))
	return n
}

// Status returns the protocol's current status.
func (pe *ProtocolExecutor) Status(name string) (domain.ProtocolStatus, error) {
	pe.mu.Lock()
	defer pe.mu.Unlock()
	s, ok := pe.status[name]
	if !ok {
		return "", domain.NewError(domain.ErrNotFound, "protocol status", "unknown protocol %q", name)
	}
	return s, nil
}

// Protocol returns one protocol definition.
func (pe *ProtocolExecutor) Protocol(name string) (domain.EmergencyProtocol, error) {
	pe.mu.Lock()
	defer pe.mu.Unlock()
	p, ok := pe.protocols[name]
	if !ok {
		return domain.EmergencyProtocol{}, domain.NewError(domain.ErrNotFound, "get protocol", "unknown protocol %q", name)
	}
	return p, nil
}

// Protocols returns every known protocol ordered by name.
func (pe *ProtocolExecutor) Protocols() []domain.EmergencyProtocol {
	pe.mu.Lock()
	out := make([]domain.EmergencyProtocol, 0, len(pe.protocols))
	for _, p := range pe.protocols {
		out = append(out, p)
	}
	pe.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ActiveExecutions returns the in-flight executions ordered by protocol.
func (pe *ProtocolExecutor) ActiveExecutions() []domain.ProtocolExecution {
	pe.mu.Lock()
	out := make([]domain.ProtocolExecution, 0, len(pe.active))
	for _, e := range pe.active {
		out = append(out, e.Clone())
	}
	pe.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ProtocolName < out[j].ProtocolName })
	return out
}

// History returns finished executions, oldest first.
func (pe *ProtocolExecutor) History() []domain.ProtocolExecution {
	pe.mu.Lock()
	defer pe.mu.Unlock()
	out := make([]domain.ProtocolExecution, len(pe.history))
	for i := range pe.history {
		out[i] = pe.history[i].Clone()
	}
	return out
}
