package swarmcoord

import (
	"github.com/bft-labs/swarmcoord/internal/app"
	"github.com/bft-labs/swarmcoord/internal/domain"
)

// State is the coordination loop state.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StatePaused
	StateStopping
	StateCrashed
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateStopping:
		return "stopping"
	case StateCrashed:
		return "crashed"
	default:
		return "unknown"
	}
}

// StateChangeEvent is emitted when the coordination loop changes state.
type StateChangeEvent struct {
	Previous State
	Current  State
	Reason   string
}

// ProtocolEvent is emitted when an emergency protocol changes status.
type ProtocolEvent struct {
	Protocol    string
	Previous    ProtocolStatus
	Current     ProtocolStatus
	ExecutionID string
}

// NotificationEvent carries a notify_swarm broadcast.
type NotificationEvent struct {
	Protocol string
	Message  string
}

// EventHandler receives swarm events. Calls are synchronous; return quickly.
type EventHandler interface {
	OnStateChange(event StateChangeEvent)
	OnPhaseTransition(t Transition)
	OnDecisionResolved(d Decision)
	OnProtocolStatusChange(event ProtocolEvent)
	OnSwarmNotification(event NotificationEvent)
}

// BaseEventHandler implements EventHandler with no-ops. Embed it and
// override what you need.
type BaseEventHandler struct{}

func (BaseEventHandler) OnStateChange(StateChangeEvent)        {}
func (BaseEventHandler) OnPhaseTransition(Transition)          {}
func (BaseEventHandler) OnDecisionResolved(Decision)           {}
func (BaseEventHandler) OnProtocolStatusChange(ProtocolEvent)  {}
func (BaseEventHandler) OnSwarmNotification(NotificationEvent) {}

// fanout adapts registered handlers to the internal emitter, in
// registration order.
type fanout struct {
	handlers []EventHandler
}

func (f *fanout) OnLoopStateChange(previous, current app.LoopState, reason string) {
	ev := StateChangeEvent{Previous: convertState(previous), Current: convertState(current), Reason: reason}
	for _, h := range f.handlers {
		h.OnStateChange(ev)
	}
}

func (f *fanout) OnPhaseTransition(t domain.LifecycleTransition) {
	for _, h := range f.handlers {
		h.OnPhaseTransition(t)
	}
}

func (f *fanout) OnDecisionResolved(d domain.SwarmDecision) {
	for _, h := range f.handlers {
		h.OnDecisionResolved(d)
	}
}

func (f *fanout) OnProtocolStatusChange(protocol string, previous, current domain.ProtocolStatus, executionID string) {
	ev := ProtocolEvent{Protocol: protocol, Previous: previous, Current: current, ExecutionID: executionID}
	for _, h := range f.handlers {
		h.OnProtocolStatusChange(ev)
	}
}

func (f *fanout) OnSwarmNotification(protocol, message string) {
	ev := NotificationEvent{Protocol: protocol, Message: message}
	for _, h := range f.handlers {
		h.OnSwarmNotification(ev)
	}
}

func convertState(s app.LoopState) State {
	switch s {
	case app.LoopStopped:
		return StateStopped
	case app.LoopStarting:
		return StateStarting
	case app.LoopRunning:
		return StateRunning
	case app.LoopPaused:
		return StatePaused
	case app.LoopStopping:
		return StateStopping
	case app.LoopCrashed:
		return StateCrashed
	default:
		return StateStopped
	}
}
