package app

import "github.com/bft-labs/swarmcoord/internal/domain"

// EventEmitter receives notifications from the coordinator, the decision
// core and the protocol executor. Calls are synchronous and happen outside
// of any internal lock.
type EventEmitter interface {
	OnLoopStateChange(previous, current LoopState, reason string)
	OnPhaseTransition(t domain.LifecycleTransition)
	OnDecisionResolved(d domain.SwarmDecision)
	OnProtocolStatusChange(protocol string, previous, current domain.ProtocolStatus, executionID string)
	OnSwarmNotification(protocol, message string)
}

// NopEmitter discards every event. Embed it to implement a subset.
type NopEmitter struct{}

func (NopEmitter) OnLoopStateChange(previous, current LoopState, reason string) {}
func (NopEmitter) OnPhaseTransition(t domain.LifecycleTransition)               {}
func (NopEmitter) OnDecisionResolved(d domain.SwarmDecision)                    {}
func (NopEmitter) OnProtocolStatusChange(protocol string, previous, current domain.ProtocolStatus, executionID string) {
}
func (NopEmitter) OnSwarmNotification(protocol, message string) {}

func emitterOrNop(e EventEmitter) EventEmitter {
	if e == nil {
		return NopEmitter{}
	}
	return e
}
