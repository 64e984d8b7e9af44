// Package domain contains the core domain entities and value objects for swarmcoord.
//
// This package is the innermost layer. It has no dependencies on infrastructure
// concerns (files, databases, logging) and contains only the swarm's rules.
//
// # Entities
//
//   - [Phase]: one stage of the agent lifecycle state machine
//   - [AgentState]: per-agent lifecycle state owned by the coordinator
//   - [LifecycleTransition]: immutable audit record of a phase change attempt
//   - [SwarmDecision]: a votable proposal resolved by simple majority
//   - [AgentStatus]: the externally reported status of a swarm member
//   - [EmergencyProtocol] and [ProtocolExecution]: named response bundles and their runs
//
// # Errors
//
// Operations report failures as [*Error] values carrying one of the sentinel
// kinds ([ErrNotFound], [ErrInvalid], [ErrConflict], [ErrInvariant],
// [ErrTransient]). Match them with errors.Is.
package domain
