// Package ports defines the interfaces (ports) that connect the application
// layer to agents and infrastructure adapters.
//
// # Port Interfaces
//
//   - [SwarmAgent]: the capability contract every coordinated agent satisfies
//   - [TransitionStrategy]: decides when an agent should change phase
//   - [DecisionRepository]: persists swarm decisions
//   - [AgentStatusRepository]: persists reported agent statuses
//   - [TransitionLog]: append-only audit log of lifecycle transitions
//   - [Logger]: structured logging abstraction
//
// The application layer (internal/app) depends only on these interfaces.
// Infrastructure adapters (internal/adapters) implement them with JSON files,
// SQLite, or memory.
package ports
