package swarmcoord

import (
	"github.com/bft-labs/swarmcoord/internal/domain"
	"github.com/bft-labs/swarmcoord/internal/ports"
	"github.com/bft-labs/swarmcoord/pkg/log"
)

// Re-exported types so embedders never import internal packages.
type (
	Logger   = log.Logger
	LogField = log.Field

	Phase           = domain.Phase
	AgentState      = domain.AgentState
	PhaseOutcome    = domain.PhaseOutcome
	Transition      = domain.LifecycleTransition
	Decision        = domain.SwarmDecision
	DecisionStatus  = domain.DecisionStatus
	VoteTally       = domain.VoteTally
	AgentStatus     = domain.AgentStatus
	Protocol        = domain.EmergencyProtocol
	ResponseAction  = domain.ResponseAction
	ProtocolStatus  = domain.ProtocolStatus
	Execution       = domain.ProtocolExecution
	ActionResult    = domain.ActionResult
	SwarmAgent      = ports.SwarmAgent
	AgentHealth     = ports.AgentHealth
	Strategy        = ports.TransitionStrategy
	TransitionStore = ports.TransitionLog
)

// Lifecycle phases.
const (
	PhaseInitializing = domain.PhaseInitializing
	PhaseObserving    = domain.PhaseObserving
	PhaseAnalyzing    = domain.PhaseAnalyzing
	PhaseDebating     = domain.PhaseDebating
	PhaseDeciding     = domain.PhaseDeciding
	PhaseActing       = domain.PhaseActing
	PhaseReflecting   = domain.PhaseReflecting
	PhaseMaintenance  = domain.PhaseMaintenance
	PhaseError        = domain.PhaseError
	PhaseShutdown     = domain.PhaseShutdown
)

// Errors returned by the library. Match with errors.Is.
var (
	ErrNotFound        = domain.ErrNotFound
	ErrInvalid         = domain.ErrInvalid
	ErrConflict        = domain.ErrConflict
	ErrInvariant       = domain.ErrInvariant
	ErrTransient       = domain.ErrTransient
	ErrAlreadyRunning  = domain.ErrAlreadyRunning
	ErrNotRunning      = domain.ErrNotRunning
	ErrShutdownTimeout = domain.ErrShutdownTimeout
	ErrInvalidConfig   = domain.ErrInvalidConfig
)
