package app

import (
	"github.com/bft-labs/swarmcoord/internal/domain"
)

// StrategyConfig tunes DefaultStrategy.
type StrategyConfig struct {
	// MinObservations is the number of unanalyzed observations needed
	// before OBSERVING moves on to ANALYZING.
	MinObservations int

	// MaxDebateRounds caps debate cycles before DEBATING moves to DECIDING
	// even without consensus.
	MaxDebateRounds int

	// MaxRecoveries is how many times an agent may go ERROR -> INITIALIZING
	// before it is shut down.
	MaxRecoveries int
}

// DefaultStrategyConfig returns the stock strategy tuning.
func DefaultStrategyConfig() StrategyConfig {
	return StrategyConfig{
		MinObservations: 3,
		MaxDebateRounds: 3,
		MaxRecoveries:   3,
	}
}

// DefaultStrategy walks agents around the observe/analyze/debate/decide/
// act/reflect loop, driven by observation counts, debate rounds and the
// one-shot context flags.
type DefaultStrategy struct {
	cfg StrategyConfig
}

// NewDefaultStrategy creates a DefaultStrategy. Zero fields fall back to
// DefaultStrategyConfig.
func NewDefaultStrategy(cfg StrategyConfig) *DefaultStrategy {
	def := DefaultStrategyConfig()
	if cfg.MinObservations <= 0 {
		cfg.MinObservations = def.MinObservations
	}
	if cfg.MaxDebateRounds <= 0 {
		cfg.MaxDebateRounds = def.MaxDebateRounds
	}
	if cfg.MaxRecoveries <= 0 {
		cfg.MaxRecoveries = def.MaxRecoveries
	}
	return &DefaultStrategy{cfg: cfg}
}

// ShouldTransition implements ports.TransitionStrategy.
func (s *DefaultStrategy) ShouldTransition(state domain.AgentState) (domain.Phase, string, bool) {
	switch state.CurrentPhase {
	case domain.PhaseInitializing:
		return domain.PhaseObserving, "initialized", true

	case domain.PhaseObserving:
		if state.Flag(FlagForceAnalysis) {
			return domain.PhaseAnalyzing, "analysis forced", true
		}
		if state.PendingObservations() >= s.cfg.MinObservations {
			return domain.PhaseAnalyzing, "enough observations", true
		}

	case domain.PhaseAnalyzing:
		if state.Flag(FlagNeedsMoreData) {
			return domain.PhaseObserving, "needs more data", true
		}
		return domain.PhaseDebating, "analysis complete", true

	case domain.PhaseDebating:
		if state.Flag(FlagReanalyze) {
			return domain.PhaseAnalyzing, "reanalysis requested", true
		}
		if state.Flag(FlagConsensusReached) {
			return domain.PhaseDeciding, "consensus reached", true
		}
		if state.DebateRounds >= s.cfg.MaxDebateRounds {
			return domain.PhaseDeciding, "debate rounds exhausted", true
		}

	case domain.PhaseDeciding:
		if state.Flag(FlagDecisionDeferred) {
			return domain.PhaseDebating, "decision deferred", true
		}
		if state.Context[KeyLastDecision] != nil {
			return domain.PhaseActing, "decision made", true
		}

	case domain.PhaseActing:
		return domain.PhaseReflecting, "action complete", true

	case domain.PhaseReflecting:
		if state.Flag(FlagMaintenanceRequired) {
			return domain.PhaseMaintenance, "maintenance required", true
		}
		return domain.PhaseObserving, "reflection complete", true

	case domain.PhaseMaintenance:
		if state.Flag(FlagShutdownRequested) {
			return domain.PhaseShutdown, "shutdown requested", true
		}
		if healthy(state) {
			return domain.PhaseObserving, "maintenance complete", true
		}

	case domain.PhaseError:
		if state.FlagSet(FlagRecoverable) && !state.Flag(FlagRecoverable) {
			return domain.PhaseShutdown, "unrecoverable error", true
		}
		if state.ErrorCount > s.cfg.MaxRecoveries {
			return domain.PhaseShutdown, "recovery limit reached", true
		}
		return domain.PhaseInitializing, "recovering", true
	}

	return state.CurrentPhase, "", false
}

// healthy reads the health report stored by the last Status dispatch.
// A missing report counts as healthy.
func healthy(state domain.AgentState) bool {
	switch h := state.Context[KeyLastStatus].(type) {
	case nil:
		return true
	case interface{ IsHealthy() bool }:
		return h.IsHealthy()
	case map[string]interface{}:
		v, ok := h["healthy"].(bool)
		return !ok || v
	default:
		return true
	}
}
