package swarmcoord

import (
	"fmt"
	"time"

	"github.com/bft-labs/swarmcoord/internal/app"
	"github.com/bft-labs/swarmcoord/internal/domain"
)

// Config configures a Swarm. Zero values are replaced by SetDefaults.
type Config struct {
	// DataDir holds decisions.json and agent_status.json. Required.
	DataDir string

	// ProtocolConfigPath is an optional JSON or YAML file of custom
	// emergency protocols. A missing file is not an error.
	ProtocolConfigPath string

	// HistoryDB is an optional SQLite file for the transition audit log.
	// Empty keeps the log in memory.
	HistoryDB string

	CycleInterval   time.Duration
	BatchSize       int
	BatchPause      time.Duration
	ShutdownTimeout time.Duration
	MaxHistory      int

	// PhaseTimeouts overrides the per-phase limits; nil uses the stock table.
	PhaseTimeouts map[Phase]time.Duration

	VoteThreshold int
	SwarmSize     int
	Roster        []string

	MinObservations int
	MaxDebateRounds int
	MaxRecoveries   int
}

// SetDefaults fills zero fields with stock values.
func (c *Config) SetDefaults() {
	coord := app.DefaultCoordinatorConfig()
	if c.CycleInterval <= 0 {
		c.CycleInterval = coord.CycleInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = coord.BatchSize
	}
	if c.BatchPause <= 0 {
		c.BatchPause = coord.BatchPause
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = coord.ShutdownTimeout
	}
	if c.MaxHistory <= 0 {
		c.MaxHistory = coord.MaxHistory
	}

	dec := app.DefaultDecisionConfig()
	if c.VoteThreshold <= 0 {
		c.VoteThreshold = dec.VoteThreshold
	}
	if c.SwarmSize <= 0 {
		c.SwarmSize = dec.SwarmSize
	}

	strat := app.DefaultStrategyConfig()
	if c.MinObservations <= 0 {
		c.MinObservations = strat.MinObservations
	}
	if c.MaxDebateRounds <= 0 {
		c.MaxDebateRounds = strat.MaxDebateRounds
	}
	if c.MaxRecoveries <= 0 {
		c.MaxRecoveries = strat.MaxRecoveries
	}
}

// Validate reports configuration errors wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("%w: DataDir is required", domain.ErrInvalidConfig)
	}
	if c.VoteThreshold > c.SwarmSize {
		return fmt.Errorf("%w: vote threshold %d exceeds swarm size %d",
			domain.ErrInvalidConfig, c.VoteThreshold, c.SwarmSize)
	}
	if len(c.Roster) > c.SwarmSize {
		return fmt.Errorf("%w: roster of %d exceeds swarm size %d",
			domain.ErrInvalidConfig, len(c.Roster), c.SwarmSize)
	}
	for p, d := range c.PhaseTimeouts {
		if !p.IsValid() {
			return fmt.Errorf("%w: unknown phase %d in PhaseTimeouts", domain.ErrInvalidConfig, int(p))
		}
		if d <= 0 {
			return fmt.Errorf("%w: timeout for %s must be positive", domain.ErrInvalidConfig, p)
		}
	}
	return nil
}

func (c Config) coordinatorConfig() app.CoordinatorConfig {
	return app.CoordinatorConfig{
		CycleInterval:   c.CycleInterval,
		BatchSize:       c.BatchSize,
		BatchPause:      c.BatchPause,
		MaxHistory:      c.MaxHistory,
		ShutdownTimeout: c.ShutdownTimeout,
		PhaseTimeouts:   c.PhaseTimeouts,
	}
}

func (c Config) decisionConfig() app.DecisionConfig {
	return app.DecisionConfig{
		VoteThreshold: c.VoteThreshold,
		SwarmSize:     c.SwarmSize,
		Roster:        c.Roster,
	}
}

func (c Config) strategyConfig() app.StrategyConfig {
	return app.StrategyConfig{
		MinObservations: c.MinObservations,
		MaxDebateRounds: c.MaxDebateRounds,
		MaxRecoveries:   c.MaxRecoveries,
	}
}
