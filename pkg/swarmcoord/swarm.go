package swarmcoord

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bft-labs/swarmcoord/internal/adapters/fs"
	"github.com/bft-labs/swarmcoord/internal/adapters/memory"
	"github.com/bft-labs/swarmcoord/internal/adapters/sqlite"
	"github.com/bft-labs/swarmcoord/internal/app"
	"github.com/bft-labs/swarmcoord/internal/domain"
	"github.com/bft-labs/swarmcoord/internal/ports"
	"github.com/bft-labs/swarmcoord/pkg/log"
)

// Swarm ties the lifecycle coordinator, the decision core and the protocol
// executor together. Use New to create one, then Start to run the loop.
type Swarm struct {
	config      Config
	logger      ports.Logger
	coord       *app.Coordinator
	decisions   *app.DecisionCore
	protocols   *app.ProtocolExecutor
	transitions ports.TransitionLog
	ownsLog     bool
	plugins     []Plugin

	mu      sync.Mutex
	started []Plugin
	closed  bool
}

// New builds a Swarm. Stored decisions and statuses are loaded from
// cfg.DataDir and custom protocols from cfg.ProtocolConfigPath.
func New(cfg Config, opts ...Option) (*Swarm, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = log.Discard
	}
	handlers := o.handlers
	for _, p := range o.plugins {
		if h, ok := p.(EventHandler); ok {
			handlers = append(handlers, h)
		}
	}
	emitter := &fanout{handlers: handlers}

	transitions, owns := o.transitions, false
	if transitions == nil {
		if cfg.HistoryDB != "" {
			db, err := sqlite.Open(cfg.HistoryDB)
			if err != nil {
				return nil, fmt.Errorf("open transition log: %w", err)
			}
			transitions = db
		} else {
			transitions = memory.NewTransitionLog(cfg.MaxHistory)
		}
		owns = true
	}

	strategy := o.strategy
	if strategy == nil {
		strategy = app.NewDefaultStrategy(cfg.strategyConfig())
	}

	ctx := context.Background()
	decisions, err := app.NewDecisionCore(ctx, cfg.decisionConfig(),
		fs.NewDecisionFileRepository(cfg.DataDir),
		fs.NewAgentStatusFileRepository(cfg.DataDir),
		log.With(logger, log.Component("decisions")), emitter)
	if err != nil {
		if owns {
			_ = transitions.Close()
		}
		return nil, err
	}

	var custom map[string]domain.EmergencyProtocol
	if cfg.ProtocolConfigPath != "" {
		custom, err = fs.NewProtocolFileSource(cfg.ProtocolConfigPath).LoadProtocols(ctx)
		if err != nil {
			if owns {
				_ = transitions.Close()
			}
			return nil, fmt.Errorf("load protocols: %w", err)
		}
	}

	coord := app.NewCoordinator(cfg.coordinatorConfig(), strategy, transitions,
		log.With(logger, log.Component("coordinator")), emitter)
	protocols := app.NewProtocolExecutor(custom, log.With(logger, log.Component("protocols")), emitter)
	protocols.BindCoordination(coord, decisions)

	return &Swarm{
		config:      cfg,
		logger:      logger,
		coord:       coord,
		decisions:   decisions,
		protocols:   protocols,
		transitions: transitions,
		ownsLog:     owns,
		plugins:     o.plugins,
	}, nil
}

// Start initializes plugins and launches the coordination loop in the
// background. If a plugin fails, the ones already initialized are shut down
// and the loop is not started.
func (s *Swarm) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return domain.NewError(domain.ErrConflict, "start", "swarm is closed")
	}
	if st := s.coord.LoopState(); st != app.LoopStopped && st != app.LoopCrashed {
		return domain.ErrAlreadyRunning
	}

	for _, p := range s.plugins {
		pluginCfg := PluginConfig{
			DataDir:            s.config.DataDir,
			ProtocolConfigPath: s.config.ProtocolConfigPath,
			Logger:             log.With(s.logger, ports.String("plugin", p.Name())),
			Protocols:          s.protocols,
		}
		if err := p.Initialize(ctx, pluginCfg); err != nil {
			s.logger.Error("plugin initialization failed",
				ports.String("plugin", p.Name()),
				ports.Err(err))
			s.shutdownPluginsLocked(ctx)
			return fmt.Errorf("initialize plugin %s: %w", p.Name(), err)
		}
		s.started = append(s.started, p)
		s.logger.Info("plugin initialized", ports.String("plugin", p.Name()))
	}

	if err := s.coord.Start(ctx); err != nil {
		s.shutdownPluginsLocked(ctx)
		return err
	}
	return nil
}

// Stop halts the loop, flushes decisions and shuts plugins down in reverse
// order. Returns ErrShutdownTimeout if the loop did not exit in time and
// ErrNotRunning if there is nothing to stop.
func (s *Swarm) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.coord.Stop()
	switch {
	case err == nil, errors.Is(err, domain.ErrShutdownTimeout):
	case errors.Is(err, domain.ErrNotRunning) && len(s.started) > 0:
		// The loop crashed on its own; plugins are still up.
		err = nil
	default:
		return err
	}

	ctx := context.Background()
	if ferr := s.decisions.Flush(ctx); ferr != nil {
		s.logger.Error("flush decisions on stop", ports.Err(ferr))
	}
	s.shutdownPluginsLocked(ctx)
	return err
}

// Close stops a running swarm and releases the transition log it opened.
func (s *Swarm) Close() error {
	if st := s.coord.LoopState(); st == app.LoopRunning || st == app.LoopPaused || st == app.LoopStarting {
		if err := s.Stop(); err != nil {
			s.logger.Warn("stop on close", ports.Err(err))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.ownsLog {
		return s.transitions.Close()
	}
	return nil
}

func (s *Swarm) shutdownPluginsLocked(ctx context.Context) {
	for i := len(s.started) - 1; i >= 0; i-- {
		p := s.started[i]
		if err := p.Shutdown(ctx); err != nil {
			s.logger.Error("plugin shutdown failed",
				ports.String("plugin", p.Name()),
				ports.Err(err))
		} else {
			s.logger.Info("plugin shutdown complete", ports.String("plugin", p.Name()))
		}
	}
	s.started = nil
}

// Status returns the coordination loop state.
func (s *Swarm) Status() State {
	return convertState(s.coord.LoopState())
}

// RegisterAgent adds an agent to the coordinator in INITIALIZING.
func (s *Swarm) RegisterAgent(agent SwarmAgent) error {
	return s.coord.RegisterAgent(agent)
}

// RunOnce cycles every agent once, synchronously.
func (s *Swarm) RunOnce(ctx context.Context) PassStats {
	st := s.coord.RunPass(ctx)
	return PassStats{Agents: st.Agents, Transitions: st.Transitions, Failures: st.Failures}
}

// PassStats summarizes one pass over all agents.
type PassStats struct {
	Agents      int
	Transitions int
	Failures    int
}

// Coordinator exposes the lifecycle coordinator.
func (s *Swarm) Coordinator() *app.Coordinator { return s.coord }

// Decisions exposes the decision core.
func (s *Swarm) Decisions() *app.DecisionCore { return s.decisions }

// Protocols exposes the emergency protocol executor.
func (s *Swarm) Protocols() *app.ProtocolExecutor { return s.protocols }

// Transitions exposes the transition audit log.
func (s *Swarm) Transitions() TransitionStore { return s.transitions }
