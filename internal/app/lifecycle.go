package app

import (
	"context"
	"sync"
	"time"

	"github.com/bft-labs/swarmcoord/internal/domain"
	"github.com/bft-labs/swarmcoord/internal/ports"
)

// ShutdownTimeout is the default time to wait for the coordination loop to exit.
const ShutdownTimeout = 30 * time.Second

// LoopState is the lifecycle state of the coordination loop.
type LoopState int

const (
	LoopStopped LoopState = iota
	LoopStarting
	LoopRunning
	LoopPaused
	LoopStopping
	LoopCrashed
)

// String returns a human-readable representation of the state.
func (s LoopState) String() string {
	switch s {
	case LoopStopped:
		return "Stopped"
	case LoopStarting:
		return "Starting"
	case LoopRunning:
		return "Running"
	case LoopPaused:
		return "Paused"
	case LoopStopping:
		return "Stopping"
	case LoopCrashed:
		return "Crashed"
	default:
		return "Unknown"
	}
}

// Lifecycle manages the state machine of the coordination loop and tracks
// its worker goroutines.
type Lifecycle struct {
	mu      sync.RWMutex
	state   LoopState
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	logger  ports.Logger
	emitter EventEmitter
}

// NewLifecycle creates a lifecycle in LoopStopped.
func NewLifecycle(logger ports.Logger, emitter EventEmitter) *Lifecycle {
	return &Lifecycle{
		state:   LoopStopped,
		logger:  logger,
		emitter: emitterOrNop(emitter),
	}
}

// State returns the current loop state.
func (l *Lifecycle) State() LoopState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// TransitionTo attempts to move the loop to a new state.
// Returns an error if the transition is not valid.
func (l *Lifecycle) TransitionTo(newState LoopState, reason string) error {
	l.mu.Lock()
	oldState := l.state

	if err := validateLoopTransition(oldState, newState); err != nil {
		l.mu.Unlock()
		return err
	}

	l.state = newState
	l.mu.Unlock()

	// Emit outside of lock
	l.emitter.OnLoopStateChange(oldState, newState, reason)

	l.logger.Info("coordination loop state",
		ports.String("from", oldState.String()),
		ports.String("to", newState.String()),
		ports.String("reason", reason),
	)

	return nil
}

func validateLoopTransition(from, to LoopState) error {
	switch from {
	case LoopStopped:
		if to != LoopStarting {
			return domain.ErrNotRunning
		}
	case LoopStarting:
		if to != LoopRunning && to != LoopStopping && to != LoopCrashed {
			return domain.ErrAlreadyRunning
		}
	case LoopRunning:
		if to != LoopPaused && to != LoopStopping && to != LoopCrashed {
			return domain.ErrAlreadyRunning
		}
	case LoopPaused:
		if to != LoopRunning && to != LoopStopping && to != LoopCrashed {
			return domain.ErrAlreadyRunning
		}
	case LoopStopping:
		if to != LoopStopped && to != LoopCrashed {
			return domain.ErrAlreadyRunning
		}
	case LoopCrashed:
		if to != LoopStarting {
			return domain.ErrNotRunning
		}
	}
	return nil
}

// CanStart returns true if the loop can be started.
func (l *Lifecycle) CanStart() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state == LoopStopped || l.state == LoopCrashed
}

// CanStop returns true if the loop can be stopped.
func (l *Lifecycle) CanStop() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state == LoopRunning || l.state == LoopStarting || l.state == LoopPaused
}

// Launch runs fn in a tracked goroutine under a context that Halt cancels.
func (l *Lifecycle) Launch(parent context.Context, fn func(ctx context.Context)) {
	ctx, cancel := context.WithCancel(parent)
	l.mu.Lock()
	l.cancel = cancel
	l.mu.Unlock()

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		fn(ctx)
	}()
}

// Halt cancels launched goroutines and waits up to timeout for them to
// return. On timeout they are abandoned and ErrShutdownTimeout is returned.
func (l *Lifecycle) Halt(timeout time.Duration) error {
	l.mu.Lock()
	cancel := l.cancel
	l.cancel = nil
	l.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		l.logger.Warn("coordination loop did not exit, abandoning it",
			ports.Duration("timeout", timeout),
		)
		return domain.ErrShutdownTimeout
	}
}
