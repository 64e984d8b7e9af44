package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every failure returned by the swarm's operations matches
// exactly one of these with errors.Is.
var (
	// ErrNotFound is returned for unknown agents, decisions and protocols.
	ErrNotFound = errors.New("swarmcoord: not found")

	// ErrInvalid is returned when a request is malformed (bad vote string,
	// empty ID, unknown phase name).
	ErrInvalid = errors.New("swarmcoord: invalid request")

	// ErrConflict is returned when a request collides with existing state
	// (duplicate registration, protocol already active, decision resolved).
	ErrConflict = errors.New("swarmcoord: conflict")

	// ErrInvariant is returned when a request would break a state machine
	// rule, such as a phase transition missing from the transition table.
	ErrInvariant = errors.New("swarmcoord: invariant violation")

	// ErrTransient is returned for failures that may succeed on a later
	// attempt: persistence I/O, agent phase errors, event delivery.
	ErrTransient = errors.New("swarmcoord: transient failure")
)

// Errors for the coordination loop lifecycle.
var (
	// ErrAlreadyRunning is returned when Start() is called on a running instance.
	ErrAlreadyRunning = errors.New("swarmcoord: already running")

	// ErrNotRunning is returned when Stop() is called on a stopped instance.
	ErrNotRunning = errors.New("swarmcoord: not running")

	// ErrShutdownTimeout is returned when graceful shutdown times out.
	ErrShutdownTimeout = errors.New("swarmcoord: shutdown timeout")

	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("swarmcoord: invalid configuration")
)

// Error is the tagged failure value returned at operation boundaries.
type Error struct {
	// Kind is one of the sentinel kinds above.
	Kind error
	// Op names the operation that failed, e.g. "vote".
	Op string
	// Detail is a human-readable explanation.
	Detail string
	// Err is the underlying cause, if any.
	Err error
}

// NewError builds an Error of the given kind.
func NewError(kind error, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Detail: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error of the given kind around a cause.
func Wrap(kind error, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Detail: err.Error(), Err: err}
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%v: %s", e.Kind, e.Detail)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Kind, e.Detail)
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindOf returns the sentinel kind carried by err, or nil if err is not
// a swarm error.
func KindOf(err error) error {
	for _, kind := range []error{ErrNotFound, ErrInvalid, ErrConflict, ErrInvariant, ErrTransient} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
