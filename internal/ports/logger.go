package ports

import "github.com/bft-labs/swarmcoord/pkg/log"

// Logger is the structured logger used throughout the application layer.
type Logger = log.Logger

// Field is a structured log field.
type Field = log.Field

// Field constructors re-exported for the application layer.
var (
	String   = log.String
	Strings  = log.Strings
	Int      = log.Int
	Bool     = log.Bool
	Duration = log.Duration
	Err      = log.Err
	Time     = log.Time
	Any      = log.Any
	Stringer = log.Stringer
)

// WithFields returns a Logger that adds fields to every line.
var WithFields = log.With
