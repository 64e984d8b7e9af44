package cliconfig

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	logpkg "github.com/bft-labs/swarmcoord/pkg/log"
)

// NewZerolog builds the process logger: a console writer on stderr, or JSON
// lines when LogFormat is "json".
func NewZerolog(cfg Config, out io.Writer) (zerolog.Logger, error) {
	if out == nil {
		out = os.Stderr
	}
	level := zerolog.InfoLevel
	if cfg.LogLevel != "" {
		l, err := zerolog.ParseLevel(cfg.LogLevel)
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("parse log-level: %w", err)
		}
		level = l
	}
	if cfg.LogFormat != "json" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger(), nil
}

// NewLogger wraps NewZerolog in the library Logger interface.
func NewLogger(cfg Config, out io.Writer) (logpkg.Logger, error) {
	zl, err := NewZerolog(cfg, out)
	if err != nil {
		return nil, err
	}
	return logpkg.NewZerologAdapterWithLogger(zl), nil
}
