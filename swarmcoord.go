// Package swarmcoord coordinates a swarm of agents: per-agent phase
// lifecycles, majority-vote decisions and emergency protocols.
//
// Example usage:
//
//	s, err := swarmcoord.Open("data/swarm")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
//	d, err := s.Decisions().CreateDecision(ctx, "", "Rotate keys", "", "captain")
//
// For plugins and event handlers use pkg/swarmcoord directly.
package swarmcoord

import (
	"context"

	"github.com/bft-labs/swarmcoord/internal/selfcheck"
	lib "github.com/bft-labs/swarmcoord/pkg/swarmcoord"
)

// Config configures a Swarm. See pkg/swarmcoord for field documentation.
type Config = lib.Config

// Swarm is the running coordination facade.
type Swarm = lib.Swarm

// CheckResult is the outcome of one self-check.
type CheckResult = selfcheck.Result

// DefaultConfig returns a Config rooted at dataDir with every other field
// set to its stock value.
func DefaultConfig(dataDir string) Config {
	cfg := Config{DataDir: dataDir}
	cfg.SetDefaults()
	return cfg
}

// Open creates a Swarm over dataDir with default settings. Stored
// decisions and agent statuses are loaded immediately.
func Open(dataDir string, opts ...lib.Option) (*Swarm, error) {
	return lib.New(DefaultConfig(dataDir), opts...)
}

// SelfCheck runs the built-in end-to-end checks in a temporary directory.
// The error is non-nil only if the checks could not be set up.
func SelfCheck(ctx context.Context) ([]CheckResult, error) {
	return selfcheck.Run(ctx, nil)
}
