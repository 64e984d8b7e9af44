package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bft-labs/swarmcoord/internal/selfcheck"
	"github.com/bft-labs/swarmcoord/internal/sim"
	"github.com/bft-labs/swarmcoord/pkg/swarmcoord"
	"github.com/bft-labs/swarmcoord/plugins/kafkasink"
	"github.com/bft-labs/swarmcoord/plugins/protocolwatcher"
)

// registerAgents adds a simulated agent for every roster ID. Simulated
// agents vote on open decisions when they act.
func (c *cli) registerAgents(s *swarmcoord.Swarm) error {
	for _, id := range c.cfg.AgentIDs() {
		if err := s.RegisterAgent(sim.New(id, sim.WithBallotBox(s.Decisions()))); err != nil {
			return err
		}
	}
	return nil
}

func (c *cli) runCmd() *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the coordination loop with simulated agents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []swarmcoord.Option
			if c.cfg.WatchProtocols && !once {
				opts = append(opts, protocolwatcher.WithDefaultProtocolWatcher())
			}
			if len(c.cfg.KafkaBrokers) > 0 {
				kc := kafkasink.DefaultConfig(c.cfg.KafkaBrokers)
				kc.Topic = c.cfg.KafkaTopic
				opts = append(opts, kafkasink.WithKafkaSink(kc))
			}

			s, err := c.openSwarm(opts...)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := c.registerAgents(s); err != nil {
				return err
			}

			if once {
				st := s.RunOnce(cmd.Context())
				fmt.Fprintf(c.out, "agents=%d transitions=%d failures=%d\n", st.Agents, st.Transitions, st.Failures)
				return nil
			}
			return c.runUntilSignal(cmd.Context(), s)
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "run a single pass over all agents and exit")
	return cmd
}

func (c *cli) runUntilSignal(parent context.Context, s *swarmcoord.Swarm) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	if err := s.Start(ctx); err != nil {
		return fmt.Errorf("start swarm: %w", err)
	}
	c.zl.Info().
		Int("agents", len(c.cfg.AgentIDs())).
		Dur("cycle_interval", c.cfg.CycleInterval).
		Msg("coordination loop started")

	doneCh := make(chan struct{})
	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if st := s.Status(); st == swarmcoord.StateStopped || st == swarmcoord.StateCrashed {
					close(doneCh)
					return
				}
			}
		}
	}()

	select {
	case <-sigCh:
		c.zl.Info().Msg("received signal, stopping...")
	case <-doneCh:
	}

	crashed := s.Status() == swarmcoord.StateCrashed
	if err := s.Stop(); err != nil {
		return fmt.Errorf("stop swarm: %w", err)
	}
	if crashed {
		c.zl.Error().Msg("coordination loop crashed")
		return fmt.Errorf("coordination loop crashed")
	}
	return nil
}

func (c *cli) testCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Run the built-in self-check against a temporary data directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			results, err := selfcheck.Run(cmd.Context(), c.logger)
			if err != nil {
				return err
			}
			failed := 0
			for _, r := range results {
				if r.Passed() {
					fmt.Fprintf(c.out, "%s  %s\n", paint("PASS"), r.Name)
					continue
				}
				failed++
				fmt.Fprintf(c.out, "%s  %s: %v\n", paint("FAIL"), r.Name, r.Err)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d checks failed", failed, len(results))
			}
			fmt.Fprintf(c.out, "all %d checks passed\n", len(results))
			return nil
		},
	}
}
