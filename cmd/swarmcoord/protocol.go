package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bft-labs/swarmcoord/internal/domain"
)

// Protocol executions live in the process that activated them, so the CLI
// runs a protocol from activation to completion in one command.
func (c *cli) protocolCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "protocol",
		Short: "Inspect and run emergency protocols",
	}
	cmd.AddCommand(c.protocolListCmd(), c.protocolShowCmd(), c.protocolRunCmd())
	return cmd
}

func (c *cli) protocolListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List built-in and custom protocols",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.openSwarm()
			if err != nil {
				return err
			}
			defer s.Close()

			tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tACTIONS\tDESCRIPTION")
			for _, p := range s.Protocols().Protocols() {
				fmt.Fprintf(tw, "%s\t%d\t%s\n", p.Name, len(p.ResponseActions), orDash(p.Description))
			}
			return tw.Flush()
		},
	}
}

func (c *cli) protocolShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Print a protocol definition as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.openSwarm()
			if err != nil {
				return err
			}
			defer s.Close()

			p, err := s.Protocols().Protocol(args[0])
			if err != nil {
				return err
			}
			return writeJSON(c, p)
		},
	}
}

func (c *cli) protocolRunCmd() *cobra.Command {
	var source string
	var escalate bool
	cmd := &cobra.Command{
		Use:   "run <name>",
		Short: "Activate a protocol and execute its response actions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			s, err := c.openSwarm()
			if err != nil {
				return err
			}
			defer s.Close()

			pe := s.Protocols()
			exec, err := pe.ActivateProtocol(name, source)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "%s %s (execution %s)\n", name, paint(string(domain.ProtocolActive)), exec.ExecutionID)

			if escalate {
				exec, err = pe.Escalate(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(c.out, "%s %s: %s\n", name, paint(string(domain.ProtocolEscalated)), strings.Join(exec.Escalations, ", "))
			}

			results, runErr := pe.ExecuteProtocolActions(cmd.Context(), name)
			for _, r := range results {
				line := fmt.Sprintf("  %-24s %s", r.Action, paint(r.Status))
				if r.Detail != "" {
					line += "  " + r.Detail
				}
				fmt.Fprintln(c.out, line)
			}

			status, err := pe.Status(name)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "%s %s\n", name, paint(string(status)))
			if runErr != nil {
				return runErr
			}
			if status == domain.ProtocolFailed {
				return fmt.Errorf("protocol %s failed", name)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&source, "source", "cli", "who or what triggered the protocol")
	cmd.Flags().BoolVar(&escalate, "escalate", false, "run escalation procedures before the response actions")
	return cmd
}
