package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/bft-labs/swarmcoord/internal/domain"
)

func (c *cli) createDecisionCmd() *cobra.Command {
	var decisionType, title, description, proposer string
	cmd := &cobra.Command{
		Use:   "create-decision",
		Short: "Open a new decision for the swarm to vote on",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.openSwarm()
			if err != nil {
				return err
			}
			defer s.Close()

			d, err := s.Decisions().CreateDecision(cmd.Context(), decisionType, title, description, proposer)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.out, d.DecisionID)
			return nil
		},
	}
	cmd.Flags().StringVar(&decisionType, "type", "", "decision type (default general)")
	cmd.Flags().StringVar(&title, "title", "", "short title")
	cmd.Flags().StringVar(&description, "description", "", "longer description")
	cmd.Flags().StringVar(&proposer, "proposer", "", "ID of the proposing agent")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("proposer")
	return cmd
}

func (c *cli) voteCmd() *cobra.Command {
	var decisionID, agentID, vote string
	cmd := &cobra.Command{
		Use:   "vote",
		Short: "Cast or replace an agent's vote (yes, no or abstain)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.openSwarm()
			if err != nil {
				return err
			}
			defer s.Close()

			d, err := s.Decisions().Vote(cmd.Context(), decisionID, agentID, vote)
			if err != nil {
				return err
			}
			t := d.Tally()
			line := fmt.Sprintf("%s %s yes=%d no=%d abstain=%d", d.DecisionID, paint(string(d.Status)), t.Yes, t.No, t.Abstain)
			if d.IsResolved() {
				line += " " + paint(string(d.Resolution))
			}
			fmt.Fprintln(c.out, line)
			return nil
		},
	}
	cmd.Flags().StringVar(&decisionID, "decision", "", "decision ID")
	cmd.Flags().StringVar(&agentID, "agent", "", "voting agent ID")
	cmd.Flags().StringVar(&vote, "vote", "", "yes, no or abstain")
	for _, name := range []string{"decision", "agent", "vote"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func (c *cli) listDecisionsCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list-decisions",
		Short: "List decisions, optionally filtered by status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := domain.DecisionStatus(strings.ToLower(strings.TrimSpace(status)))
			switch filter {
			case "", domain.DecisionPending, domain.DecisionVoting, domain.DecisionResolved:
			default:
				return fmt.Errorf("unknown status %q (want pending, voting or resolved)", status)
			}

			s, err := c.openSwarm()
			if err != nil {
				return err
			}
			defer s.Close()

			decisions := s.Decisions().ListDecisions(filter)
			if len(decisions) == 0 {
				fmt.Fprintln(c.out, "no decisions")
				return nil
			}
			tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTATUS\tRESOLUTION\tVOTES\tTITLE")
			for _, d := range decisions {
				resolution := "-"
				if d.Resolution != "" {
					resolution = paint(string(d.Resolution))
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", d.DecisionID, paint(string(d.Status)), resolution, len(d.Votes), d.Title)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "pending, voting or resolved")
	return cmd
}

func (c *cli) getDecisionCmd() *cobra.Command {
	var decisionID string
	cmd := &cobra.Command{
		Use:   "get-decision",
		Short: "Print one decision as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.openSwarm()
			if err != nil {
				return err
			}
			defer s.Close()

			d, err := s.Decisions().Decision(decisionID)
			if err != nil {
				return err
			}
			return writeJSON(c, d)
		},
	}
	cmd.Flags().StringVar(&decisionID, "id", "", "decision ID")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func (c *cli) statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Read or update agent statuses",
	}
	cmd.AddCommand(c.statusUpdateCmd(), c.statusGetCmd())
	return cmd
}

func (c *cli) statusUpdateCmd() *cobra.Command {
	var agentID, status, task string
	var meta map[string]string
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Set an agent's status, current task and metadata",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.openSwarm()
			if err != nil {
				return err
			}
			defer s.Close()

			st, err := s.Decisions().UpdateAgentStatus(cmd.Context(), agentID, status, task, meta)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "%s %s\n", st.AgentID, paint(st.Status))
			return nil
		},
	}
	cmd.Flags().StringVar(&agentID, "agent", "", "agent ID")
	cmd.Flags().StringVar(&status, "status", "", "status word, e.g. active or busy")
	cmd.Flags().StringVar(&task, "task", "", "current task")
	cmd.Flags().StringToStringVar(&meta, "meta", nil, "metadata as key=value (repeatable)")
	_ = cmd.MarkFlagRequired("agent")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func (c *cli) statusGetCmd() *cobra.Command {
	var agentID string
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Show one agent's status, or all of them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.openSwarm()
			if err != nil {
				return err
			}
			defer s.Close()

			if agentID != "" {
				st, err := s.Decisions().AgentStatus(agentID)
				if err != nil {
					return err
				}
				return writeJSON(c, st)
			}

			statuses := s.Decisions().ListAgentStatuses()
			if len(statuses) == 0 {
				fmt.Fprintln(c.out, "no agent statuses")
				return nil
			}
			tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "AGENT\tSTATUS\tTASK\tUPDATED\tMETADATA")
			for _, st := range statuses {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", st.AgentID, paint(st.Status), orDash(st.CurrentTask),
					st.LastUpdated.Format(time.RFC3339), formatMeta(st.Metadata))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&agentID, "agent", "", "agent ID (default: all agents)")
	return cmd
}

func writeJSON(c *cli, v interface{}) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatMeta(m map[string]string) string {
	if len(m) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + m[k]
	}
	return strings.Join(parts, ",")
}
