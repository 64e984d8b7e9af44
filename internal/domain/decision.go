package domain

import (
	"maps"
	"strings"
	"time"
)

// DecisionStatus is the position of a decision in its one-way lifecycle.
type DecisionStatus string

const (
	DecisionPending  DecisionStatus = "pending"
	DecisionVoting   DecisionStatus = "voting"
	DecisionResolved DecisionStatus = "resolved"
)

// Resolution is the outcome of a resolved decision.
type Resolution string

const (
	ResolutionApproved Resolution = "approved"
	ResolutionRejected Resolution = "rejected"
	ResolutionTied     Resolution = "tied"
)

// Vote is a single agent's ballot.
type Vote string

const (
	VoteYes     Vote = "yes"
	VoteNo      Vote = "no"
	VoteAbstain Vote = "abstain"
)

// ParseVote normalizes a vote string. Only yes, no and abstain are accepted.
func ParseVote(s string) (Vote, error) {
	switch v := Vote(strings.ToLower(strings.TrimSpace(s))); v {
	case VoteYes, VoteNo, VoteAbstain:
		return v, nil
	default:
		return "", NewError(ErrInvalid, "parse vote", "invalid vote %q (want yes, no or abstain)", s)
	}
}

// SwarmDecision is a proposal put to the swarm for a vote.
type SwarmDecision struct {
	DecisionID   string          `json:"decision_id"`
	DecisionType string          `json:"decision_type"`
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	ProposedBy   string          `json:"proposed_by"`
	CreatedAt    time.Time       `json:"created_at"`
	Status       DecisionStatus  `json:"status"`
	Votes        map[string]Vote `json:"votes"`
	Resolution   Resolution      `json:"resolution,omitempty"`
	ResolvedAt   *time.Time      `json:"resolved_at,omitempty"`
}

// IsResolved reports whether the decision can no longer change.
func (d *SwarmDecision) IsResolved() bool {
	return d.Status == DecisionResolved
}

// Clone returns a copy with its own vote map.
func (d *SwarmDecision) Clone() SwarmDecision {
	cp := *d
	cp.Votes = maps.Clone(d.Votes)
	if cp.Votes == nil {
		cp.Votes = map[string]Vote{}
	}
	if d.ResolvedAt != nil {
		at := *d.ResolvedAt
		cp.ResolvedAt = &at
	}
	return cp
}

// Tally counts the votes cast so far.
func (d *SwarmDecision) Tally() VoteTally {
	var t VoteTally
	for _, v := range d.Votes {
		switch v {
		case VoteYes:
			t.Yes++
		case VoteNo:
			t.No++
		case VoteAbstain:
			t.Abstain++
		}
	}
	return t
}

// Resolve closes the decision with the majority outcome of its current votes.
func (d *SwarmDecision) Resolve(at time.Time) {
	d.Resolution = d.Tally().Resolution()
	d.Status = DecisionResolved
	d.ResolvedAt = &at
}

// VoteTally is the per-option vote count of a decision.
type VoteTally struct {
	Yes     int `json:"yes"`
	No      int `json:"no"`
	Abstain int `json:"abstain"`
}

// Total counts every ballot, abstentions included.
func (t VoteTally) Total() int {
	return t.Yes + t.No + t.Abstain
}

// Resolution applies simple majority over yes and no; abstentions only
// count toward the total.
func (t VoteTally) Resolution() Resolution {
	switch {
	case t.Yes > t.No:
		return ResolutionApproved
	case t.No > t.Yes:
		return ResolutionRejected
	default:
		return ResolutionTied
	}
}
