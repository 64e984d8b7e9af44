package app

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bft-labs/swarmcoord/internal/domain"
	"github.com/bft-labs/swarmcoord/internal/ports"
)

// Default voting parameters.
const (
	DefaultVoteThreshold = 5
	DefaultSwarmSize     = 8
	DefaultDecisionType  = "general"
)

// DecisionConfig tunes the DecisionCore.
type DecisionConfig struct {
	// VoteThreshold is the number of ballots, abstentions included, after
	// which a decision resolves.
	VoteThreshold int

	// SwarmSize is the nominal number of voting agents.
	SwarmSize int

	// Roster, when non-empty, restricts voting to these agent IDs.
	Roster []string
}

// DefaultDecisionConfig returns the stock voting parameters.
func DefaultDecisionConfig() DecisionConfig {
	return DecisionConfig{
		VoteThreshold: DefaultVoteThreshold,
		SwarmSize:     DefaultSwarmSize,
	}
}

// DecisionCore holds swarm decisions and agent statuses and persists both
// through their repositories after every mutation.
type DecisionCore struct {
	cfg       DecisionConfig
	decisions ports.DecisionRepository
	statuses  ports.AgentStatusRepository
	logger    ports.Logger
	emitter   EventEmitter

	now       func() time.Time
	newSuffix func() string

	mu          sync.Mutex
	byID        map[string]*domain.SwarmDecision
	agentStatus map[string]domain.AgentStatus
	roster      map[string]bool
}

// NewDecisionCore creates a DecisionCore and loads any previously stored
// decisions and agent statuses.
func NewDecisionCore(ctx context.Context, cfg DecisionConfig, decisions ports.DecisionRepository, statuses ports.AgentStatusRepository, logger ports.Logger, emitter EventEmitter) (*DecisionCore, error) {
	if cfg.VoteThreshold <= 0 {
		cfg.VoteThreshold = DefaultVoteThreshold
	}
	if cfg.SwarmSize <= 0 {
		cfg.SwarmSize = DefaultSwarmSize
	}

	dc := &DecisionCore{
		cfg:         cfg,
		decisions:   decisions,
		statuses:    statuses,
		logger:      logger,
		emitter:     emitterOrNop(emitter),
		now:         time.Now,
		newSuffix:   func() string { return strings.ReplaceAll(uuid.NewString(), "-", "")[:8] },
		byID:        make(map[string]*domain.SwarmDecision),
		agentStatus: make(map[string]domain.AgentStatus),
	}
	if len(cfg.Roster) > 0 {
		dc.roster = make(map[string]bool, len(cfg.Roster))
		for _, id := range cfg.Roster {
			dc.roster[id] = true
		}
	}

	stored, err := decisions.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load decisions: %w", err)
	}
	for id, d := range stored {
		d := d.Clone()
		if d.DecisionID == "" {
			d.DecisionID = id
		}
		dc.byID[d.DecisionID] = &d
	}

	st, err := statuses.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load agent statuses: %w", err)
	}
	for id, s := range st {
		if s.AgentID == "" {
			s.AgentID = id
		}
		dc.agentStatus[s.AgentID] = s
	}

	logger.Debug("decision core loaded",
		ports.Int("decisions", len(dc.byID)),
		ports.Int("agent_statuses", len(dc.agentStatus)),
	)
	return dc, nil
}

// Config returns the effective voting parameters.
func (dc *DecisionCore) Config() DecisionConfig {
	return dc.cfg
}

// CreateDecision opens a new decision in pending state.
func (dc *DecisionCore) CreateDecision(ctx context.Context, decisionType, title, description, proposer string) (domain.SwarmDecision, error) {
	const op = "create decision"
	title = strings.TrimSpace(title)
	proposer = strings.TrimSpace(proposer)
	if title == "" {
		return domain.SwarmDecision{}, domain.NewError(domain.ErrInvalid, op, "title is required")
	}
	if proposer == "" {
		return domain.SwarmDecision{}, domain.NewError(domain.ErrInvalid, op, "proposer is required")
	}
	if decisionType = strings.TrimSpace(decisionType); decisionType == "" {
		decisionType = DefaultDecisionType
	}

	dc.mu.Lock()
	defer dc.mu.Unlock()

	now := dc.now()
	id := dc.nextIDLocked(now)
	d := &domain.SwarmDecision{
		DecisionID:   id,
		DecisionType: decisionType,
		Title:        title,
		Description:  description,
		ProposedBy:   proposer,
		CreatedAt:    now,
		Status:       domain.DecisionPending,
		Votes:        map[string]domain.Vote{},
	}
	dc.byID[id] = d

	if err := dc.saveDecisionsLocked(ctx); err != nil {
		delete(dc.byID, id)
		return domain.SwarmDecision{}, domain.Wrap(domain.ErrTransient, op, err)
	}

	dc.logger.Info("decision created",
		ports.String("decision", id),
		ports.String("type", decisionType),
		ports.String("proposer", proposer),
	)
	return d.Clone(), nil
}

func (dc *DecisionCore) nextIDLocked(now time.Time) string {
	for {
		id := fmt.Sprintf("decision_%s_%s", now.Format("20060102_150405"), dc.newSuffix())
		if _, taken := dc.byID[id]; !taken {
			return id
		}
	}
}

// Vote records an agent's ballot. A repeat vote overwrites the earlier one.
// Once the number of ballots reaches the threshold the decision resolves
// by simple majority and accepts no further votes.
func (dc *DecisionCore) Vote(ctx context.Context, decisionID, agentID, vote string) (domain.SwarmDecision, error) {
	const op = "vote"
	v, err := domain.ParseVote(vote)
	if err != nil {
		return domain.SwarmDecision{}, err
	}
	if agentID = strings.TrimSpace(agentID); agentID == "" {
		return domain.SwarmDecision{}, domain.NewError(domain.ErrInvalid, op, "agent id is required")
	}
	if dc.roster != nil && !dc.roster[agentID] {
		return domain.SwarmDecision{}, domain.NewError(domain.ErrInvalid, op, "agent %q is not on the swarm roster", agentID)
	}

	dc.mu.Lock()
	d, ok := dc.byID[decisionID]
	if !ok {
		dc.mu.Unlock()
		return domain.SwarmDecision{}, domain.NewError(domain.ErrNotFound, op, "decision %q does not exist", decisionID)
	}
	if d.IsResolved() {
		dc.mu.Unlock()
		return domain.SwarmDecision{}, domain.NewError(domain.ErrConflict, op, "decision %q is already resolved (%s)", decisionID, d.Resolution)
	}

	prev := d.Clone()
	d.Votes[agentID] = v
	d.Status = domain.DecisionVoting
	if d.Tally().Total() >= dc.cfg.VoteThreshold {
		d.Resolve(dc.now())
	}

	if err := dc.saveDecisionsLocked(ctx); err != nil {
		*d = prev
		dc.mu.Unlock()
		return domain.SwarmDecision{}, domain.Wrap(domain.ErrTransient, op, err)
	}
	out := d.Clone()
	dc.mu.Unlock()

	dc.logger.Debug("vote recorded",
		ports.String("decision", decisionID),
		ports.String("agent", agentID),
		ports.String("vote", string(v)),
	)
	if out.IsResolved() {
		tally := out.Tally()
		dc.logger.Info("decision resolved",
			ports.String("decision", decisionID),
			ports.String("resolution", string(out.Resolution)),
			ports.Int("yes", tally.Yes),
			ports.Int("no", tally.No),
			ports.Int("abstain", tally.Abstain),
		)
		dc.emitter.OnDecisionResolved(out)
	}
	return out, nil
}

// Decision returns a copy of one decision.
func (dc *DecisionCore) Decision(decisionID string) (domain.SwarmDecision, error) {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	d, ok := dc.byID[decisionID]
	if !ok {
		return domain.SwarmDecision{}, domain.NewError(domain.ErrNotFound, "get decision", "decision %q does not exist", decisionID)
	}
	return d.Clone(), nil
}

// Tally returns the current vote counts of a decision.
func (dc *DecisionCore) Tally(decisionID string) (domain.VoteTally, error) {
	d, err := dc.Decision(decisionID)
	if err != nil {
		return domain.VoteTally{}, err
	}
	return d.Tally(), nil
}

// ListDecisions returns decisions oldest first. An empty status matches all.
func (dc *DecisionCore) ListDecisions(status domain.DecisionStatus) []domain.SwarmDecision {
	dc.mu.Lock()
	out := make([]domain.SwarmDecision, 0, len(dc.byID))
	for _, d := range dc.byID {
		if status == "" || d.Status == status {
			out = append(out, d.Clone())
		}
	}
	dc.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].DecisionID < out[j].DecisionID
	})
	return out
}

// UpdateAgentStatus replaces the self-reported status of an agent.
func (dc *DecisionCore) UpdateAgentStatus(ctx context.Context, agentID, status, task string, metadata map[string]string) (domain.AgentStatus, error) {
	const op = "update agent status"
	if agentID = strings.TrimSpace(agentID); agentID == "" {
		return domain.AgentStatus{}, domain.NewError(domain.ErrInvalid, op, "agent id is required")
	}
	if status = strings.TrimSpace(status); status == "" {
		return domain.AgentStatus{}, domain.NewError(domain.ErrInvalid, op, "status is required")
	}

	s := domain.AgentStatus{
		AgentID:     agentID,
		Status:      status,
		CurrentTask: task,
		LastUpdated: dc.now(),
		Metadata:    maps.Clone(metadata),
	}

	dc.mu.Lock()
	defer dc.mu.Unlock()

	prev, existed := dc.agentStatus[agentID]
	dc.agentStatus[agentID] = s
	if err := dc.statuses.Save(ctx, dc.agentStatus); err != nil {
		if existed {
			dc.agentStatus[agentID] = prev
		} else {
			delete(dc.agentStatus, agentID)
		}
		return domain.AgentStatus{}, domain.Wrap(domain.ErrTransient, op, err)
	}

	dc.logger.Debug("agent status updated",
		ports.String("agent", agentID),
		ports.String("status", status),
	)
	return s, nil
}

// AgentStatus returns the stored status of one agent.
func (dc *DecisionCore) AgentStatus(agentID string) (domain.AgentStatus, error) {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	s, ok := dc.agentStatus[agentID]
	if !ok {
		return domain.AgentStatus{}, domain.NewError(domain.ErrNotFound, "get agent status", "no status for agent %q", agentID)
	}
	s.Metadata = maps.Clone(s.Metadata)
	return s, nil
}

// ListAgentStatuses returns every stored status ordered by agent ID.
func (dc *DecisionCore) ListAgentStatuses() []domain.AgentStatus {
	dc.mu.Lock()
	out := make([]domain.AgentStatus, 0, len(dc.agentStatus))
	for _, s := range dc.agentStatus {
		s.Metadata = maps.Clone(s.Metadata)
		out = append(out, s)
	}
	dc.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out
}

// Flush writes both stores to their repositories.
func (dc *DecisionCore) Flush(ctx context.Context) error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	if err := dc.saveDecisionsLocked(ctx); err != nil {
		return domain.Wrap(domain.ErrTransient, "flush", err)
	}
	if err := dc.statuses.Save(ctx, dc.agentStatus); err != nil {
		return domain.Wrap(domain.ErrTransient, "flush", err)
	}
	return nil
}

func (dc *DecisionCore) saveDecisionsLocked(ctx context.Context) error {
	out := make(map[string]domain.SwarmDecision, len(dc.byID))
	for id, d := range dc.byID {
		out[id] = d.Clone()
	}
	return dc.decisions.Save(ctx, out)
}
