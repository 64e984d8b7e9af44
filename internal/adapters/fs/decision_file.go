package fs

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/bft-labs/swarmcoord/internal/domain"
)

// DecisionsFileName is the file holding every swarm decision keyed by ID.
const DecisionsFileName = "decisions.json"

// DecisionFileRepository implements ports.DecisionRepository using a JSON file.
type DecisionFileRepository struct {
	dir string
}

// NewDecisionFileRepository creates a repository storing decisions in dir.
func NewDecisionFileRepository(dir string) *DecisionFileRepository {
	return &DecisionFileRepository{dir: dir}
}

// Load reads decisions.json. Returns an empty map if it does not exist.
func (r *DecisionFileRepository) Load(ctx context.Context) (map[string]domain.SwarmDecision, error) {
	decisions := make(map[string]domain.SwarmDecision)
	if _, err := readJSON(r.Path(), &decisions); err != nil {
		return nil, fmt.Errorf("read %s: %w", r.Path(), err)
	}
	return decisions, nil
}

// Save replaces decisions.json atomically.
func (r *DecisionFileRepository) Save(ctx context.Context, decisions map[string]domain.SwarmDecision) error {
	if err := writeJSONAtomic(r.dir, DecisionsFileName, decisions); err != nil {
		return fmt.Errorf("write %s: %w", r.Path(), err)
	}
	return nil
}

// Path returns the full path to decisions.json.
func (r *DecisionFileRepository) Path() string {
	return filepath.Join(r.dir, DecisionsFileName)
}
