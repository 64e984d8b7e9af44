package fs

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/bft-labs/swarmcoord/internal/domain"
)

// AgentStatusFileName is the file holding agent statuses keyed by agent ID.
const AgentStatusFileName = "agent_status.json"

// AgentStatusFileRepository implements ports.AgentStatusRepository using a JSON file.
type AgentStatusFileRepository struct {
	dir string
}

// NewAgentStatusFileRepository creates a repository storing statuses in dir.
func NewAgentStatusFileRepository(dir string) *AgentStatusFileRepository {
	return &AgentStatusFileRepository{dir: dir}
}

// Load reads agent_status.json. Returns an empty map if it does not exist.
func (r *AgentStatusFileRepository) Load(ctx context.Context) (map[string]domain.AgentStatus, error) {
	statuses := make(map[string]domain.AgentStatus)
	if _, err := readJSON(r.Path(), &statuses); err != nil {
		return nil, fmt.Errorf("read %s: %w", r.Path(), err)
	}
	return statuses, nil
}

// Save replaces agent_status.json atomically.
func (r *AgentStatusFileRepository) Save(ctx context.Context, statuses map[string]domain.AgentStatus) error {
	if err := writeJSONAtomic(r.dir, AgentStatusFileName, statuses); err != nil {
		return fmt.Errorf("write %s: %w", r.Path(), err)
	}
	return nil
}

// Path returns the full path to agent_status.json.
func (r *AgentStatusFileRepository) Path() string {
	return filepath.Join(r.dir, AgentStatusFileName)
}
