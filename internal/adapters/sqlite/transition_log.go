// Package sqlite provides a durable, append-only transition audit log
// backed by an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/bft-labs/swarmcoord/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS lifecycle_transitions (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	transition_id TEXT UNIQUE NOT NULL,
	agent_id TEXT NOT NULL,
	from_phase TEXT NOT NULL,
	to_phase TEXT NOT NULL,
	trigger_name TEXT NOT NULL,
	context TEXT NOT NULL DEFAULT '{}',
	recorded_at TEXT NOT NULL,
	success BOOLEAN NOT NULL,
	error_message TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_transitions_agent ON lifecycle_transitions(agent_id, seq);
`

// TransitionLog implements ports.TransitionLog on SQLite.
type TransitionLog struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*TransitionLog, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open history db: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &TransitionLog{db: db}, nil
}

// Append inserts one transition. A transition ID that is already stored
// is ignored.
func (l *TransitionLog) Append(ctx context.Context, t domain.LifecycleTransition) error {
	tctx, err := json.Marshal(t.Context)
	if err != nil {
		return fmt.Errorf("encode transition context: %w", err)
	}
	if t.Context == nil {
		tctx = []byte("{}")
	}

	_, err = l.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO lifecycle_transitions
			(transition_id, agent_id, from_phase, to_phase, trigger_name, context, recorded_at, success, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TransitionID, t.AgentID, t.FromPhase.String(), t.ToPhase.String(), t.Trigger,
		string(tctx), t.Timestamp.UTC().Format(time.RFC3339Nano), t.Success, t.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("insert transition: %w", err)
	}
	return nil
}

// List returns the most recent transitions, oldest first.
func (l *TransitionLog) List(ctx context.Context, agentID string, limit int) ([]domain.LifecycleTransition, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT transition_id, agent_id, from_phase, to_phase, trigger_name, context, recorded_at, success, error_message
		FROM (
			SELECT * FROM lifecycle_transitions
			WHERE ? = '' OR agent_id = ?
			ORDER BY seq DESC
			LIMIT ?
		)
		ORDER BY seq ASC`, agentID, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	var out []domain.LifecycleTransition
	for rows.Next() {
		var (
			t                domain.LifecycleTransition
			from, to, rawCtx string
			at               string
		)
		if err := rows.Scan(&t.TransitionID, &t.AgentID, &from, &to, &t.Trigger, &rawCtx, &at, &t.Success, &t.ErrorMessage); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		if t.FromPhase, err = domain.ParsePhase(from); err != nil {
			return nil, err
		}
		if t.ToPhase, err = domain.ParsePhase(to); err != nil {
			return nil, err
		}
		if t.Timestamp, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, fmt.Errorf("parse transition time: %w", err)
		}
		if rawCtx != "" && rawCtx != "{}" && rawCtx != "null" {
			if err := json.Unmarshal([]byte(rawCtx), &t.Context); err != nil {
				return nil, fmt.Errorf("decode transition context: %w", err)
			}
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Count returns the number of stored transitions for agentID, or for all
// agents when agentID is empty.
func (l *TransitionLog) Count(ctx context.Context, agentID string) (int, error) {
	var n int
	err := l.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM lifecycle_transitions WHERE ? = '' OR agent_id = ?`,
		agentID, agentID,
	).Scan(&n)
	return n, err
}

// Close closes the database.
func (l *TransitionLog) Close() error {
	return l.db.Close()
}
