// Package memory provides an in-process transition log used when no
// history database is configured.
package memory

import (
	"context"
	"sync"

	"github.com/bft-labs/swarmcoord/internal/domain"
)

// TransitionLog implements ports.TransitionLog in memory, keeping at most
// capacity records.
type TransitionLog struct {
	mu       sync.RWMutex
	capacity int
	records  []domain.LifecycleTransition
}

// NewTransitionLog creates a log. capacity <= 0 means unbounded.
func NewTransitionLog(capacity int) *TransitionLog {
	return &TransitionLog{capacity: capacity}
}

func (l *TransitionLog) Append(ctx context.Context, t domain.LifecycleTransition) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, t)
	if l.capacity > 0 && len(l.records) > l.capacity {
		l.records = append([]domain.LifecycleTransition(nil), l.records[len(l.records)-l.capacity:]...)
	}
	return nil
}

func (l *TransitionLog) List(ctx context.Context, agentID string, limit int) ([]domain.LifecycleTransition, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []domain.LifecycleTransition
	for _, t := range l.records {
		if agentID == "" || t.AgentID == agentID {
			out = append(out, t)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (l *TransitionLog) Close() error { return nil }
