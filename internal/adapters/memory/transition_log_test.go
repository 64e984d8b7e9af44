package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/swarmcoord/internal/domain"
)

func TestTransitionLog(t *testing.T) {
	l := NewTransitionLog(3)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Append(ctx, domain.LifecycleTransition{
			TransitionID: fmt.Sprint(i),
			AgentID:      fmt.Sprintf("Agent-%d", i%2),
		}))
	}

	all, err := l.List(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "2", all[0].TransitionID)

	one, err := l.List(ctx, "Agent-0", 1)
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "4", one[0].TransitionID)
	assert.NoError(t, l.Close())
}
