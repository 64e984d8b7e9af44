package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/swarmcoord/internal/domain"
)

func newTestExecutor(t *testing.T, custom map[string]domain.EmergencyProtocol) (*ProtocolExecutor, *mockEmitter, *mockLogger) {
	t.Helper()
	emitter := &mockEmitter{}
	logger := &mockLogger{}
	return NewProtocolExecutor(custom, logger, emitter), emitter, logger
}

func TestProtocolExecutor_Defaults(t *testing.T) {
	pe, _, _ := newTestExecutor(t, nil)

	var names []string
	for _, p := range pe.Protocols() {
		names = append(names, p.Name)
		require.NoError(t, p.Validate())
		s, err := pe.Status(p.Name)
		require.NoError(t, err)
		assert.Equal(t, domain.ProtocolInactive, s)
	}
	assert.Equal(t, []string{ProtocolAgentRecovery, ProtocolWorkflowRestoration}, names)
}

func TestProtocolExecutor_ActivateTwice(t *testing.T) {
	pe, emitter, _ := newTestExecutor(t, nil)

	exec, err := pe.ActivateProtocol(ProtocolWorkflowRestoration, "monitor")
	require.NoError(t, err)
	assert.Equal(t, domain.ProtocolActive, exec.Status)
	assert.Equal(t, "monitor", exec.Source)
	assert.NotEmpty(t, exec.ExecutionID)

	_, err = pe.ActivateProtocol(ProtocolWorkflowRestoration, "monitor")
	require.ErrorIs(t, err, domain.ErrConflict)

	_, err = pe.ActivateProtocol("no_such_protocol", "monitor")
	require.ErrorIs(t, err, domain.ErrNotFound)

	require.Len(t, emitter.protocols, 1)
	assert.Equal(t, protocolEvent{ProtocolWorkflowRestoration, domain.ProtocolInactive, domain.ProtocolActive}, emitter.protocols[0])
}

func TestProtocolExecutor_ExecuteToCompletion(t *testing.T) {
	pe, emitter, _ := newTestExecutor(t, nil)
	_, err := pe.ActivateProtocol(ProtocolAgentRecovery, "operator")
	require.NoError(t, err)

	results, err := pe.ExecuteProtocolActions(context.Background(), ProtocolAgentRecovery)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, domain.ActionSimulated, results[0].Status)
	assert.Equal(t, "isolate_failed_agent", results[0].Action)
	assert.Equal(t, domain.ActionCompleted, results[2].Status, "notify_swarm has a real handler")
	assert.Len(t, emitter.notifications, 1)

	s, _ := pe.Status(ProtocolAgentRecovery)
	assert.Equal(t, domain.ProtocolCompleted, s)
	assert.Empty(t, pe.ActiveExecutions())

	history := pe.History()
	require.Len(t, history, 1)
	assert.Equal(t, "3/3", history[0].Progress())
	assert.NotNil(t, history[0].FinishedAt)

	// Completed protocols need a reset before they can run again.
	_, err = pe.ActivateProtocol(ProtocolAgentRecovery, "operator")
	require.ErrorIs(t, err, domain.ErrConflict)
	require.NoError(t, pe.Reset(ProtocolAgentRecovery))
	_, err = pe.ActivateProtocol(ProtocolAgentRecovery, "operator")
	require.NoError(t, err)

	_, err = pe.ExecuteProtocolActions(context.Background(), ProtocolWorkflowRestoration)
	assert.ErrorIs(t, err, domain.ErrConflict, "inactive protocol cannot execute")
}

func TestProtocolExecutor_HandlerFailure(t *testing.T) {
	pe, emitter, _ := newTestExecutor(t, nil)
	pe.RegisterActionHandler("isolate_failed_agent", func(ctx context.Context, exec domain.ProtocolExecution, a domain.ResponseAction) (string, error) {
		return "", errors.New("agent unreachable")
	})
	_, err := pe.ActivateProtocol(ProtocolAgentRecovery, "operator")
	require.NoError(t, err)

	results, err := pe.ExecuteProtocolActions(context.Background(), ProtocolAgentRecovery)
	require.ErrorIs(t, err, domain.ErrTransient)
	require.Len(t, results, 1)
	assert.Equal(t, domain.ActionFailed, results[0].Status)

	s, _ := pe.Status(ProtocolAgentRecovery)
	assert.Equal(t, domain.ProtocolFailed, s)
	require.Len(t, pe.History(), 1)
	assert.Contains(t, pe.History()[0].Error, "agent unreachable")
	assert.Empty(t, emitter.notifications)

	require.NoError(t, pe.Reset(ProtocolAgentRecovery))
	s, _ = pe.Status(ProtocolAgentRecovery)
	assert.Equal(t, domain.ProtocolInactive, s)
}

func TestProtocolExecutor_ActionTimeoutWarns(t *testing.T) {
	custom := map[string]domain.EmergencyProtocol{
		"slow": {
			ResponseActions: []domain.ResponseAction{{Name: "drain", TimeoutSeconds: 1}},
		},
	}
	pe, _, logger := newTestExecutor(t, custom)
	pe.RegisterActionHandler("drain", func(ctx context.Context, exec domain.ProtocolExecution, a domain.ResponseAction) (string, error) {
		time.Sleep(1100 * time.Millisecond)
		return "drained", nil
	})
	_, err := pe.ActivateProtocol("slow", "test")
	require.NoError(t, err)

	results, err := pe.ExecuteProtocolActions(context.Background(), "slow")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].TimedOut)
	assert.Equal(t, domain.ActionCompleted, results[0].Status)
	assert.Contains(t, logger.Warnings(), "protocol action exceeded its timeout")
}

func TestProtocolExecutor_EscalateAndDeactivate(t *testing.T) {
	pe, emitter, _ := newTestExecutor(t, nil)

	_, err := pe.Escalate(ProtocolWorkflowRestoration)
	require.ErrorIs(t, err, domain.ErrConflict)

	_, err = pe.ActivateProtocol(ProtocolWorkflowRestoration, "monitor")
	require.NoError(t, err)
	exec, err := pe.Escalate(ProtocolWorkflowRestoration)
	require.NoError(t, err)
	assert.Equal(t, domain.ProtocolEscalated, exec.Status)
	assert.Equal(t, []string{"notify_captain", "request_manual_review"}, exec.Escalations)

	require.NoError(t, pe.Reset(ProtocolAgentRecovery))
	assert.ErrorIs(t, pe.Reset(ProtocolWorkflowRestoration), domain.ErrConflict)

	require.NoError(t, pe.Deactivate(ProtocolWorkflowRestoration, "false alarm"))
	s, _ := pe.Status(ProtocolWorkflowRestoration)
	assert.Equal(t, domain.ProtocolInactive, s)
	require.Len(t, pe.History(), 1)
	assert.Equal(t, "deactivated: false alarm", pe.History()[0].Error)
	assert.ErrorIs(t, pe.Deactivate(ProtocolWorkflowRestoration, "again"), domain.ErrConflict)
	assert.ErrorIs(t, pe.Deactivate("nope", ""), domain.ErrNotFound)

	var statuses []domain.ProtocolStatus
	for _, e := range emitter.protocols {
		statuses = append(statuses, e.current)
	}
	assert.Equal(t, []domain.ProtocolStatus{domain.ProtocolActive, domain.ProtocolEscalated, domain.ProtocolInactive}, statuses)
}

func TestProtocolExecutor_CustomAndReload(t *testing.T) {
	custom := map[string]domain.EmergencyProtocol{
		"network_partition": {
			Description:     "Handle split swarms",
			ResponseActions: []domain.ResponseAction{{Name: ActionCheckpointState}},
		},
		"broken": {Name: "broken"},
	}
	pe, _, logger := newTestExecutor(t, custom)

	p, err := pe.Protocol("network_partition")
	require.NoError(t, err)
	assert.Equal(t, "network_partition", p.Name)
	_, err = pe.Protocol("broken")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Contains(t, logger.Warnings(), "skipping invalid custom protocol")

	_, err = pe.ActivateProtocol("network_partition", "test")
	require.NoError(t, err)

	n := pe.Reload(map[string]domain.EmergencyProtocol{
		"network_partition": {ResponseActions: []domain.ResponseAction{{Name: "a"}, {Name: "b"}}},
		"hotfix":            {ResponseActions: []domain.ResponseAction{{Name: "patch"}}},
	})
	assert.Equal(t, 4, n)

	// In-flight protocol keeps its definition.
	p, err = pe.Protocol("network_partition")
	require.NoError(t, err)
	assert.Len(t, p.ResponseActions, 1)

	s, err := pe.Status("hotfix")
	require.NoError(t, err)
	assert.Equal(t, domain.ProtocolInactive, s)

	// Dropping a protocol that is not running removes it.
	pe.Reload(map[string]domain.EmergencyProtocol{"network_partition": p})
	_, err = pe.Status("hotfix")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestProtocolExecutor_CoordinationHandlers(t *testing.T) {
	pe, _, _ := newTestExecutor(t, map[string]domain.EmergencyProtocol{
		"freeze": {ResponseActions: []domain.ResponseAction{
			{Name: ActionPauseCoordination},
			{Name: ActionCheckpointState},
		}},
	})
	coord := NewCoordinator(CoordinatorConfig{CycleInterval: time.Hour}, nil, nil, &mockLogger{}, nil)
	dc, decisions, _, _ := newTestDecisionCore(t, DecisionConfig{})
	pe.BindCoordination(coord, dc)

	require.NoError(t, coord.Start(context.Background()))
	defer func() { _ = coord.Stop() }()

	_, err := pe.ActivateProtocol("freeze", "test")
	require.NoError(t, err)
	results, err := pe.ExecuteProtocolActions(context.Background(), "freeze")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, domain.ActionCompleted, results[0].Status)
	assert.Equal(t, "coordination loop paused", results[0].Detail)
	assert.Equal(t, domain.ActionCompleted, results[1].Status)

	assert.Equal(t, LoopPaused, coord.LoopState())
	assert.Equal(t, 1, decisions.saves)
}
