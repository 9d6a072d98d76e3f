package orchestrator

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/kandev/kaiak/internal/agentrt"
	"github.com/kandev/kaiak/internal/common/logger"
	"github.com/kandev/kaiak/internal/errs"
	"github.com/kandev/kaiak/internal/notify"
	"github.com/kandev/kaiak/internal/rendezvous"
	"github.com/kandev/kaiak/internal/session"
	"github.com/kandev/kaiak/pkg/jsonrpc"
)

type fakeSessions struct {
	mu             sync.Mutex
	locked         map[string]bool
	deleted        map[string]bool
	deleteErr      error
	getOrCreateErr error
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{locked: make(map[string]bool), deleted: make(map[string]bool)}
}

func (f *fakeSessions) Lock(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.locked[sessionID] {
		return errs.Newf(errs.KindSessionInUse, "session %q is in use", sessionID)
	}
	f.locked[sessionID] = true
	return nil
}

func (f *fakeSessions) Unlock(sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.locked, sessionID)
}

func (f *fakeSessions) IsLocked(sessionID string) (bool, time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.locked[sessionID], time.Time{}
}

func (f *fakeSessions) GetOrCreate(_ context.Context, sessionID string, _ session.Config) (*session.Session, error) {
	if f.getOrCreateErr != nil {
		return nil, f.getOrCreateErr
	}
	return &session.Session{ID: sessionID}, nil
}

func (f *fakeSessions) Delete(_ context.Context, sessionID string) (bool, error) {
	if f.deleteErr != nil {
		return false, f.deleteErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	was := f.deleted[sessionID]
	f.deleted[sessionID] = true
	return !was, nil
}

type fakeFactory struct {
	script []agentrt.Event
	err    error
}

func (f *fakeFactory) Build(_ context.Context, sessionID string, _ any, _ agentrt.AgentConfig) (agentrt.Agent, agentrt.RunConfig, error) {
	if f.err != nil {
		return nil, agentrt.RunConfig{}, f.err
	}
	return &scriptedAgent{script: f.script}, agentrt.RunConfig{SessionID: sessionID, MaxTurns: 10}, nil
}

type scriptedAgent struct {
	script []agentrt.Event
}

func (a *scriptedAgent) Reply(_ context.Context, _ string, _ agentrt.RunConfig) (<-chan agentrt.Event, agentrt.Decisions, error) {
	ch := make(chan agentrt.Event, len(a.script))
	for _, e := range a.script {
		ch <- e
	}
	close(ch)
	return ch, noopDecisions{}, nil
}

type noopDecisions struct{}

func (noopDecisions) SubmitToolConfirmation(context.Context, string, agentrt.Permission) error { return nil }
func (noopDecisions) SubmitElicitation(context.Context, string, json.RawMessage) error         { return nil }

func newTestOrchestrator(sessions *fakeSessions, factory *fakeFactory) (*Orchestrator, *notify.ChannelSink) {
	sink := notify.NewChannelSink(16, logger.Default())
	rdv := rendezvous.NewTable(time.Second, logger.Default())
	return New(sessions, factory, rdv, sink, logger.Default()), sink
}

func validGenerateFixReq(sessionID string) jsonrpc.GenerateFixParams {
	return jsonrpc.GenerateFixParams{
		SessionID: sessionID,
		Incidents: []jsonrpc.Incident{{Message: "migration failed"}},
		AgentConfig: agentrt.AgentConfig{
			Workspace: "/tmp",
			Provider:  "mock",
			Model:     "m-1",
		},
	}
}

func TestHandleGenerateFix_RejectsInvalidParamsBeforeLocking(t *testing.T) {
	sessions := newFakeSessions()
	orch, sink := newTestOrchestrator(sessions, &fakeFactory{})
	defer sink.Close()

	req := validGenerateFixReq("not-a-uuid")
	_, err := orch.HandleGenerateFix(context.Background(), req)
	require.Error(t, err)

	locked, _ := sessions.IsLocked("not-a-uuid")
	require.False(t, locked)
}

func TestHandleGenerateFix_RunsSynchronouslyAndUnlocksBeforeReturning(t *testing.T) {
	sessionID := uuid.NewString()
	sessions := newFakeSessions()
	factory := &fakeFactory{script: []agentrt.Event{
		{Kind: agentrt.EventMessage, Message: &agentrt.Message{Text: "fixed it"}},
	}}
	orch, sink := newTestOrchestrator(sessions, factory)
	defer sink.Close()

	var mu sync.Mutex
	var received []jsonrpc.OutboundNotification
	unsub := sink.Subscribe(func(n jsonrpc.OutboundNotification) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, n)
	})
	defer unsub()

	result, err := orch.HandleGenerateFix(context.Background(), validGenerateFixReq(sessionID))
	require.NoError(t, err)
	require.Equal(t, sessionID, result.SessionID)
	require.NotEmpty(t, result.RequestID)

	// The call only returns after the event bridge has fully drained,
	// so by the time HandleGenerateFix returns the session is already
	// unlocked. The sink fans out on its own goroutine, so delivery to
	// the subscriber may trail the return by a beat.
	locked, _ := sessions.IsLocked(sessionID)
	require.False(t, locked)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, jsonrpc.KindAIResponse, received[0].Kind)
}

func TestHandleGenerateFix_GetOrCreateFailurePropagatesAsRPCError(t *testing.T) {
	sessionID := uuid.NewString()
	sessions := newFakeSessions()
	sessions.getOrCreateErr = errs.Newf(errs.KindWorkspaceInvalid, "workspace %q does not exist", "/nope")

	orch, sink := newTestOrchestrator(sessions, &fakeFactory{})
	defer sink.Close()

	_, err := orch.HandleGenerateFix(context.Background(), validGenerateFixReq(sessionID))
	require.Error(t, err)
	tagged, ok := errs.As(err)
	require.True(t, ok)
	require.Equal(t, errs.KindWorkspaceInvalid, tagged.Kind)

	// The lock taken in step 1 must still be released even though the
	// failure happened after it was acquired.
	locked, _ := sessions.IsLocked(sessionID)
	require.False(t, locked)
}

func TestHandleGenerateFix_AgentBuildFailurePropagatesAsRPCError(t *testing.T) {
	sessionID := uuid.NewString()
	sessions := newFakeSessions()
	orch, sink := newTestOrchestrator(sessions, &fakeFactory{err: errs.Newf(errs.KindAgentInitialization, "unknown provider %q", "mock")})
	defer sink.Close()

	_, err := orch.HandleGenerateFix(context.Background(), validGenerateFixReq(sessionID))
	require.Error(t, err)
	tagged, ok := errs.As(err)
	require.True(t, ok)
	require.Equal(t, errs.KindAgentInitialization, tagged.Kind)

	locked, _ := sessions.IsLocked(sessionID)
	require.False(t, locked)
}

func TestHandleGenerateFix_LockContentionReturnsDirectly(t *testing.T) {
	sessionID := uuid.NewString()
	sessions := newFakeSessions()
	require.NoError(t, sessions.Lock(context.Background(), sessionID))

	orch, sink := newTestOrchestrator(sessions, &fakeFactory{})
	defer sink.Close()

	_, err := orch.HandleGenerateFix(context.Background(), validGenerateFixReq(sessionID))
	require.Error(t, err)
	tagged, ok := errs.As(err)
	require.True(t, ok)
	require.Equal(t, errs.KindSessionInUse, tagged.Kind)
}

func TestHandleDeleteSession_RefusesWhileLockedWithoutForce(t *testing.T) {
	sessionID := uuid.NewString()
	sessions := newFakeSessions()
	require.NoError(t, sessions.Lock(context.Background(), sessionID))

	orch, sink := newTestOrchestrator(sessions, &fakeFactory{})
	defer sink.Close()

	result, err := orch.HandleDeleteSession(context.Background(), jsonrpc.DeleteSessionParams{SessionID: sessionID})
	require.NoError(t, err)
	require.Equal(t, jsonrpc.SessionActive, result.Status)
}

func TestHandleDeleteSession_DeletesUnlockedSession(t *testing.T) {
	sessionID := uuid.NewString()
	sessions := newFakeSessions()

	orch, sink := newTestOrchestrator(sessions, &fakeFactory{})
	defer sink.Close()

	result, err := orch.HandleDeleteSession(context.Background(), jsonrpc.DeleteSessionParams{SessionID: sessionID})
	require.NoError(t, err)
	require.Equal(t, jsonrpc.SessionDeleted, result.Status)
	require.NotEmpty(t, result.DeletedAt)
}

func TestHandleDeleteSession_PopulatesCleanupResultsFromOptions(t *testing.T) {
	sessionID := uuid.NewString()
	sessions := newFakeSessions()

	orch, sink := newTestOrchestrator(sessions, &fakeFactory{})
	defer sink.Close()

	preserveLogs := false
	result, err := orch.HandleDeleteSession(context.Background(), jsonrpc.DeleteSessionParams{
		SessionID:      sessionID,
		CleanupOptions: &jsonrpc.CleanupOptions{PreserveLogs: &preserveLogs},
	})
	require.NoError(t, err)
	require.Equal(t, jsonrpc.SessionDeleted, result.Status)
	require.NotEmpty(t, result.CleanupResults)

	var cleanup jsonrpc.CleanupResult
	require.NoError(t, json.Unmarshal(result.CleanupResults, &cleanup))
	require.True(t, cleanup.TempFilesRemoved)
	require.False(t, cleanup.LogsPreserved)
}

func TestHandleDeleteSession_RejectsNonUUIDSessionID(t *testing.T) {
	sessions := newFakeSessions()
	orch, sink := newTestOrchestrator(sessions, &fakeFactory{})
	defer sink.Close()

	_, err := orch.HandleDeleteSession(context.Background(), jsonrpc.DeleteSessionParams{SessionID: "not-a-uuid"})
	require.Error(t, err)
	tagged, ok := errs.As(err)
	require.True(t, ok)
	require.Equal(t, errs.KindConfiguration, tagged.Kind)

	// Validation failed before any store state was consulted.
	require.Empty(t, sessions.deleted)
}

func TestHandleDeleteSession_RejectsOutOfRangeGracePeriod(t *testing.T) {
	sessionID := uuid.NewString()
	sessions := newFakeSessions()
	orch, sink := newTestOrchestrator(sessions, &fakeFactory{})
	defer sink.Close()

	_, err := orch.HandleDeleteSession(context.Background(), jsonrpc.DeleteSessionParams{
		SessionID:      sessionID,
		CleanupOptions: &jsonrpc.CleanupOptions{GracePeriodS: 4000},
	})
	require.Error(t, err)
	tagged, ok := errs.As(err)
	require.True(t, ok)
	require.Equal(t, errs.KindConfiguration, tagged.Kind)
}

func TestHandleDeleteSession_SurfacesSessionInUseAsInProgress(t *testing.T) {
	sessionID := uuid.NewString()
	sessions := newFakeSessions()
	sessions.deleteErr = errs.Newf(errs.KindSessionInUse, "session %q is in use", sessionID)

	orch, sink := newTestOrchestrator(sessions, &fakeFactory{})
	defer sink.Close()

	result, err := orch.HandleDeleteSession(context.Background(), jsonrpc.DeleteSessionParams{SessionID: sessionID})
	require.NoError(t, err)
	require.Equal(t, jsonrpc.SessionInProgress, result.Status)
}
