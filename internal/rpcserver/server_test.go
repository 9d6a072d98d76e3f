package rpcserver

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kandev/kaiak/internal/agentrt"
	"github.com/kandev/kaiak/internal/common/logger"
	"github.com/kandev/kaiak/internal/errs"
	"github.com/kandev/kaiak/internal/notify"
	"github.com/kandev/kaiak/internal/orchestrator"
	"github.com/kandev/kaiak/internal/rendezvous"
	"github.com/kandev/kaiak/internal/session"
	"github.com/kandev/kaiak/pkg/jsonrpc"
)

type stubSessions struct{}

func (stubSessions) Lock(context.Context, string) error { return nil }
func (stubSessions) Unlock(string)                      {}
func (stubSessions) IsLocked(string) (bool, time.Time)  { return false, time.Time{} }
func (stubSessions) GetOrCreate(_ context.Context, sessionID string, _ session.Config) (*session.Session, error) {
	return &session.Session{ID: sessionID}, nil
}
func (stubSessions) Delete(context.Context, string) (bool, error) { return true, nil }

type stubFactory struct{}

func (stubFactory) Build(context.Context, string, any, agentrt.AgentConfig) (agentrt.Agent, agentrt.RunConfig, error) {
	return nil, agentrt.RunConfig{}, errs.New(errs.KindAgentInitialization, "no providers in this test")
}

func newTestServer(t *testing.T) (*Server, *rendezvous.Table) {
	t.Helper()
	log := logger.Default()
	sink := notify.NewChannelSink(16, log)
	t.Cleanup(func() { sink.Close() })
	rdv := rendezvous.NewTable(time.Second, log)
	orch := orchestrator.New(stubSessions{}, stubFactory{}, rdv, sink, log)
	return New(orch, rdv, log), rdv
}

func request(id any, method string, params any) jsonrpc.Request {
	raw, _ := json.Marshal(params)
	return jsonrpc.Request{JSONRPC: "2.0", ID: id, Method: method, Params: raw}
}

func TestHandle_UnknownMethodReturnsMethodNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := srv.Handle(context.Background(), request(1, "kaiak/no_such_method", nil))
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	require.Equal(t, jsonrpc.CodeMethodNotFound, resp.Error.Code)
}

func TestHandle_UnknownNotificationIsDropped(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := srv.Handle(context.Background(), request(nil, "kaiak/no_such_method", nil))
	require.Nil(t, resp)
}

func TestHandle_GenerateFixRejectsMalformedParams(t *testing.T) {
	srv, _ := newTestServer(t)

	req := jsonrpc.Request{JSONRPC: "2.0", ID: 7, Method: jsonrpc.MethodGenerateFix, Params: json.RawMessage(`"not an object"`)}
	resp := srv.Handle(context.Background(), req)
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	require.Equal(t, jsonrpc.CodeInvalidParams, resp.Error.Code)
}

func TestHandle_GenerateFixSurfacesTaxonomyCode(t *testing.T) {
	srv, _ := newTestServer(t)

	params := jsonrpc.GenerateFixParams{
		SessionID: "b2f4f8f0-0000-4000-8000-000000000001",
		Incidents: []jsonrpc.Incident{{Message: "m"}},
		AgentConfig: agentrt.AgentConfig{
			Workspace: "/tmp",
			Provider:  "mock",
			Model:     "m-1",
		},
	}
	resp := srv.Handle(context.Background(), request(2, jsonrpc.MethodGenerateFix, params))
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	require.Equal(t, errs.KindAgentInitialization.Code(), resp.Error.Code)
}

func TestHandle_UserMessageRoutesToPendingInteraction(t *testing.T) {
	srv, rdv := newTestServer(t)

	rdv.Register("tc-1", rendezvous.KindToolConfirmation)
	done := make(chan rendezvous.Decision, 1)
	go func() {
		d, err := rdv.Wait(context.Background(), "tc-1")
		if err == nil {
			done <- d
		}
	}()
	// Let the awaiter block before the client's answer arrives.
	time.Sleep(5 * time.Millisecond)

	params := jsonrpc.ClientUserMessageParams{
		SessionID: "b2f4f8f0-0000-4000-8000-000000000001",
		Kind:      jsonrpc.ClientMessageToolConfirmation,
		RequestID: "tc-1",
		Payload:   json.RawMessage(`{"permission":"allow-once"}`),
	}
	resp := srv.Handle(context.Background(), request(nil, jsonrpc.MethodClientUserMessage, params))
	require.Nil(t, resp)

	select {
	case d := <-done:
		require.Equal(t, "allow-once", d.Payload)
	case <-time.After(time.Second):
		t.Fatal("awaiter never woke on the submitted decision")
	}
}

func TestHandle_UnmatchedUserMessageFailsWithoutCreatingSlot(t *testing.T) {
	srv, rdv := newTestServer(t)

	params := jsonrpc.ClientUserMessageParams{
		SessionID: "b2f4f8f0-0000-4000-8000-000000000001",
		Kind:      jsonrpc.ClientMessageToolConfirmation,
		RequestID: "I-unknown",
		Payload:   json.RawMessage(`{"permission":"allow-once"}`),
	}

	// Sent as a request, the failure comes back as an error response.
	resp := srv.Handle(context.Background(), request(3, jsonrpc.MethodClientUserMessage, params))
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	require.Equal(t, errs.KindInteractionTimeout.Code(), resp.Error.Code)

	// No slot was created by the failed submission.
	require.Error(t, rdv.Submit("I-unknown", "allow-once"))
}

func TestHandle_UserMessageAcknowledgedWhenSentAsRequest(t *testing.T) {
	srv, rdv := newTestServer(t)

	rdv.Register("el-1", rendezvous.KindElicitation)
	go func() {
		_, _ = rdv.Wait(context.Background(), "el-1")
	}()
	time.Sleep(5 * time.Millisecond)

	params := jsonrpc.ClientUserMessageParams{
		SessionID: "b2f4f8f0-0000-4000-8000-000000000001",
		Kind:      jsonrpc.ClientMessageElicitationResponse,
		RequestID: "el-1",
		Payload:   json.RawMessage(`{"answer":"yes"}`),
	}
	resp := srv.Handle(context.Background(), request(4, jsonrpc.MethodClientUserMessage, params))
	require.NotNil(t, resp)
	require.Nil(t, resp.Error)

	var ack jsonrpc.ClientUserMessageResult
	require.NoError(t, json.Unmarshal(resp.Result, &ack))
	require.True(t, ack.Accepted)
}
