package session

import (
	"context"

	"github.com/google/uuid"

	"github.com/kandev/kaiak/internal/agentrt/providers/acp"
)

// AgentRuntime is the default, in-process Runtime implementation: it
// mints session ids locally (the runtime and the host are the same
// process here) and stores each session's workspace as the Native
// handle the agent factory's ACP-family providers expect
// (acp.NativeFor). Lookup/Destroy are local-only; there is no separate
// remote runtime process to ask.
type AgentRuntime struct{}

// NewAgentRuntime constructs the default Runtime.
func NewAgentRuntime() *AgentRuntime { return &AgentRuntime{} }

func (r *AgentRuntime) CreateSession(_ context.Context, params CreateParams) (Handle, error) {
	return Handle{ID: uuid.NewString(), Native: acp.NativeFor(params.Workspace)}, nil
}

// LookupSession has no backing store of its own to consult beyond the
// Session Manager's own Store (which already short-circuits before
// calling into Runtime) — an id unknown to the Store is unknown here
// too, so this always reports not-found.
func (r *AgentRuntime) LookupSession(_ context.Context, _ string) (Handle, error) {
	return Handle{}, ErrRuntimeSessionNotFound
}

func (r *AgentRuntime) DestroySession(_ context.Context, _ string) error {
	return nil
}
