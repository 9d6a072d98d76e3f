package agentrt

import (
	"context"
	"encoding/json"
)

// Provider resolves a named model provider into a concrete Agent bound
// to a session.
type Provider interface {
	// Name is the provider's registry key (e.g. "acp", "docker", "mock").
	Name() string
	// BindAgent constructs an Agent for the given session/model, binding
	// it to whatever native runtime object the session carries.
	BindAgent(ctx context.Context, sessionID string, native any, model string) (Agent, error)
}

// AgentConfig is the client-supplied configuration document a request
// carries. Workspace validation is the Session Manager's job; this
// struct only carries the Factory-relevant fields.
type AgentConfig struct {
	Workspace   string          `json:"workspace"`
	Provider    string          `json:"provider"`
	Model       string          `json:"model"`
	Scheduler   string          `json:"scheduler,omitempty"`
	MaxTurns    int             `json:"max_turns,omitempty"`
	RetryPolicy json.RawMessage `json:"retry_policy,omitempty"`
}
