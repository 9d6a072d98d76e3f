package agentrt

import (
	"context"
	"encoding/json"
)

// Permission is a client's decision on a tool-confirmation action_required
// event.
type Permission string

const (
	PermissionAllowOnce   Permission = "allow-once"
	PermissionAllowAlways Permission = "allow-always"
	PermissionDenyOnce    Permission = "deny-once"
	PermissionDenyAlways  Permission = "deny-always"
)

// Decisions is the companion channel the Event Bridge uses to inject a
// client's response back into an in-flight agent turn: it feeds the
// decision back into the agent stream's paired channel before the
// bridge resumes draining.
type Decisions interface {
	SubmitToolConfirmation(ctx context.Context, interactionID string, permission Permission) error
	SubmitElicitation(ctx context.Context, interactionID string, payload json.RawMessage) error
}

// Agent is the opaque per-session binding to a model provider: a
// provider of Agent::reply(...) -> stream of AgentEvent. Everything
// above this interface (Event Bridge, Request Orchestrator) never sees
// a concrete provider.
type Agent interface {
	// Reply sends prompt as a new user turn and returns the event stream
	// for it, plus the Decisions sink for any action_required events the
	// stream produces. The channel is closed when the turn completes or
	// the stream errors terminally.
	Reply(ctx context.Context, prompt string, run RunConfig) (<-chan Event, Decisions, error)
}
