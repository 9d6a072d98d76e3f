package session

import "context"

// Kind identifies the nature of a session. Only "user" exists today, but
// the type keeps the door open without a breaking change.
type Kind string

const KindUser Kind = "user"

// CreateParams is what the agent runtime needs to mint a new session.
type CreateParams struct {
	// Name is the human-readable display name, derived by the Session
	// Manager as "kaiak-<basename of workspace>".
	Name      string
	Workspace string
	Kind      Kind
}

// Handle is the agent-runtime-side identity of a session: its minted id
// plus whatever opaque object the runtime needs to address it again
// (e.g. a live connection or process handle). The Session Manager never
// inspects Native; it is passed back to the Agent Factory unchanged.
type Handle struct {
	ID     string
	Native any
}

// Runtime is the opaque external collaborator: a provider of
// Agent::reply(...) -> stream of AgentEvent. The Session Manager only
// uses the create/destroy/lookup surface; the reply stream itself
// belongs to the Agent Factory and Event Bridge.
type Runtime interface {
	CreateSession(ctx context.Context, params CreateParams) (Handle, error)
	LookupSession(ctx context.Context, id string) (Handle, error)
	DestroySession(ctx context.Context, id string) error
}

// ErrRuntimeSessionNotFound is returned by Runtime.LookupSession when the
// runtime has no knowledge of the id. The Session Manager normalises any
// runtime-specific "not found" signal to this sentinel via errors.Is.
var ErrRuntimeSessionNotFound = runtimeNotFoundSentinel{}

type runtimeNotFoundSentinel struct{}

func (runtimeNotFoundSentinel) Error() string { return "runtime: session not found" }
