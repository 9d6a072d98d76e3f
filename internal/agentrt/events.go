package agentrt

import "encoding/json"

// EventKind discriminates the variants of AgentEvent, mirroring the
// agent-event taxonomy an agent's reply stream produces.
type EventKind string

const (
	EventMessage         EventKind = "message"
	EventHistoryReplaced EventKind = "history_replaced"
	EventModelChange     EventKind = "model_change"
	EventMcpNotification EventKind = "mcp_notification"
	EventActionRequired  EventKind = "action_required"
	EventStreamError     EventKind = "stream_error"
)

// ActionKind discriminates the two suspension-causing action_required
// variants.
type ActionKind string

const (
	ActionToolConfirmation ActionKind = "tool_confirmation"
	ActionElicitation      ActionKind = "elicitation"
)

// Message carries rendered assistant text (the `message(msg)` event).
type Message struct {
	Text       string
	Confidence *float64
	TokenCount *int
}

// HistoryReplaced carries the new conversation length after a compaction
// (the `history_replaced(conv)` event). The runtime never exposes the
// original length.
type HistoryReplaced struct {
	NewLength int
}

// ModelChange carries the model the agent switched to and why.
type ModelChange struct {
	Model string
	Mode  string // carried through as the notification's "reason"
}

// McpNotification carries a raw MCP-shaped tool invocation notice.
type McpNotification struct {
	RequestID string
	Method    string
	Params    json.RawMessage
}

// ToolConfirmationRequest is the payload of an action_required event
// asking the client to approve or deny a tool call.
type ToolConfirmationRequest struct {
	InteractionID string
	Prompt        string
	Choices       []string // e.g. allow-once, allow-always, deny-once, deny-always
	Spec          json.RawMessage
}

// ElicitationRequest is the payload of an action_required event asking
// the client to supply structured free-form input.
type ElicitationRequest struct {
	InteractionID string
	Prompt        string
	Schema        json.RawMessage
}

// Event is one item from an agent's reply stream. Exactly one of the
// typed fields is populated, selected by Kind.
type Event struct {
	Kind EventKind

	Message         *Message
	HistoryReplaced *HistoryReplaced
	ModelChange     *ModelChange
	Mcp             *McpNotification
	Action          ActionKind
	ToolConfirm     *ToolConfirmationRequest
	Elicit          *ElicitationRequest
	Err             error
}
