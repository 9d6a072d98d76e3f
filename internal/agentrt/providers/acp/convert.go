package acp

import (
	"encoding/json"
	"fmt"

	"github.com/coder/acp-go-sdk"

	"github.com/kandev/kaiak/internal/agentrt"
)

// convertNotification maps an ACP SessionNotification onto the provider-
// agnostic agentrt.Event vocabulary: message chunks become EventMessage,
// everything tool-shaped becomes an EventMcpNotification carrying the
// raw update as its Params so the bridge can forward it without this
// package needing to know the bridge's wire format.
func convertNotification(n acp.SessionNotification) (agentrt.Event, bool) {
	u := n.Update

	switch {
	case u.AgentMessageChunk != nil && u.AgentMessageChunk.Content.Text != nil:
		text := u.AgentMessageChunk.Content.Text.Text
		return agentrt.Event{Kind: agentrt.EventMessage, Message: &agentrt.Message{Text: text}}, true

	case u.ToolCall != nil:
		raw, err := json.Marshal(u.ToolCall)
		if err != nil {
			return agentrt.Event{}, false
		}
		return agentrt.Event{
			Kind: agentrt.EventMcpNotification,
			Mcp: &agentrt.McpNotification{
				RequestID: string(u.ToolCall.ToolCallId),
				Method:    "tool_call",
				Params:    raw,
			},
		}, true

	case u.ToolCallUpdate != nil:
		raw, err := json.Marshal(u.ToolCallUpdate)
		if err != nil {
			return agentrt.Event{}, false
		}
		return agentrt.Event{
			Kind: agentrt.EventMcpNotification,
			Mcp: &agentrt.McpNotification{
				RequestID: string(u.ToolCallUpdate.ToolCallId),
				Method:    "tool_call_update",
				Params:    raw,
			},
		}, true

	case u.Plan != nil:
		raw, err := json.Marshal(u.Plan)
		if err != nil {
			return agentrt.Event{}, false
		}
		return agentrt.Event{
			Kind: agentrt.EventMcpNotification,
			Mcp: &agentrt.McpNotification{
				Method: "plan",
				Params: raw,
			},
		}, true

	default:
		return agentrt.Event{}, false
	}
}

func agentrtActionRequiredToolConfirmation(interactionID, title string, choices []string) agentrt.Event {
	return agentrt.Event{
		Kind:   agentrt.EventActionRequired,
		Action: agentrt.ActionToolConfirmation,
		ToolConfirm: &agentrt.ToolConfirmationRequest{
			InteractionID: interactionID,
			Prompt:        title,
			Choices:       choices,
		},
	}
}

func errOutsideWorkspace(path, root string) error {
	return fmt.Errorf("path %q resolves outside workspace root %q", path, root)
}
