package eventbridge

import (
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kandev/kaiak/internal/agentrt"
	"github.com/kandev/kaiak/pkg/jsonrpc"
)

// aiResponsePayload is the payload of an ai_response notification.
type aiResponsePayload struct {
	Text       string   `json:"text"`
	Partial    bool     `json:"partial"`
	Confidence *float64 `json:"confidence,omitempty"`
	TokenCount *int     `json:"token_count,omitempty"`
}

// historyCompactedPayload is the payload of a history_compacted notification.
type historyCompactedPayload struct {
	OriginalLength int `json:"original_length"`
	NewLength      int `json:"new_length"`
}

// modelChangePayload is the payload of a model_change notification.
type modelChangePayload struct {
	Old    string `json:"old"`
	New    string `json:"new"`
	Reason string `json:"reason,omitempty"`
}

// toolCallPayload is the payload of a tool_call notification, carrying
// the agent's MCP-shaped invocation as a real mcp-go CallToolRequest
// rather than a hand-rolled envelope.
type toolCallPayload struct {
	RequestID string              `json:"request_id"`
	Status    string              `json:"status"`
	Call      mcp.CallToolRequest `json:"call"`
}

// userInteractionPayload is the payload of a user_interaction
// notification for both tool_confirmation and elicitation.
type userInteractionPayload struct {
	InteractionKind string          `json:"interaction_kind"`
	InteractionID   string          `json:"interaction_id"`
	Prompt          string          `json:"prompt"`
	Choices         []string        `json:"choices,omitempty"`
	Schema          json.RawMessage `json:"schema,omitempty"`
}

// errorPayload is the payload of an error notification.
type errorPayload struct {
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
}

// mapped is one translated notification: its kind and marshalled payload.
type mapped struct {
	kind    jsonrpc.NotificationKind
	payload json.RawMessage
}

// translate converts one agent event into its outbound notification
// kind and payload, per the Agent-event-to-notification table. It never
// touches the rendezvous table directly — the bridge's drain loop owns
// suspension, this function is a pure mapping.
func translate(ev agentrt.Event) (mapped, error) {
	switch ev.Kind {
	case agentrt.EventMessage:
		msg := ev.Message
		if msg == nil {
			return mapped{}, fmt.Errorf("eventbridge: message event missing payload")
		}
		return marshalled(jsonrpc.KindAIResponse, aiResponsePayload{
			Text:       msg.Text,
			Partial:    false,
			Confidence: msg.Confidence,
			TokenCount: msg.TokenCount,
		})

	case agentrt.EventHistoryReplaced:
		hr := ev.HistoryReplaced
		if hr == nil {
			return mapped{}, fmt.Errorf("eventbridge: history_replaced event missing payload")
		}
		return marshalled(jsonrpc.KindHistoryCompacted, historyCompactedPayload{NewLength: hr.NewLength})

	case agentrt.EventModelChange:
		mc := ev.ModelChange
		if mc == nil {
			return mapped{}, fmt.Errorf("eventbridge: model_change event missing payload")
		}
		return marshalled(jsonrpc.KindModelChange, modelChangePayload{New: mc.Model, Reason: mc.Mode})

	case agentrt.EventMcpNotification:
		n := ev.Mcp
		if n == nil {
			return mapped{}, fmt.Errorf("eventbridge: mcp_notification event missing payload")
		}
		var args map[string]any
		_ = json.Unmarshal(n.Params, &args)
		return marshalled(jsonrpc.KindToolCall, toolCallPayload{
			RequestID: n.RequestID,
			Status:    "executing",
			Call: mcp.CallToolRequest{
				Params: mcp.CallToolParams{Name: n.Method, Arguments: args},
			},
		})

	case agentrt.EventActionRequired:
		switch ev.Action {
		case agentrt.ActionToolConfirmation:
			tc := ev.ToolConfirm
			if tc == nil {
				return mapped{}, fmt.Errorf("eventbridge: tool_confirmation action missing payload")
			}
			return marshalled(jsonrpc.KindUserInteraction, userInteractionPayload{
				InteractionKind: "tool_confirmation",
				InteractionID:   tc.InteractionID,
				Prompt:          tc.Prompt,
				Choices:         tc.Choices,
			})
		case agentrt.ActionElicitation:
			el := ev.Elicit
			if el == nil {
				return mapped{}, fmt.Errorf("eventbridge: elicitation action missing payload")
			}
			return marshalled(jsonrpc.KindUserInteraction, userInteractionPayload{
				InteractionKind: "elicitation",
				InteractionID:   el.InteractionID,
				Prompt:          el.Prompt,
				Schema:          el.Schema,
			})
		default:
			return mapped{}, fmt.Errorf("eventbridge: unknown action kind %q", ev.Action)
		}

	case agentrt.EventStreamError:
		msg := "agent stream error"
		if ev.Err != nil {
			msg = ev.Err.Error()
		}
		return marshalled(jsonrpc.KindError, errorPayload{Message: msg, Recoverable: true})

	default:
		return mapped{}, fmt.Errorf("eventbridge: unknown event kind %q", ev.Kind)
	}
}

func marshalled(kind jsonrpc.NotificationKind, payload any) (mapped, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return mapped{}, err
	}
	return mapped{kind: kind, payload: raw}, nil
}
