package eventbridge

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kandev/kaiak/internal/agentrt"
	"github.com/kandev/kaiak/pkg/jsonrpc"
)

func TestTranslate_McpNotificationBecomesToolCall(t *testing.T) {
	m, err := translate(agentrt.Event{
		Kind: agentrt.EventMcpNotification,
		Mcp: &agentrt.McpNotification{
			RequestID: "rt-7",
			Method:    "apply_patch",
			Params:    json.RawMessage(`{"file":"Main.java","hunks":2}`),
		},
	})
	require.NoError(t, err)
	require.Equal(t, jsonrpc.KindToolCall, m.kind)

	var payload struct {
		RequestID string `json:"request_id"`
		Status    string `json:"status"`
		Call      struct {
			Params struct {
				Name      string         `json:"name"`
				Arguments map[string]any `json:"arguments"`
			} `json:"params"`
		} `json:"call"`
	}
	require.NoError(t, json.Unmarshal(m.payload, &payload))
	require.Equal(t, "rt-7", payload.RequestID)
	require.Equal(t, "executing", payload.Status)
	require.Equal(t, "apply_patch", payload.Call.Params.Name)
	require.Equal(t, "Main.java", payload.Call.Params.Arguments["file"])
}

func TestTranslate_ElicitationCarriesSchemaAndPrompt(t *testing.T) {
	schema := json.RawMessage(`{"type":"object","properties":{"branch":{"type":"string"}}}`)
	m, err := translate(agentrt.Event{
		Kind:   agentrt.EventActionRequired,
		Action: agentrt.ActionElicitation,
		Elicit: &agentrt.ElicitationRequest{
			InteractionID: "el-3",
			Prompt:        "which branch should the fix target?",
			Schema:        schema,
		},
	})
	require.NoError(t, err)
	require.Equal(t, jsonrpc.KindUserInteraction, m.kind)

	var payload userInteractionPayload
	require.NoError(t, json.Unmarshal(m.payload, &payload))
	require.Equal(t, "elicitation", payload.InteractionKind)
	require.Equal(t, "el-3", payload.InteractionID)
	require.JSONEq(t, string(schema), string(payload.Schema))
}

func TestTranslate_EventsMissingPayloadFail(t *testing.T) {
	for _, kind := range []agentrt.EventKind{
		agentrt.EventMessage,
		agentrt.EventHistoryReplaced,
		agentrt.EventModelChange,
		agentrt.EventMcpNotification,
	} {
		_, err := translate(agentrt.Event{Kind: kind})
		require.Error(t, err, "kind %s", kind)
	}
}

func TestTranslate_ModelChangeLeavesOldEmpty(t *testing.T) {
	m, err := translate(agentrt.Event{
		Kind:        agentrt.EventModelChange,
		ModelChange: &agentrt.ModelChange{Model: "sonnet-lite", Mode: "context-pressure"},
	})
	require.NoError(t, err)

	var payload modelChangePayload
	require.NoError(t, json.Unmarshal(m.payload, &payload))
	require.Empty(t, payload.Old)
	require.Equal(t, "sonnet-lite", payload.New)
	require.Equal(t, "context-pressure", payload.Reason)
}
