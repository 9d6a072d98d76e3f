package audit

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kandev/kaiak/pkg/jsonrpc"
)

func TestLog_RecordAndQueryNotificationsInSequenceOrder(t *testing.T) {
	l, err := Open()
	require.NoError(t, err)
	defer l.Close()

	ctx := context.Background()
	for i, kind := range []jsonrpc.NotificationKind{jsonrpc.KindAIResponse, jsonrpc.KindToolCall, jsonrpc.KindError} {
		require.NoError(t, l.RecordNotification(ctx, jsonrpc.OutboundNotification{
			MessageID: string(rune('a' + i)),
			SessionID: "s-1",
			RequestID: "r-1",
			Kind:      kind,
			Sequence:  uint64(i + 1),
			Timestamp: "2026-08-02T10:00:00Z",
			Payload:   json.RawMessage(`{}`),
		}))
	}
	require.NoError(t, l.RecordNotification(ctx, jsonrpc.OutboundNotification{
		MessageID: "other",
		SessionID: "s-2",
		Kind:      jsonrpc.KindSystem,
		Sequence:  1,
		Timestamp: "2026-08-02T10:00:01Z",
	}))

	rows, err := l.ForSession(ctx, "s-1")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, "ai_response", rows[0].Kind)
	require.Equal(t, "tool_call", rows[1].Kind)
	require.Equal(t, "error", rows[2].Kind)
	for i, row := range rows {
		require.Equal(t, int64(i+1), row.Sequence)
		require.Equal(t, "s-1", row.SessionID)
	}
}

func TestLog_RecordInteractionResolution(t *testing.T) {
	l, err := Open()
	require.NoError(t, err)
	defer l.Close()

	ctx := context.Background()
	require.NoError(t, l.RecordInteractionResolution(ctx, "s-1", "tc-1", "tool_confirmation", "allow-once"))
	// Re-recording the same interaction replaces the row rather than failing.
	require.NoError(t, l.RecordInteractionResolution(ctx, "s-1", "tc-1", "tool_confirmation", "deny-once"))
}

func TestLog_ForSessionUnknownSessionIsEmpty(t *testing.T) {
	l, err := Open()
	require.NoError(t, err)
	defer l.Close()

	rows, err := l.ForSession(context.Background(), "never-seen")
	require.NoError(t, err)
	require.Empty(t, rows)
}
