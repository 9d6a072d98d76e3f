package jsonrpc

import (
	"encoding/json"

	"github.com/kandev/kaiak/internal/agentrt"
)

// Method names kaiak's dispatcher recognizes.
const (
	MethodGenerateFix   = "kaiak/generate_fix"
	MethodDeleteSession = "kaiak/delete_session"
)

// MethodClientUserMessage is the one client->server notification method;
// it carries a rendezvous decision (tool_confirmation or
// elicitation_response) routed to the Interaction Rendezvous rather than
// dispatched like a request.
const MethodClientUserMessage = "kaiak/client/user_message"

// NotificationKind enumerates the server->client notification kinds.
type NotificationKind string

const (
	KindProgress         NotificationKind = "progress"
	KindAIResponse       NotificationKind = "ai_response"
	KindToolCall         NotificationKind = "tool_call"
	KindThinking         NotificationKind = "thinking"
	KindUserInteraction  NotificationKind = "user_interaction"
	KindFileModification NotificationKind = "file_modification"
	KindError            NotificationKind = "error"
	KindModelChange      NotificationKind = "model_change"
	KindHistoryCompacted NotificationKind = "history_compacted"
	KindSystem           NotificationKind = "system"
)

// ClientMessageKind enumerates the kinds a kaiak/client/user_message
// notification's payload can carry.
type ClientMessageKind string

const (
	ClientMessageToolConfirmation    ClientMessageKind = "tool_confirmation"
	ClientMessageElicitationResponse ClientMessageKind = "elicitation_response"
)

// Incident is one migration incident reported by the client. Only
// Message is required; the remaining fields are descriptive context an
// agent's prompt rendering may use when present.
type Incident struct {
	Message  string `json:"message"`
	Severity string `json:"severity,omitempty"`
	File     string `json:"file,omitempty"`
	Line     int    `json:"line,omitempty"`
	Rule     string `json:"rule,omitempty"`
}

// GenerateFixParams is the params object of kaiak/generate_fix.
type GenerateFixParams struct {
	SessionID        string             `json:"session_id"`
	Incidents        []Incident         `json:"incidents"`
	MigrationContext json.RawMessage    `json:"migration_context,omitempty"`
	AgentConfig      agentrt.AgentConfig `json:"agent_config"`
}

// GenerateFixResult is the response payload of kaiak/generate_fix.
type GenerateFixResult struct {
	RequestID string `json:"request_id"`
	SessionID string `json:"session_id"`
	CreatedAt string `json:"created_at"`
}

// CleanupOptions configures kaiak/delete_session's teardown behavior.
type CleanupOptions struct {
	Force            bool  `json:"force,omitempty"`
	CleanupTempFiles *bool `json:"cleanup_temp_files,omitempty"`
	PreserveLogs     *bool `json:"preserve_logs,omitempty"`
	GracePeriodS     int   `json:"grace_period_s,omitempty"`
}

// CleanupTempFilesOrDefault returns the effective cleanup_temp_files
// value, defaulting to true when the client omits it.
func (o CleanupOptions) CleanupTempFilesOrDefault() bool {
	if o.CleanupTempFiles == nil {
		return true
	}
	return *o.CleanupTempFiles
}

// PreserveLogsOrDefault returns the effective preserve_logs value,
// defaulting to true when the client omits it.
func (o CleanupOptions) PreserveLogsOrDefault() bool {
	if o.PreserveLogs == nil {
		return true
	}
	return *o.PreserveLogs
}

// DeleteSessionParams is the params object of kaiak/delete_session.
type DeleteSessionParams struct {
	SessionID      string          `json:"session_id"`
	CleanupOptions *CleanupOptions `json:"cleanup_options,omitempty"`
}

// SessionDeleteStatus enumerates kaiak/delete_session's outcome statuses.
type SessionDeleteStatus string

const (
	SessionDeleted    SessionDeleteStatus = "deleted"
	SessionNotFound   SessionDeleteStatus = "not_found"
	SessionActive     SessionDeleteStatus = "active"
	SessionInProgress SessionDeleteStatus = "in_progress"
	SessionFailed     SessionDeleteStatus = "failed"
)

// DeleteSessionResult is the response payload of kaiak/delete_session.
type DeleteSessionResult struct {
	SessionID      string              `json:"session_id"`
	Status         SessionDeleteStatus `json:"status"`
	CleanupResults json.RawMessage     `json:"cleanup_results,omitempty"`
	DeletedAt      string              `json:"deleted_at,omitempty"`
}

// CleanupResult reports which cleanup_options were honored by a
// successful delete. This host keeps no on-disk session artifacts of
// its own (the agent runtime owns the workspace), so there is nothing
// to actually remove or preserve yet; the result still echoes back
// what the request asked for rather than leaving the field empty.
type CleanupResult struct {
	TempFilesRemoved bool `json:"temp_files_removed"`
	LogsPreserved    bool `json:"logs_preserved"`
}

// OutboundNotification is the envelope every server->client notification
// carries, regardless of kind.
type OutboundNotification struct {
	SessionID string           `json:"session_id"`
	RequestID string           `json:"request_id,omitempty"`
	MessageID string           `json:"message_id"`
	Timestamp string           `json:"timestamp"`
	Sequence  uint64           `json:"sequence"`
	Kind      NotificationKind `json:"kind"`
	Payload   json.RawMessage  `json:"payload"`
}

// ClientUserMessageResult acknowledges a kaiak/client/user_message the
// client chose to send as a request rather than a notification.
type ClientUserMessageResult struct {
	Accepted bool `json:"accepted"`
}

// ClientUserMessageParams is the params object of the
// kaiak/client/user_message notification.
type ClientUserMessageParams struct {
	SessionID string            `json:"session_id"`
	Kind      ClientMessageKind `json:"kind"`
	RequestID string            `json:"request_id"`
	Payload   json.RawMessage   `json:"payload"`
}
