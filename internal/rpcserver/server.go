// Package rpcserver implements the JSON-RPC method dispatch table over
// a single framed connection: kaiak/generate_fix, kaiak/delete_session,
// and the client->server kaiak/client/user_message notification.
package rpcserver

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/kandev/kaiak/internal/common/logger"
	"github.com/kandev/kaiak/internal/errs"
	"github.com/kandev/kaiak/internal/orchestrator"
	"github.com/kandev/kaiak/internal/rendezvous"
	"github.com/kandev/kaiak/pkg/jsonrpc"
)

// Server dispatches incoming JSON-RPC requests/notifications to the
// orchestrator and rendezvous table. It holds no per-connection state;
// one Server instance is shared by every connection.
type Server struct {
	orch   *orchestrator.Orchestrator
	rdv    *rendezvous.Table
	logger *logger.Logger
}

// New constructs a Server.
func New(orch *orchestrator.Orchestrator, rdv *rendezvous.Table, log *logger.Logger) *Server {
	return &Server{orch: orch, rdv: rdv, logger: log.WithFields(zap.String("component", "rpcserver"))}
}

// Handle dispatches one decoded request or notification, returning the
// Response to write back for a request (id != nil), or a nil Response
// for a notification (no reply is ever sent).
func (s *Server) Handle(ctx context.Context, req jsonrpc.Request) *jsonrpc.Response {
	switch req.Method {
	case jsonrpc.MethodGenerateFix:
		return s.handleGenerateFix(ctx, req)
	case jsonrpc.MethodDeleteSession:
		return s.handleDeleteSession(ctx, req)
	case jsonrpc.MethodClientUserMessage:
		return s.handleClientUserMessage(req)
	default:
		if req.IsNotification() {
			s.logger.Warn("unknown notification method", zap.String("method", req.Method))
			return nil
		}
		resp := jsonrpc.NewErrorResponse(req.ID, jsonrpc.CodeMethodNotFound, fmt.Sprintf("unknown method %q", req.Method), nil)
		return &resp
	}
}

func (s *Server) handleGenerateFix(ctx context.Context, req jsonrpc.Request) *jsonrpc.Response {
	var params jsonrpc.GenerateFixParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		resp := jsonrpc.NewErrorResponse(req.ID, jsonrpc.CodeInvalidParams, "invalid generate_fix params: "+err.Error(), nil)
		return &resp
	}

	result, err := s.orch.HandleGenerateFix(ctx, params)
	if err != nil {
		return errorResponse(req.ID, err)
	}

	resp, err := jsonrpc.NewResponse(req.ID, result)
	if err != nil {
		resp = jsonrpc.NewErrorResponse(req.ID, jsonrpc.CodeInternalError, "marshal result: "+err.Error(), nil)
	}
	return &resp
}

func (s *Server) handleDeleteSession(ctx context.Context, req jsonrpc.Request) *jsonrpc.Response {
	var params jsonrpc.DeleteSessionParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		resp := jsonrpc.NewErrorResponse(req.ID, jsonrpc.CodeInvalidParams, "invalid delete_session params: "+err.Error(), nil)
		return &resp
	}

	result, err := s.orch.HandleDeleteSession(ctx, params)
	if err != nil {
		return errorResponse(req.ID, err)
	}

	resp, err := jsonrpc.NewResponse(req.ID, result)
	if err != nil {
		resp = jsonrpc.NewErrorResponse(req.ID, jsonrpc.CodeInternalError, "marshal result: "+err.Error(), nil)
	}
	return &resp
}

// handleClientUserMessage routes a client's tool-confirmation or
// elicitation response to the exact rendezvous slot it answers.
// Unmatched/late responses fail without creating a slot or disturbing
// any other awaiter. Clients may send the message either as a true
// notification (failures are logged only) or as a request with an id,
// in which case the failure comes back as an error response.
func (s *Server) handleClientUserMessage(req jsonrpc.Request) *jsonrpc.Response {
	var params jsonrpc.ClientUserMessageParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.logger.Warn("invalid client/user_message payload", zap.Error(err))
		return userMessageError(req, jsonrpc.CodeInvalidParams, "invalid client/user_message payload: "+err.Error())
	}

	var payload any
	switch params.Kind {
	case jsonrpc.ClientMessageToolConfirmation:
		var p struct {
			Permission string `json:"permission"`
		}
		if err := json.Unmarshal(params.Payload, &p); err != nil {
			s.logger.Warn("invalid tool_confirmation payload", zap.Error(err))
			return userMessageError(req, jsonrpc.CodeInvalidParams, "invalid tool_confirmation payload: "+err.Error())
		}
		payload = p.Permission
	case jsonrpc.ClientMessageElicitationResponse:
		payload = json.RawMessage(params.Payload)
	default:
		s.logger.Warn("unknown client/user_message kind", zap.String("kind", string(params.Kind)))
		return userMessageError(req, jsonrpc.CodeInvalidParams, fmt.Sprintf("unknown client/user_message kind %q", params.Kind))
	}

	if err := s.rdv.Submit(params.RequestID, payload); err != nil {
		s.logger.Warn("client response unmatched to any pending interaction",
			zap.String("session_id", params.SessionID),
			zap.String("interaction_id", params.RequestID),
			zap.Error(err))
		if req.IsNotification() {
			return nil
		}
		return errorResponse(req.ID, err)
	}

	if req.IsNotification() {
		return nil
	}
	resp, err := jsonrpc.NewResponse(req.ID, jsonrpc.ClientUserMessageResult{Accepted: true})
	if err != nil {
		resp = jsonrpc.NewErrorResponse(req.ID, jsonrpc.CodeInternalError, "marshal result: "+err.Error(), nil)
	}
	return &resp
}

// userMessageError builds the error response for a malformed
// client/user_message, or nil when the client sent it as a notification.
func userMessageError(req jsonrpc.Request, code int, message string) *jsonrpc.Response {
	if req.IsNotification() {
		return nil
	}
	resp := jsonrpc.NewErrorResponse(req.ID, code, message, nil)
	return &resp
}

func errorResponse(id any, err error) *jsonrpc.Response {
	kind := errs.KindOf(err)
	code := kind.Code()
	var data any
	if tagged, ok := errs.As(err); ok && len(tagged.Detail) > 0 {
		data = tagged.Detail
	}
	resp := jsonrpc.NewErrorResponse(id, code, err.Error(), data)
	return &resp
}
