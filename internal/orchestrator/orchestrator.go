// Package orchestrator implements the request pipeline: the entry point
// for a generate_fix request (lock session, build agent, render prompt,
// drain the event bridge to completion, unlock) and for delete_session
// (which must observe the same lock to refuse deleting a session
// mid-request).
package orchestrator

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kandev/kaiak/internal/agentrt"
	"github.com/kandev/kaiak/internal/common/logger"
	"github.com/kandev/kaiak/internal/errs"
	"github.com/kandev/kaiak/internal/eventbridge"
	"github.com/kandev/kaiak/internal/notify"
	"github.com/kandev/kaiak/internal/rendezvous"
	"github.com/kandev/kaiak/internal/session"
	"github.com/kandev/kaiak/internal/tracing"
	"github.com/kandev/kaiak/pkg/jsonrpc"
)

// SessionManager is the subset of *session.Manager the orchestrator
// needs, kept as an interface so tests can substitute a fake.
type SessionManager interface {
	Lock(ctx context.Context, sessionID string) error
	Unlock(sessionID string)
	IsLocked(sessionID string) (bool, time.Time)
	GetOrCreate(ctx context.Context, sessionID string, cfg session.Config) (*session.Session, error)
	Delete(ctx context.Context, sessionID string) (bool, error)
}

// AgentFactory is the subset of *agentrt.Factory the orchestrator needs.
type AgentFactory interface {
	Build(ctx context.Context, sessionID string, native any, cfg agentrt.AgentConfig) (agentrt.Agent, agentrt.RunConfig, error)
}

// activeRequest tracks the one in-flight request a locked session may
// have, so delete_session can report "active"/"in_progress" and, with
// force=true, cancel it.
type activeRequest struct {
	requestID string
	cancel    context.CancelFunc
}

// Orchestrator composes the Session Manager, Agent Factory, Interaction
// Rendezvous and Notification Sink into the generate_fix/delete_session
// request pipeline.
type Orchestrator struct {
	sessions SessionManager
	factory  AgentFactory
	rdv      *rendezvous.Table
	sink     notify.Sink
	logger   *logger.Logger

	mu     sync.Mutex
	active map[string]*activeRequest // session id -> in-flight request
}

// New constructs an Orchestrator.
func New(sessions SessionManager, factory AgentFactory, rdv *rendezvous.Table, sink notify.Sink, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		sessions: sessions,
		factory:  factory,
		rdv:      rdv,
		sink:     sink,
		logger:   log.WithFields(zap.String("component", "orchestrator")),
		active:   make(map[string]*activeRequest),
	}
}

// HandleGenerateFix drives one generate_fix request to completion:
// lock, prepare the agent, render the prompt, drive the event bridge to
// stream completion, release the lock, then respond. This runs
// synchronously inside the RPC call — the transport dispatches each
// request on its own goroutine (see rpcserver.Conn.Serve), so this
// blocks only the one request, not the connection. Failures after the
// lock and before streaming starts (session lookup/create, agent build,
// first reply) are returned directly. Any error that ends the event
// bridge's drain is logged and the request still gets the ordinary
// success response.
func (o *Orchestrator) HandleGenerateFix(ctx context.Context, req jsonrpc.GenerateFixParams) (jsonrpc.GenerateFixResult, error) {
	if err := validateGenerateFix(req); err != nil {
		return jsonrpc.GenerateFixResult{}, err
	}

	// Step 1: lock. Contention returns directly with no side effects.
	if err := o.sessions.Lock(ctx, req.SessionID); err != nil {
		return jsonrpc.GenerateFixResult{}, err
	}

	requestID := uuid.NewString()
	reqCtx, cancel := context.WithCancel(ctx)
	o.registerActive(req.SessionID, requestID, cancel)

	log := o.logger.WithFields(zap.String("session_id", req.SessionID), zap.String("request_id", requestID))
	reqCtx, span := tracing.TraceGenerateFix(reqCtx, req.SessionID, requestID, len(req.Incidents))

	var runErr error
	defer func() {
		tracing.EndRequest(span, runErr)
		cancel()
		o.clearActive(req.SessionID, requestID)
		o.sessions.Unlock(req.SessionID)
	}()

	sess, err := o.sessions.GetOrCreate(reqCtx, req.SessionID, session.Config{Workspace: req.AgentConfig.Workspace})
	if err != nil {
		runErr = err
		log.Error("session lookup/create failed after lock acquired", zap.Error(err))
		return jsonrpc.GenerateFixResult{}, err
	}

	agent, run, err := o.factory.Build(reqCtx, sess.ID, sess.Native, req.AgentConfig)
	if err != nil {
		runErr = err
		log.Error("agent build failed after lock acquired", zap.Error(err))
		return jsonrpc.GenerateFixResult{}, err
	}

	prompt := RenderPrompt(req.Incidents)

	events, decisions, err := agent.Reply(reqCtx, prompt, run)
	if err != nil {
		runErr = err
		log.Error("agent reply failed after lock acquired", zap.Error(err))
		return jsonrpc.GenerateFixResult{}, err
	}

	bridge := eventbridge.New(req.SessionID, requestID, o.rdv, o.sink, log)
	if err := bridge.Drain(reqCtx, events, decisions); err != nil {
		// Whatever ended the drain, the request still completes
		// normally and the caller gets the ordinary success response
		// below, not this error. Stream-level errors were already
		// surfaced as an `error` notification by the bridge.
		log.Warn("event bridge drain ended with error", zap.Error(err))
	}

	return jsonrpc.GenerateFixResult{
		RequestID: requestID,
		SessionID: req.SessionID,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// HandleDeleteSession implements kaiak/delete_session. A locked session
// refuses deletion unless cleanup_options.force is set, in which case
// the in-flight request's context is cancelled before deletion proceeds.
func (o *Orchestrator) HandleDeleteSession(ctx context.Context, req jsonrpc.DeleteSessionParams) (jsonrpc.DeleteSessionResult, error) {
	if err := validateDeleteSession(req); err != nil {
		return jsonrpc.DeleteSessionResult{}, err
	}

	force := req.CleanupOptions != nil && req.CleanupOptions.Force

	if locked, _ := o.sessions.IsLocked(req.SessionID); locked {
		if !force {
			return jsonrpc.DeleteSessionResult{
				SessionID: req.SessionID,
				Status:    jsonrpc.SessionActive,
			}, nil
		}
		o.cancelActive(req.SessionID)
	}

	removed, err := o.sessions.Delete(ctx, req.SessionID)
	if err != nil {
		if tagged, ok := errs.As(err); ok && tagged.Kind == errs.KindSessionInUse {
			return jsonrpc.DeleteSessionResult{
				SessionID: req.SessionID,
				Status:    jsonrpc.SessionInProgress,
			}, nil
		}
		return jsonrpc.DeleteSessionResult{
			SessionID: req.SessionID,
			Status:    jsonrpc.SessionFailed,
		}, err
	}

	status := jsonrpc.SessionNotFound
	deletedAt := ""
	var cleanupResults json.RawMessage
	if removed {
		status = jsonrpc.SessionDeleted
		deletedAt = time.Now().UTC().Format(time.RFC3339)

		opts := effectiveCleanupOptions(req.CleanupOptions)
		if raw, err := json.Marshal(jsonrpc.CleanupResult{
			TempFilesRemoved: opts.CleanupTempFilesOrDefault(),
			LogsPreserved:    opts.PreserveLogsOrDefault(),
		}); err == nil {
			cleanupResults = raw
		}
	}
	return jsonrpc.DeleteSessionResult{
		SessionID:      req.SessionID,
		Status:         status,
		CleanupResults: cleanupResults,
		DeletedAt:      deletedAt,
	}, nil
}

func (o *Orchestrator) registerActive(sessionID, requestID string, cancel context.CancelFunc) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.active[sessionID] = &activeRequest{requestID: requestID, cancel: cancel}
}

func (o *Orchestrator) clearActive(sessionID, requestID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if cur, ok := o.active[sessionID]; ok && cur.requestID == requestID {
		delete(o.active, sessionID)
	}
}

// cancelActive cancels sessionID's in-flight request, if any, which
// drops its event bridge and every rendezvous slot it holds.
func (o *Orchestrator) cancelActive(sessionID string) {
	o.mu.Lock()
	cur, ok := o.active[sessionID]
	o.mu.Unlock()
	if ok {
		cur.cancel()
	}
}

// effectiveCleanupOptions normalises an absent cleanup_options to its
// all-defaults value so CleanupTempFilesOrDefault/PreserveLogsOrDefault
// can be called unconditionally.
func effectiveCleanupOptions(opts *jsonrpc.CleanupOptions) jsonrpc.CleanupOptions {
	if opts == nil {
		return jsonrpc.CleanupOptions{}
	}
	return *opts
}
