// Package eventbridge drains one request's agent event stream,
// translating each event into an outbound notification and suspending
// on the interaction rendezvous when an event demands a client
// decision: a single-threaded switch over the agent's event kinds, one
// per-kind handler, publishing as it goes.
package eventbridge

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kandev/kaiak/internal/agentrt"
	"github.com/kandev/kaiak/internal/common/logger"
	"github.com/kandev/kaiak/internal/errs"
	"github.com/kandev/kaiak/internal/rendezvous"
	"github.com/kandev/kaiak/pkg/jsonrpc"
)

// Sink is the minimal publishing surface the bridge needs; satisfied by
// internal/notify's concrete sink. Kept local to avoid a dependency from
// eventbridge onto the notification-transport package.
type Sink interface {
	Publish(ctx context.Context, sessionID string, notification jsonrpc.OutboundNotification) error
}

// Bridge drains exactly one request's event stream. A fresh Bridge is
// created per generate_fix call by the Request Orchestrator.
type Bridge struct {
	sessionID string
	requestID string
	rdv       *rendezvous.Table
	sink      Sink
	logger    *logger.Logger

	seq uint64
}

// New constructs a Bridge for one request.
func New(sessionID, requestID string, rdv *rendezvous.Table, sink Sink, log *logger.Logger) *Bridge {
	return &Bridge{
		sessionID: sessionID,
		requestID: requestID,
		rdv:       rdv,
		sink:      sink,
		logger: log.WithFields(
			zap.String("component", "eventbridge"),
			zap.String("session_id", sessionID),
			zap.String("request_id", requestID),
		),
	}
}

// Drain consumes events sequentially until the channel closes, a stream
// error is observed, or ctx is cancelled. It suspends on the rendezvous
// table for action_required events, never draining ahead of an
// unresolved client decision.
func (b *Bridge) Drain(ctx context.Context, events <-chan agentrt.Event, decisions agentrt.Decisions) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := b.handle(ctx, ev, decisions); err != nil {
				return err
			}
			if ev.Kind == agentrt.EventStreamError {
				return errs.Wrap(errs.KindAgentIntegration, "agent stream error", ev.Err)
			}
		}
	}
}

func (b *Bridge) handle(ctx context.Context, ev agentrt.Event, decisions agentrt.Decisions) error {
	m, err := translate(ev)
	if err != nil {
		b.logger.Warn("failed to translate agent event", zap.String("event_kind", string(ev.Kind)), zap.Error(err))
		return nil
	}

	if err := b.publish(ctx, m); err != nil {
		return err
	}

	if ev.Kind != agentrt.EventActionRequired {
		return nil
	}
	return b.awaitDecision(ctx, ev, decisions)
}

// awaitDecision registers the action_required event's interaction id,
// blocks until the client answers, and injects the decision back into
// the agent's companion decision channel before Drain resumes — the
// ordering guarantee that a tool-confirmation decision is always
// applied before the next agent event is observed.
func (b *Bridge) awaitDecision(ctx context.Context, ev agentrt.Event, decisions agentrt.Decisions) error {
	switch ev.Action {
	case agentrt.ActionToolConfirmation:
		tc := ev.ToolConfirm
		b.rdv.Register(tc.InteractionID, rendezvous.KindToolConfirmation)
		d, err := b.rdv.Wait(ctx, tc.InteractionID)
		if err != nil {
			b.publishError(ctx, err)
			return err
		}
		permission, _ := d.Payload.(string)
		if permission == "" {
			permission = string(agentrt.PermissionDenyOnce)
		}
		return decisions.SubmitToolConfirmation(ctx, tc.InteractionID, agentrt.Permission(permission))

	case agentrt.ActionElicitation:
		el := ev.Elicit
		b.rdv.Register(el.InteractionID, rendezvous.KindElicitation)
		d, err := b.rdv.Wait(ctx, el.InteractionID)
		if err != nil {
			b.publishError(ctx, err)
			return err
		}
		payload, _ := d.Payload.(json.RawMessage)
		return decisions.SubmitElicitation(ctx, el.InteractionID, payload)

	default:
		return errs.Newf(errs.KindInternal, "unknown action kind %q", ev.Action)
	}
}

// publishError surfaces a rendezvous failure (timeout, cancellation) as
// an error notification so the client learns why its interaction ended,
// not just that the stream stopped. Best-effort: the drain is about to
// terminate either way.
func (b *Bridge) publishError(ctx context.Context, cause error) {
	raw, err := json.Marshal(errorPayload{Message: cause.Error(), Recoverable: true})
	if err != nil {
		return
	}
	if err := b.publish(ctx, mapped{kind: jsonrpc.KindError, payload: raw}); err != nil {
		b.logger.Warn("failed to publish interaction error notification", zap.Error(err))
	}
}

func (b *Bridge) publish(ctx context.Context, m mapped) error {
	b.seq++
	notif := jsonrpc.OutboundNotification{
		SessionID: b.sessionID,
		RequestID: b.requestID,
		MessageID: uuid.NewString(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Sequence:  b.seq,
		Kind:      m.kind,
		Payload:   m.payload,
	}
	return b.sink.Publish(ctx, b.sessionID, notif)
}
