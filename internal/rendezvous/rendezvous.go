// Package rendezvous implements the single-shot promise table an
// action_required event suspends on: the event bridge registers an
// interaction id when it emits a tool_confirmation or elicitation
// event, and blocks until a client response arrives on the matching
// slot or the wait times out.
package rendezvous

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kandev/kaiak/internal/common/logger"
	"github.com/kandev/kaiak/internal/errs"
)

// Kind distinguishes what a suspended interaction is waiting for.
type Kind string

const (
	KindToolConfirmation Kind = "tool_confirmation"
	KindElicitation      Kind = "elicitation"
)

// Decision is whatever payload a client submits to resolve a pending
// interaction: a Permission string for tool_confirmation, or a raw JSON
// document for elicitation. The Event Bridge interprets Payload
// according to the Kind it registered.
type Decision struct {
	Payload any
}

type slot struct {
	kind      Kind
	createdAt time.Time
	ch        chan Decision
}

// Table is the process-local registry of in-flight interactions. One
// Table is shared by every session's Event Bridge instance.
type Table struct {
	mu      sync.Mutex
	pending map[string]*slot
	timeout time.Duration
	logger  *logger.Logger
}

// NewTable creates an empty Table. timeout bounds how long Wait blocks
// for a single interaction before failing with interaction_timeout;
// a non-positive value falls back to 60s.
func NewTable(timeout time.Duration, log *logger.Logger) *Table {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Table{
		pending: make(map[string]*slot),
		timeout: timeout,
		logger:  log.WithFields(zap.String("component", "rendezvous")),
	}
}

// Register opens a new slot for interactionID. Registering a second
// time under the same id while the first is still pending replaces it
// silently — interaction ids are expected to be unique per event
// (e.g. an ACP tool_call id), so collision is a caller bug, not a
// rendezvous concern.
func (t *Table) Register(interactionID string, kind Kind) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending[interactionID] = &slot{kind: kind, createdAt: time.Now(), ch: make(chan Decision, 1)}
}

// Wait blocks until interactionID's Decision arrives, ctx is cancelled,
// or the table's timeout elapses, whichever comes first. The slot is
// always removed before Wait returns.
func (t *Table) Wait(ctx context.Context, interactionID string) (Decision, error) {
	t.mu.Lock()
	s, ok := t.pending[interactionID]
	t.mu.Unlock()
	if !ok {
		return Decision{}, errs.Newf(errs.KindInteractionTimeout, "no pending interaction %q", interactionID)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	defer func() {
		t.mu.Lock()
		delete(t.pending, interactionID)
		t.mu.Unlock()
	}()

	select {
	case d := <-s.ch:
		return d, nil
	case <-timeoutCtx.Done():
		if ctx.Err() != nil {
			return Decision{}, errs.Wrap(errs.KindInteractionTimeout, "interaction cancelled", ctx.Err())
		}
		return Decision{}, errs.Newf(errs.KindInteractionTimeout, "interaction %q timed out after %s", interactionID, t.timeout)
	}
}

// Submit resolves interactionID with payload, waking the matching Wait
// call. Submitting to an unknown or already-resolved id is an error:
// the caller (the RPC layer, forwarding a client's decision) should
// surface this as a client-visible error rather than silently dropping
// a late answer.
func (t *Table) Submit(interactionID string, payload any) error {
	t.mu.Lock()
	s, ok := t.pending[interactionID]
	t.mu.Unlock()
	if !ok {
		return errs.Newf(errs.KindInteractionTimeout, "no pending interaction %q", interactionID)
	}

	select {
	case s.ch <- Decision{Payload: payload}:
		return nil
	default:
		return errs.Newf(errs.KindInteractionTimeout, "interaction %q already resolved", interactionID)
	}
}

// Cancel resolves interactionID's slot with a zero Decision and removes
// it, used when the owning request's turn ends before a client ever
// answers (e.g. the request's context is cancelled upstream).
func (t *Table) Cancel(interactionID string) {
	t.mu.Lock()
	s, ok := t.pending[interactionID]
	delete(t.pending, interactionID)
	t.mu.Unlock()
	if !ok {
		return
	}
	select {
	case s.ch <- Decision{}:
	default:
	}
}

// Sweep removes interactions older than the table's timeout without
// ever receiving a Decision, resolving each with a zero Decision so any
// Wait call currently blocked on it unblocks immediately instead of
// waiting out its own per-call timeout. Returns the number evicted.
func (t *Table) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	evicted := 0
	for id, s := range t.pending {
		if now.Sub(s.createdAt) <= t.timeout {
			continue
		}
		select {
		case s.ch <- Decision{}:
		default:
		}
		delete(t.pending, id)
		evicted++
		t.logger.Warn("rendezvous slot expired", zap.String("interaction_id", id), zap.String("kind", string(s.kind)))
	}
	return evicted
}
