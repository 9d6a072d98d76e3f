package acp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/coder/acp-go-sdk"

	"github.com/kandev/kaiak/internal/agentrt"
	"github.com/kandev/kaiak/internal/errs"
)

// decisions is the agentrt.Decisions companion for an ACP agent: it
// rendezvouses a client's SubmitToolConfirmation call with the goroutine
// blocked inside client.RequestPermission, one pending response channel
// per in-flight tool_call id.
type decisions struct {
	mu      sync.Mutex
	pending map[string]chan acp.RequestPermissionResponse
}

func (d *decisions) register(interactionID string) <-chan acp.RequestPermissionResponse {
	ch := make(chan acp.RequestPermissionResponse, 1)
	d.mu.Lock()
	d.pending[interactionID] = ch
	d.mu.Unlock()
	return ch
}

func (d *decisions) cancel(interactionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.pending, interactionID)
}

func (d *decisions) take(interactionID string) (chan acp.RequestPermissionResponse, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ch, ok := d.pending[interactionID]
	if ok {
		delete(d.pending, interactionID)
	}
	return ch, ok
}

// SubmitToolConfirmation resolves a pending permission request with the
// option id the client selected. The client echoes back an option id it
// was offered in the confirmation's choices, not a fixed enum value, so
// the permission string passes through as the ACP option id unchanged.
func (d *decisions) SubmitToolConfirmation(_ context.Context, interactionID string, permission agentrt.Permission) error {
	ch, ok := d.take(interactionID)
	if !ok {
		return errs.Newf(errs.KindInteractionTimeout, "no pending tool confirmation for interaction %q", interactionID)
	}
	ch <- acp.RequestPermissionResponse{
		Outcome: acp.RequestPermissionOutcome{
			Selected: &acp.RequestPermissionOutcomeSelected{
				OptionId: acp.PermissionOptionId(permission),
			},
		},
	}
	return nil
}

// SubmitElicitation is unsupported on the ACP provider: the upstream SDK
// has no free-form elicitation request, only tool-call permission
// prompts, so elicitation events never fire from this provider and this
// is unreachable in practice.
func (d *decisions) SubmitElicitation(_ context.Context, interactionID string, _ json.RawMessage) error {
	return fmt.Errorf("acp provider does not emit elicitation requests: interaction %q", interactionID)
}
