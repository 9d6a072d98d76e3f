// Package mock implements a scripted in-memory agentrt.Provider for
// tests: a fixed list of events replayed verbatim on every Reply.
package mock

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/kandev/kaiak/internal/agentrt"
)

// Script is a canned sequence of events a mock agent replays for every
// prompt it receives.
type Script []agentrt.Event

// Provider hands out Agents that replay a fixed Script.
type Provider struct {
	script Script
}

// New creates a mock Provider that replays script on every turn.
func New(script Script) *Provider {
	return &Provider{script: script}
}

func (p *Provider) Name() string { return "mock" }

func (p *Provider) BindAgent(_ context.Context, sessionID string, _ any, _ string) (agentrt.Agent, error) {
	return &agent{sessionID: sessionID, script: p.script}, nil
}

type agent struct {
	sessionID string
	script    Script
}

type decisions struct {
	mu           sync.Mutex
	confirmCalls []string
	elicitCalls  []string
}

func (d *decisions) SubmitToolConfirmation(_ context.Context, interactionID string, _ agentrt.Permission) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.confirmCalls = append(d.confirmCalls, interactionID)
	return nil
}

func (d *decisions) SubmitElicitation(_ context.Context, interactionID string, _ json.RawMessage) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.elicitCalls = append(d.elicitCalls, interactionID)
	return nil
}

func (a *agent) Reply(ctx context.Context, _ string, _ agentrt.RunConfig) (<-chan agentrt.Event, agentrt.Decisions, error) {
	ch := make(chan agentrt.Event, len(a.script))
	go func() {
		defer close(ch)
		for _, ev := range a.script {
			select {
			case <-ctx.Done():
				return
			case ch <- ev:
			}
		}
	}()
	return ch, &decisions{}, nil
}
