// Package agentrt implements the agent factory: given a session config,
// it constructs an agent instance bound to a model provider and derives
// the per-turn agent configuration.
package agentrt

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/kandev/kaiak/internal/common/logger"
	"github.com/kandev/kaiak/internal/errs"
)

// Factory resolves providers by name and builds Agent + RunConfig pairs.
type Factory struct {
	mu        sync.RWMutex
	providers map[string]Provider
	logger    *logger.Logger
}

// NewFactory creates an empty Factory. Providers are registered with
// Register before Build can resolve them.
func NewFactory(log *logger.Logger) *Factory {
	return &Factory{
		providers: make(map[string]Provider),
		logger:    log.WithFields(zap.String("component", "agent-factory")),
	}
}

// Register adds a Provider under its own Name(), overwriting any
// previous registration of the same name.
func (f *Factory) Register(p Provider) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.providers[p.Name()] = p
}

// Build resolves cfg.Provider, instantiates it with cfg.Model, binds it
// to the runtime-native object for sessionID, and derives the per-turn
// RunConfig.
func (f *Factory) Build(ctx context.Context, sessionID string, native any, cfg AgentConfig) (Agent, RunConfig, error) {
	if cfg.Provider == "" || cfg.Model == "" {
		return nil, RunConfig{}, errs.New(errs.KindConfiguration, "agent_config.provider and agent_config.model must be non-empty")
	}

	f.mu.RLock()
	provider, ok := f.providers[cfg.Provider]
	f.mu.RUnlock()
	if !ok {
		return nil, RunConfig{}, errs.Newf(errs.KindAgentInitialization,
			"unknown provider %q", cfg.Provider)
	}

	agent, err := provider.BindAgent(ctx, sessionID, native, cfg.Model)
	if err != nil {
		return nil, RunConfig{}, errs.Wrap(errs.KindAgentInitialization,
			fmt.Sprintf("provider=%s model=%s", cfg.Provider, cfg.Model), err)
	}

	maxTurns, wasClamped := ClampMaxTurns(cfg.MaxTurns)
	if wasClamped {
		f.logger.Warn("clamped max_turns to allowed range",
			zap.String("session_id", sessionID),
			zap.Int("requested", cfg.MaxTurns),
			zap.Int("clamped", maxTurns))
	}

	run := RunConfig{
		SessionID:   sessionID,
		Scheduler:   cfg.Scheduler,
		MaxTurns:    maxTurns,
		RetryPolicy: cfg.RetryPolicy,
	}
	return agent, run, nil
}
