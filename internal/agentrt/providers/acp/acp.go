// Package acp implements an agentrt.Provider backed by a real ACP agent
// subprocess, speaking github.com/coder/acp-go-sdk over the subprocess's
// stdin/stdout.
package acp

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/coder/acp-go-sdk"
	"go.uber.org/zap"

	"github.com/kandev/kaiak/internal/agentrt"
	"github.com/kandev/kaiak/internal/common/logger"
	"github.com/kandev/kaiak/internal/errs"
)

// Spawner starts whatever process or container is going to speak ACP
// for a session and returns its stdin/stdout ends. Kept as an interface
// so both a plain subprocess (CommandSpawner here) and a container
// attachment (providers/docker) can back the same Provider/Agent
// machinery, and so tests can substitute a fake without forking a real
// process.
type Spawner interface {
	Spawn(ctx context.Context, sessionID, workspace, model string) (stdin io.WriteCloser, stdout io.ReadCloser, err error)
}

// CommandSpawner spawns the agent as a plain subprocess: a long-lived
// exec.Cmd outside of exec.CommandContext (cancelling the ctx passed to
// Spawn does not kill it, and this package does not stop it once
// started), with stdin/stdout wired as pipes.
type CommandSpawner struct {
	// Command is the agent binary. Args beyond Command are fixed flags;
	// Spawn appends "--model <model>" when a model is given and runs the
	// command with the workspace as its working directory.
	Command string
	Args    []string
}

func (s CommandSpawner) Spawn(_ context.Context, _, workspace, model string) (io.WriteCloser, io.ReadCloser, error) {
	args := append([]string{}, s.Args...)
	if model != "" {
		args = append(args, "--model", model)
	}
	cmd := exec.Command(s.Command, args...)
	cmd.Dir = workspace

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("start agent subprocess: %w", err)
	}
	return stdin, stdout, nil
}

// Provider binds sessions to a real ACP agent, reachable over whatever
// Spawner produces. name is the Factory registry key this instance
// resolves under, so the same machinery can back both "acp" (subprocess)
// and "docker" (container-attached) providers.
type Provider struct {
	name    string
	spawner Spawner
	logger  *logger.Logger
}

// New creates a Provider named name that spawns agents via spawner.
func New(name string, spawner Spawner, log *logger.Logger) *Provider {
	return &Provider{name: name, spawner: spawner, logger: log.WithFields(zap.String("component", name+"-provider"))}
}

func (p *Provider) Name() string { return p.name }

// sessionNative is what this provider expects in Session.Native: the
// session's workspace path, set by whatever created the session.
type sessionNative struct {
	Workspace string
}

// NativeFor builds the opaque native handle the Session Manager stores,
// so BindAgent can recover the workspace later.
func NativeFor(workspace string) any {
	return sessionNative{Workspace: workspace}
}

func (p *Provider) BindAgent(ctx context.Context, sessionID string, native any, model string) (agentrt.Agent, error) {
	sn, ok := native.(sessionNative)
	if !ok {
		return nil, errs.Newf(errs.KindAgentInitialization, "acp provider: session %s has no workspace binding", sessionID)
	}

	stdin, stdout, err := p.spawner.Spawn(ctx, sessionID, sn.Workspace, model)
	if err != nil {
		return nil, errs.Wrap(errs.KindAgentInitialization, fmt.Sprintf("spawn %s agent", p.name), err)
	}

	a := &agent{
		sessionID: sessionID,
		ws:        sn.Workspace,
		stdin:     stdin,
		logger:    p.logger.WithFields(zap.String("session_id", sessionID)),
	}
	a.decisions = &decisions{pending: make(map[string]chan acp.RequestPermissionResponse)}
	client := &client{agent: a}
	a.conn = acp.NewClientSideConnection(client, stdin, stdout)

	if _, err := a.conn.Initialize(ctx, acp.InitializeRequest{
		ProtocolVersion: acp.ProtocolVersionNumber,
		ClientInfo: &acp.Implementation{
			Name:    "kaiak",
			Version: "0.1.0",
		},
	}); err != nil {
		_ = stdin.Close()
		return nil, errs.Wrap(errs.KindAgentInitialization, "ACP initialize handshake", err)
	}

	sessResp, err := a.conn.NewSession(ctx, acp.NewSessionRequest{Cwd: sn.Workspace})
	if err != nil {
		_ = stdin.Close()
		return nil, errs.Wrap(errs.KindAgentInitialization, "ACP new_session", err)
	}
	a.acpSessionID = sessResp.SessionId

	return a, nil
}

// agent is the per-session binding to a running ACP agent subprocess.
type agent struct {
	sessionID    string
	acpSessionID acp.SessionId
	ws           string
	stdin        io.WriteCloser
	conn         *acp.ClientSideConnection
	decisions    *decisions
	logger       *logger.Logger

	mu sync.Mutex
	ch chan agentrt.Event
}

func (a *agent) workspace() string { return a.ws }

func (a *agent) Reply(ctx context.Context, prompt string, run agentrt.RunConfig) (<-chan agentrt.Event, agentrt.Decisions, error) {
	a.mu.Lock()
	a.ch = make(chan agentrt.Event, 64)
	ch := a.ch
	a.mu.Unlock()

	go func() {
		defer close(ch)
		_, err := a.conn.Prompt(ctx, acp.PromptRequest{
			SessionId: a.acpSessionID,
			Prompt:    []acp.ContentBlock{acp.TextBlock(prompt)},
		})
		if err != nil {
			select {
			case ch <- agentrt.Event{Kind: agentrt.EventStreamError, Err: err}:
			case <-ctx.Done():
			}
		}
	}()

	return ch, a.decisions, nil
}

// emit forwards a translated event to the in-flight Reply channel, if any.
func (a *agent) emit(ev agentrt.Event) {
	a.mu.Lock()
	ch := a.ch
	a.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- ev:
	default:
		a.logger.Warn("agent event channel full, dropping event", zap.String("kind", string(ev.Kind)))
	}
}
