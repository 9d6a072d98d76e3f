package acp

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/coder/acp-go-sdk"
	"go.uber.org/zap"
)

// client implements acp.Client, the callback surface the agent subprocess
// drives. File I/O is scoped to the session workspace, permission
// requests are forwarded to the owning agent's rendezvous-backed
// decisions table, and terminal operations are stubbed since kaiak does
// not expose a terminal surface to agents.
type client struct {
	agent *agent
}

var _ acp.Client = (*client)(nil)

func (c *client) SessionUpdate(_ context.Context, n acp.SessionNotification) error {
	if ev, ok := convertNotification(n); ok {
		c.agent.emit(ev)
	}
	return nil
}

func (c *client) RequestPermission(ctx context.Context, p acp.RequestPermissionRequest) (acp.RequestPermissionResponse, error) {
	if len(p.Options) == 0 {
		return acp.RequestPermissionResponse{
			Outcome: acp.RequestPermissionOutcome{Cancelled: &acp.RequestPermissionOutcomeCancelled{}},
		}, nil
	}

	interactionID := string(p.ToolCall.ToolCallId)
	wait := c.agent.decisions.register(interactionID)

	title := ""
	if p.ToolCall.Title != nil {
		title = *p.ToolCall.Title
	}
	choices := make([]string, len(p.Options))
	for i, opt := range p.Options {
		choices[i] = string(opt.OptionId)
	}
	c.agent.emit(agentrtActionRequiredToolConfirmation(interactionID, title, choices))

	select {
	case resp := <-wait:
		return resp, nil
	case <-ctx.Done():
		c.agent.decisions.cancel(interactionID)
		return acp.RequestPermissionResponse{
			Outcome: acp.RequestPermissionOutcome{Cancelled: &acp.RequestPermissionOutcomeCancelled{}},
		}, ctx.Err()
	}
}

func (c *client) resolvePath(reqPath string) (string, error) {
	root := filepath.Clean(c.agent.workspace())
	var resolved string
	if filepath.IsAbs(reqPath) {
		resolved = filepath.Clean(reqPath)
	} else {
		resolved = filepath.Join(root, reqPath)
	}
	if resolved != root && !strings.HasPrefix(resolved, root+string(filepath.Separator)) {
		return "", errOutsideWorkspace(reqPath, root)
	}
	return resolved, nil
}

func (c *client) ReadTextFile(_ context.Context, p acp.ReadTextFileRequest) (acp.ReadTextFileResponse, error) {
	path, err := c.resolvePath(p.Path)
	if err != nil {
		return acp.ReadTextFileResponse{}, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return acp.ReadTextFileResponse{}, err
	}
	content := string(b)
	if p.Line != nil || p.Limit != nil {
		lines := strings.Split(content, "\n")
		start := 0
		if p.Line != nil && *p.Line > 0 {
			start = *p.Line - 1
		}
		if start > len(lines) {
			start = len(lines)
		}
		end := len(lines)
		if p.Limit != nil && *p.Limit > 0 && start+*p.Limit < end {
			end = start + *p.Limit
		}
		content = strings.Join(lines[start:end], "\n")
	}
	return acp.ReadTextFileResponse{Content: content}, nil
}

func (c *client) WriteTextFile(_ context.Context, p acp.WriteTextFileRequest) (acp.WriteTextFileResponse, error) {
	path, err := c.resolvePath(p.Path)
	if err != nil {
		return acp.WriteTextFileResponse{}, err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return acp.WriteTextFileResponse{}, err
		}
	}
	return acp.WriteTextFileResponse{}, os.WriteFile(path, []byte(p.Content), 0o644)
}

// CreateTerminal, KillTerminalCommand, TerminalOutput, ReleaseTerminal and
// WaitForTerminalExit are stubbed: kaiak exposes no terminal surface, so
// an agent that requests one gets a single inert handle back rather than
// a protocol error.
func (c *client) CreateTerminal(_ context.Context, _ acp.CreateTerminalRequest) (acp.CreateTerminalResponse, error) {
	c.agent.logger.Debug("ignoring create_terminal request", zap.String("reason", "no terminal surface"))
	return acp.CreateTerminalResponse{TerminalId: "unsupported"}, nil
}

func (c *client) KillTerminalCommand(_ context.Context, _ acp.KillTerminalCommandRequest) (acp.KillTerminalCommandResponse, error) {
	return acp.KillTerminalCommandResponse{}, nil
}

func (c *client) TerminalOutput(_ context.Context, _ acp.TerminalOutputRequest) (acp.TerminalOutputResponse, error) {
	return acp.TerminalOutputResponse{Output: "", Truncated: false}, nil
}

func (c *client) ReleaseTerminal(_ context.Context, _ acp.ReleaseTerminalRequest) (acp.ReleaseTerminalResponse, error) {
	return acp.ReleaseTerminalResponse{}, nil
}

func (c *client) WaitForTerminalExit(_ context.Context, _ acp.WaitForTerminalExitRequest) (acp.WaitForTerminalExitResponse, error) {
	exitCode := 0
	return acp.WaitForTerminalExitResponse{ExitCode: &exitCode}, nil
}
