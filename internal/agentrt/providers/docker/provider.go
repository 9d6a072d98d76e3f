package docker

import (
	"context"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/kandev/kaiak/internal/agentrt"
	"github.com/kandev/kaiak/internal/agentrt/providers/acp"
	"github.com/kandev/kaiak/internal/common/config"
	"github.com/kandev/kaiak/internal/common/logger"
	"github.com/kandev/kaiak/internal/errs"
)

// spawner implements acp.Spawner by creating, starting and attaching to
// an agent container per session, reusing the ACP provider's
// Initialize/NewSession/Prompt machinery over the attached stream
// instead of a local subprocess pipe.
type spawner struct {
	client *Client
	cfg    config.DockerConfig
	logger *logger.Logger
}

func (s *spawner) Spawn(ctx context.Context, sessionID, workspace, model string) (io.WriteCloser, io.ReadCloser, error) {
	name := fmt.Sprintf("kaiak-agent-%s", sessionID)
	cmd := []string{"kaiak-agent"}
	if model != "" {
		cmd = append(cmd, "--model", model)
	}

	containerID, err := s.client.CreateAndStart(ctx, ContainerSpec{
		Name:       name,
		Image:      s.cfg.Image,
		Cmd:        cmd,
		WorkingDir: "/workspace",
		Mounts:     []Mount{{Source: workspace, Target: "/workspace"}},
	})
	if err != nil {
		return nil, nil, err
	}
	s.logger.Info("spawned docker agent", zap.String("session_id", sessionID), zap.String("container_id", containerID))

	return s.client.Attach(ctx, containerID)
}

// Provider is the agentrt.Provider registered under the name "docker".
// The Docker client is created lazily on first BindAgent call rather
// than at construction: a daemon that is not reachable at startup
// should not block the host from serving sessions on other providers,
// and a transient failure should be retried rather than permanently
// disabling the provider.
type Provider struct {
	cfg    config.DockerConfig
	logger *logger.Logger

	mu          sync.Mutex
	initialized bool
	delegate    *acp.Provider
}

// New returns a docker-backed Provider. Construction never touches the
// Docker daemon; that happens lazily in BindAgent.
func New(cfg config.DockerConfig, log *logger.Logger) *Provider {
	return &Provider{cfg: cfg, logger: log.WithFields(zap.String("component", "docker-provider"))}
}

func (p *Provider) Name() string { return "docker" }

func (p *Provider) ensureDelegate() (*acp.Provider, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.initialized {
		return p.delegate, nil
	}

	cli, err := NewClient(p.cfg, p.logger)
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	sp := &spawner{client: cli, cfg: p.cfg, logger: p.logger}
	p.delegate = acp.New("docker", sp, p.logger)
	p.initialized = true
	return p.delegate, nil
}

func (p *Provider) BindAgent(ctx context.Context, sessionID string, native any, model string) (agentrt.Agent, error) {
	delegate, err := p.ensureDelegate()
	if err != nil {
		return nil, errs.Wrap(errs.KindAgentInitialization, "docker daemon unavailable", err)
	}
	return delegate.BindAgent(ctx, sessionID, native, model)
}
