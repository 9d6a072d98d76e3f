// Package daemon wires every subsystem into a running host process:
// configuration, logging, tracing, the session manager and its
// janitor, the agent factory's providers, the interaction rendezvous,
// the notification sink and its audit subscriber, the request
// orchestrator, the admin HTTP surface, and finally the JSON-RPC
// transport loop.
package daemon

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kandev/kaiak/internal/adminhttp"
	"github.com/kandev/kaiak/internal/agentrt"
	"github.com/kandev/kaiak/internal/agentrt/providers/acp"
	"github.com/kandev/kaiak/internal/agentrt/providers/docker"
	"github.com/kandev/kaiak/internal/agentrt/providers/mock"
	"github.com/kandev/kaiak/internal/audit"
	"github.com/kandev/kaiak/internal/common/config"
	"github.com/kandev/kaiak/internal/common/logger"
	"github.com/kandev/kaiak/internal/notify"
	"github.com/kandev/kaiak/internal/orchestrator"
	"github.com/kandev/kaiak/internal/rendezvous"
	"github.com/kandev/kaiak/internal/rpcserver"
	"github.com/kandev/kaiak/internal/session"
	"github.com/kandev/kaiak/internal/tracing"
	"github.com/kandev/kaiak/pkg/jsonrpc"
)

// Services bundles the wired subsystems so callers (the CLI's serve
// command, tests) can inspect or extend the assembly before Run blocks
// on the transport loop.
type Services struct {
	Config       *config.Config
	Logger       *logger.Logger
	SessionMgr   *session.Manager
	Factory      *agentrt.Factory
	Rendezvous   *rendezvous.Table
	Sink         notify.Sink
	Orchestrator *orchestrator.Orchestrator
	Audit        *audit.Log
	RPCServer    *rpcserver.Server

	adminServer *http.Server
}

// Build assembles every subsystem from cfg without starting the
// transport loop or the admin HTTP listener.
func Build(cfg *config.Config, log *logger.Logger) (*Services, error) {
	runtime := session.NewAgentRuntime()
	sessionMgr := session.NewManager(runtime, cfg.Session.LockMaxAge, cfg.Session.JanitorInterval, cfg.Session.MaxSessions, log)

	factory := agentrt.NewFactory(log)
	factory.Register(acp.New("acp", acp.CommandSpawner{Command: "kaiak-agent"}, log))
	if cfg.Docker.Enabled {
		factory.Register(docker.New(cfg.Docker, log))
	}
	factory.Register(mock.New(nil))

	rdv := rendezvous.NewTable(cfg.Session.InteractionTimeout, log)

	var sink notify.Sink
	if cfg.Notify.Backend == "nats" {
		natsSink, err := notify.NewNATSSink(cfg.Notify.URL, cfg.Notify.Namespace, log)
		if err != nil {
			return nil, fmt.Errorf("daemon: nats notify sink: %w", err)
		}
		sink = natsSink
	} else {
		sink = notify.NewChannelSink(256, log)
	}

	auditLog, err := audit.Open()
	if err != nil {
		return nil, fmt.Errorf("daemon: open audit log: %w", err)
	}
	sink.Subscribe(func(n jsonrpc.OutboundNotification) {
		if err := auditLog.RecordNotification(context.Background(), n); err != nil {
			log.Warn("failed to record notification in audit log", zap.Error(err))
		}
	})

	orch := orchestrator.New(sessionMgr, factory, rdv, sink, log)
	server := rpcserver.New(orch, rdv, log)

	if err := tracing.Init(context.Background(), cfg.Tracing.OTLPEndpoint, cfg.Tracing.ServiceName); err != nil {
		log.Warn("failed to initialise tracing exporter, continuing with no-op tracer", zap.Error(err))
	}

	return &Services{
		Config:       cfg,
		Logger:       log,
		SessionMgr:   sessionMgr,
		Factory:      factory,
		Rendezvous:   rdv,
		Sink:         sink,
		Orchestrator: orch,
		Audit:        auditLog,
		RPCServer:    server,
	}, nil
}

// Start launches the session lock janitor, rendezvous sweeper, and (if
// configured) the admin HTTP listener. Call Stop to reverse it.
func (s *Services) Start(ctx context.Context) {
	s.SessionMgr.StartJanitor()
	go s.sweepRendezvous(ctx)

	if s.Config.Admin.Enabled {
		engine := adminhttp.NewEngine(s.SessionMgr, s.Logger)
		s.adminServer = &http.Server{Addr: s.Config.Admin.Addr, Handler: engine}
		go func() {
			if err := s.adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				s.Logger.Error("admin http server stopped", zap.Error(err))
			}
		}()
		s.Logger.Info("admin http listening", zap.String("addr", s.Config.Admin.Addr))
	}
}

// sweepRendezvous periodically evicts interaction slots that outlived
// the configured timeout without a client ever responding, unblocking
// any Event Bridge still waiting on one. A belt-and-braces backstop:
// each Wait call already bounds itself by the same timeout.
func (s *Services) sweepRendezvous(ctx context.Context) {
	ticker := time.NewTicker(s.Config.Session.InteractionTimeout)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Rendezvous.Sweep()
		}
	}
}

// Serve blocks, accepting connections per cfg.Transport until ctx is
// cancelled.
func (s *Services) Serve(ctx context.Context) error {
	switch s.Config.Transport.Kind {
	case config.TransportSocket:
		if s.Config.Transport.SocketPath == "" {
			return fmt.Errorf("daemon: transport.kind=socket requires transport.socketPath")
		}
		return rpcserver.ServeSocket(ctx, s.Config.Transport.SocketPath, s.RPCServer, s.Sink, s.Logger)
	default:
		return rpcserver.ServeStdio(ctx, s.RPCServer, s.Sink, s.Logger)
	}
}

// Stop halts the janitor, admin HTTP listener, and audit log.
func (s *Services) Stop(ctx context.Context) {
	s.SessionMgr.Stop()
	if s.adminServer != nil {
		_ = s.adminServer.Shutdown(ctx)
	}
	_ = s.Audit.Close()
	s.Sink.Close()
	_ = tracing.Shutdown(ctx)
}

// Run builds and serves a complete daemon from cfg, blocking until ctx
// is cancelled or Serve returns.
func Run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	services, err := Build(cfg, log)
	if err != nil {
		return err
	}
	services.Start(ctx)
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		services.Stop(stopCtx)
	}()

	return services.Serve(ctx)
}
