package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/kandev/kaiak/internal/agentrt"
	"github.com/kandev/kaiak/internal/common/config"
	"github.com/kandev/kaiak/internal/common/logger"
	"github.com/kandev/kaiak/internal/daemon"
	"github.com/kandev/kaiak/pkg/jsonrpc"
)

// version is overridden at build time via -ldflags "-X main.version=...".
var version = "dev"

func runServe(args []string, render *Renderer) error {
	flags := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	transport := flags.String("transport", "", "stdio or socket (overrides config)")
	socketPath := flags.String("socket", "", "Unix socket path when --transport=socket")
	configPath := flags.String("config", "", "path to a kaiak config file")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if *transport != "" {
		cfg.Transport.Kind = config.Transport(*transport)
	}
	if *socketPath != "" {
		cfg.Transport.SocketPath = *socketPath
	}

	log, err := logger.New(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, OutputPath: cfg.Logging.OutputPath})
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer log.Sync()

	render.Info("starting kaiak host (transport=%s)", cfg.Transport.Kind)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return daemon.Run(ctx, cfg, log)
}

func runConnect(args []string, render *Renderer) error {
	flags := pflag.NewFlagSet("connect", pflag.ContinueOnError)
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() == 0 {
		return fmt.Errorf("usage: kaiak connect <socket-path>")
	}
	socketPath := flags.Arg(0)

	client, err := dial(socketPath)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := saveState(&cliState{SocketPath: socketPath}); err != nil {
		return fmt.Errorf("persist connection state: %w", err)
	}
	render.Success("connected to %s", socketPath)
	return nil
}

func runDisconnect(render *Renderer) error {
	if err := clearState(); err != nil {
		return fmt.Errorf("clear connection state: %w", err)
	}
	render.Success("disconnected")
	return nil
}

func resolveSocket(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	st := loadState()
	if st.SocketPath == "" {
		return "", fmt.Errorf("no active connection; run `kaiak connect <socket-path>` first or pass --socket")
	}
	return st.SocketPath, nil
}

func runGenerateFix(args []string, render *Renderer) error {
	flags := pflag.NewFlagSet("generate_fix", pflag.ContinueOnError)
	socket := flags.String("socket", "", "Unix socket path (defaults to the active `connect`ion)")
	sessionID := flags.String("session", "", "session id (UUID) of the session to drive")
	workspace := flags.String("workspace", "", "workspace directory for a newly created session")
	provider := flags.String("provider", "", "agent provider name (acp, docker, mock)")
	model := flags.String("model", "", "model id")
	maxTurns := flags.Int("max-turns", 0, "maximum agent turns (0 = default)")
	incidents := flags.StringArray("incident", nil, "an incident message; repeat for multiple")
	timeout := flags.Duration("timeout", 5*time.Minute, "how long to wait for the request to complete")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *sessionID == "" {
		return fmt.Errorf("--session is required")
	}
	if len(*incidents) == 0 {
		return fmt.Errorf("at least one --incident is required")
	}
	if *provider == "" || *model == "" {
		return fmt.Errorf("--provider and --model are required")
	}
	if *workspace == "" {
		return fmt.Errorf("--workspace is required")
	}

	socketPath, err := resolveSocket(*socket)
	if err != nil {
		return err
	}
	client, err := dial(socketPath)
	if err != nil {
		return err
	}
	defer client.Close()

	params := jsonrpc.GenerateFixParams{
		SessionID: *sessionID,
		AgentConfig: agentrt.AgentConfig{
			Workspace: *workspace,
			Provider:  *provider,
			Model:     *model,
			MaxTurns:  *maxTurns,
		},
	}
	for _, msg := range *incidents {
		params.Incidents = append(params.Incidents, jsonrpc.Incident{Message: msg})
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var result jsonrpc.GenerateFixResult
	if err := client.Call(ctx, jsonrpc.MethodGenerateFix, params, &result, render); err != nil {
		return err
	}
	render.Result(result)
	return nil
}

func runDeleteSession(args []string, render *Renderer) error {
	flags := pflag.NewFlagSet("delete_session", pflag.ContinueOnError)
	socket := flags.String("socket", "", "Unix socket path (defaults to the active `connect`ion)")
	force := flags.Bool("force", false, "cancel any in-flight request and delete anyway")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() == 0 {
		return fmt.Errorf("usage: kaiak delete_session [--force] <session-id>")
	}
	sessionID := flags.Arg(0)

	socketPath, err := resolveSocket(*socket)
	if err != nil {
		return err
	}
	client, err := dial(socketPath)
	if err != nil {
		return err
	}
	defer client.Close()

	params := jsonrpc.DeleteSessionParams{SessionID: sessionID}
	if *force {
		params.CleanupOptions = &jsonrpc.CleanupOptions{Force: true}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var result jsonrpc.DeleteSessionResult
	if err := client.Call(ctx, jsonrpc.MethodDeleteSession, params, &result, render); err != nil {
		return err
	}
	render.Result(result)
	return nil
}

func runInit(args []string, render *Renderer) error {
	flags := pflag.NewFlagSet("init", pflag.ContinueOnError)
	force := flags.Bool("force", false, "overwrite an existing config file")
	if err := flags.Parse(args); err != nil {
		return err
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}
	dir := fmt.Sprintf("%s/.kaiak", home)
	path := dir + "/config.yaml"

	if _, err := os.Stat(path); err == nil && !*force {
		return fmt.Errorf("%s already exists; pass --force to overwrite", path)
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	template := defaultConfigTemplate()
	raw, err := yaml.Marshal(template)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return err
	}
	render.Success("wrote %s", path)
	return nil
}

// defaultConfigTemplate mirrors config.setDefaults as a plain map so
// `kaiak init` emits a file a user can read and edit directly, without
// exporting viper's internal default registry.
func defaultConfigTemplate() map[string]any {
	return map[string]any{
		"transport": map[string]any{"kind": "stdio", "socketPath": ""},
		"session": map[string]any{
			"maxSessions":        0,
			"lockMaxAge":         "1h",
			"interactionTimeout": "60s",
			"janitorInterval":    "5m",
		},
		"logging": map[string]any{"level": "info", "format": "text", "outputPath": "stderr"},
		"docker":  map[string]any{"enabled": false, "host": "", "image": ""},
		"tracing": map[string]any{"otlpEndpoint": "", "serviceName": "kaiak"},
		"admin":   map[string]any{"enabled": false, "addr": "127.0.0.1:9700"},
		"notify":  map[string]any{"backend": "channel", "url": "nats://127.0.0.1:4222", "namespace": ""},
	}
}

func runConfig(args []string, render *Renderer) error {
	flags := pflag.NewFlagSet("config", pflag.ContinueOnError)
	show := flags.Bool("show", false, "print the effective configuration")
	validate := flags.Bool("validate", false, "load the configuration and report any error")
	edit := flags.Bool("edit", false, "open the config file in $EDITOR")
	configPath := flags.String("config", "", "path to a kaiak config file")
	if err := flags.Parse(args); err != nil {
		return err
	}

	if *edit {
		return editConfig(*configPath, render)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	switch {
	case *validate:
		render.Success("configuration is valid")
	case *show:
		render.Result(cfg)
	default:
		render.Result(cfg)
	}
	return nil
}

// editConfig opens the config file in the user's editor, then reloads
// it so a syntax error is reported immediately instead of at the next
// serve.
func editConfig(configPath string, render *Renderer) error {
	path := configPath
	if path == "" {
		path = os.Getenv("KAIAK_CONFIG_PATH")
	}
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		path = home + "/.kaiak/config.yaml"
	}

	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = "vi"
	}

	cmd := exec.Command(editor, path)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("run %s: %w", editor, err)
	}

	if _, err := config.Load(path); err != nil {
		return fmt.Errorf("edited configuration does not load: %w", err)
	}
	render.Success("configuration updated")
	return nil
}

func runVersion(render *Renderer) error {
	render.Result(map[string]string{"version": version})
	return nil
}

func usage() string {
	return strings.TrimSpace(`
kaiak — a JSON-RPC host mediating between editor clients and an agent runtime

Usage:
  kaiak serve [--transport stdio|socket] [--socket PATH] [--config PATH]
  kaiak connect <socket-path>
  kaiak disconnect
  kaiak generate_fix --session UUID --provider NAME --model NAME --workspace PATH --incident MSG [--incident MSG ...]
  kaiak delete_session [--force] <session-id>
  kaiak init [--force]
  kaiak config [--show|--validate|--edit] [--config PATH]
  kaiak version
`)
}
