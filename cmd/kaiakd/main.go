// Command kaiakd is the long-running host process: it loads
// configuration, wires every subsystem via internal/daemon, and serves
// the JSON-RPC transport until signalled to stop.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/kandev/kaiak/internal/common/config"
	"github.com/kandev/kaiak/internal/common/logger"
	"github.com/kandev/kaiak/internal/daemon"
)

func main() {
	configPath := flag.String("config", "", "path to a kaiak config file (defaults to $KAIAK_CONFIG_PATH or ~/.kaiak/config.yaml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "kaiakd: failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "kaiakd: failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting kaiak host", zap.String("transport", string(cfg.Transport.Kind)))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := daemon.Run(ctx, cfg, log); err != nil {
		log.Error("kaiak host exited with error", zap.Error(err))
		os.Exit(1)
	}
	log.Info("kaiak host stopped")
}
