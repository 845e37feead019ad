package commands

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/sitewright/sitewright/internal/config"
	"github.com/sitewright/sitewright/internal/daemon"
)

const stopTimeout = 30 * time.Second

// WatchCmd implements the 'watch' command.
type WatchCmd struct {
	Serve bool   `help:"Serve the published site over HTTP while watching"`
	Addr  string `help:"Preview server listen address (implies --serve, overrides serve.addr)"`
}

func (w *WatchCmd) Run(_ *Global, root *CLI) error {
	cfg, logger, err := root.loadConfig()
	if err != nil {
		return err
	}
	if w.Serve {
		cfg.Serve.Enabled = true
	}
	if w.Addr != "" {
		cfg.Serve.Enabled = true
		cfg.Serve.Addr = w.Addr
	}
	return RunWatch(cfg, logger)
}

// RunWatch runs watch mode until a shutdown signal arrives or the daemon
// fails on its own.
func RunWatch(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	d, err := daemon.New(cfg, logger)
	if err != nil {
		return err
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- d.Start(ctx)
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		logger.Info("Shutdown signal received, stopping watch mode")
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
	defer stopCancel()

	if err := d.Stop(stopCtx); err != nil {
		return err
	}
	return <-errChan
}
