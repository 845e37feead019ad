package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/sitewright/sitewright/internal/build"
	"github.com/sitewright/sitewright/internal/config"
	"github.com/sitewright/sitewright/internal/gitinfo"
	"github.com/sitewright/sitewright/internal/history"
	"github.com/sitewright/sitewright/internal/notify"
	"github.com/sitewright/sitewright/internal/publish"
	"github.com/sitewright/sitewright/internal/site"
)

// BuildCmd implements the 'build' command.
type BuildCmd struct {
	Output string `short:"o" help:"Output directory for the published site (overrides output.dir)"`
}

func (b *BuildCmd) Run(_ *Global, root *CLI) error {
	cfg, logger, err := root.loadConfig()
	if err != nil {
		return err
	}
	if b.Output != "" {
		cfg.Output.Dir = b.Output
	}

	// Ctrl-C during a one-shot build cancels the cycle; the staging directory
	// is swept and the live tree stays untouched.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return RunBuild(ctx, cfg, logger)
}

// RunBuild executes a single build cycle: recover any interrupted publish,
// generate into staging, then swap the result live.
func RunBuild(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	// Friendly user-facing messages go to stdout; structured logs to stderr.
	fmt.Println("Starting sitewright build")

	dirs := publish.DirsFor(cfg.Output.Dir)
	publisher := publish.New(dirs)
	if err := publisher.Recover(); err != nil {
		return err
	}

	generator := site.New(cfg, logger)
	service := build.NewService(generator, publisher, logger).
		SetCommitFunc(gitinfo.CommitFunc(cfg.Content.Dir))

	if cfg.History.HistoryEnabled() {
		store, err := history.Open(cfg.History.Path, cfg.History.Keep)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		service.SetHistory(store)
	}

	if cfg.Notify.URL != "" {
		announcer, err := notify.NewAnnouncer(cfg.Notify.URL, cfg.Notify.Subject)
		if err != nil {
			return err
		}
		defer announcer.Close()
		service.SetNotifier(announcer)
	}

	report, err := service.RunCycle(ctx, build.ReasonOneShot)
	if err != nil {
		return err
	}

	fmt.Printf("Build completed: %s\n", report.Summary())
	return nil
}
