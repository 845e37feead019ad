package commands

import (
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"github.com/sitewright/sitewright/internal/config"
)

// Global context passed to subcommands if we need to share global state later.
type Global struct {
	Logger *slog.Logger
}

// CLI definition & global flags - used by commands that need access to root config.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"sitewright.yaml"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Build   BuildCmd   `cmd:"" help:"Build the site once and publish it atomically"`
	Watch   WatchCmd   `cmd:"" help:"Rebuild continuously as content changes"`
	Init    InitCmd    `cmd:"" help:"Write a starter configuration file"`
	History HistoryCmd `cmd:"" help:"List recent builds from the history store"`
}

// AfterApply runs after flag parsing; set up a provisional logger so config
// load failures are reported consistently. Commands swap in the config-driven
// logger once the file is loaded.
func (c *CLI) AfterApply() error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return nil
}

// loadConfig loads the configuration file and installs the logger it
// describes as the process default.
func (c *CLI) loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return nil, nil, err
	}
	logger := cfg.Logging.NewLogger(os.Stderr, c.Verbose)
	slog.SetDefault(logger)
	return cfg, logger, nil
}
