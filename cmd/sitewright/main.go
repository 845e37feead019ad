// Command sitewright builds static sites from Markdown trees and publishes
// them atomically, either once or continuously in watch mode.
package main

import (
	"log/slog"

	"github.com/alecthomas/kong"

	"github.com/sitewright/sitewright/cmd/sitewright/commands"
	"github.com/sitewright/sitewright/internal/foundation/errors"
	"github.com/sitewright/sitewright/internal/version"
)

func main() {
	var cli commands.CLI
	ctx := kong.Parse(&cli,
		kong.Name("sitewright"),
		kong.Description("Markdown static site builder with atomic publishes and watch mode."),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
	)

	if err := ctx.Run(&commands.Global{Logger: slog.Default()}, &cli); err != nil {
		adapter := errors.NewCLIErrorAdapter(cli.Verbose, slog.Default())
		adapter.HandleError(err)
	}
}
