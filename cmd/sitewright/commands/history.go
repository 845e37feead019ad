package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/sitewright/sitewright/internal/build"
	"github.com/sitewright/sitewright/internal/foundation/errors"
	"github.com/sitewright/sitewright/internal/history"
)

// HistoryCmd implements the 'history' command.
type HistoryCmd struct {
	Limit int  `short:"n" help:"Maximum number of builds to list" default:"20"`
	JSON  bool `help:"Emit records as JSON instead of a table"`
}

func (h *HistoryCmd) Run(_ *Global, root *CLI) error {
	cfg, _, err := root.loadConfig()
	if err != nil {
		return err
	}
	if !cfg.History.HistoryEnabled() {
		return errors.ValidationError("build history is disabled in configuration").
			WithContext("config", root.Config).
			Build()
	}

	store, err := history.Open(cfg.History.Path, cfg.History.Keep)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	recs, err := store.Recent(context.Background(), h.Limit)
	if err != nil {
		return err
	}

	if h.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(recs)
	}
	return writeHistory(os.Stdout, recs)
}

// writeHistory renders records newest-first as an aligned table.
func writeHistory(w io.Writer, recs []build.CycleRecord) error {
	if len(recs) == 0 {
		_, err := fmt.Fprintln(w, "No builds recorded yet.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tBUILD\tREASON\tOUTCOME\tPAGES\tDURATION\tCOMMIT")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			shortID(r.BuildID),
			r.Reason,
			r.Outcome,
			r.Pages,
			(time.Duration(r.DurationMS) * time.Millisecond).String(),
			shortCommit(r.Commit))
	}
	return tw.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func shortCommit(commit string) string {
	if commit == "" {
		return "-"
	}
	if len(commit) > 10 {
		return commit[:10]
	}
	return commit
}
