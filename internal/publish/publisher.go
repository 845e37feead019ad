// Package publish owns the atomic promotion of freshly generated output to
// the live directory.
//
// Three sibling directories participate: the live directory serves readers,
// a staging directory receives each new generation, and a holding directory
// briefly carries the previous deployment during the swap. Readers never see
// a partially written tree: the only mutation of the live path is a rename.
//
// All three paths must reside on the same filesystem volume. Rename atomicity
// does not hold across volumes, and a cross-device publish fails with a
// configuration error.
package publish

import (
	stderrors "errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sitewright/sitewright/internal/foundation/errors"
	"github.com/sitewright/sitewright/internal/logfields"
)

const (
	stagingSuffix = ".stage"
	holdingSuffix = ".hold"
)

// Dirs names the directory triple for one site.
type Dirs struct {
	Live    string
	Staging string
	Holding string
}

// DirsFor derives the staging and holding siblings for a live directory.
func DirsFor(live string) Dirs {
	live = filepath.Clean(live)
	return Dirs{
		Live:    live,
		Staging: live + stagingSuffix,
		Holding: live + holdingSuffix,
	}
}

// Publisher performs the staging-to-live swap. It assumes exclusive ownership
// of the directory triple; nothing else may create, remove, or rename these
// paths while a Publisher uses them.
type Publisher struct {
	dirs Dirs
}

// New creates a Publisher over the directory triple.
func New(dirs Dirs) *Publisher {
	return &Publisher{dirs: dirs}
}

// Dirs returns the directory triple.
func (p *Publisher) Dirs() Dirs {
	return p.dirs
}

// BeginStaging guarantees an empty staging directory and returns its path.
// Leftover staging content from an earlier failed build is discarded.
func (p *Publisher) BeginStaging() (string, error) {
	if err := os.RemoveAll(p.dirs.Staging); err != nil {
		return "", errors.PublishError("failed to clear staging directory").
			WithCause(err).
			WithContext("staging", p.dirs.Staging).
			Build()
	}
	if err := os.MkdirAll(p.dirs.Staging, 0o755); err != nil {
		return "", errors.PublishError("failed to create staging directory").
			WithCause(err).
			WithContext("staging", p.dirs.Staging).
			Build()
	}
	slog.Debug("Initialized staging directory", logfields.Dir(p.dirs.Staging))
	return p.dirs.Staging, nil
}

// AbortStaging removes the staging directory after a failed generation so no
// orphaned output accumulates. Best-effort.
func (p *Publisher) AbortStaging() {
	if err := os.RemoveAll(p.dirs.Staging); err != nil {
		slog.Warn("Failed to remove staging directory after abort",
			logfields.Dir(p.dirs.Staging), logfields.Error(err))
		return
	}
	slog.Debug("Removed staging directory after abort", logfields.Dir(p.dirs.Staging))
}

// Publish promotes the staging directory to live:
//
//  1. Move the current live directory aside to holding. A live directory that
//     does not exist yet (first publish) is skipped; any other failure aborts,
//     because proceeding without the step-back copy would risk the previous
//     deployment.
//  2. Rename staging to live. This is the publish point; after it returns,
//     readers see the new tree.
//  3. Remove holding. Failure here is logged, not returned: the new content
//     is already live and a leftover holding directory is reclaimed on the
//     next cycle or by Recover.
//
// If the process dies between steps 1 and 2 the previous deployment survives
// under holding; Recover restores it at next startup.
func (p *Publisher) Publish() error {
	if _, err := os.Stat(p.dirs.Staging); err != nil {
		return errors.PublishError("staging directory missing, nothing to publish").
			WithCause(err).
			WithContext("staging", p.dirs.Staging).
			Build()
	}

	// A holding directory left over from a crashed swap must be cleared
	// first: step 1 renames onto this path, and the stale copy must never
	// survive to be confused with the deployment we are about to retire.
	if err := p.clearHolding(); err != nil {
		return errors.PublishError("failed to clear stale holding directory").
			WithCause(err).
			WithContext("holding", p.dirs.Holding).
			Build()
	}

	movedAside := false
	if err := os.Rename(p.dirs.Live, p.dirs.Holding); err != nil {
		if !stderrors.Is(err, fs.ErrNotExist) {
			return classifyRename(err, "failed to move live directory aside").
				WithContext("live", p.dirs.Live).
				WithContext("holding", p.dirs.Holding).
				Build()
		}
		// First publish: no live directory yet.
	} else {
		movedAside = true
	}

	if err := os.Rename(p.dirs.Staging, p.dirs.Live); err != nil {
		builder := classifyRename(err, "failed to activate staged output").
			WithContext("staging", p.dirs.Staging).
			WithContext("live", p.dirs.Live)
		if movedAside {
			// The previous deployment sits in holding; leave it for Recover
			// rather than guessing at a rollback here.
			builder = builder.WithContext("preserved", p.dirs.Holding)
		}
		return builder.Build()
	}

	if movedAside {
		if err := os.RemoveAll(p.dirs.Holding); err != nil {
			slog.Warn("Failed to remove holding directory after publish",
				logfields.Dir(p.dirs.Holding), logfields.Error(err))
		}
	}

	slog.Debug("Published staged output", logfields.Dir(p.dirs.Live))
	return nil
}

// Recover makes the directory triple consistent after a crash. Called once at
// startup, before any build:
//
//   - live missing but holding present: the process died between swap steps;
//     the preserved deployment moves back to live.
//   - live and holding both present: holding is a superseded deployment the
//     crashed process failed to reclaim; remove it.
//   - staging present: incomplete generation output; remove it.
func (p *Publisher) Recover() error {
	liveExists := dirExists(p.dirs.Live)
	holdingExists := dirExists(p.dirs.Holding)

	if holdingExists && !liveExists {
		if err := os.Rename(p.dirs.Holding, p.dirs.Live); err != nil {
			return errors.PublishError("failed to restore held deployment").
				WithCause(err).
				WithContext("holding", p.dirs.Holding).
				WithContext("live", p.dirs.Live).
				Build()
		}
		slog.Info("Restored previous deployment after interrupted publish",
			logfields.Dir(p.dirs.Live))
	} else if holdingExists && liveExists {
		if err := os.RemoveAll(p.dirs.Holding); err != nil {
			slog.Warn("Failed to remove stale holding directory",
				logfields.Dir(p.dirs.Holding), logfields.Error(err))
		} else {
			slog.Debug("Removed stale holding directory", logfields.Dir(p.dirs.Holding))
		}
	}

	if dirExists(p.dirs.Staging) {
		if err := os.RemoveAll(p.dirs.Staging); err != nil {
			slog.Warn("Failed to remove stale staging directory",
				logfields.Dir(p.dirs.Staging), logfields.Error(err))
		} else {
			slog.Debug("Removed stale staging directory", logfields.Dir(p.dirs.Staging))
		}
	}

	return nil
}

// clearHolding removes a leftover holding directory, retrying briefly since
// a serving process may still hold files open in it.
func (p *Publisher) clearHolding() error {
	if !dirExists(p.dirs.Holding) {
		return nil
	}
	var err error
	for i := 0; i < 3; i++ {
		if err = os.RemoveAll(p.dirs.Holding); err == nil {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return err
}

// classifyRename maps a rename failure to an error builder. A cross-device
// failure means the triple spans filesystem volumes, which is a setup
// problem, not a transient publish problem.
func classifyRename(err error, message string) *errors.ErrorBuilder {
	if stderrors.Is(err, syscall.EXDEV) {
		return errors.ConfigError("output directories span filesystem volumes; staging, live, and holding must share one volume").
			WithCause(err)
	}
	return errors.PublishError(message).WithCause(err)
}

func dirExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
