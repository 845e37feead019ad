package site

import (
	"context"
	_ "embed"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

//go:embed assets/site.css
var defaultStylesheet string

// stylesheetPath is where the default stylesheet lands and where the default
// layouts expect it.
const stylesheetPath = "assets/site.css"

// stageAssets copies every discovered asset into the target tree and drops in
// the default stylesheet when the sources did not provide one.
func stageAssets(ctx context.Context, bs *BuildState) error {
	for _, a := range bs.Assets {
		select {
		case <-ctx.Done():
			return newCanceledStageError(StageAssets, ctx.Err())
		default:
		}
		if err := copyAsset(a.SourcePath, filepath.Join(bs.Target, filepath.FromSlash(a.OutPath))); err != nil {
			return newFatalStageError(StageAssets, err)
		}
	}
	bs.Report.Assets = len(bs.Assets)

	cssDst := filepath.Join(bs.Target, filepath.FromSlash(stylesheetPath))
	if _, err := os.Stat(cssDst); os.IsNotExist(err) {
		if err := writeOutput(bs.Target, stylesheetPath, []byte(defaultStylesheet)); err != nil {
			return newFatalStageError(StageAssets, err)
		}
	}
	return nil
}

func copyAsset(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(dst), err)
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open asset %s: %w", src, err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create asset %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy asset %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close asset %s: %w", dst, err)
	}
	return nil
}
