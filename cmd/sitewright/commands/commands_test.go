package commands

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sitewright/sitewright/internal/build"
	"github.com/sitewright/sitewright/internal/config"
	"github.com/sitewright/sitewright/internal/history"
)

// writeTestSite lays down a config file plus a small content tree and returns
// the loaded configuration, exercising the same path the CLI takes.
func writeTestSite(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()

	contentDir := filepath.Join(root, "content")
	require.NoError(t, os.MkdirAll(contentDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(contentDir, "index.md"),
		[]byte("---\ntitle: Home\n---\n\n# Welcome\n"), 0o644))

	cfgYAML := fmt.Sprintf(`site:
  title: CLI Test
content:
  dir: %s
output:
  dir: %s
history:
  path: %s
`, contentDir, filepath.Join(root, "public"), filepath.Join(root, "state", "history.db"))

	cfgPath := filepath.Join(root, "sitewright.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfgYAML), 0o644))

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	return cfg
}

func recordedBuilds(t *testing.T, cfg *config.Config) []build.CycleRecord {
	t.Helper()
	store, err := history.Open(cfg.History.Path, cfg.History.Keep)
	require.NoError(t, err)
	defer func() { require.NoError(t, store.Close()) }()
	recs, err := store.Recent(context.Background(), 50)
	require.NoError(t, err)
	return recs
}

func TestRunBuildPublishesSite(t *testing.T) {
	cfg := writeTestSite(t)

	require.NoError(t, RunBuild(context.Background(), cfg, nil))

	require.FileExists(t, filepath.Join(cfg.Output.Dir, "index.html"))
	require.NoDirExists(t, cfg.Output.Dir+".stage")
	require.NoDirExists(t, cfg.Output.Dir+".hold")

	recs := recordedBuilds(t, cfg)
	require.Len(t, recs, 1)
	require.Equal(t, build.ReasonOneShot, recs[0].Reason)
	require.Equal(t, build.CycleSuccess, recs[0].Outcome)
}

func TestRunBuildSweepsStaleStagingDir(t *testing.T) {
	cfg := writeTestSite(t)

	// Leftovers from a build that crashed mid-cycle.
	staleStage := cfg.Output.Dir + ".stage"
	require.NoError(t, os.MkdirAll(staleStage, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(staleStage, "junk.html"), []byte("stale"), 0o644))

	require.NoError(t, RunBuild(context.Background(), cfg, nil))

	require.NoDirExists(t, staleStage)
	require.FileExists(t, filepath.Join(cfg.Output.Dir, "index.html"))
	require.NoFileExists(t, filepath.Join(cfg.Output.Dir, "junk.html"))
}

func TestRunBuildRecordsGenerationFailure(t *testing.T) {
	cfg := writeTestSite(t)
	require.NoError(t, os.RemoveAll(cfg.Content.Dir))

	err := RunBuild(context.Background(), cfg, nil)
	require.Error(t, err)
	require.NoDirExists(t, cfg.Output.Dir)

	recs := recordedBuilds(t, cfg)
	require.Len(t, recs, 1)
	require.Equal(t, build.CycleGenerationFailed, recs[0].Outcome)
}

func TestRunInit(t *testing.T) {
	root := t.TempDir()
	cfgPath := filepath.Join(root, "sitewright.yaml")

	t.Run("writes starter config", func(t *testing.T) {
		require.NoError(t, RunInit(cfgPath, false))
		data, err := os.ReadFile(cfgPath)
		require.NoError(t, err)
		require.Contains(t, string(data), "site:")

		cfg, err := config.Load(cfgPath)
		require.NoError(t, err)
		require.NotEmpty(t, cfg.Content.Dir)
	})

	t.Run("refuses overwrite without force", func(t *testing.T) {
		require.NoError(t, os.WriteFile(cfgPath, []byte("site:\n  title: Keep Me\n"), 0o644))
		require.Error(t, RunInit(cfgPath, false))
		data, err := os.ReadFile(cfgPath)
		require.NoError(t, err)
		require.Contains(t, string(data), "Keep Me")
	})

	t.Run("force overwrites", func(t *testing.T) {
		require.NoError(t, RunInit(cfgPath, true))
		data, err := os.ReadFile(cfgPath)
		require.NoError(t, err)
		require.NotContains(t, string(data), "Keep Me")
	})
}

func TestWriteHistory(t *testing.T) {
	t.Run("empty store", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeHistory(&buf, nil))
		require.Contains(t, buf.String(), "No builds recorded yet.")
	})

	t.Run("renders table", func(t *testing.T) {
		recs := []build.CycleRecord{
			{
				BuildID:    "0b5e1a92-8f13-4c6e-9d4a-1f2e3c4d5e6f",
				Reason:     build.ReasonSignal,
				Outcome:    build.CycleSuccess,
				Pages:      7,
				DurationMS: 1250,
				Commit:     "a1b2c3d4e5f60718",
				StartedAt:  time.Date(2026, 3, 14, 9, 30, 0, 0, time.Local),
			},
			{
				BuildID:    "f00dfeed-0000-4000-8000-000000000000",
				Reason:     build.ReasonInitial,
				Outcome:    build.CycleGenerationFailed,
				Pages:      0,
				DurationMS: 90,
				StartedAt:  time.Date(2026, 3, 14, 9, 29, 0, 0, time.Local),
			},
		}

		var buf bytes.Buffer
		require.NoError(t, writeHistory(&buf, recs))
		out := buf.String()

		require.Contains(t, out, "STARTED")
		require.Contains(t, out, "0b5e1a92")
		require.NotContains(t, out, "0b5e1a92-8f13")
		require.Contains(t, out, "a1b2c3d4e5")
		require.Contains(t, out, build.CycleGenerationFailed)
		require.Contains(t, out, "1.25s")

		lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
		require.Len(t, lines, 3)
	})
}

func TestShortCommit(t *testing.T) {
	require.Equal(t, "-", shortCommit(""))
	require.Equal(t, "abc123", shortCommit("abc123"))
	require.Equal(t, "a1b2c3d4e5", shortCommit("a1b2c3d4e5f60718"))
}
