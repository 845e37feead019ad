package daemon

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sitewright/sitewright/internal/build"
	"github.com/sitewright/sitewright/internal/config"
	"github.com/sitewright/sitewright/internal/foundation/errors"
	"github.com/sitewright/sitewright/internal/history"
)

func watchConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{}
	cfg.Site.Title = "Watch Test"
	cfg.Content.Dir = filepath.Join(dir, "content")
	cfg.Output.Dir = filepath.Join(dir, "public")
	cfg.Watch.Debounce = "150ms"
	cfg.Watch.MaxDelay = "2s"
	cfg.History.Path = filepath.Join(dir, "state", "history.db")
	cfg.History.Keep = 50
	require.NoError(t, os.MkdirAll(cfg.Content.Dir, 0o755))
	return cfg
}

func writeSource(t *testing.T, cfg *config.Config, rel, content string) {
	t.Helper()
	p := filepath.Join(cfg.Content.Dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

// startDaemon runs the daemon in the background and registers a stop helper
// that also surfaces Start's return value.
func startDaemon(t *testing.T, cfg *config.Config) (*Daemon, func()) {
	t.Helper()
	d, err := New(cfg, nil)
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- d.Start(t.Context()) }()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			require.NoError(t, d.Stop(ctx))
			select {
			case err := <-errCh:
				require.NoError(t, err)
			case <-ctx.Done():
				t.Fatalf("daemon did not shut down in time")
			}
		})
	}
	t.Cleanup(stop)
	return d, stop
}

func awaitFile(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); err == nil {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("file never appeared: %s", path)
}

func awaitStatus(t *testing.T, d *Daemon, want Status) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if d.Status() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("daemon never reached status %s, still %s", want, d.Status())
}

func recentRecords(t *testing.T, cfg *config.Config) []build.CycleRecord {
	t.Helper()
	store, err := history.Open(cfg.History.Path, cfg.History.Keep)
	require.NoError(t, err)
	defer func() { require.NoError(t, store.Close()) }()
	recs, err := store.Recent(context.Background(), cfg.History.Keep)
	require.NoError(t, err)
	return recs
}

func TestDaemonBuildsOnStartAndRebuildsOnChange(t *testing.T) {
	cfg := watchConfig(t)
	writeSource(t, cfg, "index.md", "# Home\n\nFirst version.\n")

	d, stop := startDaemon(t, cfg)
	awaitStatus(t, d, StatusRunning)
	awaitFile(t, filepath.Join(cfg.Output.Dir, "index.html"))

	writeSource(t, cfg, "docs/new-page.md", "---\ntitle: New Page\n---\n\nJust added.\n")
	awaitFile(t, filepath.Join(cfg.Output.Dir, "docs", "new-page.html"))

	stop()
	require.Equal(t, StatusStopped, d.Status())

	require.NoDirExists(t, cfg.Output.Dir+".stage")
	require.NoDirExists(t, cfg.Output.Dir+".hold")

	recs := recentRecords(t, cfg)
	require.Len(t, recs, 2)
	require.Equal(t, build.ReasonSignal, recs[0].Reason)
	require.Equal(t, build.CycleSuccess, recs[0].Outcome)
	require.Equal(t, build.ReasonInitial, recs[1].Reason)
	require.Equal(t, build.CycleSuccess, recs[1].Outcome)
}

func TestDaemonCoalescesRapidChangeBurst(t *testing.T) {
	cfg := watchConfig(t)
	// A generous quiet window so the whole burst lands inside it.
	cfg.Watch.Debounce = "500ms"
	writeSource(t, cfg, "index.md", "# Home\n")

	d, stop := startDaemon(t, cfg)
	awaitStatus(t, d, StatusRunning)
	awaitFile(t, filepath.Join(cfg.Output.Dir, "index.html"))

	for i := 1; i <= 5; i++ {
		writeSource(t, cfg, fmt.Sprintf("note-%d.md", i), fmt.Sprintf("# Note %d\n", i))
	}
	for i := 1; i <= 5; i++ {
		awaitFile(t, filepath.Join(cfg.Output.Dir, fmt.Sprintf("note-%d.html", i)))
	}

	stop()

	// Five rapid writes coalesce into one debounce flush, so the session is
	// the initial build plus a single rebuild.
	recs := recentRecords(t, cfg)
	require.Len(t, recs, 2)
	require.Equal(t, build.ReasonSignal, recs[0].Reason)
	require.Equal(t, build.ReasonInitial, recs[1].Reason)
}

func TestDaemonServesPreviewWhileWatching(t *testing.T) {
	cfg := watchConfig(t)
	cfg.Serve.Enabled = true
	cfg.Serve.Addr = "127.0.0.1:0"
	writeSource(t, cfg, "index.md", "# Home\n\nServed live.\n")

	d, _ := startDaemon(t, cfg)
	awaitStatus(t, d, StatusRunning)
	awaitFile(t, filepath.Join(cfg.Output.Dir, "index.html"))

	resp, err := http.Get("http://" + d.server.Addr() + "/")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	health, err := http.Get("http://" + d.server.Addr() + "/healthz")
	require.NoError(t, err)
	defer func() { _ = health.Body.Close() }()
	require.Equal(t, http.StatusOK, health.StatusCode)
}

func TestDaemonStartFailsWithoutContentDir(t *testing.T) {
	cfg := watchConfig(t)
	require.NoError(t, os.RemoveAll(cfg.Content.Dir))

	d, err := New(cfg, nil)
	require.NoError(t, err)

	err = d.Start(t.Context())
	require.Error(t, err)
	require.True(t, errors.HasCategory(err, errors.CategoryWatch))
	require.Equal(t, StatusStopped, d.Status())
}

func TestDaemonRejectsUnreachableAnnouncer(t *testing.T) {
	cfg := watchConfig(t)
	cfg.Notify.URL = "nats://127.0.0.1:1"
	cfg.Notify.Subject = "builds"

	_, err := New(cfg, nil)
	require.Error(t, err)
	require.True(t, errors.HasCategory(err, errors.CategoryNotify))
}

func TestDaemonRequiresConfig(t *testing.T) {
	_, err := New(nil, nil)
	require.Error(t, err)
	require.True(t, errors.HasCategory(err, errors.CategoryValidation))
}

func TestDaemonStopIsIdempotent(t *testing.T) {
	cfg := watchConfig(t)
	writeSource(t, cfg, "index.md", "# Home\n")

	d, stop := startDaemon(t, cfg)
	awaitStatus(t, d, StatusRunning)
	awaitFile(t, filepath.Join(cfg.Output.Dir, "index.html"))

	stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, d.Stop(ctx))
}
