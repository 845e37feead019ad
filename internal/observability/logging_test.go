package observability

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestWithBuildID(t *testing.T) {
	ctx := context.Background()
	ctx = WithBuildID(ctx, "build-123")

	lc := GetContext(ctx)
	if lc.BuildID != "build-123" {
		t.Errorf("expected build-123, got %s", lc.BuildID)
	}
	if BuildID(ctx) != "build-123" {
		t.Errorf("BuildID accessor disagrees: %s", BuildID(ctx))
	}
}

func TestWithStage(t *testing.T) {
	ctx := context.Background()
	ctx = WithStage(ctx, "render")

	lc := GetContext(ctx)
	if lc.Stage != "render" {
		t.Errorf("expected render, got %s", lc.Stage)
	}
}

func TestWithReason(t *testing.T) {
	ctx := context.Background()
	ctx = WithReason(ctx, "signal")

	lc := GetContext(ctx)
	if lc.Reason != "signal" {
		t.Errorf("expected signal, got %s", lc.Reason)
	}
}

func TestMultipleContextValues(t *testing.T) {
	ctx := context.Background()
	ctx = WithBuildID(ctx, "build-1")
	ctx = WithStage(ctx, "discover")
	ctx = WithReason(ctx, "coalesced")

	lc := GetContext(ctx)

	if lc.BuildID != "build-1" {
		t.Error("expected build-1")
	}
	if lc.Stage != "discover" {
		t.Error("expected discover")
	}
	if lc.Reason != "coalesced" {
		t.Error("expected coalesced")
	}
}

func TestOverwriteContextValue(t *testing.T) {
	ctx := context.Background()
	ctx = WithBuildID(ctx, "build-1")
	ctx = WithBuildID(ctx, "build-2")

	lc := GetContext(ctx)
	if lc.BuildID != "build-2" {
		t.Errorf("expected build-2, got %s", lc.BuildID)
	}
}

func TestEmptyContext(t *testing.T) {
	ctx := context.Background()
	lc := GetContext(ctx)

	if lc.BuildID != "" || lc.Stage != "" || lc.Reason != "" {
		t.Error("expected empty context")
	}
	if BuildID(ctx) != "" {
		t.Error("expected empty build ID")
	}
}

func TestInfoContextIncludesAttrs(t *testing.T) {
	var buf bytes.Buffer
	old := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	defer slog.SetDefault(old)

	ctx := WithStage(WithBuildID(context.Background(), "b-1"), "assets")
	InfoContext(ctx, "Stage complete", slog.Int("files", 3))

	out := buf.String()
	for _, want := range []string{"build_id=b-1", "stage=assets", "files=3", "Stage complete"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q: %s", want, out)
		}
	}
}

func TestLevelHelpersRespectLevel(t *testing.T) {
	var buf bytes.Buffer
	old := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn})))
	defer slog.SetDefault(old)

	ctx := WithBuildID(context.Background(), "b-2")
	DebugContext(ctx, "hidden message")
	WarnContext(ctx, "warn message")
	ErrorContext(ctx, "error message")

	out := buf.String()
	if strings.Contains(out, "hidden message") {
		t.Errorf("debug message leaked through warn-level handler: %s", out)
	}
	if !strings.Contains(out, "warn message") || !strings.Contains(out, "error message") {
		t.Errorf("warn/error messages missing: %s", out)
	}
}
