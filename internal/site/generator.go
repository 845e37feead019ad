package site

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/sitewright/sitewright/internal/config"
	"github.com/sitewright/sitewright/internal/foundation/errors"
	"github.com/sitewright/sitewright/internal/logfields"
	"github.com/sitewright/sitewright/internal/metrics"
	"github.com/sitewright/sitewright/internal/observability"
)

// Generator builds a static site from Markdown sources.
type Generator struct {
	cfg      *config.Config
	logger   *slog.Logger
	recorder metrics.Recorder
	commit   string
	md       goldmark.Markdown
}

// New creates a Generator for the given configuration.
func New(cfg *config.Config, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		cfg:      cfg,
		logger:   logger,
		recorder: metrics.NoopRecorder{},
		md:       newMarkdown(cfg.Site.AllowHTML),
	}
}

// SetRecorder injects a metrics recorder (optional). Returns the generator
// for chaining.
func (g *Generator) SetRecorder(r metrics.Recorder) *Generator {
	if r == nil {
		g.recorder = metrics.NoopRecorder{}
		return g
	}
	g.recorder = r
	return g
}

// SetCommit records the source commit stamped into build reports. Returns the
// generator for chaining.
func (g *Generator) SetCommit(commit string) *Generator {
	g.commit = commit
	return g
}

// Generate populates targetDir with the complete site output. The caller
// guarantees targetDir exists and is empty; Generate writes nowhere outside
// it. The returned report is always non-nil. On error the target contents are
// undefined and must not be published.
func (g *Generator) Generate(ctx context.Context, targetDir string) (*BuildReport, error) {
	buildID := observability.BuildID(ctx)
	if buildID == "" {
		buildID = uuid.NewString()
		ctx = observability.WithBuildID(ctx, buildID)
	}

	report := newBuildReport(buildID, g.commit)
	bs := newBuildState(g, filepath.Clean(targetDir), report)

	defs := NewPipeline().
		Add(StagePrepare, stagePrepare).
		Add(StageDiscover, stageDiscover).
		Add(StageRender, stageRender).
		Add(StageIndexes, stageIndexes).
		Add(StageAssets, stageAssets).
		Add(StageLinkCheck, stageLinkCheck).
		Add(StageReport, stageReport).
		Build()

	err := g.runStages(ctx, bs, defs)
	report.finish()
	report.deriveOutcome()

	if err != nil {
		return report, errors.GenerateError("site generation failed").
			WithCause(err).
			WithContext("build_id", buildID).
			Build()
	}

	g.logger.Debug("Site generated",
		logfields.BuildID(buildID),
		logfields.Pages(report.RenderedPages),
		logfields.Assets(report.Assets),
		logfields.DurationMS(float64(report.Duration().Milliseconds())))
	return report, nil
}

// newMarkdown constructs the shared Markdown converter: GFM tables, strikethrough,
// task lists and autolinks, with stable auto-generated heading IDs.
func newMarkdown(allowHTML bool) goldmark.Markdown {
	opts := []goldmark.Option{
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
	}
	if allowHTML {
		opts = append(opts, goldmark.WithRendererOptions(gmhtml.WithUnsafe()))
	}
	return goldmark.New(opts...)
}
