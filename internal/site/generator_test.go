package site

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sitewright/sitewright/internal/config"
	"github.com/sitewright/sitewright/internal/foundation/errors"
)

func testConfig(t *testing.T) (*config.Config, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{}
	cfg.Site.Title = "Test Site"
	cfg.Content.Dir = filepath.Join(dir, "content")
	cfg.Output.Dir = filepath.Join(dir, "public")
	if err := os.MkdirAll(cfg.Content.Dir, 0o755); err != nil {
		t.Fatal(err)
	}
	return cfg, dir
}

func writeSource(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func readOutput(t *testing.T, target, rel string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(target, filepath.FromSlash(rel)))
	if err != nil {
		t.Fatalf("read %s: %v", rel, err)
	}
	return string(b)
}

func TestGenerateCompleteSite(t *testing.T) {
	cfg, dir := testConfig(t)
	writeSource(t, cfg.Content.Dir, "index.md", "# Welcome\n\nHello there.\n")
	writeSource(t, cfg.Content.Dir, "docs/getting-started.md",
		"---\ntitle: Getting Started\nweight: 1\n---\n\nFirst steps.\n")
	writeSource(t, cfg.Content.Dir, "docs/advanced.md",
		"---\ntitle: Advanced\nweight: 2\n---\n\n| a | b |\n|---|---|\n| 1 | 2 |\n")
	writeSource(t, cfg.Content.Dir, "docs/diagram.png", "png-bytes")

	target := filepath.Join(dir, "stage")
	report, err := New(cfg, nil).Generate(context.Background(), target)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if report.Outcome != OutcomeSuccess {
		t.Fatalf("outcome = %s, want success (warnings: %v)", report.Outcome, report.Warnings)
	}

	for _, rel := range []string{
		"index.html",
		"docs/index.html",
		"docs/getting-started.html",
		"docs/advanced.html",
		"docs/diagram.png",
		"assets/site.css",
		"build-report.json",
		"build-report.txt",
	} {
		if _, err := os.Stat(filepath.Join(target, filepath.FromSlash(rel))); err != nil {
			t.Errorf("expected output file %s: %v", rel, err)
		}
	}

	home := readOutput(t, target, "index.html")
	if !strings.Contains(home, "Welcome") {
		t.Errorf("index.html missing rendered heading: %s", home)
	}
	if !strings.Contains(home, "<title>") {
		t.Errorf("index.html missing layout shell")
	}

	advanced := readOutput(t, target, "docs/advanced.html")
	if !strings.Contains(advanced, "<table>") {
		t.Errorf("GFM table not rendered: %s", advanced)
	}

	sectionIndex := readOutput(t, target, "docs/index.html")
	first := strings.Index(sectionIndex, "/docs/getting-started.html")
	second := strings.Index(sectionIndex, "/docs/advanced.html")
	if first < 0 || second < 0 {
		t.Fatalf("section index missing page links: %s", sectionIndex)
	}
	if first > second {
		t.Errorf("weight ordering violated: getting-started should be listed before advanced")
	}

	if report.Pages != 3 {
		t.Errorf("report.Pages = %d, want 3", report.Pages)
	}
	if report.RenderedPages != 4 { // three pages plus the synthesized docs index
		t.Errorf("report.RenderedPages = %d, want 4", report.RenderedPages)
	}
	if report.Sections != 2 {
		t.Errorf("report.Sections = %d, want 2", report.Sections)
	}
	if report.Assets != 1 {
		t.Errorf("report.Assets = %d, want 1", report.Assets)
	}
}

func TestGenerateBuildReportRoundTrip(t *testing.T) {
	cfg, dir := testConfig(t)
	writeSource(t, cfg.Content.Dir, "index.md", "# Home\n")

	target := filepath.Join(dir, "stage")
	report, err := New(cfg, nil).Generate(context.Background(), target)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	var persisted struct {
		SchemaVersion int    `json:"schema_version"`
		BuildID       string `json:"build_id"`
		Outcome       string `json:"outcome"`
		Pages         int    `json:"pages"`
	}
	raw := readOutput(t, target, "build-report.json")
	if err := json.Unmarshal([]byte(raw), &persisted); err != nil {
		t.Fatalf("unmarshal persisted report: %v", err)
	}
	if persisted.BuildID != report.BuildID {
		t.Errorf("persisted build ID %q != returned %q", persisted.BuildID, report.BuildID)
	}
	if persisted.SchemaVersion != 1 || persisted.Outcome != "success" || persisted.Pages != 1 {
		t.Errorf("unexpected persisted report: %+v", persisted)
	}
}

func TestGenerateEmptyContentWarns(t *testing.T) {
	cfg, dir := testConfig(t)

	target := filepath.Join(dir, "stage")
	report, err := New(cfg, nil).Generate(context.Background(), target)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if report.Outcome != OutcomeWarning {
		t.Errorf("outcome = %s, want warning for empty content", report.Outcome)
	}
	// The root index is still synthesized so the published site is never a
	// broken tree.
	if _, err := os.Stat(filepath.Join(target, "index.html")); err != nil {
		t.Errorf("expected synthesized root index: %v", err)
	}
}

func TestGenerateDraftHandling(t *testing.T) {
	cfg, dir := testConfig(t)
	writeSource(t, cfg.Content.Dir, "index.md", "# Home\n")
	writeSource(t, cfg.Content.Dir, "wip.md", "---\ntitle: WIP\ndraft: true\n---\n\nNot yet.\n")

	target := filepath.Join(dir, "stage-a")
	report, err := New(cfg, nil).Generate(context.Background(), target)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if report.Pages != 1 {
		t.Errorf("draft should be excluded, got %d pages", report.Pages)
	}
	if _, err := os.Stat(filepath.Join(target, "wip.html")); err == nil {
		t.Errorf("draft page was rendered")
	}

	cfg.Site.IncludeDrafts = true
	target = filepath.Join(dir, "stage-b")
	report, err = New(cfg, nil).Generate(context.Background(), target)
	if err != nil {
		t.Fatalf("Generate with drafts: %v", err)
	}
	if report.Pages != 2 {
		t.Errorf("draft should be included, got %d pages", report.Pages)
	}
	if _, err := os.Stat(filepath.Join(target, "wip.html")); err != nil {
		t.Errorf("draft page missing with include_drafts: %v", err)
	}
}

func TestGenerateMalformedFrontmatterFails(t *testing.T) {
	cfg, dir := testConfig(t)
	writeSource(t, cfg.Content.Dir, "bad.md", "---\ntitle: [unclosed\n---\n\nBody.\n")

	target := filepath.Join(dir, "stage")
	report, err := New(cfg, nil).Generate(context.Background(), target)
	if err == nil {
		t.Fatal("expected generation error for malformed frontmatter")
	}
	if !strings.Contains(err.Error(), "bad.md") {
		t.Errorf("error should name the file: %v", err)
	}
	ce, ok := errors.AsClassified(err)
	if !ok {
		t.Fatalf("expected classified error, got %T", err)
	}
	if ce.Category() != errors.CategoryGenerate {
		t.Errorf("category = %s, want %s", ce.Category(), errors.CategoryGenerate)
	}
	if report.Outcome != OutcomeFailed {
		t.Errorf("report outcome = %s, want failed", report.Outcome)
	}
}

func TestGenerateCanceledContext(t *testing.T) {
	cfg, dir := testConfig(t)
	writeSource(t, cfg.Content.Dir, "index.md", "# Home\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := New(cfg, nil).Generate(ctx, filepath.Join(dir, "stage"))
	if err == nil {
		t.Fatal("expected error for canceled context")
	}
	if !stdErrors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled in chain, got %v", err)
	}
	if report.Outcome != OutcomeCanceled {
		t.Errorf("report outcome = %s, want canceled", report.Outcome)
	}
}

func TestGenerateWritesNothingOutsideTarget(t *testing.T) {
	cfg, dir := testConfig(t)
	writeSource(t, cfg.Content.Dir, "index.md", "# Home\n")
	writeSource(t, cfg.Content.Dir, "docs/page.md", "# Page\n")

	before := listTree(t, cfg.Content.Dir)

	target := filepath.Join(dir, "stage")
	if _, err := New(cfg, nil).Generate(context.Background(), target); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	after := listTree(t, cfg.Content.Dir)
	if len(before) != len(after) {
		t.Fatalf("content tree changed: before %v, after %v", before, after)
	}
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("content tree changed: before %v, after %v", before, after)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.Name() != "content" && e.Name() != "stage" {
			t.Errorf("unexpected entry outside target: %s", e.Name())
		}
	}
}

func TestGenerateDeterministicOutput(t *testing.T) {
	cfg, dir := testConfig(t)
	writeSource(t, cfg.Content.Dir, "index.md", "# Home\n\nStable.\n")
	writeSource(t, cfg.Content.Dir, "docs/a.md", "---\ntitle: A\n---\n\nAlpha.\n")
	writeSource(t, cfg.Content.Dir, "docs/b.md", "---\ntitle: B\n---\n\nBeta.\n")

	g := New(cfg, nil)
	targetA := filepath.Join(dir, "stage-a")
	targetB := filepath.Join(dir, "stage-b")
	if _, err := g.Generate(context.Background(), targetA); err != nil {
		t.Fatalf("first Generate: %v", err)
	}
	if _, err := g.Generate(context.Background(), targetB); err != nil {
		t.Fatalf("second Generate: %v", err)
	}

	filesA := listTree(t, targetA)
	filesB := listTree(t, targetB)
	if len(filesA) != len(filesB) {
		t.Fatalf("tree shapes differ: %v vs %v", filesA, filesB)
	}
	for i, rel := range filesA {
		if rel != filesB[i] {
			t.Fatalf("tree shapes differ: %v vs %v", filesA, filesB)
		}
		if strings.HasPrefix(filepath.Base(rel), "build-report.") {
			continue // carries build ID and timings, varies by construction
		}
		a := readOutput(t, targetA, rel)
		b := readOutput(t, targetB, rel)
		if a != b {
			t.Errorf("output %s differs between identical builds", rel)
		}
	}
}

func TestGenerateTitleFallbacks(t *testing.T) {
	cfg, dir := testConfig(t)
	writeSource(t, cfg.Content.Dir, "index.md", "# Home\n")
	writeSource(t, cfg.Content.Dir, "with-heading.md", "# From The Heading\n\nBody.\n")
	writeSource(t, cfg.Content.Dir, "bare-notes.md", "Just text, no heading.\n")

	target := filepath.Join(dir, "stage")
	if _, err := New(cfg, nil).Generate(context.Background(), target); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if got := readOutput(t, target, "with-heading.html"); !strings.Contains(got, "<title>From The Heading") {
		t.Errorf("H1 fallback title missing: %s", got)
	}
	if got := readOutput(t, target, "bare-notes.html"); !strings.Contains(got, "<title>bare-notes") {
		t.Errorf("filename fallback title missing: %s", got)
	}
}

func TestGenerateLayoutOverride(t *testing.T) {
	cfg, dir := testConfig(t)
	cfg.Content.Layouts = filepath.Join(dir, "layouts")
	writeSource(t, cfg.Content.Dir, "index.md", "# Home\n")
	writeSource(t, dir, "layouts/page.html.tmpl",
		"<html><body data-layout=\"custom\">{{ .Content }}</body></html>")

	target := filepath.Join(dir, "stage")
	report, err := New(cfg, nil).Generate(context.Background(), target)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got := readOutput(t, target, "index.html"); !strings.Contains(got, "data-layout=\"custom\"") {
		t.Errorf("layout override not applied: %s", got)
	}
	// Custom layout has no stylesheet link; the default stylesheet is still
	// written and nothing should 404.
	if report.Outcome != OutcomeSuccess {
		t.Errorf("outcome = %s, want success", report.Outcome)
	}
}

func TestGenerateBrokenLayoutFailsEarly(t *testing.T) {
	cfg, dir := testConfig(t)
	cfg.Content.Layouts = filepath.Join(dir, "layouts")
	writeSource(t, cfg.Content.Dir, "index.md", "# Home\n")
	writeSource(t, dir, "layouts/page.html.tmpl", "{{ .Unclosed")

	_, err := New(cfg, nil).Generate(context.Background(), filepath.Join(dir, "stage"))
	if err == nil {
		t.Fatal("expected error for unparsable layout override")
	}
	if !strings.Contains(err.Error(), "layout") {
		t.Errorf("error should mention the layout: %v", err)
	}
}

func TestGenerateLinkCheckFlagsBrokenLinks(t *testing.T) {
	cfg, dir := testConfig(t)
	writeSource(t, cfg.Content.Dir, "index.md", "# Home\n\n[missing](/docs/nowhere.html)\n")

	target := filepath.Join(dir, "stage")
	report, err := New(cfg, nil).Generate(context.Background(), target)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if report.Outcome != OutcomeWarning {
		t.Errorf("outcome = %s, want warning for broken link", report.Outcome)
	}
	if len(report.LinkIssues) != 1 {
		t.Fatalf("LinkIssues = %v, want exactly one", report.LinkIssues)
	}
	if report.LinkIssues[0].Ref != "/docs/nowhere.html" {
		t.Errorf("unexpected issue ref: %+v", report.LinkIssues[0])
	}
}

func TestGenerateLinkCheckAcceptsValidAndExternal(t *testing.T) {
	cfg, dir := testConfig(t)
	writeSource(t, cfg.Content.Dir, "index.md",
		"# Home\n\n[good](/docs/page.html) [ext](https://example.com/x) [mail](mailto:a@b.c) [anchor](#top)\n")
	writeSource(t, cfg.Content.Dir, "docs/page.md", "# Page\n\n[up](../index.html) [sibling dir](/docs/)\n")

	report, err := New(cfg, nil).Generate(context.Background(), filepath.Join(dir, "stage"))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(report.LinkIssues) != 0 {
		t.Errorf("unexpected link issues: %v", report.LinkIssues)
	}
	if report.Outcome != OutcomeSuccess {
		t.Errorf("outcome = %s, want success", report.Outcome)
	}
}

func TestGenerateOutputCollisionFails(t *testing.T) {
	cfg, dir := testConfig(t)
	writeSource(t, cfg.Content.Dir, "Foo Bar.md", "# One\n")
	writeSource(t, cfg.Content.Dir, "foo-bar.md", "# Two\n")

	_, err := New(cfg, nil).Generate(context.Background(), filepath.Join(dir, "stage"))
	if err == nil {
		t.Fatal("expected collision error for identical slugs")
	}
	if !strings.Contains(err.Error(), "foo-bar.html") {
		t.Errorf("error should name the colliding output path: %v", err)
	}
}

func TestGenerateSluggedRoutes(t *testing.T) {
	cfg, dir := testConfig(t)
	writeSource(t, cfg.Content.Dir, "My Docs/Über Page.md", "# Heading\n")

	target := filepath.Join(dir, "stage")
	if _, err := New(cfg, nil).Generate(context.Background(), target); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := os.Stat(filepath.Join(target, "my-docs", "uber-page.html")); err != nil {
		t.Errorf("slugged output path missing: %v", err)
	}
}

func TestGenerateStageTimingsRecorded(t *testing.T) {
	cfg, dir := testConfig(t)
	writeSource(t, cfg.Content.Dir, "index.md", "# Home\n")

	report, err := New(cfg, nil).Generate(context.Background(), filepath.Join(dir, "stage"))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for _, stage := range []StageName{StagePrepare, StageDiscover, StageRender, StageIndexes, StageAssets, StageLinkCheck, StageReport} {
		if _, ok := report.StageDurations[stage]; !ok {
			t.Errorf("missing duration for stage %s", stage)
		}
	}
	if report.End.Before(report.Start) {
		t.Errorf("report end %v before start %v", report.End, report.Start)
	}
}

// listTree returns the sorted relative paths of all files under root.
func listTree(t *testing.T, root string) []string {
	t.Helper()
	var files []string
	err := filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		t.Fatalf("walk %s: %v", root, err)
	}
	return files
}
