package site

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"html/template"
	"os"
	"path"
	"path/filepath"
	"strings"

	gmast "github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"
)

//go:embed templates/page.html.tmpl
var defaultPageLayout string

//go:embed templates/index.html.tmpl
var defaultIndexLayout string

// siteView is the site-wide template context.
type siteView struct {
	Title       string
	Description string
	BaseURL     string
	Params      map[string]any
}

// pageView is the per-page template context.
type pageView struct {
	Site        siteView
	Title       string
	Description string
	Route       string
	Content     template.HTML
	Params      map[string]any
}

// loadLayout resolves the named layout: a <kind>.html.tmpl override under
// layoutDir wins, otherwise the embedded default is used.
func loadLayout(layoutDir, kind string) (*template.Template, error) {
	body := defaultPageLayout
	if kind == "index" {
		body = defaultIndexLayout
	}
	if layoutDir != "" {
		p := filepath.Join(layoutDir, kind+".html.tmpl")
		if b, err := os.ReadFile(p); err == nil {
			body = string(b)
		}
	}
	t, err := template.New(kind).Parse(body)
	if err != nil {
		return nil, fmt.Errorf("parse %s layout: %w", kind, err)
	}
	return t, nil
}

// stageRender converts every discovered page to HTML and writes it into the
// target tree.
func stageRender(ctx context.Context, bs *BuildState) error {
	g := bs.Generator
	sv := g.siteView()

	for _, page := range bs.Pages {
		select {
		case <-ctx.Done():
			return newCanceledStageError(StageRender, ctx.Err())
		default:
		}

		doc := g.md.Parser().Parse(gmtext.NewReader(page.Body))
		page.Title = g.resolveTitle(page, doc)

		var body bytes.Buffer
		if err := g.md.Renderer().Render(&body, page.Body, doc); err != nil {
			return newFatalStageError(StageRender, fmt.Errorf("render %s: %w", page.RelPath, err))
		}

		view := pageView{
			Site:        sv,
			Title:       page.Title,
			Description: page.Meta.Description,
			Route:       page.Route,
			Content:     template.HTML(body.String()), // #nosec G203 -- output of the Markdown renderer
			Params:      page.Meta.Params,
		}
		var out bytes.Buffer
		if err := bs.pageTmpl.Execute(&out, view); err != nil {
			return newFatalStageError(StageRender, fmt.Errorf("layout for %s: %w", page.RelPath, err))
		}

		if err := writeOutput(bs.Target, page.OutPath, out.Bytes()); err != nil {
			return newFatalStageError(StageRender, err)
		}
		bs.Report.RenderedPages++
	}
	return nil
}

// stageReport persists the build report into the generated tree. A persist
// failure leaves the site itself intact, so it degrades to a warning.
func stageReport(ctx context.Context, bs *BuildState) error {
	if err := bs.Report.Persist(bs.Target); err != nil {
		return newWarnStageError(StageReport, err)
	}
	return nil
}

func (g *Generator) siteView() siteView {
	return siteView{
		Title:       g.cfg.Site.Title,
		Description: g.cfg.Site.Description,
		BaseURL:     g.cfg.Site.BaseURL,
		Params:      g.cfg.Site.Params,
	}
}

// resolveTitle picks the page title: frontmatter wins, then the first H1,
// then the source name.
func (g *Generator) resolveTitle(page *Page, doc gmast.Node) string {
	if page.Meta.Title != "" {
		return page.Meta.Title
	}
	if h1 := firstHeading(doc, page.Body); h1 != "" {
		return h1
	}
	if page.IsIndex {
		if page.Section == "" {
			if g.cfg.Site.Title != "" {
				return g.cfg.Site.Title
			}
			return "Home"
		}
		return path.Base(page.Section)
	}
	base := path.Base(page.RelPath)
	return strings.TrimSuffix(base, path.Ext(base))
}

// firstHeading returns the text of the first level-1 heading, or "".
func firstHeading(doc gmast.Node, source []byte) string {
	var title string
	_ = gmast.Walk(doc, func(n gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if !entering {
			return gmast.WalkContinue, nil
		}
		h, ok := n.(*gmast.Heading)
		if !ok || h.Level != 1 {
			return gmast.WalkContinue, nil
		}
		title = strings.TrimSpace(string(nodeText(h, source)))
		return gmast.WalkStop, nil
	})
	return title
}

// nodeText collects the raw text segments below a node.
func nodeText(n gmast.Node, source []byte) []byte {
	var buf bytes.Buffer
	_ = gmast.Walk(n, func(c gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if !entering {
			return gmast.WalkContinue, nil
		}
		if t, ok := c.(*gmast.Text); ok {
			buf.Write(t.Segment.Value(source))
		}
		return gmast.WalkContinue, nil
	})
	return buf.Bytes()
}

// writeOutput writes a generated file below target, creating parents.
func writeOutput(target, outPath string, data []byte) error {
	dst := filepath.Join(target, filepath.FromSlash(outPath))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(dst), err)
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", outPath, err)
	}
	return nil
}
