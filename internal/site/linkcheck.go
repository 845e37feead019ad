package site

import (
	"context"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"
)

// stageLinkCheck parses the generated HTML and verifies that every internal
// reference resolves to a file in the target tree. Unresolved references are
// recorded in the report as warnings; they never fail the build.
func stageLinkCheck(ctx context.Context, bs *BuildState) error {
	var baseHost string
	if bs.Generator.cfg.Site.BaseURL != "" {
		if u, err := url.Parse(bs.Generator.cfg.Site.BaseURL); err == nil {
			baseHost = u.Host
		}
	}

	walkErr := filepath.WalkDir(bs.Target, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(d.Name()), ".html") {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rel, rerr := filepath.Rel(bs.Target, p)
		if rerr != nil {
			return rerr
		}
		relSlash := filepath.ToSlash(rel)

		refs, rerr := extractRefs(p)
		if rerr != nil {
			return rerr
		}
		for _, ref := range refs {
			if !resolves(bs.Target, relSlash, ref, baseHost) {
				bs.Report.LinkIssues = append(bs.Report.LinkIssues, LinkIssue{Page: relSlash, Ref: ref})
			}
		}
		return nil
	})
	if walkErr != nil {
		if ctx.Err() != nil {
			return newCanceledStageError(StageLinkCheck, walkErr)
		}
		return newFatalStageError(StageLinkCheck, walkErr)
	}

	if n := len(bs.Report.LinkIssues); n > 0 {
		return newWarnStageError(StageLinkCheck, fmt.Errorf("%d internal references do not resolve", n))
	}
	return nil
}

// extractRefs collects href/src attribute values from link-bearing elements.
func extractRefs(htmlPath string) ([]string, error) {
	f, err := os.Open(htmlPath) // #nosec G304 -- paths come from walking the build output
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", htmlPath, err)
	}
	defer func() { _ = f.Close() }()

	doc, err := html.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", htmlPath, err)
	}

	var refs []string
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "a", "link":
				if v := getAttr(n, "href"); v != "" {
					refs = append(refs, v)
				}
			case "img", "script", "video", "audio", "source":
				if v := getAttr(n, "src"); v != "" {
					refs = append(refs, v)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(doc)
	return refs, nil
}

func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

// resolves reports whether ref, as written in the page at relSlash, points at
// a file in the target tree. External and non-navigational references pass
// unchecked.
func resolves(target, relSlash, ref string, baseHost string) bool {
	if skipRef(ref) {
		return true
	}

	u, err := url.Parse(ref)
	if err != nil {
		return false
	}
	if u.Scheme != "" || u.Host != "" {
		// External unless it points at our own base host.
		if baseHost == "" || u.Host != baseHost {
			return true
		}
	}
	p := u.Path
	if p == "" {
		return true // fragment or query-only reference
	}

	var candidate string
	if strings.HasPrefix(p, "/") {
		candidate = path.Clean(p)
	} else {
		candidate = path.Join("/", path.Dir(relSlash), p)
	}
	candidate = strings.TrimPrefix(candidate, "/")
	if candidate == ".." || strings.HasPrefix(candidate, "../") {
		return false // escapes the site root
	}

	full := filepath.Join(target, filepath.FromSlash(candidate))
	info, err := os.Stat(full)
	if err == nil && info.IsDir() {
		info, err = os.Stat(filepath.Join(full, "index.html"))
	}
	if err != nil && strings.HasSuffix(p, "/") {
		info, err = os.Stat(filepath.Join(full, "index.html"))
	}
	return err == nil && !info.IsDir()
}

// skipRef filters reference kinds that are not filesystem-resolvable.
func skipRef(ref string) bool {
	if ref == "" || strings.HasPrefix(ref, "#") {
		return true
	}
	for _, scheme := range []string{"mailto:", "tel:", "javascript:", "data:"} {
		if strings.HasPrefix(ref, scheme) {
			return true
		}
	}
	return false
}
