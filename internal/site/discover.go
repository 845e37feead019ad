package site

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sitewright/sitewright/internal/config"
	"github.com/sitewright/sitewright/internal/frontmatter"
	"github.com/sitewright/sitewright/internal/logfields"
	"github.com/sitewright/sitewright/internal/observability"
	"github.com/sitewright/sitewright/internal/publish"
)

// markdownExts are the source extensions treated as pages.
var markdownExts = map[string]bool{".md": true, ".markdown": true}

// stagePrepare verifies the source tree, creates the target directory and
// resolves layout templates so malformed overrides fail the build early.
func stagePrepare(ctx context.Context, bs *BuildState) error {
	cfg := bs.Generator.cfg

	info, err := os.Stat(cfg.Content.Dir)
	if err != nil {
		return newFatalStageError(StagePrepare, fmt.Errorf("content directory %q: %w", cfg.Content.Dir, err))
	}
	if !info.IsDir() {
		return newFatalStageError(StagePrepare, fmt.Errorf("content path %q is not a directory", cfg.Content.Dir))
	}

	if err := os.MkdirAll(bs.Target, 0o755); err != nil {
		return newFatalStageError(StagePrepare, fmt.Errorf("create target directory: %w", err))
	}

	if bs.pageTmpl, err = loadLayout(cfg.Content.Layouts, "page"); err != nil {
		return newFatalStageError(StagePrepare, err)
	}
	if bs.indexTmpl, err = loadLayout(cfg.Content.Layouts, "index"); err != nil {
		return newFatalStageError(StagePrepare, err)
	}
	return nil
}

// stageDiscover walks the content tree collecting pages and page-adjacent
// assets, then the configured assets tree verbatim.
func stageDiscover(ctx context.Context, bs *BuildState) error {
	cfg := bs.Generator.cfg

	root, err := filepath.Abs(cfg.Content.Dir)
	if err != nil {
		return newFatalStageError(StageDiscover, fmt.Errorf("resolve content directory: %w", err))
	}
	skipDirs, err := excludedDirs(cfg)
	if err != nil {
		return newFatalStageError(StageDiscover, err)
	}

	bs.SectionNames = map[string]string{}

	walkErr := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p == root {
				return nil
			}
			if hiddenName(d.Name()) || skipDirs[p] {
				return fs.SkipDir
			}
			rel, rerr := filepath.Rel(root, p)
			if rerr != nil {
				return rerr
			}
			relSlash := filepath.ToSlash(rel)
			bs.SectionNames[slugifyPath(relSlash)] = d.Name()
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if hiddenName(d.Name()) || tempName(d.Name()) {
			return nil
		}

		rel, rerr := filepath.Rel(root, p)
		if rerr != nil {
			return rerr
		}
		relSlash := filepath.ToSlash(rel)

		if markdownExts[strings.ToLower(filepath.Ext(d.Name()))] {
			page, skip, perr := bs.Generator.loadPage(p, relSlash)
			if perr != nil {
				return perr
			}
			if !skip {
				bs.Pages = append(bs.Pages, page)
			}
			return nil
		}

		dir := path.Dir(relSlash)
		if dir == "." {
			dir = ""
		}
		bs.Assets = append(bs.Assets, Asset{
			SourcePath: p,
			OutPath:    path.Join(slugifyPath(dir), d.Name()),
		})
		return nil
	})
	if walkErr != nil {
		if ctx.Err() != nil {
			return newCanceledStageError(StageDiscover, walkErr)
		}
		return newFatalStageError(StageDiscover, walkErr)
	}

	if cfg.Content.Assets != "" {
		if err := discoverStaticAssets(ctx, bs, cfg.Content.Assets); err != nil {
			return err
		}
	}

	sort.Slice(bs.Pages, func(i, j int) bool { return bs.Pages[i].RelPath < bs.Pages[j].RelPath })
	sort.Slice(bs.Assets, func(i, j int) bool { return bs.Assets[i].OutPath < bs.Assets[j].OutPath })

	if err := checkOutputCollisions(bs); err != nil {
		return newFatalStageError(StageDiscover, err)
	}

	bs.Report.Pages = len(bs.Pages)
	observability.DebugContext(ctx, "Content discovered",
		logfields.Pages(len(bs.Pages)), logfields.Assets(len(bs.Assets)))

	if len(bs.Pages) == 0 {
		return newWarnStageError(StageDiscover, fmt.Errorf("no pages found under %s", cfg.Content.Dir))
	}
	return nil
}

// discoverStaticAssets walks the configured assets tree; its files are copied
// to the target root preserving structure, with no path transformation.
func discoverStaticAssets(ctx context.Context, bs *BuildState, assetsDir string) error {
	info, err := os.Stat(assetsDir)
	if err != nil || !info.IsDir() {
		observability.DebugContext(ctx, "Assets directory absent, skipping", logfields.Dir(assetsDir))
		return nil
	}

	root, err := filepath.Abs(assetsDir)
	if err != nil {
		return newFatalStageError(StageDiscover, fmt.Errorf("resolve assets directory: %w", err))
	}

	walkErr := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != root && hiddenName(d.Name()) {
				return fs.SkipDir
			}
			return nil
		}
		if hiddenName(d.Name()) || tempName(d.Name()) {
			return nil
		}
		rel, rerr := filepath.Rel(root, p)
		if rerr != nil {
			return rerr
		}
		bs.Assets = append(bs.Assets, Asset{SourcePath: p, OutPath: filepath.ToSlash(rel)})
		return nil
	})
	if walkErr != nil {
		return newFatalStageError(StageDiscover, walkErr)
	}
	return nil
}

// loadPage reads one Markdown source and derives its routing.
func (g *Generator) loadPage(sourcePath, relSlash string) (*Page, bool, error) {
	data, err := os.ReadFile(sourcePath)
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", relSlash, err)
	}

	fm, body, _, err := frontmatter.Split(data)
	if err != nil {
		return nil, false, fmt.Errorf("frontmatter of %s: %w", relSlash, err)
	}
	var meta PageMeta
	if err := frontmatter.Decode(fm, &meta); err != nil {
		return nil, false, fmt.Errorf("frontmatter of %s: %w", relSlash, err)
	}

	if meta.Draft && !g.cfg.Site.IncludeDrafts {
		g.logger.Debug("Skipping draft", logfields.File(relSlash))
		return nil, true, nil
	}

	base := strings.TrimSuffix(path.Base(relSlash), path.Ext(relSlash))
	isIndex := base == "index" || base == "_index"

	dir := path.Dir(relSlash)
	if dir == "." {
		dir = ""
	}
	section := slugifyPath(dir)

	var outPath, route string
	if isIndex {
		outPath = path.Join(section, "index.html")
		route = "/" + section
		if section != "" {
			route += "/"
		}
	} else {
		slug := meta.Slug
		if slug == "" {
			slug = Slugify(base)
		}
		outPath = path.Join(section, slug+".html")
		route = "/" + outPath
	}

	return &Page{
		SourcePath: sourcePath,
		RelPath:    relSlash,
		Section:    section,
		OutPath:    outPath,
		Route:      route,
		Meta:       meta,
		Body:       body,
		IsIndex:    isIndex,
	}, false, nil
}

// excludedDirs returns the absolute directories the content walk must never
// descend into: the publish triple and the separately-walked assets and
// layouts trees.
func excludedDirs(cfg *config.Config) (map[string]bool, error) {
	var paths []string
	if cfg.Output.Dir != "" {
		dirs := publish.DirsFor(cfg.Output.Dir)
		paths = append(paths, dirs.Live, dirs.Staging, dirs.Holding)
	}
	paths = append(paths, cfg.Content.Assets, cfg.Content.Layouts)

	out := map[string]bool{}
	for _, p := range paths {
		if p == "" {
			continue
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", p, err)
		}
		out[abs] = true
	}
	return out, nil
}

// hiddenName reports whether a file or directory name is hidden.
func hiddenName(name string) bool { return strings.HasPrefix(name, ".") }

// tempName matches editor temp, swap and backup files that must never become
// content.
func tempName(name string) bool {
	if strings.HasSuffix(name, "~") || strings.HasSuffix(name, ".swp") || strings.HasSuffix(name, ".swo") || strings.HasSuffix(name, ".tmp") {
		return true
	}
	if strings.HasPrefix(name, "#") && strings.HasSuffix(name, "#") {
		return true
	}
	return false
}

// checkOutputCollisions rejects builds where two sources map to the same
// output path, which would make the tree depend on walk order.
func checkOutputCollisions(bs *BuildState) error {
	seen := make(map[string]string, len(bs.Pages)+len(bs.Assets))
	for _, p := range bs.Pages {
		if prev, dup := seen[p.OutPath]; dup {
			return fmt.Errorf("%s and %s both map to output path %s", prev, p.RelPath, p.OutPath)
		}
		seen[p.OutPath] = p.RelPath
	}
	for _, a := range bs.Assets {
		if prev, dup := seen[a.OutPath]; dup {
			return fmt.Errorf("%s and %s both map to output path %s", prev, a.SourcePath, a.OutPath)
		}
		seen[a.OutPath] = a.SourcePath
	}
	return nil
}
