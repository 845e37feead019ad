package site

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"sort"
)

// indexView is the template context for section index pages.
type indexView struct {
	Site    siteView
	Title   string
	Route   string
	Entries []indexEntry
}

// indexEntry is one listed child of a section index.
type indexEntry struct {
	Title       string
	Route       string
	Description string
	weight      int
}

// stageIndexes synthesizes an index page for every section that does not
// bring its own index.md or _index.md, the site root included.
func stageIndexes(ctx context.Context, bs *BuildState) error {
	g := bs.Generator
	sv := g.siteView()

	sections := collectSections(bs)
	bs.Report.Sections = len(sections)

	for _, sec := range sortedKeys(sections) {
		select {
		case <-ctx.Done():
			return newCanceledStageError(StageIndexes, ctx.Err())
		default:
		}
		if sections[sec].hasIndex {
			continue
		}

		view := indexView{
			Site:    sv,
			Title:   sectionTitle(g, bs, sec),
			Route:   sectionRoute(sec),
			Entries: sections[sec].entries,
		}
		var out bytes.Buffer
		if err := bs.indexTmpl.Execute(&out, view); err != nil {
			return newFatalStageError(StageIndexes, fmt.Errorf("index layout for %q: %w", sec, err))
		}
		if err := writeOutput(bs.Target, path.Join(sec, "index.html"), out.Bytes()); err != nil {
			return newFatalStageError(StageIndexes, err)
		}
		bs.Report.RenderedPages++
	}
	return nil
}

type sectionInfo struct {
	hasIndex bool
	entries  []indexEntry
	// index page metadata when explicit, used when the section is itself
	// listed by its parent
	title       string
	description string
	weight      int
}

// collectSections builds the section table: every page section plus all of
// its ancestors, each with its sorted child entries.
func collectSections(bs *BuildState) map[string]*sectionInfo {
	sections := map[string]*sectionInfo{"": {}}
	ensure := func(sec string) *sectionInfo {
		for cur := sec; ; cur = parentSection(cur) {
			if _, ok := sections[cur]; !ok {
				sections[cur] = &sectionInfo{}
			}
			if cur == "" {
				break
			}
		}
		return sections[sec]
	}

	for _, p := range bs.Pages {
		info := ensure(p.Section)
		if p.IsIndex {
			info.hasIndex = true
			info.title = p.Title
			info.description = p.Meta.Description
			info.weight = p.Meta.Weight
		}
	}

	// Child pages.
	for _, p := range bs.Pages {
		if p.IsIndex {
			continue
		}
		sections[p.Section].entries = append(sections[p.Section].entries, indexEntry{
			Title:       p.Title,
			Route:       p.Route,
			Description: p.Meta.Description,
			weight:      p.Meta.Weight,
		})
	}

	// Child sections, listed on their parent.
	for sec, info := range sections {
		if sec == "" {
			continue
		}
		parent := parentSection(sec)
		title := info.title
		if title == "" {
			title = sectionFallbackTitle(bs, sec)
		}
		sections[parent].entries = append(sections[parent].entries, indexEntry{
			Title:       title,
			Route:       sectionRoute(sec),
			Description: info.description,
			weight:      info.weight,
		})
	}

	for _, info := range sections {
		sortEntries(info.entries)
	}
	return sections
}

// sortEntries orders by weight (non-zero weights first, ascending), then
// title, then route so the listing is fully deterministic.
func sortEntries(entries []indexEntry) {
	sort.Slice(entries, func(i, j int) bool {
		wi, wj := entries[i].weight, entries[j].weight
		if (wi == 0) != (wj == 0) {
			return wi != 0
		}
		if wi != wj {
			return wi < wj
		}
		if entries[i].Title != entries[j].Title {
			return entries[i].Title < entries[j].Title
		}
		return entries[i].Route < entries[j].Route
	})
}

func parentSection(sec string) string {
	dir := path.Dir(sec)
	if dir == "." || dir == "/" {
		return ""
	}
	return dir
}

func sectionRoute(sec string) string {
	if sec == "" {
		return "/"
	}
	return "/" + sec + "/"
}

func sectionTitle(g *Generator, bs *BuildState, sec string) string {
	if sec == "" {
		if g.cfg.Site.Title != "" {
			return g.cfg.Site.Title
		}
		return "Home"
	}
	return sectionFallbackTitle(bs, sec)
}

// sectionFallbackTitle prefers the original directory name over the slug.
func sectionFallbackTitle(bs *BuildState, sec string) string {
	if name, ok := bs.SectionNames[sec]; ok && name != "" {
		return name
	}
	return path.Base(sec)
}

func sortedKeys(m map[string]*sectionInfo) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
