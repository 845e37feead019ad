package site

// PageMeta carries the typed frontmatter fields of a page. Unknown keys are
// collected into Params for template access.
type PageMeta struct {
	Title       string         `yaml:"title"`
	Description string         `yaml:"description"`
	Weight      int            `yaml:"weight"`
	Draft       bool           `yaml:"draft"`
	Slug        string         `yaml:"slug"`
	Params      map[string]any `yaml:",inline"`
}

// Page is a discovered Markdown source file on its way to becoming an HTML
// page.
type Page struct {
	SourcePath string // absolute path of the source file
	RelPath    string // path relative to the content root, slash separated
	Section    string // slugged route of the containing directory, "" for root
	OutPath    string // output path relative to the target root, slash separated
	Route      string // URL path of the rendered page, always starting with /
	Meta       PageMeta
	Body       []byte // Markdown body with frontmatter removed
	Title      string // resolved title (frontmatter, first H1, or filename)
	IsIndex    bool   // index.md or _index.md: the section's own landing page
}

// URL returns the root-relative URL of the rendered page.
func (p *Page) URL() string { return p.Route }

// Asset is a non-Markdown file copied verbatim into the generated tree.
type Asset struct {
	SourcePath string // absolute path of the source file
	OutPath    string // output path relative to the target root, slash separated
}
