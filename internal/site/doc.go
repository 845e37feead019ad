// Package site turns a tree of Markdown sources into a complete static HTML
// site inside a caller-provided target directory.
//
// Generation runs as an ordered pipeline of stages (prepare, discover, render,
// indexes, assets, linkcheck, report). Fatal stage errors abort the build;
// warning stage errors are recorded in the build report and the pipeline
// continues. The generator writes only inside the target directory, so a
// failed build never disturbs previously published output.
package site
