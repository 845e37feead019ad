package site

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// BuildOutcome is the typed enumeration of final build result states.
type BuildOutcome string

const (
	OutcomeSuccess  BuildOutcome = "success"
	OutcomeWarning  BuildOutcome = "warning"
	OutcomeFailed   BuildOutcome = "failed"
	OutcomeCanceled BuildOutcome = "canceled"
)

// BuildReport captures high-level metrics about a site generation run. The
// report stage persists it into the generated tree, so it is published
// atomically with the site it describes.
type BuildReport struct {
	SchemaVersion   int
	BuildID         string
	Commit          string // source commit the build ran from, "" outside a repository
	Start           time.Time
	End             time.Time
	Pages           int // discovered pages after draft filtering
	RenderedPages   int // pages written, including synthesized indexes
	Sections        int
	Assets          int
	Errors          []error // fatal errors causing build abortion (at most one today)
	Warnings        []error // non-fatal issues recorded along the way
	StageDurations  map[StageName]time.Duration
	StageErrorKinds map[StageName]StageErrorKind
	LinkIssues      []LinkIssue
	Outcome         BuildOutcome
}

// LinkIssue describes one internal reference that did not resolve to a
// generated file.
type LinkIssue struct {
	Page string `json:"page"` // output path of the page containing the reference
	Ref  string `json:"ref"`  // the href/src value as written
}

func newBuildReport(buildID, commit string) *BuildReport {
	return &BuildReport{
		SchemaVersion:   1,
		BuildID:         buildID,
		Commit:          commit,
		Start:           time.Now(),
		StageDurations:  make(map[StageName]time.Duration),
		StageErrorKinds: make(map[StageName]StageErrorKind),
	}
}

func (r *BuildReport) recordError(stage StageName, se *StageError) {
	r.StageErrorKinds[stage] = se.Kind
	r.Errors = append(r.Errors, se)
}

func (r *BuildReport) recordWarning(stage StageName, se *StageError) {
	r.StageErrorKinds[stage] = se.Kind
	r.Warnings = append(r.Warnings, se)
}

// finish stamps the end time once; later calls are no-ops.
func (r *BuildReport) finish() {
	if r.End.IsZero() {
		r.End = time.Now()
	}
}

// Duration returns the wall-clock build duration.
func (r *BuildReport) Duration() time.Duration {
	end := r.End
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(r.Start)
}

// Summary returns a human-readable single-line summary.
func (r *BuildReport) Summary() string {
	return fmt.Sprintf("build=%s pages=%d rendered=%d sections=%d assets=%d duration=%s errors=%d warnings=%d outcome=%s",
		r.BuildID, r.Pages, r.RenderedPages, r.Sections, r.Assets,
		r.Duration().Truncate(time.Millisecond), len(r.Errors), len(r.Warnings), r.Outcome)
}

// deriveOutcome sets the Outcome field based on recorded errors and warnings.
func (r *BuildReport) deriveOutcome() {
	if len(r.Errors) > 0 {
		for _, e := range r.Errors {
			if se, ok := e.(*StageError); ok && se.Kind == StageErrorCanceled {
				r.Outcome = OutcomeCanceled
				return
			}
		}
		r.Outcome = OutcomeFailed
		return
	}
	if len(r.Warnings) > 0 {
		r.Outcome = OutcomeWarning
		return
	}
	r.Outcome = OutcomeSuccess
}

// Persist writes the report into root as build-report.json plus a one-line
// build-report.txt, each via write-then-rename so a reader never sees a
// partial file.
func (r *BuildReport) Persist(root string) error {
	r.finish()
	r.deriveOutcome()

	jb, err := json.MarshalIndent(r.serializable(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report json: %w", err)
	}
	jsonPath := filepath.Join(root, "build-report.json")
	tmpJSON := jsonPath + ".tmp"
	if err := os.WriteFile(tmpJSON, jb, 0o644); err != nil {
		return fmt.Errorf("write temp report json: %w", err)
	}
	if err := os.Rename(tmpJSON, jsonPath); err != nil {
		return fmt.Errorf("rename report json: %w", err)
	}

	summaryPath := filepath.Join(root, "build-report.txt")
	tmpTxt := summaryPath + ".tmp"
	if err := os.WriteFile(tmpTxt, []byte(r.Summary()+"\n"), 0o644); err != nil {
		return fmt.Errorf("write temp report summary: %w", err)
	}
	if err := os.Rename(tmpTxt, summaryPath); err != nil {
		return fmt.Errorf("rename report summary: %w", err)
	}
	return nil
}

// serializable returns a copy with error values flattened to strings for
// stable JSON output.
func (r *BuildReport) serializable() *buildReportJSON {
	durations := make(map[string]time.Duration, len(r.StageDurations))
	for k, v := range r.StageDurations {
		durations[string(k)] = v
	}
	kinds := make(map[string]string, len(r.StageErrorKinds))
	for k, v := range r.StageErrorKinds {
		kinds[string(k)] = string(v)
	}

	s := &buildReportJSON{
		SchemaVersion:   r.SchemaVersion,
		BuildID:         r.BuildID,
		Commit:          r.Commit,
		Start:           r.Start,
		End:             r.End,
		Pages:           r.Pages,
		RenderedPages:   r.RenderedPages,
		Sections:        r.Sections,
		Assets:          r.Assets,
		Errors:          make([]string, len(r.Errors)),
		Warnings:        make([]string, len(r.Warnings)),
		StageDurations:  durations,
		StageErrorKinds: kinds,
		LinkIssues:      r.LinkIssues,
		Outcome:         string(r.Outcome),
	}
	for i, e := range r.Errors {
		s.Errors[i] = e.Error()
	}
	for i, w := range r.Warnings {
		s.Warnings[i] = w.Error()
	}
	return s
}

// buildReportJSON mirrors BuildReport with string errors for JSON output.
type buildReportJSON struct {
	SchemaVersion   int                      `json:"schema_version"`
	BuildID         string                   `json:"build_id"`
	Commit          string                   `json:"commit,omitempty"`
	Start           time.Time                `json:"start"`
	End             time.Time                `json:"end"`
	Pages           int                      `json:"pages"`
	RenderedPages   int                      `json:"rendered_pages"`
	Sections        int                      `json:"sections"`
	Assets          int                      `json:"assets"`
	Errors          []string                 `json:"errors"`
	Warnings        []string                 `json:"warnings"`
	StageDurations  map[string]time.Duration `json:"stage_durations"`
	StageErrorKinds map[string]string        `json:"stage_error_kinds"`
	LinkIssues      []LinkIssue              `json:"link_issues,omitempty"`
	Outcome         string                   `json:"outcome"`
}
