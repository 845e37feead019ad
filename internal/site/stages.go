package site

import (
	"context"
	stdErrors "errors"
	"fmt"
	"html/template"
	"time"

	"github.com/sitewright/sitewright/internal/logfields"
	"github.com/sitewright/sitewright/internal/metrics"
	"github.com/sitewright/sitewright/internal/observability"
)

// Stage is a discrete unit of work in the site build.
type Stage func(ctx context.Context, bs *BuildState) error

// StageName is a strongly-typed identifier for a build stage.
type StageName string

// Canonical stage names, in execution order.
const (
	StagePrepare   StageName = "prepare"
	StageDiscover  StageName = "discover"
	StageRender    StageName = "render"
	StageIndexes   StageName = "indexes"
	StageAssets    StageName = "assets"
	StageLinkCheck StageName = "linkcheck"
	StageReport    StageName = "report"
)

// StageErrorKind classifies the outcome of a stage.
type StageErrorKind string

const (
	StageErrorFatal    StageErrorKind = "fatal"    // Build must abort.
	StageErrorWarning  StageErrorKind = "warning"  // Non-fatal; record and continue.
	StageErrorCanceled StageErrorKind = "canceled" // Context cancellation.
)

// StageError is a structured error carrying category and underlying cause.
type StageError struct {
	Kind  StageErrorKind
	Stage StageName
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s stage %s: %v", e.Kind, e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

func newFatalStageError(stage StageName, err error) *StageError {
	return &StageError{Kind: StageErrorFatal, Stage: stage, Err: err}
}

func newWarnStageError(stage StageName, err error) *StageError {
	return &StageError{Kind: StageErrorWarning, Stage: stage, Err: err}
}

func newCanceledStageError(stage StageName, err error) *StageError {
	return &StageError{Kind: StageErrorCanceled, Stage: stage, Err: err}
}

// StageDef pairs a stage name with its executing function.
type StageDef struct {
	Name StageName
	Fn   Stage
}

// Pipeline is a fluent builder for ordered stage definitions.
type Pipeline struct{ defs []StageDef }

// NewPipeline creates an empty pipeline.
func NewPipeline() *Pipeline { return &Pipeline{defs: make([]StageDef, 0, 8)} }

// Add appends a stage unconditionally.
func (p *Pipeline) Add(name StageName, fn Stage) *Pipeline {
	p.defs = append(p.defs, StageDef{Name: name, Fn: fn})
	return p
}

// AddIf appends a stage only if cond is true.
func (p *Pipeline) AddIf(cond bool, name StageName, fn Stage) *Pipeline {
	if cond {
		p.Add(name, fn)
	}
	return p
}

// Build returns a defensive copy of the stage definitions slice.
func (p *Pipeline) Build() []StageDef {
	out := make([]StageDef, len(p.defs))
	copy(out, p.defs)
	return out
}

// BuildState carries mutable state across stages of a single build.
type BuildState struct {
	Generator *Generator
	Target    string // target directory the build writes into
	Pages     []*Page
	Assets    []Asset
	// SectionNames maps slugged section routes back to the original directory
	// names, for titling synthesized index pages.
	SectionNames map[string]string
	Report       *BuildReport

	pageTmpl  *template.Template
	indexTmpl *template.Template
}

func newBuildState(g *Generator, target string, report *BuildReport) *BuildState {
	return &BuildState{Generator: g, Target: target, Report: report}
}

// runStages executes stages in order, recording timing and stopping on the
// first fatal error. Warning stage errors are recorded and the next stage
// runs.
func (g *Generator) runStages(ctx context.Context, bs *BuildState, defs []StageDef) error {
	for _, st := range defs {
		select {
		case <-ctx.Done():
			se := newCanceledStageError(st.Name, ctx.Err())
			bs.Report.recordError(st.Name, se)
			g.recorder.IncStageResult(string(st.Name), metrics.ResultCanceled)
			return se
		default:
		}

		stageCtx := observability.WithStage(ctx, string(st.Name))
		t0 := time.Now()
		err := st.Fn(stageCtx, bs)
		dur := time.Since(t0)
		bs.Report.StageDurations[st.Name] = dur
		g.recorder.ObserveStageDuration(string(st.Name), dur)

		if err == nil {
			g.recorder.IncStageResult(string(st.Name), metrics.ResultSuccess)
			continue
		}

		var se *StageError
		if !stdErrors.As(err, &se) {
			// Unknown errors are fatal by default.
			se = newFatalStageError(st.Name, err)
		}
		switch se.Kind {
		case StageErrorWarning:
			bs.Report.recordWarning(st.Name, se)
			g.recorder.IncStageResult(string(st.Name), metrics.ResultWarning)
			observability.WarnContext(stageCtx, "Stage finished with warning", logfields.Error(se.Err))
			continue
		case StageErrorCanceled:
			bs.Report.recordError(st.Name, se)
			g.recorder.IncStageResult(string(st.Name), metrics.ResultCanceled)
			return se
		default:
			bs.Report.recordError(st.Name, se)
			g.recorder.IncStageResult(string(st.Name), metrics.ResultFatal)
			return se
		}
	}
	return nil
}
