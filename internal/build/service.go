package build

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sitewright/sitewright/internal/logfields"
	"github.com/sitewright/sitewright/internal/metrics"
	"github.com/sitewright/sitewright/internal/observability"
	"github.com/sitewright/sitewright/internal/publish"
	"github.com/sitewright/sitewright/internal/site"
)

// Cycle outcomes, mirrored into metrics and the build history.
const (
	CycleSuccess          = "success"
	CycleGenerationFailed = "generation_failed"
	CyclePublishFailed    = "publish_failed"
	CycleCanceled         = "canceled"
)

// CycleRecord summarizes one completed build cycle for history and
// notification consumers.
type CycleRecord struct {
	BuildID    string    `json:"build_id"`
	Reason     string    `json:"reason"`
	Outcome    string    `json:"outcome"`
	Pages      int       `json:"pages"`
	Assets     int       `json:"assets"`
	Warnings   int       `json:"warnings"`
	DurationMS int64     `json:"duration_ms"`
	Commit     string    `json:"commit,omitempty"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
}

// HistoryStore persists cycle records. Append failures must not fail the
// cycle; the Service logs and moves on.
type HistoryStore interface {
	Append(ctx context.Context, rec CycleRecord) error
}

// Notifier announces completed cycles to external listeners.
type Notifier interface {
	Announce(ctx context.Context, rec CycleRecord) error
}

// Service executes complete build cycles: generate into staging, swap
// staging to live, then fan the result out to history, notification, and
// any publish hook. Every execution path routes through RunCycle, so the
// one-shot command and the watch daemon behave identically per cycle.
type Service struct {
	generator *site.Generator
	publisher *publish.Publisher
	logger    *slog.Logger
	recorder  metrics.Recorder

	history    HistoryStore
	notifier   Notifier
	onPublish  func(*site.BuildReport)
	onCycleEnd func(CycleRecord)
	commitFn   func() string
}

// NewService wires a Service from its required collaborators.
func NewService(generator *site.Generator, publisher *publish.Publisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		generator: generator,
		publisher: publisher,
		logger:    logger,
		recorder:  metrics.NoopRecorder{},
	}
}

// SetRecorder installs a metrics recorder. Returns the service for chaining.
func (s *Service) SetRecorder(r metrics.Recorder) *Service {
	if r != nil {
		s.recorder = r
	}
	return s
}

// SetHistory installs a cycle history store.
func (s *Service) SetHistory(h HistoryStore) *Service {
	s.history = h
	return s
}

// SetNotifier installs a cycle announcer.
func (s *Service) SetNotifier(n Notifier) *Service {
	s.notifier = n
	return s
}

// SetOnPublish installs a hook invoked after each successful publish, with
// the cycle's build report. Used by the daemon to trigger live reloads.
func (s *Service) SetOnPublish(fn func(*site.BuildReport)) *Service {
	s.onPublish = fn
	return s
}

// SetOnCycleEnd installs a hook invoked after every cycle, success or not,
// with the finished record. Used by the daemon to expose build status.
func (s *Service) SetOnCycleEnd(fn func(CycleRecord)) *Service {
	s.onCycleEnd = fn
	return s
}

// SetCommitFunc installs a resolver for the current source commit, consulted
// once per cycle.
func (s *Service) SetCommitFunc(fn func() string) *Service {
	s.commitFn = fn
	return s
}

// RunCycle executes one generate-and-publish cycle.
//
// The live directory is replaced only when generation succeeds and the swap
// completes; any failure before the swap leaves the previous deployment
// byte-identical. The returned report is nil when generation never produced
// one.
func (s *Service) RunCycle(ctx context.Context, reason string) (*site.BuildReport, error) {
	start := time.Now()
	buildID := uuid.NewString()
	ctx = observability.WithBuildID(ctx, buildID)
	ctx = observability.WithReason(ctx, reason)

	rec := CycleRecord{BuildID: buildID, Reason: reason, StartedAt: start}
	if s.commitFn != nil {
		rec.Commit = s.commitFn()
		s.generator.SetCommit(rec.Commit)
	}

	observability.InfoContext(ctx, "Build cycle started")

	staging, err := s.publisher.BeginStaging()
	if err != nil {
		rec.Outcome = CyclePublishFailed
		return nil, s.finishCycle(ctx, rec, start, nil, err)
	}

	report, err := s.generator.Generate(ctx, staging)
	if err != nil {
		s.publisher.AbortStaging()
		rec.Outcome = CycleGenerationFailed
		if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
			rec.Outcome = CycleCanceled
		}
		return report, s.finishCycle(ctx, rec, start, report, err)
	}

	if err := s.publisher.Publish(); err != nil {
		// Staging stays behind; the next BeginStaging reclaims it.
		rec.Outcome = CyclePublishFailed
		return report, s.finishCycle(ctx, rec, start, report, err)
	}

	rec.Outcome = CycleSuccess
	if err := s.finishCycle(ctx, rec, start, report, nil); err != nil {
		return report, err
	}

	if s.onPublish != nil {
		s.onPublish(report)
	}
	return report, nil
}

// finishCycle records metrics, appends history, and announces the cycle.
// History and notification failures are logged, never returned; the cycle's
// own error passes through unchanged.
func (s *Service) finishCycle(ctx context.Context, rec CycleRecord, start time.Time, report *site.BuildReport, cycleErr error) error {
	elapsed := time.Since(start)
	rec.DurationMS = elapsed.Milliseconds()
	if report != nil {
		rec.Pages = report.RenderedPages
		rec.Assets = report.Assets
		rec.Warnings = len(report.Warnings)
	}
	if cycleErr != nil {
		rec.Error = cycleErr.Error()
	}

	s.recorder.ObserveCycleDuration(elapsed)
	s.recorder.IncCycleOutcome(rec.Outcome)
	if s.onCycleEnd != nil {
		s.onCycleEnd(rec)
	}

	switch rec.Outcome {
	case CycleSuccess:
		observability.InfoContext(ctx, "Build cycle completed",
			logfields.Outcome(rec.Outcome),
			logfields.Pages(rec.Pages),
			logfields.Assets(rec.Assets),
			logfields.DurationMS(float64(rec.DurationMS)))
	case CycleCanceled:
		observability.InfoContext(ctx, "Build cycle canceled",
			logfields.DurationMS(float64(rec.DurationMS)))
	default:
		observability.ErrorContext(ctx, "Build cycle failed",
			logfields.Outcome(rec.Outcome),
			logfields.Error(cycleErr),
			logfields.DurationMS(float64(rec.DurationMS)))
	}

	// The cycle context is already canceled when the outcome is canceled;
	// bookkeeping still has to land, so detach from cancellation.
	bookCtx := context.WithoutCancel(ctx)
	if s.history != nil {
		if err := s.history.Append(bookCtx, rec); err != nil {
			observability.WarnContext(ctx, "Failed to append build history", logfields.Error(err))
		}
	}
	if s.notifier != nil && rec.Outcome != CycleCanceled {
		if err := s.notifier.Announce(bookCtx, rec); err != nil {
			observability.WarnContext(ctx, "Failed to announce build cycle", logfields.Error(err))
		}
	}

	return cycleErr
}
