package metrics

import "time"

// ResultLabel enumerates stage result categories for counters.
type ResultLabel string

const (
	ResultSuccess  ResultLabel = "success"
	ResultWarning  ResultLabel = "warning"
	ResultFatal    ResultLabel = "fatal"
	ResultCanceled ResultLabel = "canceled"
)

// Recorder defines observability hooks for cycle and stage metrics.
// Implementations must be safe with a zero value so injection stays optional.
type Recorder interface {
	ObserveStageDuration(stage string, d time.Duration)
	ObserveCycleDuration(d time.Duration)
	IncStageResult(stage string, result ResultLabel)
	IncCycleOutcome(outcome string) // outcome: success|generation_failed|publish_failed|canceled
	AddChangeSignals(n int)
	SetWatchedDirs(n int)
	AddReloadClients(delta int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics are not
// configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveStageDuration(string, time.Duration) {}
func (NoopRecorder) ObserveCycleDuration(time.Duration)         {}
func (NoopRecorder) IncStageResult(string, ResultLabel)         {}
func (NoopRecorder) IncCycleOutcome(string)                     {}
func (NoopRecorder) AddChangeSignals(int)                       {}
func (NoopRecorder) SetWatchedDirs(int)                         {}
func (NoopRecorder) AddReloadClients(int)                       {}
