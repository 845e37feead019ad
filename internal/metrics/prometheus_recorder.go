package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "sitewright"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	stageDuration *prom.HistogramVec
	cycleDuration prom.Histogram
	stageResults  *prom.CounterVec
	cycleOutcomes *prom.CounterVec
	changeSignals prom.Counter
	watchedDirs   prom.Gauge
	reloadClients prom.Gauge
}

// NewPrometheusRecorder constructs and registers the metric set on reg.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		stageDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual generation stages",
			Buckets:   prom.DefBuckets,
		}, []string{"stage"}),
		cycleDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Total duration of one generate-and-publish cycle",
			Buckets:   prom.DefBuckets,
		}),
		stageResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "stage_results_total",
			Help:      "Stage result counts by outcome",
		}, []string{"stage", "result"}),
		cycleOutcomes: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "cycle_outcomes_total",
			Help:      "Build cycle outcomes by final status",
		}, []string{"outcome"}),
		changeSignals: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "change_signals_total",
			Help:      "Filesystem change signals observed by the watcher",
		}),
		watchedDirs: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "watched_directories",
			Help:      "Directories currently registered with the watcher",
		}),
		reloadClients: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "livereload_clients",
			Help:      "Connected live-reload subscribers",
		}),
	}
	reg.MustRegister(
		pr.stageDuration,
		pr.cycleDuration,
		pr.stageResults,
		pr.cycleOutcomes,
		pr.changeSignals,
		pr.watchedDirs,
		pr.reloadClients,
	)
	return pr
}

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	if p == nil || p.stageDuration == nil {
		return
	}
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveCycleDuration(d time.Duration) {
	if p == nil || p.cycleDuration == nil {
		return
	}
	p.cycleDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStageResult(stage string, result ResultLabel) {
	if p == nil || p.stageResults == nil {
		return
	}
	p.stageResults.WithLabelValues(stage, string(result)).Inc()
}

func (p *PrometheusRecorder) IncCycleOutcome(outcome string) {
	if p == nil || p.cycleOutcomes == nil {
		return
	}
	p.cycleOutcomes.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) AddChangeSignals(n int) {
	if p == nil || p.changeSignals == nil || n <= 0 {
		return
	}
	p.changeSignals.Add(float64(n))
}

func (p *PrometheusRecorder) SetWatchedDirs(n int) {
	if p == nil || p.watchedDirs == nil {
		return
	}
	p.watchedDirs.Set(float64(n))
}

func (p *PrometheusRecorder) AddReloadClients(delta int) {
	if p == nil || p.reloadClients == nil {
		return
	}
	p.reloadClients.Add(float64(delta))
}
