// Package metrics provides observability hooks for build cycles.
//
// Components receive a Recorder through dependency injection and never check
// whether metrics are enabled: NoopRecorder implements the interface with
// methods that do nothing, so the default is zero-overhead. When Prometheus
// metrics are configured, PrometheusRecorder is injected instead and the
// preview server exposes the registry at /metrics.
package metrics
