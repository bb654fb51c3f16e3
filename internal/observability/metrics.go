// Package observability exports engine metrics through OpenTelemetry's
// Prometheus exporter and serves them with health information over HTTP.
package observability

import (
	"context"
	"fmt"
	"net/http"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"docsync/internal/docsync"
)

// Metrics implements docsync.Recorder on OpenTelemetry instruments.
type Metrics struct {
	provider *sdkmetric.MeterProvider
	registry *promclient.Registry

	cycles        metric.Int64Counter
	cycleDuration metric.Float64Histogram
	files         metric.Int64Counter
	removed       metric.Int64Counter
	droppedTicks  metric.Int64Counter
	embeddings    metric.Int64Counter
	indexWrites   metric.Int64Counter
}

// NewMetrics creates the instruments on a private Prometheus registry.
func NewMetrics() (*Metrics, error) {
	registry := promclient.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter("docsync")
	m := &Metrics{provider: provider, registry: registry}

	if m.cycles, err = meter.Int64Counter(
		"docsync_cycles_total",
		metric.WithDescription("Sync cycles by terminal status"),
	); err != nil {
		return nil, fmt.Errorf("failed to create cycles counter: %w", err)
	}
	if m.cycleDuration, err = meter.Float64Histogram(
		"docsync_cycle_duration_seconds",
		metric.WithDescription("Sync cycle duration in seconds"),
	); err != nil {
		return nil, fmt.Errorf("failed to create cycle duration histogram: %w", err)
	}
	if m.files, err = meter.Int64Counter(
		"docsync_files_total",
		metric.WithDescription("Reconciled files by action"),
	); err != nil {
		return nil, fmt.Errorf("failed to create files counter: %w", err)
	}
	if m.removed, err = meter.Int64Counter(
		"docsync_gc_removed_total",
		metric.WithDescription("File records removed by generation garbage collection"),
	); err != nil {
		return nil, fmt.Errorf("failed to create gc counter: %w", err)
	}
	if m.droppedTicks, err = meter.Int64Counter(
		"docsync_dropped_ticks_total",
		metric.WithDescription("Scheduled or requested cycles dropped because a cycle was running"),
	); err != nil {
		return nil, fmt.Errorf("failed to create dropped ticks counter: %w", err)
	}
	if m.embeddings, err = meter.Int64Counter(
		"docsync_embeddings_total",
		metric.WithDescription("Embedding calls by result"),
	); err != nil {
		return nil, fmt.Errorf("failed to create embeddings counter: %w", err)
	}
	if m.indexWrites, err = meter.Int64Counter(
		"docsync_index_writes_total",
		metric.WithDescription("Index document writes by result"),
	); err != nil {
		return nil, fmt.Errorf("failed to create index writes counter: %w", err)
	}
	return m, nil
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops the meter provider.
func (m *Metrics) Shutdown(ctx context.Context) error {
	return m.provider.Shutdown(ctx)
}

func (m *Metrics) RecordCycle(ctx context.Context, r *docsync.CycleReport) {
	m.cycles.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(r.Status))))
	m.cycleDuration.Record(ctx, r.Duration().Seconds())

	for action, n := range map[docsync.Action]int{
		docsync.ActionNew:               r.New,
		docsync.ActionUnchanged:         r.Unchanged,
		docsync.ActionAttributesChanged: r.AttrsChanged,
		docsync.ActionContentChanged:    r.Changed,
		docsync.ActionFailed:            r.Failed,
	} {
		if n > 0 {
			m.files.Add(ctx, int64(n), metric.WithAttributes(attribute.String("action", string(action))))
		}
	}
	if r.Removed > 0 {
		m.removed.Add(ctx, int64(r.Removed))
	}
}

func (m *Metrics) RecordDroppedTick(ctx context.Context) {
	m.droppedTicks.Add(ctx, 1)
}

func (m *Metrics) RecordEmbedding(ctx context.Context, err error) {
	m.embeddings.Add(ctx, 1, metric.WithAttributes(result(err)))
}

func (m *Metrics) RecordIndexWrite(ctx context.Context, err error) {
	m.indexWrites.Add(ctx, 1, metric.WithAttributes(result(err)))
}

func result(err error) attribute.KeyValue {
	if err != nil {
		return attribute.String("result", "error")
	}
	return attribute.String("result", "ok")
}

var _ docsync.Recorder = (*Metrics)(nil)
