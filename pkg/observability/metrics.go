package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/kadirpekel/mydocs-mcp/pkg/config"
)

// Metrics records server instrumentation. All methods are safe on a nil or
// zero-value receiver, so call sites never need enabled checks.
type Metrics struct {
	toolInvocations  metric.Int64Counter
	toolDuration     metric.Float64Histogram
	documentsIndexed metric.Int64Counter
	cacheEvents      metric.Int64Counter
	watcherEvents    metric.Int64Counter
}

// InitMetrics sets up the otel meter with the Prometheus exporter. When
// metrics are disabled it returns a no-op recorder.
func InitMetrics(ctx context.Context, cfg config.MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{}, nil
	}

	promExporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(promExporter),
	)

	meter := meterProvider.Meter("mydocs-mcp")

	toolInvocations, err := meter.Int64Counter(
		"mydocs_tool_invocations_total",
		metric.WithDescription("Total tool invocations"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool invocations counter: %w", err)
	}

	toolDuration, err := meter.Float64Histogram(
		"mydocs_tool_duration_seconds",
		metric.WithDescription("Tool invocation duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool duration histogram: %w", err)
	}

	documentsIndexed, err := meter.Int64Counter(
		"mydocs_documents_indexed_total",
		metric.WithDescription("Total documents indexed"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create documents indexed counter: %w", err)
	}

	cacheEvents, err := meter.Int64Counter(
		"mydocs_search_cache_events_total",
		metric.WithDescription("Search cache hits and misses"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache events counter: %w", err)
	}

	watcherEvents, err := meter.Int64Counter(
		"mydocs_watcher_events_total",
		metric.WithDescription("Filesystem watcher events processed"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher events counter: %w", err)
	}

	return &Metrics{
		toolInvocations:  toolInvocations,
		toolDuration:     toolDuration,
		documentsIndexed: documentsIndexed,
		cacheEvents:      cacheEvents,
		watcherEvents:    watcherEvents,
	}, nil
}

// RecordToolInvocation records one tool call with its outcome and duration.
func (m *Metrics) RecordToolInvocation(ctx context.Context, tool string, duration time.Duration, err error) {
	if m == nil || m.toolInvocations == nil || m.toolDuration == nil {
		return
	}

	status := "ok"
	if err != nil {
		status = "error"
	}

	m.toolInvocations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("status", status),
	))
	m.toolDuration.Record(ctx, duration.Seconds(),
		metric.WithAttributes(attribute.String("tool", tool)))
}

// RecordDocumentsIndexed adds to the indexed-documents counter.
func (m *Metrics) RecordDocumentsIndexed(ctx context.Context, count int64) {
	if m == nil || m.documentsIndexed == nil {
		return
	}
	m.documentsIndexed.Add(ctx, count)
}

// RecordCacheEvent records a search cache hit or miss.
func (m *Metrics) RecordCacheEvent(ctx context.Context, hit bool) {
	if m == nil || m.cacheEvents == nil {
		return
	}

	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.cacheEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordWatcherEvent records one processed filesystem event.
func (m *Metrics) RecordWatcherEvent(ctx context.Context, op string) {
	if m == nil || m.watcherEvents == nil {
		return
	}
	m.watcherEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}
