package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/leafsii/postboard-backend/internal/posts"
)

type Metrics struct {
	HTTPRequests      metric.Int64Counter
	HTTPDuration      metric.Float64Histogram
	CacheHits         metric.Int64Counter
	CacheMisses       metric.Int64Counter
	PostMutations     metric.Int64Counter
	ActiveConnections metric.Int64UpDownCounter
}

// Setup registers the instruments with the default Prometheus registry and
// installs the provider globally.
func Setup(serviceName string) (*Metrics, http.Handler, error) {
	m, provider, err := build(serviceName, prometheus.WithRegisterer(promclient.DefaultRegisterer))
	if err != nil {
		return nil, nil, err
	}
	otel.SetMeterProvider(provider)
	return m, promhttp.Handler(), nil
}

// NewWithRegistry builds an isolated set of instruments exported through reg.
func NewWithRegistry(serviceName string, reg *promclient.Registry) (*Metrics, http.Handler, error) {
	m, _, err := build(serviceName, prometheus.WithRegisterer(reg))
	if err != nil {
		return nil, nil, err
	}
	return m, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil
}

func build(serviceName string, opts ...prometheus.Option) (*Metrics, *sdkmetric.MeterProvider, error) {
	exporter, err := prometheus.New(opts...)
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter(serviceName)

	m := &Metrics{}

	m.HTTPRequests, err = meter.Int64Counter(
		"pb_http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPDuration, err = meter.Float64Histogram(
		"pb_http_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.CacheHits, err = meter.Int64Counter(
		"pb_cache_hits_total",
		metric.WithDescription("Total number of cache hits"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.CacheMisses, err = meter.Int64Counter(
		"pb_cache_misses_total",
		metric.WithDescription("Total number of cache misses"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.PostMutations, err = meter.Int64Counter(
		"pb_post_mutations_total",
		metric.WithDescription("Post mutations by operation and outcome"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.ActiveConnections, err = meter.Int64UpDownCounter(
		"pb_websocket_connections",
		metric.WithDescription("Number of active WebSocket connections"),
	)
	if err != nil {
		return nil, nil, err
	}

	return m, provider, nil
}

func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, status int, duration time.Duration) {
	labels := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.Int("status", status),
	)

	m.HTTPRequests.Add(ctx, 1, labels)
	m.HTTPDuration.Record(ctx, duration.Seconds(), labels)
}

// RecordCacheHit takes the keyspace, not the full key, to bound cardinality.
func (m *Metrics) RecordCacheHit(ctx context.Context, keyspace string) {
	m.CacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("keyspace", keyspace)))
}

func (m *Metrics) RecordCacheMiss(ctx context.Context, keyspace string) {
	m.CacheMisses.Add(ctx, 1, metric.WithAttributes(attribute.String("keyspace", keyspace)))
}

func (m *Metrics) RecordPostMutation(ctx context.Context, op string, err error) {
	m.PostMutations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("outcome", Outcome(err)),
	))
}

// Outcome names the error kind of err for metric labels.
func Outcome(err error) string {
	switch kind := posts.Classify(err); {
	case kind == nil:
		return "ok"
	case errors.Is(kind, posts.ErrValidation):
		return "validation"
	case errors.Is(kind, posts.ErrNotFound):
		return "not_found"
	case errors.Is(kind, posts.ErrConflict):
		return "conflict"
	case errors.Is(kind, posts.ErrTransient):
		return "unavailable"
	default:
		return "internal"
	}
}

func (m *Metrics) IncrementConnections(ctx context.Context) {
	m.ActiveConnections.Add(ctx, 1)
}

func (m *Metrics) DecrementConnections(ctx context.Context) {
	m.ActiveConnections.Add(ctx, -1)
}
