// Package observe records wayfinder runtime metrics through the
// OpenTelemetry Metrics API. [InitProvider] bridges them to a Prometheus
// /metrics endpoint. Tests should build their own [Metrics] with
// [NewMetrics] and a manual reader instead of using [DefaultMetrics].
package observe

import (
	"context"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"wayfinder.ai/internal/sim/world"
)

const meterName = "wayfinder.ai"

// Metrics holds the metric instruments of one process. All fields are safe for
// concurrent use.
type Metrics struct {
	// PathLookups counts engine lookups (cache probe, then solve on a miss).
	PathLookups metric.Int64Counter
	CacheHits   metric.Int64Counter
	Solves      metric.Int64Counter

	// Outcomes counts per-agent results. Use with attribute.String("status", ...).
	Outcomes metric.Int64Counter

	TickDuration metric.Float64Histogram

	// CacheEntries tracks the path cache size.
	CacheEntries metric.Int64UpDownCounter

	ActiveSessions  metric.Int64UpDownCounter
	ActiveObservers metric.Int64UpDownCounter

	// HTTPRequestDuration: use with attribute.String("method", ...), attribute.String("path", ...).
	HTTPRequestDuration metric.Float64Histogram

	lastEntries atomic.Int64
}

// tickBuckets are in seconds; a tick at 5 Hz has a 200 ms budget.
var tickBuckets = []float64{
	0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.2, 0.5,
}

func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.PathLookups, err = m.Int64Counter("wayfinder.path.lookups",
		metric.WithDescription("Path engine lookups."),
	); err != nil {
		return nil, err
	}
	if met.CacheHits, err = m.Int64Counter("wayfinder.path.cache_hits",
		metric.WithDescription("Lookups served from the path cache."),
	); err != nil {
		return nil, err
	}
	if met.Solves, err = m.Int64Counter("wayfinder.path.solves",
		metric.WithDescription("Shortest path solves (cache misses)."),
	); err != nil {
		return nil, err
	}
	if met.Outcomes, err = m.Int64Counter("wayfinder.path.outcomes",
		metric.WithDescription("Pathfinding outcomes by status."),
	); err != nil {
		return nil, err
	}

	if met.TickDuration, err = m.Float64Histogram("wayfinder.tick.duration",
		metric.WithDescription("Wall time of one world tick."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(tickBuckets...),
	); err != nil {
		return nil, err
	}

	if met.CacheEntries, err = m.Int64UpDownCounter("wayfinder.cache.entries",
		metric.WithDescription("Entries held by the path cache."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("wayfinder.active_sessions",
		metric.WithDescription("Connected agent websocket sessions."),
	); err != nil {
		return nil, err
	}
	if met.ActiveObservers, err = m.Int64UpDownCounter("wayfinder.active_observers",
		metric.WithDescription("Connected observer websocket sessions."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("wayfinder.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level instance built from
// [otel.GetMeterProvider] on first use. Call it after [InitProvider].
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordTick implements world.TickRecorder.
func (m *Metrics) RecordTick(ctx context.Context, s world.TickStats) {
	if m == nil {
		return
	}
	m.TickDuration.Record(ctx, s.Duration.Seconds())
	if s.Lookups > 0 {
		m.PathLookups.Add(ctx, int64(s.Lookups))
	}
	if s.CacheHits > 0 {
		m.CacheHits.Add(ctx, int64(s.CacheHits))
	}
	if s.Solves > 0 {
		m.Solves.Add(ctx, int64(s.Solves))
	}
	m.addOutcomes(ctx, "FOUND", s.Found)
	m.addOutcomes(ctx, "NO_DESTINATION", s.NoDestination)
	m.addOutcomes(ctx, "NO_PATH", s.NoPath)

	cur := int64(s.CacheEntries)
	if prev := m.lastEntries.Swap(cur); prev != cur {
		m.CacheEntries.Add(ctx, cur-prev)
	}
}

func (m *Metrics) addOutcomes(ctx context.Context, status string, n int) {
	if n <= 0 {
		return
	}
	m.Outcomes.Add(ctx, int64(n), metric.WithAttributes(attribute.String("status", status)))
}

// SessionOpened and SessionClosed track agent websocket sessions.
func (m *Metrics) SessionOpened(ctx context.Context) {
	if m != nil {
		m.ActiveSessions.Add(ctx, 1)
	}
}

func (m *Metrics) SessionClosed(ctx context.Context) {
	if m != nil {
		m.ActiveSessions.Add(ctx, -1)
	}
}

func (m *Metrics) ObserverOpened(ctx context.Context) {
	if m != nil {
		m.ActiveObservers.Add(ctx, 1)
	}
}

func (m *Metrics) ObserverClosed(ctx context.Context) {
	if m != nil {
		m.ActiveObservers.Add(ctx, -1)
	}
}
