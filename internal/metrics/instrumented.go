package metrics

import (
	"context"

	"go.opentelemetry.io/otel/metric"
)

// Observe publishes the collector's counters as OTel observable
// instruments on meter, so they reach whatever exporter telemetry.Init
// installed. The returned registration should be unregistered on shutdown.
func Observe(meter metric.Meter, c *Collector) (metric.Registration, error) {
	files, err := meter.Int64ObservableCounter("ctrap.metrics.files",
		metric.WithDescription("Files analyzed"))
	if err != nil {
		return nil, err
	}
	hits, err := meter.Int64ObservableCounter("ctrap.metrics.cache_hits",
		metric.WithDescription("Result cache hits"))
	if err != nil {
		return nil, err
	}
	misses, err := meter.Int64ObservableCounter("ctrap.metrics.cache_misses",
		metric.WithDescription("Result cache misses"))
	if err != nil {
		return nil, err
	}
	p95, err := meter.Float64ObservableGauge("ctrap.metrics.p95_ms",
		metric.WithDescription("95th percentile per-file analysis time"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	return meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s := c.Stats()
		o.ObserveInt64(files, s.TotalFiles)
		o.ObserveInt64(hits, s.CacheHits)
		o.ObserveInt64(misses, s.CacheMisses)
		o.ObserveFloat64(p95, s.P95DurationMs)
		return nil
	}, files, hits, misses, p95)
}
