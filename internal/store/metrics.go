package store

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/muscab101/weather-app/internal/weather"
)

// MetricsCache records hit/miss counts and latency of the wrapped cache.
type MetricsCache struct {
	next weather.Cache
	hist *prometheus.HistogramVec
	cnt  *prometheus.CounterVec
}

// NewMetricsCache registers the cache collectors on reg and wraps next.
func NewMetricsCache(next weather.Cache, reg prometheus.Registerer) (*MetricsCache, error) {
	hist := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "weather_app",
			Name:      "cache_operation_duration_seconds",
			Help:      "Cache operation latencies",
		},
		[]string{"operation"},
	)
	cnt := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "weather_app",
			Name:      "cache_operations_total",
			Help:      "Cache operation counts",
		},
		[]string{"operation", "result"},
	)
	for _, c := range []prometheus.Collector{hist, cnt} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return &MetricsCache{next: next, hist: hist, cnt: cnt}, nil
}

func (m *MetricsCache) Get(ctx context.Context, key string) (weather.Snapshot, bool) {
	start := time.Now()
	snap, ok := m.next.Get(ctx, key)
	m.hist.WithLabelValues("get").Observe(time.Since(start).Seconds())

	result := "miss"
	if ok {
		result = "hit"
	}
	m.cnt.WithLabelValues("get", result).Inc()
	return snap, ok
}

func (m *MetricsCache) Put(ctx context.Context, key string, snapshot weather.Snapshot) error {
	start := time.Now()
	err := m.next.Put(ctx, key, snapshot)
	m.hist.WithLabelValues("put").Observe(time.Since(start).Seconds())

	result := "success"
	if err != nil {
		result = "error"
	}
	m.cnt.WithLabelValues("put", result).Inc()
	return err
}
