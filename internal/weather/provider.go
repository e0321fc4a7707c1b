package weather

import "context"

// Provider abstracts the remote weather source. Current and Forecast are
// independent requests and may be issued concurrently.
type Provider interface {
	Name() string
	Current(ctx context.Context, q Query) (CurrentConditions, error)
	Forecast(ctx context.Context, q Query) ([]ForecastSample, error)
}

// Cache is the contract for snapshot caches keyed by CoordinateKey.
// A failed read is reported as a miss.
type Cache interface {
	Get(ctx context.Context, key string) (Snapshot, bool)
	Put(ctx context.Context, key string, snapshot Snapshot) error
}
