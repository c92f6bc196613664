package collector

import (
	"context"
	"errors"
)

// ErrNoTargets is returned by a collector that found nothing to report on.
// It is not a failure: the registry marks the remaining collectors of the
// cycle as skipped and clears their series.
var ErrNoTargets = errors.New("no targets found")

// Collector is the interface that all metric collectors implement.
type Collector interface {
	// Name returns the collector's name (e.g., "cluster", "nodes", "pods").
	Name() string
	// Collect runs one collection pass and publishes its gauges. The
	// returned counts are informational and end up in the cycle summary.
	Collect(ctx context.Context) (map[string]int, error)
}

// Resetter is implemented by collectors whose series must be cleared when
// a cycle skips them.
type Resetter interface {
	Reset()
}
