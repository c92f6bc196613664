package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"k8s.io/utils/clock"

	exporterrors "github.com/kubeadapt/gke-tpu-exporter/internal/errors"
	"github.com/kubeadapt/gke-tpu-exporter/pkg/model"
)

// Registry holds the collectors of a cycle and runs them in registration
// order. Register and CollectAll can be called from different goroutines.
type Registry struct {
	collectors []Collector
	mu         sync.Mutex
	clock      clock.PassiveClock
}

// NewRegistry creates a new, empty Registry.
func NewRegistry(clk clock.PassiveClock) *Registry {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Registry{clock: clk}
}

// Register adds a collector to the registry.
func (r *Registry) Register(c Collector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.collectors = append(r.collectors, c)
}

// Collectors returns the registered collectors.
func (r *Registry) Collectors() []Collector {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Collector, len(r.collectors))
	copy(out, r.collectors)
	return out
}

// CollectAll runs every registered collector sequentially, each inside its
// own failure boundary. A failing or panicking collector does not stop the
// ones after it. When a collector returns ErrNoTargets, the remaining
// collectors are skipped and reset. Once ctx is done, the remaining
// collectors are marked canceled without running.
func (r *Registry) CollectAll(ctx context.Context) []model.StepResult {
	collectors := r.Collectors()
	results := make([]model.StepResult, 0, len(collectors))

	skipRest := false
	for _, c := range collectors {
		if skipRest {
			if rs, ok := c.(Resetter); ok {
				rs.Reset()
			}
			results = append(results, model.StepResult{Name: c.Name(), Skipped: true})
			continue
		}
		if err := ctx.Err(); err != nil {
			res := model.StepResult{Name: c.Name(), Skipped: true}
			setError(&res, exporterrors.Wrap(exporterrors.ErrCanceled, c.Name(), "cycle canceled", err))
			results = append(results, res)
			continue
		}

		res, err := r.run(ctx, c)
		switch {
		case errors.Is(err, ErrNoTargets):
			skipRest = true
		case err != nil:
			setError(&res, err)
			slog.Error("collector failed", "collector", c.Name(), "code", res.ErrorCode, "error", err)
		}
		results = append(results, res)
	}

	return results
}

// run executes a single collector and converts a panic into an error.
func (r *Registry) run(ctx context.Context, c Collector) (res model.StepResult, err error) {
	res.Name = c.Name()
	start := r.clock.Now()

	defer func() {
		if p := recover(); p != nil {
			err = exporterrors.New(exporterrors.ErrCollectorPanic, c.Name(), fmt.Sprintf("collector panicked: %v", p))
		}
		res.DurationMillis = r.clock.Since(start).Milliseconds()
	}()

	counts, err := c.Collect(ctx)
	res.Counts = counts
	return res, err
}

func setError(res *model.StepResult, err error) {
	res.ErrorCode = string(exporterrors.CodeOf(err))
	res.Error = err.Error()
}

// Elapsed converts a step duration back to a time.Duration.
func Elapsed(res model.StepResult) time.Duration {
	return time.Duration(res.DurationMillis) * time.Millisecond
}
