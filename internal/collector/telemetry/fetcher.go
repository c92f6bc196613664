package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
	monitoring "google.golang.org/api/monitoring/v3"
	"k8s.io/utils/clock"

	exporterrors "github.com/kubeadapt/gke-tpu-exporter/internal/errors"
	"github.com/kubeadapt/gke-tpu-exporter/internal/observability"
)

const (
	component = "telemetry"

	// metricTypePrefix is prepended to every metric suffix.
	metricTypePrefix = "tpu.googleapis.com/instance/"

	// DefaultWindow is how far back each query looks.
	DefaultWindow = 5 * time.Minute
)

// target binds a Cloud Monitoring metric suffix to the gauge it feeds.
type target struct {
	suffix string
	gauge  *observability.TrackedGaugeVec
}

func targets(m *observability.Metrics) []target {
	return []target{
		{"memory/usage", m.TPUMemoryUsage},
		{"cpu/utilization", m.TPUCPUUtilization},
		{"network/received_bytes_count", m.TPUNetworkReceived},
		{"network/sent_bytes_count", m.TPUNetworkSent},
		{"tpu/tensorcore/idle_duration", m.TPUTensorCoreIdle},
		{"accelerator/tensorcore_utilization", m.TPUTensorCoreUtilization},
		{"accelerator/memory_bandwidth_utilization", m.TPUMemoryBandwidthUtilization},
		{"accelerator/duty_cycle", m.TPUDutyCycle},
		{"accelerator/memory_total", m.TPUMemoryTotal},
		{"accelerator/memory_used", m.TPUMemoryUsed},
	}
}

// Fetcher queries Cloud Monitoring for the telemetry of one node at a time.
type Fetcher struct {
	api     MonitoringAPI
	project string
	window  time.Duration
	limiter *rate.Limiter
	clock   clock.PassiveClock
	targets []target
	metrics *observability.Metrics
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithWindow overrides DefaultWindow.
func WithWindow(d time.Duration) Option {
	return func(f *Fetcher) { f.window = d }
}

// WithLimiter paces queries through l.
func WithLimiter(l *rate.Limiter) Option {
	return func(f *Fetcher) { f.limiter = l }
}

// WithClock overrides the clock used to compute the query window.
func WithClock(c clock.PassiveClock) Option {
	return func(f *Fetcher) { f.clock = c }
}

// NewFetcher creates a Fetcher for the given project. Without WithLimiter
// queries are not paced.
func NewFetcher(api MonitoringAPI, project string, m *observability.Metrics, opts ...Option) *Fetcher {
	f := &Fetcher{
		api:     api,
		project: project,
		window:  DefaultWindow,
		limiter: rate.NewLimiter(rate.Inf, 1),
		clock:   clock.RealClock{},
		targets: targets(m),
		metrics: m,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Filter builds the time-series filter for one metric suffix and node.
func Filter(suffix, node string) string {
	return fmt.Sprintf(`metric.type="%s%s" AND resource.labels.node_id="%s"`, metricTypePrefix, suffix, node)
}

// FetchNode queries every telemetry metric for node and sets the matching
// gauges labeled (node, tpuType). A failed sub-query is logged at debug
// level and skipped. An error is returned only when the whole fetch had to
// stop, e.g. because ctx is done.
func (f *Fetcher) FetchNode(ctx context.Context, node, tpuType string) error {
	end := f.clock.Now()
	start := end.Add(-f.window)

	for _, t := range f.targets {
		if err := f.limiter.Wait(ctx); err != nil {
			slog.Warn("failed to fetch TPU telemetry", "node", node, "error", err)
			return exporterrors.Wrap(exporterrors.ErrTelemetryFailed, component, "fetch telemetry for node "+node, err)
		}

		series, err := f.api.ListTimeSeries(ctx, f.project, Filter(t.suffix, node), start, end)
		if err != nil {
			f.metrics.TelemetryQueriesTotal.WithLabelValues("error").Inc()
			slog.Debug("telemetry metric unavailable", "metric", t.suffix, "node", node, "error", err)
			continue
		}

		set := 0
		for _, ts := range series {
			if v, ok := latestValue(ts); ok {
				t.gauge.Set(v, node, tpuType)
				set++
			}
		}
		if set == 0 {
			f.metrics.TelemetryQueriesTotal.WithLabelValues("empty").Inc()
			continue
		}
		f.metrics.TelemetryQueriesTotal.WithLabelValues("success").Inc()
	}
	return nil
}

// latestValue returns the first point of the series. Cloud Monitoring
// returns points newest first.
func latestValue(ts *monitoring.TimeSeries) (float64, bool) {
	if ts == nil || len(ts.Points) == 0 {
		return 0, false
	}
	p := ts.Points[0]
	if p == nil || p.Value == nil {
		return 0, false
	}
	switch {
	case p.Value.DoubleValue != nil:
		return *p.Value.DoubleValue, true
	case p.Value.Int64Value != nil:
		return float64(*p.Value.Int64Value), true
	}
	return 0, false
}
