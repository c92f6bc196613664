package nodes

import (
	"context"
	"log/slog"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/kubeadapt/gke-tpu-exporter/internal/collector"
	"github.com/kubeadapt/gke-tpu-exporter/internal/convert"
	exporterrors "github.com/kubeadapt/gke-tpu-exporter/internal/errors"
	"github.com/kubeadapt/gke-tpu-exporter/internal/observability"
)

const name = "nodes"

// TelemetryFetcher fetches per-node telemetry.
type TelemetryFetcher interface {
	FetchNode(ctx context.Context, node, tpuType string) error
}

// ErrorReporter records component failures that do not fail the step.
type ErrorReporter interface {
	ReportError(component string, err error)
}

// Collector lists TPU nodes, publishes their capacity, allocatable and
// usage, and aggregates chip counts per accelerator type.
type Collector struct {
	client    kubernetes.Interface
	telemetry TelemetryFetcher
	reporter  ErrorReporter
	metrics   *observability.Metrics
	gauges    observability.GaugeSet
}

// NewCollector creates a node inventory collector. telemetry and reporter
// may be nil.
func NewCollector(client kubernetes.Interface, telemetry TelemetryFetcher, reporter ErrorReporter, m *observability.Metrics) *Collector {
	gauges := append(observability.GaugeSet{}, m.NodeGauges()...)
	gauges = append(gauges, m.TelemetryGauges()...)
	return &Collector{
		client:    client,
		telemetry: telemetry,
		reporter:  reporter,
		metrics:   m,
		gauges:    gauges,
	}
}

// Name implements collector.Collector.
func (c *Collector) Name() string { return name }

// Reset clears every node and telemetry series.
func (c *Collector) Reset() {
	c.gauges.Reset()
}

type countKey struct {
	tpuType, topology, zone string
}

// Collect runs one node inventory pass.
func (c *Collector) Collect(ctx context.Context) (map[string]int, error) {
	c.gauges.Begin()
	list, err := c.client.CoreV1().Nodes().List(ctx, metav1.ListOptions{
		LabelSelector: convert.LabelTPUAccelerator,
	})
	if err != nil {
		return nil, exporterrors.Wrap(exporterrors.ErrNodeListFailed, name, "list TPU nodes", err)
	}

	if len(list.Items) == 0 {
		slog.Warn("no TPU nodes found")
		c.Reset()
		return map[string]int{"nodes": 0}, collector.ErrNoTargets
	}

	nodeCounts := make(map[countKey]int)
	chipTotal := make(map[string]float64)
	chipAllocated := make(map[string]float64)
	invalid, telemetryFailures := 0, 0

	for i := range list.Items {
		rec := convert.NodeToRecord(&list.Items[i])

		fig, err := figuresFor(rec)
		if err != nil {
			invalid++
			slog.Warn("skipping TPU node with invalid resources", "node", rec.Name, "error", err)
			c.report(exporterrors.Wrap(exporterrors.ErrNodeInvalid, name, "parse node "+rec.Name, err))
			continue
		}

		nodeCounts[countKey{rec.TPUType, rec.Topology, rec.Zone}]++
		c.publishNode(fig)

		if fig.chips != nil {
			chipTotal[rec.TPUType] += fig.chips.capacity
			chipAllocated[rec.TPUType] += fig.chips.usage()
		}

		if c.telemetry != nil {
			if err := c.telemetry.FetchNode(ctx, rec.Name, rec.TPUType); err != nil {
				telemetryFailures++
				c.report(err)
			}
		}
	}

	for k, n := range nodeCounts {
		c.metrics.TPUNodeTotal.Set(float64(n), k.tpuType, k.topology, k.zone)
	}
	for tpuType, total := range chipTotal {
		allocated := chipAllocated[tpuType]
		c.metrics.ClusterTPUTotal.Set(total, tpuType)
		c.metrics.ClusterTPUAllocated.Set(allocated, tpuType)
		c.metrics.ClusterTPUAvailable.Set(total-allocated, tpuType)
	}

	if removed := c.gauges.Sweep(); removed > 0 {
		c.metrics.StaleSeriesRemovedTotal.WithLabelValues(name).Add(float64(removed))
	}

	published := len(list.Items) - invalid
	slog.Debug("node inventory collected", "nodes", published, "invalid", invalid)
	return map[string]int{
		"nodes":              published,
		"invalid_nodes":      invalid,
		"telemetry_failures": telemetryFailures,
	}, nil
}

func (c *Collector) publishNode(fig nodeFigures) {
	rec := fig.record
	for _, f := range fig.resources {
		c.publishResource(rec.Name, rec.TPUType, rec.Zone, f)
	}
	if fig.chips != nil {
		c.metrics.TPUChipTotal.Set(fig.chips.capacity, rec.Name, rec.TPUType, rec.Zone)
		c.publishResource(rec.Name, rec.TPUType, rec.Zone, *fig.chips)
	}
}

func (c *Collector) publishResource(node, tpuType, zone string, f resourceFigure) {
	c.metrics.NodeCapacity.Set(f.capacity, node, f.label, tpuType, zone)
	c.metrics.NodeAllocatable.Set(f.allocatable, node, f.label, tpuType, zone)
	c.metrics.NodeUsage.Set(f.usage(), node, f.label, tpuType, zone)
}

func (c *Collector) report(err error) {
	if c.reporter != nil {
		c.reporter.ReportError(name, err)
	}
}
