package pods

import (
	"context"
	"log/slog"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/kubeadapt/gke-tpu-exporter/internal/convert"
	exporterrors "github.com/kubeadapt/gke-tpu-exporter/internal/errors"
	"github.com/kubeadapt/gke-tpu-exporter/internal/observability"
)

const name = "pods"

// ErrorReporter records component failures that do not fail the step.
type ErrorReporter interface {
	ReportError(component string, err error)
}

// Collector counts running and pending TPU pods per namespace and
// accelerator type and publishes the resource requests of running ones.
type Collector struct {
	client   kubernetes.Interface
	reporter ErrorReporter
	metrics  *observability.Metrics
	gauges   observability.GaugeSet
}

// NewCollector creates a pod placement collector. reporter may be nil.
func NewCollector(client kubernetes.Interface, reporter ErrorReporter, m *observability.Metrics) *Collector {
	return &Collector{
		client:   client,
		reporter: reporter,
		metrics:  m,
		gauges:   m.PodGauges(),
	}
}

// Name implements collector.Collector.
func (c *Collector) Name() string { return name }

// Reset clears every pod series.
func (c *Collector) Reset() {
	c.gauges.Reset()
}

type countKey struct {
	namespace, tpuType string
}

// Collect runs one pod placement pass.
func (c *Collector) Collect(ctx context.Context) (map[string]int, error) {
	c.gauges.Begin()
	running, err := c.listPods(ctx, corev1.PodRunning)
	if err != nil {
		return nil, err
	}
	pending, err := c.listPods(ctx, corev1.PodPending)
	if err != nil {
		return nil, err
	}

	nodes := newNodeTypeCache(c.client)
	runningCounts := make(map[countKey]int)
	pendingCounts := make(map[countKey]int)
	invalidRequests := 0

	for i := range running {
		podRecord := &running[i]
		podName, nodeName := podRecord.Name, podRecord.Spec.NodeName
		if podRecord.Status.Phase != corev1.PodRunning || nodeName == "" || !convert.RequestsTPU(podRecord) {
			continue
		}
		tpuType, ok := nodes.lookup(ctx, nodeName)
		if !ok {
			continue
		}
		runningCounts[countKey{podRecord.Namespace, tpuType}]++

		sums, err := convert.SumPodRequests(podRecord)
		if err != nil {
			invalidRequests++
			slog.Warn("skipping unparsable pod requests", "pod", podName, "namespace", podRecord.Namespace, "error", err)
			c.report(err)
		}
		for res, v := range sums {
			c.metrics.PodRequests.Set(v, podName, podRecord.Namespace, nodeName, res)
		}
	}

	for i := range pending {
		podRecord := &pending[i]
		if podRecord.Status.Phase != corev1.PodPending || !convert.RequestsTPU(podRecord) {
			continue
		}
		pendingCounts[countKey{podRecord.Namespace, convert.PendingPodTPUType(podRecord)}]++
	}

	for k, n := range runningCounts {
		c.metrics.ClusterTPUPodsRunning.Set(float64(n), k.namespace, k.tpuType)
	}
	for k, n := range pendingCounts {
		c.metrics.ClusterTPUPodsPending.Set(float64(n), k.namespace, k.tpuType)
	}

	if removed := c.gauges.Sweep(); removed > 0 {
		c.metrics.StaleSeriesRemovedTotal.WithLabelValues(name).Add(float64(removed))
	}

	return map[string]int{
		"running":          sumCounts(runningCounts),
		"pending":          sumCounts(pendingCounts),
		"node_reads":       nodes.reads,
		"invalid_requests": invalidRequests,
	}, nil
}

func (c *Collector) listPods(ctx context.Context, phase corev1.PodPhase) ([]corev1.Pod, error) {
	list, err := c.client.CoreV1().Pods(metav1.NamespaceAll).List(ctx, metav1.ListOptions{
		FieldSelector: "status.phase=" + string(phase),
	})
	if err != nil {
		return nil, exporterrors.Wrap(exporterrors.ErrPodListFailed, name, "list "+string(phase)+" pods", err)
	}
	return list.Items, nil
}

func (c *Collector) report(err error) {
	if c.reporter != nil {
		c.reporter.ReportError(name, err)
	}
}

func sumCounts(m map[countKey]int) int {
	n := 0
	for _, v := range m {
		n += v
	}
	return n
}
