package nodes

import (
	"context"
	"errors"
	"sync"
	"testing"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/kubeadapt/gke-tpu-exporter/internal/convert"
	"github.com/kubeadapt/gke-tpu-exporter/internal/observability"
)

// testEnv bundles the dependencies shared by every collector test.
type testEnv struct {
	client    *fake.Clientset
	metrics   *observability.Metrics
	telemetry *fakeTelemetry
	reporter  *fakeReporter
	ctx       context.Context
}

func newTestEnv(t *testing.T, objects ...*corev1.Node) *testEnv {
	t.Helper()
	client := fake.NewSimpleClientset()
	for _, n := range objects {
		if _, err := client.CoreV1().Nodes().Create(context.Background(), n, metav1.CreateOptions{}); err != nil {
			t.Fatalf("create node %s: %v", n.Name, err)
		}
	}
	return &testEnv{
		client:    client,
		metrics:   observability.NewMetrics(),
		telemetry: &fakeTelemetry{},
		reporter:  &fakeReporter{},
		ctx:       context.Background(),
	}
}

func (e *testEnv) collector() *Collector {
	return NewCollector(e.client, e.telemetry, e.reporter, e.metrics)
}

type fakeTelemetry struct {
	mu      sync.Mutex
	nodes   []string
	err     error
	panicOn string
}

func (f *fakeTelemetry) FetchNode(_ context.Context, node, tpuType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if node == f.panicOn {
		panic("telemetry client crashed on " + node)
	}
	f.nodes = append(f.nodes, node+"/"+tpuType)
	return f.err
}

type fakeReporter struct {
	mu   sync.Mutex
	errs []error
}

func (r *fakeReporter) ReportError(_ string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

var errTelemetry = errors.New("telemetry unavailable")

type nodeSpec struct {
	name, tpuType, topology, zone string
	capacity, allocatable         map[string]string
}

func tpuNode(s nodeSpec) *corev1.Node {
	labels := map[string]string{}
	if s.tpuType != "" {
		labels[convert.LabelTPUAccelerator] = s.tpuType
	}
	if s.topology != "" {
		labels[convert.LabelTPUTopology] = s.topology
	}
	if s.zone != "" {
		labels[convert.LabelZone] = s.zone
	}
	return &corev1.Node{
		ObjectMeta: metav1.ObjectMeta{Name: s.name, Labels: labels},
		Status: corev1.NodeStatus{
			Capacity:    resourceList(s.capacity),
			Allocatable: resourceList(s.allocatable),
		},
	}
}

func resourceList(m map[string]string) corev1.ResourceList {
	rl := corev1.ResourceList{}
	for k, v := range m {
		rl[corev1.ResourceName(k)] = resource.MustParse(v)
	}
	return rl
}

// v5eNode has capacity cpu 8, memory 32Gi, tpu 4 and allocatable cpu 4,
// memory 16Gi, tpu 2.
func v5eNode(name, zone string) *corev1.Node {
	return tpuNode(nodeSpec{
		name:     name,
		tpuType:  "tpu-v5e",
		topology: "2x2",
		zone:     zone,
		capacity: map[string]string{
			"cpu": "8", "memory": "32Gi", "google.com/tpu": "4",
		},
		allocatable: map[string]string{
			"cpu": "4", "memory": "16Gi", "google.com/tpu": "2",
		},
	})
}

func resLabels(node, res, tpuType, zone string) map[string]string {
	return map[string]string{"node": node, "resource_type": res, "tpu_type": tpuType, "zone": zone}
}
