package convert

import (
	corev1 "k8s.io/api/core/v1"

	"github.com/kubeadapt/gke-tpu-exporter/pkg/model"
)

// Node labels set by GKE on TPU node pools.
const (
	LabelTPUAccelerator = "cloud.google.com/gke-tpu-accelerator"
	LabelTPUTopology    = "cloud.google.com/gke-tpu-topology"
	LabelZone           = "topology.kubernetes.io/zone"
)

// NodeToRecord converts a Kubernetes Node object to a model.NodeRecord.
// Pure function with no external calls.
func NodeToRecord(node *corev1.Node) model.NodeRecord {
	return model.NodeRecord{
		Name:        node.Name,
		TPUType:     labelOrUnknown(node.Labels, LabelTPUAccelerator),
		Topology:    labelOrUnknown(node.Labels, LabelTPUTopology),
		Zone:        labelOrUnknown(node.Labels, LabelZone),
		Capacity:    quantityStrings(node.Status.Capacity),
		Allocatable: quantityStrings(node.Status.Allocatable),
	}
}

// NodeTPUType returns the node's TPU accelerator label, reporting false when
// the node carries none.
func NodeTPUType(node *corev1.Node) (string, bool) {
	v, ok := node.Labels[LabelTPUAccelerator]
	if !ok {
		return "", false
	}
	if v == "" {
		return model.Unknown, true
	}
	return v, true
}

func labelOrUnknown(labels map[string]string, key string) string {
	if v := labels[key]; v != "" {
		return v
	}
	return model.Unknown
}

// quantityStrings flattens a ResourceList into resource name -> quantity string.
func quantityStrings(rl corev1.ResourceList) map[string]string {
	out := make(map[string]string, len(rl))
	for name, q := range rl {
		out[string(name)] = QuantityString(q)
	}
	return out
}
