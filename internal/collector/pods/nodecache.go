package pods

import (
	"context"
	"log/slog"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/kubeadapt/gke-tpu-exporter/internal/convert"
)

type nodeType struct {
	tpuType string
	ok      bool
}

// nodeTypeCache memoizes node accelerator lookups for one collection pass.
type nodeTypeCache struct {
	client  kubernetes.Interface
	entries map[string]nodeType
	reads   int
}

func newNodeTypeCache(client kubernetes.Interface) *nodeTypeCache {
	return &nodeTypeCache{client: client, entries: make(map[string]nodeType)}
}

// lookup returns the accelerator type of the named node. It reports false
// when the node cannot be read or carries no accelerator label.
func (c *nodeTypeCache) lookup(ctx context.Context, nodeName string) (string, bool) {
	if e, ok := c.entries[nodeName]; ok {
		return e.tpuType, e.ok
	}

	c.reads++
	var e nodeType
	nodeRecord, err := c.client.CoreV1().Nodes().Get(ctx, nodeName, metav1.GetOptions{})
	if err != nil {
		slog.Warn("failed to read node of TPU pod", "node", nodeName, "error", err)
	} else {
		e.tpuType, e.ok = convert.NodeTPUType(nodeRecord)
	}
	c.entries[nodeName] = e
	return e.tpuType, e.ok
}
