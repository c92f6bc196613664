package cluster

import (
	"context"
	"log/slog"
	"strconv"

	exporterrors "github.com/kubeadapt/gke-tpu-exporter/internal/errors"
	"github.com/kubeadapt/gke-tpu-exporter/internal/observability"
)

const name = "cluster"

// Identity names the cluster being exported.
type Identity struct {
	ProjectID string
	Name      string
	Location  string
}

// Path returns the fully qualified GKE resource name.
func (id Identity) Path() string {
	return "projects/" + id.ProjectID + "/locations/" + id.Location + "/clusters/" + id.Name
}

// Collector publishes gke_cluster_info from the GKE cluster descriptor.
type Collector struct {
	api     ClusterAPI
	id      Identity
	info    *observability.TrackedGaugeVec
	metrics *observability.Metrics
}

// NewCollector creates a cluster info collector.
func NewCollector(api ClusterAPI, id Identity, m *observability.Metrics) *Collector {
	return &Collector{api: api, id: id, info: m.ClusterInfo, metrics: m}
}

// Name implements collector.Collector.
func (c *Collector) Name() string { return name }

// Collect fetches the cluster descriptor and replaces the info series.
// On failure the previous info series is left in place.
func (c *Collector) Collect(ctx context.Context) (map[string]int, error) {
	c.info.Begin()
	d, err := c.api.GetCluster(ctx, c.id.Path())
	if err != nil {
		slog.Error("failed to fetch cluster info", "cluster", c.id.Path(), "error", err)
		return nil, exporterrors.Wrap(exporterrors.ErrClusterInfoFailed, name, "get cluster "+c.id.Path(), err)
	}

	c.info.Set(1,
		c.id.ProjectID,
		c.id.Name,
		c.id.Location,
		d.Version,
		strconv.FormatInt(d.NodeCount, 10),
	)
	if removed := c.info.Sweep(); removed > 0 {
		c.metrics.StaleSeriesRemovedTotal.WithLabelValues(name).Add(float64(removed))
	}

	slog.Debug("cluster info updated", "version", d.Version, "node_count", d.NodeCount)
	return map[string]int{"node_count": int(d.NodeCount)}, nil
}
