package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Label sets shared by the exported gauges.
var (
	tpuTypeLabels     = []string{"tpu_type"}
	namespaceLabels   = []string{"namespace", "tpu_type"}
	nodeCountLabels   = []string{"tpu_type", "topology", "zone"}
	chipLabels        = []string{"node", "tpu_type", "zone"}
	nodeResLabels     = []string{"node", "resource_type", "tpu_type", "zone"}
	telemetryLabels   = []string{"node", "tpu_type"}
	podRequestLabels  = []string{"pod", "namespace", "node", "resource_type"}
	clusterInfoLabels = []string{"project_id", "cluster_name", "location", "version", "node_count"}
)

// Metrics holds every gauge the exporter publishes plus its own
// self-monitoring metrics. It uses a custom registry to avoid polluting
// the global default.
type Metrics struct {
	Registry *prometheus.Registry

	// Cluster descriptor
	ClusterInfo *TrackedGaugeVec

	// Cluster-level aggregates
	ClusterTPUTotal       *TrackedGaugeVec
	ClusterTPUAllocated   *TrackedGaugeVec
	ClusterTPUAvailable   *TrackedGaugeVec
	ClusterTPUPodsRunning *TrackedGaugeVec
	ClusterTPUPodsPending *TrackedGaugeVec

	// Node-level
	TPUNodeTotal    *TrackedGaugeVec
	TPUChipTotal    *TrackedGaugeVec
	NodeCapacity    *TrackedGaugeVec
	NodeAllocatable *TrackedGaugeVec
	NodeUsage       *TrackedGaugeVec

	// Cloud Monitoring telemetry
	TPUMemoryUsage                *TrackedGaugeVec
	TPUCPUUtilization             *TrackedGaugeVec
	TPUNetworkReceived            *TrackedGaugeVec
	TPUNetworkSent                *TrackedGaugeVec
	TPUTensorCoreIdle             *TrackedGaugeVec
	TPUTensorCoreUtilization      *TrackedGaugeVec
	TPUMemoryBandwidthUtilization *TrackedGaugeVec
	TPUDutyCycle                  *TrackedGaugeVec
	TPUMemoryTotal                *TrackedGaugeVec
	TPUMemoryUsed                 *TrackedGaugeVec

	// Pod-level
	PodRequests *TrackedGaugeVec

	// Self-monitoring
	CycleDuration           prometheus.Histogram
	CyclesTotal             *prometheus.CounterVec
	CollectorDuration       *prometheus.HistogramVec
	CollectorErrorsTotal    *prometheus.CounterVec
	StaleSeriesRemovedTotal *prometheus.CounterVec
	TelemetryQueriesTotal   *prometheus.CounterVec
	ExporterState           *prometheus.GaugeVec
	BuildInfo               *prometheus.GaugeVec

	// Outbound API calls
	APIRequestsTotal   *prometheus.CounterVec
	APIRequestDuration *prometheus.HistogramVec
}

func gauge(name, help string, labels []string) *TrackedGaugeVec {
	return NewTrackedGaugeVec(prometheus.GaugeOpts{Name: name, Help: help}, labels)
}

// NewMetrics creates a new Metrics instance with all metrics registered on
// a custom registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		ClusterInfo: gauge("gke_cluster_info", "GKE Cluster information", clusterInfoLabels),

		ClusterTPUTotal:       gauge("gke_cluster_tpu_total", "Total TPU chips in cluster", tpuTypeLabels),
		ClusterTPUAllocated:   gauge("gke_cluster_tpu_allocated", "Allocated TPU chips in cluster", tpuTypeLabels),
		ClusterTPUAvailable:   gauge("gke_cluster_tpu_available", "Available TPU chips in cluster", tpuTypeLabels),
		ClusterTPUPodsRunning: gauge("gke_cluster_tpu_pods_running", "Number of pods using TPU", namespaceLabels),
		ClusterTPUPodsPending: gauge("gke_cluster_tpu_pods_pending", "Number of pods waiting for TPU", namespaceLabels),

		TPUNodeTotal:    gauge("gke_tpu_node_total", "Total TPU nodes", nodeCountLabels),
		TPUChipTotal:    gauge("gke_tpu_chip_total", "Total TPU chips per node", chipLabels),
		NodeCapacity:    gauge("gke_tpu_node_capacity", "Node capacity", nodeResLabels),
		NodeAllocatable: gauge("gke_tpu_node_allocatable", "Allocatable resources", nodeResLabels),
		NodeUsage:       gauge("gke_tpu_node_usage", "Current usage", nodeResLabels),

		TPUMemoryUsage:                gauge("gke_tpu_memory_usage_bytes", "TPU VM memory usage", telemetryLabels),
		TPUCPUUtilization:             gauge("gke_tpu_cpu_utilization", "TPU VM CPU utilization", telemetryLabels),
		TPUNetworkReceived:            gauge("gke_tpu_network_received_bytes_total", "Network bytes received", telemetryLabels),
		TPUNetworkSent:                gauge("gke_tpu_network_sent_bytes_total", "Network bytes sent", telemetryLabels),
		TPUTensorCoreIdle:             gauge("gke_tpu_tensorcore_idle_duration_seconds", "TensorCore idle duration", telemetryLabels),
		TPUTensorCoreUtilization:      gauge("gke_tpu_tensorcore_utilization", "TensorCore utilization", telemetryLabels),
		TPUMemoryBandwidthUtilization: gauge("gke_tpu_memory_bandwidth_utilization", "Memory bandwidth utilization", telemetryLabels),
		TPUDutyCycle:                  gauge("gke_tpu_duty_cycle", "Accelerator duty cycle", telemetryLabels),
		TPUMemoryTotal:                gauge("gke_tpu_memory_total_bytes", "Total accelerator memory", telemetryLabels),
		TPUMemoryUsed:                 gauge("gke_tpu_memory_used_bytes", "Used accelerator memory", telemetryLabels),

		PodRequests: gauge("gke_tpu_pod_requests", "TPU pod resource requests", podRequestLabels),

		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tpu_exporter_cycle_duration_seconds",
			Help:    "Duration of collection cycles in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tpu_exporter_cycles_total",
			Help: "Total number of collection cycles by result.",
		}, []string{"result"}),
		CollectorDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tpu_exporter_collector_duration_seconds",
			Help:    "Duration of individual collector runs in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"collector"}),
		CollectorErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tpu_exporter_collector_errors_total",
			Help: "Total number of collector failures by error code.",
		}, []string{"collector", "code"}),
		StaleSeriesRemovedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tpu_exporter_stale_series_removed_total",
			Help: "Total number of series deleted because a collection pass no longer produced them.",
		}, []string{"collector"}),
		TelemetryQueriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tpu_exporter_telemetry_queries_total",
			Help: "Total number of Cloud Monitoring queries by result.",
		}, []string{"result"}),
		ExporterState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tpu_exporter_state",
			Help: "Current exporter state (1 = active, 0 = inactive).",
		}, []string{"state"}),
		BuildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tpu_exporter_build_info",
			Help: "Exporter build information. Always 1.",
		}, []string{"version"}),

		APIRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tpu_exporter_api_requests_total",
			Help: "Total number of outbound API requests by API and response code.",
		}, []string{"api", "code"}),
		APIRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tpu_exporter_api_request_duration_seconds",
			Help:    "Latency of outbound API requests in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"api"}),
	}

	for _, g := range m.all() {
		reg.MustRegister(g.Collector())
	}
	reg.MustRegister(
		m.CycleDuration,
		m.CyclesTotal,
		m.CollectorDuration,
		m.CollectorErrorsTotal,
		m.StaleSeriesRemovedTotal,
		m.TelemetryQueriesTotal,
		m.ExporterState,
		m.BuildInfo,
		m.APIRequestsTotal,
		m.APIRequestDuration,
	)

	return m
}

func (m *Metrics) all() GaugeSet {
	set := GaugeSet{m.ClusterInfo}
	set = append(set, m.NodeGauges()...)
	set = append(set, m.TelemetryGauges()...)
	set = append(set, m.PodGauges()...)
	return set
}

// NodeGauges returns the gauges written by the node inventory pass.
func (m *Metrics) NodeGauges() GaugeSet {
	return GaugeSet{
		m.ClusterTPUTotal,
		m.ClusterTPUAllocated,
		m.ClusterTPUAvailable,
		m.TPUNodeTotal,
		m.TPUChipTotal,
		m.NodeCapacity,
		m.NodeAllocatable,
		m.NodeUsage,
	}
}

// TelemetryGauges returns the gauges fed from Cloud Monitoring.
func (m *Metrics) TelemetryGauges() GaugeSet {
	return GaugeSet{
		m.TPUMemoryUsage,
		m.TPUCPUUtilization,
		m.TPUNetworkReceived,
		m.TPUNetworkSent,
		m.TPUTensorCoreIdle,
		m.TPUTensorCoreUtilization,
		m.TPUMemoryBandwidthUtilization,
		m.TPUDutyCycle,
		m.TPUMemoryTotal,
		m.TPUMemoryUsed,
	}
}

// PodGauges returns the gauges written by the pod placement pass.
func (m *Metrics) PodGauges() GaugeSet {
	return GaugeSet{
		m.ClusterTPUPodsRunning,
		m.ClusterTPUPodsPending,
		m.PodRequests,
	}
}
