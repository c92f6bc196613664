package model

// Unknown is the label value used for any dimension a node or pod does not report.
const Unknown = "unknown"

// NodeRecord is the per-cycle view of a TPU node as read from the cluster API.
// Capacity and Allocatable map resource names to canonical quantity strings.
type NodeRecord struct {
	Name        string            `json:"name"`
	TPUType     string            `json:"tpu_type"`
	Topology    string            `json:"topology"`
	Zone        string            `json:"zone"`
	Capacity    map[string]string `json:"capacity"`
	Allocatable map[string]string `json:"allocatable"`
}

// HasResource reports whether the node advertises the resource in its capacity.
func (r NodeRecord) HasResource(name string) bool {
	_, ok := r.Capacity[name]
	return ok
}
