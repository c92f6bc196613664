package cluster

import (
	"context"

	container "google.golang.org/api/container/v1"
)

// Descriptor is the part of the GKE cluster resource the exporter reports.
type Descriptor struct {
	Version   string
	NodeCount int64
}

// ClusterAPI abstracts the GKE cluster lookup for testability.
type ClusterAPI interface {
	GetCluster(ctx context.Context, name string) (Descriptor, error)
}

// gkeClient implements ClusterAPI on top of the GKE v1 REST API.
type gkeClient struct {
	svc *container.Service
}

// NewGKEClient creates a ClusterAPI backed by the given container service.
func NewGKEClient(svc *container.Service) ClusterAPI {
	return &gkeClient{svc: svc}
}

func (c *gkeClient) GetCluster(ctx context.Context, name string) (Descriptor, error) {
	cl, err := c.svc.Projects.Locations.Clusters.Get(name).Context(ctx).Do()
	if err != nil {
		return Descriptor{}, err
	}
	return Descriptor{
		Version:   cl.CurrentMasterVersion,
		NodeCount: cl.CurrentNodeCount,
	}, nil
}
