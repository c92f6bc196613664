package telemetry

import (
	"context"
	"time"

	monitoring "google.golang.org/api/monitoring/v3"
)

// MonitoringAPI abstracts Cloud Monitoring time-series reads for testability.
type MonitoringAPI interface {
	ListTimeSeries(ctx context.Context, project, filter string, start, end time.Time) ([]*monitoring.TimeSeries, error)
}

// cloudMonitoringClient implements MonitoringAPI with the Monitoring v3 REST API.
type cloudMonitoringClient struct {
	svc *monitoring.Service
}

// NewCloudMonitoringClient creates a MonitoringAPI backed by the given service.
func NewCloudMonitoringClient(svc *monitoring.Service) MonitoringAPI {
	return &cloudMonitoringClient{svc: svc}
}

// ListTimeSeries returns every series matching filter in [start, end],
// following all result pages.
func (c *cloudMonitoringClient) ListTimeSeries(ctx context.Context, project, filter string, start, end time.Time) ([]*monitoring.TimeSeries, error) {
	var out []*monitoring.TimeSeries
	err := c.svc.Projects.TimeSeries.List("projects/"+project).
		Filter(filter).
		IntervalStartTime(start.UTC().Format(time.RFC3339)).
		IntervalEndTime(end.UTC().Format(time.RFC3339)).
		View("FULL").
		Pages(ctx, func(resp *monitoring.ListTimeSeriesResponse) error {
			out = append(out, resp.TimeSeries...)
			return nil
		})
	if err != nil {
		return nil, err
	}
	return out, nil
}
