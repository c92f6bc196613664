package config

import (
	"fmt"
	"time"
)

// Validate checks that the Config contains valid values.
// Returns an error describing the first invalid field found.
func (c Config) Validate() error {
	if c.ProjectID == "" {
		return fmt.Errorf("config: GCP_PROJECT_ID is required")
	}
	if c.ClusterName == "" {
		return fmt.Errorf("config: GKE_CLUSTER_NAME is required")
	}
	if c.ClusterLocation == "" {
		return fmt.Errorf("config: GKE_CLUSTER_LOCATION is required")
	}

	if c.MetricsPort < 1 || c.MetricsPort > 65535 {
		return fmt.Errorf("config: MetricsPort must be 1-65535, got %d", c.MetricsPort)
	}

	if c.PollInterval < time.Second {
		return fmt.Errorf("config: PollInterval must be >= 1s, got %v", c.PollInterval)
	}

	if c.TelemetryWindow <= 0 {
		return fmt.Errorf("config: TelemetryWindow must be > 0, got %v", c.TelemetryWindow)
	}

	if c.TelemetryQPS < 0 {
		return fmt.Errorf("config: TelemetryQPS must be >= 0, got %v", c.TelemetryQPS)
	}

	return nil
}
