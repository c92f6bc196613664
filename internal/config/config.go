package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all exporter configuration values.
type Config struct {
	ProjectID       string // GCP_PROJECT_ID, required
	ClusterName     string // GKE_CLUSTER_NAME, required
	ClusterLocation string // GKE_CLUSTER_LOCATION, required

	MetricsPort  int           // TPU_EXPORTER_PORT, default: 8000
	PollInterval time.Duration // TPU_EXPORTER_POLL_INTERVAL, default: 30s
	LogLevel     string        // TPU_EXPORTER_LOG_LEVEL, default: "info"

	// Cloud Monitoring telemetry
	TelemetryEnabled bool          // TPU_EXPORTER_TELEMETRY_ENABLED, default: true
	TelemetryWindow  time.Duration // TPU_EXPORTER_TELEMETRY_WINDOW, default: 5m
	TelemetryQPS     float64       // TPU_EXPORTER_TELEMETRY_QPS, default: 0 (unlimited)

	DebugEndpoints bool // TPU_EXPORTER_DEBUG_ENDPOINTS, default: false; enables pprof/debug on the metrics port

	ExporterVersion string // set from the build, published as tpu_exporter_build_info
}

// Load reads configuration from environment variables and returns a Config
// with defaults applied for any unset optional values. Required values are
// left empty when unset; Validate reports them.
func Load() Config {
	return Config{
		ProjectID:       os.Getenv("GCP_PROJECT_ID"),
		ClusterName:     os.Getenv("GKE_CLUSTER_NAME"),
		ClusterLocation: os.Getenv("GKE_CLUSTER_LOCATION"),

		MetricsPort:  parseInt("TPU_EXPORTER_PORT", 8000),
		PollInterval: parseDuration("TPU_EXPORTER_POLL_INTERVAL", 30*time.Second),
		LogLevel:     envOrDefault("TPU_EXPORTER_LOG_LEVEL", "info"),

		TelemetryEnabled: parseBool("TPU_EXPORTER_TELEMETRY_ENABLED", true),
		TelemetryWindow:  parseDuration("TPU_EXPORTER_TELEMETRY_WINDOW", 5*time.Minute),
		TelemetryQPS:     parseFloat("TPU_EXPORTER_TELEMETRY_QPS", 0),

		DebugEndpoints: parseBool("TPU_EXPORTER_DEBUG_ENDPOINTS", false),
	}
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// parseDuration tries time.ParseDuration first, then falls back to treating
// the value as integer seconds.
func parseDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}

	d, err := time.ParseDuration(v)
	if err == nil {
		return d
	}

	secs, err := strconv.Atoi(v)
	if err == nil {
		return time.Duration(secs) * time.Second
	}

	return defaultVal
}

func parseBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func parseInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}

func parseFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}
