package transport

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"google.golang.org/api/option"
	htransport "google.golang.org/api/transport/http"

	"github.com/kubeadapt/gke-tpu-exporter/internal/observability"
)

// CloudPlatformScope is the OAuth scope used for GKE and Cloud Monitoring.
const CloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// loggingTransport logs request method/URL and response status at debug level.
type loggingTransport struct {
	logger *slog.Logger
	next   http.RoundTripper
}

// WithLogging wraps a RoundTripper with request/response logging.
func WithLogging(logger *slog.Logger, next http.RoundTripper) http.RoundTripper {
	return &loggingTransport{logger: logger, next: next}
}

func (l *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := l.next.RoundTrip(req)
	elapsed := time.Since(start)

	if err != nil {
		l.logger.Debug("API request failed",
			"method", req.Method,
			"url", req.URL.Redacted(),
			"duration_ms", elapsed.Milliseconds(),
			"error", err,
		)
		return resp, err
	}

	l.logger.Debug("API request completed",
		"method", req.Method,
		"url", req.URL.Redacted(),
		"status", resp.StatusCode,
		"duration_ms", elapsed.Milliseconds(),
	)
	return resp, nil
}

// metricsTransport counts requests per API and response code.
type metricsTransport struct {
	api     string
	metrics *observability.Metrics
	next    http.RoundTripper
}

// WithMetrics wraps a RoundTripper with request counting and latency
// observation labeled by api.
func WithMetrics(api string, m *observability.Metrics, next http.RoundTripper) http.RoundTripper {
	return &metricsTransport{api: api, metrics: m, next: next}
}

func (t *metricsTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.next.RoundTrip(req)
	t.metrics.APIRequestDuration.WithLabelValues(t.api).Observe(time.Since(start).Seconds())

	code := "error"
	if err == nil {
		code = strconv.Itoa(resp.StatusCode)
	}
	t.metrics.APIRequestsTotal.WithLabelValues(t.api, code).Inc()
	return resp, err
}

// Instrument applies metrics and debug logging to next.
func Instrument(api string, m *observability.Metrics, next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return WithMetrics(api, m, WithLogging(slog.Default().With("api", api), next))
}

// NewGoogleClient returns an authenticated HTTP client for a Google API
// whose requests are instrumented under the given api label. Credentials
// come from Application Default Credentials unless opts say otherwise.
func NewGoogleClient(ctx context.Context, api string, m *observability.Metrics, opts ...option.ClientOption) (*http.Client, error) {
	opts = append([]option.ClientOption{option.WithScopes(CloudPlatformScope)}, opts...)
	rt, err := htransport.NewTransport(ctx, Instrument(api, m, http.DefaultTransport), opts...)
	if err != nil {
		return nil, err
	}
	return &http.Client{Transport: rt}, nil
}
