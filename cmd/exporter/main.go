package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/KimMachineGun/automemlimit"
	_ "go.uber.org/automaxprocs"

	"golang.org/x/time/rate"
	container "google.golang.org/api/container/v1"
	monitoring "google.golang.org/api/monitoring/v3"
	"google.golang.org/api/option"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/utils/clock"

	"github.com/kubeadapt/gke-tpu-exporter/internal/agent"
	"github.com/kubeadapt/gke-tpu-exporter/internal/collector"
	"github.com/kubeadapt/gke-tpu-exporter/internal/collector/cluster"
	"github.com/kubeadapt/gke-tpu-exporter/internal/collector/nodes"
	"github.com/kubeadapt/gke-tpu-exporter/internal/collector/pods"
	"github.com/kubeadapt/gke-tpu-exporter/internal/collector/telemetry"
	"github.com/kubeadapt/gke-tpu-exporter/internal/config"
	exporterrors "github.com/kubeadapt/gke-tpu-exporter/internal/errors"
	"github.com/kubeadapt/gke-tpu-exporter/internal/health"
	"github.com/kubeadapt/gke-tpu-exporter/internal/logging"
	"github.com/kubeadapt/gke-tpu-exporter/internal/observability"
	"github.com/kubeadapt/gke-tpu-exporter/internal/transport"
)

const moduleName = "gke-tpu-exporter"

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// 1. Load and validate config.
	cfg := config.Load()
	cfg.ExporterVersion = version
	logging.SetDefaultStructuredLogger(moduleName, version, cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// 2. Create context with signal handling.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		slog.Info("shutdown signal received", "signal", sig)
		cancel()
	}()

	clusterID := cluster.Identity{
		ProjectID: cfg.ProjectID,
		Name:      cfg.ClusterName,
		Location:  cfg.ClusterLocation,
	}
	slog.Info("gke-tpu-exporter starting",
		"cluster", clusterID.Path(),
		"port", cfg.MetricsPort,
		"poll_interval", cfg.PollInterval,
		"telemetry", cfg.TelemetryEnabled,
	)

	// 3. Create shared infrastructure.
	clk := clock.RealClock{}
	metrics := observability.NewMetrics()
	errCollector := exporterrors.NewErrorCollector(clk)
	sm := agent.NewStateMachine(clk, metrics.ExporterState)

	// 4. Build API clients. Every outbound call is instrumented.
	restCfg := buildKubeConfig()
	restCfg.Wrap(func(rt http.RoundTripper) http.RoundTripper {
		return transport.Instrument("kubernetes", metrics, rt)
	})
	kubeClient := kubernetes.NewForConfigOrDie(restCfg)
	userAgent := option.WithUserAgent(moduleName + "/" + version)

	gkeHTTP, err := transport.NewGoogleClient(ctx, "gke", metrics, userAgent)
	if err != nil {
		slog.Error("failed to create GKE client", "error", err)
		os.Exit(1)
	}
	gkeSvc, err := container.NewService(ctx, option.WithHTTPClient(gkeHTTP))
	if err != nil {
		slog.Error("failed to create GKE client", "error", err)
		os.Exit(1)
	}

	var fetcher nodes.TelemetryFetcher
	if cfg.TelemetryEnabled {
		monHTTP, err := transport.NewGoogleClient(ctx, "monitoring", metrics, userAgent)
		if err != nil {
			slog.Error("failed to create Cloud Monitoring client", "error", err)
			os.Exit(1)
		}
		monSvc, err := monitoring.NewService(ctx, option.WithHTTPClient(monHTTP))
		if err != nil {
			slog.Error("failed to create Cloud Monitoring client", "error", err)
			os.Exit(1)
		}
		fetcher = telemetry.NewFetcher(
			telemetry.NewCloudMonitoringClient(monSvc),
			cfg.ProjectID,
			metrics,
			telemetry.WithWindow(cfg.TelemetryWindow),
			telemetry.WithLimiter(newLimiter(cfg.TelemetryQPS)),
			telemetry.WithClock(clk),
		)
	}

	// 5. Register collectors in cycle order.
	registry := collector.NewRegistry(clk)
	registry.Register(cluster.NewCollector(cluster.NewGKEClient(gkeSvc), clusterID, metrics))
	registry.Register(nodes.NewCollector(kubeClient, fetcher, errCollector, metrics))
	registry.Register(pods.NewCollector(kubeClient, errCollector, metrics))

	ag := agent.NewAgent(&cfg, registry, sm, errCollector, metrics, clk)

	// 6. Start the metrics server.
	srv := health.NewServer(cfg.MetricsPort, metrics, ag, ag, errCollector, cfg.DebugEndpoints)
	if err := srv.Start(); err != nil {
		slog.Error("failed to start metrics server", "error", err)
		os.Exit(1)
	}
	slog.Info("metrics server listening", "addr", srv.Addr())

	// 7. Run the collection loop (blocks until context is canceled).
	if err := ag.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("exporter exited with error", "error", err)
	}

	// 8. Graceful shutdown.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		slog.Error("metrics server shutdown error", "error", err)
	}

	slog.Info("gke-tpu-exporter stopped")
}

// newLimiter returns a limiter allowing qps queries per second. Zero means
// unlimited.
func newLimiter(qps float64) *rate.Limiter {
	if qps <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(qps), 1)
}

// buildKubeConfig creates a Kubernetes REST config.
// It tries in-cluster config first, then falls back to kubeconfig file
// (from $KUBECONFIG or the default ~/.kube/config).
func buildKubeConfig() *rest.Config {
	cfg, err := rest.InClusterConfig()
	if err == nil {
		slog.Info("using in-cluster kubernetes config")
		return cfg
	}

	kubeconfig := os.Getenv("KUBECONFIG")
	if kubeconfig == "" {
		kubeconfig = clientcmd.RecommendedHomeFile
	}

	cfg, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
	if err != nil {
		slog.Error("failed to build kubernetes config", "error", err)
		os.Exit(1)
	}
	slog.Info("using kubeconfig file", "path", kubeconfig)
	return cfg
}
