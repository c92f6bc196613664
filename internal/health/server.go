package health

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kubeadapt/gke-tpu-exporter/internal/errors"
	"github.com/kubeadapt/gke-tpu-exporter/internal/observability"
)

// ReadinessChecker reports whether the exporter has completed a cycle.
type ReadinessChecker interface {
	IsReady() bool
}

// CycleProvider returns the latest collection cycle summary for debugging.
type CycleProvider interface {
	LatestCycle() interface{}
}

// ErrorSource returns the currently active collection errors.
type ErrorSource interface {
	GetActiveErrors() []errors.ExporterError
}

// Server exposes health, readiness, metrics, and debug endpoints.
type Server struct {
	httpServer *http.Server
	metrics    *observability.Metrics
	readiness  ReadinessChecker
	cycles     CycleProvider
	errs       ErrorSource
	listener   net.Listener
}

// NewServer creates the exposition server on port (0 picks a free port).
// pprof and the /debug/cycle and /debug/errors endpoints are registered only
// when enableDebug is set.
func NewServer(port int, metrics *observability.Metrics, readiness ReadinessChecker, cycles CycleProvider, errs ErrorSource, enableDebug bool) *Server {
	s := &Server{
		metrics:   metrics,
		readiness: readiness,
		cycles:    cycles,
		errs:      errs,
	}

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.routes(enableDebug),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) routes(enableDebug bool) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)
	mux.Handle("GET /metrics", s.metricsHandler())

	if !enableDebug {
		return mux
	}
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.HandleFunc("GET /debug/cycle", s.handleDebugCycle)
	mux.HandleFunc("GET /debug/errors", s.handleDebugErrors)
	return mux
}

// metricsHandler serves the exporter registry. gzhttp owns compression,
// so promhttp's own negotiation is off.
func (s *Server) metricsHandler() http.Handler {
	h := promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{
		DisableCompression: true,
		ErrorLog:           slog.NewLogLogger(slog.Default().Handler(), slog.LevelError),
		ErrorHandling:      promhttp.ContinueOnError,
	})
	return gzhttp.GzipHandler(h)
}

// Addr returns the address the server listens on. After Start it holds the
// resolved port.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start begins listening and serving HTTP in a background goroutine.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.httpServer.Addr, err)
	}
	s.listener = ln
	s.httpServer.Addr = ln.Addr().String()

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server stopped unexpectedly", "error", err)
		}
	}()
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the server's request multiplexer.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("encode response", "error", err)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	status := http.StatusServiceUnavailable
	ready := s.readiness.IsReady()
	if ready {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]bool{"ready": ready})
}

func (s *Server) handleDebugCycle(w http.ResponseWriter, _ *http.Request) {
	cycle := s.cycles.LatestCycle()
	if cycle == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, cycle)
}

func (s *Server) handleDebugErrors(w http.ResponseWriter, _ *http.Request) {
	active := s.errs.GetActiveErrors()
	if active == nil {
		active = []errors.ExporterError{}
	}
	writeJSON(w, http.StatusOK, active)
}
