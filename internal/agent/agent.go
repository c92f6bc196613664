package agent

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"k8s.io/utils/clock"

	"github.com/kubeadapt/gke-tpu-exporter/internal/collector"
	"github.com/kubeadapt/gke-tpu-exporter/internal/config"
	"github.com/kubeadapt/gke-tpu-exporter/internal/errors"
	"github.com/kubeadapt/gke-tpu-exporter/internal/observability"
	"github.com/kubeadapt/gke-tpu-exporter/pkg/model"
)

// Cycle results used as the tpu_exporter_cycles_total label.
const (
	resultSuccess = "success"
	resultPartial = "partial"
	resultFailure = "failure"
)

// Agent is the collection cycle orchestrator. It runs every registered
// collector once per poll interval on a single goroutine.
type Agent struct {
	config         *config.Config
	registry       *collector.Registry
	stateMachine   *StateMachine
	errorCollector *errors.ErrorCollector
	metrics        *observability.Metrics
	clock          clock.Clock

	latestCycle atomic.Pointer[model.CycleSummary]
	ready       atomic.Bool
	cycles      atomic.Int64
}

// NewAgent creates an Agent with all required dependencies.
func NewAgent(
	cfg *config.Config,
	registry *collector.Registry,
	stateMachine *StateMachine,
	errCollector *errors.ErrorCollector,
	metrics *observability.Metrics,
	clk clock.Clock,
) *Agent {
	return &Agent{
		config:         cfg,
		registry:       registry,
		stateMachine:   stateMachine,
		errorCollector: errCollector,
		metrics:        metrics,
		clock:          clk,
	}
}

// IsReady reports whether at least one collection cycle has completed.
// Implements health.ReadinessChecker.
func (a *Agent) IsReady() bool {
	return a.ready.Load()
}

// LatestCycle returns the summary of the most recent cycle, or nil if none
// has completed yet. Implements health.CycleProvider.
func (a *Agent) LatestCycle() interface{} {
	c := a.latestCycle.Load()
	if c == nil {
		return nil
	}
	return c
}

// Cycles returns the number of completed cycles.
func (a *Agent) Cycles() int64 {
	return a.cycles.Load()
}

// Run executes one cycle immediately and then one cycle per poll interval
// until ctx is canceled. The interval is measured from the end of a cycle
// to the start of the next one.
func (a *Agent) Run(ctx context.Context) error {
	a.metrics.BuildInfo.WithLabelValues(a.config.ExporterVersion).Set(1)
	slog.Info("exporter loop started", "interval", a.config.PollInterval, "version", a.config.ExporterVersion)

	for {
		a.runCycle(ctx)

		timer := a.clock.NewTimer(a.config.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			idleFor := a.stateMachine.Since()
			a.stateMachine.TransitionTo(StateStopped, "shutdown requested")
			slog.Info("exporter loop stopped",
				"reason", a.stateMachine.StateReason(),
				"cycles", a.cycles.Load(),
				"idle_for", idleFor.Round(time.Millisecond),
			)
			return ctx.Err()
		case <-timer.C():
		}
	}
}

func (a *Agent) runCycle(ctx context.Context) {
	cycleID := uuid.NewString()
	start := a.clock.Now()
	a.stateMachine.TransitionTo(StateCollecting, "cycle "+cycleID)

	steps := a.registry.CollectAll(ctx)
	elapsed := a.clock.Since(start)

	summary := &model.CycleSummary{
		CycleID:        cycleID,
		StartedAt:      start.UnixMilli(),
		DurationMillis: elapsed.Milliseconds(),
		Steps:          steps,
	}
	a.record(summary, elapsed)

	a.latestCycle.Store(summary)
	a.cycles.Add(1)
	a.ready.Store(true)

	failed := summary.FailedSteps()
	reason := ""
	if len(failed) > 0 {
		reason = "failed steps: " + strings.Join(failed, ",")
	}
	a.stateMachine.TransitionTo(StateIdle, reason)

	logAttrs := []any{
		"cycle_id", cycleID,
		"duration", elapsed.Round(time.Millisecond),
		"steps", len(steps),
	}
	if len(failed) > 0 {
		slog.Warn("collection cycle completed with errors", append(logAttrs,
			"reason", a.stateMachine.StateReason(),
			"active_errors", a.errorCollector.GetActiveErrorCodes(),
		)...)
		return
	}
	slog.Info("collection cycle completed", logAttrs...)
}

// record updates self-monitoring metrics and the error collector from a
// finished cycle.
func (a *Agent) record(summary *model.CycleSummary, elapsed time.Duration) {
	ran, failed := 0, 0
	for _, s := range summary.Steps {
		if !s.Skipped {
			ran++
			a.metrics.CollectorDuration.WithLabelValues(s.Name).Observe(collector.Elapsed(s).Seconds())
		}
		if !s.Failed() {
			continue
		}
		failed++
		a.metrics.CollectorErrorsTotal.WithLabelValues(s.Name, s.ErrorCode).Inc()
		a.errorCollector.Report(errors.ExporterError{
			Code:      errors.Code(s.ErrorCode),
			Message:   s.Error,
			Component: s.Name,
		})
	}

	result := resultSuccess
	switch {
	case failed > 0 && failed >= ran:
		result = resultFailure
	case failed > 0:
		result = resultPartial
	}

	a.metrics.CycleDuration.Observe(elapsed.Seconds())
	a.metrics.CyclesTotal.WithLabelValues(result).Inc()
}
