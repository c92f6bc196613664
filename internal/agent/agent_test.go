package agent

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/kubeadapt/gke-tpu-exporter/internal/collector"
	"github.com/kubeadapt/gke-tpu-exporter/internal/config"
	exporterrors "github.com/kubeadapt/gke-tpu-exporter/internal/errors"
	"github.com/kubeadapt/gke-tpu-exporter/internal/observability"
	"github.com/kubeadapt/gke-tpu-exporter/pkg/model"
)

const (
	waitTimeout  = 5 * time.Second
	pollInterval = 10 * time.Millisecond
)

// countingCollector implements collector.Collector for testing.
type countingCollector struct {
	name  string
	err   error
	calls atomic.Int64
}

func (c *countingCollector) Name() string { return c.name }

func (c *countingCollector) Collect(context.Context) (map[string]int, error) {
	c.calls.Add(1)
	return map[string]int{"items": 1}, c.err
}

type testAgent struct {
	agent   *Agent
	clock   *clocktesting.FakeClock
	metrics *observability.Metrics
	errs    *exporterrors.ErrorCollector
	sm      *StateMachine
}

func newTestAgent(t *testing.T, collectors ...collector.Collector) *testAgent {
	t.Helper()
	clk := clocktesting.NewFakeClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	m := observability.NewMetrics()
	reg := collector.NewRegistry(clk)
	for _, c := range collectors {
		reg.Register(c)
	}
	errs := exporterrors.NewErrorCollector(clk)
	sm := NewStateMachine(clk, m.ExporterState)
	cfg := &config.Config{PollInterval: 30 * time.Second, ExporterVersion: "v0.3.1"}
	return &testAgent{
		agent:   NewAgent(cfg, reg, sm, errs, m, clk),
		clock:   clk,
		metrics: m,
		errs:    errs,
		sm:      sm,
	}
}

// start runs the agent loop in the background and returns a stop function
// that cancels it and waits for Run to return.
func (ta *testAgent) start(t *testing.T) func() error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ta.agent.Run(ctx) }()
	t.Cleanup(cancel)
	return func() error {
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(waitTimeout):
			t.Fatal("Run did not return after cancel")
			return nil
		}
	}
}

func (ta *testAgent) waitForCycles(t *testing.T, n int64) {
	t.Helper()
	require.Eventually(t, func() bool {
		return ta.agent.Cycles() >= n && ta.clock.HasWaiters()
	}, waitTimeout, pollInterval, "expected %d cycles", n)
}

func TestAgent_IsReady_InitiallyFalse(t *testing.T) {
	ta := newTestAgent(t)
	assert.False(t, ta.agent.IsReady())
}

func TestAgent_LatestCycle_InitiallyNil(t *testing.T) {
	ta := newTestAgent(t)
	assert.Nil(t, ta.agent.LatestCycle())
}

func TestAgent_Run_FirstCycleImmediately(t *testing.T) {
	c := &countingCollector{name: "nodes"}
	ta := newTestAgent(t, c)
	stop := ta.start(t)

	ta.waitForCycles(t, 1)

	assert.Equal(t, int64(1), c.calls.Load())
	assert.True(t, ta.agent.IsReady())
	assert.Equal(t, StateIdle, ta.sm.State())
	require.NoError(t, ignoreCanceled(stop()))
}

func TestAgent_Run_WaitsFullInterval(t *testing.T) {
	c := &countingCollector{name: "nodes"}
	ta := newTestAgent(t, c)
	stop := ta.start(t)
	ta.waitForCycles(t, 1)

	ta.clock.Step(29 * time.Second)
	assert.Never(t, func() bool { return c.calls.Load() > 1 }, 100*time.Millisecond, pollInterval)

	ta.clock.Step(time.Second)
	ta.waitForCycles(t, 2)
	assert.Equal(t, int64(2), c.calls.Load())

	require.NoError(t, ignoreCanceled(stop()))
}

func TestAgent_Run_ContextCancellation_Stops(t *testing.T) {
	ta := newTestAgent(t, &countingCollector{name: "nodes"})
	stop := ta.start(t)
	ta.waitForCycles(t, 1)

	err := stop()

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateStopped, ta.sm.State())
	assert.Equal(t, 1.0, testutil.ToFloat64(ta.metrics.ExporterState.WithLabelValues("stopped")))
}

func TestAgent_Run_LatestCycleSummary(t *testing.T) {
	ta := newTestAgent(t, &countingCollector{name: "cluster"}, &countingCollector{name: "nodes"})
	stop := ta.start(t)
	ta.waitForCycles(t, 1)

	summary, ok := ta.agent.LatestCycle().(*model.CycleSummary)
	require.True(t, ok)
	assert.NotEmpty(t, summary.CycleID)
	assert.Equal(t, ta.clock.Now().UnixMilli(), summary.StartedAt)
	require.Len(t, summary.Steps, 2)
	assert.Equal(t, "cluster", summary.Steps[0].Name)
	assert.Equal(t, map[string]int{"items": 1}, summary.Steps[1].Counts)

	first := summary.CycleID
	ta.clock.Step(30 * time.Second)
	ta.waitForCycles(t, 2)
	second := ta.agent.LatestCycle().(*model.CycleSummary)
	assert.NotEqual(t, first, second.CycleID, "each cycle gets its own ID")

	require.NoError(t, ignoreCanceled(stop()))
}

func TestAgent_Run_FailedStepRecorded(t *testing.T) {
	failing := &countingCollector{
		name: "cluster",
		err:  exporterrors.Wrap(exporterrors.ErrClusterInfoFailed, "cluster", "get cluster", errors.New("403")),
	}
	healthy := &countingCollector{name: "nodes"}
	ta := newTestAgent(t, failing, healthy)
	stop := ta.start(t)
	ta.waitForCycles(t, 1)

	assert.Equal(t, int64(1), healthy.calls.Load(), "a failing step does not stop the cycle")
	assert.Equal(t, []string{"CLUSTER_INFO_FAILED"}, ta.errs.GetActiveErrorCodes())
	assert.Equal(t, 1.0, testutil.ToFloat64(ta.metrics.CollectorErrorsTotal.WithLabelValues("cluster", "CLUSTER_INFO_FAILED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ta.metrics.CyclesTotal.WithLabelValues("partial")))

	summary := ta.agent.LatestCycle().(*model.CycleSummary)
	assert.Equal(t, []string{"cluster"}, summary.FailedSteps())

	require.NoError(t, ignoreCanceled(stop()))
}

func TestAgent_Run_AllStepsFailed(t *testing.T) {
	ta := newTestAgent(t, &countingCollector{name: "pods", err: errors.New("boom")})
	stop := ta.start(t)
	ta.waitForCycles(t, 1)

	assert.Equal(t, 1.0, testutil.ToFloat64(ta.metrics.CyclesTotal.WithLabelValues("failure")))
	require.NoError(t, ignoreCanceled(stop()))
}

func TestAgent_Run_SuccessfulCycleMetrics(t *testing.T) {
	ta := newTestAgent(t, &countingCollector{name: "nodes"})
	stop := ta.start(t)
	ta.waitForCycles(t, 1)

	assert.Equal(t, 1.0, testutil.ToFloat64(ta.metrics.CyclesTotal.WithLabelValues("success")))
	assert.Equal(t, 1, testutil.CollectAndCount(ta.metrics.CycleDuration))
	require.NoError(t, ignoreCanceled(stop()))
}

func TestAgent_Run_EmptyRegistry(t *testing.T) {
	ta := newTestAgent(t)
	stop := ta.start(t)
	ta.waitForCycles(t, 1)

	summary := ta.agent.LatestCycle().(*model.CycleSummary)
	assert.Empty(t, summary.Steps)
	require.NoError(t, ignoreCanceled(stop()))
}

func TestAgent_Run_PublishesBuildInfo(t *testing.T) {
	ta := newTestAgent(t, &countingCollector{name: "nodes"})
	stop := ta.start(t)
	ta.waitForCycles(t, 1)

	assert.Equal(t, 1.0, testutil.ToFloat64(ta.metrics.BuildInfo.WithLabelValues("v0.3.1")))
	require.NoError(t, ignoreCanceled(stop()))
}

// captureLogs redirects the default logger into a buffer until the test
// ends. Read the buffer only after the agent loop has returned.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestAgent_Run_FailedCycleLogsReasonAndActiveErrors(t *testing.T) {
	logs := captureLogs(t)
	failing := &countingCollector{
		name: "cluster",
		err:  exporterrors.Wrap(exporterrors.ErrClusterInfoFailed, "cluster", "get cluster", errors.New("403")),
	}
	ta := newTestAgent(t, failing, &countingCollector{name: "nodes"})
	stop := ta.start(t)
	ta.waitForCycles(t, 1)

	assert.Equal(t, StateIdle, ta.sm.State())
	assert.Equal(t, "failed steps: cluster", ta.sm.StateReason())

	require.ErrorIs(t, stop(), context.Canceled)
	assert.Equal(t, "shutdown requested", ta.sm.StateReason())

	out := logs.String()
	assert.Contains(t, out, `"msg":"collection cycle completed with errors"`)
	assert.Contains(t, out, `"reason":"failed steps: cluster"`)
	assert.Contains(t, out, `"active_errors":["CLUSTER_INFO_FAILED"]`)
	assert.Contains(t, out, `"msg":"exporter loop stopped"`)
	assert.Contains(t, out, `"reason":"shutdown requested"`)
}

func TestAgent_Run_SuccessfulCycleClearsReason(t *testing.T) {
	ta := newTestAgent(t, &countingCollector{name: "nodes"})
	stop := ta.start(t)
	ta.waitForCycles(t, 1)

	assert.Empty(t, ta.sm.StateReason())
	require.NoError(t, ignoreCanceled(stop()))
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
