package collector

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	exporterrors "github.com/kubeadapt/gke-tpu-exporter/internal/errors"
	"github.com/kubeadapt/gke-tpu-exporter/pkg/model"
)

// mockCollector implements Collector for testing.
type mockCollector struct {
	mu      sync.Mutex
	name    string
	counts  map[string]int
	err     error
	panics  bool
	calls   int
	resets  int
	onStart func()
}

func (m *mockCollector) Name() string { return m.name }

func (m *mockCollector) Collect(_ context.Context) (map[string]int, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.onStart != nil {
		m.onStart()
	}
	if m.panics {
		panic("boom")
	}
	return m.counts, m.err
}

func (m *mockCollector) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// resettableCollector additionally implements Resetter.
type resettableCollector struct {
	mockCollector
}

func (r *resettableCollector) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resets++
}

func newTestRegistry() *Registry {
	return NewRegistry(clocktesting.NewFakePassiveClock(time.Unix(1700000000, 0)))
}

func TestRegistry_RegisterAndCollectors(t *testing.T) {
	r := newTestRegistry()
	r.Register(&mockCollector{name: "cluster"})
	r.Register(&mockCollector{name: "nodes"})

	cs := r.Collectors()
	require.Len(t, cs, 2)
	assert.Equal(t, "cluster", cs[0].Name())
	assert.Equal(t, "nodes", cs[1].Name())
}

func TestRegistry_CollectAll_Empty(t *testing.T) {
	r := newTestRegistry()
	assert.Empty(t, r.CollectAll(context.Background()))
}

func TestRegistry_CollectAll_RunsInOrder(t *testing.T) {
	r := newTestRegistry()
	var order []string
	for _, name := range []string{"cluster", "nodes", "pods"} {
		r.Register(&mockCollector{name: name, onStart: func() { order = append(order, name) }})
	}

	results := r.CollectAll(context.Background())

	assert.Equal(t, []string{"cluster", "nodes", "pods"}, order)
	require.Len(t, results, 3)
	for _, res := range results {
		assert.False(t, res.Failed())
		assert.False(t, res.Skipped)
	}
}

func TestRegistry_CollectAll_CountsRecorded(t *testing.T) {
	r := newTestRegistry()
	r.Register(&mockCollector{name: "nodes", counts: map[string]int{"nodes": 3}})

	results := r.CollectAll(context.Background())

	require.Len(t, results, 1)
	assert.Equal(t, map[string]int{"nodes": 3}, results[0].Counts)
}

func TestRegistry_CollectAll_FailureDoesNotStopOthers(t *testing.T) {
	r := newTestRegistry()
	failing := &mockCollector{
		name: "cluster",
		err:  exporterrors.Wrap(exporterrors.ErrClusterInfoFailed, "cluster", "get cluster", errors.New("403")),
	}
	after := &mockCollector{name: "nodes"}
	r.Register(failing)
	r.Register(after)

	results := r.CollectAll(context.Background())

	require.Len(t, results, 2)
	assert.True(t, results[0].Failed())
	assert.Equal(t, string(exporterrors.ErrClusterInfoFailed), results[0].ErrorCode)
	assert.Contains(t, results[0].Error, "403")
	assert.Equal(t, 1, after.callCount())
	assert.False(t, results[1].Failed())
}

func TestRegistry_CollectAll_UntypedErrorIsUnknown(t *testing.T) {
	r := newTestRegistry()
	r.Register(&mockCollector{name: "pods", err: errors.New("plain")})

	results := r.CollectAll(context.Background())

	require.Len(t, results, 1)
	assert.Equal(t, string(exporterrors.ErrUnknown), results[0].ErrorCode)
}

func TestRegistry_CollectAll_RecoversPanic(t *testing.T) {
	r := newTestRegistry()
	after := &mockCollector{name: "pods"}
	r.Register(&mockCollector{name: "nodes", panics: true})
	r.Register(after)

	var got []model.StepResult
	assert.NotPanics(t, func() {
		got = r.CollectAll(context.Background())
	})

	require.Len(t, got, 2)
	assert.True(t, got[0].Failed())
	assert.Equal(t, string(exporterrors.ErrCollectorPanic), got[0].ErrorCode)
	assert.Contains(t, got[0].Error, "boom")
	assert.Equal(t, 1, after.callCount())
}

func TestRegistry_CollectAll_NoTargetsSkipsAndResetsRest(t *testing.T) {
	r := newTestRegistry()
	nodes := &mockCollector{name: "nodes", err: ErrNoTargets, counts: map[string]int{"nodes": 0}}
	pods := &resettableCollector{mockCollector{name: "pods"}}
	r.Register(&mockCollector{name: "cluster"})
	r.Register(nodes)
	r.Register(pods)

	results := r.CollectAll(context.Background())

	require.Len(t, results, 3)
	assert.False(t, results[1].Failed(), "no targets is not a failure")
	assert.True(t, results[2].Skipped)
	assert.False(t, results[2].Failed())
	assert.Equal(t, 0, pods.callCount())
	assert.Equal(t, 1, pods.resets)
}

func TestRegistry_CollectAll_CanceledContext(t *testing.T) {
	r := newTestRegistry()
	c := &mockCollector{name: "cluster"}
	r.Register(c)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := r.CollectAll(ctx)

	require.Len(t, results, 1)
	assert.Equal(t, 0, c.callCount())
	assert.True(t, results[0].Skipped)
	assert.Equal(t, string(exporterrors.ErrCanceled), results[0].ErrorCode)
}

func TestRegistry_ConcurrentRegister(t *testing.T) {
	r := newTestRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Register(&mockCollector{name: "c"})
		}()
	}
	wg.Wait()
	assert.Len(t, r.Collectors(), 50)
}

func TestElapsed(t *testing.T) {
	assert.Equal(t, 1500*time.Millisecond, Elapsed(modelStep(1500)))
}

func modelStep(ms int64) model.StepResult {
	return model.StepResult{DurationMillis: ms}
}
