package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// labelSep cannot appear in a valid UTF-8 label value.
const labelSep = "\xff"

// TrackedGaugeVec is a GaugeVec that remembers which label sets were written
// during the current collection pass so that series a pass no longer
// produces can be deleted.
type TrackedGaugeVec struct {
	vec *prometheus.GaugeVec

	mu       sync.Mutex
	current  map[string][]string
	previous map[string][]string
}

// NewTrackedGaugeVec creates an unregistered TrackedGaugeVec.
func NewTrackedGaugeVec(opts prometheus.GaugeOpts, labelNames []string) *TrackedGaugeVec {
	return &TrackedGaugeVec{
		vec:      prometheus.NewGaugeVec(opts, labelNames),
		current:  make(map[string][]string),
		previous: make(map[string][]string),
	}
}

// Collector returns the underlying collector for registration.
func (g *TrackedGaugeVec) Collector() prometheus.Collector {
	return g.vec
}

// Set writes value for the given label values and marks the series as live.
func (g *TrackedGaugeVec) Set(value float64, labelValues ...string) {
	g.vec.WithLabelValues(labelValues...).Set(value)

	k := strings.Join(labelValues, labelSep)
	g.mu.Lock()
	if _, ok := g.current[k]; !ok {
		g.current[k] = append([]string(nil), labelValues...)
	}
	g.mu.Unlock()
}

// Begin starts a collection pass. Label sets written by a pass that never
// reached Sweep are folded into the previous pass, so the next Sweep removes
// them unless they are written again.
func (g *TrackedGaugeVec) Begin() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.current) == 0 {
		return
	}
	for k, lvs := range g.current {
		g.previous[k] = lvs
	}
	g.current = make(map[string][]string, len(g.previous))
}

// Sweep deletes every series that was live after the previous Sweep but has
// not been written since, then starts a new pass. It returns the number of
// series removed.
func (g *TrackedGaugeVec) Sweep() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	removed := 0
	for k, lvs := range g.previous {
		if _, ok := g.current[k]; ok {
			continue
		}
		if g.vec.DeleteLabelValues(lvs...) {
			removed++
		}
	}
	g.previous = g.current
	g.current = make(map[string][]string, len(g.previous))
	return removed
}

// Reset deletes all series and forgets every label set.
func (g *TrackedGaugeVec) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.vec.Reset()
	g.current = make(map[string][]string)
	g.previous = make(map[string][]string)
}

// GaugeSet groups the gauges owned by one collector.
type GaugeSet []*TrackedGaugeVec

// Begin starts a collection pass on every gauge in the set.
func (s GaugeSet) Begin() {
	for _, g := range s {
		g.Begin()
	}
}

// Sweep sweeps every gauge in the set and returns the total removed.
func (s GaugeSet) Sweep() int {
	n := 0
	for _, g := range s {
		n += g.Sweep()
	}
	return n
}

// Reset resets every gauge in the set.
func (s GaugeSet) Reset() {
	for _, g := range s {
		g.Reset()
	}
}
