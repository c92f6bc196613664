package agent

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"k8s.io/utils/clock"
)

// ExporterState represents the current lifecycle state of the exporter.
type ExporterState string

// Exporter lifecycle states.
const (
	StateIdle       ExporterState = "idle"
	StateCollecting ExporterState = "collecting"
	StateStopped    ExporterState = "stopped"
)

var allStates = []ExporterState{StateIdle, StateCollecting, StateStopped}

// StateMachine tracks the exporter's lifecycle state and mirrors it into
// the state gauge.
type StateMachine struct {
	mu          sync.RWMutex
	state       ExporterState
	stateReason string
	since       time.Time
	clock       clock.PassiveClock
	gauge       *prometheus.GaugeVec
}

// NewStateMachine creates a StateMachine starting in StateIdle. gauge may
// be nil.
func NewStateMachine(clk clock.PassiveClock, gauge *prometheus.GaugeVec) *StateMachine {
	sm := &StateMachine{
		state: StateIdle,
		since: clk.Now(),
		clock: clk,
		gauge: gauge,
	}
	sm.publish()
	return sm
}

// State returns the current exporter state.
func (sm *StateMachine) State() ExporterState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.state
}

// StateReason returns the human-readable reason for the current state.
func (sm *StateMachine) StateReason() string {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.stateReason
}

// Since returns how long the exporter has been in its current state.
func (sm *StateMachine) Since() time.Duration {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.clock.Since(sm.since)
}

// TransitionTo sets the exporter state with a reason. Once stopped, the
// state no longer changes.
func (sm *StateMachine) TransitionTo(state ExporterState, reason string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.state == StateStopped {
		return
	}
	if sm.state != state {
		sm.since = sm.clock.Now()
	}
	sm.state = state
	sm.stateReason = reason
	sm.publishLocked()
}

func (sm *StateMachine) publish() {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.publishLocked()
}

func (sm *StateMachine) publishLocked() {
	if sm.gauge == nil {
		return
	}
	for _, s := range allStates {
		v := 0.0
		if s == sm.state {
			v = 1
		}
		sm.gauge.WithLabelValues(string(s)).Set(v)
	}
}
