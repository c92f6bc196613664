package model

// CycleSummary describes one completed collection cycle.
type CycleSummary struct {
	CycleID        string       `json:"cycle_id"`
	StartedAt      int64        `json:"started_at"` // UnixMilli
	DurationMillis int64        `json:"duration_ms"`
	Steps          []StepResult `json:"steps"`
}

// StepResult is the outcome of a single collector within a cycle.
type StepResult struct {
	Name           string         `json:"name"`
	DurationMillis int64          `json:"duration_ms"`
	Counts         map[string]int `json:"counts,omitempty"`
	Skipped        bool           `json:"skipped,omitempty"`
	ErrorCode      string         `json:"error_code,omitempty"`
	Error          string         `json:"error,omitempty"`
}

// Failed reports whether the step ended with an error.
func (s StepResult) Failed() bool {
	return s.Error != ""
}

// FailedSteps returns the names of the steps that ended with an error.
func (c *CycleSummary) FailedSteps() []string {
	var names []string
	for _, s := range c.Steps {
		if s.Failed() {
			names = append(names, s.Name)
		}
	}
	return names
}
