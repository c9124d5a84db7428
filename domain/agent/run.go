package agent

import "time"

// RunStatus is the caller-facing outcome of a run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"   // Loop in progress
	RunStatusSuspended RunStatus = "suspended" // Waiting for a clarification answer
	RunStatusCompleted RunStatus = "completed" // Selector signalled done
	RunStatusExhausted RunStatus = "exhausted" // Budget spent, partial failure
	RunStatusFailed    RunStatus = "failed"    // Fatal
)

// StatusFor maps a loop state to the run status reported to callers.
func StatusFor(s State) RunStatus {
	switch s {
	case StateClarifying:
		return RunStatusSuspended
	case StateDone:
		return RunStatusCompleted
	case StateExhausted:
		return RunStatusExhausted
	case StateFatal:
		return RunStatusFailed
	default:
		return RunStatusRunning
	}
}

// Run is the report of one execution of the loop. It is produced by the
// orchestrator after every Run or Resume call and carries the final snapshot.
type Run struct {
	ID     string    `json:"id"`
	Goal   string    `json:"goal"`
	State  State     `json:"state"`
	Status RunStatus `json:"status"`

	// Snapshot is the agent state at the point control returned.
	Snapshot Snapshot `json:"snapshot"`

	// Iterations is the number of completed iterations.
	Iterations int `json:"iterations"`

	// Summary is the selector's completion summary (done only).
	Summary string `json:"summary,omitempty"`
	// Question is the pending clarification question (clarifying only).
	Question string `json:"question,omitempty"`
	// Error is the fatal error text (fatal only).
	Error string `json:"error,omitempty"`

	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time,omitempty"`
}

// IsTerminal returns true if the run has reached a terminal state.
func (r *Run) IsTerminal() bool {
	return r.State.IsTerminal()
}

// DoneSteps returns the plan steps marked done.
func (r *Run) DoneSteps() []Step {
	var out []Step
	for _, s := range r.Snapshot.Steps {
		if s.Status == StepDone {
			out = append(out, s)
		}
	}
	return out
}

// Duration returns the wall time of the run.
func (r *Run) Duration() time.Duration {
	if r.EndTime.IsZero() {
		return time.Since(r.StartTime)
	}
	return r.EndTime.Sub(r.StartTime)
}
