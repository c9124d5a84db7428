package application

import (
	"context"
	"time"

	"github.com/felixgeelhaar/omni/domain/agent"
	"github.com/felixgeelhaar/omni/domain/middleware"
	"github.com/felixgeelhaar/omni/infrastructure/statemachine"
)

// session is the orchestrator's bookkeeping for one run.
type session struct {
	id      string
	state   *agent.AgentState
	interp  *statemachine.Interpreter
	seq     uint64
	started time.Time

	// running is set while Run or Resume drives the loop (guarded by the
	// orchestrator mutex).
	running bool

	question string
	summary  string
	err      error

	// latest is the report handed out at the last suspension.
	latest *agent.Run
	// final is the sealed report once the run is terminal.
	final *agent.Run
}

// report builds the caller-facing view of the session. A zero end leaves
// the run open.
func (s *session) report(end time.Time) *agent.Run {
	st := s.interp.State()
	r := &agent.Run{
		ID:         s.id,
		Goal:       s.state.Goal(),
		State:      st,
		Status:     agent.StatusFor(st),
		Snapshot:   s.state.Snapshot(),
		Iterations: s.state.Iterations(),
		StartTime:  s.started,
	}
	switch st {
	case agent.StateDone:
		r.Summary = s.summary
	case agent.StateClarifying:
		r.Question = s.question
	case agent.StateFatal:
		if s.err != nil {
			r.Error = s.err.Error()
		}
	}
	if st.IsTerminal() {
		r.EndTime = end
	}
	return r
}

func withRun(ctx context.Context, runID string, iteration int, stepID string) context.Context {
	return middleware.ContextWithRun(ctx, middleware.RunInfo{
		RunID:     runID,
		Iteration: iteration,
		StepID:    stepID,
	})
}
