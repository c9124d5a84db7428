// Package application provides the execution loop that drives a goal to
// completion through planning, action selection and tool dispatch.
package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/omni/domain/agent"
	"github.com/felixgeelhaar/omni/domain/event"
	"github.com/felixgeelhaar/omni/domain/tool"
	"github.com/felixgeelhaar/omni/infrastructure/logging"
	"github.com/felixgeelhaar/omni/infrastructure/planner"
	"github.com/felixgeelhaar/omni/infrastructure/statemachine"
	"github.com/felixgeelhaar/omni/infrastructure/telemetry"
)

// DefaultMaxIterations is the iteration budget used when none is configured.
const DefaultMaxIterations = 20

// DefaultMaxClarifications is the question limit used when none is configured.
const DefaultMaxClarifications = 3

// SelectorFailedPrefix starts the synthetic failure of a failed selector call.
const SelectorFailedPrefix = "selector call failed: "

// Orchestrator runs the adaptive execution loop. It owns every AgentState it
// creates; the planner and selector only ever see snapshots.
type Orchestrator struct {
	registry        tool.Registry
	planner         planner.Planner
	selector        planner.Selector
	events          event.Publisher
	metrics         telemetry.Metrics
	maxIterations   int
	maxQuestions    int
	contextLimits   agent.ContextLimits
	plannerTimeout  time.Duration
	selectorTimeout time.Duration
	now             func() time.Time
	newID           func() string

	mu       sync.Mutex
	sessions map[string]*session
}

// OrchestratorConfig contains configuration for the orchestrator.
type OrchestratorConfig struct {
	Registry tool.Registry
	Planner  planner.Planner
	Selector planner.Selector

	// Events receives one progress event per state transition.
	Events  event.Publisher
	Metrics telemetry.Metrics

	MaxIterations int
	ContextLimits agent.ContextLimits

	// MaxClarifications bounds the questions one run may ask. Once spent, a
	// clarify decision is rejected as a synthetic failure.
	MaxClarifications int

	// PlannerTimeout and SelectorTimeout bound a single model call.
	// Zero leaves the call bounded only by the caller's context.
	PlannerTimeout  time.Duration
	SelectorTimeout time.Duration

	// Clock and IDs are overridable for tests.
	Now   func() time.Time
	NewID func() string
}

// NewOrchestrator creates an orchestrator with the given configuration.
func NewOrchestrator(config OrchestratorConfig) (*Orchestrator, error) {
	if config.Registry == nil {
		return nil, errors.New("registry is required")
	}
	if config.Planner == nil {
		return nil, errors.New("planner is required")
	}
	if config.Selector == nil {
		return nil, errors.New("selector is required")
	}
	if config.MaxIterations < 0 {
		return nil, fmt.Errorf("%w: max iterations must be positive, got %d", agent.ErrInvalidBudget, config.MaxIterations)
	}
	if config.MaxClarifications < 0 {
		return nil, fmt.Errorf("%w: max clarifications must be non-negative, got %d", agent.ErrInvalidBudget, config.MaxClarifications)
	}

	o := &Orchestrator{
		registry:        config.Registry,
		planner:         config.Planner,
		selector:        config.Selector,
		events:          config.Events,
		metrics:         config.Metrics,
		maxIterations:   config.MaxIterations,
		maxQuestions:    config.MaxClarifications,
		contextLimits:   config.ContextLimits,
		plannerTimeout:  config.PlannerTimeout,
		selectorTimeout: config.SelectorTimeout,
		now:             config.Now,
		newID:           config.NewID,
		sessions:        make(map[string]*session),
	}

	if o.maxIterations == 0 {
		o.maxIterations = DefaultMaxIterations
	}
	if o.maxQuestions == 0 {
		o.maxQuestions = DefaultMaxClarifications
	}
	if o.contextLimits == (agent.ContextLimits{}) {
		o.contextLimits = agent.DefaultContextLimits()
	}
	if o.metrics == nil {
		o.metrics = telemetry.NoopMetrics{}
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.newID == nil {
		o.newID = func() string { return "run-" + uuid.New().String() }
	}

	return o, nil
}

// Run executes the loop for a goal until it terminates or asks a question.
//
// The returned report is non-nil once the goal was accepted. The error is
// nil for DONE and EXHAUSTED, agent.ErrAwaitingClarification when the run
// is suspended, and wraps agent.ErrPlanningFailed or agent.ErrInfrastructure
// for FATAL.
func (o *Orchestrator) Run(ctx context.Context, goal string) (*agent.Run, error) {
	state, err := agent.NewAgentState(goal, o.maxIterations, o.contextLimits)
	if err != nil {
		return nil, err
	}

	machine, err := statemachine.NewLoopMachine()
	if err != nil {
		return nil, fmt.Errorf("failed to create state machine: %w", err)
	}

	s := &session{
		id:      o.newID(),
		state:   state,
		started: o.now(),
		running: true,
	}
	s.interp = statemachine.NewInterpreter(machine, statemachine.NewContext(state, nil))
	s.interp.Start()

	o.mu.Lock()
	o.sessions[s.id] = s
	o.mu.Unlock()

	o.metrics.IncrementActiveRuns(ctx)
	defer o.metrics.DecrementActiveRuns(ctx)

	logging.Info().
		Add(logging.RunID(s.id)).
		Add(logging.Goal(goal)).
		Add(logging.Int("max_iterations", o.maxIterations)).
		Msg("run started")

	if err := o.plan(ctx, s); err != nil {
		return o.fail(ctx, s, err)
	}
	return o.loop(ctx, s)
}

// Resume answers the pending question of a suspended run and continues the
// loop. The answer is added to the working context before the next
// selection.
func (o *Orchestrator) Resume(ctx context.Context, runID, answer string) (*agent.Run, error) {
	o.mu.Lock()
	s, ok := o.sessions[runID]
	if !ok {
		o.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", agent.ErrRunNotFound, runID)
	}
	switch {
	case s.final != nil:
		o.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", agent.ErrRunTerminated, runID)
	case s.running || s.interp.State() != agent.StateClarifying:
		o.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", agent.ErrRunNotSuspended, runID)
	}
	s.running = true
	o.mu.Unlock()

	o.metrics.IncrementActiveRuns(ctx)
	defer o.metrics.DecrementActiveRuns(ctx)

	question := s.question
	key := s.state.AddClarification(question, answer)
	s.question = ""

	logging.Info().
		Add(logging.RunID(s.id)).
		Add(logging.Str("context_key", key)).
		Msg("run resumed with clarification")

	if err := o.transition(ctx, s, agent.StateSelecting, event.Event{
		Category: event.CategoryAction,
		Message:  "clarification received",
	}); err != nil {
		return o.fail(ctx, s, err)
	}
	return o.loop(ctx, s)
}

// Report returns the latest report of a run known to the orchestrator.
func (o *Orchestrator) Report(runID string) (*agent.Run, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	s, ok := o.sessions[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", agent.ErrRunNotFound, runID)
	}
	switch {
	case s.final != nil:
		r := *s.final
		return &r, nil
	case !s.running && s.latest != nil:
		r := *s.latest
		return &r, nil
	default:
		return nil, fmt.Errorf("%w: %s is still running", agent.ErrRunNotSuspended, runID)
	}
}

// Forget drops a run the orchestrator is not driving. Long-lived callers
// forget every run once they have read its final report.
func (o *Orchestrator) Forget(runID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	s, ok := o.sessions[runID]
	if !ok {
		return fmt.Errorf("%w: %s", agent.ErrRunNotFound, runID)
	}
	if s.running {
		return fmt.Errorf("%w: %s is still running", agent.ErrRunNotSuspended, runID)
	}
	delete(o.sessions, runID)
	return nil
}

// Tools returns the descriptors offered to the selector.
func (o *Orchestrator) Tools() []tool.Descriptor {
	return o.registry.Descriptors()
}

// plan runs PLANNING: one attempt plus a single strict retry.
func (o *Orchestrator) plan(ctx context.Context, s *session) error {
	var causes []error
	for attempt := 1; attempt <= 2; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", agent.ErrInfrastructure, err)
		}

		p, err := o.callPlanner(ctx, planner.PlanRequest{
			Goal:    s.state.Goal(),
			Strict:  attempt > 1,
			Attempt: attempt,
		})
		if err == nil {
			err = s.state.SetPlan(p)
		}
		if err == nil {
			logging.Info().
				Add(logging.RunID(s.id)).
				Add(logging.Attempt(attempt)).
				Add(logging.Int("steps", p.Len())).
				Msg("plan created")
			return o.transition(ctx, s, agent.StateSelecting, event.Event{
				Category: event.CategoryPlan,
				Message:  fmt.Sprintf("plan created with %d steps", p.Len()),
			})
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", agent.ErrInfrastructure, ctx.Err())
		}

		logging.Warn().
			Add(logging.RunID(s.id)).
			Add(logging.Attempt(attempt)).
			Add(logging.ErrorField(err)).
			Msg("planning attempt failed")
		causes = append(causes, err)
	}
	return &agent.PlanningError{Attempts: len(causes), Causes: causes}
}

func (o *Orchestrator) callPlanner(ctx context.Context, req planner.PlanRequest) (*agent.Plan, error) {
	if o.plannerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.plannerTimeout)
		defer cancel()
	}
	p, err := o.planner.Plan(ctx, req)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, agent.ErrEmptyPlan
	}
	return p, nil
}

// loop alternates SELECTING with execution cycles until a terminal state or
// a clarification. Every iteration ends in OBSERVING or a synthetic failure,
// both of which count against the budget, and clarifications are capped, so
// the loop terminates.
func (o *Orchestrator) loop(ctx context.Context, s *session) (*agent.Run, error) {
	for {
		if err := ctx.Err(); err != nil {
			return o.fail(ctx, s, fmt.Errorf("%w: %w", agent.ErrInfrastructure, err))
		}

		decision, err := o.selectAction(ctx, s)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return o.fail(ctx, s, fmt.Errorf("%w: %w", agent.ErrInfrastructure, ctxErr))
		}
		if err != nil {
			if err := o.synthetic(ctx, s, tool.Invocation{}, SelectorFailedPrefix+err.Error()); err != nil {
				return o.fail(ctx, s, err)
			}
			if s.state.BudgetExhausted() {
				return o.finish(ctx, s, nil)
			}
			continue
		}

		logging.Debug().
			Add(logging.RunID(s.id)).
			Add(logging.Iteration(s.state.CurrentIteration())).
			Add(logging.Decision(decision.Kind)).
			Msg("selector decision")

		switch decision.Kind {
		case agent.DecisionDone:
			s.summary = decision.Summary
			if err := o.transition(ctx, s, agent.StateDone, event.Event{
				Category: event.CategorySuccess,
				Message:  decision.Summary,
			}); err != nil {
				return o.fail(ctx, s, err)
			}
			return o.finish(ctx, s, nil)

		case agent.DecisionClarify:
			if asked := s.state.Clarifications(); asked >= o.maxQuestions {
				logging.Warn().
					Add(logging.RunID(s.id)).
					Add(logging.Int("clarifications", asked)).
					Msg("clarification limit reached")
				if err := o.synthetic(ctx, s, tool.Invocation{}, clarificationLimitText(asked)); err != nil {
					return o.fail(ctx, s, err)
				}
				break
			}
			s.question = decision.Question
			if err := o.transition(ctx, s, agent.StateClarifying, event.Event{
				Category: event.CategoryAction,
				Message:  decision.Question,
			}); err != nil {
				return o.fail(ctx, s, err)
			}
			return o.suspend(s)

		case agent.DecisionInvoke:
			inv := *decision.Invocation
			if _, err := o.registry.Lookup(inv.Tool); err != nil {
				err = o.synthetic(ctx, s, inv, tool.NotFoundText(inv.Tool))
				if err != nil {
					return o.fail(ctx, s, err)
				}
			} else if err := o.execute(ctx, s, inv); err != nil {
				return o.fail(ctx, s, err)
			}

		default:
			var raw tool.Invocation
			if decision.Invocation != nil {
				raw = *decision.Invocation
			}
			if err := o.synthetic(ctx, s, raw, decision.FailureText()); err != nil {
				return o.fail(ctx, s, err)
			}
		}

		if s.state.BudgetExhausted() {
			return o.finish(ctx, s, nil)
		}
	}
}

func (o *Orchestrator) selectAction(ctx context.Context, s *session) (agent.Decision, error) {
	if o.selectorTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.selectorTimeout)
		defer cancel()
	}
	d, err := o.selector.Select(ctx, planner.SelectRequest{
		Snapshot: s.state.Snapshot(),
		Tools:    o.registry.Descriptors(),
	})
	if err != nil {
		return agent.Decision{}, err
	}
	return d.Normalize(), nil
}

// synthetic records a failure that no tool produced and consumes one
// iteration. The loop stays in SELECTING unless the budget ran out.
func (o *Orchestrator) synthetic(ctx context.Context, s *session, inv tool.Invocation, text string) error {
	if err := s.state.RecordSynthetic(inv, text); err != nil {
		return fmt.Errorf("%w: %w", agent.ErrInfrastructure, err)
	}
	iteration := s.state.CurrentIteration()
	if err := s.state.CompleteIteration(); err != nil {
		return fmt.Errorf("%w: %w", agent.ErrInfrastructure, err)
	}

	logging.Warn().
		Add(logging.RunID(s.id)).
		Add(logging.Iteration(iteration)).
		Add(logging.ToolName(inv.Tool)).
		Add(logging.ErrorText(text)).
		Msg("synthetic failure")

	if s.state.BudgetExhausted() {
		return o.transition(ctx, s, agent.StateExhausted, event.Event{
			Category:  event.CategoryFailure,
			Iteration: iteration,
			Tool:      inv.Tool,
			Message:   exhaustedMessage(s.state.MaxIterations()),
			ErrorText: text,
		})
	}
	return o.transition(ctx, s, agent.StateSelecting, event.Event{
		Category:       event.CategoryFailure,
		SelfCorrection: true,
		Iteration:      iteration,
		Tool:           inv.Tool,
		StepID:         inv.StepID,
		Message:        "action rejected before execution",
		ErrorText:      text,
	})
}

// execute runs one SELECTING -> EXECUTING -> OBSERVING cycle.
func (o *Orchestrator) execute(ctx context.Context, s *session, inv tool.Invocation) error {
	iteration := s.state.CurrentIteration()

	stepID := inv.StepID
	if stepID != "" {
		if err := s.state.ActivateStep(stepID); err != nil {
			logging.Debug().
				Add(logging.RunID(s.id)).
				Add(logging.StepID(stepID)).
				Add(logging.ErrorField(err)).
				Msg("step attribution ignored")
			stepID = ""
		}
	}

	if err := o.transition(ctx, s, agent.StateExecuting, event.Event{
		Category: event.CategoryAction,
		Tool:     inv.Tool,
		StepID:   stepID,
		Message:  "invoking " + inv.Tool,
	}); err != nil {
		return err
	}

	result := o.registry.Invoke(withRun(ctx, s.id, iteration, stepID), inv)
	if ctx.Err() != nil {
		if stepID != "" {
			s.state.ReleaseStep(stepID)
		}
		return fmt.Errorf("%w: %w", agent.ErrInfrastructure, ctx.Err())
	}
	if !result.IsValid() {
		return fmt.Errorf("%w: registry returned a malformed result for %s", agent.ErrInfrastructure, inv.Tool)
	}

	observed := event.Event{
		Category: event.CategorySuccess,
		Tool:     inv.Tool,
		StepID:   stepID,
		Message:  inv.Tool + " succeeded",
	}
	if result.IsFailure() {
		observed = event.Event{
			Category:       event.CategoryFailure,
			SelfCorrection: true,
			Tool:           inv.Tool,
			StepID:         stepID,
			Message:        inv.Tool + " failed",
			ErrorText:      result.ErrorText(),
		}
	}
	if err := o.transition(ctx, s, agent.StateObserving, observed); err != nil {
		return err
	}

	// OBSERVING: the only place tool results enter the state.
	if err := s.state.RecordResult(inv, result); err != nil {
		return fmt.Errorf("%w: %w", agent.ErrInfrastructure, err)
	}
	if stepID != "" {
		if result.IsSuccess() {
			if err := s.state.MarkStepDone(stepID); err != nil {
				return fmt.Errorf("%w: %w", agent.ErrInfrastructure, err)
			}
		} else {
			s.state.ReleaseStep(stepID)
		}
	}
	if err := s.state.CompleteIteration(); err != nil {
		return fmt.Errorf("%w: %w", agent.ErrInfrastructure, err)
	}

	if s.state.BudgetExhausted() {
		exhausted := event.Event{
			Category: event.CategoryFailure,
			Message:  exhaustedMessage(s.state.MaxIterations()),
		}
		if result.IsFailure() {
			exhausted.Tool = inv.Tool
			exhausted.ErrorText = result.ErrorText()
		}
		exhausted.Iteration = iteration
		return o.transition(ctx, s, agent.StateExhausted, exhausted)
	}
	return o.transition(ctx, s, agent.StateSelecting, event.Event{
		Category:  event.CategoryPlan,
		Iteration: iteration,
		Message:   progressMessage(s.state.Snapshot().Steps),
	})
}

// transition moves the interpreter and emits the progress event of the move.
func (o *Orchestrator) transition(ctx context.Context, s *session, to agent.State, e event.Event) error {
	from := s.interp.State()
	if err := s.interp.Transition(to, e.Message); err != nil {
		return fmt.Errorf("%w: %w", agent.ErrInfrastructure, err)
	}
	o.metrics.RecordTransition(ctx, string(from), string(to))
	if e.SelfCorrection {
		o.metrics.RecordSelfCorrection(ctx, e.Tool)
	}

	s.seq++
	e.RunID = s.id
	e.Sequence = s.seq
	e.From = from
	e.To = to
	if e.Iteration == 0 {
		e.Iteration = s.state.CurrentIteration()
	}
	e.Timestamp = o.now()

	logging.Debug().
		Add(logging.RunID(s.id)).
		Add(logging.FromState(from)).
		Add(logging.ToState(to)).
		Add(logging.Str("category", e.Label())).
		Msg("transition")

	if o.events != nil {
		// The sink is observational; a broken sink does not stop the loop.
		if err := o.events.Publish(context.WithoutCancel(ctx), e); err != nil {
			logging.Warn().
				Add(logging.RunID(s.id)).
				Add(logging.ErrorField(err)).
				Msg("failed to publish progress event")
		}
	}
	return nil
}

// fail moves the run to FATAL and returns its report with err.
func (o *Orchestrator) fail(ctx context.Context, s *session, err error) (*agent.Run, error) {
	s.err = err
	if !s.interp.IsTerminal() {
		if terr := o.transition(ctx, s, agent.StateFatal, event.Event{
			Category:  event.CategoryFailure,
			Message:   "run failed",
			ErrorText: err.Error(),
		}); terr != nil {
			logging.Error().
				Add(logging.RunID(s.id)).
				Add(logging.ErrorField(terr)).
				Msg("failed to enter fatal state")
		}
	}
	return o.finish(ctx, s, err)
}

// finish seals a terminal run and logs the outcome.
func (o *Orchestrator) finish(ctx context.Context, s *session, err error) (*agent.Run, error) {
	end := o.now()
	report := s.report(end)

	o.mu.Lock()
	s.final = report
	s.running = false
	o.mu.Unlock()

	o.metrics.RecordRunDuration(ctx, report.Duration(), string(report.State), report.Iterations)

	entry := logging.Info()
	if err != nil {
		entry = logging.Error().Add(logging.ErrorField(err))
	}
	entry.
		Add(logging.RunID(s.id)).
		Add(logging.State(report.State)).
		Add(logging.Iteration(report.Iterations)).
		Add(logging.Duration(report.Duration())).
		Msg("run finished")

	r := *report
	return &r, err
}

// suspend returns control to the caller with the pending question.
func (o *Orchestrator) suspend(s *session) (*agent.Run, error) {
	report := s.report(time.Time{})

	o.mu.Lock()
	s.latest = report
	s.running = false
	o.mu.Unlock()

	logging.Info().
		Add(logging.RunID(s.id)).
		Add(logging.Str("question", s.question)).
		Msg("run awaiting clarification")

	r := *report
	return &r, agent.ErrAwaitingClarification
}

func clarificationLimitText(asked int) string {
	return fmt.Sprintf("clarification limit reached: %d questions already answered; continue with the information in the working context", asked)
}

func exhaustedMessage(maxIterations int) string {
	return fmt.Sprintf("iteration budget of %d exhausted", maxIterations)
}

func progressMessage(steps []agent.Step) string {
	done := 0
	for _, st := range steps {
		if st.Status == agent.StepDone {
			done++
		}
	}
	return fmt.Sprintf("%d of %d steps done", done, len(steps))
}
