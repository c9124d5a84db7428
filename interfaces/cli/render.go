package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/felixgeelhaar/omni/domain/agent"
	"github.com/felixgeelhaar/omni/domain/event"
)

// Palette of the progress stream.
var (
	colorPlan    = lipgloss.Color("#A78BFA")
	colorAction  = lipgloss.Color("#22D3EE")
	colorSuccess = lipgloss.Color("#34D399")
	colorFailure = lipgloss.Color("#F87171")
	colorWarning = lipgloss.Color("#FBBF24")
	colorMuted   = lipgloss.Color("#9CA3AF")
)

type styles struct {
	plan, action, success, failure, correction lipgloss.Style
	muted, bold, warning                       lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	label := r.NewStyle().Bold(true).Width(17)
	return styles{
		plan:       label.Foreground(colorPlan),
		action:     label.Foreground(colorAction),
		success:    label.Foreground(colorSuccess),
		failure:    label.Foreground(colorFailure),
		correction: label.Foreground(colorWarning),
		muted:      r.NewStyle().Foreground(colorMuted),
		bold:       r.NewStyle().Bold(true),
		warning:    r.NewStyle().Foreground(colorWarning).Bold(true),
	}
}

func (s styles) label(e event.Event) lipgloss.Style {
	switch {
	case e.SelfCorrection:
		return s.correction
	case e.Category == event.CategoryPlan:
		return s.plan
	case e.Category == event.CategorySuccess:
		return s.success
	case e.Category == event.CategoryFailure:
		return s.failure
	default:
		return s.action
	}
}

// Renderer writes the progress stream as category-coloured lines. It is an
// event.Publisher so it can sit behind the event fan-out.
type Renderer struct {
	mu      sync.Mutex
	out     io.Writer
	styles  styles
	verbose bool
}

// NewRenderer creates a renderer writing to out. Verbose adds the
// transition and iteration of every event.
func NewRenderer(out io.Writer, verbose bool) *Renderer {
	return &Renderer{
		out:     out,
		styles:  newStyles(out),
		verbose: verbose,
	}
}

// Publish renders events in order.
func (r *Renderer) Publish(_ context.Context, events ...event.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range events {
		if _, err := io.WriteString(r.out, r.line(e)); err != nil {
			return err
		}
	}
	return nil
}

// Close is a no-op.
func (r *Renderer) Close() error {
	return nil
}

func (r *Renderer) line(e event.Event) string {
	var b strings.Builder
	b.WriteString(r.styles.label(e).Render("[" + e.Label() + "]"))
	b.WriteString(e.Message)
	if r.verbose {
		detail := fmt.Sprintf("  (%s → %s, iteration %d", e.From, e.To, e.Iteration)
		if e.Tool != "" {
			detail += ", tool " + e.Tool
		}
		if e.StepID != "" {
			detail += ", step " + e.StepID
		}
		b.WriteString(r.styles.muted.Render(detail + ")"))
	}
	b.WriteByte('\n')

	if e.ErrorText != "" && e.Category == event.CategoryFailure {
		for _, l := range strings.Split(strings.TrimRight(e.ErrorText, "\n"), "\n") {
			b.WriteString(r.styles.muted.Render("    │ " + l))
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// printReport writes the outcome of a run.
func printReport(w io.Writer, s styles, run *agent.Run) {
	fmt.Fprintln(w)
	switch run.State {
	case agent.StateDone:
		fmt.Fprintln(w, s.success.UnsetWidth().Render("✓ Goal completed"))
		if run.Summary != "" {
			fmt.Fprintln(w, "  "+run.Summary)
		}
	case agent.StateExhausted:
		fmt.Fprintln(w, s.warning.Render("! Iteration budget exhausted"))
		if last := run.Snapshot.LastAction; last != nil && last.Failed() {
			fmt.Fprintln(w, "  last failure: "+firstLine(last.Result.ErrorText()))
		}
	case agent.StateFatal:
		fmt.Fprintln(w, s.failure.UnsetWidth().Render("✗ Run failed"))
		if run.Error != "" {
			fmt.Fprintln(w, "  "+run.Error)
		}
	default:
		fmt.Fprintf(w, "Run stopped in %s\n", run.State)
	}

	done := len(run.DoneSteps())
	fmt.Fprintln(w, s.muted.Render(fmt.Sprintf("  run %s · %d/%d iterations · %d/%d steps done · %s",
		run.ID, run.Iterations, run.Snapshot.MaxIterations, done, len(run.Snapshot.Steps),
		run.EndTime.Sub(run.StartTime).Round(time.Millisecond))))
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
