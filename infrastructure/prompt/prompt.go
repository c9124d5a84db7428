// Package prompt renders the planner and action selector prompts.
package prompt

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
	"unicode/utf8"

	"github.com/felixgeelhaar/omni/domain/agent"
	"github.com/felixgeelhaar/omni/domain/tool"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// DefaultMaxOutput bounds the last successful output shown to the selector.
const DefaultMaxOutput = 4000

// Plan size the planner prompt asks for when the bounds allow it.
const (
	targetMinSteps = 5
	targetMaxSteps = 7
)

// Builder renders prompts from the embedded templates.
type Builder struct {
	tmpl      *template.Template
	maxOutput int
	minSteps  int
	maxSteps  int
	persona   string
}

// Option configures a Builder.
type Option func(*Builder)

// WithMaxOutput bounds the last successful output rendered into the
// selector prompt. Failure text is never shortened.
func WithMaxOutput(n int) Option {
	return func(b *Builder) {
		b.maxOutput = n
	}
}

// WithPlanBounds sets the accepted plan size.
func WithPlanBounds(minSteps, maxSteps int) Option {
	return func(b *Builder) {
		b.minSteps = minSteps
		b.maxSteps = maxSteps
	}
}

// WithPersona opens both system prompts with a persona preamble.
func WithPersona(preamble string) Option {
	return func(b *Builder) {
		b.persona = strings.TrimSpace(preamble)
	}
}

// NewBuilder parses the embedded templates.
func NewBuilder(opts ...Option) (*Builder, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse prompt templates: %w", err)
	}
	b := &Builder{
		tmpl:      tmpl,
		maxOutput: DefaultMaxOutput,
		minSteps:  1,
		maxSteps:  targetMaxSteps,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// MustBuilder is NewBuilder that panics on a template error. The templates
// are embedded, so an error is a build defect.
func MustBuilder(opts ...Option) *Builder {
	b, err := NewBuilder(opts...)
	if err != nil {
		panic(err)
	}
	return b
}

// PlanPrompt holds the rendered planner messages.
type PlanPrompt struct {
	System string
	User   string
}

type planData struct {
	Persona   string
	Goal      string
	Strict    bool
	MinSteps  int
	MaxSteps  int
	TargetMin int
	TargetMax int
}

// Plan renders the planner prompt. Strict adds the formatting instruction
// used for the retry after an unusable answer.
func (b *Builder) Plan(goal string, strict bool) (PlanPrompt, error) {
	data := planData{
		Persona:   b.persona,
		Goal:      goal,
		Strict:    strict,
		MinSteps:  b.minSteps,
		MaxSteps:  b.maxSteps,
		TargetMin: clamp(targetMinSteps, b.minSteps, b.maxSteps),
		TargetMax: clamp(targetMaxSteps, b.minSteps, b.maxSteps),
	}
	system, err := b.render("planner_system.tmpl", data)
	if err != nil {
		return PlanPrompt{}, err
	}
	user, err := b.render("planner_user.tmpl", data)
	if err != nil {
		return PlanPrompt{}, err
	}
	return PlanPrompt{System: system, User: user}, nil
}

// SelectorSystem returns the fixed system prompt of the action selector.
func (b *Builder) SelectorSystem() (string, error) {
	return b.render("selector_system.tmpl", struct{ Persona string }{b.persona})
}

type toolData struct {
	Name        string
	Description string
	Parameters  string
	Confirm     bool
}

type lastData struct {
	Tool   string
	Args   string
	StepID string
	Failed bool
	Error  string
	Output string
}

type selectData struct {
	Goal          string
	Steps         []agent.Step
	Tools         []toolData
	Markers       []string
	Entries       []agent.ContextEntry
	Last          *lastData
	Iteration     int
	MaxIterations int
}

// Select renders the action selector prompt for a snapshot. When the last
// action failed the prompt carries the failed invocation and its verbatim
// error text.
func (b *Builder) Select(snap agent.Snapshot, tools []tool.Descriptor) (string, error) {
	data := selectData{
		Goal:          snap.Goal,
		Steps:         snap.Steps,
		Markers:       snap.Context.Markers(),
		Entries:       snap.Context.Entries,
		Iteration:     snap.Iteration,
		MaxIterations: snap.MaxIterations,
	}
	for _, d := range tools {
		params, err := json.Marshal(d.Parameters.JSONSchema())
		if err != nil {
			return "", fmt.Errorf("encode parameters of %s: %w", d.Name, err)
		}
		data.Tools = append(data.Tools, toolData{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  string(params),
			Confirm:     d.Annotations.NeedsConfirmation(),
		})
	}
	if last := snap.LastAction; last != nil {
		ld, err := b.last(*last)
		if err != nil {
			return "", err
		}
		data.Last = ld
	}
	return b.render("selector_user.tmpl", data)
}

func (b *Builder) last(rec agent.ActionRecord) (*lastData, error) {
	args, err := json.Marshal(rec.Invocation.Args)
	if err != nil {
		return nil, fmt.Errorf("encode last invocation: %w", err)
	}
	name := rec.Invocation.Tool
	if name == "" {
		name = "(none)"
	}
	ld := &lastData{
		Tool:   name,
		Args:   string(args),
		StepID: rec.Invocation.StepID,
		Failed: rec.Result.IsFailure(),
		Error:  rec.Result.ErrorText(),
		Output: rec.Result.Output(),
	}
	if b.maxOutput > 0 && len(ld.Output) > b.maxOutput {
		ld.Output = truncate(ld.Output, b.maxOutput) + "\n[output truncated]"
	}
	return ld, nil
}

func (b *Builder) render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := b.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
