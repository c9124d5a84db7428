package agent

import (
	"strings"

	"github.com/felixgeelhaar/omni/domain/tool"
)

// DecisionKind identifies the variant of an action-selector decision.
type DecisionKind string

const (
	DecisionInvoke    DecisionKind = "invoke"    // Execute a tool
	DecisionDone      DecisionKind = "done"      // Goal achieved
	DecisionClarify   DecisionKind = "clarify"   // Ask the user a question
	DecisionMalformed DecisionKind = "malformed" // Unparseable output
)

// MalformedText is the synthetic failure text fed back for a malformed decision.
const MalformedText = "selector returned malformed output"

// Decision is the closed set of outcomes of one action-selector call.
// Exactly the fields of its Kind are meaningful.
type Decision struct {
	Kind DecisionKind

	// Invocation is set for DecisionInvoke.
	Invocation *tool.Invocation
	// Summary is set for DecisionDone.
	Summary string
	// Question is set for DecisionClarify.
	Question string
	// Raw and Reason are set for DecisionMalformed.
	Raw    string
	Reason string
}

// NewInvokeDecision creates a decision to run a tool.
func NewInvokeDecision(inv tool.Invocation) Decision {
	if inv.Args == nil {
		inv.Args = map[string]any{}
	}
	return Decision{Kind: DecisionInvoke, Invocation: &inv}
}

// NewDoneDecision creates a decision signalling the goal is achieved.
func NewDoneDecision(summary string) Decision {
	return Decision{Kind: DecisionDone, Summary: summary}
}

// NewClarifyDecision creates a decision asking the user a question.
func NewClarifyDecision(question string) Decision {
	return Decision{Kind: DecisionClarify, Question: question}
}

// NewMalformedDecision creates a decision for output that could not be parsed.
func NewMalformedDecision(raw, reason string) Decision {
	return Decision{Kind: DecisionMalformed, Raw: raw, Reason: reason}
}

// Normalize maps any decision outside the valid variant set to malformed.
func (d Decision) Normalize() Decision {
	switch d.Kind {
	case DecisionInvoke:
		if d.Invocation == nil || strings.TrimSpace(d.Invocation.Tool) == "" {
			return NewMalformedDecision(d.Raw, "invoke decision without a tool name")
		}
		return d
	case DecisionDone:
		return d
	case DecisionClarify:
		if strings.TrimSpace(d.Question) == "" {
			return NewMalformedDecision(d.Raw, "clarify decision without a question")
		}
		return d
	case DecisionMalformed:
		return d
	default:
		return NewMalformedDecision(d.Raw, "unknown decision kind "+string(d.Kind))
	}
}

// FailureText returns the synthetic failure text for a malformed decision.
func (d Decision) FailureText() string {
	if d.Reason == "" {
		return MalformedText
	}
	return MalformedText + ": " + d.Reason
}
