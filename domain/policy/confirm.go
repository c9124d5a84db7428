package policy

import (
	"context"
	"fmt"
	"time"
)

// ConfirmationRequest describes a high-risk tool call awaiting the user's consent.
type ConfirmationRequest struct {
	RunID       string         `json:"run_id"`
	ToolName    string         `json:"tool_name"`
	Description string         `json:"description"`
	Args        map[string]any `json:"args"`
	RiskLevel   string         `json:"risk_level"`
	Timestamp   time.Time      `json:"timestamp"`
}

// Confirmer is the external confirmation gate consumed by high-risk tools.
// Returning false, or an error, declines the call.
type Confirmer interface {
	Confirm(ctx context.Context, req ConfirmationRequest) (bool, error)
}

// ConfirmFunc adapts a function to the Confirmer interface.
type ConfirmFunc func(ctx context.Context, req ConfirmationRequest) (bool, error)

// Confirm calls f.
func (f ConfirmFunc) Confirm(ctx context.Context, req ConfirmationRequest) (bool, error) {
	return f(ctx, req)
}

// AutoConfirmer approves every request.
type AutoConfirmer struct{}

// Confirm always approves.
func (AutoConfirmer) Confirm(context.Context, ConfirmationRequest) (bool, error) {
	return true, nil
}

// DenyConfirmer declines every request.
type DenyConfirmer struct{}

// Confirm always declines.
func (DenyConfirmer) Confirm(context.Context, ConfirmationRequest) (bool, error) {
	return false, nil
}

// ConfirmationMode selects how the confirmation gate answers.
type ConfirmationMode string

const (
	ConfirmPrompt ConfirmationMode = "prompt" // Ask the user
	ConfirmAuto   ConfirmationMode = "auto"   // Approve everything
	ConfirmDeny   ConfirmationMode = "deny"   // Decline everything
)

// ParseConfirmationMode validates a confirmation mode name.
func ParseConfirmationMode(s string) (ConfirmationMode, error) {
	switch m := ConfirmationMode(s); m {
	case ConfirmPrompt, ConfirmAuto, ConfirmDeny:
		return m, nil
	case "":
		return ConfirmPrompt, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownConfirmationMode, s)
	}
}

// ConfirmationPolicy decides which tools pass through the gate beyond their
// own annotations.
type ConfirmationPolicy struct {
	// RequireForTools lists tools that always require confirmation.
	RequireForTools []string `json:"require_for_tools,omitempty" yaml:"require_for_tools,omitempty"`

	// ExemptTools lists tools that never require confirmation.
	ExemptTools []string `json:"exempt_tools,omitempty" yaml:"exempt_tools,omitempty"`
}

// Requires reports whether a call must be confirmed. highRisk is the tool's
// own classification.
func (p ConfirmationPolicy) Requires(toolName string, highRisk bool) bool {
	for _, exempt := range p.ExemptTools {
		if exempt == toolName {
			return false
		}
	}
	for _, required := range p.RequireForTools {
		if required == toolName {
			return true
		}
	}
	return highRisk
}
