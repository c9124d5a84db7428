// Package tool provides the domain model for agent tools.
package tool

import (
	"fmt"
	"strings"
	"time"
)

// RiskLevel indicates the potential impact of a tool execution.
type RiskLevel int

const (
	RiskNone     RiskLevel = iota // No risk - purely informational
	RiskLow                       // Low risk - reversible changes
	RiskMedium                    // Medium risk - may require cleanup
	RiskHigh                      // High risk - difficult to reverse
	RiskCritical                  // Critical risk - irreversible or destructive
)

// String returns the string representation of the risk level.
func (r RiskLevel) String() string {
	switch r {
	case RiskNone:
		return "none"
	case RiskLow:
		return "low"
	case RiskMedium:
		return "medium"
	case RiskHigh:
		return "high"
	case RiskCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// ParseRiskLevel parses a risk level name.
func ParseRiskLevel(s string) (RiskLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none":
		return RiskNone, nil
	case "low":
		return RiskLow, nil
	case "medium":
		return RiskMedium, nil
	case "high":
		return RiskHigh, nil
	case "critical":
		return RiskCritical, nil
	default:
		return RiskNone, fmt.Errorf("unknown risk level %q", s)
	}
}

// Annotations describe tool behavior for confirmation and retry decisions.
type Annotations struct {
	// ReadOnly indicates the tool has no side effects.
	ReadOnly bool `json:"read_only"`

	// Destructive indicates the tool may cause irreversible changes.
	Destructive bool `json:"destructive"`

	// Idempotent indicates multiple calls with same input yield same result.
	Idempotent bool `json:"idempotent"`

	// RiskLevel indicates the potential impact of execution.
	RiskLevel RiskLevel `json:"risk_level"`

	// RequiresConfirmation forces the confirmation gate regardless of risk.
	RequiresConfirmation bool `json:"requires_confirmation"`

	// Timeout overrides the default execution timeout (0 = default).
	Timeout time.Duration `json:"timeout,omitempty"`
}

// DefaultAnnotations returns annotations with safe defaults.
func DefaultAnnotations() Annotations {
	return Annotations{RiskLevel: RiskLow}
}

// NeedsConfirmation returns true if the tool is high-risk and must pass
// the confirmation gate before running.
func (a Annotations) NeedsConfirmation() bool {
	return a.RequiresConfirmation || a.Destructive || a.RiskLevel >= RiskHigh
}

// CanRetry returns true if the tool can be safely retried on failure.
func (a Annotations) CanRetry() bool {
	return (a.Idempotent || a.ReadOnly) && !a.Destructive
}
