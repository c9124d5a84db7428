package policy

import "errors"

// Domain errors for policy enforcement.
var (
	// ErrBudgetExceeded indicates a tool call budget has been spent.
	ErrBudgetExceeded = errors.New("budget exceeded")

	// ErrNoConfirmer indicates a high-risk tool ran without a confirmation gate.
	ErrNoConfirmer = errors.New("no confirmer configured")

	// ErrRateLimitExceeded indicates the tool call rate limit was hit.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrUnknownConfirmationMode indicates an unrecognized confirmation mode.
	ErrUnknownConfirmationMode = errors.New("unknown confirmation mode")
)
