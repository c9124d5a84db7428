package tool

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status is the discriminator of a Result.
type Status int

const (
	statusUnset Status = iota
	StatusSuccess
	StatusFailure
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailure:
		return "failure"
	default:
		return "unset"
	}
}

// Result is the outcome of one tool invocation: either a success carrying
// output or a failure carrying error text, never both.
//
// The zero value is neither and is rejected by IsValid.
type Result struct {
	status  Status
	output  string
	errText string

	// Duration is how long the execution took.
	Duration time.Duration
}

// Success creates a successful result with the given output.
func Success(output string) Result {
	return Result{status: StatusSuccess, output: output}
}

// SuccessJSON creates a successful result whose output is the JSON encoding of v.
// An encoding error yields a failure.
func SuccessJSON(v any) Result {
	data, err := json.Marshal(v)
	if err != nil {
		return Failure(fmt.Sprintf("encode output: %v", err))
	}
	return Success(string(data))
}

// Failure creates a failed result with the given error text.
func Failure(errText string) Result {
	if errText == "" {
		errText = "unknown error"
	}
	return Result{status: StatusFailure, errText: errText}
}

// Failuref creates a failed result from a format string.
func Failuref(format string, args ...any) Result {
	return Failure(fmt.Sprintf(format, args...))
}

// Status returns the result discriminator.
func (r Result) Status() Status {
	return r.status
}

// IsValid reports whether the result is exactly one of success or failure.
func (r Result) IsValid() bool {
	return r.status == StatusSuccess || r.status == StatusFailure
}

// IsSuccess returns true for a success result.
func (r Result) IsSuccess() bool {
	return r.status == StatusSuccess
}

// IsFailure returns true for a failure result.
func (r Result) IsFailure() bool {
	return r.status == StatusFailure
}

// Output returns the success output, or "" for a failure.
func (r Result) Output() string {
	return r.output
}

// ErrorText returns the failure text, or "" for a success.
func (r Result) ErrorText() string {
	return r.errText
}

// WithDuration returns a copy of the result with timing information.
func (r Result) WithDuration(d time.Duration) Result {
	r.Duration = d
	return r
}

// String renders the result for logs and prompts.
func (r Result) String() string {
	switch r.status {
	case StatusSuccess:
		return "success: " + r.output
	case StatusFailure:
		return "failure: " + r.errText
	default:
		return "invalid result"
	}
}

type resultJSON struct {
	Status     string `json:"status"`
	Output     string `json:"output,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (r Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(resultJSON{
		Status:     r.status.String(),
		Output:     r.output,
		Error:      r.errText,
		DurationMs: r.Duration.Milliseconds(),
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Result) UnmarshalJSON(data []byte) error {
	var raw resultJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw.Status {
	case "success":
		*r = Success(raw.Output)
	case "failure":
		*r = Failure(raw.Error)
	default:
		return fmt.Errorf("%w: status %q", ErrInvalidResult, raw.Status)
	}
	r.Duration = time.Duration(raw.DurationMs) * time.Millisecond
	return nil
}
