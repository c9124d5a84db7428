package tool

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors for the tool system.
var (
	// ErrEmptyName indicates a tool was created with an empty name.
	ErrEmptyName = errors.New("tool name cannot be empty")

	// ErrNoHandler indicates a tool was created without a handler.
	ErrNoHandler = errors.New("tool has no handler")

	// ErrToolNotFound indicates the requested tool was not found.
	ErrToolNotFound = errors.New("tool not found")

	// ErrToolExists indicates a tool with the same name already exists.
	ErrToolExists = errors.New("tool already exists")

	// ErrInvalidArguments indicates the arguments failed schema validation.
	ErrInvalidArguments = errors.New("invalid arguments")

	// ErrInvalidParamType indicates a schema parameter has an unknown type.
	ErrInvalidParamType = errors.New("invalid parameter type")

	// ErrInvalidResult indicates a result that is neither success nor failure.
	ErrInvalidResult = errors.New("invalid tool result")

	// ErrConfirmationDeclined indicates the confirmation gate refused the call.
	ErrConfirmationDeclined = errors.New("confirmation declined")

	// ErrExecutionTimeout indicates the tool execution timed out.
	ErrExecutionTimeout = errors.New("tool execution timed out")
)

// DeclinedByUser is the failure text produced when the confirmation gate refuses a call.
const DeclinedByUser = "declined by user"

// FieldError describes one argument that failed validation.
type FieldError struct {
	Param   string
	Message string
}

func (e FieldError) String() string {
	return fmt.Sprintf("%s: %s", e.Param, e.Message)
}

// ValidationError is returned by Schema.Validate.
type ValidationError struct {
	Fields []FieldError
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.String()
	}
	return strings.Join(parts, "; ")
}

// Unwrap allows errors.Is(err, ErrInvalidArguments).
func (e *ValidationError) Unwrap() error {
	return ErrInvalidArguments
}

// NotFoundText renders the failure text for an unknown tool name.
func NotFoundText(name string) string {
	return fmt.Sprintf("tool '%s' not found", name)
}

// InvalidArgumentsText renders the failure text for arguments that failed validation.
func InvalidArgumentsText(name string, err error) string {
	return fmt.Sprintf("invalid arguments for %s: %v", name, err)
}
