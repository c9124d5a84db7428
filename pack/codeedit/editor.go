package codeedit

import (
	"context"
	"errors"
)

var (
	// ErrElementNotFound indicates that a named element does not exist in
	// the source.
	ErrElementNotFound = errors.New("element not found")

	// ErrInvalidSource indicates source that does not parse, either before
	// or after an edit.
	ErrInvalidSource = errors.New("invalid source")
)

// Editor performs structural edits on the source of one language.
// Implementations return the complete new source and never touch the
// filesystem.
type Editor interface {
	// Elements lists the top-level element names of the source.
	Elements(ctx context.Context, source string) ([]string, error)

	// ReplaceElement replaces the element called name, including its doc
	// comment, with code.
	ReplaceElement(ctx context.Context, source, name, code string) (string, error)

	// AddImport adds an import unless it is already present.
	AddImport(ctx context.Context, source, path, alias string) (string, error)
}
