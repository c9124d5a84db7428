// Package workspace confines tool paths to a root directory.
package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrOutside indicates a path that resolves outside the root.
	ErrOutside = errors.New("path escapes the workspace")

	// ErrSymlink indicates a path that traverses a symbolic link.
	ErrSymlink = errors.New("symbolic links are not allowed")
)

// Root resolves paths against a workspace directory.
type Root struct {
	dir           string
	allowSymlinks bool
}

// New returns a Root for dir, which must be an existing directory.
func New(dir string, allowSymlinks bool) (*Root, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("invalid workspace root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("workspace root does not exist: %w", err)
	}
	if !info.IsDir() {
		return nil, errors.New("workspace root is not a directory")
	}
	return &Root{dir: abs, allowSymlinks: allowSymlinks}, nil
}

// Dir returns the absolute root directory.
func (r *Root) Dir() string {
	return r.dir
}

// Resolve returns the absolute path for p and its slash-separated form
// relative to the root. Relative paths are joined to the root; an empty
// path is the root itself.
func (r *Root) Resolve(p string) (string, string, error) {
	if strings.TrimSpace(p) == "" {
		p = "."
	}
	abs := p
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(r.dir, abs)
	}
	abs = filepath.Clean(abs)

	rel, err := filepath.Rel(r.dir, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", "", fmt.Errorf("%w: %s", ErrOutside, p)
	}

	if !r.allowSymlinks && rel != "." {
		current := r.dir
		for _, part := range strings.Split(rel, string(filepath.Separator)) {
			current = filepath.Join(current, part)
			info, err := os.Lstat(current)
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					break
				}
				return "", "", err
			}
			if info.Mode()&fs.ModeSymlink != 0 {
				return "", "", fmt.Errorf("%w: %s", ErrSymlink, p)
			}
		}
	}
	return abs, filepath.ToSlash(rel), nil
}
