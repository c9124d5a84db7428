// Package codeedit provides structure-aware source editing tools.
//
// Edits address declarations by name rather than by text, so the model can
// rewrite a function without reproducing the rest of the file. Each file
// extension maps to an Editor; Go is supported out of the box.
package codeedit

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/felixgeelhaar/omni/domain/pack"
	"github.com/felixgeelhaar/omni/domain/tool"
	"github.com/felixgeelhaar/omni/pack/internal/linediff"
	"github.com/felixgeelhaar/omni/pack/internal/workspace"
)

// Config configures the codeedit pack.
type Config struct {
	Root          string
	Editors       map[string]Editor
	AllowSymlinks bool
}

// Option configures the codeedit pack.
type Option func(*Config)

// WithRoot sets the workspace root.
func WithRoot(dir string) Option {
	return func(c *Config) {
		c.Root = dir
	}
}

// WithEditor registers an editor for a file extension such as ".py".
func WithEditor(ext string, e Editor) Option {
	return func(c *Config) {
		c.Editors[strings.ToLower(ext)] = e
	}
}

// WithSymlinks allows following symbolic links inside the workspace.
func WithSymlinks() Option {
	return func(c *Config) {
		c.AllowSymlinks = true
	}
}

// New creates the codeedit pack.
func New(opts ...Option) (*pack.Pack, error) {
	cfg := Config{
		Root:    ".",
		Editors: map[string]Editor{".go": GoEditor{}},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	root, err := workspace.New(cfg.Root, cfg.AllowSymlinks)
	if err != nil {
		return nil, err
	}
	cfg.Root = root.Dir()

	s := &sources{cfg: cfg, root: root}
	return pack.NewBuilder("codeedit").
		WithDescription("List and rewrite named declarations in source files").
		WithVersion("1.0.0").
		AddTools(
			listElementsTool(s),
			replaceElementTool(s),
			addImportTool(s),
		).
		Build()
}

type sources struct {
	cfg  Config
	root *workspace.Root
}

type sourceFile struct {
	abs, rel string
	content  string
	editor   Editor
}

// open resolves path, picks its editor and reads the file. A non-nil
// failure is reported to the model as is.
func (s *sources) open(path string) (*sourceFile, *tool.Result, error) {
	abs, rel, err := s.root.Resolve(path)
	if err != nil {
		f := tool.Failure(err.Error())
		return nil, &f, nil
	}
	ed, ok := s.cfg.Editors[strings.ToLower(filepath.Ext(abs))]
	if !ok {
		f := tool.Failuref("no structural editor for %q files", filepath.Ext(abs))
		return nil, &f, nil
	}
	data, err := os.ReadFile(abs) // #nosec G304 -- confined to the workspace
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			f := tool.Failuref("file not found: %s", path)
			return nil, &f, nil
		}
		return nil, nil, err
	}
	return &sourceFile{abs: abs, rel: rel, content: string(data), editor: ed}, nil, nil
}

func editFailure(err error) (tool.Result, error) {
	if errors.Is(err, ErrElementNotFound) || errors.Is(err, ErrInvalidSource) {
		return tool.Failure(err.Error()), nil
	}
	return tool.Result{}, err
}

// --- code_list_elements ---

type listElementsInput struct {
	Path string `json:"path"`
}

type listElementsOutput struct {
	Path     string   `json:"path"`
	Elements []string `json:"elements"`
}

func listElementsTool(s *sources) tool.Tool {
	return tool.NewBuilder("code_list_elements").
		WithDescription("List the top-level declarations (functions, methods as Type.Method, types, constants, variables) of a source file").
		WithParam("path", tool.RequiredParam(tool.TypeString, "source file relative to the workspace root")).
		ReadOnly().
		WithHandler(func(ctx context.Context, input json.RawMessage) (tool.Result, error) {
			var in listElementsInput
			if err := json.Unmarshal(input, &in); err != nil {
				return tool.Result{}, err
			}
			src, failure, err := s.open(in.Path)
			if failure != nil || err != nil {
				return derefResult(failure), err
			}
			names, err := src.editor.Elements(ctx, src.content)
			if err != nil {
				return editFailure(err)
			}
			if names == nil {
				names = []string{}
			}
			return tool.SuccessJSON(listElementsOutput{Path: src.rel, Elements: names}), nil
		}).
		MustBuild()
}

// --- code_edit_replace ---

type replaceElementInput struct {
	Path    string `json:"path"`
	Element string `json:"element"`
	Code    string `json:"code"`
}

type editOutput struct {
	Path  string `json:"path"`
	Patch string `json:"patch,omitempty"`
}

func replaceElementTool(s *sources) tool.Tool {
	return tool.NewBuilder("code_edit_replace").
		WithDescription("Replace a named declaration, including its doc comment, with new code; the file must still parse afterwards").
		WithParam("path", tool.RequiredParam(tool.TypeString, "source file relative to the workspace root")).
		WithParam("element", tool.RequiredParam(tool.TypeString, "declaration name, e.g. ParseConfig or Server.Start")).
		WithParam("code", tool.RequiredParam(tool.TypeString, "complete replacement declaration")).
		WithRiskLevel(tool.RiskLow).
		WithHandler(func(ctx context.Context, input json.RawMessage) (tool.Result, error) {
			var in replaceElementInput
			if err := json.Unmarshal(input, &in); err != nil {
				return tool.Result{}, err
			}
			if strings.TrimSpace(in.Element) == "" {
				return tool.Failure("element must not be empty"), nil
			}
			src, failure, err := s.open(in.Path)
			if failure != nil || err != nil {
				return derefResult(failure), err
			}
			updated, err := src.editor.ReplaceElement(ctx, src.content, in.Element, in.Code)
			if err != nil {
				return editFailure(err)
			}
			return save(src, updated)
		}).
		MustBuild()
}

// --- code_edit_add_import ---

type addImportInput struct {
	Path   string `json:"path"`
	Import string `json:"import"`
	Alias  string `json:"alias,omitempty"`
}

func addImportTool(s *sources) tool.Tool {
	return tool.NewBuilder("code_edit_add_import").
		WithDescription("Add an import to a source file unless it is already present").
		WithParam("path", tool.RequiredParam(tool.TypeString, "source file relative to the workspace root")).
		WithParam("import", tool.RequiredParam(tool.TypeString, "import path, e.g. net/http")).
		WithParam("alias", tool.OptionalParam(tool.TypeString, "optional import name")).
		Idempotent().
		WithRiskLevel(tool.RiskLow).
		WithHandler(func(ctx context.Context, input json.RawMessage) (tool.Result, error) {
			var in addImportInput
			if err := json.Unmarshal(input, &in); err != nil {
				return tool.Result{}, err
			}
			src, failure, err := s.open(in.Path)
			if failure != nil || err != nil {
				return derefResult(failure), err
			}
			updated, err := src.editor.AddImport(ctx, src.content, in.Import, in.Alias)
			if err != nil {
				return editFailure(err)
			}
			return save(src, updated)
		}).
		MustBuild()
}

func save(src *sourceFile, after string) (tool.Result, error) {
	if src.content == after {
		return tool.SuccessJSON(editOutput{Path: src.rel}), nil
	}
	info, err := os.Stat(src.abs)
	if err != nil {
		return tool.Result{}, err
	}
	if err := os.WriteFile(src.abs, []byte(after), info.Mode().Perm()); err != nil {
		return tool.Result{}, err
	}
	return tool.SuccessJSON(editOutput{Path: src.rel, Patch: linediff.File(src.rel, src.content, after)}), nil
}

func derefResult(r *tool.Result) tool.Result {
	if r == nil {
		return tool.Result{}
	}
	return *r
}
