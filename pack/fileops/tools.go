package fileops

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/felixgeelhaar/omni/domain/tool"
)

// --- read_file ---

type readFileInput struct {
	Path   string `json:"path"`
	Offset int64  `json:"offset,omitempty"`
}

type readFileOutput struct {
	Path      string `json:"path"`
	Content   string `json:"content"`
	Size      int64  `json:"size"`
	Truncated bool   `json:"truncated,omitempty"`
}

func readFileTool(ws *files) tool.Tool {
	return tool.NewBuilder("read_file").
		WithDescription("Read a text file from the workspace").
		WithParam("path", tool.RequiredParam(tool.TypeString, "file path relative to the workspace root")).
		WithParam("offset", tool.OptionalParam(tool.TypeInteger, "byte offset to start reading from")).
		ReadOnly().
		WithHandler(func(_ context.Context, input json.RawMessage) (tool.Result, error) {
			var in readFileInput
			if err := json.Unmarshal(input, &in); err != nil {
				return tool.Result{}, err
			}
			abs, rel, err := ws.resolve(in.Path)
			if err != nil {
				return tool.Failure(err.Error()), nil
			}

			info, err := os.Stat(abs)
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return tool.Failuref("file not found: %s", in.Path), nil
				}
				return tool.Result{}, err
			}
			if info.IsDir() {
				return tool.Failuref("%s is a directory", in.Path), nil
			}

			f, err := os.Open(abs) // #nosec G304 -- confined to the workspace
			if err != nil {
				return tool.Result{}, err
			}
			defer f.Close()

			if in.Offset > 0 {
				if _, err := f.Seek(in.Offset, io.SeekStart); err != nil {
					return tool.Result{}, err
				}
			}

			// One extra byte detects truncation.
			data, err := io.ReadAll(io.LimitReader(f, ws.cfg.MaxFileSize+1))
			if err != nil {
				return tool.Result{}, err
			}
			truncated := int64(len(data)) > ws.cfg.MaxFileSize
			if truncated {
				cut := int(ws.cfg.MaxFileSize)
				for cut > 0 && !utf8.RuneStart(data[cut]) {
					cut--
				}
				data = data[:cut]
			}

			return tool.SuccessJSON(readFileOutput{
				Path:      rel,
				Content:   string(data),
				Size:      info.Size(),
				Truncated: truncated,
			}), nil
		}).
		MustBuild()
}

// --- write_file ---

type writeFileInput struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

type changeOutput struct {
	Path    string `json:"path"`
	Created bool   `json:"created,omitempty"`
	Bytes   int    `json:"bytes"`
	Patch   string `json:"patch,omitempty"`
}

func writeFileTool(ws *files) tool.Tool {
	return tool.NewBuilder("write_file").
		WithDescription("Create or overwrite a file with the given content; returns a patch of the change").
		WithParam("path", tool.RequiredParam(tool.TypeString, "file path relative to the workspace root")).
		WithParam("content", tool.RequiredParam(tool.TypeString, "complete new file content")).
		Idempotent().
		WithRiskLevel(tool.RiskLow).
		WithHandler(func(_ context.Context, input json.RawMessage) (tool.Result, error) {
			var in writeFileInput
			if err := json.Unmarshal(input, &in); err != nil {
				return tool.Result{}, err
			}
			abs, rel, err := ws.resolve(in.Path)
			if err != nil {
				return tool.Failure(err.Error()), nil
			}

			before, created, err := readExisting(abs)
			if err != nil {
				return tool.Result{}, err
			}
			if err := writeFile(abs, in.Content); err != nil {
				return tool.Result{}, err
			}

			return tool.SuccessJSON(changeOutput{
				Path:    rel,
				Created: created,
				Bytes:   len(in.Content),
				Patch:   patch(rel, before, in.Content),
			}), nil
		}).
		MustBuild()
}

// --- replace_in_file ---

type replaceInput struct {
	Path string `json:"path"`
	Old  string `json:"old"`
	New  string `json:"new"`
	All  bool   `json:"all,omitempty"`
}

func replaceInFileTool(ws *files) tool.Tool {
	return tool.NewBuilder("replace_in_file").
		WithDescription("Replace an exact snippet in a file; fails when the snippet is missing or ambiguous").
		WithParam("path", tool.RequiredParam(tool.TypeString, "file path relative to the workspace root")).
		WithParam("old", tool.RequiredParam(tool.TypeString, "exact text to replace")).
		WithParam("new", tool.RequiredParam(tool.TypeString, "replacement text")).
		WithParam("all", tool.OptionalParam(tool.TypeBoolean, "replace every occurrence")).
		WithRiskLevel(tool.RiskLow).
		WithHandler(func(_ context.Context, input json.RawMessage) (tool.Result, error) {
			var in replaceInput
			if err := json.Unmarshal(input, &in); err != nil {
				return tool.Result{}, err
			}
			if in.Old == "" {
				return tool.Failure("old text must not be empty"), nil
			}
			abs, rel, err := ws.resolve(in.Path)
			if err != nil {
				return tool.Failure(err.Error()), nil
			}

			data, err := os.ReadFile(abs) // #nosec G304 -- confined to the workspace
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return tool.Failuref("file not found: %s", in.Path), nil
				}
				return tool.Result{}, err
			}
			before := string(data)

			count := strings.Count(before, in.Old)
			switch {
			case count == 0:
				return tool.Failuref("text to replace not found in %s", in.Path), nil
			case count > 1 && !in.All:
				return tool.Failuref("text to replace occurs %d times in %s; pass all=true or a longer snippet", count, in.Path), nil
			}

			n := 1
			if in.All {
				n = -1
			}
			after := strings.Replace(before, in.Old, in.New, n)
			if err := writeFile(abs, after); err != nil {
				return tool.Result{}, err
			}

			return tool.SuccessJSON(changeOutput{
				Path:  rel,
				Bytes: len(after),
				Patch: patch(rel, before, after),
			}), nil
		}).
		MustBuild()
}

// --- delete_file ---

type pathInput struct {
	Path string `json:"path"`
}

func deleteFileTool(ws *files) tool.Tool {
	return tool.NewBuilder("delete_file").
		WithDescription("Delete a file from the workspace").
		WithParam("path", tool.RequiredParam(tool.TypeString, "file path relative to the workspace root")).
		Destructive().
		WithHandler(func(_ context.Context, input json.RawMessage) (tool.Result, error) {
			var in pathInput
			if err := json.Unmarshal(input, &in); err != nil {
				return tool.Result{}, err
			}
			abs, rel, err := ws.resolve(in.Path)
			if err != nil {
				return tool.Failure(err.Error()), nil
			}
			if rel == "." {
				return tool.Failure("refusing to delete the workspace root"), nil
			}

			info, err := os.Stat(abs)
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return tool.Failuref("file not found: %s", in.Path), nil
				}
				return tool.Result{}, err
			}
			if info.IsDir() {
				return tool.Failuref("%s is a directory", in.Path), nil
			}
			if err := os.Remove(abs); err != nil {
				return tool.Result{}, err
			}
			return tool.Success("deleted " + rel), nil
		}).
		MustBuild()
}

// --- rename_file ---

type renameInput struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func renameFileTool(ws *files) tool.Tool {
	return tool.NewBuilder("rename_file").
		WithDescription("Move or rename a file inside the workspace").
		WithParam("from", tool.RequiredParam(tool.TypeString, "current path")).
		WithParam("to", tool.RequiredParam(tool.TypeString, "new path; must not exist")).
		WithRiskLevel(tool.RiskMedium).
		WithHandler(func(_ context.Context, input json.RawMessage) (tool.Result, error) {
			var in renameInput
			if err := json.Unmarshal(input, &in); err != nil {
				return tool.Result{}, err
			}
			from, fromRel, err := ws.resolve(in.From)
			if err != nil {
				return tool.Failure(err.Error()), nil
			}
			to, toRel, err := ws.resolve(in.To)
			if err != nil {
				return tool.Failure(err.Error()), nil
			}

			if _, err := os.Stat(from); errors.Is(err, fs.ErrNotExist) {
				return tool.Failuref("file not found: %s", in.From), nil
			}
			if _, err := os.Stat(to); err == nil {
				return tool.Failuref("destination already exists: %s", in.To), nil
			}
			if err := os.MkdirAll(filepath.Dir(to), 0o750); err != nil {
				return tool.Result{}, err
			}
			if err := os.Rename(from, to); err != nil {
				return tool.Result{}, err
			}
			return tool.Success("renamed " + fromRel + " to " + toRel), nil
		}).
		MustBuild()
}

// --- list_dir ---

type listEntry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"is_dir,omitempty"`
	Size  int64  `json:"size,omitempty"`
}

type listDirOutput struct {
	Path      string      `json:"path"`
	Entries   []listEntry `json:"entries"`
	Truncated bool        `json:"truncated,omitempty"`
}

func listDirTool(ws *files) tool.Tool {
	return tool.NewBuilder("list_dir").
		WithDescription("List the entries of a workspace directory").
		WithParam("path", tool.OptionalParam(tool.TypeString, "directory path; defaults to the workspace root")).
		ReadOnly().
		WithHandler(func(_ context.Context, input json.RawMessage) (tool.Result, error) {
			var in pathInput
			if err := json.Unmarshal(input, &in); err != nil {
				return tool.Result{}, err
			}
			abs, rel, err := ws.resolve(in.Path)
			if err != nil {
				return tool.Failure(err.Error()), nil
			}

			entries, err := os.ReadDir(abs)
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return tool.Failuref("directory not found: %s", in.Path), nil
				}
				return tool.Failure(err.Error()), nil
			}

			out := listDirOutput{Path: rel, Entries: make([]listEntry, 0, len(entries))}
			for _, e := range entries {
				if len(out.Entries) >= ws.cfg.MaxResults {
					out.Truncated = true
					break
				}
				entry := listEntry{Name: e.Name(), IsDir: e.IsDir()}
				if !e.IsDir() {
					if info, err := e.Info(); err == nil {
						entry.Size = info.Size()
					}
				}
				out.Entries = append(out.Entries, entry)
			}
			return tool.SuccessJSON(out), nil
		}).
		MustBuild()
}

// --- find_files ---

type findInput struct {
	Pattern string `json:"pattern"`
	Path    string `json:"path,omitempty"`
}

type findOutput struct {
	Matches   []string `json:"matches"`
	Truncated bool     `json:"truncated,omitempty"`
}

func findFilesTool(ws *files) tool.Tool {
	return tool.NewBuilder("find_files").
		WithDescription("Find workspace files matching a glob pattern such as **/*.go").
		WithParam("pattern", tool.RequiredParam(tool.TypeString, "doublestar glob pattern")).
		WithParam("path", tool.OptionalParam(tool.TypeString, "directory to search; defaults to the workspace root")).
		ReadOnly().
		WithHandler(func(_ context.Context, input json.RawMessage) (tool.Result, error) {
			var in findInput
			if err := json.Unmarshal(input, &in); err != nil {
				return tool.Result{}, err
			}
			pattern := strings.TrimPrefix(filepath.ToSlash(in.Pattern), "./")
			if !doublestar.ValidatePattern(pattern) {
				return tool.Failuref("invalid pattern %q", in.Pattern), nil
			}
			abs, rel, err := ws.resolve(in.Path)
			if err != nil {
				return tool.Failure(err.Error()), nil
			}

			matches, err := doublestar.Glob(os.DirFS(abs), pattern, doublestar.WithFilesOnly())
			if err != nil {
				return tool.Failuref("invalid pattern %q: %v", in.Pattern, err), nil
			}
			sort.Strings(matches)

			out := findOutput{Matches: make([]string, 0, len(matches))}
			for _, m := range matches {
				if len(out.Matches) >= ws.cfg.MaxResults {
					out.Truncated = true
					break
				}
				if rel != "." {
					m = path.Join(rel, m)
				}
				out.Matches = append(out.Matches, m)
			}
			return tool.SuccessJSON(out), nil
		}).
		MustBuild()
}

// readExisting returns the current file content, or reports that the file
// will be created.
func readExisting(abs string) (string, bool, error) {
	data, err := os.ReadFile(abs) // #nosec G304 -- confined to the workspace
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", true, nil
		}
		return "", false, err
	}
	return string(data), false, nil
}

func writeFile(abs, content string) error {
	if err := os.MkdirAll(filepath.Dir(abs), 0o750); err != nil {
		return err
	}
	return os.WriteFile(abs, []byte(content), 0o644) // #nosec G306 -- source files
}
