package codeedit_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/felixgeelhaar/omni/domain/pack"
	"github.com/felixgeelhaar/omni/domain/tool"
	"github.com/felixgeelhaar/omni/pack/codeedit"
)

const calcSource = "package calc\n\n// Add adds.\nfunc Add(a, b int) int {\n\treturn a - b\n}\n"

func setup(t *testing.T) (*pack.Pack, string) {
	t.Helper()
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "calc"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "calc", "add.go"), []byte(calcSource), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("hello\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	p, err := codeedit.New(codeedit.WithRoot(root))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return p, root
}

func run(t *testing.T, p *pack.Pack, name string, args map[string]any) tool.Result {
	t.Helper()
	tl, ok := p.GetTool(name)
	if !ok {
		t.Fatalf("tool %s not found", name)
	}
	input, _ := json.Marshal(args)
	res, err := tl.Execute(context.Background(), input)
	if err != nil {
		t.Fatalf("%s Execute() error = %v", name, err)
	}
	return res
}

func TestNew(t *testing.T) {
	t.Parallel()

	p, _ := setup(t)
	if p.Name != "codeedit" {
		t.Errorf("Name = %s, want codeedit", p.Name)
	}
	want := map[string]bool{"code_list_elements": true, "code_edit_replace": true, "code_edit_add_import": true}
	for _, name := range p.ToolNames() {
		delete(want, name)
	}
	if len(want) != 0 {
		t.Errorf("missing tools: %v", want)
	}

	list, _ := p.GetTool("code_list_elements")
	if !list.Annotations().ReadOnly {
		t.Error("code_list_elements should be read-only")
	}
	replace, _ := p.GetTool("code_edit_replace")
	if replace.Annotations().ReadOnly || replace.Annotations().CanRetry() {
		t.Error("code_edit_replace should be a non-retryable write")
	}
}

func TestListElements(t *testing.T) {
	t.Parallel()

	p, _ := setup(t)
	res := run(t, p, "code_list_elements", map[string]any{"path": "calc/add.go"})
	if !res.IsSuccess() {
		t.Fatalf("code_list_elements failed: %s", res.ErrorText())
	}
	var out struct {
		Path     string   `json:"path"`
		Elements []string `json:"elements"`
	}
	if err := json.Unmarshal([]byte(res.Output()), &out); err != nil {
		t.Fatal(err)
	}
	if out.Path != "calc/add.go" || len(out.Elements) != 1 || out.Elements[0] != "Add" {
		t.Errorf("output = %+v", out)
	}
}

func TestReplaceElement(t *testing.T) {
	t.Parallel()

	p, root := setup(t)
	res := run(t, p, "code_edit_replace", map[string]any{
		"path":    "calc/add.go",
		"element": "Add",
		"code":    "// Add adds.\nfunc Add(a, b int) int {\n\treturn a + b\n}",
	})
	if !res.IsSuccess() {
		t.Fatalf("code_edit_replace failed: %s", res.ErrorText())
	}

	var out struct {
		Patch string `json:"patch"`
	}
	_ = json.Unmarshal([]byte(res.Output()), &out)
	if !strings.Contains(out.Patch, "-\treturn a - b\n+\treturn a + b\n") {
		t.Errorf("patch = %q", out.Patch)
	}

	data, _ := os.ReadFile(filepath.Join(root, "calc", "add.go"))
	if !strings.Contains(string(data), "return a + b") {
		t.Errorf("file not updated:\n%s", data)
	}
}

func TestReplaceElement_Failures(t *testing.T) {
	t.Parallel()

	p, root := setup(t)
	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"unknown element", map[string]any{"path": "calc/add.go", "element": "Sub", "code": "func Sub() {}"}, "element not found"},
		{"invalid code", map[string]any{"path": "calc/add.go", "element": "Add", "code": "func Add( {"}, "invalid source"},
		{"unsupported extension", map[string]any{"path": "notes.txt", "element": "x", "code": "y"}, "no structural editor"},
		{"missing file", map[string]any{"path": "calc/sub.go", "element": "Sub", "code": "func Sub() {}"}, "file not found"},
		{"outside workspace", map[string]any{"path": "../x.go", "element": "X", "code": "func X() {}"}, "escapes the workspace"},
		{"empty element", map[string]any{"path": "calc/add.go", "element": " ", "code": "func X() {}"}, "must not be empty"},
	}

	for _, tt := range tests {
		res := run(t, p, "code_edit_replace", tt.args)
		if !res.IsFailure() || !strings.Contains(res.ErrorText(), tt.want) {
			t.Errorf("%s: result = %v %q, want failure containing %q", tt.name, res.IsSuccess(), res.ErrorText(), tt.want)
		}
	}

	data, _ := os.ReadFile(filepath.Join(root, "calc", "add.go"))
	if string(data) != calcSource {
		t.Errorf("failed edits must not modify the file:\n%s", data)
	}
}

func TestAddImport(t *testing.T) {
	t.Parallel()

	p, root := setup(t)
	res := run(t, p, "code_edit_add_import", map[string]any{"path": "calc/add.go", "import": "errors"})
	if !res.IsSuccess() {
		t.Fatalf("code_edit_add_import failed: %s", res.ErrorText())
	}
	data, _ := os.ReadFile(filepath.Join(root, "calc", "add.go"))
	if !strings.Contains(string(data), "import \"errors\"") {
		t.Errorf("import not added:\n%s", data)
	}

	// Second call is a no-op without a patch.
	res = run(t, p, "code_edit_add_import", map[string]any{"path": "calc/add.go", "import": "errors"})
	var out struct {
		Patch string `json:"patch"`
	}
	_ = json.Unmarshal([]byte(res.Output()), &out)
	if !res.IsSuccess() || out.Patch != "" {
		t.Errorf("repeated add: success=%v patch=%q", res.IsSuccess(), out.Patch)
	}
}

type upperEditor struct{}

func (upperEditor) Elements(context.Context, string) ([]string, error) {
	return []string{"ALL"}, nil
}

func (upperEditor) ReplaceElement(_ context.Context, source, _, _ string) (string, error) {
	return strings.ToUpper(source), nil
}

func (upperEditor) AddImport(_ context.Context, source, _, _ string) (string, error) {
	return source, nil
}

func TestWithEditor(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "notes.TXT"), []byte("hello\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	p, err := codeedit.New(codeedit.WithRoot(root), codeedit.WithEditor(".txt", upperEditor{}))
	if err != nil {
		t.Fatal(err)
	}

	res := run(t, p, "code_edit_replace", map[string]any{"path": "notes.TXT", "element": "ALL", "code": ""})
	if !res.IsSuccess() {
		t.Fatalf("custom editor failed: %s", res.ErrorText())
	}
	data, _ := os.ReadFile(filepath.Join(root, "notes.TXT"))
	if string(data) != "HELLO\n" {
		t.Errorf("content = %q, want HELLO", data)
	}
}
