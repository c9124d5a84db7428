package shell_test

import (
	"context"
	"encoding/json"
	"runtime"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/felixgeelhaar/omni/domain/tool"
	"github.com/felixgeelhaar/omni/pack/shell"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}
}

func runCommand(t *testing.T, args map[string]any, opts ...shell.Option) tool.Result {
	t.Helper()
	p, err := shell.New(append([]shell.Option{shell.WithWorkingDir(t.TempDir())}, opts...)...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	tl, ok := p.GetTool("run_command")
	if !ok {
		t.Fatal("run_command not found")
	}
	input, _ := json.Marshal(args)
	res, err := tl.Execute(context.Background(), input)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	return res
}

func TestNew(t *testing.T) {
	t.Parallel()

	p, err := shell.New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if names := p.ToolNames(); len(names) != 1 || names[0] != "run_command" {
		t.Errorf("tools = %v, want [run_command]", names)
	}

	tl, _ := p.GetTool("run_command")
	a := tl.Annotations()
	if a.RiskLevel != tool.RiskHigh || !a.NeedsConfirmation() {
		t.Errorf("annotations = %+v, want high risk with confirmation", a)
	}
	if a.CanRetry() {
		t.Error("run_command must not be retried")
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	t.Parallel()

	if _, err := shell.New(shell.WithBlockedPatterns("(")); err == nil {
		t.Error("expected error for invalid pattern")
	}
	if _, err := shell.New(shell.WithWorkingDir("/does/not/exist")); err == nil {
		t.Error("expected error for missing working directory")
	}
}

func TestRunCommand_Policy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		command string
		opts    []shell.Option
		want    string
	}{
		{name: "empty", command: "  ", want: "empty command"},
		{name: "blocked", command: "sudo make install", want: `"sudo" is blocked`},
		{name: "blocked after separator", command: "echo ok && shutdown now", want: `"shutdown" is blocked`},
		{name: "blocked with path", command: "/usr/bin/sudo ls", want: `"sudo" is blocked`},
		{name: "pipe to shell", command: "cat script | sh", want: "blocked pattern"},
		{name: "remove root", command: "rm -rf /", want: "blocked pattern"},
		{name: "custom block", command: "make deploy", opts: []shell.Option{shell.WithBlockedCommands("make")}, want: `"make" is blocked`},
		{name: "not allowed", command: "ls", opts: []shell.Option{shell.WithAllowedCommands("go", "echo")}, want: "not in the allowed list"},
		{name: "not allowed in chain", command: "echo a; ls", opts: []shell.Option{shell.WithAllowedCommands("echo")}, want: `"ls" is not in the allowed list`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			res := runCommand(t, map[string]any{"command": tt.command}, tt.opts...)
			if !res.IsFailure() || !strings.Contains(res.ErrorText(), tt.want) {
				t.Errorf("result = %v, want failure containing %q", res, tt.want)
			}
		})
	}
}

func TestRunCommand_Success(t *testing.T) {
	t.Parallel()
	skipOnWindows(t)

	res := runCommand(t, map[string]any{"command": "echo hello 2>&1"}, shell.WithAllowedCommands("echo"))
	if !res.IsSuccess() {
		t.Fatalf("run_command failed: %s", res.ErrorText())
	}
	var out struct {
		Stdout   string `json:"stdout"`
		ExitCode int    `json:"exit_code"`
	}
	if err := json.Unmarshal([]byte(res.Output()), &out); err != nil {
		t.Fatal(err)
	}
	if out.Stdout != "hello\n" || out.ExitCode != 0 {
		t.Errorf("out = %+v", out)
	}
}

func TestRunCommand_NonZeroExitIsFailure(t *testing.T) {
	t.Parallel()
	skipOnWindows(t)

	res := runCommand(t, map[string]any{"command": "echo 'FAIL: TestAdd' >&2; exit 3"})
	if !res.IsFailure() {
		t.Fatalf("result = %v, want failure", res)
	}
	if got := res.ErrorText(); got != "exit status 3\nFAIL: TestAdd" {
		t.Errorf("error text = %q", got)
	}
}

func TestRunCommand_StdoutUsedWhenStderrEmpty(t *testing.T) {
	t.Parallel()
	skipOnWindows(t)

	res := runCommand(t, map[string]any{"command": "echo '--- FAIL: TestSub'; exit 1"})
	if got := res.ErrorText(); got != "exit status 1\n--- FAIL: TestSub" {
		t.Errorf("error text = %q", got)
	}
}

func TestRunCommand_Timeout(t *testing.T) {
	t.Parallel()
	skipOnWindows(t)

	res := runCommand(t, map[string]any{"command": "sleep 5"}, shell.WithTimeout(100*time.Millisecond))
	if !res.IsFailure() || !strings.Contains(res.ErrorText(), "timed out after 100ms") {
		t.Errorf("result = %v, want timeout failure", res)
	}
}

func TestRunCommand_WorkingDir(t *testing.T) {
	t.Parallel()
	skipOnWindows(t)

	res := runCommand(t, map[string]any{"command": "pwd", "working_dir": "../.."})
	if !res.IsFailure() || !strings.Contains(res.ErrorText(), "escapes the workspace") {
		t.Errorf("result = %v, want escape failure", res)
	}
}

func TestRunCommand_OutputTruncated(t *testing.T) {
	t.Parallel()
	skipOnWindows(t)

	res := runCommand(t, map[string]any{"command": "echo 0123456789"}, shell.WithMaxOutputSize(4))
	var out struct {
		Stdout    string `json:"stdout"`
		Truncated bool   `json:"truncated"`
	}
	if err := json.Unmarshal([]byte(res.Output()), &out); err != nil {
		t.Fatal(err)
	}
	if !out.Truncated || !strings.HasPrefix(out.Stdout, "0123\n") {
		t.Errorf("out = %+v", out)
	}
}

func TestRunCommand_OutputTruncatedOnRuneBoundary(t *testing.T) {
	t.Parallel()
	skipOnWindows(t)

	res := runCommand(t, map[string]any{"command": "printf 'ééé'"}, shell.WithMaxOutputSize(3))
	var out struct {
		Stdout    string `json:"stdout"`
		Truncated bool   `json:"truncated"`
	}
	if err := json.Unmarshal([]byte(res.Output()), &out); err != nil {
		t.Fatal(err)
	}
	if !out.Truncated || !strings.HasPrefix(out.Stdout, "é\n") || strings.ContainsRune(out.Stdout, utf8.RuneError) {
		t.Errorf("out = %+v", out)
	}
}
