// Package shell provides the run_command tool with allow and block lists.
package shell

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/felixgeelhaar/omni/domain/pack"
	"github.com/felixgeelhaar/omni/domain/tool"
)

// Config configures the shell pack.
type Config struct {
	// AllowedCommands restricts the base command of every segment when
	// non-empty.
	AllowedCommands []string

	// BlockedCommands are always rejected. Takes precedence over
	// AllowedCommands.
	BlockedCommands []string

	// BlockedPatterns are regular expressions matched against the full
	// command line.
	BlockedPatterns []string

	// Timeout bounds one command.
	Timeout time.Duration

	// MaxOutputSize limits captured stdout and stderr (bytes each).
	MaxOutputSize int

	// WorkingDir is where commands run; working_dir arguments must stay
	// inside it.
	WorkingDir string

	// Environment is appended to the process environment.
	Environment map[string]string

	// Shell interprets the command line (default: /bin/sh).
	Shell string

	compiledPatterns []*regexp.Regexp
}

// Option configures the shell pack.
type Option func(*Config)

// WithAllowedCommands sets the list of allowed commands.
func WithAllowedCommands(commands ...string) Option {
	return func(c *Config) {
		c.AllowedCommands = commands
	}
}

// WithBlockedCommands adds commands to the block list.
func WithBlockedCommands(commands ...string) Option {
	return func(c *Config) {
		c.BlockedCommands = append(c.BlockedCommands, commands...)
	}
}

// WithBlockedPatterns adds regular expressions to the block list.
func WithBlockedPatterns(patterns ...string) Option {
	return func(c *Config) {
		c.BlockedPatterns = append(c.BlockedPatterns, patterns...)
	}
}

// WithTimeout sets the command timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.Timeout = timeout
	}
}

// WithMaxOutputSize sets the maximum captured output size.
func WithMaxOutputSize(size int) Option {
	return func(c *Config) {
		c.MaxOutputSize = size
	}
}

// WithWorkingDir sets the directory commands run in.
func WithWorkingDir(dir string) Option {
	return func(c *Config) {
		c.WorkingDir = dir
	}
}

// WithEnvironment sets additional environment variables.
func WithEnvironment(env map[string]string) Option {
	return func(c *Config) {
		c.Environment = env
	}
}

// WithShell sets the interpreter.
func WithShell(shell string) Option {
	return func(c *Config) {
		c.Shell = shell
	}
}

// DefaultBlockedCommands returns commands that are never run.
func DefaultBlockedCommands() []string {
	return []string{
		"dd", "mkfs", "fdisk", "parted",
		"shutdown", "reboot", "halt", "poweroff", "init",
		"kill", "killall", "pkill",
		"chown", "chgrp",
		"su", "sudo", "doas",
		"passwd", "useradd", "userdel", "groupadd", "groupdel",
		"mount", "umount",
		"iptables", "ip6tables", "nft", "ufw",
		"systemctl", "service",
	}
}

// DefaultBlockedPatterns returns command line patterns that are never run.
func DefaultBlockedPatterns() []string {
	return []string{
		`>\s*/dev/[^n]`,
		`\|\s*(sh|bash|zsh)\b`,
		`\brm\s+(-[a-zA-Z]*[rR][a-zA-Z]*\s+)*/(\s|$)`,
		`\brm\s+-[a-zA-Z]*[rR][a-zA-Z]*f?\s+~`,
		`>\s*/etc/`,
		`>\s*/usr/`,
		`(curl|wget)\b.*\|`,
		`:\(\)\s*\{`,
	}
}

// New creates the shell pack.
func New(opts ...Option) (*pack.Pack, error) {
	cfg := Config{
		BlockedCommands: DefaultBlockedCommands(),
		BlockedPatterns: DefaultBlockedPatterns(),
		Timeout:         2 * time.Minute,
		MaxOutputSize:   64 * 1024,
		Shell:           "/bin/sh",
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	for _, pattern := range cfg.BlockedPatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid blocked pattern %q: %w", pattern, err)
		}
		cfg.compiledPatterns = append(cfg.compiledPatterns, re)
	}

	if cfg.WorkingDir != "" {
		abs, err := filepath.Abs(cfg.WorkingDir)
		if err != nil {
			return nil, fmt.Errorf("invalid working directory: %w", err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("invalid working directory: %w", err)
		}
		if !info.IsDir() {
			return nil, errors.New("working directory is not a directory")
		}
		cfg.WorkingDir = abs
	}

	return pack.NewBuilder("shell").
		WithDescription("Run shell commands such as builds and tests in the workspace").
		WithVersion("1.0.0").
		AddTools(runCommandTool(&cfg)).
		Build()
}

var (
	// redirection matches fd duplications such as 2>&1 so they are not
	// mistaken for command separators.
	redirection = regexp.MustCompile(`[0-9]*[<>]&[0-9-]*|&>`)
	// segmentSplit separates the simple commands of a command line.
	segmentSplit = regexp.MustCompile(`\|\||&&|[;|&\n]`)
)

// checkCommand reports why a command line may not run.
func checkCommand(cfg *Config, command string) error {
	if strings.TrimSpace(command) == "" {
		return errors.New("empty command")
	}

	for _, re := range cfg.compiledPatterns {
		if re.MatchString(command) {
			return fmt.Errorf("command matches blocked pattern %q", re.String())
		}
	}

	stripped := redirection.ReplaceAllString(command, " ")
	for _, segment := range segmentSplit.Split(stripped, -1) {
		base := baseCommand(segment)
		if base == "" {
			continue
		}
		if slices.Contains(cfg.BlockedCommands, base) {
			return fmt.Errorf("command %q is blocked", base)
		}
		if len(cfg.AllowedCommands) > 0 && !slices.Contains(cfg.AllowedCommands, base) {
			return fmt.Errorf("command %q is not in the allowed list", base)
		}
	}
	return nil
}

// baseCommand returns the program name of a simple command, skipping
// leading variable assignments.
func baseCommand(segment string) string {
	for _, field := range strings.Fields(segment) {
		if strings.Contains(field, "=") && !strings.HasPrefix(field, "=") {
			continue
		}
		return filepath.Base(strings.Trim(field, "()"))
	}
	return ""
}

// --- run_command ---

type runInput struct {
	Command    string `json:"command"`
	WorkingDir string `json:"working_dir,omitempty"`
}

type runOutput struct {
	Command   string `json:"command"`
	Stdout    string `json:"stdout"`
	Stderr    string `json:"stderr,omitempty"`
	ExitCode  int    `json:"exit_code"`
	Duration  string `json:"duration"`
	Truncated bool   `json:"truncated,omitempty"`
}

func runCommandTool(cfg *Config) tool.Tool {
	return tool.NewBuilder("run_command").
		WithDescription("Run a shell command in the workspace; a non-zero exit status is reported as a failure with stderr").
		WithParam("command", tool.RequiredParam(tool.TypeString, "command line passed to the shell")).
		WithParam("working_dir", tool.OptionalParam(tool.TypeString, "directory relative to the workspace")).
		WithRiskLevel(tool.RiskHigh).
		RequiresConfirmation().
		// Executor bound stays above the command timeout.
		WithTimeout(cfg.Timeout+5*time.Second).
		WithHandler(func(ctx context.Context, input json.RawMessage) (tool.Result, error) {
			var in runInput
			if err := json.Unmarshal(input, &in); err != nil {
				return tool.Result{}, err
			}
			if err := checkCommand(cfg, in.Command); err != nil {
				return tool.Failure(err.Error()), nil
			}
			dir, err := workingDir(cfg, in.WorkingDir)
			if err != nil {
				return tool.Failure(err.Error()), nil
			}

			ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
			defer cancel()

			cmd := exec.CommandContext(ctx, cfg.Shell, "-c", in.Command) // #nosec G204 -- command checked above
			cmd.Dir = dir
			cmd.WaitDelay = time.Second
			cmd.Env = os.Environ()
			for k, v := range cfg.Environment {
				cmd.Env = append(cmd.Env, k+"="+v)
			}
			var stdout, stderr bytes.Buffer
			cmd.Stdout = &stdout
			cmd.Stderr = &stderr

			start := time.Now()
			runErr := cmd.Run()
			duration := time.Since(start)

			out := runOutput{
				Command:  in.Command,
				Duration: duration.Round(time.Millisecond).String(),
			}
			var t1, t2 bool
			out.Stdout, t1 = truncate(stdout.String(), cfg.MaxOutputSize)
			out.Stderr, t2 = truncate(stderr.String(), cfg.MaxOutputSize)
			out.Truncated = t1 || t2

			if ctx.Err() == context.DeadlineExceeded {
				return tool.Failure(failureText(fmt.Sprintf("command timed out after %s", cfg.Timeout), out)), nil
			}

			var exitErr *exec.ExitError
			if errors.As(runErr, &exitErr) {
				out.ExitCode = exitErr.ExitCode()
				return tool.Failure(failureText(fmt.Sprintf("exit status %d", out.ExitCode), out)), nil
			}
			if runErr != nil {
				return tool.Result{}, runErr
			}
			return tool.SuccessJSON(out), nil
		}).
		MustBuild()
}

// workingDir resolves a requested directory inside the configured one.
func workingDir(cfg *Config, requested string) (string, error) {
	if requested == "" {
		return cfg.WorkingDir, nil
	}
	if cfg.WorkingDir == "" {
		return requested, nil
	}
	dir := requested
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(cfg.WorkingDir, dir)
	}
	rel, err := filepath.Rel(cfg.WorkingDir, filepath.Clean(dir))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("working directory %q escapes the workspace", requested)
	}
	return dir, nil
}

func truncate(s string, limit int) (string, bool) {
	if limit <= 0 || len(s) <= limit {
		return s, false
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit] + "\n... (truncated)", true
}

// failureText appends the end of stderr, or of stdout when stderr is
// empty, to a failure headline.
func failureText(headline string, out runOutput) string {
	const tailLimit = 4096
	detail := strings.TrimSpace(out.Stderr)
	if detail == "" {
		detail = strings.TrimSpace(out.Stdout)
	}
	if detail == "" {
		return headline
	}
	if len(detail) > tailLimit {
		start := len(detail) - tailLimit
		for start < len(detail) && !utf8.RuneStart(detail[start]) {
			start++
		}
		detail = "..." + detail[start:]
	}
	return headline + "\n" + detail
}
