// Package git provides repository inspection tools backed by go-git.
package git

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/format/index"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"

	"github.com/felixgeelhaar/omni/domain/pack"
	"github.com/felixgeelhaar/omni/domain/tool"
	"github.com/felixgeelhaar/omni/pack/internal/linediff"
)

// ErrNotRepository indicates a workspace that is not a git repository.
var ErrNotRepository = errors.New("not a git repository")

// Config configures the git pack.
type Config struct {
	// RepoPath is the repository root.
	RepoPath string

	// AllowWrite enables git_add and git_commit.
	AllowWrite bool

	// AuthorName and AuthorEmail sign commits.
	AuthorName  string
	AuthorEmail string

	// MaxLogEntries limits git_log output.
	MaxLogEntries int

	// MaxDiffBytes truncates git_diff output.
	MaxDiffBytes int

	// Now stamps commits.
	Now func() time.Time
}

// Option configures the git pack.
type Option func(*Config)

// WithWriteAccess enables staging and committing.
func WithWriteAccess() Option {
	return func(c *Config) {
		c.AllowWrite = true
	}
}

// WithAuthor sets the commit author.
func WithAuthor(name, email string) Option {
	return func(c *Config) {
		c.AuthorName = name
		c.AuthorEmail = email
	}
}

// WithMaxLogEntries sets the maximum log entries returned.
func WithMaxLogEntries(n int) Option {
	return func(c *Config) {
		c.MaxLogEntries = n
	}
}

// WithMaxDiffBytes caps the diff output.
func WithMaxDiffBytes(n int) Option {
	return func(c *Config) {
		c.MaxDiffBytes = n
	}
}

// WithClock overrides the commit time source.
func WithClock(now func() time.Time) Option {
	return func(c *Config) {
		c.Now = now
	}
}

// New opens the repository at repoPath and creates the git pack.
func New(repoPath string, opts ...Option) (*pack.Pack, error) {
	absPath, err := filepath.Abs(repoPath)
	if err != nil {
		return nil, fmt.Errorf("invalid repo path: %w", err)
	}

	repo, err := git.PlainOpen(absPath)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("%w: %s", ErrNotRepository, absPath)
	}
	if err != nil {
		return nil, fmt.Errorf("open repository: %w", err)
	}

	cfg := Config{
		RepoPath:      absPath,
		AuthorName:    "omni",
		AuthorEmail:   "omni@localhost",
		MaxLogEntries: 50,
		MaxDiffBytes:  64 * 1024,
		Now:           time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	r := &repoTools{repo: repo, cfg: &cfg}
	builder := pack.NewBuilder("git").
		WithDescription("Inspect the repository: status, diffs and history").
		WithVersion("1.0.0").
		AddTools(
			statusTool(r),
			diffTool(r),
			logTool(r),
		)
	if cfg.AllowWrite {
		builder = builder.AddTools(addTool(r), commitTool(r))
	}
	return builder.Build()
}

// repoTools holds the repository shared by the tools.
type repoTools struct {
	repo *git.Repository
	cfg  *Config
}

// --- git_status ---

type statusOutput struct {
	Branch    string       `json:"branch"`
	Staged    []fileStatus `json:"staged"`
	Unstaged  []fileStatus `json:"unstaged"`
	Untracked []string     `json:"untracked"`
	Clean     bool         `json:"clean"`
}

type fileStatus struct {
	Path   string `json:"path"`
	Status string `json:"status"`
}

func statusTool(r *repoTools) tool.Tool {
	return tool.NewBuilder("git_status").
		WithDescription("Show the current branch with staged, unstaged and untracked files").
		ReadOnly().
		WithHandler(func(context.Context, json.RawMessage) (tool.Result, error) {
			status, err := r.status()
			if err != nil {
				return tool.Result{}, err
			}

			out := statusOutput{
				Branch:    r.branch(),
				Staged:    []fileStatus{},
				Unstaged:  []fileStatus{},
				Untracked: []string{},
				Clean:     status.IsClean(),
			}
			for _, path := range sortedPaths(status) {
				s := status[path]
				if s.Worktree == git.Untracked {
					out.Untracked = append(out.Untracked, path)
					continue
				}
				if s.Staging != git.Unmodified {
					out.Staged = append(out.Staged, fileStatus{Path: path, Status: statusName(s.Staging)})
				}
				if s.Worktree != git.Unmodified {
					out.Unstaged = append(out.Unstaged, fileStatus{Path: path, Status: statusName(s.Worktree)})
				}
			}
			return tool.SuccessJSON(out), nil
		}).
		MustBuild()
}

// --- git_diff ---

type diffInput struct {
	Staged bool   `json:"staged,omitempty"`
	Path   string `json:"path,omitempty"`
}

func diffTool(r *repoTools) tool.Tool {
	return tool.NewBuilder("git_diff").
		WithDescription("Show a unified diff of unstaged changes, or of staged changes against HEAD").
		WithParam("staged", tool.OptionalParam(tool.TypeBoolean, "diff the index against HEAD instead of the worktree against the index")).
		WithParam("path", tool.OptionalParam(tool.TypeString, "limit the diff to this file or directory")).
		ReadOnly().
		WithHandler(func(_ context.Context, input json.RawMessage) (tool.Result, error) {
			var in diffInput
			if err := json.Unmarshal(input, &in); err != nil {
				return tool.Result{}, err
			}
			status, err := r.status()
			if err != nil {
				return tool.Result{}, err
			}
			prefix := strings.TrimPrefix(filepath.ToSlash(in.Path), "./")

			var b strings.Builder
			for _, path := range sortedPaths(status) {
				if prefix != "" && path != prefix && !strings.HasPrefix(path, strings.TrimSuffix(prefix, "/")+"/") {
					continue
				}
				s := status[path]

				var before, after string
				switch {
				case in.Staged && s.Staging != git.Unmodified && s.Staging != git.Untracked:
					if before, err = r.headContent(path); err != nil {
						return tool.Result{}, err
					}
					if after, err = r.indexContent(path); err != nil {
						return tool.Result{}, err
					}
				case !in.Staged && s.Worktree != git.Unmodified && s.Worktree != git.Untracked:
					if before, err = r.indexContent(path); err != nil {
						return tool.Result{}, err
					}
					if after, err = r.worktreeContent(path); err != nil {
						return tool.Result{}, err
					}
				default:
					continue
				}
				b.WriteString(linediff.File(path, before, after))
			}

			if b.Len() == 0 {
				if in.Staged {
					return tool.Success("no staged changes"), nil
				}
				return tool.Success("no unstaged changes"), nil
			}
			out := b.String()
			if r.cfg.MaxDiffBytes > 0 && len(out) > r.cfg.MaxDiffBytes {
				cut := r.cfg.MaxDiffBytes
				for cut > 0 && !utf8.RuneStart(out[cut]) {
					cut--
				}
				out = out[:cut] + "\n... (diff truncated)\n"
			}
			return tool.Success(out), nil
		}).
		MustBuild()
}

// --- git_log ---

type logInput struct {
	Limit int    `json:"limit,omitempty"`
	Path  string `json:"path,omitempty"`
}

type commitInfo struct {
	Hash    string    `json:"hash"`
	Message string    `json:"message"`
	Author  string    `json:"author"`
	Date    time.Time `json:"date"`
}

func logTool(r *repoTools) tool.Tool {
	return tool.NewBuilder("git_log").
		WithDescription("List recent commits, newest first").
		WithParam("limit", tool.OptionalParam(tool.TypeInteger, "maximum number of commits")).
		WithParam("path", tool.OptionalParam(tool.TypeString, "only commits touching this path")).
		ReadOnly().
		WithHandler(func(_ context.Context, input json.RawMessage) (tool.Result, error) {
			var in logInput
			if err := json.Unmarshal(input, &in); err != nil {
				return tool.Result{}, err
			}
			limit := r.cfg.MaxLogEntries
			if in.Limit > 0 && in.Limit < limit {
				limit = in.Limit
			}

			if _, err := r.repo.Head(); errors.Is(err, plumbing.ErrReferenceNotFound) {
				return tool.SuccessJSON([]commitInfo{}), nil
			}

			opts := &git.LogOptions{}
			if in.Path != "" {
				prefix := strings.TrimPrefix(filepath.ToSlash(in.Path), "./")
				opts.PathFilter = func(p string) bool {
					return strings.HasPrefix(p, prefix)
				}
			}
			iter, err := r.repo.Log(opts)
			if err != nil {
				return tool.Result{}, fmt.Errorf("read log: %w", err)
			}
			defer iter.Close()

			commits := make([]commitInfo, 0, limit)
			err = iter.ForEach(func(c *object.Commit) error {
				if len(commits) >= limit {
					return storer.ErrStop
				}
				commits = append(commits, commitInfo{
					Hash:    c.Hash.String()[:7],
					Message: strings.TrimSpace(c.Message),
					Author:  c.Author.Name,
					Date:    c.Author.When,
				})
				return nil
			})
			if err != nil {
				return tool.Result{}, fmt.Errorf("read log: %w", err)
			}
			return tool.SuccessJSON(commits), nil
		}).
		MustBuild()
}

// --- git_add ---

type addInput struct {
	Paths []string `json:"paths"`
}

func addTool(r *repoTools) tool.Tool {
	return tool.NewBuilder("git_add").
		WithDescription("Stage files for the next commit").
		WithParam("paths", tool.RequiredParam(tool.TypeArray, "paths to stage; \".\" stages everything")).
		Idempotent().
		WithRiskLevel(tool.RiskLow).
		WithHandler(func(_ context.Context, input json.RawMessage) (tool.Result, error) {
			var in addInput
			if err := json.Unmarshal(input, &in); err != nil {
				return tool.Result{}, err
			}
			if len(in.Paths) == 0 {
				return tool.Failure("no paths to stage"), nil
			}
			wt, err := r.repo.Worktree()
			if err != nil {
				return tool.Result{}, fmt.Errorf("open worktree: %w", err)
			}
			for _, p := range in.Paths {
				if _, err := wt.Add(p); err != nil {
					return tool.Failuref("stage %s: %v", p, err), nil
				}
			}
			return tool.Success("staged " + strings.Join(in.Paths, ", ")), nil
		}).
		MustBuild()
}

// --- git_commit ---

type commitInput struct {
	Message string `json:"message"`
}

func commitTool(r *repoTools) tool.Tool {
	return tool.NewBuilder("git_commit").
		WithDescription("Commit the staged changes").
		WithParam("message", tool.RequiredParam(tool.TypeString, "commit message")).
		WithRiskLevel(tool.RiskMedium).
		RequiresConfirmation().
		WithHandler(func(_ context.Context, input json.RawMessage) (tool.Result, error) {
			var in commitInput
			if err := json.Unmarshal(input, &in); err != nil {
				return tool.Result{}, err
			}
			if strings.TrimSpace(in.Message) == "" {
				return tool.Failure("commit message is required"), nil
			}
			wt, err := r.repo.Worktree()
			if err != nil {
				return tool.Result{}, fmt.Errorf("open worktree: %w", err)
			}
			hash, err := wt.Commit(in.Message, &git.CommitOptions{
				Author: &object.Signature{
					Name:  r.cfg.AuthorName,
					Email: r.cfg.AuthorEmail,
					When:  r.cfg.Now(),
				},
			})
			if err != nil {
				return tool.Failuref("commit: %v", err), nil
			}
			return tool.Success("committed " + hash.String()[:7]), nil
		}).
		MustBuild()
}

func (r *repoTools) status() (git.Status, error) {
	wt, err := r.repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("open worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("read status: %w", err)
	}
	return status, nil
}

func (r *repoTools) branch() string {
	head, err := r.repo.Head()
	switch {
	case errors.Is(err, plumbing.ErrReferenceNotFound):
		return "(no commits)"
	case err != nil:
		return "(unknown)"
	case head.Name().IsBranch():
		return head.Name().Short()
	default:
		return "HEAD (detached)"
	}
}

// headContent returns the file content at HEAD, or "" if absent.
func (r *repoTools) headContent(path string) (string, error) {
	head, err := r.repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("resolve HEAD: %w", err)
	}
	commit, err := r.repo.CommitObject(head.Hash())
	if err != nil {
		return "", fmt.Errorf("read HEAD commit: %w", err)
	}
	f, err := commit.File(path)
	if errors.Is(err, object.ErrFileNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read %s at HEAD: %w", path, err)
	}
	return f.Contents()
}

// indexContent returns the staged file content, or "" if absent.
func (r *repoTools) indexContent(path string) (string, error) {
	idx, err := r.repo.Storer.Index()
	if err != nil {
		return "", fmt.Errorf("read index: %w", err)
	}
	entry, err := idx.Entry(path)
	if errors.Is(err, index.ErrEntryNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read index entry %s: %w", path, err)
	}
	blob, err := r.repo.BlobObject(entry.Hash)
	if err != nil {
		return "", fmt.Errorf("read blob %s: %w", path, err)
	}
	rd, err := blob.Reader()
	if err != nil {
		return "", err
	}
	defer rd.Close()
	data, err := io.ReadAll(rd)
	return string(data), err
}

// worktreeContent returns the file content on disk, or "" if absent.
func (r *repoTools) worktreeContent(path string) (string, error) {
	data, err := os.ReadFile(filepath.Join(r.cfg.RepoPath, filepath.FromSlash(path))) // #nosec G304 -- path from git status
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	return string(data), err
}

func sortedPaths(status git.Status) []string {
	paths := make([]string, 0, len(status))
	for p := range status {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func statusName(code git.StatusCode) string {
	switch code {
	case git.Unmodified:
		return "unmodified"
	case git.Untracked:
		return "untracked"
	case git.Modified:
		return "modified"
	case git.Added:
		return "added"
	case git.Deleted:
		return "deleted"
	case git.Renamed:
		return "renamed"
	case git.Copied:
		return "copied"
	case git.UpdatedButUnmerged:
		return "unmerged"
	default:
		return "unknown"
	}
}
