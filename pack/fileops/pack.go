// Package fileops provides file tools confined to a workspace root.
package fileops

import (
	"github.com/felixgeelhaar/omni/domain/pack"
	"github.com/felixgeelhaar/omni/pack/internal/workspace"
)

// Config configures the fileops pack.
type Config struct {
	// Root is the workspace directory every path is resolved against.
	Root string

	// MaxFileSize limits how many bytes read_file returns.
	MaxFileSize int64

	// MaxResults caps list_dir and find_files output.
	MaxResults int

	// AllowSymlinks allows paths that traverse symbolic links.
	AllowSymlinks bool
}

// Option configures the fileops pack.
type Option func(*Config)

// WithRoot sets the workspace root.
func WithRoot(dir string) Option {
	return func(c *Config) {
		c.Root = dir
	}
}

// WithMaxFileSize sets the maximum number of bytes returned by a read.
func WithMaxFileSize(size int64) Option {
	return func(c *Config) {
		c.MaxFileSize = size
	}
}

// WithMaxResults caps listing and search results.
func WithMaxResults(n int) Option {
	return func(c *Config) {
		c.MaxResults = n
	}
}

// WithSymlinks allows following symbolic links inside the workspace.
func WithSymlinks() Option {
	return func(c *Config) {
		c.AllowSymlinks = true
	}
}

// New creates the fileops pack. The root must be an existing directory.
func New(opts ...Option) (*pack.Pack, error) {
	cfg := Config{
		Root:        ".",
		MaxFileSize: 256 * 1024,
		MaxResults:  500,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	root, err := workspace.New(cfg.Root, cfg.AllowSymlinks)
	if err != nil {
		return nil, err
	}
	cfg.Root = root.Dir()

	ws := &files{cfg: cfg, root: root}
	return pack.NewBuilder("fileops").
		WithDescription("Read, write, search and reorganise files in the workspace").
		WithVersion("1.0.0").
		AddTools(
			readFileTool(ws),
			writeFileTool(ws),
			replaceInFileTool(ws),
			deleteFileTool(ws),
			renameFileTool(ws),
			listDirTool(ws),
			findFilesTool(ws),
		).
		Build()
}
