package fileops

import (
	"github.com/felixgeelhaar/omni/pack/internal/linediff"
	"github.com/felixgeelhaar/omni/pack/internal/workspace"
)

// files carries the configuration shared by the tools.
type files struct {
	cfg  Config
	root *workspace.Root
}

func (f *files) resolve(p string) (string, string, error) {
	return f.root.Resolve(p)
}

// patch renders the change from before to after as a unified diff.
func patch(rel, before, after string) string {
	return linediff.File(rel, before, after)
}
