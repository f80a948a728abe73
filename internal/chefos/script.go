package chefos

import (
	"context"
	"os"
	"path/filepath"

	"github.com/chefbuild/chef/internal/cheferr"
)

// scriptMode is the permission mode a runnable script is written with.
const scriptMode os.FileMode = 0755

// WriteScript writes text to a temporary executable file under dir and
// returns its path. The container engine uses this to stage a step's
// script before executing it through /bin/sh inside the container's
// filesystem.
func WriteScript(dir, name, text string) (string, error) {
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(text), scriptMode); err != nil {
		return "", cheferr.Wrap(cheferr.ErrInternal, err)
	}
	return path, nil
}

// RunScript executes path through shell as "shell path", streaming output
// through opts.OnLine, and returns the exit code. Used for host-side setup
// hooks that run outside any container (e.g. a local prerequisite check).
func RunScript(ctx context.Context, shell, path string, opts SpawnOptions) (int, error) {
	return Spawn(ctx, shell, []string{path}, opts)
}
