package chefos

import (
	"os"
	"path/filepath"

	"github.com/chefbuild/chef/internal/cheferr"
)

// Symlink creates a symbolic link at path pointing at target verbatim,
// creating any missing parent directories first.
func Symlink(target, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), DefaultDirMode); err != nil {
		return cheferr.Wrap(cheferr.ErrInternal, err)
	}
	os.Remove(path)
	if err := os.Symlink(target, path); err != nil {
		return cheferr.Wrap(cheferr.ErrInternal, err)
	}
	return nil
}

// DefaultDirMode is the permission mode applied to directories chefos
// creates on the caller's behalf.
const DefaultDirMode os.FileMode = 0755
