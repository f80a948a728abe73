package chefos

import (
	"io/fs"
	"os"
	"path/filepath"
)

// Entry describes one file-tree entry discovered by [Walk], relative to the
// root that was walked.
type Entry struct {
	RelPath string
	Info    fs.FileInfo
	IsDir   bool
	IsLink  bool
}

// Walk descends root and invokes fn for every entry, in lexical order,
// root first. Symlinks are reported but not followed, so archive writers
// (internal/archive) and the packer can preserve them verbatim.
func Walk(root string, fn func(Entry) error) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		return fn(Entry{
			RelPath: filepath.ToSlash(rel),
			Info:    info,
			IsDir:   d.IsDir(),
			IsLink:  info.Mode()&os.ModeSymlink != 0,
		})
	})
}
