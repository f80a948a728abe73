package packer

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/chefbuild/chef/internal/archive"
	"github.com/chefbuild/chef/internal/cheferr"
	"github.com/chefbuild/chef/internal/chefos"
	"github.com/chefbuild/chef/internal/manifest"
)

// Options parameterizes [Pack].
type Options struct {
	// InstallDir is <install_path>: the tree Pack reads from and, if
	// BuildIngredientsDir ingredients are marked IncludeInPack, writes
	// copied ingredient files into.
	InstallDir string
	// BuildIngredientsDir is the unpacked build-ingredient area, keyed by
	// the same sanitized directory names internal/kitchen uses.
	BuildIngredientsDir string
	// Ingredients lists the recipe's build ingredient references, so
	// Pack can find which ones to fold in.
	Ingredients []manifest.IngredientReference
	// Recipe carries the version stamped into the pack header.
	RecipeVersion string
	// Pack is the manifest entry describing this particular archive:
	// its type, include filters, and command manifest.
	Pack manifest.Pack
	// OutputPath is the destination pack file.
	OutputPath string
	// Compress enables the zstd filter feature.
	Compress bool
	// Metadata is folded into the package header's free-form metadata.
	Metadata map[string]string
}

// Pack produces an archive from opts.InstallDir. Step order: fold in
// pack-included ingredients, write the header and optional filter
// feature, then write the (filtered) install tree.
func Pack(opts Options) (archive.Overview, error) {
	for _, ref := range opts.Ingredients {
		if !ref.IncludeInPack {
			continue
		}
		src := filepath.Join(opts.BuildIngredientsDir, sanitizeIngredientName(ref.Name))
		if err := copyFiltered(src, opts.InstallDir, ref.FilterPatterns); err != nil {
			return archive.Overview{}, cheferr.Wrapf(cheferr.ErrInternal, "folding ingredient %s into install tree: %v", ref.Name, err)
		}
	}

	header := archive.Header{
		Type:     opts.Pack.Type,
		Version:  opts.RecipeVersion,
		Metadata: opts.Metadata,
		Commands: opts.Pack.Commands,
	}

	var filter *archive.Filter
	if opts.Compress {
		filter = &archive.Filter{Codec: archive.CodecZstd}
	}

	w, err := archive.NewWriter(opts.OutputPath, header, filter)
	if err != nil {
		return archive.Overview{}, err
	}

	if err := packInstallTree(w, opts.InstallDir, opts.Pack.Filters); err != nil {
		w.Close()
		return archive.Overview{}, err
	}

	if err := w.Close(); err != nil {
		return archive.Overview{}, err
	}

	r, err := archive.Open(opts.OutputPath)
	if err != nil {
		return archive.Overview{}, err
	}
	defer r.Close()
	return r.Overview(), nil
}

// copyFiltered copies every file under src matching patterns (glob
// semantics, "empty filter = include all") into the corresponding
// relative location under dest, creating parent directories as needed.
func copyFiltered(src, dest string, patterns []string) error {
	if _, err := os.Stat(src); os.IsNotExist(err) {
		return nil
	}

	return chefos.Walk(src, func(e chefos.Entry) error {
		if e.RelPath == "." || e.IsDir {
			return nil
		}
		if !matchesAny(patterns, e.RelPath) {
			return nil
		}

		destPath := filepath.Join(dest, e.RelPath)
		if err := os.MkdirAll(filepath.Dir(destPath), chefos.DefaultDirMode); err != nil {
			return cheferr.Wrap(cheferr.ErrInternal, err)
		}

		if e.IsLink {
			target, err := os.Readlink(filepath.Join(src, e.RelPath))
			if err != nil {
				return cheferr.Wrap(cheferr.ErrInternal, err)
			}
			return chefos.Symlink(target, destPath)
		}

		data, err := os.ReadFile(filepath.Join(src, e.RelPath))
		if err != nil {
			return cheferr.Wrap(cheferr.ErrInternal, err)
		}
		return cheferr.Wrap(cheferr.ErrInternal, os.WriteFile(destPath, data, e.Info.Mode().Perm()))
	})
}

// packInstallTree writes every entry under installDir matching filters
// to w, staging each matched entry's parent directory chain exactly once.
func packInstallTree(w *archive.Writer, installDir string, filters []string) error {
	staged := map[string]bool{}

	var ensureDir func(relDir string) error
	ensureDir = func(relDir string) error {
		if relDir == "." || relDir == "" || staged[relDir] {
			return nil
		}
		if err := ensureDir(filepath.Dir(relDir)); err != nil {
			return err
		}
		info, err := os.Stat(filepath.Join(installDir, relDir))
		if err != nil {
			return cheferr.Wrap(cheferr.ErrInternal, err)
		}
		w.AddDir(relDir, info.Mode().Perm())
		staged[relDir] = true
		return nil
	}

	return chefos.Walk(installDir, func(e chefos.Entry) error {
		if e.RelPath == "." || e.IsDir {
			return nil
		}
		if !matchesAny(filters, e.RelPath) {
			return nil
		}
		if err := ensureDir(filepath.Dir(e.RelPath)); err != nil {
			return err
		}

		if e.IsLink {
			target, err := os.Readlink(filepath.Join(installDir, e.RelPath))
			if err != nil {
				return cheferr.Wrap(cheferr.ErrInternal, err)
			}
			w.AddSymlink(e.RelPath, target)
			return nil
		}

		f, err := os.Open(filepath.Join(installDir, e.RelPath))
		if err != nil {
			return cheferr.Wrap(cheferr.ErrInternal, err)
		}
		defer f.Close()
		return w.AddFile(e.RelPath, e.Info.Mode().Perm(), f)
	})
}

// matchesAny reports whether relPath matches any of patterns, tried
// both against the full relative path and its base name so a pattern
// like "*.so" matches regardless of directory depth.
func matchesAny(patterns []string, relPath string) bool {
	if len(patterns) == 0 {
		return true
	}
	base := filepath.Base(relPath)
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, relPath); ok {
			return true
		}
		if ok, _ := filepath.Match(p, base); ok {
			return true
		}
	}
	return false
}

func sanitizeIngredientName(name string) string {
	return strings.ReplaceAll(name, "/", "_")
}
