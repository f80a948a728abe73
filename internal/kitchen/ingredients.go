package kitchen

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/chefbuild/chef/internal/archive"
	"github.com/chefbuild/chef/internal/cheferr"
	"github.com/chefbuild/chef/internal/chefos"
	"github.com/chefbuild/chef/internal/manifest"
)

// pkgconfigDirName is the single directory under an ingredient area
// that every ingredient's .pc files are symlinked into, so
// PKG_CONFIG_PATH only ever has to name one path.
const pkgconfigDirName = "pkgconfig"

// setupIngredients resolves and unpacks every ingredient reference a
// recipe declares, then rebuilds the environment's CHEF_BUILD_* variables
// from what landed in the build ingredient area.
func (k *Kitchen) setupIngredients(ctx context.Context, recipe *manifest.Recipe) error {
	for _, ref := range recipe.HostIngredients {
		if err := k.resolveIngredient(ctx, ref, k.hostIngredients); err != nil {
			return cheferr.Wrap(cheferr.ErrInternal, fmt.Errorf("host ingredient %s: %w", ref.Name, err))
		}
	}
	for _, ref := range recipe.BuildIngredients {
		if err := k.resolveIngredient(ctx, ref, k.buildIngredients); err != nil {
			return cheferr.Wrap(cheferr.ErrInternal, fmt.Errorf("build ingredient %s: %w", ref.Name, err))
		}
	}
	for _, ref := range recipe.RuntimeIngredients {
		if err := k.resolveIngredient(ctx, ref, k.runtimeIngredients); err != nil {
			return cheferr.Wrap(cheferr.ErrInternal, fmt.Errorf("runtime ingredient %s: %w", ref.Name, err))
		}
	}

	k.env = materializeBuildEnv(k.env, k.buildIngredients)
	return nil
}

// resolveIngredient fetches (or locates) ref's pack and unpacks it,
// rooted at destDir, under the target [manifest.PackageType] declares.
func (k *Kitchen) resolveIngredient(ctx context.Context, ref manifest.IngredientReference, destDir string) error {
	switch ref.Source {
	case manifest.SourceFile:
		return k.unpackIngredient(ref, ref.Name, destDir)

	case manifest.SourceRepo:
		return k.resolveRepoIngredient(ctx, ref, destDir)

	default:
		return cheferr.Wrapf(cheferr.ErrUnsupportedPlatform, "ingredient source %q not supported without a registry client", ref.Source)
	}
}

// resolveRepoIngredient resolves ref against the registry, fetches the
// chosen revision's pack, verifies it, and unpacks it under destDir.
func (k *Kitchen) resolveRepoIngredient(ctx context.Context, ref manifest.IngredientReference, destDir string) error {
	if k.reg == nil {
		return cheferr.Wrapf(cheferr.ErrInvalidArgument, "ingredient %s: no registry client configured", ref.Name)
	}
	publisher, pkg, ok := ref.Publisher()
	if !ok {
		return cheferr.Wrapf(cheferr.ErrInvalidArgument, "ingredient %s is not publisher/package", ref.Name)
	}

	platform := ref.Platform
	if platform == "" {
		platform = k.platform
	}
	arch := ref.Arch
	if arch == "" {
		arch = k.arch
	}

	meta, err := k.reg.Resolve(ctx, publisher, pkg, ref.Channel, ref.VersionRange, platform, arch)
	if err != nil {
		return cheferr.Wrap(cheferr.ErrNetworkFailure, err)
	}

	fetchDir := filepath.Join(k.root, "fetch")
	if err := os.MkdirAll(fetchDir, chefos.DefaultDirMode); err != nil {
		return cheferr.Wrap(cheferr.ErrInternal, err)
	}
	packPath := filepath.Join(fetchDir, fmt.Sprintf("%s-%s-%s.pack", publisher, pkg, meta.LatestRevision))

	if err := k.reg.Fetch(ctx, publisher, pkg, meta.LatestRevision, platform, arch, packPath, nil); err != nil {
		return cheferr.Wrap(cheferr.ErrNetworkFailure, err)
	}

	if k.verifier != nil {
		if err := k.verifier.VerifyPackage(publisher, pkg, meta.LatestRevision, packPath); err != nil {
			return err
		}
	}

	return k.unpackIngredient(ref, packPath, destDir)
}

// unpackIngredient opens packPath's header to learn its declared package
// type, then extracts it to the right target: a TOOLCHAIN lands under
// the kitchen's toolchains area regardless of which ingredient list
// referenced it; anything else (INGREDIENT, or an APPLICATION pulled in
// as a host ingredient) lands under areaDir and, for an INGREDIENT, is
// registered with the pkgconfig package manager.
func (k *Kitchen) unpackIngredient(ref manifest.IngredientReference, packPath, areaDir string) error {
	r, err := archive.Open(packPath)
	if err != nil {
		return err
	}
	pkgType := r.Header().Type
	r.Close()

	name := ingredientDirName(ref)
	target := filepath.Join(areaDir, name)
	if pkgType == manifest.Toolchain {
		target = filepath.Join(k.toolchains, name)
	}

	if err := archive.Unpack(packPath, target); err != nil {
		return err
	}

	if pkgType == manifest.Ingredient {
		return registerPkgconfig(target, areaDir)
	}
	return nil
}

// registerPkgconfig symlinks every .pc file an unpacked ingredient
// provides into areaDir/pkgconfig, the one directory PKG_CONFIG_PATH is
// pointed at regardless of which ingredient provided them.
func registerPkgconfig(ingredientDir, areaDir string) error {
	pcDir := filepath.Join(areaDir, pkgconfigDirName)
	if err := os.MkdirAll(pcDir, chefos.DefaultDirMode); err != nil {
		return cheferr.Wrap(cheferr.ErrInternal, err)
	}

	err := filepath.WalkDir(ingredientDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".pc") {
			return nil
		}
		link := filepath.Join(pcDir, d.Name())
		os.Remove(link)
		return os.Symlink(path, link)
	})
	if err != nil {
		return cheferr.Wrap(cheferr.ErrInternal, err)
	}
	return nil
}

func ingredientDirName(ref manifest.IngredientReference) string {
	return strings.ReplaceAll(ref.Name, "/", "_")
}

// materializeBuildEnv rebuilds the CHEF_BUILD_* and LD_LIBRARY_PATH/PATH
// entries of env from whatever bin/include/lib directories were unpacked
// under buildIngredients.
func materializeBuildEnv(env []string, buildIngredients string) []string {
	entries, err := os.ReadDir(buildIngredients)
	if err != nil {
		return env
	}

	var pathDirs, incDirs, libDirs []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		base := filepath.Join(buildIngredients, e.Name())
		if dirExists(filepath.Join(base, "bin")) {
			pathDirs = append(pathDirs, filepath.Join(base, "bin"))
		}
		if dirExists(filepath.Join(base, "include")) {
			incDirs = append(incDirs, filepath.Join(base, "include"))
		}
		if dirExists(filepath.Join(base, "lib")) {
			libDirs = append(libDirs, filepath.Join(base, "lib"))
		}
	}

	var ccflags, ldflags []string
	for _, d := range incDirs {
		ccflags = append(ccflags, "-I"+d)
	}
	for _, d := range libDirs {
		ldflags = append(ldflags, "-L"+d)
	}

	env = setEnv(env, "CHEF_BUILD_PATH", strings.Join(pathDirs, ":"))
	env = setEnv(env, "CHEF_BUILD_INCLUDE", strings.Join(incDirs, ":"))
	env = setEnv(env, "CHEF_BUILD_LIBS", strings.Join(libDirs, ":"))
	env = setEnv(env, "CHEF_BUILD_CCFLAGS", strings.Join(ccflags, " "))
	env = setEnv(env, "CHEF_BUILD_LDFLAGS", strings.Join(ldflags, " "))
	env = setEnv(env, "LD_LIBRARY_PATH", strings.Join(libDirs, ":"))

	if dirExists(filepath.Join(buildIngredients, pkgconfigDirName)) {
		env = setEnv(env, "PKG_CONFIG_PATH", filepath.Join(buildIngredients, pkgconfigDirName))
	}

	if len(pathDirs) > 0 {
		for i, kv := range env {
			if strings.HasPrefix(kv, "PATH=") {
				env[i] = kv + ":" + strings.Join(pathDirs, ":")
				break
			}
		}
	}

	return env
}

func setEnv(env []string, key, value string) []string {
	prefix := key + "="
	for i, kv := range env {
		if strings.HasPrefix(kv, prefix) {
			env[i] = prefix + value
			return env
		}
	}
	return append(env, prefix+value)
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
