package kitchen

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	goruntime "runtime"

	"github.com/google/uuid"

	"github.com/chefbuild/chef/internal/cheferr"
	"github.com/chefbuild/chef/internal/chefos"
	"github.com/chefbuild/chef/internal/manifest"
	"github.com/chefbuild/chef/internal/oven"
	"github.com/chefbuild/chef/internal/paths"
	"github.com/chefbuild/chef/internal/proof"
	"github.com/chefbuild/chef/internal/protocol"
	"github.com/chefbuild/chef/internal/registry"
	"github.com/chefbuild/chef/internal/runtime"
)

// Checkpoint keys.
const (
	checkpointRootfs      = "setup_rootfs"
	checkpointIngredients = "setup_ingredients"
	checkpointHook        = "setup_hook"
)

func stepCheckpoint(partName, stepName string) string {
	return fmt.Sprintf("step:%s:%s", partName, stepName)
}

// Options configures [Initialize].
type Options struct {
	// UUID pins the kitchen's identity so a later Initialize call against
	// the same recipe resumes the same on-disk directory and checkpoint
	// cache instead of starting a fresh build. Empty generates a fresh one.
	UUID       string
	Runtime    *runtime.Runtime
	ProjectDir string // Host directory bound read-only into the container as /chef/project.
	Platform   string
	Arch       string

	// Registry and Verifier resolve and authenticate ingredient
	// references. Both may be nil if the recipe declares no ingredients.
	Registry registry.Client
	Verifier *proof.Verifier
}

// Kitchen is a fully materialized build environment rooted at a
// per-recipe directory. It owns exactly one live container for its
// lifetime.
type Kitchen struct {
	UUID string

	root               string
	chroot             string
	hostIngredients    string
	buildIngredients   string
	runtimeIngredients string
	toolchains         string
	buildDir           string
	installDir         string
	projectDir         string

	platform string
	arch     string

	rt        *runtime.Runtime
	reg       registry.Client
	verifier  *proof.Verifier
	container *runtime.Container
	cache     *Cache
	env       []string
}

// Initialize populates the kitchen's directory skeleton under a fresh
// recipe UUID and materializes its base environment list.
func Initialize(opts Options) (*Kitchen, error) {
	id := opts.UUID
	if id == "" {
		id = uuid.NewString()
	}
	root := paths.KitchenRoot(id)

	k := &Kitchen{
		UUID:               id,
		root:               root,
		chroot:             filepath.Join(root, "chroot"),
		hostIngredients:    filepath.Join(root, "host_ingredients"),
		buildIngredients:   filepath.Join(root, "build_ingredients"),
		runtimeIngredients: filepath.Join(root, "runtime_ingredients"),
		toolchains:         filepath.Join(root, "toolchains"),
		buildDir:           filepath.Join(root, "build"),
		installDir:         filepath.Join(root, "install"),
		projectDir:         opts.ProjectDir,
		platform:           opts.Platform,
		arch:               opts.Arch,
		rt:                 opts.Runtime,
		reg:                opts.Registry,
		verifier:           opts.Verifier,
	}

	if k.platform == "" {
		k.platform = "linux/" + goruntime.GOARCH
	}
	if k.arch == "" {
		k.arch = goruntime.GOARCH
	}

	for _, dir := range []string{k.chroot, k.hostIngredients, k.buildIngredients, k.runtimeIngredients, k.toolchains, k.buildDir, k.installDir} {
		if err := os.MkdirAll(dir, chefos.DefaultDirMode); err != nil {
			return nil, cheferr.Wrap(cheferr.ErrInternal, err)
		}
	}

	cache, err := OpenCache(filepath.Join(root, "cache.json"))
	if err != nil {
		return nil, err
	}
	k.cache = cache
	k.env = k.baseEnv()

	return k, nil
}

// baseEnv materializes the initialize-time environment list: fixed keys,
// five CHEF_BUILD_* placeholders filled during ingredient setup (here
// left empty until [Kitchen.setupIngredients] overwrites them).
func (k *Kitchen) baseEnv() []string {
	return []string{
		"USER=chef",
		"USERNAME=chef",
		"HOME=/chef",
		"PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin",
		"LD_LIBRARY_PATH=",
		"CHEF_TARGET_ARCH=" + k.arch,
		"CHEF_TARGET_PLATFORM=" + k.platform,
		"GIT_SSL_NO_VERIFY=1",
		"CHEF_BUILD_PATH=",
		"CHEF_BUILD_INCLUDE=",
		"CHEF_BUILD_LIBS=",
		"CHEF_BUILD_CCFLAGS=",
		"CHEF_BUILD_LDFLAGS=",
	}
}

// Setup runs every uncompleted checkpoint for recipe in order: rootfs,
// ingredients, the setup hook, then every part's steps. Completed
// checkpoints from a prior run are skipped.
func (k *Kitchen) Setup(ctx context.Context, recipe *manifest.Recipe) error {
	if !k.cache.Done(checkpointRootfs) {
		if err := k.setupRootfs(ctx); err != nil {
			return err
		}
		k.cache.Begin()
		k.cache.Set(checkpointRootfs)
		if err := k.cache.Commit(); err != nil {
			return err
		}
	}

	if err := k.createContainer(ctx); err != nil {
		return err
	}

	if !k.cache.Done(checkpointIngredients) {
		if err := k.setupIngredients(ctx, recipe); err != nil {
			return err
		}
		k.cache.Begin()
		k.cache.Set(checkpointIngredients)
		if err := k.cache.Commit(); err != nil {
			return err
		}
	}

	if recipe.SetupHook != "" && !k.cache.Done(checkpointHook) {
		if err := k.runHook(ctx, recipe.SetupHook); err != nil {
			return err
		}
		k.cache.Begin()
		k.cache.Set(checkpointHook)
		if err := k.cache.Commit(); err != nil {
			return err
		}
	}

	for _, part := range recipe.Parts {
		for _, step := range part.Steps {
			checkpoint := stepCheckpoint(part.Name, step.Name)
			for _, dep := range step.DependsOn {
				k.cache.RegisterDependency(stepCheckpoint(part.Name, dep), checkpoint)
			}
			if k.cache.Done(checkpoint) {
				continue
			}

			if _, err := oven.Run(ctx, k.container, step, k.backendData(recipe, step)); err != nil {
				return cheferr.Wrap(cheferr.ErrInternal, fmt.Errorf("part %s, step %s: %w", part.Name, step.Name, err))
			}

			k.cache.Begin()
			k.cache.Set(checkpoint)
			if err := k.cache.Commit(); err != nil {
				return err
			}
		}
	}

	return nil
}

// ResetStep clears a step's checkpoint (and every transitive dependent)
// so the next Setup call re-executes it.
func (k *Kitchen) ResetStep(partName, stepName string) error {
	return k.cache.Reset(stepCheckpoint(partName, stepName))
}

// setupRootfs materializes a minimal POSIX rootfs under the chroot and
// installs the bakectl helper at /usr/bin/bakectl.
//
// Debootstrap-equivalent base-image extraction is delegated to the
// registry/ingredient-resolution layer one level up (the "base rootfs"
// ingredient is just another ingredient reference); this step lays out
// the skeleton that extraction fills in and stages the control binary.
func (k *Kitchen) setupRootfs(ctx context.Context) error {
	for _, dir := range []string{"bin", "sbin", "usr/bin", "usr/lib", "etc", "tmp", "proc", "sys", "dev", "chef"} {
		if err := os.MkdirAll(filepath.Join(k.chroot, dir), chefos.DefaultDirMode); err != nil {
			return cheferr.Wrap(cheferr.ErrInternal, err)
		}
	}
	return k.installBakectl()
}

// installBakectl stages the running bake binary into the chroot so
// steps inside the container can call back into the toolchain.
func (k *Kitchen) installBakectl() error {
	self, err := os.Executable()
	if err != nil {
		return cheferr.Wrap(cheferr.ErrInternal, err)
	}
	data, err := os.ReadFile(self)
	if err != nil {
		return cheferr.Wrap(cheferr.ErrInternal, err)
	}
	target := filepath.Join(k.chroot, "usr", "bin", "bakectl")
	if err := os.WriteFile(target, data, 0755); err != nil {
		return cheferr.Wrap(cheferr.ErrInternal, err)
	}
	return nil
}

// createContainer starts the kitchen's one live container, bound to the
// project directory read-only plus the install/build/ingredient/toolchain
// areas.
func (k *Kitchen) createContainer(ctx context.Context) error {
	if k.container != nil {
		return nil
	}

	ctr := k.rt.Container("kitchen-" + k.UUID)
	mounts := []protocol.Mount{
		{Source: k.projectDir, Target: paths.ContainerProject, ReadOnly: true},
		{Source: k.installDir, Target: paths.ContainerInstall},
		{Source: k.buildDir, Target: paths.ContainerBuild},
		{Source: k.buildIngredients, Target: paths.ContainerIngr},
		{Source: k.toolchains, Target: paths.ContainerTool},
	}

	if err := ctr.Create(ctx, runtime.CreateOptions{
		Chroot:   k.chroot,
		Platform: k.platform,
		Capabilities: []protocol.Capability{
			protocol.CapFilesystem, protocol.CapProcessControl, protocol.CapUserNamespace,
		},
		Mounts: mounts,
	}); err != nil {
		return err
	}

	k.container = ctr
	return nil
}

// runHook executes the recipe's user-provided setup hook once, through
// /bin/sh inside the container.
func (k *Kitchen) runHook(ctx context.Context, hook string) error {
	if k.container == nil {
		return cheferr.Wrap(cheferr.ErrInternal, ErrNoContainer)
	}

	hostPath, err := chefos.WriteScript(k.root, "setup-hook.sh", hook)
	if err != nil {
		return err
	}
	if err := k.container.MkdirAll(ctx, paths.ContainerBuild); err != nil {
		return err
	}
	if err := k.container.Upload(ctx, hostPath, paths.ContainerBuild); err != nil {
		return err
	}

	result, err := k.container.Spawn(ctx, []string{"/bin/sh", paths.ContainerBuild + "/setup-hook.sh"}, k.env, paths.ContainerProject)
	if err != nil {
		return err
	}
	if result.ExitCode != 0 {
		return cheferr.Wrapf(cheferr.ErrInternal, "setup hook exited %d: %s", result.ExitCode, result.Stderr)
	}
	return nil
}

// backendData assembles the oven.BackendData shared by every step in
// recipe.
func (k *Kitchen) backendData(recipe *manifest.Recipe, step manifest.Step) oven.BackendData {
	buildDir := paths.ContainerBuildDir(k.platform, k.arch)
	ingredientsDir := paths.ContainerIngredientsDir(k.platform, k.arch)

	env := append(append([]string{}, k.env...), envList(step.Env)...)

	return oven.BackendData{
		Source:           paths.ContainerProject,
		Build:            buildDir,
		Install:          paths.ContainerInstall,
		Toolchains:       paths.ContainerTool,
		BuildIngredients: ingredientsDir,
		Platform:         k.platform,
		Arch:             k.arch,
		RecipeName:       recipe.Name,
		Profile:          recipe.Version,
		Arguments:        step.Arguments,
		Env:              env,
		InTree:           step.InTree,
		Parallel:         step.Parallel,
		StagingDir:       k.root,
	}
}

func envList(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

// Container returns the kitchen's live container handle, or nil if
// [Kitchen.Setup] has not yet created it.
func (k *Kitchen) Container() *runtime.Container { return k.container }

// InstallDir is the host path backing the container's /chef/install
// mount, the source directory [packer] reads from.
func (k *Kitchen) InstallDir() string { return k.installDir }

// BuildIngredientsDir is the host path backing the container's
// ingredients mount, the source directory pack-include filters copy
// from.
func (k *Kitchen) BuildIngredientsDir() string { return k.buildIngredients }

// Destroy tears down the kitchen's container. The on-disk kitchen
// directory itself is left in place so a subsequent Setup can resume
// from the checkpoint cache.
func (k *Kitchen) Destroy(ctx context.Context) error {
	if k.container == nil {
		return nil
	}
	return k.container.Destroy(ctx)
}
